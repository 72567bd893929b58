package mediatool

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	maxLogBytes = 64 * 1024 // tail of combined output kept for diagnostics
	waitDelay   = 2 * time.Second
)

// Config holds the ffmpeg tool configuration.
type Config struct {
	BinaryPath    string        // ffmpeg binary; empty = look up "ffmpeg" on PATH
	ProbeTimeout  time.Duration // per-clip probe timeout; zero = none
	EncodeTimeout time.Duration // encode timeout; zero = none
	Logger        *slog.Logger
	DebugPaths    bool // if true, log full file paths; otherwise sanitise
}

func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		BinaryPath:    "",
		ProbeTimeout:  2 * time.Minute,
		EncodeTimeout: 0,
		Logger:        logger,
	}
}

// FFmpeg is the production Tool, running the ffmpeg binary as a subprocess.
type FFmpeg struct {
	cfg Config
}

func NewFFmpeg(cfg Config) *FFmpeg {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	return &FFmpeg{cfg: cfg}
}

// Resolve returns the absolute path of the ffmpeg binary.
func (f *FFmpeg) Resolve() (string, error) {
	name := f.cfg.BinaryPath
	if name == "" {
		name = "ffmpeg"
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", errors.Wrapf(err, "ffmpeg binary %q not found", name)
	}
	return p, nil
}

// Probe runs `ffmpeg -hide_banner -i <path> -f null -`. A non-zero exit is
// normal for some inputs and is reported in the ReturnCode, not as an error.
func (f *FFmpeg) Probe(ctx context.Context, path string) (Session, error) {
	if f.cfg.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.ProbeTimeout)
		defer cancel()
	}
	return f.exec(ctx, "-hide_banner", "-i", path, "-f", "null", "-")
}

func (f *FFmpeg) Encode(ctx context.Context, args []string) (Session, error) {
	if f.cfg.EncodeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.EncodeTimeout)
		defer cancel()
	}
	return f.exec(ctx, args...)
}

// exec is the core subprocess execution helper. It returns an error only
// when the process could not be started or was cancelled.
func (f *FFmpeg) exec(ctx context.Context, args ...string) (Session, error) {
	start := time.Now()
	session := Session{Args: args}

	bin, err := f.Resolve()
	if err != nil {
		session.ReturnCode = ReturnCode{Value: -1}
		return session, err
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.WaitDelay = waitDelay

	var logBuf bytes.Buffer
	lw := &limitedWriter{w: &logBuf, limit: maxLogBytes}
	cmd.Stdout = lw
	cmd.Stderr = lw

	f.cfg.Logger.Debug("executing ffmpeg", "args", f.safeArgs(args))

	runErr := cmd.Run()
	session.Duration = time.Since(start)
	session.Log = logBuf.String()

	if ctxErr := ctx.Err(); ctxErr != nil {
		session.ReturnCode = ReturnCode{Value: -1, Cancelled: true}
		f.cfg.Logger.Warn("ffmpeg cancelled",
			"duration_ms", session.Duration.Milliseconds(),
			"reason", ctxErr,
		)
		return session, errors.Wrap(ctxErr, "ffmpeg cancelled")
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			session.ReturnCode = ReturnCode{Value: -1}
			return session, errors.Wrap(runErr, "run ffmpeg")
		}
		session.ReturnCode = ReturnCode{Value: exitErr.ExitCode()}
	}

	if session.ReturnCode.IsSuccess() {
		f.cfg.Logger.Debug("ffmpeg succeeded", "duration_ms", session.Duration.Milliseconds())
	} else {
		f.cfg.Logger.Debug("ffmpeg exited non-zero",
			"exit_code", session.ReturnCode.Value,
			"duration_ms", session.Duration.Milliseconds(),
			"log_tail", truncate(session.Log, 512),
		)
	}
	return session, nil
}

func (f *FFmpeg) safeArgs(args []string) []string {
	if f.cfg.DebugPaths {
		return args
	}
	out := make([]string, len(args))
	for i, a := range args {
		if filepath.IsAbs(a) || strings.HasPrefix(a, "file://") {
			out[i] = filepath.Base(a)
			continue
		}
		out[i] = a
	}
	return out
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
