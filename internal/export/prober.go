package export

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/studiolapse/studiolapse-agent/internal/mediatool"
)

var durationRe = regexp.MustCompile(`Duration:\s*(\d{2}):(\d{2}):(\d{2}\.\d{2})`)

// ProbeError reports that the media tool could not be run against a clip,
// even after retrying with the bare local path.
type ProbeError struct {
	ClipRef string
	Err     error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.ClipRef, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober measures clip durations, consulting the cache first.
type Prober struct {
	tool   mediatool.Tool
	cache  *DurationCache
	logger *slog.Logger
}

func NewProber(tool mediatool.Tool, cache *DurationCache, logger *slog.Logger) *Prober {
	return &Prober{tool: tool, cache: cache, logger: logger}
}

// ProbeDuration returns the clip duration in seconds. When the tool output
// carries no duration line the result is 0 and nothing is cached. When the
// tool cannot be run even against the bare local path, the result is 0 with
// a *ProbeError.
func (p *Prober) ProbeDuration(ctx context.Context, clipRef string) (float64, error) {
	if d, ok := p.cache.Get(ctx, clipRef); ok {
		return d, nil
	}

	session, err := p.tool.Probe(ctx, clipRef)
	if err != nil {
		if seconds, ok := p.partial(session, err); ok {
			return p.remember(ctx, clipRef, seconds), nil
		}
		local := LocalPath(clipRef)
		if p.logger != nil {
			p.logger.Warn("probe failed, retrying with local path", "error", err)
		}
		session, err = p.tool.Probe(ctx, local)
		if err != nil {
			if seconds, ok := p.partial(session, err); ok {
				return p.remember(ctx, clipRef, seconds), nil
			}
			return 0, &ProbeError{ClipRef: clipRef, Err: err}
		}
	}

	seconds, ok := ParseDuration(session.Log)
	if !ok {
		if p.logger != nil {
			p.logger.Warn("no duration in probe output", "exit_code", session.ReturnCode.Value)
		}
		return 0, nil
	}
	return p.remember(ctx, clipRef, seconds), nil
}

// partial recovers the duration from a probe that was cut short. The
// container header, and with it the Duration line, is printed before
// decoding starts, so a timed out decode of a long clip still carries it.
func (p *Prober) partial(session mediatool.Session, err error) (float64, bool) {
	seconds, ok := ParseDuration(session.Log)
	if ok && p.logger != nil {
		p.logger.Warn("probe did not finish, using reported duration", "error", err, "seconds", seconds)
	}
	return seconds, ok
}

func (p *Prober) remember(ctx context.Context, clipRef string, seconds float64) float64 {
	if err := p.cache.Put(ctx, clipRef, seconds); err != nil && p.logger != nil {
		p.logger.Error("failed to persist duration cache", "error", err)
	}
	return seconds
}

// ParseDuration extracts the first HH:MM:SS.ff duration from tool output.
func ParseDuration(log string) (float64, bool) {
	m := durationRe.FindStringSubmatch(log)
	if m == nil {
		return 0, false
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	ss, _ := strconv.ParseFloat(m[3], 64)
	return float64(hh*3600+mm*60) + ss, true
}

// LocalPath strips a URI scheme prefix such as file:// from ref.
func LocalPath(ref string) string {
	i := strings.Index(ref, "://")
	if i <= 0 {
		return ref
	}
	for _, r := range ref[:i] {
		if !isSchemeRune(r) {
			return ref
		}
	}
	return ref[i+3:]
}

func isSchemeRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '+' || r == '-' || r == '.'
}
