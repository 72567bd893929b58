package mediatool

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("write fake ffmpeg: %v", err)
	}
	return path
}

func TestReturnCode(t *testing.T) {
	tests := []struct {
		rc          ReturnCode
		wantSuccess bool
		wantCancel  bool
	}{
		{ReturnCode{Value: 0}, true, false},
		{ReturnCode{Value: 1}, false, false},
		{ReturnCode{Value: -1}, false, false},
		{ReturnCode{Value: 255, Cancelled: true}, false, true},
		{ReturnCode{Value: 0, Cancelled: true}, false, true},
	}
	for _, tt := range tests {
		if got := tt.rc.IsSuccess(); got != tt.wantSuccess {
			t.Errorf("%+v.IsSuccess() = %v, want %v", tt.rc, got, tt.wantSuccess)
		}
		if got := tt.rc.IsCancel(); got != tt.wantCancel {
			t.Errorf("%+v.IsCancel() = %v, want %v", tt.rc, got, tt.wantCancel)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	n, err := lw.Write([]byte(" world of test data"))
	if err != nil || n != 19 {
		t.Errorf("Write() = (%d, %v), want (19, nil)", n, err)
	}
	if got := buf.String(); got != " test data" {
		t.Errorf("after overflow got %q, want %q", got, " test data")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("0123456789", 4); got != "...6789" {
		t.Errorf("truncate() = %q, want ...6789", got)
	}
	s := Session{Log: "abcdef"}
	if got := s.LogTail(3); got != "...def" {
		t.Errorf("LogTail(3) = %q, want ...def", got)
	}
}

func TestFFmpeg_ProbeCapturesStderr(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "  Duration: 00:00:12.50, start: 0.000000" >&2
exit 1`)
	f := NewFFmpeg(Config{BinaryPath: bin, Logger: testLogger()})

	session, err := f.Probe(context.Background(), "/clips/a.mov")
	if err != nil {
		t.Fatalf("Probe() error = %v", err)
	}
	if session.ReturnCode.Value != 1 || session.ReturnCode.IsSuccess() {
		t.Errorf("ReturnCode = %+v, want exit 1", session.ReturnCode)
	}
	if !strings.Contains(session.Log, "Duration: 00:00:12.50") {
		t.Errorf("Log = %q, want duration line", session.Log)
	}
	want := []string{"-hide_banner", "-i", "/clips/a.mov", "-f", "null", "-"}
	if strings.Join(session.Args, " ") != strings.Join(want, " ") {
		t.Errorf("Args = %v, want %v", session.Args, want)
	}
}

func TestFFmpeg_EncodePassesArgs(t *testing.T) {
	bin := fakeFFmpeg(t, `echo "$@"`)
	f := NewFFmpeg(Config{BinaryPath: bin, Logger: testLogger()})

	session, err := f.Encode(context.Background(), []string{"-y", "-i", "in.txt", "out.mp4"})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	if !session.ReturnCode.IsSuccess() {
		t.Fatalf("ReturnCode = %+v, want success", session.ReturnCode)
	}
	if strings.TrimSpace(session.Log) != "-y -i in.txt out.mp4" {
		t.Errorf("Log = %q", session.Log)
	}
}

func TestFFmpeg_MissingBinary(t *testing.T) {
	f := NewFFmpeg(Config{BinaryPath: filepath.Join(t.TempDir(), "nope"), Logger: testLogger()})

	session, err := f.Probe(context.Background(), "/clips/a.mov")
	if err == nil {
		t.Fatal("Probe() should fail when the binary is missing")
	}
	if session.ReturnCode.IsSuccess() {
		t.Error("ReturnCode should not be success")
	}
}

func TestFFmpeg_Cancelled(t *testing.T) {
	bin := fakeFFmpeg(t, `exec sleep 5`)
	f := NewFFmpeg(Config{BinaryPath: bin, Logger: testLogger()})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	session, err := f.Encode(ctx, []string{"x"})
	if err == nil {
		t.Fatal("Encode() should fail when cancelled")
	}
	if !session.ReturnCode.IsCancel() {
		t.Errorf("ReturnCode = %+v, want cancelled", session.ReturnCode)
	}
}

func TestParseProbe(t *testing.T) {
	data := `{
		"streams": [
			{"codec_type": "audio", "codec_name": "aac", "duration": "9.0"},
			{"codec_type": "video", "codec_name": "mpeg4", "width": 1080, "height": 1920}
		],
		"format": {"duration": "30.033", "size": "2048000"}
	}`

	info, err := parseProbe(data)
	if err != nil {
		t.Fatalf("parseProbe() error = %v", err)
	}
	if info.Codec != "mpeg4" || info.Width != 1080 || info.Height != 1920 {
		t.Errorf("info = %+v", info)
	}
	if info.Duration != 30.033 {
		t.Errorf("Duration = %v, want container fallback 30.033", info.Duration)
	}
	if info.Size != 2048000 {
		t.Errorf("Size = %d, want 2048000", info.Size)
	}

	if _, err := parseProbe(`{"streams": [{"codec_type": "audio"}]}`); err == nil {
		t.Error("parseProbe() should fail without a video stream")
	}
	if _, err := parseProbe(`not json`); err == nil {
		t.Error("parseProbe() should fail on invalid JSON")
	}
}
