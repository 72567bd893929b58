package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLoggerTo_JSONWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRunID(WithProjectID(WithComponent(NewLoggerTo(&buf, "info"), "export"), "42"), "run-1")

	logger.Debug("hidden")
	logger.Info("export started")

	var entry map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
		t.Fatalf("log line is not a single JSON object: %v (%s)", err, buf.String())
	}
	if entry["msg"] != "export started" || entry["component"] != "export" ||
		entry["project_id"] != "42" || entry["run_id"] != "run-1" {
		t.Errorf("entry = %v", entry)
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcd1234efgh5678"); got != "abcd...5678" {
		t.Errorf("SanitizeToken() = %q", got)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	got := SanitizePath(filepath.Join(home, "clips", "a.mov"))
	if got != "~"+string(filepath.Separator)+filepath.Join("clips", "a.mov") {
		t.Errorf("SanitizePath() = %q", got)
	}
	if got := SanitizePath("/elsewhere/a.mov"); got != "/elsewhere/a.mov" && home != "/" {
		t.Errorf("SanitizePath(outside) = %q", got)
	}
}
