package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name   string
		in     string
		maxLen int
		want   string
	}{
		{"control chars", " A\nB\rC\tD\x00 ", 100, "ABCD"},
		{"allowed", "Mural (v2) - final_cut.1", 100, "Mural (v2) - final_cut.1"},
		{"disallowed", `bad<>|"name/x`, 100, "bad____name_x"},
		{"truncated", "abcdefghijklmnopqrstuvwxyz", 10, "abcdefghij"},
		{"truncated then trimmed", "abcd efgh", 5, "abcd"},
		{"unicode letters", "Été 墙", 100, "Été 墙"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in, tt.maxLen); got != tt.want {
				t.Errorf("SanitizeName(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
			}
		})
	}
}

func TestOutputFileName(t *testing.T) {
	at := time.UnixMilli(1700000000123)

	tests := []struct {
		project string
		want    string
	}{
		{"Night Mural", "studiolapse_Night_Mural_1700000000123.mp4"},
		{"a/b", "studiolapse_a_b_1700000000123.mp4"},
		{"   ", "studiolapse_untitled_1700000000123.mp4"},
	}
	for _, tt := range tests {
		if got := OutputFileName(tt.project, at); got != tt.want {
			t.Errorf("OutputFileName(%q) = %q, want %q", tt.project, got, tt.want)
		}
	}
}

func TestValidateScratchDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}

	tests := []struct {
		name    string
		dir     string
		wantErr bool
	}{
		{"valid", dir, false},
		{"empty", " ", true},
		{"missing", filepath.Join(dir, "missing"), true},
		{"traversal", "/tmp/../etc", true},
		{"unclean", dir + "/./", true},
		{"file", file, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateScratchDir(tt.dir)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateScratchDir(%q) error = %v, wantErr %v", tt.dir, err, tt.wantErr)
			}
		})
	}
}
