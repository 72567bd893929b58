package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"golang.org/x/exp/slices"
)

const maxNameRunes = 64

// SanitizeName makes a project name safe for a file name. Control characters
// are dropped, anything outside letters, digits and " -_.()" becomes '_'.
// The result is trimmed and cut to maxLen runes when maxLen > 0.
func SanitizeName(s string, maxLen int) string {
	cleaned := strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case unicode.IsControl(r):
			return -1
		case unicode.IsLetter(r), unicode.IsDigit(r), strings.ContainsRune(" -_.()", r):
			return r
		}
		return '_'
	}, s))

	if runes := []rune(cleaned); maxLen > 0 && len(runes) > maxLen {
		cleaned = strings.TrimSpace(string(runes[:maxLen]))
	}
	return cleaned
}

// OutputFileName names the export after the project and the start time.
func OutputFileName(projectName string, at time.Time) string {
	name := strings.ReplaceAll(SanitizeName(projectName, maxNameRunes), " ", "_")
	if name == "" {
		name = "untitled"
	}
	return fmt.Sprintf("studiolapse_%s_%d.mp4", name, at.UnixMilli())
}

// ValidateScratchDir rejects scratch locations that are empty, unclean,
// escape upwards or are not existing directories.
func ValidateScratchDir(dir string) error {
	switch {
	case strings.TrimSpace(dir) == "":
		return errors.New("scratch dir is required")
	case slices.Contains(strings.Split(filepath.ToSlash(dir), "/"), ".."):
		return errors.New("scratch dir cannot contain path traversal")
	case filepath.Clean(dir) != dir:
		return errors.New("scratch dir must be a clean path")
	}

	info, err := os.Stat(dir)
	if errors.Is(err, os.ErrNotExist) {
		return errors.New("scratch dir does not exist")
	}
	if err != nil {
		return fmt.Errorf("invalid scratch dir: %w", err)
	}
	if !info.IsDir() {
		return errors.New("scratch dir is not a directory")
	}
	return nil
}
