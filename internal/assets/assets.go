// Package assets bundles the images shipped with the agent.
package assets

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

//go:embed watermark.png
var WatermarkPNG []byte

// Icon is the tray icon. The watermark badge doubles as the icon.
var Icon = WatermarkPNG

// Watermark resolves the watermark image to a file the media tool can read.
// A configured override wins; otherwise the bundled image is materialized
// in CacheDir on first use.
type Watermark struct {
	Override string
	CacheDir string

	mu       sync.Mutex
	resolved string
}

func (w *Watermark) WatermarkPath(ctx context.Context) (string, error) {
	if w.Override != "" {
		info, err := os.Stat(w.Override)
		if err != nil {
			return "", fmt.Errorf("watermark override: %w", err)
		}
		if info.IsDir() {
			return "", fmt.Errorf("watermark override is a directory: %s", w.Override)
		}
		return w.Override, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.resolved != "" {
		if _, err := os.Stat(w.resolved); err == nil {
			return w.resolved, nil
		}
	}

	path := filepath.Join(w.CacheDir, "watermark.png")
	existing, err := os.ReadFile(path)
	if err != nil || !bytes.Equal(existing, WatermarkPNG) {
		if err := os.MkdirAll(w.CacheDir, 0755); err != nil {
			return "", fmt.Errorf("create asset cache: %w", err)
		}
		if err := os.WriteFile(path, WatermarkPNG, 0644); err != nil {
			return "", fmt.Errorf("write watermark: %w", err)
		}
	}
	w.resolved = path
	return path, nil
}
