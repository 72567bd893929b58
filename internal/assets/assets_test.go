package assets

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestWatermarkPNG_IsPNG(t *testing.T) {
	if !bytes.HasPrefix(WatermarkPNG, []byte("\x89PNG\r\n\x1a\n")) {
		t.Fatal("embedded watermark is not a PNG")
	}
}

func TestWatermark_MaterializesBundledImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	w := &Watermark{CacheDir: dir}

	path, err := w.WatermarkPath(context.Background())
	if err != nil {
		t.Fatalf("WatermarkPath() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(data, WatermarkPNG) {
		t.Error("materialized watermark differs from embedded bytes")
	}

	// a tampered file is rewritten
	if err := os.WriteFile(path, []byte("junk"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	w2 := &Watermark{CacheDir: dir}
	if _, err := w2.WatermarkPath(context.Background()); err != nil {
		t.Fatalf("WatermarkPath() error = %v", err)
	}
	data, _ = os.ReadFile(path)
	if !bytes.Equal(data, WatermarkPNG) {
		t.Error("tampered watermark was not restored")
	}
}

func TestWatermark_Override(t *testing.T) {
	custom := filepath.Join(t.TempDir(), "mine.png")
	if err := os.WriteFile(custom, []byte("png"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	w := &Watermark{Override: custom, CacheDir: t.TempDir()}
	path, err := w.WatermarkPath(context.Background())
	if err != nil || path != custom {
		t.Errorf("WatermarkPath() = (%q, %v), want (%q, nil)", path, err, custom)
	}

	missing := &Watermark{Override: filepath.Join(t.TempDir(), "nope.png")}
	if _, err := missing.WatermarkPath(context.Background()); err == nil {
		t.Error("WatermarkPath() should fail for a missing override")
	}
}
