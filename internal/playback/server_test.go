package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeClip(t *testing.T, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = byte('a' + i%26)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("write clip: %v", err)
	}
	return path
}

func TestServeFile_Whole(t *testing.T) {
	path := writeClip(t, "clip.mov", 100)
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/playback", nil)
	if err := s.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "video/quicktime" {
		t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.Len() != 100 || rec.Header().Get("Content-Length") != "100" {
		t.Errorf("body length = %d, Content-Length = %s", rec.Body.Len(), rec.Header().Get("Content-Length"))
	}
}

func TestServeFile_Range(t *testing.T) {
	path := writeClip(t, "out.mp4", 100)
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/playback", nil)
	req.Header.Set("Range", "bytes=26-51")
	if err := s.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", rec.Code)
	}
	if rec.Header().Get("Content-Range") != "bytes 26-51/100" {
		t.Errorf("Content-Range = %q", rec.Header().Get("Content-Range"))
	}
	if rec.Body.String() != "abcdefghijklmnopqrstuvwxyz" {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestServeFile_Unsatisfiable(t *testing.T) {
	path := writeClip(t, "out.mp4", 10)
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/playback", nil)
	req.Header.Set("Range", "bytes=50-")
	if err := s.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Errorf("status = %d, want 416", rec.Code)
	}
	if rec.Header().Get("Content-Range") != "bytes */10" {
		t.Errorf("Content-Range = %q", rec.Header().Get("Content-Range"))
	}
}

func TestServeFile_MalformedRangeSendsWholeFile(t *testing.T) {
	path := writeClip(t, "out.mp4", 10)
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/playback", nil)
	req.Header.Set("Range", "frames=1-2")
	if err := s.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 10 {
		t.Errorf("status = %d, body = %d bytes", rec.Code, rec.Body.Len())
	}
}

func TestServeFile_NotFoundAndHead(t *testing.T) {
	s := NewServer(nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/playback", nil)
	if err := s.ServeFile(rec, req, filepath.Join(t.TempDir(), "gone.mov")); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	path := writeClip(t, "clip.mov", 40)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodHead, "/playback", nil)
	if err := s.ServeFile(rec, req, path); err != nil {
		t.Fatalf("ServeFile() error = %v", err)
	}
	if rec.Code != http.StatusOK || rec.Body.Len() != 0 || rec.Header().Get("Content-Length") != "40" {
		t.Errorf("HEAD status = %d, body = %d, length = %s", rec.Code, rec.Body.Len(), rec.Header().Get("Content-Length"))
	}
}
