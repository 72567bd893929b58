package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type event struct {
	path string
	kind EventType
}

func newTestWatcher(t *testing.T) (*FSWatcher, string, chan event) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w := NewFSWatcher(logger, 100*time.Millisecond)
	events := make(chan event, 16)
	w.OnChange(func(path string, kind EventType) { events <- event{path, kind} })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		w.Stop()
	})
	if err := w.Watch(ctx, dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	return w, dir, events
}

func expectEvent(t *testing.T, events <-chan event) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher event")
	}
	return event{}
}

func expectNoEvent(t *testing.T, events <-chan event, wait time.Duration) {
	t.Helper()
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %s %s", ev.kind, ev.path)
	case <-time.After(wait):
	}
}

func TestIsVideoFile(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{"/rec/clip.mov", true},
		{"/rec/clip.MP4", true},
		{"clip.m4v", true},
		{"/rec/.clip.mov", false},
		{"/rec/notes.txt", false},
		{"/rec/clip", false},
	}
	for _, tt := range tests {
		if got := IsVideoFile(tt.path); got != tt.want {
			t.Errorf("IsVideoFile(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestFSWatcher_CreateReportedOnceAfterWrites(t *testing.T) {
	_, dir, events := newTestWatcher(t)
	path := filepath.Join(dir, "take1.mov")

	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	for i := 0; i < 3; i++ {
		f.Write([]byte("frame"))
		time.Sleep(20 * time.Millisecond)
	}
	f.Close()

	ev := expectEvent(t, events)
	if ev.path != path || ev.kind != EventCreate {
		t.Errorf("event = %s %s, want create %s", ev.kind, ev.path, path)
	}
	expectNoEvent(t, events, 300*time.Millisecond)
}

func TestFSWatcher_IgnoresFilteredFiles(t *testing.T) {
	_, dir, events := newTestWatcher(t)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".partial.mov"), []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectNoEvent(t, events, 400*time.Millisecond)
}

func TestFSWatcher_Delete(t *testing.T) {
	_, dir, events := newTestWatcher(t)
	path := filepath.Join(dir, "take2.mp4")

	if err := os.WriteFile(path, []byte("x"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ev := expectEvent(t, events); ev.kind != EventCreate {
		t.Fatalf("first event = %s, want create", ev.kind)
	}

	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	ev := expectEvent(t, events)
	if ev.path != path || ev.kind != EventDelete {
		t.Errorf("event = %s %s, want delete %s", ev.kind, ev.path, path)
	}
}

func TestFSWatcher_WatchRejectsFile(t *testing.T) {
	w := NewFSWatcher(slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	file := filepath.Join(t.TempDir(), "clip.mov")
	os.WriteFile(file, []byte("x"), 0644)

	if err := w.Watch(context.Background(), file); err == nil {
		t.Error("Watch(file) error = nil, want error")
	}
	if err := w.Watch(context.Background(), filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("Watch(missing) error = nil, want error")
	}
}

func TestFSWatcher_StopIsIdempotent(t *testing.T) {
	w, _, _ := newTestWatcher(t)
	if err := w.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := w.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if err := w.Watch(context.Background(), t.TempDir()); err == nil {
		t.Error("Watch() after Stop error = nil, want error")
	}
}
