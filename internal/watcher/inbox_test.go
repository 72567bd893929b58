package watcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
	"github.com/studiolapse/studiolapse-agent/internal/medialib"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

func newInboxFixture(t *testing.T, withLibrary bool) (*Inbox, *project.Service, *project.Selection, string) {
	t.Helper()
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	kv := kvstore.NewMemoryStore()
	store := project.NewKVStore(kv)
	selection := project.NewSelection(kv, store, logger)
	projects := project.NewService(store, selection, logger)

	inbox := &Inbox{
		Projects:  projects,
		Selection: selection,
		Album:     "Inbox Test",
		Logger:    logger,
	}
	if withLibrary {
		inbox.Library = medialib.NewDirLibrary(filepath.Join(dir, "library"), true, logger)
	}
	return inbox, projects, selection, dir
}

func writeRecording(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("recording"), 0644); err != nil {
		t.Fatalf("write recording: %v", err)
	}
	return path
}

func TestInbox_AddsToSelectedProject(t *testing.T) {
	ctx := context.Background()
	inbox, projects, selection, dir := newInboxFixture(t, false)

	p, _ := projects.Create(ctx, "Inbox")
	selection.Set(ctx, p.ID)
	path := writeRecording(t, dir, "take.mov")

	if err := inbox.Handle(ctx, path, EventCreate); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	// a repeated create for the same file is not an error
	if err := inbox.Handle(ctx, path, EventCreate); err != nil {
		t.Fatalf("second Handle() error = %v", err)
	}

	got, _ := projects.Get(ctx, p.ID)
	if len(got.Clips) != 1 || got.Clips[0].URI != "file://"+path {
		t.Errorf("clips = %+v", got.Clips)
	}
}

func TestInbox_NoSelection(t *testing.T) {
	ctx := context.Background()
	inbox, _, _, dir := newInboxFixture(t, false)
	path := writeRecording(t, dir, "take.mov")

	if err := inbox.Handle(ctx, path, EventCreate); !errors.Is(err, ErrNoSelection) {
		t.Errorf("Handle() error = %v, want ErrNoSelection", err)
	}
}

func TestInbox_IgnoresNonCreate(t *testing.T) {
	ctx := context.Background()
	inbox, projects, selection, dir := newInboxFixture(t, false)
	p, _ := projects.Create(ctx, "Inbox")
	selection.Set(ctx, p.ID)
	path := writeRecording(t, dir, "take.mov")

	for _, ev := range []EventType{EventModify, EventDelete} {
		if err := inbox.Handle(ctx, path, ev); err != nil {
			t.Errorf("Handle(%s) error = %v", ev, err)
		}
	}
	got, _ := projects.Get(ctx, p.ID)
	if len(got.Clips) != 0 {
		t.Errorf("clips = %+v, want none", got.Clips)
	}
}

func TestInbox_SavesToAlbum(t *testing.T) {
	ctx := context.Background()
	inbox, projects, selection, dir := newInboxFixture(t, true)
	p, _ := projects.Create(ctx, "Inbox")
	selection.Set(ctx, p.ID)
	path := writeRecording(t, dir, "take.mov")

	if err := inbox.Handle(ctx, path, EventCreate); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}
	album, err := inbox.Library.GetAlbum(ctx, "Inbox Test")
	if err != nil || album == nil {
		t.Fatalf("GetAlbum() = %v, %v, want album", album, err)
	}
	entries, err := os.ReadDir(album.Path)
	if err != nil || len(entries) != 1 {
		t.Errorf("album entries = %d, err %v, want 1", len(entries), err)
	}
}

func TestInbox_LibraryAccessRevoked(t *testing.T) {
	ctx := context.Background()
	inbox, projects, selection, dir := newInboxFixture(t, false)
	inbox.Library = medialib.NewDirLibrary(filepath.Join(dir, "library"), false, inbox.Logger)
	p, _ := projects.Create(ctx, "Inbox")
	selection.Set(ctx, p.ID)
	path := writeRecording(t, dir, "take.mov")

	err := inbox.Handle(ctx, path, EventCreate)
	if !errors.Is(err, medialib.ErrPermissionDenied) {
		t.Fatalf("Handle() error = %v, want ErrPermissionDenied", err)
	}
	got, _ := projects.Get(ctx, p.ID)
	if len(got.Clips) != 1 {
		t.Errorf("clips = %d, want 1 (clip is kept when the album save is refused)", len(got.Clips))
	}
}
