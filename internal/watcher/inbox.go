package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/studiolapse/studiolapse-agent/internal/medialib"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

var ErrNoSelection = errors.New("no project selected for inbox clip")

type ClipAdder interface {
	AddClip(ctx context.Context, id, uri string) (*project.Clip, error)
}

type SelectionReader interface {
	Reconcile(ctx context.Context) (string, error)
}

// Inbox turns finished recordings into clips of the selected project. With
// a Library set, each raw clip is also saved to the album.
type Inbox struct {
	Projects  ClipAdder
	Selection SelectionReader
	Library   medialib.Library
	Album     string
	Logger    *slog.Logger
}

// Handle processes one watcher event. Only creations add clips; a file
// already in the project is ignored.
func (i *Inbox) Handle(ctx context.Context, path string, event EventType) error {
	if event != EventCreate {
		return nil
	}

	id, err := i.Selection.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("read selection: %w", err)
	}
	if id == "" {
		i.Logger.Warn("recording ignored, no project selected", "file", filepath.Base(path))
		return ErrNoSelection
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	_, err = i.Projects.AddClip(ctx, id, "file://"+abs)
	if errors.Is(err, project.ErrDuplicateClip) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("add clip: %w", err)
	}
	i.Logger.Info("recording added to project", "project_id", id, "file", filepath.Base(abs))

	if i.Library == nil {
		return nil
	}
	granted, err := i.Library.RequestPermission(ctx)
	if err != nil {
		return fmt.Errorf("request library access: %w", err)
	}
	if !granted {
		return medialib.ErrPermissionDenied
	}
	album := i.Album
	if album == "" {
		album = medialib.DefaultAlbum
	}
	if _, err := medialib.SaveToAlbum(ctx, i.Library, abs, album); err != nil {
		return fmt.Errorf("save clip to album: %w", err)
	}
	return nil
}
