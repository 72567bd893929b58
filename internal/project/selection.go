package project

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
)

// Selection is the persisted pointer to the project the user is working in.
// It may reference a project that was deleted elsewhere; Reconcile clears it.
type Selection struct {
	kv     kvstore.Store
	store  Store
	logger *slog.Logger
}

func NewSelection(kv kvstore.Store, store Store, logger *slog.Logger) *Selection {
	return &Selection{kv: kv, store: store, logger: logger}
}

// Current returns the selected project id, or "" when nothing is selected.
func (s *Selection) Current(ctx context.Context) (string, error) {
	id, _, err := s.kv.Get(ctx, kvstore.KeySelectedProject)
	if err != nil {
		return "", fmt.Errorf("read selection: %w", err)
	}
	return id, nil
}

// Set persists id as the selection. An empty id removes it.
func (s *Selection) Set(ctx context.Context, id string) error {
	if id == "" {
		if err := s.kv.Remove(ctx, kvstore.KeySelectedProject); err != nil {
			return fmt.Errorf("clear selection: %w", err)
		}
		return nil
	}
	if err := s.kv.Set(ctx, kvstore.KeySelectedProject, id); err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}

// Reconcile clears the selection when it names a project that no longer
// exists and returns the surviving selection.
func (s *Selection) Reconcile(ctx context.Context) (string, error) {
	id, err := s.Current(ctx)
	if err != nil || id == "" {
		return "", err
	}

	projects, err := s.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load projects: %w", err)
	}
	if indexOf(projects, id) >= 0 {
		return id, nil
	}

	if s.logger != nil {
		s.logger.Warn("selected project missing, clearing selection", "project_id", id)
	}
	if err := s.Set(ctx, ""); err != nil {
		return "", err
	}
	return "", nil
}
