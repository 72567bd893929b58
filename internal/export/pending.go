package export

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

// PendingStore is the single pending-job slot. Saving overwrites whatever
// job was there.
type PendingStore struct {
	kv     kvstore.Store
	logger *slog.Logger
}

func NewPendingStore(kv kvstore.Store, logger *slog.Logger) *PendingStore {
	return &PendingStore{kv: kv, logger: logger}
}

// Load returns the pending job, or false when the slot is empty. An
// unreadable slot is logged and reported as empty.
func (s *PendingStore) Load(ctx context.Context) (*Job, bool, error) {
	var job Job
	found, err := kvstore.GetJSON(ctx, s.kv, kvstore.KeyPendingExport, &job)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to read pending export", "error", err)
		}
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	return &job, true, nil
}

func (s *PendingStore) Save(ctx context.Context, job Job) error {
	if err := kvstore.SetJSON(ctx, s.kv, kvstore.KeyPendingExport, job); err != nil {
		return fmt.Errorf("save pending export: %w", err)
	}
	return nil
}

func (s *PendingStore) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, kvstore.KeyPendingExport); err != nil {
		return fmt.Errorf("clear pending export: %w", err)
	}
	return nil
}

// Prepare snapshots p into a new job and stores it in the slot.
func (s *PendingStore) Prepare(ctx context.Context, p *project.Project, targetSec int) (*Job, error) {
	job, err := NewJob(p, targetSec)
	if err != nil {
		return nil, err
	}
	if err := s.Save(ctx, job); err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Info("export prepared",
			"project_id", job.ProjectID,
			"clips", len(job.ClipURIs),
			"target_sec", job.TargetDurationSec,
		)
	}
	return &job, nil
}
