package export

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Fixed-width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// RunRecord is one export attempt in the export_runs history table.
type RunRecord struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	ProjectName       string    `json:"project_name"`
	TargetDurationSec int       `json:"target_duration_sec"`
	ClipCount         int       `json:"clip_count"`
	SpeedFactor       float64   `json:"speed_factor"`
	Status            State     `json:"status"`
	ManifestPath      string    `json:"manifest_path,omitempty"`
	OutputPath        string    `json:"output_path,omitempty"`
	Error             string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

type RunRepository interface {
	CreateRun(ctx context.Context, run *RunRecord) error
	UpdateRun(ctx context.Context, run *RunRecord) error
	GetRun(ctx context.Context, id string) (*RunRecord, error)
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)
	MarkInterrupted(ctx context.Context) (int64, error)
}

type SQLiteRunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

func NewRunID() string {
	return uuid.New().String()
}

func (r *SQLiteRunRepository) CreateRun(ctx context.Context, run *RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO export_runs (id, project_id, project_name, target_duration_sec, clip_count,
			speed_factor, status, manifest_path, output_path, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.ProjectID, run.ProjectName, run.TargetDurationSec, run.ClipCount,
		run.SpeedFactor, string(run.Status), nullString(run.ManifestPath), nullString(run.OutputPath),
		nullString(run.Error), run.CreatedAt.UTC().Format(timeLayout), run.UpdatedAt.UTC().Format(timeLayout))
	return err
}

func (r *SQLiteRunRepository) UpdateRun(ctx context.Context, run *RunRecord) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE export_runs SET speed_factor = ?, status = ?, manifest_path = ?, output_path = ?,
			error = ?, updated_at = ?
		WHERE id = ?
	`, run.SpeedFactor, string(run.Status), nullString(run.ManifestPath), nullString(run.OutputPath),
		nullString(run.Error), run.UpdatedAt.UTC().Format(timeLayout), run.ID)
	return err
}

func (r *SQLiteRunRepository) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, project_id, project_name, target_duration_sec, clip_count, speed_factor,
			status, manifest_path, output_path, error, created_at, updated_at
		FROM export_runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

func (r *SQLiteRunRepository) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, project_id, project_name, target_duration_sec, clip_count, speed_factor,
			status, manifest_path, output_path, error, created_at, updated_at
		FROM export_runs ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*RunRecord{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// MarkInterrupted fails runs still recorded as in flight. Only the holder of
// the export lock may call it: without the lock a live process could own
// those runs.
func (r *SQLiteRunRepository) MarkInterrupted(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE export_runs SET status = ?, error = 'interrupted by restart', updated_at = ?
		WHERE status IN (?, ?)
	`, string(StateFailed), time.Now().UTC().Format(timeLayout), string(StatePreparing), string(StateExporting))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var run RunRecord
	var status string
	var manifestPath, outputPath, errMsg sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&run.ID, &run.ProjectID, &run.ProjectName, &run.TargetDurationSec, &run.ClipCount,
		&run.SpeedFactor, &status, &manifestPath, &outputPath, &errMsg, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	run.Status = State(status)
	run.ManifestPath = manifestPath.String
	run.OutputPath = outputPath.String
	run.Error = errMsg.String
	run.CreatedAt = parseTime(createdAt)
	run.UpdatedAt = parseTime(updatedAt)
	return &run, nil
}

// parseTime accepts both RFC3339 and sqlite's datetime('now') layout.
func parseTime(s string) time.Time {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	t, _ := time.Parse("2006-01-02 15:04:05", s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
