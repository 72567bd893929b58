package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
	"github.com/studiolapse/studiolapse-agent/internal/mediatool"
	"github.com/studiolapse/studiolapse-agent/internal/medialib"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

type State string

const (
	StateIdle      State = "idle"
	StatePreparing State = "preparing"
	StateExporting State = "exporting"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

// Busy reports whether an export is in flight.
func (s State) Busy() bool {
	return s == StatePreparing || s == StateExporting
}

// Observer is notified of every state transition with a snapshot of the
// current attempt.
type Observer func(from, to State, report Report)

// EncodeError carries the session of a failed encode so callers can show
// the tool's log tail.
type EncodeError struct {
	Session mediatool.Session
	Err     error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("encode failed: %v", e.Err)
	}
	return fmt.Sprintf("encode failed with exit code %d", e.Session.ReturnCode.Value)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// WatermarkSource resolves the watermark image to a local file.
type WatermarkSource interface {
	WatermarkPath(ctx context.Context) (string, error)
}

// Report describes the current or most recent export attempt.
type Report struct {
	RunID             string          `json:"run_id"`
	State             State           `json:"state"`
	ProjectID         string          `json:"project_id,omitempty"`
	ProjectName       string          `json:"project_name,omitempty"`
	TargetDurationSec int             `json:"target_duration_sec,omitempty"`
	ClipCount         int             `json:"clip_count"`
	TotalSourceSec    float64         `json:"total_source_sec"`
	SpeedFactor       float64         `json:"speed_factor"`
	ManifestPath      string          `json:"manifest_path,omitempty"`
	OutputPath        string          `json:"output_path,omitempty"`
	TimelinePath      string          `json:"timeline_path,omitempty"`
	Timeline          []TimelineEntry `json:"timeline,omitempty"`
	Asset             *medialib.Asset `json:"asset,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
	Diagnostic        string          `json:"diagnostic,omitempty"`
	StartedAt         time.Time       `json:"started_at"`
	FinishedAt        *time.Time      `json:"finished_at,omitempty"`
}

type ExecutorConfig struct {
	Pending    *PendingStore
	Prober     *Prober
	Tool       mediatool.Tool
	Library    medialib.Library
	Watermark  WatermarkSource
	Runs       RunRepository // optional
	Lock       Lock          // optional, process-local when nil
	KV         kvstore.Store // optional, persists the last report
	ScratchDir string
	Album      string
	Build      BuildOptions
	Inspect    func(path string) (*mediatool.MediaInfo, error) // optional
	Logger     *slog.Logger
}

// Executor runs at most one export at a time across every process sharing
// the lock. A request while an export is preparing or encoding is rejected
// with ErrBusy, not queued.
type Executor struct {
	cfg ExecutorConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	last      Report
	observers []Observer
	release   func()
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	if cfg.Album == "" {
		cfg.Album = medialib.DefaultAlbum
	}
	if cfg.ScratchDir == "" {
		cfg.ScratchDir = filepath.Join(os.TempDir(), "studiolapse")
	}
	cfg.ScratchDir = filepath.Clean(cfg.ScratchDir)
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	}
	if cfg.Lock == nil {
		cfg.Lock = localLock{}
	}
	return &Executor{cfg: cfg, now: time.Now, state: StateIdle}
}

func (e *Executor) Subscribe(o Observer) {
	e.mu.Lock()
	e.observers = append(e.observers, o)
	e.mu.Unlock()
}

func (e *Executor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Current returns the state and a snapshot of the latest attempt seen by
// this process.
func (e *Executor) Current() (State, Report) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.last
}

// Run executes the pending job and blocks until it finishes. The returned
// error is the failure cause; the report is returned in both cases.
func (e *Executor) Run(ctx context.Context) (Report, error) {
	report, err := e.begin(ctx)
	if err != nil {
		return Report{}, err
	}
	return e.execute(ctx, report)
}

// Start claims the executor and runs the pending job in the background.
func (e *Executor) Start(ctx context.Context) (Report, error) {
	report, err := e.begin(ctx)
	if err != nil {
		return Report{}, err
	}
	go e.execute(context.WithoutCancel(ctx), report)
	return report, nil
}

// Prepare snapshots p into the pending slot. The slot is only written
// while no export runs anywhere.
func (e *Executor) Prepare(ctx context.Context, p *project.Project, targetSec int) (*Job, error) {
	var job *Job
	err := e.claimed(ctx, func() error {
		var err error
		job, err = e.cfg.Pending.Prepare(ctx, p, targetSec)
		return err
	})
	return job, err
}

// Dismiss clears the pending job and returns a failed executor to idle.
func (e *Executor) Dismiss(ctx context.Context) error {
	var failed bool
	err := e.claimed(ctx, func() error {
		if err := e.cfg.Pending.Clear(ctx); err != nil {
			return err
		}
		failed = e.state == StateFailed
		return nil
	})
	if err != nil {
		return err
	}
	if failed {
		e.transitionFrom(StateFailed, StateIdle)
	}
	e.cfg.Logger.Info("pending export dismissed")
	return nil
}

// Recover fails runs left in flight by a process that died mid-export. It
// does nothing while another process holds the export lock.
func (e *Executor) Recover(ctx context.Context) error {
	err := e.claimed(ctx, func() error {
		e.markInterrupted(ctx)
		return nil
	})
	if errors.Is(err, ErrBusy) {
		return nil
	}
	return err
}

// claimed runs fn while holding both the in-process state and the shared
// export lock.
func (e *Executor) claimed(ctx context.Context, fn func() error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state.Busy() {
		return ErrBusy
	}
	release, err := e.cfg.Lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return fn()
}

func (e *Executor) markInterrupted(ctx context.Context) {
	if e.cfg.Runs == nil {
		return
	}
	n, err := e.cfg.Runs.MarkInterrupted(ctx)
	if err != nil {
		e.cfg.Logger.Warn("failed to mark interrupted export runs", "error", err)
		return
	}
	if n > 0 {
		e.cfg.Logger.Warn("marked interrupted export runs as failed", "count", n)
	}
}

// LastReport returns the persisted report of the most recent attempt.
func (e *Executor) LastReport(ctx context.Context) (*Report, error) {
	if e.cfg.KV == nil {
		_, r := e.Current()
		if r.RunID == "" {
			return nil, nil
		}
		return &r, nil
	}
	var r Report
	found, err := kvstore.GetJSON(ctx, e.cfg.KV, kvstore.KeyLastExport, &r)
	if err != nil || !found {
		return nil, err
	}
	return &r, nil
}

func (e *Executor) begin(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.state.Busy() {
		e.mu.Unlock()
		return Report{}, ErrBusy
	}
	release, err := e.cfg.Lock.Acquire(ctx)
	if err != nil {
		e.mu.Unlock()
		return Report{}, err
	}
	// Holding the lock, any run still marked in flight has no live owner.
	e.markInterrupted(ctx)

	e.release = release
	report := Report{
		RunID:     NewRunID(),
		State:     StatePreparing,
		StartedAt: e.now(),
	}
	from := e.state
	e.state = StatePreparing
	e.last = report
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o(from, StatePreparing, report)
	}
	return report, nil
}

func (e *Executor) execute(ctx context.Context, report Report) (Report, error) {
	logger := e.cfg.Logger.With("run_id", report.RunID)

	job, found, err := e.cfg.Pending.Load(ctx)
	if err != nil {
		return e.fail(ctx, &report, nil, err, err.Error())
	}
	if !found {
		return e.fail(ctx, &report, nil, ErrNoPendingJob, ErrNoPendingJob.Error())
	}

	report.ProjectID = job.ProjectID
	report.ProjectName = job.ProjectName
	report.TargetDurationSec = job.TargetDurationSec
	report.ClipCount = len(job.ClipURIs)
	logger = logger.With("project_id", job.ProjectID)

	run := e.createRun(ctx, report, logger)

	if err := job.validate(); err != nil {
		return e.fail(ctx, &report, run, err, err.Error())
	}

	granted, err := e.cfg.Library.RequestPermission(ctx)
	if err != nil {
		return e.fail(ctx, &report, run, err, err.Error())
	}
	if !granted {
		return e.fail(ctx, &report, run, ErrPermissionDenied, ErrPermissionDenied.Error())
	}

	// Clips are probed one at a time; the tool is a singleton resource.
	durations := make([]float64, 0, len(job.ClipURIs))
	for i, uri := range job.ClipURIs {
		d, err := e.cfg.Prober.ProbeDuration(ctx, uri)
		var probeErr *ProbeError
		if errors.As(err, &probeErr) {
			logger.Warn("probe failed, assuming zero duration", "clip", i, "error", err)
			report.Warnings = append(report.Warnings, fmt.Sprintf("clip %d: %v", i+1, err))
			d = 0
		} else if err != nil {
			return e.fail(ctx, &report, run, err, err.Error())
		} else if d == 0 {
			report.Warnings = append(report.Warnings, fmt.Sprintf("clip %d: duration unknown, counted as 0s", i+1))
		}
		durations = append(durations, d)
		report.TotalSourceSec += d
	}

	report.SpeedFactor = ComputeSpeedFactor(durations, float64(job.TargetDurationSec))

	watermark, err := e.cfg.Watermark.WatermarkPath(ctx)
	if err != nil {
		err = fmt.Errorf("resolve watermark: %w", err)
		return e.fail(ctx, &report, run, err, err.Error())
	}

	if err := os.MkdirAll(e.cfg.ScratchDir, 0755); err != nil {
		err = fmt.Errorf("create scratch dir: %w", err)
		return e.fail(ctx, &report, run, err, err.Error())
	}
	if err := ValidateScratchDir(e.cfg.ScratchDir); err != nil {
		return e.fail(ctx, &report, run, err, err.Error())
	}

	started := e.now()
	manifestPath := filepath.Join(e.cfg.ScratchDir, "concat_"+report.RunID+".txt")
	outputPath := filepath.Join(e.cfg.ScratchDir, OutputFileName(job.ProjectName, started))

	plan, err := BuildPlan(job.ClipURIs, watermark, report.SpeedFactor, manifestPath, outputPath, e.cfg.Build)
	if err != nil {
		return e.fail(ctx, &report, run, err, err.Error())
	}
	if err := os.WriteFile(plan.ManifestPath, []byte(plan.Manifest), 0644); err != nil {
		err = fmt.Errorf("write manifest: %w", err)
		return e.fail(ctx, &report, run, err, err.Error())
	}
	report.ManifestPath = plan.ManifestPath
	report.OutputPath = outputPath

	logger.Info("export planned",
		"clips", report.ClipCount,
		"source_sec", report.TotalSourceSec,
		"target_sec", job.TargetDurationSec,
		"factor", FormatFactor(report.SpeedFactor),
	)

	e.transition(StateExporting, &report)
	e.updateRun(ctx, run, report, "", logger)

	// The encode runs to completion once started.
	session, err := e.cfg.Tool.Encode(context.WithoutCancel(ctx), plan.Args)
	if err != nil {
		encErr := &EncodeError{Session: session, Err: err}
		return e.fail(ctx, &report, run, encErr, diagnostic(session, err))
	}
	if !session.ReturnCode.IsSuccess() {
		encErr := &EncodeError{Session: session}
		return e.fail(ctx, &report, run, encErr, diagnostic(session, encErr))
	}

	e.verifyOutput(outputPath, session, logger)

	report.Timeline = BuildTimeline(job.ClipURIs, durations, report.SpeedFactor)
	timelinePath := strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".edl"
	if err := os.WriteFile(timelinePath, []byte(GenerateEDL(report.Timeline, job.ProjectName)), 0644); err != nil {
		logger.Warn("failed to write timeline", "error", err)
		report.Warnings = append(report.Warnings, "timeline not written: "+err.Error())
	} else {
		report.TimelinePath = timelinePath
	}

	asset, err := medialib.SaveToAlbum(ctx, e.cfg.Library, outputPath, e.cfg.Album)
	if err != nil {
		err = fmt.Errorf("save to media library: %w", err)
		return e.fail(ctx, &report, run, err, err.Error())
	}
	report.Asset = &asset

	finished := e.now()
	report.FinishedAt = &finished
	e.updateRun(ctx, run, report, StateSucceeded, logger)
	e.transition(StateSucceeded, &report)
	e.saveReport(ctx, report, logger)
	e.transition(StateIdle, nil)

	logger.Info("export succeeded", "album", e.cfg.Album, "asset_id", asset.ID)
	return report, nil
}

func (e *Executor) fail(ctx context.Context, report *Report, run *RunRecord, cause error, diag string) (Report, error) {
	finished := e.now()
	report.FinishedAt = &finished
	report.Diagnostic = diag

	logger := e.cfg.Logger.With("run_id", report.RunID)
	logger.Error("export failed", "error", cause)

	e.updateRun(ctx, run, *report, StateFailed, logger)
	e.transition(StateFailed, report)
	e.saveReport(ctx, *report, logger)
	return *report, cause
}

// transitionFrom moves to the next state only if the executor is still in
// from.
func (e *Executor) transitionFrom(from, to State) {
	e.mu.Lock()
	if e.state != from {
		e.mu.Unlock()
		return
	}
	e.transitionLocked(to, nil)
}

// transition moves to the next state. A nil report keeps the last snapshot.
// Leaving the busy states gives up the export lock.
func (e *Executor) transition(to State, report *Report) {
	e.mu.Lock()
	e.transitionLocked(to, report)
}

// transitionLocked is called with e.mu held and unlocks it before notifying
// observers.
func (e *Executor) transitionLocked(to State, report *Report) {
	from := e.state
	e.state = to
	if report != nil {
		report.State = to
		e.last = *report
	}
	if !to.Busy() && e.release != nil {
		e.release()
		e.release = nil
	}
	snapshot := e.last
	observers := append([]Observer(nil), e.observers...)
	e.mu.Unlock()

	for _, o := range observers {
		o(from, to, snapshot)
	}
}

func (e *Executor) createRun(ctx context.Context, report Report, logger *slog.Logger) *RunRecord {
	if e.cfg.Runs == nil {
		return nil
	}
	now := e.now()
	run := &RunRecord{
		ID:                report.RunID,
		ProjectID:         report.ProjectID,
		ProjectName:       report.ProjectName,
		TargetDurationSec: report.TargetDurationSec,
		ClipCount:         report.ClipCount,
		SpeedFactor:       1,
		Status:            StatePreparing,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := e.cfg.Runs.CreateRun(ctx, run); err != nil {
		logger.Error("failed to record export run", "error", err)
		return nil
	}
	return run
}

// updateRun records report on the run row. An empty status means the
// executor's current state.
func (e *Executor) updateRun(ctx context.Context, run *RunRecord, report Report, status State, logger *slog.Logger) {
	if run == nil {
		return
	}
	if status == "" {
		status = e.State()
	}
	run.Status = status
	run.SpeedFactor = report.SpeedFactor
	if run.SpeedFactor == 0 {
		run.SpeedFactor = 1
	}
	run.ManifestPath = report.ManifestPath
	run.OutputPath = report.OutputPath
	run.Error = report.Diagnostic
	run.UpdatedAt = e.now()
	if err := e.cfg.Runs.UpdateRun(ctx, run); err != nil {
		logger.Error("failed to update export run", "error", err)
	}
}

func (e *Executor) saveReport(ctx context.Context, report Report, logger *slog.Logger) {
	if e.cfg.KV == nil {
		return
	}
	if err := kvstore.SetJSON(ctx, e.cfg.KV, kvstore.KeyLastExport, report); err != nil {
		logger.Error("failed to persist export report", "error", err)
	}
}

func (e *Executor) verifyOutput(path string, session mediatool.Session, logger *slog.Logger) {
	attrs := []any{"duration_ms", session.Duration.Milliseconds()}
	if info, err := os.Stat(path); err == nil {
		attrs = append(attrs, "size", humanize.Bytes(uint64(info.Size())))
	}
	if e.cfg.Inspect != nil {
		media, err := e.cfg.Inspect(path)
		if err != nil {
			logger.Warn("could not inspect export", "error", err)
		} else {
			attrs = append(attrs,
				"output_sec", media.Duration,
				"width", media.Width,
				"height", media.Height,
				"codec", media.Codec,
			)
		}
	}
	logger.Info("encode complete", attrs...)
}

func diagnostic(session mediatool.Session, err error) string {
	tail := strings.TrimSpace(session.LogTail(2048))
	if tail == "" {
		return err.Error()
	}
	return tail
}
