package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/studiolapse/studiolapse-agent/internal/assets"
	"github.com/studiolapse/studiolapse-agent/internal/config"
	"github.com/studiolapse/studiolapse-agent/internal/db"
	"github.com/studiolapse/studiolapse-agent/internal/export"
	"github.com/studiolapse/studiolapse-agent/internal/kvstore"
	"github.com/studiolapse/studiolapse-agent/internal/logging"
	"github.com/studiolapse/studiolapse-agent/internal/mediatool"
	"github.com/studiolapse/studiolapse-agent/internal/medialib"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

// app holds the wired services shared by every command.
type app struct {
	cfg    *config.EnvConfig
	logger *slog.Logger

	db        *db.DB
	kv        kvstore.Store
	projects  *project.Service
	selection *project.Selection
	pending   *export.PendingStore
	runs      *export.SQLiteRunRepository
	ffmpeg    *mediatool.FFmpeg
	library   *medialib.DirLibrary
	executor  *export.Executor
}

// newApp loads configuration and opens the database. Logs go to logOut so
// CLI commands can keep stdout for their own output.
func newApp(logOut io.Writer) (*app, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.CacheDir(), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir: %w", err)
	}

	logger := logging.NewLoggerTo(logOut, cfg.LogLevel())

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	kv := kvstore.NewSQLiteStore(database.Conn())
	store := project.NewKVStore(kv)
	projectLogger := logging.WithComponent(logger, "project")
	selection := project.NewSelection(kv, store, projectLogger)
	exportLogger := logging.WithComponent(logger, "export")

	toolCfg := mediatool.DefaultConfig(logging.WithComponent(logger, "ffmpeg"))
	toolCfg.BinaryPath = cfg.FFmpegPath()
	toolCfg.ProbeTimeout = cfg.ProbeTimeout()
	toolCfg.DebugPaths = cfg.DebugPaths()
	ffmpeg := mediatool.NewFFmpeg(toolCfg)

	library := medialib.NewDirLibrary(cfg.LibraryDir(), cfg.LibraryAccess(), logging.WithComponent(logger, "library"))
	pending := export.NewPendingStore(kv, exportLogger)
	runs := export.NewRunRepository(database.Conn())

	executor := export.NewExecutor(export.ExecutorConfig{
		Pending:    pending,
		Prober:     export.NewProber(ffmpeg, export.NewDurationCache(kv, exportLogger), exportLogger),
		Tool:       ffmpeg,
		Library:    library,
		Watermark:  &assets.Watermark{Override: cfg.WatermarkPath(), CacheDir: cfg.CacheDir()},
		Runs:       runs,
		Lock:       export.NewSQLiteLock(database.Conn(), exportLogger),
		KV:         kv,
		ScratchDir: cfg.ScratchDir(),
		Album:      cfg.AlbumName(),
		Build:      export.BuildOptions{Codec: cfg.VideoCodec(), Quality: cfg.VideoQuality()},
		Inspect:    mediatool.Inspect,
		Logger:     exportLogger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		db:        database,
		kv:        kv,
		projects:  project.NewService(store, selection, projectLogger),
		selection: selection,
		pending:   pending,
		runs:      runs,
		ffmpeg:    ffmpeg,
		library:   library,
		executor:  executor,
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}

// prepareSelected snapshots the selected project into the pending slot.
func (a *app) prepareSelected(ctx context.Context, targetSec int) (*export.Job, error) {
	id, err := a.selection.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("no project selected")
	}
	p, err := a.projects.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.executor.Prepare(ctx, p, targetSec)
}

func ensureAuthToken(ctx context.Context, kv kvstore.Store) (string, error) {
	existing, found, err := kv.Get(ctx, kvstore.KeyAuthToken)
	if err == nil && found && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := kv.Set(ctx, kvstore.KeyAuthToken, token); err != nil {
		return "", err
	}

	return token, nil
}
