package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/studiolapse/studiolapse-agent/internal/api"
	"github.com/studiolapse/studiolapse-agent/internal/config"
	"github.com/studiolapse/studiolapse-agent/internal/export"
	"github.com/studiolapse/studiolapse-agent/internal/logging"
	"github.com/studiolapse/studiolapse-agent/internal/playback"
	"github.com/studiolapse/studiolapse-agent/internal/ui"
	"github.com/studiolapse/studiolapse-agent/internal/watcher"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the local HTTP API and tray indicator",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

func serve() error {
	startTime := time.Now()

	a, err := newApp(os.Stdout)
	if err != nil {
		return err
	}
	defer a.Close()

	logger := a.logger
	logger.Info("starting studiolapse agent", "version", config.Version, "data_dir", a.cfg.DataDir())

	if path, err := a.ffmpeg.Resolve(); err != nil {
		logger.Warn("ffmpeg not found, exports will fail until it is installed", "error", err)
	} else {
		logger.Info("ffmpeg resolved", "path", path)
	}

	authToken, err := ensureAuthToken(context.Background(), a.kv)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	if err := a.executor.Recover(context.Background()); err != nil {
		logger.Warn("failed to recover interrupted export runs", "error", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                 STUDIOLAPSE AGENT v%-22s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", a.cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken[:16]+"...")
	fmt.Printf("║  Album:      %-45s ║\n", a.cfg.AlbumName())
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	a.executor.Subscribe(func(from, to export.State, report export.Report) {
		logger.Info("export state changed", "from", from, "to", to, "run_id", report.RunID)
	})

	apiServer := api.NewServer(api.ServerConfig{
		Port:      a.cfg.Port(),
		Projects:  a.projects,
		Selection: a.selection,
		Pending:   a.pending,
		Executor:  a.executor,
		Runs:      a.runs,
		KV:        a.kv,
		Playback:  playback.NewServer(logger),
		Logger:    logger,
		StartTime: startTime,
		Version:   config.Version,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if dir := a.cfg.InboxDir(); dir != "" {
		if err := startInbox(ctx, a, dir); err != nil {
			logger.Error("inbox disabled", "error", err, "path", dir)
		}
	}

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	quitCh := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			close(quitCh)
		case <-quitCh:
		}
	}()

	if a.cfg.Headless() {
		logger.Info("running in headless mode (no system tray)")
	} else {
		tray := ui.NewTray(ui.TrayConfig{
			Projects:  a.projects,
			Selection: a.selection,
			Executor:  a.executor,
			Logger:    logger,
			OnExport: func(targetSec int) error {
				ctx := context.Background()
				if _, err := a.prepareSelected(ctx, targetSec); err != nil {
					return err
				}
				_, err := a.executor.Start(ctx)
				return err
			},
			OnQuit: func() {
				close(quitCh)
			},
		})
		go tray.Run()
	}

	<-quitCh

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	if a.executor.State().Busy() {
		logger.Warn("export still encoding at shutdown, it will be marked failed by the next export")
	}

	logger.Info("shutdown complete")
	return nil
}

// startInbox adds recordings that land in dir to the selected project.
func startInbox(ctx context.Context, a *app, dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	logger := logging.WithComponent(a.logger, "inbox")

	inbox := &watcher.Inbox{
		Projects:  a.projects,
		Selection: a.selection,
		Album:     a.cfg.AlbumName(),
		Logger:    logger,
	}
	if a.cfg.SaveClips() {
		inbox.Library = a.library
	}

	w := watcher.NewFSWatcher(logger, watcher.DefaultSettle)
	w.OnChange(func(path string, event watcher.EventType) {
		err := inbox.Handle(ctx, path, event)
		if err != nil && !errors.Is(err, watcher.ErrNoSelection) {
			logger.Error("failed to import recording", "error", err, "file", logging.SanitizePath(path))
		}
	})
	return w.Watch(ctx, dir)
}
