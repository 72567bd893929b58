package ui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"

	"github.com/studiolapse/studiolapse-agent/internal/assets"
	"github.com/studiolapse/studiolapse-agent/internal/export"
	"github.com/studiolapse/studiolapse-agent/internal/project"
)

type Tray struct {
	projects  project.ProjectService
	selection *project.Selection
	executor  *export.Executor
	logger    *slog.Logger

	statusItem   *systray.MenuItem
	projectItem  *systray.MenuItem
	exportItem   *systray.MenuItem
	dismissItem  *systray.MenuItem
	durationItem map[int]*systray.MenuItem

	mu        sync.Mutex
	targetSec int

	onExport func(targetSec int) error
	onQuit   func()
}

type TrayConfig struct {
	Projects  project.ProjectService
	Selection *project.Selection
	Executor  *export.Executor
	Logger    *slog.Logger
	OnExport  func(targetSec int) error
	OnQuit    func()
}

func NewTray(cfg TrayConfig) *Tray {
	return &Tray{
		projects:     cfg.Projects,
		selection:    cfg.Selection,
		executor:     cfg.Executor,
		logger:       cfg.Logger,
		durationItem: make(map[int]*systray.MenuItem),
		targetSec:    export.AllowedDurations[1],
		onExport:     cfg.OnExport,
		onQuit:       cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(assets.Icon)
	systray.SetTitle("StudioLapse")
	systray.SetTooltip("StudioLapse Agent")

	t.statusItem = systray.AddMenuItem("Export: idle", "Export state")
	t.statusItem.Disable()

	t.projectItem = systray.AddMenuItem("Project: none selected", "Selected project")
	t.projectItem.Disable()

	systray.AddSeparator()

	clicks := make(chan int)
	for _, sec := range export.AllowedDurations {
		item := systray.AddMenuItem(fmt.Sprintf("Length: %ds", sec), "Target length of the timelapse")
		if sec == t.targetSec {
			item.Check()
		}
		t.durationItem[sec] = item
		go func(sec int, item *systray.MenuItem) {
			for range item.ClickedCh {
				clicks <- sec
			}
		}(sec, item)
	}

	t.exportItem = systray.AddMenuItem("Export selected project", "Render the selected project")
	t.dismissItem = systray.AddMenuItem("Dismiss last export", "Clear the pending export")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit StudioLapse Agent")

	if t.executor != nil {
		t.executor.Subscribe(func(from, to export.State, report export.Report) {
			t.UpdateState(to, report)
		})
	}
	t.RefreshProject()

	go func() {
		for {
			select {
			case sec := <-clicks:
				t.setTarget(sec)
			case <-t.exportItem.ClickedCh:
				t.handleExport()
			case <-t.dismissItem.ClickedCh:
				t.handleDismiss()
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) setTarget(sec int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.targetSec = sec
	for s, item := range t.durationItem {
		if s == sec {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

func (t *Tray) handleExport() {
	t.mu.Lock()
	target := t.targetSec
	t.mu.Unlock()

	t.RefreshProject()
	if t.onExport == nil {
		return
	}
	if err := t.onExport(target); err != nil {
		t.logger.Error("failed to start export", "error", err)
		t.statusItem.SetTitle("Export: " + err.Error())
	}
}

func (t *Tray) handleDismiss() {
	if t.executor == nil {
		return
	}
	if err := t.executor.Dismiss(context.Background()); err != nil {
		t.logger.Error("failed to dismiss export", "error", err)
	}
}

// UpdateState mirrors the executor state in the menu. Export actions are
// disabled while an export is running.
func (t *Tray) UpdateState(state export.State, report export.Report) {
	t.mu.Lock()
	defer t.mu.Unlock()

	title := "Export: " + string(state)
	switch state {
	case export.StateExporting:
		title = fmt.Sprintf("Export: encoding %d clips at %sx", report.ClipCount, export.FormatFactor(report.SpeedFactor))
	case export.StateFailed:
		title = "Export: failed"
	case export.StateSucceeded:
		title = "Export: saved " + report.ProjectName
	}
	t.statusItem.SetTitle(title)

	if state.Busy() {
		t.exportItem.Disable()
		t.dismissItem.Disable()
	} else {
		t.exportItem.Enable()
		t.dismissItem.Enable()
	}
}

// RefreshProject shows the selected project's name and clip count.
func (t *Tray) RefreshProject() {
	if t.selection == nil || t.projects == nil {
		return
	}
	ctx := context.Background()

	id, err := t.selection.Reconcile(ctx)
	if err != nil {
		t.logger.Warn("failed to read selection", "error", err)
		return
	}
	if id == "" {
		t.projectItem.SetTitle("Project: none selected")
		return
	}
	p, err := t.projects.Get(ctx, id)
	if err != nil {
		t.logger.Warn("failed to load selected project", "error", err, "project_id", id)
		return
	}
	t.projectItem.SetTitle(fmt.Sprintf("Project: %s (%d clips)", p.Name, len(p.Clips)))
}

func (t *Tray) Quit() {
	systray.Quit()
}
