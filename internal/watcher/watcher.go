// Package watcher follows a capture folder and reports finished
// recordings.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a file must go without writes before it is
// reported as created.
const DefaultSettle = 2 * time.Second

type Watcher interface {
	Watch(ctx context.Context, path string) error
	Stop() error
	OnChange(callback func(path string, event EventType))
}

type EventType int

const (
	EventCreate EventType = iota
	EventModify
	EventDelete
)

func (e EventType) String() string {
	switch e {
	case EventCreate:
		return "create"
	case EventModify:
		return "modify"
	case EventDelete:
		return "delete"
	}
	return fmt.Sprintf("event(%d)", int(e))
}

var videoExts = map[string]bool{".mov": true, ".mp4": true, ".m4v": true}

// IsVideoFile reports whether path looks like a finished recording.
// Hidden files are skipped since recorders often write to them first.
func IsVideoFile(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	return videoExts[strings.ToLower(filepath.Ext(base))]
}

// FSWatcher watches directories with fsnotify. Creates and writes are
// debounced per file so a recording still being written is reported once,
// after it settles.
type FSWatcher struct {
	logger *slog.Logger
	settle time.Duration
	filter func(path string) bool

	mu       sync.Mutex
	fsw      *fsnotify.Watcher
	callback func(path string, event EventType)
	pending  map[string]*pendingFile
	stopped  bool
}

type pendingFile struct {
	timer *time.Timer
	event EventType
}

func NewFSWatcher(logger *slog.Logger, settle time.Duration) *FSWatcher {
	if settle <= 0 {
		settle = DefaultSettle
	}
	return &FSWatcher{
		logger:  logger,
		settle:  settle,
		filter:  IsVideoFile,
		pending: make(map[string]*pendingFile),
	}
}

// SetFilter replaces the file filter. A nil filter accepts every file.
func (w *FSWatcher) SetFilter(filter func(path string) bool) {
	w.mu.Lock()
	w.filter = filter
	w.mu.Unlock()
}

func (w *FSWatcher) OnChange(callback func(path string, event EventType)) {
	w.mu.Lock()
	w.callback = callback
	w.mu.Unlock()
}

// Watch adds path to the watch set. The first call starts the event loop,
// which ends when ctx is cancelled or Stop is called.
func (w *FSWatcher) Watch(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("watch %s: not a directory", path)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("watcher stopped")
	}
	if w.fsw == nil {
		fsw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("create watcher: %w", err)
		}
		w.fsw = fsw
		go w.loop(ctx, fsw)
	}
	if err := w.fsw.Add(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}
	w.logger.Info("watching folder", "path", path, "settle_ms", w.settle.Milliseconds())
	return nil
}

func (w *FSWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	for path, p := range w.pending {
		p.timer.Stop()
		delete(w.pending, path)
	}
	if w.fsw == nil {
		return nil
	}
	return w.fsw.Close()
}

func (w *FSWatcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func (w *FSWatcher) handle(ev fsnotify.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || (w.filter != nil && !w.filter(ev.Name)) {
		return
	}

	switch {
	case ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename):
		if p, ok := w.pending[ev.Name]; ok {
			p.timer.Stop()
			delete(w.pending, ev.Name)
		}
		w.emitLocked(ev.Name, EventDelete)

	case ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write):
		if p, ok := w.pending[ev.Name]; ok {
			p.timer.Reset(w.settle)
			return
		}
		kind := EventModify
		if ev.Has(fsnotify.Create) {
			kind = EventCreate
		}
		path := ev.Name
		w.pending[path] = &pendingFile{
			event: kind,
			timer: time.AfterFunc(w.settle, func() { w.settled(path) }),
		}
	}
}

func (w *FSWatcher) settled(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	p, ok := w.pending[path]
	if !ok || w.stopped {
		return
	}
	delete(w.pending, path)

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return
	}
	w.emitLocked(path, p.event)
}

// emitLocked runs the callback on its own goroutine so slow handlers never
// hold the watcher lock.
func (w *FSWatcher) emitLocked(path string, event EventType) {
	if w.callback == nil {
		return
	}
	cb := w.callback
	go cb(path, event)
}
