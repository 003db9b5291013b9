// Package watch re-runs processing when the upload log changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// TriggerFunc runs one processing batch.
type TriggerFunc func(ctx context.Context) error

// Stats tracks watcher activity.
type Stats struct {
	Events    int
	Triggered int
	Errors    int
	LastEvent time.Time
}

// Watcher watches one file and calls a trigger once writes to it settle.
type Watcher struct {
	mu       sync.Mutex
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	trigger  TriggerFunc
	pending  time.Time
	stats    Stats
	logger   *slog.Logger
}

// New starts watching the directory holding path. Watching the directory
// rather than the file survives the file being replaced by a rename.
func New(path string, debounce time.Duration, trigger TriggerFunc, logger *slog.Logger) (*Watcher, error) {
	if debounce <= 0 {
		return nil, fmt.Errorf("debounce must be positive")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		watcher:  fw,
		path:     abs,
		debounce: debounce,
		trigger:  trigger,
		logger:   logger,
	}, nil
}

// Run handles events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("watching log file", "path", w.path, "debounce", w.debounce)

	tick := w.debounce / 4
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping log watcher")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("file watcher closed")
			}
			w.logger.Error("file watcher error", "error", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.fireIfSettled(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	w.logger.Debug("log file changed", "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Events++
	w.stats.LastEvent = time.Now()
	w.pending = w.stats.LastEvent
}

// fireIfSettled runs the trigger once no event arrived for the debounce
// duration.
func (w *Watcher) fireIfSettled(ctx context.Context) {
	w.mu.Lock()
	if w.pending.IsZero() || time.Since(w.pending) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.pending = time.Time{}
	w.stats.Triggered++
	w.mu.Unlock()

	if err := w.trigger(ctx); err != nil {
		w.logger.Error("processing run failed", "error", err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
	}
}

// GetStats returns a copy of the watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
