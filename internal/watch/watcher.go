// Package watch re-runs a reconciliation whenever the source tree changes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/rjeczalik/notify"
)

const (
	DefaultDelay    = 2 * time.Second
	eventBufferSize = 256
)

// RunFunc performs one reconciliation.
type RunFunc func(ctx context.Context) error

// Watcher calls its RunFunc after each burst of filesystem events in a
// directory tree, once no event arrived for the configured delay. Runs
// never overlap.
type Watcher struct {
	dir    string
	delay  time.Duration
	run    RunFunc
	logger *slog.Logger
}

func New(dir string, delay time.Duration, run RunFunc, logger *slog.Logger) *Watcher {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:    dir,
		delay:  delay,
		run:    run,
		logger: logger,
	}
}

// Watch blocks until ctx is done. A failing run is logged and the watcher
// keeps going.
func (w *Watcher) Watch(ctx context.Context) error {
	events := make(chan notify.EventInfo, eventBufferSize)

	recursivePath := filepath.Join(w.dir, "...")
	if err := notify.Watch(recursivePath, events, notify.All); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	defer notify.Stop(events)

	w.logger.Info("watch start", "dir", w.dir, "delay", w.delay)
	defer w.logger.Info("watch stopped", "dir", w.dir)

	return w.loop(ctx, events)
}

func (w *Watcher) loop(ctx context.Context, events <-chan notify.EventInfo) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending int
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				return nil
			}
			pending++
			w.logger.Debug("watch", "event", event.Event(), "path", event.Path())
			// every event pushes the run back by a full delay
			if timer == nil {
				timer = time.NewTimer(w.delay)
			} else {
				timer.Reset(w.delay)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.logger.Info("watch change detected", "events", pending)
			pending = 0
			if err := w.run(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error("watch run failed", "error", err)
			}
		}
	}
}
