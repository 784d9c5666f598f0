package projection

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce coalesces bursts of journal writes into one sync.
const DefaultDebounce = 200 * time.Millisecond

// Watcher runs a sync whenever the journal changes on disk and, as a
// fallback, on a fixed sweep interval.
type Watcher struct {
	path     string
	interval time.Duration
	debounce time.Duration
	sync     func(context.Context) error
	logger   *slog.Logger
}

// NewWatcher creates a watcher for the journal at path. An empty path
// disables file notifications and leaves only the sweep.
func NewWatcher(path string, interval time.Duration, sync func(context.Context) error, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Watcher{
		path:     path,
		interval: interval,
		debounce: DefaultDebounce,
		sync:     sync,
		logger:   logger,
	}
}

// Run syncs once, then blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	var (
		events <-chan fsnotify.Event
		errs   <-chan error
	)
	if w.path != "" {
		fw, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer func() { _ = fw.Close() }()

		// The directory is watched so that a recreated journal is noticed.
		dir := filepath.Dir(w.path)
		if err := fw.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		events, errs = fw.Events, fw.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	pending := time.NewTimer(w.debounce)
	pending.Stop()
	defer pending.Stop()

	w.run(ctx, "start")
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending.Reset(w.debounce)
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Warn("journal watch error", "error", err)

		case <-pending.C:
			w.run(ctx, "change")

		case <-ticker.C:
			w.run(ctx, "sweep")
		}
	}
}

// matches accepts the journal itself and SQLite side files such as -wal.
func (w *Watcher) matches(name string) bool {
	return strings.HasPrefix(filepath.Base(name), filepath.Base(w.path))
}

func (w *Watcher) run(ctx context.Context, trigger string) {
	if err := w.sync(ctx); err != nil && ctx.Err() == nil {
		w.logger.Warn("projection sync failed", "trigger", trigger, "error", err)
		return
	}
	w.logger.Debug("projection sync", "trigger", trigger)
}
