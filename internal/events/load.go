package events

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Load opens the events file at path and parses it. Nothing is returned
// unless every event loads successfully.
func Load(ctx context.Context, path string, v Validator, logger *slog.Logger) ([]*Event, error) {
	logger.Debug("parsing events", "path", path)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	evts, err := Parse(ctx, f, v, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	now := time.Now()
	for _, evt := range evts {
		attrs := []any{"event", evt.Label(), "schedule", evt.Schedule().String(), "statements", len(evt.statements)}
		if next := evt.Schedule().Next(now, 1); len(next) > 0 {
			attrs = append(attrs, "next", next[0].Format(time.RFC3339))
		}
		logger.Debug("loaded event", attrs...)
	}
	logger.Info("events loaded", "path", path, "count", len(evts))

	return evts, nil
}

// Watch logs a warning whenever the events file changes on disk. Loaded
// events are immutable, so changes only take effect after a restart. Watch
// blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *slog.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that replace the file are still seen
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
				logger.Warn("events file changed; restart to apply", "path", path, "op", ev.Op.String())
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("events watcher error", "path", path, "error", err)
		}
	}
}
