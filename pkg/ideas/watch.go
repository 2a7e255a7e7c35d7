package ideas

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the ledger whenever its file is written until ctx is done.
// Unreadable edits are logged and skipped.
func Watch(ctx context.Context, l *Ledger, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Saves rename a temp file over the target, which would drop a watch on
	// the file itself, so watch its directory.
	path := l.absPath()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}
	logger.Debug("Watching ideas file", "path", path)

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			changed, err := l.Reload()
			if err != nil {
				logger.Warn("Ignoring unreadable ideas file", "path", path, "error", err)
				continue
			}
			if changed {
				logger.Info("Reloaded ideas", "path", path, "ideas", len(l.Ideas()), "last_index", l.LastIndex())
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("ideas watcher error", "error", err)
		}
	}
}
