package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads the registry whenever the file is replaced or rewritten by
// someone else. The watch is established before Watch returns; the returned
// channel is closed once ctx is done and the watcher has shut down.
func (r *Registry) Watch(ctx context.Context) (<-chan struct{}, error) {
	dir := filepath.Dir(r.filePath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	// Watch the directory: atomic replacement swaps the inode under the file.
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != r.filePath {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					r.reloadIfChanged()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warnw("registry watcher error", "error", err)
			}
		}
	}()
	return done, nil
}
