package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WaitForFile blocks until relPath exists under the workspace's base
// directory on the host, the context is cancelled, or timeout elapses.
// It waits on fsnotify events rather than polling. No stage actor in this
// module calls it.
func (w *Workspace) WaitForFile(ctx context.Context, relPath string, timeout time.Duration) error {
	if w.baseDir == "" {
		return fmt.Errorf("workspace: wait for file: no base directory mounted")
	}

	target := filepath.Join(w.baseDir, filepath.FromSlash(relPath))
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("workspace: wait for file: new watcher: %w", err)
	}
	defer watcher.Close()

	watchDir := filepath.Dir(target)
	if err := os.MkdirAll(watchDir, 0755); err != nil {
		return fmt.Errorf("workspace: wait for file: ensure watch dir: %w", err)
	}
	if err := watcher.Add(watchDir); err != nil {
		return fmt.Errorf("workspace: wait for file: watch %s: %w", watchDir, err)
	}

	// A file created between the Stat above and Add above would be missed
	// by the watcher, so check once more now that the watch is armed.
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("workspace: wait for file: %s: %w", relPath, ctx.Err())
		case ev, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("workspace: wait for file: watcher closed")
			}
			if ev.Name == target && (ev.Op&(fsnotify.Create|fsnotify.Write) != 0) {
				return nil
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("workspace: wait for file: watcher closed")
			}
			return fmt.Errorf("workspace: wait for file: %w", err)
		}
	}
}
