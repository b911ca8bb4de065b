package store

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/ritzau/update-engine/pkg/logging"
)

// SnapshotWatcher reloads the store when its snapshot file is rewritten by
// another process. Editors and atomic writers produce bursts of filesystem
// events for a single logical change, so events are debounced with a quiet
// period before a reload is attempted.
type SnapshotWatcher struct {
	store    *Memory
	path     string
	quiet    time.Duration
	watcher  *fsnotify.Watcher
	onReload func(Snapshot)
}

// WatchSnapshot creates a watcher for the snapshot file at path. onReload is
// invoked after every successful reload and may be nil.
func WatchSnapshot(store *Memory, path string, onReload func(Snapshot)) (*SnapshotWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving snapshot path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &SnapshotWatcher{
		store:    store,
		path:     abs,
		quiet:    250 * time.Millisecond,
		watcher:  watcher,
		onReload: onReload,
	}, nil
}

// Start begins watching. Watching the containing directory instead of the
// file itself survives the rename step of atomic snapshot writes.
func (w *SnapshotWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching snapshot directory: %w", err)
	}

	logging.Info("watching snapshot", "path", w.path)
	go w.run(ctx)

	return nil
}

// Close stops the watcher.
func (w *SnapshotWatcher) Close() error {
	return w.watcher.Close()
}

func (w *SnapshotWatcher) run(ctx context.Context) {
	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)

	for {
		select {
		case <-ctx.Done():
			w.watcher.Close()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}
			logging.Debug("snapshot changed on disk", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(w.quiet)
				timerC = timer.C
			} else {
				timer.Reset(w.quiet)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("snapshot watcher error", "error", err)

		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *SnapshotWatcher) reload() {
	if err := w.store.LoadFile(w.path); err != nil {
		logging.Warn("snapshot reload failed, keeping current graph", "path", w.path, "error", err)
		return
	}

	snap := w.store.Snapshot()
	logging.Info("snapshot reloaded",
		"components", len(snap.Components),
		"dependencies", len(snap.Dependencies))

	if w.onReload != nil {
		w.onReload(snap)
	}
}
