package cukefork

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cukefork/cukefork/types"
)

// watchDebounce batches bursts of file events (editors typically emit
// several per save) into a single suite re-run.
const watchDebounce = 500 * time.Millisecond

// runOnChange re-runs the suite whenever a feature file under any feature
// root is created, modified, or removed. Blocks until ctx is cancelled or
// the service stops.
func (a *App) runOnChange(ctx context.Context) {
	defer a.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		a.config.Log.Error("Failed to create feature watcher", "error", err)
		return
	}
	defer func() { _ = watcher.Close() }()

	for _, root := range a.source.Roots {
		if err := watchTree(watcher, root); err != nil {
			a.config.Log.Warn("Failed to watch feature root", "root", root, "error", err)
		}
	}
	a.config.Log.Info("Watching feature roots for changes", "roots", len(a.source.Roots))

	// Single debounce timer, reset on each relevant event. Started
	// stopped; the first event arms it.
	debounce := time.NewTimer(watchDebounce)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-a.done:
			return

		case <-debounce.C:
			if !a.running.Load() {
				return
			}
			a.config.Log.Info("Feature files changed, re-running suite")
			if err := a.runSuite(); err != nil {
				a.config.Log.Error("Error running suite after change", "error", err)
			}

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			// New directories must be added to the watch set before
			// any feature files inside them change. watchTree is a
			// no-op when the created path is a plain file.
			if event.Has(fsnotify.Create) {
				_ = watchTree(watcher, event.Name)
			}
			if !isFeatureFile(event.Name) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			a.config.Log.Warn("Feature watcher error", "error", err)
		}
	}
}

// watchTree registers root and every directory below it with the watcher.
// fsnotify watches are not recursive.
func watchTree(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		return watcher.Add(path)
	})
}

func isFeatureFile(path string) bool {
	return strings.HasSuffix(path, types.FeatureExtension)
}
