// Package refstore manages the YAML-based medication reference registry:
// expected barcodes, reference aspect ratios and reference image assets.
package refstore

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

// reloadDebounce coalesces editor write bursts into one reload.
const reloadDebounce = 100 * time.Millisecond

// Watcher reloads the registry when its file changes on disk. It watches the
// parent directory since fsnotify cannot watch files that are atomically
// replaced by renames.
type Watcher struct {
	registry *Registry
	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
}

// NewWatcher creates a watcher for the registry's backing file.
func NewWatcher(registry *Registry) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{registry: registry, watcher: fsw}, nil
}

// Start begins watching for registry file changes.
func (w *Watcher) Start() error {
	dir := filepath.Dir(w.registry.path)
	if err := w.watcher.Add(dir); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	go w.watchLoop(ctx)

	log.Info().Str("path", w.registry.path).Msg("Medication registry watcher started")
	return nil
}

// Stop stops the watcher.
func (w *Watcher) Stop() error {
	if w.cancel != nil {
		w.cancel()
	}
	return w.watcher.Close()
}

// watchLoop is the main event loop.
func (w *Watcher) watchLoop(ctx context.Context) {
	var debounce *time.Timer
	target := filepath.Clean(w.registry.path)

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(reloadDebounce, func() {
				if err := w.registry.Reload(); err != nil {
					log.Error().Err(err).Str("path", target).Msg("Registry reload failed, keeping previous contents")
					return
				}
				log.Info().Str("path", target).Int("medications", w.registry.Len()).Msg("Medication registry reloaded")
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Registry watcher error")
		}
	}
}
