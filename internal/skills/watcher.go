package skills

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces bursts of filesystem events into one reload.
const reloadDebounce = 500 * time.Millisecond

// Watcher reloads the registry when skill files change on disk.
type Watcher struct {
	roots    []Root
	registry *Registry
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher over the discovery roots. Roots that do
// not exist yet are skipped; they are picked up on the next restart.
func NewWatcher(roots []Root, registry *Registry, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default().With("component", "skills.watcher")
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{roots: roots, registry: registry, logger: logger, watcher: fsw}
	for _, root := range roots {
		if _, err := os.Stat(root.Path); err != nil {
			continue
		}
		if err := fsw.Add(root.Path); err != nil {
			logger.Warn("cannot watch skills root", "path", root.Path, "error", err)
		}
	}
	return w, nil
}

// Run blocks until ctx is cancelled, reloading the registry after each
// debounced batch of events.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var timerC <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
				timerC = timer.C
			} else {
				timer.Reset(reloadDebounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("skills watcher error", "error", err)
		case <-timerC:
			timer = nil
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	fresh, err := DiscoverAll(w.roots, w.logger)
	if err != nil {
		w.logger.Warn("skills reload failed", "error", err)
		return
	}
	w.registry.Replace(fresh)
	w.logger.Info("skills reloaded", "count", w.registry.Len())
}
