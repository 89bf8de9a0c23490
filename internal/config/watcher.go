package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads a route configuration file when it changes on disk. A
// reload that fails to parse or validate leaves the previous snapshot in
// place; the provider only ever swaps to a document that decoded cleanly.
type Watcher struct {
	path     string
	provider *Provider
	logger   *zap.Logger
	debounce time.Duration
	watcher  *fsnotify.Watcher
}

// NewWatcher creates a watcher for a single configuration file.
func NewWatcher(path string, provider *Provider, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is required")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		path:     path,
		provider: provider,
		logger:   logger,
		debounce: defaultDebounce,
	}, nil
}

// Start begins watching until the context is cancelled. The parent
// directory is watched rather than the file itself so atomic
// rename-over-write saves (editors, configmap updates) are still seen.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	dir := filepath.Dir(w.path)
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return fmt.Errorf("watching %s: %w", dir, err)
	}
	w.watcher = fw
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer w.watcher.Close()

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.relevant(event) {
				continue
			}
			// Coalesce bursts of writes into one reload.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				fire = timer.C
			} else {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(w.debounce)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-fire:
			timer = nil
			fire = nil
			w.reload()

		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return filepath.Clean(event.Name) == filepath.Clean(w.path)
}

func (w *Watcher) reload() {
	routes, err := Load(w.path)
	if err != nil {
		w.logger.Error("config reload rejected, keeping previous routes",
			zap.String("path", w.path),
			zap.Error(err),
		)
		return
	}
	w.provider.Swap(routes)
	w.logger.Info("config reloaded",
		zap.String("path", w.path),
		zap.Int("routes", len(routes)),
	)
}
