package flowkernel

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ConfigWatcher reloads a configuration file whenever it changes on disk and
// hands the new configuration to a callback, usually Kernel.Reconfigure.
type ConfigWatcher struct {
	path     string
	logger   Logger
	debounce time.Duration
	onChange func(*Config) error

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewConfigWatcher creates a watcher for path. Nothing is watched before Start.
func NewConfigWatcher(path string, logger Logger, onChange func(*Config) error) *ConfigWatcher {
	return &ConfigWatcher{
		path:     filepath.Clean(path),
		logger:   loggerOrNop(logger),
		debounce: 100 * time.Millisecond,
		onChange: onChange,
	}
}

// Start begins watching. The directory of the file is watched so editors that
// replace the file instead of writing it in place are noticed too.
func (w *ConfigWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher != nil {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watching %s: %w", w.path, err)
	}
	w.watcher = watcher
	w.done = make(chan struct{})

	go w.loop(ctx, watcher, w.done)
	w.logger.Info("Watching config file", "path", w.path)
	return nil
}

// Stop ends watching and waits for the watch loop to return.
func (w *ConfigWatcher) Stop() error {
	w.mu.Lock()
	watcher, done := w.watcher, w.done
	w.watcher, w.done = nil, nil
	w.mu.Unlock()
	if watcher == nil {
		return nil
	}
	err := watcher.Close()
	<-done
	return err
}

func (w *ConfigWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "path", w.path, "error", err)
		}
	}
}

func (w *ConfigWatcher) reload() {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		w.logger.Error("Reloading config failed, keeping current configuration", "path", w.path, "error", err)
		return
	}
	if w.onChange == nil {
		return
	}
	if err := w.onChange(cfg); err != nil {
		w.logger.Error("Applying reloaded config failed", "path", w.path, "error", err)
		return
	}
	w.logger.Info("Config reloaded", "path", w.path)
}
