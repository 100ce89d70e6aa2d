package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultReloadDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes. Invalid files are
// logged and skipped so the caller keeps its previous configuration.
type Watcher struct {
	path     string
	debounce time.Duration
	callback func(*Config)
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWatcher(path string, callback func(*Config)) *Watcher {
	return &Watcher{
		path:     filepath.Clean(path),
		debounce: defaultReloadDebounce,
		callback: callback,
		stop:     make(chan struct{}),
	}
}

// Start watches the file's directory so atomic saves (write temp, rename)
// are seen. Reloads run on the watch goroutine, one at a time.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(w.path)); err != nil {
		fsw.Close()
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer fsw.Close()

		timer := time.NewTimer(w.debounce)
		timer.Stop()
		defer timer.Stop()

		slog.Debug("watching config", "path", w.path)
		for {
			select {
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != w.path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					timer.Reset(w.debounce)
				}
			case <-timer.C:
				w.reload()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Warn("config watcher error", "path", w.path, "error", err)
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the watch and waits for the goroutine. Safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Watcher) reload() {
	slog.Info("config changed, reloading", "path", w.path)
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config reload failed; keeping previous configuration", "path", w.path, "error", err)
		return
	}
	if w.callback != nil {
		w.callback(cfg)
	}
}
