package app

import (
	"context"
	"log/slog"

	"archguard/internal/core/config"
	"archguard/internal/core/watcher"
	"archguard/internal/engine/report"
)

// WatchFunc receives the report of every watch-mode run.
type WatchFunc func(rep *report.ValidationReport, err error)

// Watch validates once, then again after every batch of source changes and
// every valid configuration reload, until ctx is done. Unchanged files are
// served from the engine's unit cache.
func (a *App) Watch(ctx context.Context, onRun WatchFunc) error {
	if onRun == nil {
		onRun = func(*report.ValidationReport, error) {}
	}
	onRun(a.Validate(ctx))

	cfg := a.Config()
	root := a.Root()
	fw, err := watcher.NewWatcher(watcher.Options{
		Debounce:     cfg.Watch.Debounce,
		MinInterval:  cfg.Watch.MinInterval,
		ExcludeDirs:  cfg.Exclude.Dirs,
		ExcludeFiles: cfg.Exclude.Files,
		Include:      func(path string) bool { return a.accept(root, path) },
	})
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(root); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reloads := make(chan *config.Config, 1)
	if a.opts.ConfigPath != "" {
		cw := config.NewWatcher(a.opts.ConfigPath, func(next *config.Config) {
			// Keep only the newest pending configuration.
			select {
			case <-reloads:
			default:
			}
			reloads <- next
		})
		if err := cw.Start(ctx); err != nil {
			slog.Warn("config reload disabled", "path", a.opts.ConfigPath, "error", err)
		} else {
			defer cw.Stop()
		}
	}

	batches := make(chan []string)
	done := make(chan error, 1)
	go func() {
		done <- fw.Run(ctx, func(ctx context.Context, paths []string) {
			select {
			case batches <- paths:
			case <-ctx.Done():
			}
		})
	}()

	slog.Info("watching for changes", "root", root)
	for {
		select {
		case <-ctx.Done():
			fw.Close()
			<-done
			return nil
		case err := <-done:
			return err
		case paths := <-batches:
			slog.Info("change detected", "files", len(paths))
			onRun(a.Validate(ctx))
		case next := <-reloads:
			if err := a.Reload(next); err != nil {
				continue
			}
			onRun(a.Validate(ctx))
		}
	}
}

func (a *App) accept(root, path string) bool {
	a.mu.Lock()
	scanner := a.scanner
	a.mu.Unlock()
	return scanner.Accept(root, path)
}
