// Package watcher reports batches of changed source files under a project
// root. Watch mode re-runs validation once per batch.
package watcher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"archguard/internal/shared/observability"
	"archguard/internal/shared/util"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"
)

const defaultDebounce = 500 * time.Millisecond

// Options configure a Watcher.
type Options struct {
	// Debounce is the quiet period after the last event before a batch is
	// delivered.
	Debounce time.Duration
	// MinInterval is the minimum time between two deliveries.
	MinInterval time.Duration
	// ExcludeDirs are globs matched against directory base names.
	ExcludeDirs []string
	// ExcludeFiles are globs matched against file base names.
	ExcludeFiles []string
	// Include decides whether a file path is relevant. Nil accepts all.
	Include func(path string) bool
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	fsw          *fsnotify.Watcher
	debounce     time.Duration
	limiter      *util.Limiter
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	include      func(string) bool

	closeOnce sync.Once
	closeErr  error
}

func NewWatcher(opts Options) (*Watcher, error) {
	excludeDirs, err := compileGlobs(opts.ExcludeDirs)
	if err != nil {
		return nil, err
	}
	excludeFiles, err := compileGlobs(opts.ExcludeFiles)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = defaultDebounce
	}
	return &Watcher{
		fsw:          fsw,
		debounce:     debounce,
		limiter:      util.NewIntervalLimiter(opts.MinInterval),
		excludeDirs:  excludeDirs,
		excludeFiles: excludeFiles,
		include:      opts.Include,
	}, nil
}

func compileGlobs(patterns []string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, nil
}

// Add registers root and every non-excluded directory below it.
func (w *Watcher) Add(root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && w.excludedDir(path) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

// Run delivers sorted, de-duplicated batches of changed files to onChange
// until ctx is done or the watcher is closed. onChange runs on the calling
// goroutine, so batches never overlap.
func (w *Watcher) Run(ctx context.Context, onChange func(ctx context.Context, paths []string)) error {
	if onChange == nil {
		return os.ErrInvalid
	}
	pending := make(map[string]struct{})
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			observability.WatcherEventsTotal.Inc()
			if w.handle(event, pending) {
				timer.Reset(w.debounce)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("watcher error", "error", err)
		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			if err := w.limiter.Wait(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
			paths := util.SortedStringKeys(pending)
			clear(pending)
			slog.Debug("change batch", "files", len(paths))
			onChange(ctx, paths)
		}
	}
}

// handle records a relevant event and reports whether the batch grew.
func (w *Watcher) handle(event fsnotify.Event, pending map[string]struct{}) bool {
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if w.excludedDir(event.Name) {
				return false
			}
			if err := w.Add(event.Name); err != nil {
				slog.Warn("failed to watch new directory", "path", event.Name, "error", err)
				return false
			}
			return w.enqueueExisting(event.Name, pending)
		}
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	if w.excludedFile(event.Name) {
		return false
	}
	pending[event.Name] = struct{}{}
	return true
}

// enqueueExisting picks up files written into a directory before it was
// registered.
func (w *Watcher) enqueueExisting(root string, pending map[string]struct{}) bool {
	added := false
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && w.excludedDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if !w.excludedFile(path) {
			pending[path] = struct{}{}
			added = true
		}
		return nil
	})
	return added
}

func (w *Watcher) excludedDir(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	return false
}

func (w *Watcher) excludedFile(path string) bool {
	base := filepath.Base(path)
	for _, g := range w.excludeFiles {
		if g.Match(base) {
			return true
		}
	}
	return w.include != nil && !w.include(path)
}

// Close stops the underlying notifier. Safe to call more than once.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() { w.closeErr = w.fsw.Close() })
	return w.closeErr
}
