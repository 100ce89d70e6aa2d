// Package app wires configuration, the rule engine, the renderers and the
// history store into validation runs.
package app

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"archguard/internal/core/config"
	"archguard/internal/core/ports"
	"archguard/internal/data/history"
	"archguard/internal/engine/complexity"
	"archguard/internal/engine/parser"
	"archguard/internal/engine/router"
	"archguard/internal/engine/rules"
	"archguard/internal/ui/report/formats"
)

// Options are invocation overrides layered over the configuration file.
type Options struct {
	// Root overrides paths.root.
	Root string
	// ConfigPath is watched for reloads in watch mode. Empty disables reload.
	ConfigPath string
	// RulesPaths are extra rule files or directories, relative to the
	// working directory.
	RulesPaths []string
	Quick      bool
	// FailOn overrides report.fail_on.
	FailOn string
	// Formats override report.formats.
	Formats []string
	// OutputDir overrides report.output_dir.
	OutputDir string
	// Workers overrides analysis.workers.
	Workers int
	Color   bool
	// Stdout receives the rendered report when no output directory is set,
	// and the text summary otherwise. Defaults to os.Stdout.
	Stdout   io.Writer
	Progress router.ProgressFunc
}

// App owns the long-lived components of validation runs. Validate calls
// are serialized.
type App struct {
	opts Options
	cwd  string

	mu     sync.Mutex
	cfg    *config.Config
	paths  config.ResolvedPaths
	loader *parser.GrammarLoader
	engine ports.RuleEngine
	// thresholds are the resolved limits the current engine was built with.
	thresholds complexity.Thresholds
	scanner    ports.FileScanner
	history    ports.HistoryStore
	formats    []formats.Format
	failOn     rules.Severity
}

func New(cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	a := &App{opts: opts, cwd: cwd}
	if err := a.apply(cfg, true); err != nil {
		return nil, err
	}
	return a, nil
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cfg
}

// Root returns the absolute project root.
func (a *App) Root() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.paths.ProjectRoot
}

// apply builds components for cfg and swaps them in. With full false the
// engine and its unit cache survive when only rule sources or reporting
// changed.
func (a *App) apply(cfg *config.Config, full bool) error {
	paths, err := config.ResolvePaths(cfg, a.cwd, a.opts.Root)
	if err != nil {
		return err
	}
	if a.opts.OutputDir != "" {
		paths.OutputDir = config.ResolveRelative(a.cwd, a.opts.OutputDir)
	}

	outFormats, err := formats.ParseFormats(pick(a.opts.Formats, cfg.Report.Formats)...)
	if err != nil {
		return err
	}
	failOn, err := rules.ParseSeverity(pickString(a.opts.FailOn, cfg.Report.FailOn))
	if err != nil {
		return fmt.Errorf("fail-on: %w", err)
	}

	// The threshold file is reread on every apply so edits to it rebuild
	// the engine even when its path is unchanged.
	thresholds, err := resolveThresholds(cfg, paths)
	if err != nil {
		return err
	}

	reuse := !full && a.engine != nil && engineSettingsEqual(a.cfg, cfg) &&
		a.paths.ProjectRoot == paths.ProjectRoot && a.thresholds.Equal(thresholds)
	loader := a.loader
	if !reuse {
		registry, err := parser.BuildLanguageRegistry(cfg.LanguageOverrides())
		if err != nil {
			return err
		}
		if loader, err = parser.NewGrammarLoader(registry); err != nil {
			return err
		}
	}

	reg, err := rules.Load(rules.Options{Loader: loader, Paths: a.rulePaths(paths)})
	if err != nil {
		return err
	}

	scanner, err := NewScanner(ScanOptions{
		ExcludeDirs:      cfg.Exclude.Dirs,
		ExcludeFiles:     cfg.Exclude.Files,
		RespectGitignore: cfg.Exclude.GitignoreEnabled(),
		SkipPaths:        []string{paths.StateDir, paths.OutputDir},
		Supported:        loader.IsSupportedPath,
	})
	if err != nil {
		reg.Close()
		return err
	}

	var engine ports.RuleEngine
	if reuse {
		old := a.engine.SetRegistry(reg)
		old.Close()
		engine = a.engine
		slog.Info("rule registry reloaded", "rules", reg.Len())
	} else {
		engine, err = a.buildEngine(cfg, loader, reg, thresholds)
		if err != nil {
			reg.Close()
			return err
		}
		if a.engine != nil {
			old := a.engine.Registry()
			a.engine.Close()
			old.Close()
		}
	}

	store := a.history
	if cfg.History.Enabled && (store == nil || a.paths.HistoryPath != paths.HistoryPath) {
		if store != nil {
			store.Close()
		}
		store = openHistory(paths.HistoryPath)
	} else if !cfg.History.Enabled && store != nil {
		store.Close()
		store = nil
	}

	a.cfg = cfg
	a.paths = paths
	a.loader = loader
	a.engine = engine
	a.thresholds = thresholds
	a.scanner = scanner
	a.history = store
	a.formats = outFormats
	a.failOn = failOn
	return nil
}

// resolveThresholds layers the inline overrides over the threshold file.
func resolveThresholds(cfg *config.Config, paths config.ResolvedPaths) (complexity.Thresholds, error) {
	layers := make([]complexity.ThresholdFile, 0, 2)
	if paths.ThresholdsFile != "" {
		file, err := config.LoadThresholdFile(paths.ThresholdsFile)
		if err != nil {
			return complexity.Thresholds{}, err
		}
		layers = append(layers, file)
	}
	layers = append(layers, cfg.Thresholds)
	thresholds, err := complexity.NewThresholds(layers...)
	if err != nil {
		return complexity.Thresholds{}, fmt.Errorf("thresholds: %w", err)
	}
	return thresholds, nil
}

func (a *App) buildEngine(cfg *config.Config, loader *parser.GrammarLoader, reg *rules.Registry, thresholds complexity.Thresholds) (*router.Engine, error) {
	workers := cfg.Analysis.Workers
	if a.opts.Workers > 0 {
		workers = a.opts.Workers
	}
	dup := cfg.DuplicationConfig()
	dup.Workers = workers
	return router.New(parser.NewParser(loader, cfg.ParserOptions()), reg, router.Config{
		Workers:        workers,
		Phase2Deadline: cfg.Analysis.Phase2Deadline,
		CacheSize:      cfg.Analysis.CacheSize,
		Duplication:    dup,
		Thresholds:     thresholds,
		Architecture:   cfg.GraphArchitecture(),
	})
}

func (a *App) rulePaths(paths config.ResolvedPaths) []string {
	out := append([]string(nil), paths.RulesDirs...)
	for _, p := range a.opts.RulesPaths {
		out = append(out, config.ResolveRelative(a.cwd, p))
	}
	return out
}

// engineSettingsEqual reports whether two configurations build the same
// engine, so a reload only needs a new rule registry. Thresholds are
// compared after resolution by the caller.
func engineSettingsEqual(prev, next *config.Config) bool {
	if prev == nil || next == nil {
		return false
	}
	return reflect.DeepEqual(prev.Languages, next.Languages) &&
		prev.Analysis == next.Analysis &&
		prev.Duplication == next.Duplication &&
		reflect.DeepEqual(prev.Architecture, next.Architecture)
}

func openHistory(path string) ports.HistoryStore {
	store, err := history.Open(path)
	if err != nil {
		slog.Warn("history disabled", "path", path, "error", err)
		return nil
	}
	return store
}

// Reload swaps in a new configuration. On error the previous one stays
// active.
func (a *App) Reload(cfg *config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.apply(cfg, false); err != nil {
		slog.Error("config reload rejected; keeping previous configuration", "error", err)
		return err
	}
	return nil
}

// Close releases the engine, the rule registry and the history store.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.engine != nil {
		reg := a.engine.Registry()
		a.engine.Close()
		reg.Close()
		a.engine = nil
	}
	if a.history != nil {
		err := a.history.Close()
		a.history = nil
		return err
	}
	return nil
}

func pick(override, fallback []string) []string {
	if len(override) > 0 {
		return override
	}
	return fallback
}

func pickString(override, fallback string) string {
	if override != "" {
		return override
	}
	return fallback
}

func projectName(root string) string {
	return filepath.Base(root)
}
