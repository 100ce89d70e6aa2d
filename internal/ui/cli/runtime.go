// Package cli is the command-line surface: flags, logging, exit codes and
// watch mode.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	coreapp "archguard/internal/core/app"
	"archguard/internal/core/config"
	"archguard/internal/engine/report"
	"archguard/internal/shared/observability"
	"archguard/internal/shared/version"
)

// Run executes the command line and returns the process exit code.
func Run(args []string) int {
	return run(context.Background(), args, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return report.ExitPass
		}
		fmt.Fprintln(stderr, err)
		return report.ExitEngineError
	}
	if opts.version {
		fmt.Fprintf(stdout, "%s %s\n", version.Name, version.Version)
		return report.ExitPass
	}

	cleanupLogs, err := configureLogging(opts, stderr)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return report.ExitEngineError
	}
	defer cleanupLogs()

	cwd, err := os.Getwd()
	if err != nil {
		slog.Error("failed to detect working directory", "error", err)
		return report.ExitEngineError
	}
	cfg, cfgPath, err := loadConfig(opts.configPath, opts.root, cwd)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return report.ExitEngineError
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Observability.OTLPEndpoint != "" {
		shutdown, err := observability.SetupTracing(ctx, observability.TracingConfig{
			Endpoint:    cfg.Observability.OTLPEndpoint,
			ServiceName: cfg.Observability.ServiceName,
			Insecure:    true,
		})
		if err != nil {
			slog.Warn("tracing disabled", "endpoint", cfg.Observability.OTLPEndpoint, "error", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdown(sctx); err != nil {
					slog.Warn("tracing shutdown failed", "error", err)
				}
			}()
		}
	}

	var last atomic.Pointer[report.ValidationReport]
	if addr := cfg.Observability.MetricsAddr; addr != "" {
		srv := NewObservabilityServer(addr, func() *report.ValidationReport { return last.Load() })
		if err := srv.Start(ctx); err != nil {
			slog.Warn("observability server disabled", "addr", addr, "error", err)
		} else {
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Stop(sctx)
			}()
		}
	}

	appOpts := coreapp.Options{
		Root:       opts.root,
		RulesPaths: opts.rules,
		Quick:      opts.quick,
		FailOn:     opts.failOn,
		Formats:    opts.formats,
		OutputDir:  opts.outDir,
		Workers:    opts.workers,
		Color:      colorEnabled(stdout),
		Stdout:     stdout,
	}
	if opts.watch {
		appOpts.ConfigPath = cfgPath
	}
	var bar *progressReporter
	if opts.progress {
		bar = newProgressReporter(stderr)
		appOpts.Progress = bar.Update
	}

	a, err := coreapp.New(cfg, appOpts)
	if err != nil {
		slog.Error("failed to initialize", "error", err)
		return report.ExitEngineError
	}
	defer a.Close()

	if opts.watch {
		err := a.Watch(ctx, func(rep *report.ValidationReport, err error) {
			bar.Reset()
			if err != nil {
				slog.Error("validation failed", "error", err)
				return
			}
			last.Store(rep)
		})
		if err != nil {
			slog.Error("watch failed", "error", err)
			return report.ExitEngineError
		}
		return report.ExitPass
	}

	rep, err := a.Validate(ctx)
	if rep != nil {
		last.Store(rep)
	}
	if err != nil {
		slog.Error("validation failed", "error", err)
		return report.ExitEngineError
	}
	return rep.ExitCode()
}

// loadConfig reads an explicit -config, else archguard.toml from the root
// argument or the working directory when one exists, else the defaults.
// The returned path is empty when no file was read.
func loadConfig(path, root, cwd string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	dir := cwd
	if root != "" {
		dir = config.ResolveRelative(cwd, root)
	}
	candidate := filepath.Join(dir, config.DefaultFile)
	cfg, found, err := config.LoadOptional(candidate)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return cfg, "", nil
	}
	slog.Debug("using config", "path", candidate)
	return cfg, candidate, nil
}

// colorEnabled styles output only for terminals and when NO_COLOR is unset.
func colorEnabled(w io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	return err == nil && info.Mode()&os.ModeCharDevice != 0
}
