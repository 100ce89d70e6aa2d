// Package router runs a validation: Phase 1 evaluates file rules per source
// unit in parallel, a single reduce builds the cross-file structures, and
// Phase 2 evaluates project rules against them under a soft deadline.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"archguard/internal/engine/checks"
	"archguard/internal/engine/complexity"
	"archguard/internal/engine/deps"
	"archguard/internal/engine/duplication"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/parser"
	"archguard/internal/engine/report"
	"archguard/internal/engine/rules"
	"archguard/internal/engine/unit"
	"archguard/internal/shared/observability"

	"go.opentelemetry.io/otel/attribute"
)

// Config is the engine configuration that outlives a single run.
type Config struct {
	Workers        int
	Phase2Deadline time.Duration
	CacheSize      int
	Duplication    duplication.Config
	Thresholds     complexity.Thresholds
	Architecture   graph.Architecture
}

const (
	defaultPhase2Deadline = 30 * time.Second
	defaultCacheSize      = 4096
)

// ProgressFunc is told about every file Phase 1 finishes. Calls are
// serialized.
type ProgressFunc func(done, total int, relPath string)

// RunRequest is one validation of a file set.
type RunRequest struct {
	Root  string
	Files []string
	Quick bool
	// FailOn overrides Report.FailOn when set.
	FailOn rules.Severity
	Report report.Options
	// Deps are loaded from the root manifests when nil.
	Deps     *deps.Set
	Progress ProgressFunc
}

// Engine owns the parser, the rule registry and the unit cache. Runs may
// not overlap; the cache is retained between runs.
type Engine struct {
	cfg        Config
	parser     *parser.Parser
	registry   atomic.Pointer[rules.Registry]
	cache      *unit.Cache
	layers     *graph.LayerPolicy
	complexity *complexity.Engine
	dup        *duplication.Detector

	runMu sync.Mutex
}

func New(p *parser.Parser, reg *rules.Registry, cfg Config) (*Engine, error) {
	if p == nil || reg == nil {
		return nil, fmt.Errorf("router: parser and registry are required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Phase2Deadline <= 0 {
		cfg.Phase2Deadline = defaultPhase2Deadline
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	if cfg.Duplication.Window == 0 {
		cfg.Duplication = duplication.DefaultConfig()
	}
	if cfg.Duplication.Workers <= 0 {
		cfg.Duplication.Workers = cfg.Workers
	}
	if cfg.Thresholds.IsZero() {
		defaults, err := complexity.NewThresholds()
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = defaults
	}
	layers, err := graph.NewLayerPolicy(cfg.Architecture)
	if err != nil {
		return nil, fmt.Errorf("architecture: %w", err)
	}

	e := &Engine{
		cfg:        cfg,
		parser:     p,
		cache:      unit.NewCache(cfg.CacheSize),
		layers:     layers,
		complexity: complexity.NewEngine(cfg.Thresholds),
		dup:        duplication.NewDetector(cfg.Duplication),
	}
	e.registry.Store(reg)
	return e, nil
}

// Registry returns the registry the next run will use.
func (e *Engine) Registry() *rules.Registry { return e.registry.Load() }

// SetRegistry swaps in a freshly loaded registry and returns the previous
// one. The caller closes the old registry once no run uses it.
func (e *Engine) SetRegistry(reg *rules.Registry) *rules.Registry {
	return e.registry.Swap(reg)
}

// Close releases every cached syntax tree.
func (e *Engine) Close() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	e.cache.Purge()
}

// run is the state of one validation shared by the phases.
type run struct {
	req      RunRequest
	registry *rules.Registry
	declared *deps.Set
	started  time.Time
	stats    report.Stats
	// imports by relative path, filled at the end of Phase 1.
	imports map[string][]checks.ResolvedImport
}

// Run validates req.Files. Only load-time problems and cancellation of ctx
// return an error; parse failures, rule failures and deadline expiry are
// reported as diagnostics in the result.
func (e *Engine) Run(ctx context.Context, req RunRequest) (*report.ValidationReport, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	ctx, span := observability.Tracer.Start(ctx, "router.Run")
	defer span.End()

	r := &run{req: req, registry: e.registry.Load(), declared: req.Deps, started: time.Now()}
	if r.declared == nil {
		declared, err := deps.Load(req.Root)
		if err != nil {
			return nil, fmt.Errorf("load manifests: %w", err)
		}
		r.declared = declared
	}

	opts := req.Report
	if req.FailOn != "" {
		opts.FailOn = req.FailOn
	}
	agg, err := report.NewAggregator(r.registry, opts)
	if err != nil {
		return nil, err
	}

	files := append([]string(nil), req.Files...)
	sort.Strings(files)
	span.SetAttributes(attribute.Int("files", len(files)), attribute.Bool("quick", req.Quick))

	units, violations, err := e.phase1(ctx, r, files)
	if err != nil {
		return nil, err
	}
	agg.Add(violations...)

	structures := e.barrier(ctx, r, units)
	agg.Add(e.phase2(ctx, r, structures)...)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	swept := e.cache.Sweep()
	rep := agg.Finish(report.Meta{Root: req.Root, StartedAt: r.started, Quick: req.Quick, Stats: r.stats})
	for _, v := range rep.Violations {
		observability.ViolationsTotal.WithLabelValues(string(v.Severity)).Inc()
	}
	if rep.Status == report.StatusDegraded {
		observability.DegradedRunsTotal.Inc()
	}
	slog.Info("validation finished",
		"status", rep.Status,
		"passed", rep.Passed,
		"violations", rep.Counts.Total,
		"files", r.stats.Files,
		"cache_released", swept,
		"duration", time.Since(r.started).Round(time.Millisecond))
	return rep, nil
}
