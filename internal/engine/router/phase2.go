package router

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	domainerrors "archguard/internal/core/errors"
	"archguard/internal/engine/checks"
	"archguard/internal/engine/complexity"
	"archguard/internal/engine/duplication"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/report"
	"archguard/internal/engine/resolver"
	"archguard/internal/engine/rules"
	"archguard/internal/engine/unit"
	"archguard/internal/shared/observability"

	"golang.org/x/sync/errgroup"
)

// structures are the read-only products of the barrier reduce.
type structures struct {
	graph      *graph.Graph
	complexity complexity.Report
	dupIndex   *duplication.Index
	rules      []*rules.Rule
	need       checks.Analysis
	degraded   []string
}

// barrier is the one hard ordering point: graph, complexity aggregates and
// the fingerprint index are all complete before any project rule runs.
func (e *Engine) barrier(ctx context.Context, r *run, units []*unit.SourceUnit) *structures {
	ctx, span := observability.Tracer.Start(ctx, "router.barrier")
	defer span.End()
	start := time.Now()
	defer func() { observability.PhaseDuration.WithLabelValues("barrier").Observe(time.Since(start).Seconds()) }()

	projectRules := r.registry.ProjectRules(r.req.Quick, r.declared)
	s := &structures{rules: projectRules, need: rules.Needs(projectRules)}

	var g errgroup.Group
	g.Go(func() error {
		s.graph = buildGraph(units, r.imports)
		return nil
	})
	if s.need.Has(checks.AnalysisComplexity) {
		g.Go(func() error {
			inputs := make([]complexity.Input, 0, len(units))
			for _, u := range units {
				inputs = append(inputs, complexity.Input{Path: u.RelPath, Language: u.Language, Facts: u.Facts()})
			}
			s.complexity = e.complexity.Analyze(ctx, inputs)
			return nil
		})
	}
	if s.need.Has(checks.AnalysisDuplication) {
		g.Go(func() error {
			inputs := make([]duplication.Input, 0, len(units))
			for _, u := range units {
				if u.Parsed() {
					inputs = append(inputs, duplication.Input{Path: u.RelPath, Tokens: u.Facts().Tokens})
				}
			}
			s.dupIndex = e.dup.Index(ctx, inputs)
			return nil
		})
	}
	_ = g.Wait()

	if s.complexity.Partial {
		s.degraded = append(s.degraded, "complexity")
	}
	r.stats.Modules = s.graph.NodeCount()
	r.stats.Edges = s.graph.EdgeCount()
	r.stats.Coupling = couplingStats(s.graph.TopFanIn(statsTopN))
	r.stats.Hotspots = hotspotStats(s.complexity.Hotspots(statsTopN))
	observability.GraphNodes.Set(float64(r.stats.Modules))
	observability.GraphEdges.Set(float64(r.stats.Edges))
	slog.Debug("barrier complete", "modules", r.stats.Modules, "edges", r.stats.Edges, "project_rules", len(projectRules))
	return s
}

// statsTopN bounds the coupling and hotspot lists of a report.
const statsTopN = 5

func couplingStats(top []graph.ModuleMetrics) []report.ModuleCoupling {
	if len(top) == 0 {
		return nil
	}
	out := make([]report.ModuleCoupling, len(top))
	for i, m := range top {
		out[i] = report.ModuleCoupling{Module: m.Module, FanIn: m.FanIn, FanOut: m.FanOut}
	}
	return out
}

func hotspotStats(top []complexity.FunctionScore) []report.Hotspot {
	if len(top) == 0 {
		return nil
	}
	out := make([]report.Hotspot, len(top))
	for i, f := range top {
		out[i] = report.Hotspot{Path: f.Path, Function: f.Function, StartLine: f.StartLine, Cyclomatic: f.Cyclomatic}
	}
	return out
}

// buildGraph adds every unit's module and one edge per internal import that
// leaves the module.
func buildGraph(units []*unit.SourceUnit, imports map[string][]checks.ResolvedImport) *graph.Graph {
	b := graph.NewBuilder()
	for _, u := range units {
		b.AddModule(u.Module)
		for _, imp := range imports[u.RelPath] {
			if imp.Target.Kind != resolver.TargetInternal || imp.Target.Module == u.Module {
				continue
			}
			b.AddEdge(graph.Edge{From: u.Module, To: imp.Target.Module, File: u.RelPath, Line: imp.Line, Import: imp.Raw})
		}
	}
	return b.Build()
}

// phase2 runs the deadline-bound analyses, then every project rule against
// their read-only results. An analysis interrupted by the deadline keeps its
// partial result and adds one degraded-analysis diagnostic.
func (e *Engine) phase2(ctx context.Context, r *run, s *structures) []report.Violation {
	ctx, span := observability.Tracer.Start(ctx, "router.phase2")
	defer span.End()
	start := time.Now()
	defer func() { observability.PhaseDuration.WithLabelValues("phase2").Observe(time.Since(start).Seconds()) }()

	dctx, cancel := context.WithTimeout(ctx, e.cfg.Phase2Deadline)
	defer cancel()

	pc := &checks.ProjectContext{Graph: s.graph, Complexity: s.complexity}
	var (
		mu       sync.Mutex
		degraded = append([]string(nil), s.degraded...)
	)
	markPartial := func(name string, partial bool) {
		if !partial {
			return
		}
		mu.Lock()
		degraded = append(degraded, name)
		mu.Unlock()
	}

	var g errgroup.Group
	if s.need.Has(checks.AnalysisCycles) {
		g.Go(func() error {
			var partial bool
			pc.Cycles, partial = s.graph.Cycles(dctx)
			markPartial("cycles", partial)
			return nil
		})
	}
	if s.need.Has(checks.AnalysisLayers) && e.layers.Enabled() {
		g.Go(func() error {
			var partial bool
			pc.Layers, partial = e.layers.Violations(dctx, s.graph)
			markPartial("layers", partial)
			return nil
		})
	}
	if s.need.Has(checks.AnalysisDuplication) && s.dupIndex != nil {
		g.Go(func() error {
			pc.Duplicates = s.dupIndex.Clusters(dctx)
			markPartial("duplication", pc.Duplicates.Partial)
			return nil
		})
	}
	_ = g.Wait()

	r.stats.Cycles = len(pc.Cycles)
	r.stats.Clusters = len(pc.Duplicates.Clusters)
	r.stats.Rules = r.registry.Len()
	observability.DuplicateClusters.Set(float64(r.stats.Clusters))

	results := make([][]report.Violation, len(s.rules))
	var rg errgroup.Group
	rg.SetLimit(e.cfg.Workers)
	for i, rule := range s.rules {
		rg.Go(func() error {
			results[i] = e.evalProjectRule(r, rule, pc)
			return nil
		})
	}
	_ = rg.Wait()

	var out []report.Violation
	for _, vs := range results {
		out = append(out, vs...)
	}

	sort.Strings(degraded)
	r.stats.Degraded = degraded
	if len(degraded) > 0 {
		diag, _ := r.registry.Rule(rules.RuleDegraded)
		for _, name := range degraded {
			err := domainerrors.AddContext(
				domainerrors.New(domainerrors.CodeTimeout, "phase 2 deadline exceeded"), domainerrors.CtxAnalysis, name)
			slog.Warn("analysis degraded", "deadline", e.cfg.Phase2Deadline, "error", err)
			out = append(out, report.New(diag, "", 0, 0,
				fmt.Sprintf("%s analysis did not finish within %s; results are partial", name, e.cfg.Phase2Deadline)))
		}
	}
	return out
}

func (e *Engine) evalProjectRule(r *run, rule *rules.Rule, shared *checks.ProjectContext) (out []report.Violation) {
	observability.RuleExecutionsTotal.WithLabelValues("phase2").Inc()
	defer func() {
		if rec := recover(); rec != nil {
			out = []report.Violation{e.executionFailed(r, rule, "", rec)}
		}
	}()

	body, ok := rule.Body.(*rules.CheckBody)
	if !ok || body.Check.Project == nil {
		return nil
	}
	pc := *shared
	pc.Params = rule.Params

	loader := e.parser.Loader()
	for _, f := range body.Check.Project(&pc) {
		if f.Path != "" {
			if !rule.MatchesPath(f.Path) || !rule.MatchesLanguage(loader.DetectLanguage(f.Path)) {
				continue
			}
		}
		out = append(out, findingViolation(rule, f))
	}
	return out
}
