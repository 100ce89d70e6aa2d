package router

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	domainerrors "archguard/internal/core/errors"
	"archguard/internal/engine/checks"
	"archguard/internal/engine/facts"
	"archguard/internal/engine/parser"
	"archguard/internal/engine/report"
	"archguard/internal/engine/resolver"
	"archguard/internal/engine/rules"
	"archguard/internal/engine/unit"
	"archguard/internal/shared/observability"
	"archguard/internal/shared/util"

	"golang.org/x/sync/errgroup"
)

// fileResult is written by exactly one Phase 1 worker.
type fileResult struct {
	unit       *unit.SourceUnit
	imports    []checks.ResolvedImport
	violations []report.Violation
	hit        bool
}

func (e *Engine) phase1(ctx context.Context, r *run, files []string) ([]*unit.SourceUnit, []report.Violation, error) {
	ctx, span := observability.Tracer.Start(ctx, "router.phase1")
	defer span.End()
	start := time.Now()
	defer func() { observability.PhaseDuration.WithLabelValues("phase1").Observe(time.Since(start).Seconds()) }()

	loader := e.parser.Loader()
	rels := make([]string, len(files))
	for i, path := range files {
		rels[i] = util.RelSlash(r.req.Root, path)
	}
	res := resolver.New(rels, r.declared.GoModule)

	results := make([]fileResult, len(files))
	var (
		progressMu sync.Mutex
		done       int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)
	for i := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = e.processFile(r, res, loader, files[i], rels[i])
			if r.req.Progress != nil {
				progressMu.Lock()
				done++
				r.req.Progress(done, len(files), rels[i])
				progressMu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	units := make([]*unit.SourceUnit, 0, len(results))
	var violations []report.Violation
	for _, fr := range results {
		units = append(units, fr.unit)
		violations = append(violations, fr.violations...)
		r.stats.Files++
		if fr.hit {
			r.stats.CacheHits++
		}
		if fr.unit.Parsed() {
			r.stats.Parsed++
		} else {
			r.stats.Unparsable++
		}
	}
	r.imports = make(map[string][]checks.ResolvedImport, len(results))
	for _, fr := range results {
		r.imports[fr.unit.RelPath] = fr.imports
	}
	slog.Debug("phase 1 complete", "files", len(files), "parsed", r.stats.Parsed, "cache_hits", r.stats.CacheHits)
	return units, violations, nil
}

// processFile parses one file through the unit cache and evaluates its file
// rules. Nothing here may fail the run.
func (e *Engine) processFile(r *run, res *resolver.Resolver, loader *parser.GrammarLoader, path, rel string) fileResult {
	su := &unit.SourceUnit{Path: path, RelPath: rel, Language: loader.DetectLanguage(path), Module: resolver.ModuleOf(rel)}
	out := fileResult{unit: su}

	content, err := os.ReadFile(path)
	if err != nil {
		su.Analysis = &unit.Analysis{Err: domainerrors.AddContext(
			domainerrors.Wrap(err, domainerrors.CodeParse, "read failed"), domainerrors.CtxPath, rel)}
	} else {
		su.Hash = unit.HashContent(content)
		su.Analysis, out.hit = e.cache.GetOrCreate(unit.Key{Language: su.Language, Hash: su.Hash}, func() *unit.Analysis {
			return e.analyze(su.Language, rel, content)
		})
	}

	if !su.Parsed() {
		observability.FilesAnalyzedTotal.WithLabelValues("unparsable").Inc()
		out.violations = append(out.violations, e.unparsable(r, rel, su.Analysis.Err))
		return out
	}
	observability.FilesAnalyzedTotal.WithLabelValues("parsed").Inc()

	for _, imp := range su.Facts().Imports {
		out.imports = append(out.imports, checks.ResolvedImport{
			Raw:    imp.Path,
			Line:   imp.Line,
			Target: res.Resolve(su.Language, rel, imp.Path),
		})
	}

	for _, rule := range r.registry.RulesFor(su.Language, rel, r.declared) {
		if r.req.Quick && !rule.Quick {
			continue
		}
		out.violations = append(out.violations, e.evalFileRule(r, rule, su, out.imports)...)
	}
	return out
}

// analyze builds the path-independent analysis of one content blob. A panic
// inside a grammar is contained to this file.
func (e *Engine) analyze(language, rel string, content []byte) (a *unit.Analysis) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("parser panic", "path", rel, "panic", rec)
			a = &unit.Analysis{Err: domainerrors.AddContext(
				domainerrors.New(domainerrors.CodeParse, fmt.Sprintf("parser panic: %v", rec)), domainerrors.CtxPath, rel)}
		}
	}()
	if language == "" {
		syntax, err := e.parser.Parse(rel, content)
		if err != nil {
			return &unit.Analysis{Err: err}
		}
		return &unit.Analysis{Syntax: syntax, Facts: facts.Extract(syntax.Root)}
	}
	syntax, err := e.parser.ParseAs(language, rel, content)
	if err != nil {
		return &unit.Analysis{Err: err}
	}
	return &unit.Analysis{Syntax: syntax, Facts: facts.Extract(syntax.Root)}
}

func (e *Engine) unparsable(r *run, rel string, cause error) report.Violation {
	rule, _ := r.registry.Rule(rules.RuleUnparsable)
	msg := "file could not be parsed"
	if cause != nil {
		msg += ": " + domainerrors.Reason(cause)
	}
	slog.Warn("unparsable file", "path", rel, "error", cause)
	return report.New(rule, rel, 1, 1, msg)
}

// evalFileRule runs one rule against one file. A panic becomes a single
// rule-execution diagnostic for this rule and file.
func (e *Engine) evalFileRule(r *run, rule *rules.Rule, su *unit.SourceUnit, imports []checks.ResolvedImport) (out []report.Violation) {
	observability.RuleExecutionsTotal.WithLabelValues("phase1").Inc()
	defer func() {
		if rec := recover(); rec != nil {
			out = []report.Violation{e.executionFailed(r, rule, su.RelPath, rec)}
		}
	}()

	switch body := rule.Body.(type) {
	case *rules.PatternBody:
		q, ok := rule.Query(su.Language)
		if !ok {
			return nil
		}
		su.Analysis.Syntax.Query(q, func(captures []parser.Capture) {
			out = append(out, patternViolation(rule, su.RelPath, captures))
		})
	case *rules.CheckBody:
		fc := &checks.FileContext{
			Path:     su.RelPath,
			Language: su.Language,
			Module:   su.Module,
			Facts:    su.Facts(),
			Imports:  imports,
			Deps:     r.declared,
			Params:   rule.Params,
		}
		for _, f := range body.Check.File(fc) {
			if f.Path == "" {
				f.Path = su.RelPath
			}
			out = append(out, findingViolation(rule, f))
		}
	}
	return out
}

func (e *Engine) executionFailed(r *run, rule *rules.Rule, rel string, rec any) report.Violation {
	observability.RuleFailuresTotal.WithLabelValues(rule.ID).Inc()
	err := domainerrors.AddContext(
		domainerrors.New(domainerrors.CodeRuleExecution, fmt.Sprintf("panic: %v", rec)), domainerrors.CtxRule, rule.ID)
	slog.Error("rule execution failed", "path", rel, "error", err, "stack", string(debug.Stack()))
	diag, _ := r.registry.Rule(rules.RuleExecutionFail)
	v := report.New(diag, rel, 1, 1, fmt.Sprintf("rule %s failed: %v", rule.ID, rec))
	if rel == "" {
		v.StartLine, v.EndLine = 0, 0
	}
	return v
}

// patternViolation reports one query match. The location is the capture
// named "violation" when present, otherwise the first capture.
func patternViolation(rule *rules.Rule, rel string, captures []parser.Capture) report.Violation {
	vars := make(map[string]string, len(captures))
	var loc *parser.Capture
	for i := range captures {
		c := &captures[i]
		if _, seen := vars[c.Name]; !seen {
			vars[c.Name] = c.Text
		}
		if c.Name == "violation" || loc == nil {
			loc = c
		}
	}
	start, end := 1, 1
	if loc != nil {
		start, end = loc.Span.StartLine, loc.Span.EndLine
	}
	return report.New(rule, rel, start, end, rule.Render(vars, rule.Name))
}

func findingViolation(rule *rules.Rule, f checks.Finding) report.Violation {
	v := report.New(rule, f.Path, f.StartLine, f.EndLine, rule.Render(f.Vars, f.Message))
	v.Value, v.Limit, v.Score = f.Value, f.Limit, f.Score
	for _, rel := range f.Related {
		v.Related = append(v.Related, report.Location{Path: rel.Path, StartLine: rel.StartLine, EndLine: rel.EndLine})
	}
	return v
}
