package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"archguard/internal/engine/rules"
	"archguard/internal/shared/util"
	"archguard/internal/shared/version"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
)

// Options control visibility and the verdict. They never change a stored
// severity.
type Options struct {
	FailOn        rules.Severity
	MinSeverity   rules.Severity
	SuppressRules []string
	SuppressPaths []string
}

// Catalog resolves rule ids; *rules.Registry satisfies it.
type Catalog interface {
	Rule(id string) (*rules.Rule, bool)
}

type pathMatcher struct {
	raw  string
	glob glob.Glob
}

// Aggregator collects violations from every phase. It is not safe for
// concurrent use; the router merges worker results before adding them.
type Aggregator struct {
	opts          Options
	catalog       Catalog
	suppressRules map[string]bool
	suppressPaths []pathMatcher

	byKey     map[violationKey]int
	collected []Violation
	dupes     int
}

type violationKey struct {
	rule, path         string
	startLine, endLine int
}

func NewAggregator(catalog Catalog, opts Options) (*Aggregator, error) {
	if opts.FailOn == "" {
		opts.FailOn = rules.SeverityError
	}
	if opts.MinSeverity == "" {
		opts.MinSeverity = rules.SeverityInfo
	}
	if opts.FailOn.Rank() == 0 {
		return nil, fmt.Errorf("invalid fail-on severity %q", opts.FailOn)
	}
	if opts.MinSeverity.Rank() == 0 {
		return nil, fmt.Errorf("invalid minimum severity %q", opts.MinSeverity)
	}

	a := &Aggregator{
		opts:          opts,
		catalog:       catalog,
		suppressRules: make(map[string]bool, len(opts.SuppressRules)),
		byKey:         make(map[violationKey]int),
	}
	for _, id := range opts.SuppressRules {
		a.suppressRules[strings.TrimSpace(id)] = true
	}
	for _, raw := range opts.SuppressPaths {
		norm := util.NormalizePatternPath(raw)
		pm := pathMatcher{raw: norm}
		if strings.ContainsAny(norm, "*?[]{}") {
			g, err := glob.Compile(norm, '/')
			if err != nil {
				return nil, fmt.Errorf("invalid suppress path %q: %w", raw, err)
			}
			pm.glob = g
		}
		a.suppressPaths = append(a.suppressPaths, pm)
	}
	return a, nil
}

// Add records violations. A repeat of the same rule, file and line range is
// merged: the higher score wins, then the lexically smaller message.
func (a *Aggregator) Add(vs ...Violation) {
	for _, v := range vs {
		if a.catalog != nil {
			r, ok := a.catalog.Rule(v.RuleID)
			if !ok {
				// Unknown ids cannot be reported against the registry.
				continue
			}
			v.RuleName, v.Category, v.Severity = r.Name, r.Category, r.Severity
		}
		key := violationKey{rule: v.RuleID, path: v.Path, startLine: v.StartLine, endLine: v.EndLine}
		if i, ok := a.byKey[key]; ok {
			a.dupes++
			if prefer(v, a.collected[i]) {
				a.collected[i] = v
			}
			continue
		}
		a.byKey[key] = len(a.collected)
		a.collected = append(a.collected, v)
	}
}

func prefer(candidate, current Violation) bool {
	if candidate.Score != current.Score {
		return candidate.Score > current.Score
	}
	return candidate.Message < current.Message
}

func (a *Aggregator) suppressed(v Violation) bool {
	if a.suppressRules[v.RuleID] {
		return true
	}
	if v.Path == "" {
		return false
	}
	path := util.NormalizePatternPath(v.Path)
	for _, pm := range a.suppressPaths {
		if pm.glob != nil {
			if pm.glob.Match(path) {
				return true
			}
			continue
		}
		if util.HasPathPrefix(path, pm.raw) {
			return true
		}
	}
	return false
}

// Meta is the run information that is not derived from violations.
type Meta struct {
	Root      string
	StartedAt time.Time
	Quick     bool
	Stats     Stats
}

// Finish sorts, filters and counts the collected violations and decides the
// verdict.
func (a *Aggregator) Finish(meta Meta) *ValidationReport {
	rep := &ValidationReport{
		RunID:       uuid.NewString(),
		Tool:        version.Name,
		Version:     version.Version,
		Root:        meta.Root,
		StartedAt:   meta.StartedAt,
		Quick:       meta.Quick,
		FailOn:      a.opts.FailOn,
		MinSeverity: a.opts.MinSeverity,
		Stats:       meta.Stats,
		Passed:      true,
		Violations:  []Violation{},
		Counts: Counts{
			BySeverity: map[string]int{},
			ByCategory: map[string]int{},
			ByTier:     map[Tier]int{},
			Duplicates: a.dupes,
		},
	}
	if !meta.StartedAt.IsZero() {
		rep.Duration = time.Since(meta.StartedAt)
	}

	degraded := len(meta.Stats.Degraded) > 0
	referenced := map[string]bool{}
	for _, v := range a.collected {
		if v.RuleID == rules.RuleExecutionFail || v.RuleID == rules.RuleDegraded {
			degraded = true
		}
		if a.suppressed(v) {
			rep.Counts.Suppressed++
			continue
		}
		rep.Counts.Total++
		rep.Counts.BySeverity[string(v.Severity)]++
		rep.Counts.ByCategory[v.Category]++
		rep.Counts.ByTier[v.Tier()]++
		if v.Severity.AtLeast(a.opts.FailOn) {
			rep.Passed = false
		}
		if !v.Severity.AtLeast(a.opts.MinSeverity) {
			rep.Counts.Hidden++
			continue
		}
		rep.Violations = append(rep.Violations, v)
		referenced[v.RuleID] = true
	}
	slices.SortFunc(rep.Violations, compareViolations)

	switch {
	case degraded:
		rep.Status = StatusDegraded
	case rep.Counts.Total > 0:
		// Hidden violations still count; only suppression makes a run clean.
		rep.Status = StatusViolations
	default:
		rep.Status = StatusClean
	}

	for _, id := range util.SortedStringKeys(referenced) {
		info := RuleInfo{ID: id}
		if a.catalog != nil {
			if r, ok := a.catalog.Rule(id); ok {
				info = RuleInfo{ID: r.ID, Name: r.Name, Category: r.Category, Severity: r.Severity, Description: r.Description}
			}
		}
		rep.Rules = append(rep.Rules, info)
	}
	return rep
}

func compareViolations(x, y Violation) int {
	return cmp.Or(
		cmp.Compare(x.Path, y.Path),
		cmp.Compare(x.StartLine, y.StartLine),
		cmp.Compare(x.EndLine, y.EndLine),
		cmp.Compare(x.RuleID, y.RuleID),
		cmp.Compare(x.Message, y.Message),
	)
}
