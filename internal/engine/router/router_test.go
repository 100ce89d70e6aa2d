package router

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"archguard/internal/engine/checks"
	"archguard/internal/engine/complexity"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/parser"
	"archguard/internal/engine/report"
	"archguard/internal/engine/rules"
	"archguard/internal/engine/unit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixture struct {
	root  string
	files []string
}

func (f *fixture) write(t *testing.T, rel, content string) {
	t.Helper()
	path := filepath.Join(f.root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	if filepath.Ext(rel) != ".mod" {
		f.files = append(f.files, path)
	}
}

func newFixture(t *testing.T) *fixture {
	return &fixture{root: t.TempDir()}
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	loader, err := parser.NewGrammarLoader(nil)
	require.NoError(t, err)
	reg, err := rules.Load(rules.Options{Loader: loader})
	require.NoError(t, err)
	t.Cleanup(reg.Close)

	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	e, err := New(parser.NewParser(loader, parser.Options{}), reg, cfg)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func countRule(rep *report.ValidationReport, id string) int {
	n := 0
	for _, v := range rep.Violations {
		if v.RuleID == id {
			n++
		}
	}
	return n
}

func TestRun_UnparsableFileIsIsolated(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 100; i++ {
		fx.write(t, fmt.Sprintf("p%d/f.go", i), fmt.Sprintf("package p%d\n\n// TODO: document F%d\nfunc F%d() int { return %d }\n", i, i, i, i))
	}
	fx.write(t, "broken/b.go", "package broken\n\nfunc (\n")

	e := newEngine(t, Config{})
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)

	assert.Equal(t, 101, rep.Stats.Files)
	assert.Equal(t, 100, rep.Stats.Parsed)
	assert.Equal(t, 1, rep.Stats.Unparsable)
	assert.Equal(t, 1, countRule(rep, rules.RuleUnparsable))
	assert.Equal(t, 100, countRule(rep, "HYG001"))

	for _, v := range rep.Violations {
		if v.RuleID == rules.RuleUnparsable {
			assert.Equal(t, "broken/b.go", v.Path)
		}
	}
	assert.NotEqual(t, report.StatusDegraded, rep.Status)
}

// nestedGo renders a Go function whose if statements nest depth levels deep.
func nestedGo(pkg string, depth int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "package %s\n\nfunc Deep(x int) int {\n", pkg)
	for i := 1; i <= depth; i++ {
		fmt.Fprintf(&b, "%sif x > %d {\n", strings.Repeat("\t", i), i)
	}
	fmt.Fprintf(&b, "%sreturn x\n", strings.Repeat("\t", depth+1))
	for i := depth; i >= 1; i-- {
		fmt.Fprintf(&b, "%s}\n", strings.Repeat("\t", i))
	}
	b.WriteString("\treturn 0\n}\n")
	return b.String()
}

func TestRun_DefaultThresholdsApplyWithoutConfig(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "deep/a.go", nestedGo("deep", 5))
	fx.write(t, "flat/b.go", nestedGo("flat", 4))

	e := newEngine(t, Config{})
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)

	var nesting []report.Violation
	for _, v := range rep.Violations {
		if v.RuleID == "CPLX002" {
			nesting = append(nesting, v)
		}
	}
	require.Len(t, nesting, 1, "depth equal to the default limit passes")
	assert.Equal(t, "deep/a.go", nesting[0].Path)
	require.NotNil(t, nesting[0].Value)
	require.NotNil(t, nesting[0].Limit)
	assert.Equal(t, 5, *nesting[0].Value)
	assert.Equal(t, complexity.DefaultLimits().Nesting, *nesting[0].Limit)
	require.NotEmpty(t, rep.Stats.Hotspots)
	assert.Equal(t, "deep/a.go", rep.Stats.Hotspots[0].Path)
}

func TestRun_DocumentationAndStructSize(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "model/order.go", `package model

// Order is a placed order.
type Order struct {
	ID, Customer, Address, City string
	Zip, Country, Phone, Email  string
}

func Total(o Order) int { return len(o.ID) }
`)
	fx.write(t, "model/order_test.go", `package model

import "testing"

func TestTotal(t *testing.T) {}
`)

	e := newEngine(t, Config{})
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)

	byRule := map[string][]report.Violation{}
	for _, v := range rep.Violations {
		byRule[v.RuleID] = append(byRule[v.RuleID], v)
	}
	require.Len(t, byRule["DOC001"], 1)
	assert.Equal(t, 9, byRule["DOC001"][0].StartLine)
	require.Len(t, byRule["KISS001"], 1)
	assert.Equal(t, "type Order declares 8 fields (limit 7)", byRule["KISS001"][0].Message)
	require.Len(t, byRule["TST001"], 1)
	assert.Equal(t, "model/order_test.go", byRule["TST001"][0].Path)
}

func layeredArchitecture() graph.Architecture {
	return graph.Architecture{
		Layers: []graph.Layer{
			{Name: "domain", Paths: []string{"domain"}},
			{Name: "infrastructure", Paths: []string{"infrastructure"}},
		},
		Order: []string{"domain", "infrastructure"},
	}
}

func TestRun_InfrastructureMayDependOnDomain(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "go.mod", "module example.com/app\n\ngo 1.22\n")
	fx.write(t, "domain/order.go", "package domain\n\ntype Order struct{ ID int }\n")
	fx.write(t, "infrastructure/store.go", `package infrastructure

import "example.com/app/domain"

func Save(o domain.Order) int { return o.ID }
`)

	e := newEngine(t, Config{Architecture: layeredArchitecture()})
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)

	assert.Equal(t, 0, countRule(rep, "DEP002"))
	assert.Equal(t, 0, countRule(rep, "DEP003"), "internal imports are not undeclared dependencies")
	assert.Equal(t, 1, rep.Stats.Edges)
	assert.Equal(t, []report.ModuleCoupling{{Module: "domain", FanIn: 1, FanOut: 0}}, rep.Stats.Coupling)
	require.Len(t, rep.Stats.Hotspots, 1)
	assert.Equal(t, report.Hotspot{Path: "infrastructure/store.go", Function: "Save", StartLine: 5, Cyclomatic: 1}, rep.Stats.Hotspots[0])
	assert.True(t, rep.Passed)
	assert.Equal(t, report.ExitPass, rep.ExitCode())
}

func TestRun_DomainMustNotDependOnInfrastructure(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "go.mod", "module example.com/app\n\ngo 1.22\n")
	fx.write(t, "infrastructure/db.go", "package infrastructure\n\nconst DSN = \"db\"\n")
	fx.write(t, "domain/order.go", `package domain

import "example.com/app/infrastructure"

var dsn = infrastructure.DSN
`)

	e := newEngine(t, Config{Architecture: layeredArchitecture()})
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)

	require.Equal(t, 1, countRule(rep, "DEP002"))
	for _, v := range rep.Violations {
		if v.RuleID == "DEP002" {
			assert.Equal(t, "domain/order.go", v.Path)
			assert.Equal(t, 3, v.StartLine)
			assert.Contains(t, v.Message, "domain (domain) must not import infrastructure (infrastructure)")
			assert.Equal(t, rules.SeverityError, v.Severity)
		}
	}
	assert.False(t, rep.Passed)
	assert.Equal(t, report.ExitFail, rep.ExitCode())
}

func writeCycle(t *testing.T, fx *fixture) {
	fx.write(t, "go.mod", "module example.com/cyc\n\ngo 1.22\n")
	fx.write(t, "a/a.go", "package a\n\nimport \"example.com/cyc/b\"\n\nvar A = b.B\n")
	fx.write(t, "b/b.go", "package b\n\nimport \"example.com/cyc/c\"\n\nvar B = c.C\n")
	fx.write(t, "c/c.go", "package c\n\nimport \"example.com/cyc/a\"\n\nvar C = a.A\n")
}

func TestRun_ThreeModuleCycle(t *testing.T) {
	fx := newFixture(t)
	writeCycle(t, fx)

	e := newEngine(t, Config{})
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)

	require.Equal(t, 1, countRule(rep, "DEP001"))
	for _, v := range rep.Violations {
		if v.RuleID == "DEP001" {
			assert.Contains(t, v.Message, "a -> b -> c -> a")
			assert.Equal(t, "a/a.go", v.Path)
			assert.Len(t, v.Related, 3)
		}
	}
	assert.Equal(t, 1, rep.Stats.Cycles)
	assert.False(t, rep.Passed)
}

func TestRun_Phase2DeadlineDegrades(t *testing.T) {
	fx := newFixture(t)
	writeCycle(t, fx)

	e := newEngine(t, Config{})
	e.cfg.Phase2Deadline = -1
	rep, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files, Quick: true})
	require.NoError(t, err)

	assert.Equal(t, 0, countRule(rep, "DEP001"))
	require.Equal(t, 1, countRule(rep, rules.RuleDegraded))
	assert.Equal(t, []string{"cycles"}, rep.Stats.Degraded)
	assert.Equal(t, report.StatusDegraded, rep.Status)
	assert.Equal(t, report.ExitDegraded, rep.ExitCode())
}

func cloneSource(pkg string) string {
	return fmt.Sprintf(`package %s

func Merge(left, right []int) []int {
	out := make([]int, 0, len(left)+len(right))
	i, j := 0, 0
	for i < len(left) && j < len(right) {
		if left[i] <= right[j] {
			out = append(out, left[i])
			i++
		} else {
			out = append(out, right[j])
			j++
		}
	}
	out = append(out, left[i:]...)
	out = append(out, right[j:]...)
	return out
}
`, pkg)
}

func TestRun_QuickModeSkipsDuplication(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "x/merge.go", cloneSource("x"))
	fx.write(t, "y/merge.go", cloneSource("y"))

	e := newEngine(t, Config{})
	full, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files})
	require.NoError(t, err)
	require.Equal(t, 1, countRule(full, "DUP001"))
	for _, v := range full.Violations {
		if v.RuleID == "DUP001" {
			require.Len(t, v.Related, 1)
			assert.Greater(t, v.Score, 0.0)
		}
	}

	quick, err := e.Run(context.Background(), RunRequest{Root: fx.root, Files: fx.files, Quick: true})
	require.NoError(t, err)
	assert.Equal(t, 0, countRule(quick, "DUP001"))
	assert.Equal(t, 2, quick.Stats.CacheHits, "unchanged files come from the unit cache")
}

func TestRun_PatternRuleAndProgress(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "svc/svc.go", "package svc\n\nfunc Must(err error) {\n\tif err != nil {\n\t\tpanic(err)\n\t}\n}\n")
	fx.write(t, "svc/svc_test.go", "package svc\n\nfunc helper() { panic(\"x\") }\n")

	var seen []string
	e := newEngine(t, Config{})
	rep, err := e.Run(context.Background(), RunRequest{
		Root:  fx.root,
		Files: fx.files,
		Progress: func(done, total int, rel string) {
			assert.Equal(t, 2, total)
			seen = append(seen, rel)
		},
	})
	require.NoError(t, err)

	require.Equal(t, 1, countRule(rep, "GO001"))
	for _, v := range rep.Violations {
		if v.RuleID == "GO001" {
			assert.Equal(t, "svc/svc.go", v.Path)
			assert.Equal(t, 5, v.StartLine)
			assert.Equal(t, "panic in library code; return an error instead", v.Message)
		}
	}
	assert.ElementsMatch(t, []string{"svc/svc.go", "svc/svc_test.go"}, seen)
}

func TestEvalFileRule_PanicBecomesDiagnostic(t *testing.T) {
	e := newEngine(t, Config{})
	r := &run{registry: e.Registry()}
	boom := &rules.Rule{
		ID:       "BOOM",
		Name:     "boom",
		Category: "test",
		Severity: rules.SeverityError,
		Body: &rules.CheckBody{Check: checks.Check{
			ID:    "test.boom",
			Scope: checks.ScopeFile,
			File:  func(*checks.FileContext) []checks.Finding { panic("nil map") },
		}},
	}
	su := &unit.SourceUnit{RelPath: "a.go", Language: "go", Analysis: &unit.Analysis{}}

	got := e.evalFileRule(r, boom, su, nil)
	require.Len(t, got, 1)
	assert.Equal(t, rules.RuleExecutionFail, got[0].RuleID)
	assert.Equal(t, "a.go", got[0].Path)
	assert.True(t, strings.Contains(got[0].Message, "rule BOOM failed: nil map"))
}

func TestRun_CancelledContext(t *testing.T) {
	fx := newFixture(t)
	fx.write(t, "a.go", "package a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newEngine(t, Config{})
	_, err := e.Run(ctx, RunRequest{Root: fx.root, Files: fx.files})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_RejectsBadArchitecture(t *testing.T) {
	loader, err := parser.NewGrammarLoader(nil)
	require.NoError(t, err)
	reg, err := rules.Load(rules.Options{Loader: loader, SkipBuiltins: true})
	require.NoError(t, err)
	defer reg.Close()

	_, err = New(parser.NewParser(loader, parser.Options{}), reg, Config{
		Architecture: graph.Architecture{CompositionRoot: "cmd/*"},
	})
	assert.Error(t, err)
}
