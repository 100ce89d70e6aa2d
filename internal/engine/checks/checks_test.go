package checks

import (
	"context"
	"testing"

	"archguard/internal/engine/complexity"
	"archguard/internal/engine/deps"
	"archguard/internal/engine/duplication"
	"archguard/internal/engine/facts"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/resolver"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTable(t *testing.T) {
	ids := IDs()
	for _, want := range []string{
		"naming.declarations", "hygiene.todo_markers", "imports.undeclared", "secrets.literals",
		"documentation.public_items", "documentation.module", "kiss.struct_fields", "tests.empty_bodies",
		"complexity.cyclomatic", "complexity.nesting", "complexity.parameters",
		"complexity.length", "complexity.file",
		"duplication.clusters", "graph.cycles", "graph.layers",
	} {
		assert.Contains(t, ids, want)
		c, ok := Lookup(want)
		require.True(t, ok)
		if c.Scope == ScopeFile {
			assert.NotNil(t, c.File, want)
			assert.Nil(t, c.Project, want)
		} else {
			assert.NotNil(t, c.Project, want)
			assert.Nil(t, c.File, want)
			assert.NotZero(t, c.Needs, want)
		}
	}
	_, ok := Lookup("nope")
	assert.False(t, ok)
}

func TestNaming(t *testing.T) {
	fc := &FileContext{
		Path:     "svc/handler.py",
		Language: "python",
		Facts: &facts.FileFacts{
			Functions: []facts.FunctionFact{
				{Name: "handle_request", Kind: "function", StartLine: 3},
				{Name: "__init__", Kind: "method", StartLine: 10},
				{Name: "doThing", Kind: "method", StartLine: 14},
				{Name: "<closure>", Kind: "closure", StartLine: 20},
			},
			Types: []facts.Declaration{
				{Name: "RequestHandler", Kind: "class", Line: 8},
				{Name: "bad_name", Kind: "class", Line: 30},
			},
		},
	}
	findings := checkNaming(fc)
	require.Len(t, findings, 2)
	assert.Equal(t, 14, findings[0].StartLine)
	assert.Equal(t, "doThing", findings[0].Vars["name"])
	assert.Equal(t, 30, findings[1].StartLine)

	fc.Params = map[string]string{"function_pattern": `^[a-zA-Z_]+$`}
	assert.Len(t, checkNaming(fc), 1)
}

func TestNaming_GoAllowsTestUnderscores(t *testing.T) {
	fc := &FileContext{
		Path:     "a_test.go",
		Language: "go",
		Facts: &facts.FileFacts{Functions: []facts.FunctionFact{
			{Name: "TestParse_Empty", Kind: "function", StartLine: 1},
			{Name: "parse_thing", Kind: "function", StartLine: 5},
			{Name: "String", Receiver: "Kind", Kind: "method", StartLine: 9},
		}},
	}
	findings := checkNaming(fc)
	require.Len(t, findings, 1)
	assert.Equal(t, "parse_thing", findings[0].Vars["name"])
}

func TestValidateNamingParams(t *testing.T) {
	assert.NoError(t, validateNamingParams(map[string]string{"type_pattern": "^[A-Z]"}))
	assert.Error(t, validateNamingParams(map[string]string{"function_pattern": "(["}))
}

func TestTodoMarkers(t *testing.T) {
	fc := &FileContext{
		Path: "a.go",
		Facts: &facts.FileFacts{Comments: []facts.CommentFact{
			{Text: "// TODO: split", Line: 4},
			{Text: "/* fine\n   FIXME later */", Line: 10},
			{Text: "// TODOS are not markers, nor is MYTODO", Line: 20},
		}},
	}
	findings := checkTodoMarkers(fc)
	require.Len(t, findings, 2)
	assert.Equal(t, 4, findings[0].StartLine)
	assert.Equal(t, "TODO", findings[0].Vars["marker"])
	assert.Equal(t, 11, findings[1].StartLine)
	assert.Equal(t, "FIXME", findings[1].Vars["marker"])

	fc.Params = map[string]string{"markers": "NOTE"}
	assert.Empty(t, checkTodoMarkers(fc))
}

func TestSecrets(t *testing.T) {
	fc := &FileContext{
		Path: "cfg/aws.go",
		Facts: &facts.FileFacts{Strings: []facts.StringFact{
			{Text: `"us-east-1"`, Line: 3},
			{Text: `"AKIA1234567890ABCDEF"`, Line: 4},
		}},
	}
	findings := checkSecrets(fc)
	require.Len(t, findings, 1)
	assert.Equal(t, 4, findings[0].StartLine)
	assert.Equal(t, "aws-access-key-id", findings[0].Vars["kind"])
	assert.Equal(t, "AKIA...CDEF", findings[0].Vars["masked"])
	assert.NotContains(t, findings[0].Message, "AKIA1234567890ABCDEF")

	fc.Params = map[string]string{"pattern": `us-[a-z]+-\d`}
	findings = checkSecrets(fc)
	require.Len(t, findings, 2)
	assert.Equal(t, "custom-pattern", findings[0].Vars["kind"])

	assert.Empty(t, checkSecrets(&FileContext{Path: "x.go", Facts: &facts.FileFacts{}}))
}

func TestValidateSecretParams(t *testing.T) {
	assert.NoError(t, validateSecretParams(nil))
	assert.NoError(t, validateSecretParams(map[string]string{"entropy_threshold": "3.5", "min_length": "16"}))
	assert.Error(t, validateSecretParams(map[string]string{"entropy_threshold": "-1"}))
	assert.Error(t, validateSecretParams(map[string]string{"min_length": "ten"}))
	assert.Error(t, validateSecretParams(map[string]string{"pattern": "("}))
}

func TestUndeclaredImports(t *testing.T) {
	set := deps.NewSet()
	set.Add(deps.EcosystemNPM, "react")
	set.Add(deps.EcosystemNPM, "@types/lodash")

	fc := &FileContext{
		Path:     "web/app.ts",
		Language: "typescript",
		Deps:     set,
		Imports: []ResolvedImport{
			{Raw: "react", Line: 1, Target: resolver.Target{Kind: resolver.TargetExternal, Package: "react"}},
			{Raw: "lodash", Line: 2, Target: resolver.Target{Kind: resolver.TargetExternal, Package: "lodash"}},
			{Raw: "axios", Line: 3, Target: resolver.Target{Kind: resolver.TargetExternal, Package: "axios"}},
			{Raw: "axios/lib", Line: 4, Target: resolver.Target{Kind: resolver.TargetExternal, Package: "axios"}},
			{Raw: "./util", Line: 5, Target: resolver.Target{Kind: resolver.TargetInternal, Module: "web"}},
			{Raw: "fs", Line: 6, Target: resolver.Target{Kind: resolver.TargetStdlib, Package: "fs"}},
		},
	}
	findings := checkUndeclaredImports(fc)
	require.Len(t, findings, 1)
	assert.Equal(t, "axios", findings[0].Vars["package"])
	assert.Equal(t, 3, findings[0].StartLine)

	fc.Params = map[string]string{"ignore": "axios"}
	assert.Empty(t, checkUndeclaredImports(fc))

	fc.Language = "python"
	fc.Params = nil
	assert.Empty(t, checkUndeclaredImports(fc), "python is not checked")

	fc.Language = "go"
	assert.Empty(t, checkUndeclaredImports(fc), "no go.mod, nothing to compare against")
}

func TestComplexityCheck(t *testing.T) {
	pc := &ProjectContext{Complexity: complexity.Report{Breaches: []complexity.Breach{
		{Measure: complexity.MeasureNesting, Path: "a.go", Function: "deep", StartLine: 3, EndLine: 9, Value: 5, Limit: 4},
		{Measure: complexity.MeasureFile, Path: "b.go", StartLine: 1, EndLine: 300, Value: 61, Limit: 50},
	}}}

	nesting := complexityCheck(complexity.MeasureNesting)(pc)
	require.Len(t, nesting, 1)
	assert.Equal(t, 5, *nesting[0].Value)
	assert.Equal(t, 4, *nesting[0].Limit)
	assert.Equal(t, "function deep has nesting depth 5 (limit 4)", nesting[0].Message)
	assert.Equal(t, "5", nesting[0].Vars["value"])

	file := complexityCheck(complexity.MeasureFile)(pc)
	require.Len(t, file, 1)
	assert.Equal(t, "file b.go has summed complexity 61 (limit 50)", file[0].Message)
}

func TestDuplicatesCheck(t *testing.T) {
	pc := &ProjectContext{Duplicates: duplication.Result{Clusters: []duplication.Cluster{{
		Tokens: 80, Lines: 20, Mass: 160,
		Members: []duplication.Member{
			{Path: "a.go", StartLine: 8, EndLine: 28},
			{Path: "b.go", StartLine: 3, EndLine: 23},
		},
	}}}}
	findings := checkDuplicates(pc)
	require.Len(t, findings, 1)
	f := findings[0]
	assert.Equal(t, "a.go", f.Path)
	assert.Equal(t, 160.0, f.Score)
	assert.Equal(t, []Location{{Path: "b.go", StartLine: 3, EndLine: 23}}, f.Related)
	assert.Contains(t, f.Message, "b.go:3-23")
}

func TestCyclesAndLayersChecks(t *testing.T) {
	b := graph.NewBuilder()
	b.AddEdge(graph.Edge{From: "a", To: "b", File: "a/a.go", Line: 3})
	b.AddEdge(graph.Edge{From: "b", To: "a", File: "b/b.go", Line: 5})
	g := b.Build()
	cycles, _ := g.Cycles(context.Background())

	policy, err := graph.NewLayerPolicy(graph.Architecture{
		Layers: []graph.Layer{{Name: "core", Paths: []string{"a"}}, {Name: "edge", Paths: []string{"b"}}},
		Order:  []string{"core", "edge"},
	})
	require.NoError(t, err)
	layers, _ := policy.Violations(context.Background(), g)

	pc := &ProjectContext{Graph: g, Cycles: cycles, Layers: layers}
	cyc := checkCycles(pc)
	require.Len(t, cyc, 1)
	assert.Equal(t, "a/a.go", cyc[0].Path)
	assert.Equal(t, "a -> b -> a", cyc[0].Vars["chain"])
	assert.Len(t, cyc[0].Related, 2)

	lay := checkLayers(pc)
	require.Len(t, lay, 1)
	assert.Equal(t, "a/a.go", lay[0].Path)
	assert.Equal(t, "core", lay[0].Vars["from_layer"])
	assert.Equal(t, "edge", lay[0].Vars["to_layer"])
}
