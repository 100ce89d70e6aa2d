package formats

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"archguard/internal/data/history"
	"archguard/internal/engine/report"
	"archguard/internal/engine/rules"
)

func intPtr(n int) *int { return &n }

func fixtureReport() *report.ValidationReport {
	return &report.ValidationReport{
		RunID:       "run-1",
		Tool:        "archguard",
		Version:     "0.4.0",
		Root:        "/work/shop",
		StartedAt:   time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
		Duration:    1234 * time.Millisecond,
		Status:      report.StatusViolations,
		Passed:      false,
		FailOn:      rules.SeverityError,
		MinSeverity: rules.SeverityInfo,
		Counts: report.Counts{
			Total:      3,
			BySeverity: map[string]int{"error": 1, "warning": 1, "info": 1},
			ByTier:     map[report.Tier]int{report.TierBlocking: 1, report.TierWarning: 1, report.TierInformational: 1},
			Suppressed: 2,
		},
		Stats: report.Stats{
			Files: 12, Parsed: 12, Modules: 4, Edges: 5, Cycles: 1, Rules: 18,
			Coupling: []report.ModuleCoupling{{Module: "b", FanIn: 2, FanOut: 1}},
			Hotspots: []report.Hotspot{{Path: "a/a.go", Function: "Handle", StartLine: 10, Cyclomatic: 14}},
		},
		Violations: []report.Violation{
			{
				RuleID: "DEP001", RuleName: "Import cycle", Category: "dependency", Severity: rules.SeverityError,
				Path: "a/a.go", StartLine: 3, EndLine: 3, Message: "import cycle: a -> b -> a",
				Related: []report.Location{{Path: "b/b.go", StartLine: 4, EndLine: 4}},
			},
			{
				RuleID: "CPLX001", RuleName: "Cyclomatic complexity", Category: "complexity", Severity: rules.SeverityWarning,
				Path: "a/a.go", StartLine: 10, EndLine: 40, Message: "Handle has cyclomatic complexity 14 (limit 10)",
				Value: intPtr(14), Limit: intPtr(10),
			},
			{
				RuleID: "HYG001", RuleName: "Leftover marker", Category: "hygiene", Severity: rules.SeverityInfo,
				Path: "c/c.py", StartLine: 7, EndLine: 7, Message: "TODO | tidy up",
			},
		},
		Rules: []report.RuleInfo{
			{ID: "CPLX001", Name: "Cyclomatic complexity", Category: "complexity", Severity: rules.SeverityWarning},
			{ID: "DEP001", Name: "Import cycle", Category: "dependency", Severity: rules.SeverityError, Description: "Modules must not import each other in a loop."},
			{ID: "HYG001", Name: "Leftover marker", Category: "hygiene", Severity: rules.SeverityInfo},
		},
	}
}

func TestParseFormats(t *testing.T) {
	got, err := ParseFormats("text,sarif", " JSON ", "md", "text")
	require.NoError(t, err)
	if diff := cmp.Diff([]Format{FormatText, FormatSARIF, FormatJSON, FormatMarkdown}, got); diff != "" {
		t.Fatalf("formats mismatch (-want +got):\n%s", diff)
	}

	got, err = ParseFormats()
	require.NoError(t, err)
	assert.Equal(t, []Format{FormatText}, got)

	_, err = ParseFormats("text,html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"html"`)
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".txt", FormatText.Extension())
	assert.Equal(t, ".json", FormatJSON.Extension())
	assert.Equal(t, ".md", FormatMarkdown.Extension())
	assert.Equal(t, ".sarif", FormatSARIF.Extension())
}

func TestRender_UnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	require.Error(t, Render(&buf, Format("xml"), fixtureReport(), Options{}))
}

func TestText_Plain(t *testing.T) {
	var buf bytes.Buffer
	delta := history.Delta{Since: time.Date(2026, 2, 28, 8, 0, 0, 0, time.UTC), Total: -2, Errors: 1}
	require.NoError(t, Render(&buf, FormatText, fixtureReport(), Options{Delta: &delta}))
	out := buf.String()

	assert.NotContains(t, out, "\x1b[", "plain output must not carry escape codes")
	for _, want := range []string{
		"archguard 0.4.0  /work/shop",
		"BLOCKING (1)",
		"  a/a.go:3  DEP001  import cycle: a -> b -> a",
		"related b/b.go:4",
		"WARNING (1)",
		"  a/a.go:10-40  CPLX001  Handle has cyclomatic complexity 14 (limit 10)",
		"INFORMATIONAL (1)",
		"FAIL  3 violations (1 error, 1 warning, 1 info), failing at error",
		"files 12 (12 parsed, 0 unparsable, 0 cached)  modules 4  edges 5  cycles 1",
		"suppressed 2",
		"most imported: b (in 2, out 1)",
		"complexity hotspots: a/a.go:10 Handle (14)",
		"since 2026-02-28T08:00:00Z: total -2, errors +1",
	} {
		assert.Contains(t, out, want)
	}
	assert.Less(t, strings.Index(out, "BLOCKING"), strings.Index(out, "WARNING"))
	assert.Less(t, strings.Index(out, "WARNING"), strings.Index(out, "INFORMATIONAL"))
}

func TestText_PassAndDegraded(t *testing.T) {
	rep := &report.ValidationReport{Tool: "archguard", Version: "0.4.0", Status: report.StatusClean, Passed: true}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatText, rep, Options{}))
	assert.Contains(t, buf.String(), "PASS  0 violations")

	rep.Status = report.StatusDegraded
	rep.Stats.Degraded = []string{"cycles", "duplication"}
	buf.Reset()
	require.NoError(t, Render(&buf, FormatText, rep, Options{}))
	assert.Contains(t, buf.String(), "DEGRADED  0 violations")
	assert.Contains(t, buf.String(), "partial analyses: cycles, duplication")
}

func TestLocationText(t *testing.T) {
	assert.Equal(t, "(project)", locationText("", 0, 0))
	assert.Equal(t, "x.go", locationText("x.go", 0, 0))
	assert.Equal(t, "x.go:5", locationText("x.go", 5, 5))
	assert.Equal(t, "x.go:5-9", locationText("x.go", 5, 9))
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, fixtureReport(), Options{}))

	var decoded struct {
		RunID      string `json:"run_id"`
		Status     string `json:"status"`
		Passed     bool   `json:"passed"`
		Violations []struct {
			RuleID   string `json:"rule_id"`
			Severity string `json:"severity"`
			Value    *int   `json:"value"`
			Limit    *int   `json:"limit"`
		} `json:"violations"`
	}
	require.NoError(t, jsonAPI.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "run-1", decoded.RunID)
	assert.Equal(t, "violations", decoded.Status)
	require.Len(t, decoded.Violations, 3)
	assert.Equal(t, "CPLX001", decoded.Violations[1].RuleID)
	require.NotNil(t, decoded.Violations[1].Value)
	assert.Equal(t, 14, *decoded.Violations[1].Value)
	assert.Nil(t, decoded.Violations[0].Limit)
}

func TestJSON_EmptyReportHasArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatJSON, &report.ValidationReport{Status: report.StatusClean, Passed: true}, Options{}))
	assert.Contains(t, buf.String(), `"violations": []`)
	assert.Contains(t, buf.String(), `"rules": []`)
}

func TestMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatMarkdown, fixtureReport(), Options{}))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "---\ntitle: Architecture Validation Report\nproject: shop\n"))
	assert.Contains(t, out, "| Verdict | ❌ Fail |")
	assert.Contains(t, out, "## Blocking\n| Rule | Category | Location | Message |")
	assert.Contains(t, out, "| `DEP001` | dependency | `a/a.go:3` | import cycle: a -> b -> a |")
	assert.Contains(t, out, `TODO \| tidy up`)
	assert.Contains(t, out, "| `DEP001` | Import cycle | dependency | error |")
	assert.NotContains(t, out, "<details>")
}

func TestMarkdown_CollapsesLongTables(t *testing.T) {
	rep := fixtureReport()
	for i := 0; i < 3; i++ {
		v := rep.Violations[2]
		v.StartLine = 20 + i
		rep.Violations = append(rep.Violations, v)
	}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatMarkdown, rep, Options{CollapseAfter: 2, ProjectName: "demo"}))
	out := buf.String()
	assert.Contains(t, out, "project: demo\n")
	assert.Contains(t, out, "<summary>Informational details</summary>")
	assert.NotContains(t, out, "<summary>Blocking details</summary>")
}

func TestSARIF(t *testing.T) {
	rep := fixtureReport()
	rep.Violations[2].Path = "/work/shop/c/c.py"

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatSARIF, rep, Options{}))

	var doc sarifReport
	require.NoError(t, jsonAPI.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, "2.1.0", doc.Version)
	require.Len(t, doc.Runs, 1)
	run := doc.Runs[0]
	assert.Equal(t, "archguard", run.Tool.Driver.Name)
	require.Len(t, run.Tool.Driver.Rules, 3)
	assert.Equal(t, "warning", run.Tool.Driver.Rules[0].DefaultConfig.Level)
	require.NotNil(t, run.Tool.Driver.Rules[1].FullDescription)

	levels := make([]string, 0, len(run.Results))
	for _, r := range run.Results {
		levels = append(levels, r.Level)
	}
	if diff := cmp.Diff([]string{"error", "warning", "note"}, levels); diff != "" {
		t.Fatalf("levels mismatch (-want +got):\n%s", diff)
	}

	first := run.Results[0]
	assert.Equal(t, 1, first.RuleIndex)
	assert.Equal(t, "a/a.go", first.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.Equal(t, "%SRCROOT%", first.Locations[0].PhysicalLocation.ArtifactLocation.URIBaseID)
	require.Len(t, first.RelatedLocations, 1)
	assert.Equal(t, "b/b.go", first.RelatedLocations[0].PhysicalLocation.ArtifactLocation.URI)

	third := run.Results[2]
	assert.Equal(t, "c/c.py", third.Locations[0].PhysicalLocation.ArtifactLocation.URI)
	assert.NotContains(t, buf.String(), "/work/shop/c")
}

func TestSARIF_ProjectLevelFindingHasNoLocation(t *testing.T) {
	rep := &report.ValidationReport{
		Tool:       "archguard",
		Status:     report.StatusDegraded,
		Passed:     true,
		Violations: []report.Violation{{RuleID: "ENG003", Severity: rules.SeverityWarning, Message: "cycles analysis did not finish"}},
		Rules:      []report.RuleInfo{{ID: "ENG003", Name: "Analysis degraded", Severity: rules.SeverityWarning}},
	}
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, FormatSARIF, rep, Options{}))

	var doc sarifReport
	require.NoError(t, jsonAPI.Unmarshal(buf.Bytes(), &doc))
	assert.Empty(t, doc.Runs[0].Results[0].Locations)
	assert.False(t, doc.Runs[0].Invocations[0].ExecutionSuccessful)
}
