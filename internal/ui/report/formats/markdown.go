package formats

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"archguard/internal/engine/report"
)

func writeMarkdown(w io.Writer, rep *report.ValidationReport, opts Options) error {
	generated := rep.StartedAt
	if generated.IsZero() {
		generated = time.Now()
	}
	project := opts.ProjectName
	if strings.TrimSpace(project) == "" && rep.Root != "" {
		project = filepath.Base(rep.Root)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.WriteString("title: Architecture Validation Report\n")
	b.WriteString("project: " + nonEmpty(project, "unknown") + "\n")
	b.WriteString("run_id: " + nonEmpty(rep.RunID, "unknown") + "\n")
	b.WriteString("generated_at: " + generated.UTC().Format(time.RFC3339) + "\n")
	b.WriteString("version: " + nonEmpty(rep.Version, "unknown") + "\n")
	b.WriteString("status: " + string(rep.Status) + "\n")
	b.WriteString("---\n\n")

	b.WriteString("# Validation Report\n\n")
	verdict := "✅ Pass"
	switch {
	case !rep.Passed:
		verdict = "❌ Fail"
	case rep.Status == report.StatusDegraded:
		verdict = "⚠️ Degraded"
	}

	b.WriteString("## Executive Summary\n")
	b.WriteString("| Metric | Value |\n")
	b.WriteString("| --- | --- |\n")
	fmt.Fprintf(&b, "| Verdict | %s |\n", verdict)
	fmt.Fprintf(&b, "| Fail On | %s |\n", rep.FailOn)
	fmt.Fprintf(&b, "| Violations | %d |\n", rep.Counts.Total)
	fmt.Fprintf(&b, "| Blocking | %d |\n", rep.Counts.ByTier[report.TierBlocking])
	fmt.Fprintf(&b, "| Warning | %d |\n", rep.Counts.ByTier[report.TierWarning])
	fmt.Fprintf(&b, "| Informational | %d |\n", rep.Counts.ByTier[report.TierInformational])
	fmt.Fprintf(&b, "| Suppressed | %d |\n", rep.Counts.Suppressed)
	fmt.Fprintf(&b, "| Files | %d |\n", rep.Stats.Files)
	fmt.Fprintf(&b, "| Modules | %d |\n", rep.Stats.Modules)
	fmt.Fprintf(&b, "| Import Cycles | %d |\n", rep.Stats.Cycles)
	fmt.Fprintf(&b, "| Duplicate Clusters | %d |\n", rep.Stats.Clusters)
	if opts.Delta != nil {
		fmt.Fprintf(&b, "| Change Since Last Run | %s |\n", signed(opts.Delta.Total))
	}
	b.WriteString("\n")

	if len(rep.Stats.Degraded) > 0 {
		b.WriteString("> **Partial results:** " + strings.Join(rep.Stats.Degraded, ", ") + " did not finish.\n\n")
	}

	for _, tier := range tierOrder {
		writeTierSection(&b, tier, rep.ByTier(tier), opts.CollapseAfter)
	}

	if len(rep.Rules) > 0 {
		b.WriteString("## Rules\n")
		b.WriteString("| ID | Name | Category | Severity |\n")
		b.WriteString("| --- | --- | --- | --- |\n")
		for _, r := range rep.Rules {
			fmt.Fprintf(&b, "| `%s` | %s | %s | %s |\n", r.ID, cell(r.Name), r.Category, r.Severity)
		}
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func writeTierSection(b *strings.Builder, tier report.Tier, rows []report.Violation, collapseAfter int) {
	title := strings.ToUpper(string(tier[:1])) + string(tier[1:])
	b.WriteString("## " + title + "\n")
	if len(rows) == 0 {
		b.WriteString("No " + string(tier) + " violations.\n\n")
		return
	}
	rendered := make([]string, 0, len(rows))
	for _, v := range rows {
		rendered = append(rendered, fmt.Sprintf("| `%s` | %s | `%s` | %s |\n",
			v.RuleID, v.Category, locationText(v.Path, v.StartLine, v.EndLine), cell(v.Message)))
	}
	writeTableWithCollapse(
		b,
		title+" details",
		collapseAfter > 0 && len(rendered) > collapseAfter,
		[]string{"| Rule | Category | Location | Message |\n", "| --- | --- | --- | --- |\n"},
		rendered,
	)
}

func writeTableWithCollapse(b *strings.Builder, summary string, collapse bool, header, rows []string) {
	if collapse {
		b.WriteString("<details>\n")
		b.WriteString("<summary>")
		b.WriteString(summary)
		b.WriteString("</summary>\n\n")
	}
	for _, line := range header {
		b.WriteString(line)
	}
	for _, line := range rows {
		b.WriteString(line)
	}
	b.WriteString("\n")
	if collapse {
		b.WriteString("</details>\n\n")
	}
}

// cell keeps free text from breaking the table.
func cell(s string) string {
	s = strings.ReplaceAll(s, "|", "\\|")
	return strings.ReplaceAll(s, "\n", " ")
}

func nonEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
