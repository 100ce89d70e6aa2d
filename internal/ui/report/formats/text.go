package formats

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"archguard/internal/data/history"
	"archguard/internal/engine/report"
	"archguard/internal/engine/rules"
)

type textStyles struct {
	title   lipgloss.Style
	fail    lipgloss.Style
	warn    lipgloss.Style
	pass    lipgloss.Style
	muted   lipgloss.Style
	heading lipgloss.Style
}

func stylesFor(color bool) textStyles {
	if !color {
		plain := lipgloss.NewStyle()
		return textStyles{title: plain, fail: plain, warn: plain, pass: plain, muted: plain, heading: plain}
	}
	return textStyles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color("#3B82F6")).Bold(true),
		fail:    lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true),
		pass:    lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#64748B")).Italic(true),
		heading: lipgloss.NewStyle().Bold(true).Underline(true),
	}
}

func (s textStyles) tier(t report.Tier) lipgloss.Style {
	switch t {
	case report.TierBlocking:
		return s.fail
	case report.TierWarning:
		return s.warn
	default:
		return s.muted
	}
}

var tierOrder = []report.Tier{report.TierBlocking, report.TierWarning, report.TierInformational}

func writeText(w io.Writer, rep *report.ValidationReport, opts Options) error {
	st := stylesFor(opts.Color)
	var b strings.Builder

	header := fmt.Sprintf("%s %s", rep.Tool, rep.Version)
	if rep.Root != "" {
		header += "  " + rep.Root
	}
	if rep.Quick {
		header += "  (quick)"
	}
	b.WriteString(st.title.Render(header))
	b.WriteString("\n\n")

	for _, tier := range tierOrder {
		rows := rep.ByTier(tier)
		if len(rows) == 0 {
			continue
		}
		b.WriteString(st.heading.Render(strings.ToUpper(string(tier))))
		fmt.Fprintf(&b, " (%d)\n", len(rows))
		for _, v := range rows {
			fmt.Fprintf(&b, "  %s  %s  %s\n",
				locationText(v.Path, v.StartLine, v.EndLine),
				st.tier(tier).Render(v.RuleID),
				v.Message)
			for _, rel := range v.Related {
				fmt.Fprintf(&b, "      %s\n", st.muted.Render("related "+locationText(rel.Path, rel.StartLine, rel.EndLine)))
			}
		}
		b.WriteString("\n")
	}

	b.WriteString(verdictLine(rep, st))
	b.WriteString("\n")
	b.WriteString(st.muted.Render(statsLine(rep)))
	b.WriteString("\n")
	if rep.Counts.Suppressed > 0 || rep.Counts.Hidden > 0 {
		b.WriteString(st.muted.Render(fmt.Sprintf("suppressed %d, hidden below %s %d",
			rep.Counts.Suppressed, rep.MinSeverity, rep.Counts.Hidden)))
		b.WriteString("\n")
	}
	if len(rep.Stats.Coupling) > 0 {
		parts := make([]string, len(rep.Stats.Coupling))
		for i, m := range rep.Stats.Coupling {
			parts[i] = fmt.Sprintf("%s (in %d, out %d)", m.Module, m.FanIn, m.FanOut)
		}
		b.WriteString(st.muted.Render("most imported: " + strings.Join(parts, ", ")))
		b.WriteString("\n")
	}
	if len(rep.Stats.Hotspots) > 0 {
		parts := make([]string, len(rep.Stats.Hotspots))
		for i, h := range rep.Stats.Hotspots {
			parts[i] = fmt.Sprintf("%s %s (%d)", locationText(h.Path, h.StartLine, h.StartLine), h.Function, h.Cyclomatic)
		}
		b.WriteString(st.muted.Render("complexity hotspots: " + strings.Join(parts, ", ")))
		b.WriteString("\n")
	}
	if len(rep.Stats.Degraded) > 0 {
		b.WriteString(st.warn.Render("partial analyses: " + strings.Join(rep.Stats.Degraded, ", ")))
		b.WriteString("\n")
	}
	if opts.Delta != nil {
		b.WriteString(deltaLine(*opts.Delta, st))
		b.WriteString("\n")
	}

	_, err := io.WriteString(w, b.String())
	return err
}

func verdictLine(rep *report.ValidationReport, st textStyles) string {
	counts := fmt.Sprintf("%d %s (%d error, %d warning, %d info)",
		rep.Counts.Total, plural(rep.Counts.Total, "violation", "violations"),
		rep.Counts.BySeverity[string(rules.SeverityError)],
		rep.Counts.BySeverity[string(rules.SeverityWarning)],
		rep.Counts.BySeverity[string(rules.SeverityInfo)])
	switch {
	case !rep.Passed:
		return st.fail.Render("FAIL") + "  " + counts + fmt.Sprintf(", failing at %s", rep.FailOn)
	case rep.Status == report.StatusDegraded:
		return st.warn.Render("DEGRADED") + "  " + counts
	default:
		return st.pass.Render("PASS") + "  " + counts
	}
}

func statsLine(rep *report.ValidationReport) string {
	s := rep.Stats
	return fmt.Sprintf("files %d (%d parsed, %d unparsable, %d cached)  modules %d  edges %d  cycles %d  clusters %d  rules %d  took %s",
		s.Files, s.Parsed, s.Unparsable, s.CacheHits, s.Modules, s.Edges, s.Cycles, s.Clusters, s.Rules,
		rep.Duration.Round(time.Millisecond))
}

func deltaLine(d history.Delta, st textStyles) string {
	line := fmt.Sprintf("since %s: total %s, errors %s, warnings %s, infos %s, files %s, cycles %s, clusters %s",
		d.Since.UTC().Format(time.RFC3339),
		signed(d.Total), signed(d.Errors), signed(d.Warnings), signed(d.Infos),
		signed(d.Files), signed(d.Cycles), signed(d.Clusters))
	switch {
	case d.Total < 0:
		return st.pass.Render(line)
	case d.Total > 0:
		return st.warn.Render(line)
	default:
		return st.muted.Render(line)
	}
}

func locationText(path string, start, end int) string {
	if path == "" {
		path = "(project)"
	}
	switch {
	case start <= 0:
		return path
	case end > start:
		return fmt.Sprintf("%s:%d-%d", path, start, end)
	default:
		return fmt.Sprintf("%s:%d", path, start)
	}
}

func signed(n int) string {
	if n > 0 {
		return fmt.Sprintf("+%d", n)
	}
	return fmt.Sprintf("%d", n)
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
