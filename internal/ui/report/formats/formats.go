// Package formats renders a ValidationReport for people and for tools.
package formats

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"archguard/internal/data/history"
	"archguard/internal/engine/report"
)

type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
	FormatSARIF    Format = "sarif"
)

var known = []Format{FormatText, FormatJSON, FormatMarkdown, FormatSARIF}

// ParseFormats splits a comma separated list ("text,sarif"), dropping
// duplicates while keeping first-seen order. "md" is accepted for markdown.
func ParseFormats(raw ...string) ([]Format, error) {
	var out []Format
	for _, item := range raw {
		for _, part := range strings.Split(item, ",") {
			name := strings.ToLower(strings.TrimSpace(part))
			if name == "" {
				continue
			}
			if name == "md" {
				name = string(FormatMarkdown)
			}
			f := Format(name)
			if !slices.Contains(known, f) {
				return nil, fmt.Errorf("unknown report format %q (want text, json, markdown or sarif)", part)
			}
			if !slices.Contains(out, f) {
				out = append(out, f)
			}
		}
	}
	if len(out) == 0 {
		out = []Format{FormatText}
	}
	return out, nil
}

// Extension is the file suffix used when a format is written to a directory.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return ".json"
	case FormatMarkdown:
		return ".md"
	case FormatSARIF:
		return ".sarif"
	default:
		return ".txt"
	}
}

// Options carry presentation settings that are not part of the report.
type Options struct {
	// Color enables lipgloss styling in the text format.
	Color bool
	// Delta, when set, is shown against the previous stored run.
	Delta *history.Delta
	// ProjectName labels Markdown output; defaults to the report root.
	ProjectName string
	// CollapseAfter wraps Markdown tables longer than this in <details>.
	// Zero disables collapsing.
	CollapseAfter int
}

// Render writes rep in format f.
func Render(w io.Writer, f Format, rep *report.ValidationReport, opts Options) error {
	switch f {
	case FormatText:
		return writeText(w, rep, opts)
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatMarkdown:
		return writeMarkdown(w, rep, opts)
	case FormatSARIF:
		return writeSARIF(w, rep)
	}
	return fmt.Errorf("unknown report format %q", f)
}
