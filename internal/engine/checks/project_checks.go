package checks

import (
	"fmt"
	"strconv"
	"strings"

	"archguard/internal/engine/complexity"
)

var measureNoun = map[complexity.Measure]string{
	complexity.MeasureCyclomatic: "cyclomatic complexity",
	complexity.MeasureNesting:    "nesting depth",
	complexity.MeasureParameters: "parameter count",
	complexity.MeasureLength:     "length in lines",
	complexity.MeasureFile:       "summed complexity",
}

func complexityCheck(m complexity.Measure) ProjectFunc {
	return func(pc *ProjectContext) []Finding {
		var out []Finding
		for _, b := range pc.Complexity.Filter(m) {
			subject := "function " + b.Function
			if m == complexity.MeasureFile {
				subject = "file " + b.Path
			}
			f := Finding{
				Path:      b.Path,
				StartLine: b.StartLine,
				EndLine:   b.EndLine,
				Message:   fmt.Sprintf("%s has %s %d (limit %d)", subject, measureNoun[m], b.Value, b.Limit),
				Vars:      map[string]string{"function": b.Function, "measure": string(m), "path": b.Path},
			}
			out = append(out, f.Measured(b.Value, b.Limit))
		}
		return out
	}
}

func checkDuplicates(pc *ProjectContext) []Finding {
	var out []Finding
	for _, c := range pc.Duplicates.Clusters {
		first := c.Members[0]
		related := make([]Location, 0, len(c.Members)-1)
		others := make([]string, 0, len(c.Members)-1)
		for _, m := range c.Members[1:] {
			related = append(related, Location{Path: m.Path, StartLine: m.StartLine, EndLine: m.EndLine})
			others = append(others, fmt.Sprintf("%s:%d-%d", m.Path, m.StartLine, m.EndLine))
		}
		out = append(out, Finding{
			Path:      first.Path,
			StartLine: first.StartLine,
			EndLine:   first.EndLine,
			Message: fmt.Sprintf("%d tokens duplicated in %d places (mass %d); also at %s",
				c.Tokens, len(c.Members), c.Mass, strings.Join(others, ", ")),
			Vars: map[string]string{
				"tokens":      strconv.Itoa(c.Tokens),
				"lines":       strconv.Itoa(c.Lines),
				"occurrences": strconv.Itoa(len(c.Members)),
				"mass":        strconv.Itoa(c.Mass),
				"others":      strings.Join(others, ", "),
			},
			Score:   float64(c.Mass),
			Related: related,
		})
	}
	return out
}

func checkCycles(pc *ProjectContext) []Finding {
	var out []Finding
	for _, c := range pc.Cycles {
		if len(c.Edges) == 0 {
			continue
		}
		anchor := c.Edges[0]
		related := make([]Location, 0, len(c.Edges))
		for _, e := range c.Edges {
			related = append(related, Location{Path: e.File, StartLine: e.Line, EndLine: e.Line})
		}
		out = append(out, Finding{
			Path:      anchor.File,
			StartLine: anchor.Line,
			EndLine:   anchor.Line,
			Message: fmt.Sprintf("circular dependency %s (component: %s)",
				c.Chain(), strings.Join(c.Members, ", ")),
			Vars: map[string]string{
				"chain":   c.Chain(),
				"members": strings.Join(c.Members, ", "),
				"size":    strconv.Itoa(len(c.Members)),
			},
			Score:   float64(len(c.Members)),
			Related: related,
		})
	}
	return out
}

func checkLayers(pc *ProjectContext) []Finding {
	out := make([]Finding, 0, len(pc.Layers))
	for _, v := range pc.Layers {
		out = append(out, Finding{
			Path:      v.Edge.File,
			StartLine: v.Edge.Line,
			EndLine:   v.Edge.Line,
			Message:   v.String(),
			Vars: map[string]string{
				"from":       v.Edge.From,
				"to":         v.Edge.To,
				"from_layer": v.FromLayer,
				"to_layer":   v.ToLayer,
				"permitted":  strings.Join(v.Permitted, ", "),
				"import":     v.Edge.Import,
				"rule":       v.Rule,
			},
		})
	}
	return out
}
