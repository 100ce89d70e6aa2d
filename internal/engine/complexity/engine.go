package complexity

import (
	"context"
	"sort"

	"archguard/internal/engine/facts"
)

// Measure names what a breach measured.
type Measure string

const (
	MeasureCyclomatic Measure = "cyclomatic"
	MeasureNesting    Measure = "nesting"
	MeasureParameters Measure = "parameters"
	MeasureLength     Measure = "length"
	MeasureFile       Measure = "file"
)

// Input is one parsed file.
type Input struct {
	Path     string
	Language string
	Facts    *facts.FileFacts
}

// Breach is a measured value above its limit.
type Breach struct {
	Measure   Measure `json:"measure"`
	Path      string  `json:"path"`
	Language  string  `json:"language"`
	Function  string  `json:"function,omitempty"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Value     int     `json:"value"`
	Limit     int     `json:"limit"`
}

// FunctionScore is one function's measurements.
type FunctionScore struct {
	Path       string `json:"path"`
	Function   string `json:"function"`
	StartLine  int    `json:"start_line"`
	Cyclomatic int    `json:"cyclomatic"`
	Nesting    int    `json:"nesting"`
	Params     int    `json:"params"`
	Lines      int    `json:"lines"`
}

// FileScore aggregates a file's function scores.
type FileScore struct {
	Path      string `json:"path"`
	Language  string `json:"language"`
	Score     int    `json:"score"`
	Functions int    `json:"functions"`
}

// Report is the complexity outcome of one run.
type Report struct {
	Breaches  []Breach
	Files     []FileScore
	Functions []FunctionScore
	Partial   bool
}

// Engine evaluates facts against thresholds.
type Engine struct {
	thresholds Thresholds
}

func NewEngine(t Thresholds) *Engine {
	return &Engine{thresholds: t}
}

// Analyze scores every input. It checks ctx between files and returns the
// files scored so far with Partial set on expiry.
func (e *Engine) Analyze(ctx context.Context, inputs []Input) Report {
	sorted := append([]Input(nil), inputs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var rep Report
	for i, in := range sorted {
		if i%128 == 0 && ctx.Err() != nil {
			rep.Partial = true
			break
		}
		if in.Facts == nil {
			continue
		}
		breaches, file, fns := e.AnalyzeFile(in)
		rep.Breaches = append(rep.Breaches, breaches...)
		rep.Files = append(rep.Files, file)
		rep.Functions = append(rep.Functions, fns...)
	}
	return rep
}

// AnalyzeFile scores a single file.
func (e *Engine) AnalyzeFile(in Input) ([]Breach, FileScore, []FunctionScore) {
	limits := e.thresholds.For(in.Language)
	file := FileScore{Path: in.Path, Language: in.Language, Functions: len(in.Facts.Functions)}
	var breaches []Breach
	fns := make([]FunctionScore, 0, len(in.Facts.Functions))

	for _, fn := range in.Facts.Functions {
		file.Score += fn.Cyclomatic
		name := fn.QualifiedName()
		fns = append(fns, FunctionScore{
			Path:       in.Path,
			Function:   name,
			StartLine:  fn.StartLine,
			Cyclomatic: fn.Cyclomatic,
			Nesting:    fn.MaxNesting,
			Params:     fn.Params,
			Lines:      fn.Lines,
		})
		for _, m := range []struct {
			measure Measure
			value   int
			limit   int
		}{
			{MeasureCyclomatic, fn.Cyclomatic, limits.Cyclomatic},
			{MeasureNesting, fn.MaxNesting, limits.Nesting},
			{MeasureParameters, fn.Params, limits.Parameters},
			{MeasureLength, fn.Lines, limits.FunctionLines},
		} {
			if m.limit > 0 && m.value > m.limit {
				breaches = append(breaches, Breach{
					Measure:   m.measure,
					Path:      in.Path,
					Language:  in.Language,
					Function:  name,
					StartLine: fn.StartLine,
					EndLine:   fn.EndLine,
					Value:     m.value,
					Limit:     m.limit,
				})
			}
		}
	}

	if limits.FileComplexity > 0 && file.Score > limits.FileComplexity {
		breaches = append(breaches, Breach{
			Measure:   MeasureFile,
			Path:      in.Path,
			Language:  in.Language,
			StartLine: 1,
			EndLine:   max(in.Facts.Lines, 1),
			Value:     file.Score,
			Limit:     limits.FileComplexity,
		})
	}
	return breaches, file, fns
}

// Filter returns the breaches of one measure.
func (r Report) Filter(m Measure) []Breach {
	var out []Breach
	for _, b := range r.Breaches {
		if b.Measure == m {
			out = append(out, b)
		}
	}
	return out
}

// Hotspots returns the n functions with the highest cyclomatic score.
func (r Report) Hotspots(n int) []FunctionScore {
	if n <= 0 {
		return nil
	}
	out := append([]FunctionScore(nil), r.Functions...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Cyclomatic != out[j].Cyclomatic {
			return out[i].Cyclomatic > out[j].Cyclomatic
		}
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].StartLine < out[j].StartLine
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
