// Package complexity turns per-function fact counters into scored breaches
// of numeric limits.
package complexity

import (
	"fmt"
	"maps"
	"sort"
)

// Limits are the numeric thresholds for one language. A measured value equal
// to its limit passes.
type Limits struct {
	Cyclomatic     int `json:"max_cyclomatic"`
	Nesting        int `json:"max_nesting"`
	Parameters     int `json:"max_parameters"`
	FunctionLines  int `json:"max_function_lines"`
	FileComplexity int `json:"max_file_complexity"`
}

func DefaultLimits() Limits {
	return Limits{
		Cyclomatic:     10,
		Nesting:        4,
		Parameters:     5,
		FunctionLines:  60,
		FileComplexity: 50,
	}
}

// Overrides is a partial Limits as written in TOML; nil fields inherit.
type Overrides struct {
	MaxCyclomatic     *int `toml:"max_cyclomatic"`
	MaxNesting        *int `toml:"max_nesting"`
	MaxParameters     *int `toml:"max_parameters"`
	MaxFunctionLines  *int `toml:"max_function_lines"`
	MaxFileComplexity *int `toml:"max_file_complexity"`
}

func (o Overrides) apply(l Limits) Limits {
	set := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	set(&l.Cyclomatic, o.MaxCyclomatic)
	set(&l.Nesting, o.MaxNesting)
	set(&l.Parameters, o.MaxParameters)
	set(&l.FunctionLines, o.MaxFunctionLines)
	set(&l.FileComplexity, o.MaxFileComplexity)
	return l
}

func (o Overrides) validate(scope string) error {
	fields := []struct {
		name  string
		value *int
	}{
		{"max_cyclomatic", o.MaxCyclomatic},
		{"max_nesting", o.MaxNesting},
		{"max_parameters", o.MaxParameters},
		{"max_function_lines", o.MaxFunctionLines},
		{"max_file_complexity", o.MaxFileComplexity},
	}
	for _, f := range fields {
		if f.value != nil && *f.value < 0 {
			return fmt.Errorf("%s%s must not be negative, got %d", scope, f.name, *f.value)
		}
	}
	return nil
}

// ThresholdFile is the on-disk threshold document: global limits plus
// [languages.<id>] sections.
type ThresholdFile struct {
	MaxCyclomatic     *int                 `toml:"max_cyclomatic"`
	MaxNesting        *int                 `toml:"max_nesting"`
	MaxParameters     *int                 `toml:"max_parameters"`
	MaxFunctionLines  *int                 `toml:"max_function_lines"`
	MaxFileComplexity *int                 `toml:"max_file_complexity"`
	Languages         map[string]Overrides `toml:"languages"`
}

func (f ThresholdFile) global() Overrides {
	return Overrides{
		MaxCyclomatic:     f.MaxCyclomatic,
		MaxNesting:        f.MaxNesting,
		MaxParameters:     f.MaxParameters,
		MaxFunctionLines:  f.MaxFunctionLines,
		MaxFileComplexity: f.MaxFileComplexity,
	}
}

// Validate rejects negative limits, naming the offending key.
func (f ThresholdFile) Validate() error {
	if err := f.global().validate(""); err != nil {
		return err
	}
	for _, lang := range sortedKeys(f.Languages) {
		if err := f.Languages[lang].validate("languages." + lang + "."); err != nil {
			return err
		}
	}
	return nil
}

// Thresholds resolves limits per language. Zero disables a limit.
type Thresholds struct {
	base    Limits
	perLang map[string]Limits
}

// NewThresholds layers defaults, the threshold file and project overrides,
// each with its language sections applied after its global values.
func NewThresholds(layers ...ThresholdFile) (Thresholds, error) {
	t := Thresholds{base: DefaultLimits(), perLang: make(map[string]Limits)}
	for _, layer := range layers {
		if err := layer.Validate(); err != nil {
			return Thresholds{}, err
		}
		global := layer.global()
		t.base = global.apply(t.base)
		for lang, l := range t.perLang {
			t.perLang[lang] = global.apply(l)
		}
		for _, lang := range sortedKeys(layer.Languages) {
			current, ok := t.perLang[lang]
			if !ok {
				current = t.base
			}
			t.perLang[lang] = layer.Languages[lang].apply(current)
		}
	}
	return t, nil
}

// IsZero reports whether t was declared but never built by NewThresholds.
func (t Thresholds) IsZero() bool {
	return t.perLang == nil
}

// Equal reports whether both resolve the same limits for every language.
func (t Thresholds) Equal(o Thresholds) bool {
	return t.base == o.base && maps.Equal(t.perLang, o.perLang)
}

// For returns the limits of one language.
func (t Thresholds) For(language string) Limits {
	if l, ok := t.perLang[language]; ok {
		return l
	}
	return t.base
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
