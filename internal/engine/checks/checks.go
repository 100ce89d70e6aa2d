// Package checks is the compile-time table of procedural checks. Rules name a
// check by id; the registry resolves the id once at load time.
package checks

import (
	"sort"
	"strconv"

	"archguard/internal/engine/complexity"
	"archguard/internal/engine/deps"
	"archguard/internal/engine/duplication"
	"archguard/internal/engine/facts"
	"archguard/internal/engine/graph"
	"archguard/internal/engine/resolver"
)

// Scope says whether a check sees one file or the whole project.
type Scope string

const (
	ScopeFile    Scope = "file"
	ScopeProject Scope = "project"
)

// Analysis is a cross-file structure a project check depends on. The router
// skips analyses no enabled rule needs.
type Analysis uint8

const (
	AnalysisGraph Analysis = 1 << iota
	AnalysisCycles
	AnalysisLayers
	AnalysisComplexity
	AnalysisDuplication
)

func (a Analysis) Has(other Analysis) bool { return a&other == other }

// Location points at a related span, e.g. the other members of a clone.
type Location struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Finding is the raw output of a check, before rule metadata is attached.
type Finding struct {
	Path      string
	StartLine int
	EndLine   int
	// Message is used when the rule carries no message template.
	Message string
	// Vars fill {{name}} placeholders of the rule message.
	Vars map[string]string
	// Value and Limit are set for threshold findings.
	Value, Limit *int
	// Score ranks findings such as duplicate clusters by mass.
	Score   float64
	Related []Location
}

// Measured attaches a value/limit pair and the matching template vars.
func (f Finding) Measured(value, limit int) Finding {
	f.Value, f.Limit = &value, &limit
	if f.Vars == nil {
		f.Vars = map[string]string{}
	}
	f.Vars["value"] = strconv.Itoa(value)
	f.Vars["limit"] = strconv.Itoa(limit)
	return f
}

// ResolvedImport is an import of the file with its resolution.
type ResolvedImport struct {
	Raw    string
	Line   int
	Target resolver.Target
}

// FileContext is everything a file check may read. Checks must not retain
// or mutate it.
type FileContext struct {
	Path     string
	Language string
	Module   string
	Facts    *facts.FileFacts
	Imports  []ResolvedImport
	Deps     *deps.Set
	Params   map[string]string
}

// ProjectContext carries the read-only cross-file structures of Phase 2.
type ProjectContext struct {
	Graph      *graph.Graph
	Cycles     []graph.Cycle
	Layers     []graph.LayerViolation
	Complexity complexity.Report
	Duplicates duplication.Result
	Params     map[string]string
}

type (
	FileFunc    func(fc *FileContext) []Finding
	ProjectFunc func(pc *ProjectContext) []Finding
)

// Check is one entry of the table. Exactly one of File or Project is set.
type Check struct {
	ID          string
	Scope       Scope
	Description string
	Needs       Analysis
	File        FileFunc
	Project     ProjectFunc
	// ValidateParams rejects rule params at load time.
	ValidateParams func(params map[string]string) error
}

var table = map[string]Check{}

func register(c Check) {
	if _, dup := table[c.ID]; dup {
		panic("checks: duplicate id " + c.ID)
	}
	table[c.ID] = c
}

// Lookup returns the check registered under id.
func Lookup(id string) (Check, bool) {
	c, ok := table[id]
	return c, ok
}

// IDs lists every registered check, sorted.
func IDs() []string {
	out := make([]string, 0, len(table))
	for id := range table {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func init() {
	register(Check{ID: "naming.declarations", Scope: ScopeFile, File: checkNaming, ValidateParams: validateNamingParams,
		Description: "Function and type names follow the language's convention"})
	register(Check{ID: "hygiene.todo_markers", Scope: ScopeFile, File: checkTodoMarkers,
		Description: "Comments carrying TODO/FIXME/XXX/HACK markers"})
	register(Check{ID: "imports.undeclared", Scope: ScopeFile, File: checkUndeclaredImports,
		Description: "External imports missing from the project manifest"})
	register(Check{ID: "secrets.literals", Scope: ScopeFile, File: checkSecrets, ValidateParams: validateSecretParams,
		Description: "String literals that look like credentials"})
	register(Check{ID: "documentation.public_items", Scope: ScopeFile, File: checkPublicDocs,
		Description: "Public functions and types without a doc comment"})
	register(Check{ID: "documentation.module", Scope: ScopeFile, File: checkModuleDocs,
		Description: "Rust module roots and Python modules without module documentation"})
	register(Check{ID: "kiss.struct_fields", Scope: ScopeFile, File: checkStructFields, ValidateParams: validateStructFieldParams,
		Description: "Types declaring more fields than the limit"})
	register(Check{ID: "tests.empty_bodies", Scope: ScopeFile, File: checkEmptyTests,
		Description: "Test functions that call nothing"})

	register(Check{ID: "complexity.cyclomatic", Scope: ScopeProject, Needs: AnalysisComplexity,
		Project:     complexityCheck(complexity.MeasureCyclomatic),
		Description: "Function cyclomatic complexity above the limit"})
	register(Check{ID: "complexity.nesting", Scope: ScopeProject, Needs: AnalysisComplexity,
		Project:     complexityCheck(complexity.MeasureNesting),
		Description: "Function block nesting above the limit"})
	register(Check{ID: "complexity.parameters", Scope: ScopeProject, Needs: AnalysisComplexity,
		Project:     complexityCheck(complexity.MeasureParameters),
		Description: "Function parameter count above the limit"})
	register(Check{ID: "complexity.length", Scope: ScopeProject, Needs: AnalysisComplexity,
		Project:     complexityCheck(complexity.MeasureLength),
		Description: "Function length in lines above the limit"})
	register(Check{ID: "complexity.file", Scope: ScopeProject, Needs: AnalysisComplexity,
		Project:     complexityCheck(complexity.MeasureFile),
		Description: "Summed function complexity of a file above the limit"})

	register(Check{ID: "duplication.clusters", Scope: ScopeProject, Needs: AnalysisDuplication,
		Project: checkDuplicates, Description: "Near-identical token spans across the corpus"})
	register(Check{ID: "graph.cycles", Scope: ScopeProject, Needs: AnalysisGraph | AnalysisCycles,
		Project: checkCycles, Description: "Circular dependencies between modules"})
	register(Check{ID: "graph.layers", Scope: ScopeProject, Needs: AnalysisGraph | AnalysisLayers,
		Project: checkLayers, Description: "Imports against the configured layer order"})
}
