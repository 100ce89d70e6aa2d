// Package report aggregates violations from every phase into one ranked,
// deduplicated ValidationReport with a pass/fail verdict.
package report

import (
	"time"

	"archguard/internal/engine/rules"
)

// Tier is the presentation group of a severity.
type Tier string

const (
	TierBlocking      Tier = "blocking"
	TierWarning       Tier = "warning"
	TierInformational Tier = "informational"
)

func TierOf(sev rules.Severity) Tier {
	switch sev {
	case rules.SeverityError:
		return TierBlocking
	case rules.SeverityWarning:
		return TierWarning
	default:
		return TierInformational
	}
}

// Status distinguishes a clean run from one with findings or one whose
// analysis was incomplete.
type Status string

const (
	StatusClean      Status = "clean"
	StatusViolations Status = "violations"
	StatusDegraded   Status = "degraded"
)

// Exit codes of a finished run.
const (
	ExitPass        = 0
	ExitFail        = 1
	ExitEngineError = 2
	ExitDegraded    = 3
)

type Location struct {
	Path      string `json:"path"`
	StartLine int    `json:"start_line,omitempty"`
	EndLine   int    `json:"end_line,omitempty"`
}

// Violation is one finding of one rule. Severity and Category always come
// from the rule that produced it.
type Violation struct {
	RuleID    string         `json:"rule_id"`
	RuleName  string         `json:"rule_name"`
	Category  string         `json:"category"`
	Severity  rules.Severity `json:"severity"`
	Path      string         `json:"path,omitempty"`
	StartLine int            `json:"start_line,omitempty"`
	EndLine   int            `json:"end_line,omitempty"`
	Message   string         `json:"message"`
	Value     *int           `json:"value,omitempty"`
	Limit     *int           `json:"limit,omitempty"`
	Score     float64        `json:"score,omitempty"`
	Related   []Location     `json:"related,omitempty"`
}

// New builds a violation of rule r.
func New(r *rules.Rule, path string, startLine, endLine int, message string) Violation {
	if endLine < startLine {
		endLine = startLine
	}
	return Violation{
		RuleID:    r.ID,
		RuleName:  r.Name,
		Category:  r.Category,
		Severity:  r.Severity,
		Path:      path,
		StartLine: startLine,
		EndLine:   endLine,
		Message:   message,
	}
}

func (v Violation) Tier() Tier { return TierOf(v.Severity) }

// RuleInfo describes a rule referenced by the report.
type RuleInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Severity    rules.Severity `json:"severity"`
	Description string         `json:"description,omitempty"`
}

// Counts summarise the unsuppressed violations, including ones hidden by
// min_severity.
type Counts struct {
	Total      int            `json:"total"`
	BySeverity map[string]int `json:"by_severity"`
	ByCategory map[string]int `json:"by_category"`
	ByTier     map[Tier]int   `json:"by_tier"`
	Suppressed int            `json:"suppressed"`
	Hidden     int            `json:"hidden"`
	Duplicates int            `json:"duplicates"`
}

// Stats describe what the run covered.
type Stats struct {
	Files      int      `json:"files"`
	Parsed     int      `json:"parsed"`
	Unparsable int      `json:"unparsable"`
	CacheHits  int      `json:"cache_hits"`
	Modules    int      `json:"modules"`
	Edges      int      `json:"edges"`
	Cycles     int      `json:"cycles"`
	Clusters   int      `json:"clusters"`
	Rules      int      `json:"rules"`
	Degraded   []string `json:"degraded,omitempty"`
	// Coupling lists the most depended-on modules, highest fan-in first.
	Coupling []ModuleCoupling `json:"coupling,omitempty"`
	// Hotspots lists the functions with the highest cyclomatic score.
	Hotspots []Hotspot `json:"hotspots,omitempty"`
}

type ModuleCoupling struct {
	Module string `json:"module"`
	FanIn  int    `json:"fan_in"`
	FanOut int    `json:"fan_out"`
}

type Hotspot struct {
	Path       string `json:"path"`
	Function   string `json:"function"`
	StartLine  int    `json:"start_line"`
	Cyclomatic int    `json:"cyclomatic"`
}

// ValidationReport is the final output of a run.
type ValidationReport struct {
	RunID       string         `json:"run_id"`
	Tool        string         `json:"tool"`
	Version     string         `json:"version"`
	Root        string         `json:"root"`
	StartedAt   time.Time      `json:"started_at"`
	Duration    time.Duration  `json:"duration_ns"`
	Quick       bool           `json:"quick"`
	Status      Status         `json:"status"`
	Passed      bool           `json:"passed"`
	FailOn      rules.Severity `json:"fail_on"`
	MinSeverity rules.Severity `json:"min_severity"`
	Counts      Counts         `json:"counts"`
	Stats       Stats          `json:"stats"`
	Violations  []Violation    `json:"violations"`
	Rules       []RuleInfo     `json:"rules"`
}

// ExitCode maps the verdict onto the process exit status.
func (r *ValidationReport) ExitCode() int {
	switch {
	case !r.Passed:
		return ExitFail
	case r.Status == StatusDegraded:
		return ExitDegraded
	default:
		return ExitPass
	}
}

// ByTier returns the visible violations of one tier in report order.
func (r *ValidationReport) ByTier(t Tier) []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Tier() == t {
			out = append(out, v)
		}
	}
	return out
}
