// Package rules is the rule registry: it loads declarative rule files,
// validates them, and resolves each body once into something callable.
package rules

import (
	"fmt"
	"regexp"
	"strings"

	"archguard/internal/engine/checks"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// Severity is a rule's configured tier. It never changes per violation.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Rank orders severities; higher is more severe. Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityError:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s is as severe as threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s.Rank() >= threshold.Rank()
}

func ParseSeverity(s string) (Severity, error) {
	switch sev := Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case SeverityError, SeverityWarning, SeverityInfo:
		return sev, nil
	default:
		return "", fmt.Errorf("unknown severity %q (want error, warning or info)", s)
	}
}

// Body is the closed set of rule bodies.
type Body interface {
	isBody()
}

// PatternBody is a structural-pattern query compiled per language.
type PatternBody struct {
	Source  map[string]string
	Queries map[string]*sitter.Query
}

// CheckBody is a procedural check from the static table.
type CheckBody struct {
	Check checks.Check
}

// SystemBody marks engine diagnostics; they are emitted by the router and
// never dispatched.
type SystemBody struct{}

func (*PatternBody) isBody() {}
func (*CheckBody) isBody()   {}
func (*SystemBody) isBody()  {}

// Rule is immutable after load.
type Rule struct {
	ID          string
	Name        string
	Category    string
	Severity    Severity
	Enabled     bool
	Quick       bool
	Description string
	Rationale   string
	Message     string
	Scope       checks.Scope
	Languages   []string
	Deps        []string
	Patterns    []string
	Params      map[string]string
	Body        Body
	Source      string

	languages map[string]bool
	paths     pathFilter
}

// MatchesLanguage reports whether the language filter admits language.
func (r *Rule) MatchesLanguage(language string) bool {
	return len(r.languages) == 0 || r.languages[language]
}

// MatchesPath reports whether the file-pattern filter admits relPath.
func (r *Rule) MatchesPath(relPath string) bool {
	return r.paths.match(relPath)
}

// Query returns the compiled pattern for language, if any.
func (r *Rule) Query(language string) (*sitter.Query, bool) {
	pb, ok := r.Body.(*PatternBody)
	if !ok {
		return nil, false
	}
	q, ok := pb.Queries[language]
	return q, ok
}

// IsSystem reports whether the rule is an engine diagnostic.
func (r *Rule) IsSystem() bool {
	_, ok := r.Body.(*SystemBody)
	return ok
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Render fills the rule's message template. Unknown placeholders render
// empty. Without a template, fallback is returned.
func (r *Rule) Render(vars map[string]string, fallback string) string {
	if r.Message == "" {
		if fallback == "" {
			return r.Name
		}
		return fallback
	}
	return strings.TrimSpace(placeholderRe.ReplaceAllStringFunc(r.Message, func(m string) string {
		key := placeholderRe.FindStringSubmatch(m)[1]
		return vars[key]
	}))
}
