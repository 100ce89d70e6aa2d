package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"

	"archguard/internal/engine/checks"
	"archguard/internal/engine/deps"
	"archguard/internal/engine/parser"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

//go:embed builtin/*.yaml
var builtinFS embed.FS

// System diagnostics emitted by the router.
const (
	RuleUnparsable    = "ENG001"
	RuleExecutionFail = "ENG002"
	RuleDegraded      = "ENG003"
)

// Options select the rule sources of a registry.
type Options struct {
	Loader *parser.GrammarLoader
	// Paths are rule files or directories loaded after the built-ins.
	Paths []string
	// SkipBuiltins loads only Paths plus the system diagnostics.
	SkipBuiltins bool
}

// Registry is the immutable, validated rule set of one run.
type Registry struct {
	opts  Options
	rules []*Rule
	byID  map[string]*Rule
}

type build struct {
	loader  *parser.GrammarLoader
	builtin bool
}

// Load reads and validates every rule source. Any malformed definition fails
// the whole load; a partially loaded registry is never returned.
func Load(opts Options) (*Registry, error) {
	if opts.Loader == nil {
		return nil, loadError("", "", "", "rules: grammar loader is required")
	}
	reg := &Registry{opts: opts, byID: make(map[string]*Rule)}

	builtins, err := fs.Glob(builtinFS, "builtin/*.yaml")
	if err != nil {
		return nil, err
	}
	b := &build{loader: opts.Loader, builtin: true}
	for _, name := range builtins {
		if opts.SkipBuiltins && path.Base(name) != "system.yaml" {
			continue
		}
		data, err := builtinFS.ReadFile(name)
		if err != nil {
			return nil, err
		}
		if err := reg.addFile(b, name, data); err != nil {
			reg.Close()
			return nil, err
		}
	}

	files, err := ruleFiles(opts.Paths)
	if err != nil {
		reg.Close()
		return nil, err
	}
	b = &build{loader: opts.Loader}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			reg.Close()
			return nil, loadError(file, "", "", err.Error())
		}
		if err := reg.addFile(b, file, data); err != nil {
			reg.Close()
			return nil, err
		}
	}

	slog.Debug("rule registry loaded", "rules", len(reg.rules), "files", len(files))
	return reg, nil
}

func (reg *Registry) addFile(b *build, source string, data []byte) error {
	docs, err := decodeFile(source, data)
	if err != nil {
		return err
	}
	for _, rd := range docs {
		rule, err := b.compile(source, rd)
		if err != nil {
			return err
		}
		if err := reg.register(rule, rd.Override, b.builtin); err != nil {
			releaseRule(rule)
			return err
		}
	}
	return nil
}

// register appends rule in load order. An override replaces a built-in in
// place so its position, and therefore result ordering, is kept.
func (reg *Registry) register(rule *Rule, override, builtin bool) error {
	existing, dup := reg.byID[rule.ID]
	switch {
	case !dup && override:
		return loadError(rule.Source, rule.ID, "override", "override names no built-in rule")
	case !dup:
		reg.rules = append(reg.rules, rule)
		reg.byID[rule.ID] = rule
		return nil
	case builtin || !override:
		return loadError(rule.Source, rule.ID, "id",
			fmt.Sprintf("duplicate rule id (first defined in %s)", existing.Source))
	case existing.IsSystem():
		return loadError(rule.Source, rule.ID, "override", "system diagnostics cannot be overridden")
	case !isBuiltinSource(existing.Source):
		return loadError(rule.Source, rule.ID, "id",
			fmt.Sprintf("duplicate rule id (first defined in %s)", existing.Source))
	}
	for i, r := range reg.rules {
		if r == existing {
			reg.rules[i] = rule
			break
		}
	}
	reg.byID[rule.ID] = rule
	releaseRule(existing)
	return nil
}

func isBuiltinSource(source string) bool {
	ok, _ := path.Match("builtin/*.yaml", source)
	return ok
}

// Reload builds a brand-new registry from the same sources.
func (reg *Registry) Reload() (*Registry, error) {
	return Load(reg.opts)
}

// Close releases compiled queries.
func (reg *Registry) Close() {
	for _, r := range reg.rules {
		releaseRule(r)
	}
}

func releaseRule(r *Rule) {
	if pb, ok := r.Body.(*PatternBody); ok {
		closeQueries(pb)
		pb.Queries = map[string]*sitter.Query{}
	}
}

// Rules returns every registered rule in registration order.
func (reg *Registry) Rules() []*Rule {
	return append([]*Rule(nil), reg.rules...)
}

func (reg *Registry) Len() int { return len(reg.rules) }

// Rule looks a rule up by id.
func (reg *Registry) Rule(id string) (*Rule, bool) {
	r, ok := reg.byID[id]
	return r, ok
}

// RulesFor returns the enabled file-scope rules eligible for one file, in
// registration order.
func (reg *Registry) RulesFor(language, relPath string, declared *deps.Set) []*Rule {
	var out []*Rule
	for _, r := range reg.rules {
		if !r.Enabled || r.Scope != checks.ScopeFile || r.IsSystem() {
			continue
		}
		if !r.MatchesLanguage(language) || !r.MatchesPath(relPath) {
			continue
		}
		if _, isPattern := r.Body.(*PatternBody); isPattern {
			if _, ok := r.Query(language); !ok {
				continue
			}
		}
		if !declared.ContainsAll(r.Deps) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ProjectRules returns the enabled project-scope rules whose dependency
// filter is satisfied. Quick keeps only rules marked quick.
func (reg *Registry) ProjectRules(quick bool, declared *deps.Set) []*Rule {
	var out []*Rule
	for _, r := range reg.rules {
		if !r.Enabled || r.Scope != checks.ScopeProject || r.IsSystem() {
			continue
		}
		if quick && !r.Quick {
			continue
		}
		if !declared.ContainsAll(r.Deps) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Needs is the union of the analyses the given rules depend on.
func Needs(rules []*Rule) checks.Analysis {
	var need checks.Analysis
	for _, r := range rules {
		if cb, ok := r.Body.(*CheckBody); ok {
			need |= cb.Check.Needs
		}
	}
	return need
}
