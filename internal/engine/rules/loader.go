package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	domainerrors "archguard/internal/core/errors"
	"archguard/internal/engine/checks"
	"archguard/internal/shared/util"
	"archguard/internal/shared/version"

	sitter "github.com/tree-sitter/go-tree-sitter"
	"gopkg.in/yaml.v3"
)

// SchemaVersion is the only rule-file schema this loader accepts.
const SchemaVersion = version.RuleSchema

var ruleIDRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.-]*$`)

type filtersDoc struct {
	Languages    []string `yaml:"languages"`
	Dependencies []string `yaml:"dependencies"`
	FilePatterns []string `yaml:"file_patterns"`
}

// queryDoc accepts either one query for every language or a per-language map.
type queryDoc struct {
	shared      string
	perLanguage map[string]string
}

func (q *queryDoc) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		return node.Decode(&q.shared)
	case yaml.MappingNode:
		return node.Decode(&q.perLanguage)
	default:
		return fmt.Errorf("line %d: query must be a string or a language map", node.Line)
	}
}

func (q queryDoc) empty() bool {
	return strings.TrimSpace(q.shared) == "" && len(q.perLanguage) == 0
}

type ruleDoc struct {
	Schema      int               `yaml:"schema"`
	ID          string            `yaml:"id"`
	Name        string            `yaml:"name"`
	Category    string            `yaml:"category"`
	Severity    string            `yaml:"severity"`
	Enabled     *bool             `yaml:"enabled"`
	Quick       *bool             `yaml:"quick"`
	Description string            `yaml:"description"`
	Rationale   string            `yaml:"rationale"`
	Message     string            `yaml:"message"`
	Scope       string            `yaml:"scope"`
	Override    bool              `yaml:"override"`
	System      bool              `yaml:"system"`
	Params      map[string]string `yaml:"params"`
	Filters     filtersDoc        `yaml:"filters"`
	Query       queryDoc          `yaml:"query"`
	Check       string            `yaml:"check"`
}

type fileDoc struct {
	ruleDoc `yaml:",inline"`
	Rules   []ruleDoc `yaml:"rules"`
}

// decodeFile strictly decodes every YAML document of a rule file.
func decodeFile(source string, data []byte) ([]ruleDoc, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var out []ruleDoc
	for {
		var doc fileDoc
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, loadError(source, "", "", err.Error())
		}
		if doc.Schema != SchemaVersion {
			return nil, loadError(source, doc.ID, "schema",
				fmt.Sprintf("unsupported schema %d (want %d)", doc.Schema, SchemaVersion))
		}
		if len(doc.Rules) == 0 {
			if doc.ID == "" {
				return nil, loadError(source, "", "rules", "file defines no rules")
			}
			out = append(out, doc.ruleDoc)
			continue
		}
		if doc.ID != "" {
			return nil, loadError(source, doc.ID, "rules", "a file holds either one rule or a rules list, not both")
		}
		for _, rd := range doc.Rules {
			if rd.Schema != 0 && rd.Schema != SchemaVersion {
				return nil, loadError(source, rd.ID, "schema",
					fmt.Sprintf("unsupported schema %d (want %d)", rd.Schema, SchemaVersion))
			}
			out = append(out, rd)
		}
	}
	if len(out) == 0 {
		return nil, loadError(source, "", "", "empty rule file")
	}
	return out, nil
}

// compile validates one decoded rule and resolves its body.
func (b *build) compile(source string, rd ruleDoc) (*Rule, error) {
	fail := func(field, msg string) (*Rule, error) {
		return nil, loadError(source, rd.ID, field, msg)
	}

	if !ruleIDRe.MatchString(rd.ID) {
		return fail("id", fmt.Sprintf("invalid rule id %q", rd.ID))
	}
	if strings.TrimSpace(rd.Category) == "" {
		return fail("category", "category is required")
	}
	if strings.TrimSpace(rd.Severity) == "" {
		return fail("severity", "severity is required")
	}
	sev, err := ParseSeverity(rd.Severity)
	if err != nil {
		return fail("severity", err.Error())
	}

	r := &Rule{
		ID:          rd.ID,
		Name:        strings.TrimSpace(rd.Name),
		Category:    strings.ToLower(strings.TrimSpace(rd.Category)),
		Severity:    sev,
		Enabled:     rd.Enabled == nil || *rd.Enabled,
		Quick:       rd.Quick == nil || *rd.Quick,
		Description: strings.TrimSpace(rd.Description),
		Rationale:   strings.TrimSpace(rd.Rationale),
		Message:     strings.TrimSpace(rd.Message),
		Params:      rd.Params,
		Deps:        rd.Filters.Dependencies,
		Patterns:    rd.Filters.FilePatterns,
		Source:      source,
	}
	if r.Name == "" {
		r.Name = r.ID
	}

	if len(rd.Filters.Languages) > 0 {
		r.languages = make(map[string]bool, len(rd.Filters.Languages))
		for _, lang := range rd.Filters.Languages {
			lang = strings.ToLower(strings.TrimSpace(lang))
			if _, ok := b.loader.Language(lang); !ok {
				return fail("filters.languages", fmt.Sprintf("unknown language %q", lang))
			}
			r.languages[lang] = true
			r.Languages = append(r.Languages, lang)
		}
	}
	for _, dep := range rd.Filters.Dependencies {
		if strings.TrimSpace(dep) == "" {
			return fail("filters.dependencies", "empty dependency name")
		}
	}
	if r.paths, err = compilePathFilter(rd.Filters.FilePatterns); err != nil {
		return fail("filters.file_patterns", err.Error())
	}

	bodies := 0
	for _, set := range []bool{!rd.Query.empty(), rd.Check != "", rd.System} {
		if set {
			bodies++
		}
	}
	if bodies != 1 {
		return fail("query", "exactly one of query or check is required")
	}

	switch {
	case rd.System:
		if !b.builtin {
			return fail("system", "system rules are reserved for the engine")
		}
		r.Body = &SystemBody{}
		r.Scope = checks.ScopeProject
	case rd.Check != "":
		c, ok := checks.Lookup(rd.Check)
		if !ok {
			return fail("check", fmt.Sprintf("unknown check %q", rd.Check))
		}
		if rd.Scope != "" && checks.Scope(rd.Scope) != c.Scope {
			return fail("scope", fmt.Sprintf("check %s runs at %s scope", c.ID, c.Scope))
		}
		if c.ValidateParams != nil {
			if err := c.ValidateParams(rd.Params); err != nil {
				return fail("params", err.Error())
			}
		}
		r.Scope = c.Scope
		r.Body = &CheckBody{Check: c}
	default:
		if rd.Scope != "" && checks.Scope(rd.Scope) != checks.ScopeFile {
			return fail("scope", "query rules run at file scope")
		}
		body, err := b.compileQuery(r, rd.Query)
		if err != nil {
			return fail("query", err.Error())
		}
		r.Scope = checks.ScopeFile
		r.Body = body
	}
	return r, nil
}

// compileQuery compiles the pattern for every candidate language. A shared
// query only needs one grammar to accept it; an explicit per-language query
// must compile for its language.
func (b *build) compileQuery(r *Rule, q queryDoc) (*PatternBody, error) {
	body := &PatternBody{Source: map[string]string{}, Queries: map[string]*sitter.Query{}}

	if len(q.perLanguage) > 0 {
		for _, lang := range util.SortedStringKeys(q.perLanguage) {
			grammar, ok := b.loader.Language(lang)
			if !ok {
				closeQueries(body)
				return nil, fmt.Errorf("unknown language %q", lang)
			}
			if !r.MatchesLanguage(lang) {
				closeQueries(body)
				return nil, fmt.Errorf("language %q is excluded by filters.languages", lang)
			}
			compiled, qerr := sitter.NewQuery(grammar, q.perLanguage[lang])
			if qerr != nil {
				closeQueries(body)
				return nil, fmt.Errorf("%s: %s", lang, qerr.Error())
			}
			body.Source[lang] = q.perLanguage[lang]
			body.Queries[lang] = compiled
		}
		return body, nil
	}

	candidates := r.Languages
	if len(candidates) == 0 {
		candidates = b.loader.Languages()
	}
	var firstErr string
	for _, lang := range candidates {
		grammar, _ := b.loader.Language(lang)
		compiled, qerr := sitter.NewQuery(grammar, q.shared)
		if qerr != nil {
			if firstErr == "" {
				firstErr = lang + ": " + qerr.Error()
			}
			continue
		}
		body.Source[lang] = q.shared
		body.Queries[lang] = compiled
	}
	if len(body.Queries) == 0 {
		return nil, fmt.Errorf("query compiles for no supported language (%s)", firstErr)
	}
	return body, nil
}

func closeQueries(body *PatternBody) {
	for _, q := range body.Queries {
		q.Close()
	}
}

// ruleFiles expands files and directories into the sorted list of rule files.
func ruleFiles(paths []string) ([]string, error) {
	var out []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, loadError(p, "", "", err.Error())
		}
		if !info.IsDir() {
			out = append(out, p)
			continue
		}
		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			if isRuleFile(d.Name()) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, loadError(p, "", "", err.Error())
		}
		sort.Strings(found)
		out = append(out, found...)
	}
	return out, nil
}

func isRuleFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

func loadError(source, ruleID, field, msg string) error {
	err := domainerrors.New(domainerrors.CodeLoad, msg)
	err = domainerrors.AddContext(err, domainerrors.CtxPath, source)
	if ruleID != "" {
		err = domainerrors.AddContext(err, domainerrors.CtxRule, ruleID)
	}
	if field != "" {
		err = domainerrors.AddContext(err, domainerrors.CtxField, field)
	}
	return err
}
