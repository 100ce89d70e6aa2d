package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// LanguageSpec describes one language the adapter can parse.
type LanguageSpec struct {
	Name       string
	Extensions []string
	Filenames  []string
	Enabled    bool
	// Markup languages produce tokens and imports only, no declarations.
	Markup bool
}

// LanguageOverride carries per-language settings from the engine configuration.
type LanguageOverride struct {
	Enabled    *bool
	Extensions []string
}

func DefaultLanguageRegistry() map[string]LanguageSpec {
	return map[string]LanguageSpec{
		"css":        {Name: "css", Extensions: []string{".css"}, Enabled: true, Markup: true},
		"go":         {Name: "go", Extensions: []string{".go"}, Enabled: true},
		"html":       {Name: "html", Extensions: []string{".html", ".htm"}, Enabled: true, Markup: true},
		"java":       {Name: "java", Extensions: []string{".java"}, Enabled: true},
		"javascript": {Name: "javascript", Extensions: []string{".js", ".cjs", ".mjs", ".jsx"}, Enabled: true},
		"python":     {Name: "python", Extensions: []string{".py", ".pyi"}, Enabled: true},
		"rust":       {Name: "rust", Extensions: []string{".rs"}, Enabled: true},
		"tsx":        {Name: "tsx", Extensions: []string{".tsx"}, Enabled: true},
		"typescript": {Name: "typescript", Extensions: []string{".ts", ".mts", ".cts"}, Enabled: true},
	}
}

// BuildLanguageRegistry applies overrides on top of the defaults and validates
// that no extension is claimed by two enabled languages.
func BuildLanguageRegistry(overrides map[string]LanguageOverride) (map[string]LanguageSpec, error) {
	registry := cloneLanguageRegistry(DefaultLanguageRegistry())
	for language, override := range overrides {
		spec, ok := registry[language]
		if !ok {
			return nil, fmt.Errorf("unknown language override %q", language)
		}
		if override.Enabled != nil {
			spec.Enabled = *override.Enabled
		}
		if len(override.Extensions) > 0 {
			spec.Extensions = normalizeExtensions(override.Extensions)
		}
		registry[language] = spec
	}

	if err := validateLanguageRegistry(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

// KnownLanguage reports whether id names a language of the default registry.
func KnownLanguage(id string) bool {
	_, ok := DefaultLanguageRegistry()[id]
	return ok
}

// KnownLanguages returns every language id in sorted order.
func KnownLanguages() []string {
	reg := DefaultLanguageRegistry()
	out := make([]string, 0, len(reg))
	for id := range reg {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func cloneLanguageRegistry(in map[string]LanguageSpec) map[string]LanguageSpec {
	out := make(map[string]LanguageSpec, len(in))
	for id, spec := range in {
		copySpec := spec
		copySpec.Extensions = append([]string(nil), spec.Extensions...)
		copySpec.Filenames = append([]string(nil), spec.Filenames...)
		out[id] = copySpec
	}
	return out
}

func normalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if !strings.HasPrefix(v, ".") {
			v = "." + v
		}
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func validateLanguageRegistry(registry map[string]LanguageSpec) error {
	owners := make(map[string]string)
	ids := make([]string, 0, len(registry))
	for id := range registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		spec := registry[id]
		if !spec.Enabled {
			continue
		}
		if len(spec.Extensions) == 0 && len(spec.Filenames) == 0 {
			return fmt.Errorf("language %q is enabled but has no extensions", id)
		}
		for _, ext := range spec.Extensions {
			if owner, ok := owners[ext]; ok {
				return fmt.Errorf("extension %q is claimed by both %q and %q", ext, owner, id)
			}
			owners[ext] = id
		}
	}
	return nil
}

func extensionOf(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
