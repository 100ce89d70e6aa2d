package parser

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"archguard/internal/shared/util"

	sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_css "github.com/tree-sitter/tree-sitter-css/bindings/go"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_html "github.com/tree-sitter/tree-sitter-html/bindings/go"
	tree_sitter_java "github.com/tree-sitter/tree-sitter-java/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_rust "github.com/tree-sitter/tree-sitter-rust/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"
)

// GrammarLoader owns the compiled tree-sitter grammars of enabled languages.
type GrammarLoader struct {
	languages map[string]*sitter.Language
	registry  map[string]LanguageSpec
	byExt     map[string]string
	byName    map[string]string
}

func NewGrammarLoader(registry map[string]LanguageSpec) (*GrammarLoader, error) {
	if registry == nil {
		var err error
		registry, err = BuildLanguageRegistry(nil)
		if err != nil {
			return nil, err
		}
	}

	gl := &GrammarLoader{
		languages: make(map[string]*sitter.Language),
		registry:  cloneLanguageRegistry(registry),
		byExt:     make(map[string]string),
		byName:    make(map[string]string),
	}

	for _, langID := range util.SortedStringKeys(gl.registry) {
		spec := gl.registry[langID]
		if !spec.Enabled {
			continue
		}
		switch langID {
		case "css":
			gl.languages["css"] = sitter.NewLanguage(tree_sitter_css.Language())
		case "go":
			gl.languages["go"] = sitter.NewLanguage(tree_sitter_go.Language())
		case "html":
			gl.languages["html"] = sitter.NewLanguage(tree_sitter_html.Language())
		case "java":
			gl.languages["java"] = sitter.NewLanguage(tree_sitter_java.Language())
		case "javascript":
			gl.languages["javascript"] = sitter.NewLanguage(tree_sitter_javascript.Language())
		case "python":
			gl.languages["python"] = sitter.NewLanguage(tree_sitter_python.Language())
		case "rust":
			gl.languages["rust"] = sitter.NewLanguage(tree_sitter_rust.Language())
		case "tsx":
			gl.languages["tsx"] = sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())
		case "typescript":
			gl.languages["typescript"] = sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())
		default:
			return nil, fmt.Errorf("language %q is enabled but has no grammar binding", langID)
		}
		for _, ext := range spec.Extensions {
			gl.byExt[ext] = langID
		}
		for _, name := range spec.Filenames {
			gl.byName[strings.ToLower(name)] = langID
		}
	}

	return gl, nil
}

// Language returns the grammar of an enabled language.
func (gl *GrammarLoader) Language(id string) (*sitter.Language, bool) {
	lang, ok := gl.languages[id]
	return lang, ok
}

// Languages lists the enabled language ids in sorted order.
func (gl *GrammarLoader) Languages() []string {
	return util.SortedStringKeys(gl.languages)
}

// Spec returns the registry entry of a language.
func (gl *GrammarLoader) Spec(id string) (LanguageSpec, bool) {
	spec, ok := gl.registry[id]
	return spec, ok
}

// DetectLanguage maps a path onto an enabled language id, or "" when unsupported.
func (gl *GrammarLoader) DetectLanguage(path string) string {
	if id, ok := gl.byName[strings.ToLower(filepath.Base(path))]; ok {
		return id
	}
	return gl.byExt[extensionOf(path)]
}

func (gl *GrammarLoader) IsSupportedPath(path string) bool {
	return gl.DetectLanguage(path) != ""
}

func (gl *GrammarLoader) SupportedExtensions() []string {
	extensions := make([]string, 0, len(gl.byExt))
	for ext := range gl.byExt {
		extensions = append(extensions, ext)
	}
	sort.Strings(extensions)
	return extensions
}
