package checks

import (
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"archguard/internal/engine/facts"
)

// checkPublicDocs reports public functions, methods and types with neither a
// doc comment directly above them nor a docstring. Param kinds restricts the
// declaration kinds checked, e.g. "function,struct".
func checkPublicDocs(fc *FileContext) []Finding {
	if fc.Facts == nil {
		return nil
	}
	kinds := splitList(fc.Params["kinds"])
	wanted := func(kind string) bool { return len(kinds) == 0 || slices.Contains(kinds, kind) }

	var out []Finding
	for _, fn := range fc.Facts.Functions {
		if !fn.Public || fn.Documented || !wanted(fn.Kind) {
			continue
		}
		name := fn.QualifiedName()
		out = append(out, undocumented(fc.Path, fn.Kind, name, fn.StartLine))
	}
	for _, decl := range fc.Facts.Types {
		if !decl.Public || decl.Documented || decl.Kind == "impl" || !wanted(decl.Kind) {
			continue
		}
		out = append(out, undocumented(fc.Path, decl.Kind, decl.Name, decl.Line))
	}
	return out
}

func undocumented(file, kind, name string, line int) Finding {
	return Finding{
		Path:      file,
		StartLine: line,
		EndLine:   line,
		Message:   fmt.Sprintf("public %s %s has no documentation", kind, name),
		Vars:      map[string]string{"name": name, "kind": kind},
	}
}

// checkModuleDocs reports module roots without a leading module doc: Rust
// lib.rs, main.rs and mod.rs files need an inner doc comment (//! or /*!)
// before the first item, Python modules a docstring as their first statement.
func checkModuleDocs(fc *FileContext) []Finding {
	if fc.Facts == nil {
		return nil
	}
	var documented bool
	switch fc.Language {
	case "rust":
		switch path.Base(fc.Path) {
		case "lib.rs", "main.rs", "mod.rs":
		default:
			return nil
		}
		documented = rustInnerDoc(fc.Facts)
	case "python":
		if len(fc.Facts.Tokens) == 0 {
			return nil
		}
		documented = pythonModuleDocstring(fc.Facts)
	default:
		return nil
	}
	if documented {
		return nil
	}
	return []Finding{{
		Path:      fc.Path,
		StartLine: 1,
		EndLine:   1,
		Message:   fmt.Sprintf("module %s has no module documentation", fc.Module),
		Vars:      map[string]string{"module": fc.Module},
	}}
}

func rustInnerDoc(f *facts.FileFacts) bool {
	firstCode := f.Lines + 1
	if len(f.Tokens) > 0 {
		firstCode = f.Tokens[0].Line
	}
	for _, c := range f.Comments {
		if c.Line > firstCode {
			break
		}
		text := strings.TrimSpace(c.Text)
		if strings.HasPrefix(text, "//!") || strings.HasPrefix(text, "/*!") {
			return true
		}
	}
	return false
}

// pythonModuleDocstring reports whether the first statement is a bare string.
func pythonModuleDocstring(f *facts.FileFacts) bool {
	first := f.Tokens[0]
	if first.Kind != facts.TokenLiteral || len(f.Strings) == 0 {
		return false
	}
	return f.Strings[0].Line == first.Line
}

const (
	defaultMaxFields          = 7
	defaultContainerMaxFields = 15
)

var defaultContainerSuffixes = []string{"Container", "Context", "Registry", "Config", "Options", "Settings"}

// checkStructFields reports types declaring more data members than
// max_fields. Types whose name ends in one of container_suffixes aggregate
// collaborators by intent and get container_max_fields instead.
func checkStructFields(fc *FileContext) []Finding {
	if fc.Facts == nil {
		return nil
	}
	limit, containerLimit, suffixes := structFieldLimits(fc.Params)

	var out []Finding
	for _, decl := range fc.Facts.Types {
		allowed := limit
		for _, s := range suffixes {
			if strings.HasSuffix(decl.Name, s) {
				allowed = containerLimit
				break
			}
		}
		if allowed <= 0 || decl.Fields <= allowed {
			continue
		}
		f := Finding{
			Path:      fc.Path,
			StartLine: decl.Line,
			EndLine:   decl.EndLine,
			Message:   fmt.Sprintf("%s %s declares %d fields (limit %d)", decl.Kind, decl.Name, decl.Fields, allowed),
			Vars:      map[string]string{"name": decl.Name, "kind": decl.Kind},
		}
		out = append(out, f.Measured(decl.Fields, allowed))
	}
	return out
}

func structFieldLimits(params map[string]string) (limit, containerLimit int, suffixes []string) {
	limit, containerLimit, suffixes = defaultMaxFields, defaultContainerMaxFields, defaultContainerSuffixes
	if n, err := strconv.Atoi(params["max_fields"]); err == nil {
		limit = n
	}
	if n, err := strconv.Atoi(params["container_max_fields"]); err == nil {
		containerLimit = n
	}
	if p, ok := params["container_suffixes"]; ok {
		suffixes = splitList(p)
	}
	return limit, containerLimit, suffixes
}

func validateStructFieldParams(params map[string]string) error {
	for _, key := range []string{"max_fields", "container_max_fields"} {
		raw, ok := params[key]
		if !ok {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer, got %q", key, raw)
		}
	}
	return nil
}

// checkEmptyTests reports test functions that call nothing, so they can
// neither exercise code nor assert.
func checkEmptyTests(fc *FileContext) []Finding {
	if fc.Facts == nil || !isTestFile(fc.Language, fc.Path) {
		return nil
	}
	var out []Finding
	for _, fn := range fc.Facts.Functions {
		if fn.Kind == "closure" || !isTestFunction(fc.Language, fn.Name) {
			continue
		}
		if callsWithin(fc.Facts.Calls, fn.StartLine, fn.EndLine) {
			continue
		}
		out = append(out, Finding{
			Path:      fc.Path,
			StartLine: fn.StartLine,
			EndLine:   fn.EndLine,
			Message:   fmt.Sprintf("test %s has no calls or assertions", fn.Name),
			Vars:      map[string]string{"name": fn.Name},
		})
	}
	return out
}

func isTestFile(language, file string) bool {
	base := path.Base(file)
	switch language {
	case "go":
		return strings.HasSuffix(base, "_test.go")
	case "python":
		return strings.HasPrefix(base, "test_") || strings.HasSuffix(base, "_test.py")
	case "rust":
		return strings.HasPrefix(file, "tests/") || strings.Contains(file, "/tests/") || base == "tests.rs"
	case "java":
		return strings.HasSuffix(base, "Test.java") || strings.HasSuffix(base, "Tests.java")
	}
	return false
}

func isTestFunction(language, name string) bool {
	switch language {
	case "go":
		rest, ok := strings.CutPrefix(name, "Test")
		return ok && (rest == "" || !isLowerASCII(rest[0])) && name != "TestMain"
	case "python", "rust":
		return strings.HasPrefix(name, "test_") || name == "test"
	case "java":
		return strings.HasPrefix(name, "test") || strings.HasPrefix(name, "should")
	}
	return false
}

func isLowerASCII(b byte) bool { return b >= 'a' && b <= 'z' }

func callsWithin(calls []facts.CallFact, start, end int) bool {
	for _, c := range calls {
		if c.Line >= start && c.Line <= end {
			return true
		}
	}
	return false
}
