package checks

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"archguard/internal/engine/deps"
	"archguard/internal/engine/resolver"
	"archguard/internal/engine/secrets"
)

type namingConvention struct {
	function string
	typ      string
}

var namingDefaults = map[string]namingConvention{
	"go":         {function: `^[A-Za-z][A-Za-z0-9]*$|^(Test|Benchmark|Example|Fuzz)[A-Za-z0-9_]*$`, typ: `^[A-Za-z][A-Za-z0-9]*$`},
	"python":     {function: `^_{0,2}[a-z][a-z0-9_]*$`, typ: `^_?[A-Z][A-Za-z0-9]*$`},
	"javascript": {function: `^[$_]?[A-Za-z][A-Za-z0-9]*$`, typ: `^[A-Z][A-Za-z0-9]*$`},
	"typescript": {function: `^[$_]?[A-Za-z][A-Za-z0-9]*$`, typ: `^[A-Z][A-Za-z0-9]*$`},
	"tsx":        {function: `^[$_]?[A-Za-z][A-Za-z0-9]*$`, typ: `^[A-Z][A-Za-z0-9]*$`},
	"java":       {function: `^[a-z][A-Za-z0-9]*$|^[A-Z][A-Za-z0-9]*$`, typ: `^[A-Z][A-Za-z0-9]*$`},
	"rust":       {function: `^[a-z_][a-z0-9_]*$`, typ: `^[A-Z][A-Za-z0-9]*$`},
}

var (
	regexMu    sync.Mutex
	regexCache = map[string]*regexp.Regexp{}
)

func cachedRegexp(expr string) (*regexp.Regexp, error) {
	regexMu.Lock()
	defer regexMu.Unlock()
	if re, ok := regexCache[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	regexCache[expr] = re
	return re, nil
}

// checkNaming reports declarations whose name does not match the language
// convention. Params function_pattern and type_pattern replace the defaults.
func checkNaming(fc *FileContext) []Finding {
	conv, ok := namingDefaults[fc.Language]
	if !ok || fc.Facts == nil {
		return nil
	}
	if p := fc.Params["function_pattern"]; p != "" {
		conv.function = p
	}
	if p := fc.Params["type_pattern"]; p != "" {
		conv.typ = p
	}
	fnRe, err := cachedRegexp(conv.function)
	if err != nil {
		return nil
	}
	typeRe, err := cachedRegexp(conv.typ)
	if err != nil {
		return nil
	}

	var out []Finding
	for _, fn := range fc.Facts.Functions {
		if fn.Name == "" || strings.HasPrefix(fn.Name, "<") || strings.ContainsAny(fn.Name, ".[]-' ") {
			continue
		}
		if fn.Kind == "closure" || fnRe.MatchString(fn.Name) {
			continue
		}
		out = append(out, Finding{
			Path:      fc.Path,
			StartLine: fn.StartLine,
			EndLine:   fn.StartLine,
			Message:   fmt.Sprintf("function %q does not match %s", fn.Name, conv.function),
			Vars:      map[string]string{"name": fn.Name, "kind": fn.Kind, "pattern": conv.function},
		})
	}
	for _, decl := range fc.Facts.Types {
		if decl.Kind == "impl" || decl.Name == "" {
			continue
		}
		name := decl.Name
		if i := strings.IndexAny(name, "<["); i >= 0 {
			name = name[:i]
		}
		if typeRe.MatchString(name) {
			continue
		}
		out = append(out, Finding{
			Path:      fc.Path,
			StartLine: decl.Line,
			EndLine:   decl.Line,
			Message:   fmt.Sprintf("%s %q does not match %s", decl.Kind, name, conv.typ),
			Vars:      map[string]string{"name": name, "kind": decl.Kind, "pattern": conv.typ},
		})
	}
	return out
}

func validateNamingParams(params map[string]string) error {
	for _, key := range []string{"function_pattern", "type_pattern"} {
		if expr := params[key]; expr != "" {
			if _, err := regexp.Compile(expr); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
		}
	}
	return nil
}

var defaultMarkers = []string{"TODO", "FIXME", "XXX", "HACK"}

// checkTodoMarkers reports comments containing a marker word. Param markers
// is a comma separated replacement list.
func checkTodoMarkers(fc *FileContext) []Finding {
	if fc.Facts == nil {
		return nil
	}
	markers := defaultMarkers
	if p := fc.Params["markers"]; p != "" {
		markers = splitList(p)
	}

	var out []Finding
	for _, c := range fc.Facts.Comments {
		for i, line := range strings.Split(c.Text, "\n") {
			marker := findMarker(line, markers)
			if marker == "" {
				continue
			}
			text := strings.TrimSpace(line)
			out = append(out, Finding{
				Path:      fc.Path,
				StartLine: c.Line + i,
				EndLine:   c.Line + i,
				Message:   fmt.Sprintf("%s marker: %s", marker, text),
				Vars:      map[string]string{"marker": marker, "text": text},
			})
		}
	}
	return out
}

// findMarker matches a marker as a whole word.
func findMarker(line string, markers []string) string {
	for _, m := range markers {
		idx := strings.Index(line, m)
		for idx >= 0 {
			end := idx + len(m)
			before := idx == 0 || !isWordByte(line[idx-1])
			after := end >= len(line) || !isWordByte(line[end])
			if before && after {
				return m
			}
			next := strings.Index(line[end:], m)
			if next < 0 {
				break
			}
			idx = end + next
		}
	}
	return ""
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

var ecosystemOf = map[string]deps.Ecosystem{
	"go":         deps.EcosystemGo,
	"javascript": deps.EcosystemNPM,
	"typescript": deps.EcosystemNPM,
	"tsx":        deps.EcosystemNPM,
	"rust":       deps.EcosystemCargo,
}

// checkUndeclaredImports reports external imports the project manifest does
// not declare. Languages without a manifest in the root are skipped.
func checkUndeclaredImports(fc *FileContext) []Finding {
	eco, ok := ecosystemOf[fc.Language]
	if !ok || !fc.Deps.HasManifest(eco) {
		return nil
	}
	ignored := map[string]bool{}
	for _, name := range splitList(fc.Params["ignore"]) {
		ignored[name] = true
	}

	var out []Finding
	seen := map[string]bool{}
	for _, imp := range fc.Imports {
		if imp.Target.Kind != resolver.TargetExternal {
			continue
		}
		pkg := imp.Target.Package
		if ignored[pkg] || seen[pkg] || fc.Deps.Declares(eco, pkg) {
			continue
		}
		// Type-only TS packages live under @types/.
		if eco == deps.EcosystemNPM && fc.Deps.Declares(eco, "@types/"+strings.TrimPrefix(strings.ReplaceAll(pkg, "/", "__"), "@")) {
			continue
		}
		seen[pkg] = true
		out = append(out, Finding{
			Path:      fc.Path,
			StartLine: imp.Line,
			EndLine:   imp.Line,
			Message:   fmt.Sprintf("import %q is not declared in the %s manifest", pkg, eco),
			Vars:      map[string]string{"package": pkg, "ecosystem": string(eco), "line": strconv.Itoa(imp.Line)},
		})
	}
	return out
}

var (
	detectorMu    sync.Mutex
	detectorCache = map[string]*secrets.Detector{}
)

// secretDetector builds a detector from params entropy_threshold,
// min_length and pattern, caching one per distinct setting.
func secretDetector(params map[string]string) (*secrets.Detector, error) {
	cfg, err := secretConfig(params)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%g|%d|%v", cfg.EntropyThreshold, cfg.MinTokenLength, cfg.Patterns)
	detectorMu.Lock()
	defer detectorMu.Unlock()
	if d, ok := detectorCache[key]; ok {
		return d, nil
	}
	d, err := secrets.NewDetector(cfg)
	if err != nil {
		return nil, err
	}
	detectorCache[key] = d
	return d, nil
}

func secretConfig(params map[string]string) (secrets.Config, error) {
	var cfg secrets.Config
	if p := params["entropy_threshold"]; p != "" {
		v, err := strconv.ParseFloat(p, 64)
		if err != nil || v <= 0 {
			return cfg, fmt.Errorf("entropy_threshold: want a positive number, got %q", p)
		}
		cfg.EntropyThreshold = v
	}
	if p := params["min_length"]; p != "" {
		v, err := strconv.Atoi(p)
		if err != nil || v <= 0 {
			return cfg, fmt.Errorf("min_length: want a positive integer, got %q", p)
		}
		cfg.MinTokenLength = v
	}
	if p := params["pattern"]; p != "" {
		cfg.Patterns = []secrets.PatternConfig{{Name: "custom-pattern", Regex: p}}
	}
	return cfg, nil
}

func validateSecretParams(params map[string]string) error {
	_, err := secretDetector(params)
	return err
}

// checkSecrets reports string literals that match a credential pattern or
// look like a random token. Values are masked in the message.
func checkSecrets(fc *FileContext) []Finding {
	if fc.Facts == nil || len(fc.Facts.Strings) == 0 {
		return nil
	}
	d, err := secretDetector(fc.Params)
	if err != nil {
		return nil
	}
	var out []Finding
	for _, m := range d.Scan(fc.Facts.Strings) {
		masked := secrets.MaskValue(m.Value)
		out = append(out, Finding{
			Path:      fc.Path,
			StartLine: m.Line,
			EndLine:   m.Line,
			Message:   fmt.Sprintf("possible %s: %s", m.Kind, masked),
			Vars:      map[string]string{"kind": m.Kind, "masked": masked, "entropy": strconv.FormatFloat(m.Entropy, 'f', 2, 64)},
			Score:     m.Entropy,
		})
	}
	return out
}
