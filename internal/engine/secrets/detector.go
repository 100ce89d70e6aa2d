// Package secrets flags string literals that look like credentials.
package secrets

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"archguard/internal/engine/facts"
)

const (
	DefaultEntropyThreshold = 4.0
	DefaultMinTokenLength   = 20

	KindHighEntropy = "high-entropy-string"
)

type PatternConfig struct {
	Name  string
	Regex string
}

type Config struct {
	EntropyThreshold float64
	MinTokenLength   int
	// Patterns are checked after the built-in ones.
	Patterns []PatternConfig
}

// Match is one suspicious literal. Value is unquoted and unmasked.
type Match struct {
	Kind    string
	Line    int
	Value   string
	Entropy float64
}

type compiledPattern struct {
	name string
	re   *regexp.Regexp
}

type Detector struct {
	entropyThreshold float64
	minTokenLength   int
	patterns         []compiledPattern
	tokenRE          *regexp.Regexp
}

var builtInPatterns = []PatternConfig{
	{Name: "aws-access-key-id", Regex: `\bAKIA[0-9A-Z]{16}\b`},
	{Name: "github-pat", Regex: `\bghp_[A-Za-z0-9]{36}\b`},
	{Name: "github-fine-grained-pat", Regex: `\bgithub_pat_[A-Za-z0-9_]{82}\b`},
	{Name: "stripe-live-secret", Regex: `\bsk_live_[A-Za-z0-9]{16,}\b`},
	{Name: "slack-token", Regex: `\bxox[baprs]-[A-Za-z0-9-]{10,}\b`},
	{Name: "private-key-block", Regex: `-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY-----`},
}

func NewDetector(cfg Config) (*Detector, error) {
	if cfg.EntropyThreshold <= 0 {
		cfg.EntropyThreshold = DefaultEntropyThreshold
	}
	if cfg.MinTokenLength <= 0 {
		cfg.MinTokenLength = DefaultMinTokenLength
	}
	patterns, err := compilePatterns(append(append([]PatternConfig(nil), builtInPatterns...), cfg.Patterns...))
	if err != nil {
		return nil, err
	}
	return &Detector{
		entropyThreshold: cfg.EntropyThreshold,
		minTokenLength:   cfg.MinTokenLength,
		patterns:         patterns,
		tokenRE:          regexp.MustCompile(`^[A-Za-z0-9_\-+=:/.]+$`),
	}, nil
}

// Scan checks each literal against the known credential patterns first and
// falls back to the entropy heuristic. At most one match is reported per
// literal. Results are ordered by line.
func (d *Detector) Scan(literals []facts.StringFact) []Match {
	var out []Match
	for _, lit := range literals {
		value := Unquote(lit.Text)
		if value == "" {
			continue
		}
		if m, ok := d.matchPattern(value, lit.Line); ok {
			out = append(out, m)
			continue
		}
		if m, ok := d.matchEntropy(value, lit.Line); ok {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

func (d *Detector) matchPattern(value string, line int) (Match, bool) {
	for _, p := range d.patterns {
		loc := p.re.FindStringIndex(value)
		if loc == nil {
			continue
		}
		hit := value[loc[0]:loc[1]]
		if shouldIgnoreCandidate(hit) {
			continue
		}
		return Match{Kind: p.name, Line: line, Value: hit, Entropy: shannonEntropy(hit)}, true
	}
	return Match{}, false
}

func (d *Detector) matchEntropy(value string, line int) (Match, bool) {
	if len(value) < d.minTokenLength || !d.tokenRE.MatchString(value) {
		return Match{}, false
	}
	if shouldIgnoreCandidate(value) || !containsLetterAndDigit(value) {
		return Match{}, false
	}
	entropy := shannonEntropy(value)
	if entropy < d.entropyThreshold {
		return Match{}, false
	}
	return Match{Kind: KindHighEntropy, Line: line, Value: value, Entropy: entropy}, true
}

func compilePatterns(cfg []PatternConfig) ([]compiledPattern, error) {
	compiled := make([]compiledPattern, 0, len(cfg))
	for _, pattern := range cfg {
		name := strings.TrimSpace(pattern.Name)
		if name == "" {
			return nil, fmt.Errorf("secret pattern name must not be empty")
		}
		expr := strings.TrimSpace(pattern.Regex)
		if expr == "" {
			return nil, fmt.Errorf("secret pattern %q regex must not be empty", name)
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("compile secret pattern %q: %w", name, err)
		}
		compiled = append(compiled, compiledPattern{name: name, re: re})
	}
	return compiled, nil
}

// Unquote strips the delimiters of a source string literal as written:
// prefixes such as r, b, f or u, raw-string hashes, and single, double,
// triple or backtick quotes. Escapes are left as written.
func Unquote(text string) string {
	s := strings.TrimSpace(text)
	s = strings.TrimLeftFunc(s, func(r rune) bool { return unicode.IsLetter(r) })
	s = strings.Trim(s, "#")
	for _, q := range []string{`"""`, `'''`, `"`, `'`, "`"} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

func containsLetterAndDigit(value string) bool {
	hasLetter := false
	hasDigit := false
	for _, r := range value {
		if unicode.IsLetter(r) {
			hasLetter = true
		}
		if unicode.IsDigit(r) {
			hasDigit = true
		}
		if hasLetter && hasDigit {
			return true
		}
	}
	return false
}

func shouldIgnoreCandidate(value string) bool {
	lower := strings.ToLower(value)
	for _, blocked := range []string{"example", "sample", "dummy", "placeholder", "changeme", "notasecret", "test"} {
		if strings.Contains(lower, blocked) {
			return true
		}
	}
	return false
}

func shannonEntropy(value string) float64 {
	if value == "" {
		return 0
	}
	freq := make(map[rune]float64)
	n := 0
	for _, r := range value {
		freq[r]++
		n++
	}
	length := float64(n)
	entropy := 0.0
	for _, count := range freq {
		p := count / length
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// MaskValue keeps the first and last four characters of long values.
func MaskValue(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + "..." + value[len(value)-4:]
}
