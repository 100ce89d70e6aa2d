// Package helpers holds pattern comparisons shared by the config validators.
// Patterns are slash separated module paths.
package helpers

import (
	"path"
	"strings"
)

const wildcardChars = "*?[]{}"

func HasWildcard(pattern string) bool {
	return strings.ContainsAny(pattern, wildcardChars)
}

// IsPathOverlap reports whether one literal module path contains the other.
func IsPathOverlap(a, b string) bool {
	if a == b {
		return true
	}
	return strings.HasPrefix(a, b+"/") || strings.HasPrefix(b, a+"/")
}

// WildcardPatternsOverlap is a conservative check that two globs could match
// the same module: shared literal prefixes or a sample of one matching the
// other.
func WildcardPatternsOverlap(a, b string) bool {
	if a == b {
		return true
	}
	aPrefix := wildcardPrefix(a)
	bPrefix := wildcardPrefix(b)
	if aPrefix != "" && bPrefix != "" && aPrefix == bPrefix {
		return true
	}
	if sample := wildcardSample(a); sample != "" {
		if matched, _ := path.Match(b, sample); matched {
			return true
		}
	}
	if sample := wildcardSample(b); sample != "" {
		if matched, _ := path.Match(a, sample); matched {
			return true
		}
	}
	return false
}

func wildcardPrefix(pattern string) string {
	idx := strings.IndexAny(pattern, wildcardChars)
	if idx == -1 {
		return pattern
	}
	return pattern[:idx]
}

// wildcardSample turns a glob into one concrete path it matches.
func wildcardSample(pattern string) string {
	var sample strings.Builder
	inSet := false
	for _, ch := range pattern {
		switch {
		case ch == '[':
			inSet = true
			sample.WriteRune('x')
		case ch == ']':
			inSet = false
		case inSet:
			continue
		case ch == '*' || ch == '?' || ch == '{' || ch == '}' || ch == ',':
			sample.WriteRune('x')
		default:
			sample.WriteRune(ch)
		}
	}
	return sample.String()
}
