package rules

import (
	"fmt"
	"path"
	"strings"

	"archguard/internal/shared/util"

	"github.com/gobwas/glob"
)

type compiledPattern struct {
	raw        string
	isWildcard bool
	baseOnly   bool
	glob       glob.Glob
}

// pathFilter applies file_patterns: a path must match one include (when any
// are given) and no "!"-prefixed exclude.
type pathFilter struct {
	include []compiledPattern
	exclude []compiledPattern
}

func compilePathFilter(patterns []string) (pathFilter, error) {
	var pf pathFilter
	for _, raw := range patterns {
		negate := strings.HasPrefix(raw, "!")
		norm := util.NormalizePatternPath(strings.TrimPrefix(raw, "!"))
		if norm == "" {
			return pathFilter{}, fmt.Errorf("empty file pattern %q", raw)
		}
		cp := compiledPattern{
			raw:        norm,
			isWildcard: strings.ContainsAny(norm, "*?[]{}"),
			baseOnly:   !strings.Contains(norm, "/"),
		}
		if cp.isWildcard {
			g, err := glob.Compile(norm, '/')
			if err != nil {
				return pathFilter{}, fmt.Errorf("invalid file pattern %q: %w", raw, err)
			}
			cp.glob = g
		}
		if negate {
			pf.exclude = append(pf.exclude, cp)
		} else {
			pf.include = append(pf.include, cp)
		}
	}
	return pf, nil
}

func (pf pathFilter) match(relPath string) bool {
	relPath = util.NormalizePatternPath(relPath)
	if len(pf.include) > 0 && !anyMatch(pf.include, relPath) {
		return false
	}
	return !anyMatch(pf.exclude, relPath)
}

func anyMatch(patterns []compiledPattern, relPath string) bool {
	base := path.Base(relPath)
	for _, p := range patterns {
		if p.isWildcard {
			if p.glob.Match(relPath) || (p.baseOnly && p.glob.Match(base)) {
				return true
			}
			continue
		}
		if util.HasPathPrefix(relPath, p.raw) || (p.baseOnly && base == p.raw) {
			return true
		}
	}
	return false
}
