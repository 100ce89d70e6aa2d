package app

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"archguard/internal/core/ports"
	"archguard/internal/shared/util"

	"github.com/gobwas/glob"
	ignore "github.com/sabhiram/go-gitignore"
)

// ScanOptions configure which files a Scanner returns.
type ScanOptions struct {
	ExcludeDirs  []string
	ExcludeFiles []string
	// RespectGitignore applies the root .gitignore.
	RespectGitignore bool
	// SkipPaths are absolute directories never descended into (state and
	// output directories).
	SkipPaths []string
	// Supported reports whether a file has an enabled grammar.
	Supported func(path string) bool
}

// Scanner walks a project root. It is safe for concurrent use once built.
type Scanner struct {
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	gitignore    bool
	skip         map[string]struct{}
	supported    func(string) bool
}

var _ ports.FileScanner = (*Scanner)(nil)

func NewScanner(opts ScanOptions) (*Scanner, error) {
	dirGlobs, err := compileGlobs(opts.ExcludeDirs, "exclude dir")
	if err != nil {
		return nil, err
	}
	fileGlobs, err := compileGlobs(opts.ExcludeFiles, "exclude file")
	if err != nil {
		return nil, err
	}
	s := &Scanner{
		excludeDirs:  dirGlobs,
		excludeFiles: fileGlobs,
		gitignore:    opts.RespectGitignore,
		skip:         make(map[string]struct{}, len(opts.SkipPaths)),
		supported:    opts.Supported,
	}
	for _, p := range opts.SkipPaths {
		if p != "" {
			s.skip[filepath.Clean(p)] = struct{}{}
		}
	}
	return s, nil
}

func compileGlobs(patterns []string, label string) ([]glob.Glob, error) {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid %s pattern %q: %w", label, p, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// Scan returns the sorted absolute paths of every supported, non-excluded
// file under root.
func (s *Scanner) Scan(root string) ([]string, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	gi, err := s.loadGitignore(root)
	if err != nil {
		return nil, err
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && s.skipDir(root, path, gi) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if s.acceptFile(root, path, gi) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Accept applies the scan filters to a single path, as used for watch
// events. Paths outside root are rejected.
func (s *Scanner) Accept(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return false
	}
	gi, err := s.loadGitignore(root)
	if err != nil {
		gi = nil
	}
	for dir := filepath.Dir(path); dir != root && dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
		if s.skipDir(root, dir, gi) {
			return false
		}
	}
	return s.acceptFile(root, path, gi)
}

func (s *Scanner) loadGitignore(root string) (*ignore.GitIgnore, error) {
	if !s.gitignore {
		return nil, nil
	}
	gi, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read .gitignore: %w", err)
	}
	return gi, nil
}

func (s *Scanner) skipDir(root, path string, gi *ignore.GitIgnore) bool {
	base := filepath.Base(path)
	if base == ".git" {
		return true
	}
	if _, ok := s.skip[filepath.Clean(path)]; ok {
		return true
	}
	for _, g := range s.excludeDirs {
		if g.Match(base) {
			return true
		}
	}
	if gi != nil {
		rel := util.RelSlash(root, path)
		return gi.MatchesPath(rel) || gi.MatchesPath(rel+"/")
	}
	return false
}

func (s *Scanner) acceptFile(root, path string, gi *ignore.GitIgnore) bool {
	if s.supported != nil && !s.supported(path) {
		return false
	}
	base := filepath.Base(path)
	for _, g := range s.excludeFiles {
		if g.Match(base) {
			return false
		}
	}
	if gi != nil && gi.MatchesPath(util.RelSlash(root, path)) {
		return false
	}
	return true
}
