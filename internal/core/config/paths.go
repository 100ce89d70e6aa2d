package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResolvedPaths are the absolute locations a run works with.
type ResolvedPaths struct {
	ProjectRoot    string
	RulesDirs      []string
	ThresholdsFile string
	StateDir       string
	HistoryPath    string
	OutputDir      string
}

// ResolvePaths anchors the configured paths. An explicit root wins, then
// paths.root relative to cwd, then the nearest directory with a project
// marker above cwd.
func ResolvePaths(cfg *Config, cwd, root string) (ResolvedPaths, error) {
	if strings.TrimSpace(cwd) == "" {
		return ResolvedPaths{}, fmt.Errorf("cwd must not be empty")
	}

	var projectRoot string
	switch {
	case strings.TrimSpace(root) != "":
		projectRoot = ResolveRelative(cwd, root)
	case cfg.Paths.Root != "":
		projectRoot = ResolveRelative(cwd, cfg.Paths.Root)
	default:
		detected, err := DetectProjectRoot([]string{cwd})
		if err != nil {
			return ResolvedPaths{}, err
		}
		projectRoot = detected
	}
	info, err := os.Stat(projectRoot)
	if err != nil {
		return ResolvedPaths{}, fmt.Errorf("project root: %w", err)
	}
	if !info.IsDir() {
		return ResolvedPaths{}, fmt.Errorf("project root %q is not a directory", projectRoot)
	}

	resolved := ResolvedPaths{
		ProjectRoot: filepath.Clean(projectRoot),
		StateDir:    ResolveRelative(projectRoot, cfg.Paths.StateDir),
	}
	for _, dir := range cfg.Paths.RulesDirs {
		resolved.RulesDirs = append(resolved.RulesDirs, ResolveRelative(projectRoot, dir))
	}
	if cfg.Paths.ThresholdsFile != "" {
		resolved.ThresholdsFile = ResolveRelative(projectRoot, cfg.Paths.ThresholdsFile)
	}
	resolved.HistoryPath = ResolveRelative(resolved.StateDir, cfg.History.Path)
	if out := strings.TrimSpace(cfg.Report.OutputDir); out != "" {
		resolved.OutputDir = ResolveRelative(projectRoot, out)
	}
	return resolved, nil
}

func ResolveRelative(base, value string) string {
	raw := strings.TrimSpace(value)
	if raw == "" {
		return filepath.Clean(base)
	}
	if filepath.IsAbs(raw) {
		return filepath.Clean(raw)
	}
	return filepath.Clean(filepath.Join(base, raw))
}

// DetectProjectRoot walks up from each candidate to the first directory
// holding a project marker, falling back to the working directory.
func DetectProjectRoot(candidates []string) (string, error) {
	markers := []string{
		DefaultFile,
		"go.mod",
		".git",
	}

	for _, candidate := range candidates {
		if strings.TrimSpace(candidate) == "" {
			continue
		}
		abs, err := filepath.Abs(candidate)
		if err != nil {
			continue
		}
		root := abs
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			root = filepath.Dir(abs)
		}
		for {
			for _, marker := range markers {
				if _, err := os.Stat(filepath.Join(root, marker)); err == nil {
					return filepath.Clean(root), nil
				}
			}
			parent := filepath.Dir(root)
			if parent == root {
				break
			}
			root = parent
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Clean(cwd), nil
}
