package app

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func goOnly(path string) bool { return strings.HasSuffix(path, ".go") }

func relAll(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(rel))
	}
	return out
}

func TestScanner_Scan(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":              "package main\n",
		"pkg/a/a.go":           "package a\n",
		"pkg/a/a_gen.go":       "package a\n",
		"pkg/a/README.md":      "docs\n",
		"vendor/x/x.go":        "package x\n",
		"build/out.go":         "package out\n",
		".git/hooks/pre.go":    "package hooks\n",
		".archguard/cache.go":  "package cache\n",
		".gitignore":           "build/\n*.tmp.go\n",
		"pkg/b/scratch.tmp.go": "package b\n",
		"pkg/b/b.go":           "package b\n",
	})

	s, err := NewScanner(ScanOptions{
		ExcludeDirs:      []string{"vendor"},
		ExcludeFiles:     []string{"*_gen.go"},
		RespectGitignore: true,
		SkipPaths:        []string{filepath.Join(root, ".archguard")},
		Supported:        goOnly,
	})
	require.NoError(t, err)

	files, err := s.Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"main.go", "pkg/a/a.go", "pkg/b/b.go"}, relAll(t, root, files))
	for _, f := range files {
		assert.True(t, filepath.IsAbs(f), "expected absolute path, got %s", f)
	}
}

func TestScanner_GitignoreCanBeDisabled(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore":   "build/\n",
		"build/out.go": "package out\n",
		"main.go":      "package main\n",
	})
	s, err := NewScanner(ScanOptions{Supported: goOnly})
	require.NoError(t, err)

	files, err := s.Scan(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"build/out.go", "main.go"}, relAll(t, root, files))
}

func TestScanner_MissingRoot(t *testing.T) {
	s, err := NewScanner(ScanOptions{})
	require.NoError(t, err)
	_, err = s.Scan(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestScanner_Accept(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		".gitignore": "dist/\n",
		"app/a.go":   "package app\n",
	})
	s, err := NewScanner(ScanOptions{
		ExcludeDirs:      []string{"node_modules"},
		RespectGitignore: true,
		Supported:        goOnly,
	})
	require.NoError(t, err)

	cases := []struct {
		path string
		want bool
	}{
		{filepath.Join(root, "app", "a.go"), true},
		{filepath.Join(root, "app", "deleted.go"), true},
		{filepath.Join(root, "app", "notes.txt"), false},
		{filepath.Join(root, "node_modules", "dep", "x.go"), false},
		{filepath.Join(root, "dist", "x.go"), false},
		{filepath.Join(root, ".git", "x.go"), false},
		{filepath.Join(root, "app"), false},
		{filepath.Join(filepath.Dir(root), "outside.go"), false},
	}
	for _, tc := range cases {
		if got := s.Accept(root, tc.path); got != tc.want {
			t.Errorf("Accept(%s) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
