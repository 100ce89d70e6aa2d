package util

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestNormalizePatternPath(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "Empty", input: "", expected: ""},
		{name: "Dot", input: ".", expected: ""},
		{name: "Trim", input: "  ./foo/bar  ", expected: "foo/bar"},
		{name: "Relative", input: "foo/../bar", expected: "bar"},
		{name: "Backslashes", input: `foo\bar`, expected: "foo/bar"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := NormalizePatternPath(tc.input); got != tc.expected {
				t.Fatalf("expected %q, got %q", tc.expected, got)
			}
		})
	}
}

func TestHasPathPrefix(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		path     string
		prefix   string
		expected bool
	}{
		{name: "Exact", path: "foo/bar", prefix: "foo/bar", expected: true},
		{name: "Nested", path: "foo/bar/baz", prefix: "foo/bar", expected: true},
		{name: "Neighbor", path: "foo/barista", prefix: "foo/bar", expected: false},
		{name: "Shorter", path: "foo", prefix: "foo/bar", expected: false},
		{name: "MixedSeparators", path: `foo\bar\baz`, prefix: "foo/bar", expected: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := HasPathPrefix(tc.path, tc.prefix); got != tc.expected {
				t.Fatalf("expected %v, got %v", tc.expected, got)
			}
		})
	}
}

func TestRelSlashAndModuleDir(t *testing.T) {
	root := filepath.Join("tmp", "project")
	rel := RelSlash(root, filepath.Join(root, "internal", "app", "main.go"))
	if rel != "internal/app/main.go" {
		t.Fatalf("expected internal/app/main.go, got %q", rel)
	}
	if got := ModuleDir(rel); got != "internal/app" {
		t.Fatalf("expected internal/app, got %q", got)
	}
	if got := ModuleDir("main.go"); got != "." {
		t.Fatalf("expected root module '.', got %q", got)
	}
}

func TestSortedStringKeys(t *testing.T) {
	got := SortedStringKeys(map[string]int{"z": 1, "a": 2, "m": 3})
	want := []string{"a", "m", "z"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestWriteFileWithDirs(t *testing.T) {
	target := filepath.Join(t.TempDir(), "nested", "dir", "report.json")
	if err := WriteFileWithDirs(target, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(data) != "{}" {
		t.Fatalf("unexpected content %q", data)
	}
}
