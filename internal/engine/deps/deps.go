// Package deps reads the external dependencies a project declares in its
// manifests. Rule dependency filters and the undeclared-import check consume
// the result.
package deps

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Ecosystem names a package manager namespace.
type Ecosystem string

const (
	EcosystemGo     Ecosystem = "go"
	EcosystemNPM    Ecosystem = "npm"
	EcosystemPython Ecosystem = "python"
	EcosystemCargo  Ecosystem = "cargo"
)

// Set is the declared dependency set of one project root. It is immutable
// once loaded.
type Set struct {
	// GoModule is the module path from go.mod, empty without one.
	GoModule string

	byEcosystem map[Ecosystem]map[string]struct{}
	all         map[string]struct{}
	manifests   []string
}

func NewSet() *Set {
	return &Set{
		byEcosystem: make(map[Ecosystem]map[string]struct{}),
		all:         make(map[string]struct{}),
	}
}

// Add records a dependency name. Names are lower-cased; Python names map
// underscores to dashes.
func (s *Set) Add(eco Ecosystem, name string) {
	name = Normalize(eco, name)
	if name == "" {
		return
	}
	bucket := s.byEcosystem[eco]
	if bucket == nil {
		bucket = make(map[string]struct{})
		s.byEcosystem[eco] = bucket
	}
	bucket[name] = struct{}{}
	s.all[name] = struct{}{}
}

// Normalize applies the per-ecosystem name folding used for comparisons.
func Normalize(eco Ecosystem, name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if eco == EcosystemPython {
		name = strings.ReplaceAll(name, "_", "-")
		name = strings.ReplaceAll(name, ".", "-")
	}
	return name
}

// Has reports whether any manifest declares name.
func (s *Set) Has(name string) bool {
	if s == nil {
		return false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	if _, ok := s.all[name]; ok {
		return true
	}
	_, ok := s.all[strings.ReplaceAll(name, "_", "-")]
	return ok
}

// ContainsAll reports whether every required name is declared. An empty
// requirement is always satisfied.
func (s *Set) ContainsAll(required []string) bool {
	for _, name := range required {
		if !s.Has(name) {
			return false
		}
	}
	return true
}

// Declares reports whether pkg is declared within one ecosystem. Go module
// paths match on path boundaries; Cargo names ignore the dash/underscore
// distinction.
func (s *Set) Declares(eco Ecosystem, pkg string) bool {
	if s == nil {
		return false
	}
	bucket := s.byEcosystem[eco]
	pkg = Normalize(eco, pkg)
	switch eco {
	case EcosystemGo:
		for mod := range bucket {
			if pkg == mod || strings.HasPrefix(pkg, mod+"/") {
				return true
			}
		}
		return false
	case EcosystemCargo:
		if _, ok := bucket[pkg]; ok {
			return true
		}
		_, ok := bucket[strings.ReplaceAll(pkg, "_", "-")]
		return ok
	default:
		_, ok := bucket[pkg]
		return ok
	}
}

// HasManifest reports whether a manifest of the ecosystem was found.
func (s *Set) HasManifest(eco Ecosystem) bool {
	if s == nil {
		return false
	}
	_, ok := s.byEcosystem[eco]
	return ok
}

// Names returns every declared name, sorted.
func (s *Set) Names() []string {
	out := make([]string, 0, len(s.all))
	for name := range s.all {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Manifests lists the manifest files that were read, relative to the root.
func (s *Set) Manifests() []string {
	return append([]string(nil), s.manifests...)
}

func (s *Set) touch(eco Ecosystem) {
	if _, ok := s.byEcosystem[eco]; !ok {
		s.byEcosystem[eco] = make(map[string]struct{})
	}
}

type manifestReader struct {
	match func(name string) bool
	eco   Ecosystem
	read  func(s *Set, data []byte) error
}

var readers = []manifestReader{
	{match: func(n string) bool { return n == "go.mod" }, eco: EcosystemGo, read: readGoMod},
	{match: func(n string) bool { return n == "package.json" }, eco: EcosystemNPM, read: readPackageJSON},
	{match: isRequirementsFile, eco: EcosystemPython, read: readRequirements},
	{match: func(n string) bool { return n == "pyproject.toml" }, eco: EcosystemPython, read: readPyProject},
	{match: func(n string) bool { return n == "Cargo.toml" }, eco: EcosystemCargo, read: readCargo},
}

func isRequirementsFile(name string) bool {
	return strings.HasPrefix(name, "requirements") && strings.HasSuffix(name, ".txt")
}

// Load reads the manifests found directly in root. A missing manifest is not
// an error; a malformed one is.
func Load(root string) (*Set, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read project root: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	set := NewSet()
	for _, name := range names {
		for _, r := range readers {
			if !r.match(name) {
				continue
			}
			data, err := os.ReadFile(filepath.Join(root, name))
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					continue
				}
				return nil, fmt.Errorf("read %s: %w", name, err)
			}
			set.touch(r.eco)
			if err := r.read(set, data); err != nil {
				return nil, fmt.Errorf("parse %s: %w", name, err)
			}
			set.manifests = append(set.manifests, name)
		}
	}
	return set, nil
}
