// Package resolver assigns module identities to files and resolves raw import
// paths to internal modules or external packages.
package resolver

import (
	"path"
	"strings"

	"archguard/internal/shared/util"
)

// TargetKind classifies what an import refers to.
type TargetKind uint8

const (
	TargetUnknown TargetKind = iota
	TargetInternal
	TargetExternal
	TargetStdlib
)

func (k TargetKind) String() string {
	switch k {
	case TargetInternal:
		return "internal"
	case TargetExternal:
		return "external"
	case TargetStdlib:
		return "stdlib"
	default:
		return "unknown"
	}
}

// Target is the resolution of one import path.
type Target struct {
	Kind TargetKind
	// Module is the internal module identity for TargetInternal.
	Module string
	// Package is the external package name for TargetExternal and TargetStdlib.
	Package string
}

// Resolver is read-only after construction and safe for concurrent use.
type Resolver struct {
	goModule string
	modules  map[string]struct{}
	files    map[string]struct{} // rel paths
	stems    map[string]struct{} // rel paths without extension
}

// New builds a resolver over the relative slash paths of a run. goModule is
// the go.mod module path of the root, or empty.
func New(relPaths []string, goModule string) *Resolver {
	r := &Resolver{
		goModule: goModule,
		modules:  make(map[string]struct{}),
		files:    make(map[string]struct{}, len(relPaths)),
		stems:    make(map[string]struct{}, len(relPaths)),
	}
	for _, rel := range relPaths {
		r.files[rel] = struct{}{}
		r.stems[strings.TrimSuffix(rel, path.Ext(rel))] = struct{}{}
		for dir := util.ModuleDir(rel); ; dir = path.Dir(dir) {
			r.modules[dir] = struct{}{}
			if dir == "." {
				break
			}
		}
	}
	return r
}

// ModuleOf returns the module identity of a file.
func ModuleOf(relPath string) string {
	return util.ModuleDir(relPath)
}

// HasModule reports whether mod is a directory containing analysed files.
func (r *Resolver) HasModule(mod string) bool {
	_, ok := r.modules[mod]
	return ok
}

// Resolve maps one raw import of fromRel to a target.
func (r *Resolver) Resolve(language, fromRel, raw string) Target {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}
	}
	from := ModuleOf(fromRel)
	switch language {
	case "go":
		return r.resolveGo(raw)
	case "python":
		return r.resolvePython(from, raw)
	case "javascript", "typescript", "tsx", "css":
		return r.resolveRelative(language, from, raw)
	case "java":
		return r.resolveJava(raw)
	case "rust":
		return r.resolveRust(fromRel, raw)
	}
	return Target{Kind: TargetExternal, Package: raw}
}

func (r *Resolver) resolveGo(raw string) Target {
	if r.goModule != "" {
		if raw == r.goModule {
			return internal(".")
		}
		if rest, ok := strings.CutPrefix(raw, r.goModule+"/"); ok {
			return internal(rest)
		}
	}
	first, _, _ := strings.Cut(raw, "/")
	if !strings.Contains(first, ".") {
		return Target{Kind: TargetStdlib, Package: raw}
	}
	return Target{Kind: TargetExternal, Package: raw}
}

func (r *Resolver) resolvePython(from, raw string) Target {
	if strings.HasPrefix(raw, ".") {
		dots := len(raw) - len(strings.TrimLeft(raw, "."))
		base := from
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		rest := strings.ReplaceAll(strings.TrimLeft(raw, "."), ".", "/")
		if rest == "" {
			return internal(base)
		}
		if mod, ok := r.lookup(path.Join(base, rest)); ok {
			return internal(mod)
		}
		return internal(base)
	}

	slashed := strings.ReplaceAll(raw, ".", "/")
	// Longest prefix that exists in the tree, rooted at "." or any source dir.
	parts := strings.Split(slashed, "/")
	for i := len(parts); i > 0; i-- {
		candidate := strings.Join(parts[:i], "/")
		if mod, ok := r.lookup(candidate); ok {
			return internal(mod)
		}
		if mod, ok := r.lookup(path.Join("src", candidate)); ok {
			return internal(mod)
		}
	}
	top := parts[0]
	if pythonStdlib[top] {
		return Target{Kind: TargetStdlib, Package: top}
	}
	return Target{Kind: TargetExternal, Package: top}
}

func (r *Resolver) resolveRelative(language, from, raw string) Target {
	spec := strings.TrimPrefix(raw, "node:")
	if strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == ".." {
		target := path.Join(from, spec)
		if escapesRoot(target) {
			return Target{Kind: TargetExternal, Package: raw}
		}
		if mod, ok := r.lookup(target); ok {
			return internal(mod)
		}
		// Unresolved relative paths still point inside the tree.
		return internal(path.Dir(target))
	}
	if strings.HasPrefix(spec, "/") {
		target := path.Clean(strings.TrimPrefix(spec, "/"))
		if escapesRoot(target) {
			return Target{Kind: TargetExternal, Package: raw}
		}
		return internal(path.Dir(target))
	}
	if language == "css" {
		if strings.Contains(spec, "://") {
			return Target{Kind: TargetExternal, Package: spec}
		}
		if mod, ok := r.lookup(path.Join(from, spec)); ok {
			return internal(mod)
		}
		return Target{Kind: TargetExternal, Package: spec}
	}
	pkg := npmPackageName(spec)
	if strings.HasPrefix(raw, "node:") || nodeBuiltins[pkg] {
		return Target{Kind: TargetStdlib, Package: pkg}
	}
	return Target{Kind: TargetExternal, Package: pkg}
}

// escapesRoot reports whether a cleaned relative path leaves the project.
func escapesRoot(target string) bool {
	return target == ".." || strings.HasPrefix(target, "../")
}

// npmPackageName strips subpaths: lodash/fp -> lodash, @scope/pkg/x -> @scope/pkg.
func npmPackageName(spec string) string {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) > 1 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func (r *Resolver) resolveJava(raw string) Target {
	raw = strings.TrimPrefix(raw, "static ")
	raw = strings.TrimSuffix(raw, ".*")
	parts := strings.Split(raw, ".")
	if len(parts) > 0 && (parts[0] == "java" || parts[0] == "javax" || parts[0] == "jdk") {
		return Target{Kind: TargetStdlib, Package: raw}
	}
	// com.acme.domain.User -> a module ending in com/acme/domain or com/acme/domain/User.
	for i := len(parts); i > 0; i-- {
		suffix := strings.Join(parts[:i], "/")
		if mod, ok := r.moduleWithSuffix(suffix); ok {
			return internal(mod)
		}
	}
	return Target{Kind: TargetExternal, Package: raw}
}

func (r *Resolver) moduleWithSuffix(suffix string) (string, bool) {
	if _, ok := r.modules[suffix]; ok {
		return suffix, true
	}
	best := ""
	for mod := range r.modules {
		if strings.HasSuffix(mod, "/"+suffix) && (best == "" || len(mod) < len(best) || (len(mod) == len(best) && mod < best)) {
			best = mod
		}
	}
	return best, best != ""
}

func (r *Resolver) resolveRust(fromRel, raw string) Target {
	segments := strings.Split(raw, "::")
	head := segments[0]
	from := ModuleOf(fromRel)
	var base string
	switch head {
	case "crate":
		base = rustCrateRoot(from)
	case "self":
		base = from
	case "super":
		base = from
		if name := path.Base(fromRel); name == "mod.rs" {
			base = path.Dir(from)
		}
		// super::super:: walks further up.
		for len(segments) > 1 && segments[1] == "super" {
			base = path.Dir(base)
			segments = segments[1:]
		}
	default:
		if rustStdlib[head] {
			return Target{Kind: TargetStdlib, Package: head}
		}
		return Target{Kind: TargetExternal, Package: head}
	}

	rest := segments[1:]
	for i := len(rest); i > 0; i-- {
		if mod, ok := r.lookup(path.Join(base, strings.Join(rest[:i], "/"))); ok {
			return internal(mod)
		}
	}
	return internal(base)
}

// rustCrateRoot is the closest enclosing "src" directory, or the root.
func rustCrateRoot(mod string) string {
	for dir := mod; dir != "."; dir = path.Dir(dir) {
		if path.Base(dir) == "src" {
			return dir
		}
	}
	return "."
}

// lookup resolves a slash path without extension to the module containing
// it: a directory is its own module, a file belongs to its directory.
func (r *Resolver) lookup(target string) (string, bool) {
	target = path.Clean(target)
	if _, ok := r.modules[target]; ok {
		return target, true
	}
	if _, ok := r.stems[target]; ok {
		return path.Dir(target), true
	}
	if _, ok := r.files[target]; ok {
		return util.ModuleDir(target), true
	}
	return "", false
}

func internal(mod string) Target {
	if mod == "" {
		mod = "."
	}
	return Target{Kind: TargetInternal, Module: mod}
}
