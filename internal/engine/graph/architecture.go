package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"archguard/internal/shared/util"

	"github.com/gobwas/glob"
)

// Layer assigns modules to an architectural layer by path prefix or glob.
type Layer struct {
	Name  string
	Paths []string
}

// AllowRule lists the layers that From may depend on.
type AllowRule struct {
	Name  string
	From  string
	Allow []string
}

// Architecture is the layering configuration of a project.
type Architecture struct {
	Layers []Layer
	// Order lists layers inner to outer. A layer may depend on itself and
	// on layers listed before it.
	Order []string
	// Rules override Order for their From layer.
	Rules []AllowRule
	// CompositionRoot is the one module exempt from layer checks. It is
	// matched exactly, never as a pattern.
	CompositionRoot string
}

// LayerViolation is an edge that crosses the permitted direction.
type LayerViolation struct {
	Rule      string   `json:"rule"`
	FromLayer string   `json:"from_layer"`
	ToLayer   string   `json:"to_layer"`
	Edge      Edge     `json:"edge"`
	Permitted []string `json:"permitted"`
}

func (v LayerViolation) String() string {
	permitted := "nothing"
	if len(v.Permitted) > 0 {
		permitted = strings.Join(v.Permitted, ", ")
	}
	return fmt.Sprintf("%s (%s) imports %s (%s); %s may depend on: %s",
		v.Edge.From, v.FromLayer, v.Edge.To, v.ToLayer, v.FromLayer, permitted)
}

// LayerPolicy is the compiled form of Architecture.
type LayerPolicy struct {
	layers []layerMatcher
	order  map[string]int
	names  []string
	rules  map[string]ruleSet
	root   string
}

type layerMatcher struct {
	name     string
	patterns []compiledPattern
}

type compiledPattern struct {
	raw        string
	isWildcard bool
	glob       glob.Glob
}

type ruleSet struct {
	name  string
	allow map[string]bool
}

const globMeta = "*?[]{}!"

// NewLayerPolicy compiles the configuration. Unknown layer names in Order or
// Rules, bad globs, and a pattern-like composition root are errors.
func NewLayerPolicy(a Architecture) (*LayerPolicy, error) {
	p := &LayerPolicy{
		order: make(map[string]int, len(a.Order)),
		rules: make(map[string]ruleSet),
		root:  normalizeModule(a.CompositionRoot),
	}
	if strings.ContainsAny(a.CompositionRoot, globMeta) {
		return nil, fmt.Errorf("composition root %q must be an exact module, not a pattern", a.CompositionRoot)
	}

	known := make(map[string]bool, len(a.Layers))
	for _, layer := range a.Layers {
		if layer.Name == "" {
			return nil, fmt.Errorf("layer without name")
		}
		if known[layer.Name] {
			return nil, fmt.Errorf("duplicate layer %q", layer.Name)
		}
		known[layer.Name] = true
		p.names = append(p.names, layer.Name)

		matcher := layerMatcher{name: layer.Name}
		for _, raw := range layer.Paths {
			pattern := util.NormalizePatternPath(raw)
			cp := compiledPattern{
				raw:        pattern,
				isWildcard: strings.ContainsAny(pattern, "*?[]{}"),
			}
			if cp.isWildcard {
				g, err := glob.Compile(pattern, '/')
				if err != nil {
					return nil, fmt.Errorf("layer %q: invalid pattern %q: %w", layer.Name, raw, err)
				}
				cp.glob = g
			}
			matcher.patterns = append(matcher.patterns, cp)
		}
		p.layers = append(p.layers, matcher)
	}

	for i, name := range a.Order {
		if !known[name] {
			return nil, fmt.Errorf("order references unknown layer %q", name)
		}
		if _, dup := p.order[name]; dup {
			return nil, fmt.Errorf("order lists layer %q twice", name)
		}
		p.order[name] = i
	}

	for _, rule := range a.Rules {
		if !known[rule.From] {
			return nil, fmt.Errorf("rule %q references unknown layer %q", rule.Name, rule.From)
		}
		allow := map[string]bool{rule.From: true}
		for _, target := range rule.Allow {
			if !known[target] {
				return nil, fmt.Errorf("rule %q allows unknown layer %q", rule.Name, target)
			}
			allow[target] = true
		}
		name := rule.Name
		if name == "" {
			name = rule.From
		}
		p.rules[rule.From] = ruleSet{name: name, allow: allow}
	}
	return p, nil
}

// Enabled reports whether any permission can be evaluated.
func (p *LayerPolicy) Enabled() bool {
	return p != nil && len(p.layers) > 0 && (len(p.order) > 0 || len(p.rules) > 0)
}

func (p *LayerPolicy) CompositionRoot() string { return p.root }

// LayerOf returns the layer whose longest pattern matches mod, or "".
func (p *LayerPolicy) LayerOf(mod string) string {
	if p == nil {
		return ""
	}
	mod = normalizeModule(mod)
	bestLayer, bestScore := "", 0
	for _, layer := range p.layers {
		for _, pattern := range layer.patterns {
			if !pattern.match(mod) {
				continue
			}
			score := len(pattern.raw)
			if score > bestScore || (score == bestScore && layer.name < bestLayer) {
				bestLayer, bestScore = layer.name, score
			}
		}
	}
	return bestLayer
}

func (cp compiledPattern) match(mod string) bool {
	if cp.isWildcard {
		return cp.glob != nil && cp.glob.Match(mod)
	}
	return util.HasPathPrefix(mod, cp.raw)
}

// Allowed reports whether fromLayer may depend on toLayer and which rule
// decided it.
func (p *LayerPolicy) Allowed(fromLayer, toLayer string) (ok bool, rule string) {
	if fromLayer == "" || toLayer == "" || fromLayer == toLayer {
		return true, ""
	}
	if rs, found := p.rules[fromLayer]; found {
		return rs.allow[toLayer], rs.name
	}
	fi, fok := p.order[fromLayer]
	ti, tok := p.order[toLayer]
	if !fok || !tok {
		return true, ""
	}
	return ti <= fi, "layer-order"
}

// Permitted lists the layers fromLayer may depend on, sorted.
func (p *LayerPolicy) Permitted(fromLayer string) []string {
	if rs, ok := p.rules[fromLayer]; ok {
		return util.SortedStringKeys(rs.allow)
	}
	fi, ok := p.order[fromLayer]
	if !ok {
		return nil
	}
	var out []string
	for name, i := range p.order {
		if i <= fi {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Violations checks every edge of g. Edges leaving the composition root and
// edges touching unassigned modules are skipped.
func (p *LayerPolicy) Violations(ctx context.Context, g *Graph) (out []LayerViolation, partial bool) {
	if !p.Enabled() {
		return nil, false
	}
	layerOf := make(map[string]string, g.NodeCount())
	for _, mod := range g.Nodes() {
		layerOf[mod] = p.LayerOf(mod)
	}

	for i, e := range g.Edges() {
		if i%256 == 0 && ctx.Err() != nil {
			return out, true
		}
		if p.root != "" && e.From == p.root {
			continue
		}
		fromLayer, toLayer := layerOf[e.From], layerOf[e.To]
		ok, rule := p.Allowed(fromLayer, toLayer)
		if ok {
			continue
		}
		out = append(out, LayerViolation{
			Rule:      rule,
			FromLayer: fromLayer,
			ToLayer:   toLayer,
			Edge:      e,
			Permitted: p.Permitted(fromLayer),
		})
	}
	return out, false
}

// normalizeModule cleans a module identity, keeping "." for the root.
func normalizeModule(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if n := util.NormalizePatternPath(s); n != "" {
		return n
	}
	return "."
}
