// Package graph builds the inter-module dependency graph of a run and
// evaluates cycle and layering constraints over it.
package graph

import (
	"sort"
)

// Edge is one import relation between two internal modules, with the first
// import statement that produced it as evidence.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	File   string `json:"file"`
	Line   int    `json:"line"`
	Import string `json:"import"`
}

func edgeLess(a, b Edge) bool {
	if a.File != b.File {
		return a.File < b.File
	}
	if a.Line != b.Line {
		return a.Line < b.Line
	}
	return a.Import < b.Import
}

// Builder accumulates modules and edges. It is not safe for concurrent use;
// the router feeds it from the single reduce step.
type Builder struct {
	nodes map[string]struct{}
	edges map[[2]string]Edge
}

func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]struct{}),
		edges: make(map[[2]string]Edge),
	}
}

func (b *Builder) AddModule(mod string) {
	b.nodes[mod] = struct{}{}
}

// AddEdge records e, keeping the lowest (file, line) evidence per module
// pair. Self-imports only register the module.
func (b *Builder) AddEdge(e Edge) {
	b.AddModule(e.From)
	b.AddModule(e.To)
	if e.From == e.To {
		return
	}
	key := [2]string{e.From, e.To}
	if prev, ok := b.edges[key]; !ok || edgeLess(e, prev) {
		b.edges[key] = e
	}
}

// Build freezes the builder into a read-only graph.
func (b *Builder) Build() *Graph {
	nodes := make([]string, 0, len(b.nodes))
	for n := range b.nodes {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	g := &Graph{
		nodes: nodes,
		index: make(map[string]int, len(nodes)),
		adj:   make([][]int, len(nodes)),
		radj:  make([][]int, len(nodes)),
		edges: make(map[[2]string]Edge, len(b.edges)),
	}
	for i, n := range nodes {
		g.index[n] = i
	}
	for key, e := range b.edges {
		from, to := g.index[key[0]], g.index[key[1]]
		g.adj[from] = append(g.adj[from], to)
		g.radj[to] = append(g.radj[to], from)
		g.edges[key] = e
	}
	for i := range g.adj {
		sort.Ints(g.adj[i])
		sort.Ints(g.radj[i])
	}
	return g
}

// Graph is immutable and safe for concurrent reads. Node uniqueness per
// module path is guaranteed by construction.
type Graph struct {
	nodes []string
	index map[string]int
	adj   [][]int
	radj  [][]int
	edges map[[2]string]Edge
}

func (g *Graph) Nodes() []string {
	return append([]string(nil), g.nodes...)
}

func (g *Graph) NodeCount() int { return len(g.nodes) }
func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) HasModule(mod string) bool {
	_, ok := g.index[mod]
	return ok
}

// Edge returns the evidence for from -> to.
func (g *Graph) Edge(from, to string) (Edge, bool) {
	e, ok := g.edges[[2]string{from, to}]
	return e, ok
}

// Edges returns every edge ordered by (from, to).
func (g *Graph) Edges() []Edge {
	out := make([]Edge, 0, len(g.edges))
	for from := range g.adj {
		for _, to := range g.adj[from] {
			out = append(out, g.edges[[2]string{g.nodes[from], g.nodes[to]}])
		}
	}
	return out
}

// Imports returns the modules mod depends on, sorted.
func (g *Graph) Imports(mod string) []string {
	i, ok := g.index[mod]
	if !ok {
		return nil
	}
	return g.names(g.adj[i])
}

// ImportedBy returns the modules that depend on mod, sorted.
func (g *Graph) ImportedBy(mod string) []string {
	i, ok := g.index[mod]
	if !ok {
		return nil
	}
	return g.names(g.radj[i])
}

func (g *Graph) names(ids []int) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = g.nodes[id]
	}
	return out
}

// ModuleMetrics summarizes one module's coupling.
type ModuleMetrics struct {
	Module string `json:"module"`
	FanIn  int    `json:"fan_in"`
	FanOut int    `json:"fan_out"`
}

// TopFanIn returns the n most depended-on modules.
func (g *Graph) TopFanIn(n int) []ModuleMetrics {
	out := make([]ModuleMetrics, 0, len(g.nodes))
	for i, mod := range g.nodes {
		if len(g.radj[i]) == 0 {
			continue
		}
		out = append(out, ModuleMetrics{Module: mod, FanIn: len(g.radj[i]), FanOut: len(g.adj[i])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FanIn != out[j].FanIn {
			return out[i].FanIn > out[j].FanIn
		}
		return out[i].Module < out[j].Module
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
