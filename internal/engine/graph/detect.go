package graph

import (
	"context"
	"sort"
	"strings"
)

// Cycle is one non-trivial strongly connected component.
type Cycle struct {
	// Members of the component, sorted.
	Members []string `json:"members"`
	// Path is the shortest cycle through the smallest member, closed:
	// a -> b -> c -> a is [a b c a].
	Path []string `json:"path"`
	// Edges are the import evidences along Path.
	Edges []Edge `json:"edges"`
}

// Chain renders the path as "a -> b -> a".
func (c Cycle) Chain() string {
	return strings.Join(c.Path, " -> ")
}

// StronglyConnected returns the components with more than one module, each
// sorted, ordered by their smallest member. Iterative Tarjan keeps deep
// graphs off the goroutine stack.
func (g *Graph) StronglyConnected() [][]int {
	n := len(g.nodes)
	index := make([]int, n)
	low := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}

	type frame struct {
		node, next int
	}
	var (
		counter int
		stack   []int
		comps   [][]int
		work    []frame
	)

	for root := 0; root < n; root++ {
		if index[root] >= 0 {
			continue
		}
		work = append(work[:0], frame{node: root})
		index[root], low[root] = counter, counter
		counter++
		stack = append(stack, root)
		onStack[root] = true

		for len(work) > 0 {
			top := &work[len(work)-1]
			v := top.node
			if top.next < len(g.adj[v]) {
				w := g.adj[v][top.next]
				top.next++
				if index[w] < 0 {
					index[w], low[w] = counter, counter
					counter++
					stack = append(stack, w)
					onStack[w] = true
					work = append(work, frame{node: w})
				} else if onStack[w] && index[w] < low[v] {
					low[v] = index[w]
				}
				continue
			}

			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if low[v] < low[parent] {
					low[parent] = low[v]
				}
			}
			if low[v] == index[v] {
				var comp []int
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				if len(comp) > 1 {
					sort.Ints(comp)
					comps = append(comps, comp)
				}
			}
		}
	}

	sort.Slice(comps, func(i, j int) bool { return comps[i][0] < comps[j][0] })
	return comps
}

// Cycles reports one Cycle per non-trivial component. When ctx expires the
// cycles found so far are returned with partial set.
func (g *Graph) Cycles(ctx context.Context) (cycles []Cycle, partial bool) {
	for _, comp := range g.StronglyConnected() {
		if ctx.Err() != nil {
			return cycles, true
		}
		path := g.shortestCycle(comp)
		c := Cycle{
			Members: g.names(comp),
			Path:    g.names(path),
		}
		for i := 0; i+1 < len(path); i++ {
			e, _ := g.Edge(g.nodes[path[i]], g.nodes[path[i+1]])
			c.Edges = append(c.Edges, e)
		}
		cycles = append(cycles, c)
	}
	return cycles, false
}

// shortestCycle runs a BFS from the component's smallest node back to
// itself, staying inside the component. Neighbors are visited in sorted order
// so the result is deterministic.
func (g *Graph) shortestCycle(comp []int) []int {
	start := comp[0]
	inComp := make(map[int]bool, len(comp))
	for _, v := range comp {
		inComp[v] = true
	}

	prev := map[int]int{}
	visited := map[int]bool{}
	queue := []int{start}
	for len(queue) > 0 {
		curr := queue[0]
		queue = queue[1:]
		for _, next := range g.adj[curr] {
			if !inComp[next] {
				continue
			}
			if next == start {
				path := []int{start}
				for node := curr; node != start; node = prev[node] {
					path = append(path, node)
				}
				path = append(path, start)
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = curr
			queue = append(queue, next)
		}
	}
	return []int{start, start}
}
