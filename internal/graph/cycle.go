package graph

import (
	"sort"

	"github.com/emberfall/reckoner/internal/model"
)

func newCycleError(g *Graph, scc []int) error {
	return model.NewCircularDependency(g.cyclePath(scc))
}

// checkCycles runs Tarjan's strongly-connected-components algorithm over
// the read edges. Any SCC with more than one node, or a self-loop, is a
// CIRCULAR_DEPENDENCY hard failure naming the cycle path.
//
// The reported path is deterministic regardless of insertion order: the
// offending SCC is the one containing the lexicographically smallest node
// name, and the path starts from that node.
func (g *Graph) checkCycles() error {
	sccs := g.tarjan()

	var cyclic [][]int
	for _, scc := range sccs {
		if len(scc) > 1 || g.selfLoop(scc[0]) {
			cyclic = append(cyclic, scc)
		}
	}
	if len(cyclic) == 0 {
		return nil
	}

	// Pick the SCC with the smallest member name so the error is stable.
	best := cyclic[0]
	for _, scc := range cyclic[1:] {
		if g.smallestName(scc) < g.smallestName(best) {
			best = scc
		}
	}
	return newCycleError(g, best)
}

func (g *Graph) selfLoop(i int) bool {
	for _, j := range g.reads[i] {
		if j == i {
			return true
		}
	}
	return false
}

func (g *Graph) smallestName(scc []int) string {
	min := g.nodes[scc[0]].Name
	for _, i := range scc[1:] {
		if g.nodes[i].Name < min {
			min = g.nodes[i].Name
		}
	}
	return min
}

func (g *Graph) tarjan() [][]int {
	const unvisited = -1

	n := len(g.nodes)
	indices := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range indices {
		indices[i] = unvisited
	}

	var (
		index int
		stack []int
		sccs  [][]int
	)

	var strongConnect func(int)
	strongConnect = func(v int) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.reads[v] {
			if indices[w] == unvisited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for v := 0; v < n; v++ {
		if indices[v] == unvisited {
			strongConnect(v)
		}
	}
	return sccs
}

// cyclePath walks read edges within the SCC, starting from its smallest
// member, until the walk returns to the start. The result names each node
// once plus the closing repetition of the start node.
func (g *Graph) cyclePath(scc []int) []string {
	members := make(map[int]bool, len(scc))
	for _, i := range scc {
		members[i] = true
	}

	start := scc[0]
	for _, i := range scc[1:] {
		if g.nodes[i].Name < g.nodes[start].Name {
			start = i
		}
	}

	path := []string{g.nodes[start].Name}
	visited := map[int]bool{}
	cur := start
	for {
		visited[cur] = true
		next := -1
		// Deterministic successor choice: smallest name first.
		candidates := make([]int, 0, len(g.reads[cur]))
		for _, j := range g.reads[cur] {
			if members[j] && (!visited[j] || j == start) {
				candidates = append(candidates, j)
			}
		}
		sort.Slice(candidates, func(a, b int) bool {
			return g.nodes[candidates[a]].Name < g.nodes[candidates[b]].Name
		})
		if len(candidates) > 0 {
			next = candidates[0]
		}
		if next < 0 {
			break
		}
		path = append(path, g.nodes[next].Name)
		if next == start {
			break
		}
		cur = next
	}
	return path
}
