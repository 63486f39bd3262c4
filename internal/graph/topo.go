package graph

import (
	"sort"

	"github.com/emberfall/reckoner/internal/model"
)

// TopoOrder returns every node in dependency order: a node appears after
// everything it reads. Ties are broken by priority ascending, then by
// creation sequence, then by key, so the order is total and stable.
//
// Build has already rejected cyclic graphs, so the order always covers
// every node.
func (g *Graph) TopoOrder() []Node {
	n := len(g.nodes)
	pending := make([]int, n) // unprocessed read count per node
	for i := range g.reads {
		pending[i] = len(g.reads[i])
	}

	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]Node, 0, n)
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool {
			return g.less(ready[a], ready[b])
		})
		i := ready[0]
		ready = ready[1:]
		out = append(out, g.nodes[i])

		for _, j := range g.readBy[i] {
			pending[j]--
			if pending[j] == 0 {
				ready = append(ready, j)
			}
		}
	}
	return out
}

func (g *Graph) less(a, b int) bool {
	na, nb := g.nodes[a], g.nodes[b]
	if na.Priority != nb.Priority {
		return na.Priority < nb.Priority
	}
	if na.CreatedSeq != nb.CreatedSeq {
		return na.CreatedSeq < nb.CreatedSeq
	}
	return na.Key < nb.Key
}

// EffectOrder orders a subset of effect nodes for dependency-aware
// execution. Effect A precedes effect B when B overwrites a value that is
// downstream of something A writes: applying B first would be clobbered by
// the recomputation A triggers.
//
// A cyclic subset fails before anything would be applied.
func (g *Graph) EffectOrder(effectIDs []string) ([]Node, error) {
	var idx []int
	for _, id := range effectIDs {
		if i, ok := g.index[EffectNodeKey(id)]; ok {
			idx = append(idx, i)
		}
	}
	n := len(idx)
	if n == 0 {
		return nil, nil
	}

	// Reverse-read closure of each effect's written nodes.
	closures := make([]map[int]bool, n)
	for k, i := range idx {
		closures[k] = g.downstream(g.writes[i])
	}

	// edges[a][b]: effect a precedes effect b.
	edges := make([][]bool, n)
	pending := make([]int, n)
	for a := range edges {
		edges[a] = make([]bool, n)
		for b := range edges[a] {
			if a == b {
				continue
			}
			for _, w := range g.writes[idx[b]] {
				if closures[a][w] {
					edges[a][b] = true
					pending[b]++
					break
				}
			}
		}
	}

	var ready []int
	for k := 0; k < n; k++ {
		if pending[k] == 0 {
			ready = append(ready, k)
		}
	}

	out := make([]Node, 0, n)
	done := 0
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool {
			return g.less(idx[ready[a]], idx[ready[b]])
		})
		k := ready[0]
		ready = ready[1:]
		out = append(out, g.nodes[idx[k]])
		done++

		for b := 0; b < n; b++ {
			if edges[k][b] {
				pending[b]--
				if pending[b] == 0 {
					ready = append(ready, b)
				}
			}
		}
	}

	if done < n {
		var stuck []string
		for k := 0; k < n; k++ {
			if pending[k] > 0 {
				stuck = append(stuck, g.nodes[idx[k]].Name)
			}
		}
		sort.Strings(stuck)
		return nil, model.NewCircularDependency(stuck)
	}
	return out, nil
}

// downstream returns the reverse-read closure of the start indices,
// start nodes included.
func (g *Graph) downstream(start []int) map[int]bool {
	seen := map[int]bool{}
	queue := append([]int(nil), start...)
	for _, i := range queue {
		seen[i] = true
	}
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		for _, j := range g.readBy[i] {
			if !seen[j] {
				seen[j] = true
				queue = append(queue, j)
			}
		}
	}
	return seen
}
