package taskgraph

import (
	"fmt"

	"github.com/steveyegge/cutover/internal/types"
)

// Path is the result of a critical path computation.
type Path struct {
	TaskIDs      []string // in execution order
	TotalMinutes int
}

// Contains reports whether id lies on the path.
func (p Path) Contains(id string) bool {
	for _, t := range p.TaskIDs {
		if t == id {
			return true
		}
	}
	return false
}

// topoOrder returns live arena indices in a topological order (Kahn's
// algorithm, seeded in arena order). It fails with ErrGraphCorrupt if the
// edge set contains a cycle.
func (g *Graph) topoOrder() ([]int, error) {
	indeg := make([]int, len(g.nodes))
	var queue []int
	for v := range g.nodes {
		if g.nodes[v].removed {
			continue
		}
		indeg[v] = len(g.preds[v])
		if indeg[v] == 0 {
			queue = append(queue, v)
		}
	}
	order := make([]int, 0, len(g.index))
	for len(queue) > 0 {
		u := queue[0]
		queue = queue[1:]
		order = append(order, u)
		for _, e := range g.succs[u] {
			indeg[e.to]--
			if indeg[e.to] == 0 {
				queue = append(queue, e.to)
			}
		}
	}
	if len(order) != len(g.index) {
		return nil, fmt.Errorf("plan %s: %d of %d tasks unordered: %w", g.planID, len(g.index)-len(order), len(g.index), types.ErrGraphCorrupt)
	}
	return order, nil
}

// CriticalPath computes the longest chain by cumulative planned duration:
// finish[v] = duration[v] + max(finish[u]) over predecessors u. Lag is not
// part of the weight. Ties between equal finishes go to the lower arena
// index, so the result is stable for a given insertion order.
func (g *Graph) CriticalPath() (Path, error) {
	order, err := g.topoOrder()
	if err != nil {
		return Path{}, err
	}
	if len(order) == 0 {
		return Path{}, nil
	}

	finish := make([]int, len(g.nodes))
	via := make([]int, len(g.nodes))
	for _, v := range order {
		best := -1
		for _, e := range g.preds[v] {
			u := e.to
			if best == -1 || finish[u] > finish[best] || (finish[u] == finish[best] && u < best) {
				best = u
			}
		}
		via[v] = best
		finish[v] = g.nodes[v].duration
		if best != -1 {
			finish[v] += finish[best]
		}
	}

	end := -1
	for _, v := range order {
		if end == -1 || finish[v] > finish[end] || (finish[v] == finish[end] && v < end) {
			end = v
		}
	}

	var chain []string
	for v := end; v != -1; v = via[v] {
		chain = append(chain, g.nodes[v].id)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return Path{TaskIDs: chain, TotalMinutes: finish[end]}, nil
}

// CriticalFlags maps every task id to whether it lies on the critical path.
func (g *Graph) CriticalFlags() (map[string]bool, Path, error) {
	path, err := g.CriticalPath()
	if err != nil {
		return nil, Path{}, err
	}
	flags := make(map[string]bool, len(g.index))
	for id := range g.index {
		flags[id] = false
	}
	for _, id := range path.TaskIDs {
		flags[id] = true
	}
	return flags, path, nil
}

// Layers groups tasks by the length of their longest predecessor chain,
// counted in edges. Layer 0 holds tasks with no predecessors. Tasks within
// a layer keep arena order.
func (g *Graph) Layers() ([][]string, error) {
	order, err := g.topoOrder()
	if err != nil {
		return nil, err
	}
	depth := make([]int, len(g.nodes))
	maxDepth := 0
	for _, v := range order {
		for _, e := range g.preds[v] {
			if depth[e.to]+1 > depth[v] {
				depth[v] = depth[e.to] + 1
			}
		}
		if depth[v] > maxDepth {
			maxDepth = depth[v]
		}
	}
	if len(order) == 0 {
		return nil, nil
	}
	layers := make([][]string, maxDepth+1)
	for v := range g.nodes {
		if g.nodes[v].removed {
			continue
		}
		layers[depth[v]] = append(layers[depth[v]], g.nodes[v].id)
	}
	return layers, nil
}
