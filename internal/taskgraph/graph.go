// Package taskgraph holds the runbook dependency graph of a single plan.
//
// Tasks live in an arena and are addressed by their arena index; edges are
// stored as integer adjacency lists. Edge insertion rejects anything that
// would close a cycle, so a graph built only through AddDependency is
// always acyclic. Graphs loaded from storage via Load trust the stored edge
// set and report ErrGraphCorrupt from CriticalPath if that trust is broken.
package taskgraph

import (
	"fmt"

	"github.com/steveyegge/cutover/internal/types"
)

type node struct {
	id       string
	status   types.TaskStatus
	duration int
	removed  bool
}

type edge struct {
	to  int
	lag int
}

// Graph is the dependency graph for one plan. It is not safe for
// concurrent use; callers build one per unit of work.
type Graph struct {
	planID string
	nodes  []node
	index  map[string]int
	preds  [][]edge // preds[v]: edges u -> v, stored as (u, lag)
	succs  [][]edge // succs[u]: edges u -> v, stored as (v, lag)
	edges  int
}

// New returns an empty graph for planID.
func New(planID string) *Graph {
	return &Graph{planID: planID, index: make(map[string]int)}
}

// Load builds a graph from stored tasks and edges without re-checking
// acyclicity. Edges that reference unknown tasks are rejected.
func Load(planID string, tasks []*types.Task, deps []*types.Dependency) (*Graph, error) {
	g := New(planID)
	for _, t := range tasks {
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
	}
	for _, d := range deps {
		u, ok := g.index[d.PredecessorID]
		if !ok {
			return nil, fmt.Errorf("dependency %s -> %s: %w", d.PredecessorID, d.SuccessorID, types.NotFound("task", d.PredecessorID))
		}
		v, ok := g.index[d.SuccessorID]
		if !ok {
			return nil, fmt.Errorf("dependency %s -> %s: %w", d.PredecessorID, d.SuccessorID, types.NotFound("task", d.SuccessorID))
		}
		if g.hasEdge(u, v) {
			continue
		}
		g.link(u, v, d.LagMinutes)
	}
	return g, nil
}

// PlanID returns the plan this graph belongs to.
func (g *Graph) PlanID() string { return g.planID }

// Len returns the number of live tasks.
func (g *Graph) Len() int { return len(g.index) }

// EdgeCount returns the number of dependency edges.
func (g *Graph) EdgeCount() int { return g.edges }

// AddTask registers a task in the arena.
func (g *Graph) AddTask(t *types.Task) error {
	if t.PlanID != "" && g.planID != "" && t.PlanID != g.planID {
		return types.Invalid("plan_id", "task %s belongs to plan %s, not %s", t.ID, t.PlanID, g.planID)
	}
	if _, exists := g.index[t.ID]; exists {
		return &types.DuplicateError{Entity: "task", Key: t.ID}
	}
	g.index[t.ID] = len(g.nodes)
	g.nodes = append(g.nodes, node{id: t.ID, status: t.Status, duration: t.PlannedDurationMin})
	g.preds = append(g.preds, nil)
	g.succs = append(g.succs, nil)
	return nil
}

// RemoveTask drops a task and every edge touching it. The arena slot is
// tombstoned so indices of other tasks stay stable.
func (g *Graph) RemoveTask(id string) error {
	v, ok := g.index[id]
	if !ok {
		return types.NotFound("task", id)
	}
	for _, e := range g.preds[v] {
		g.succs[e.to] = dropEdge(g.succs[e.to], v)
		g.edges--
	}
	for _, e := range g.succs[v] {
		g.preds[e.to] = dropEdge(g.preds[e.to], v)
		g.edges--
	}
	g.preds[v], g.succs[v] = nil, nil
	g.nodes[v].removed = true
	delete(g.index, id)
	return nil
}

// SetStatus updates the cached status of a task.
func (g *Graph) SetStatus(id string, status types.TaskStatus) error {
	v, ok := g.index[id]
	if !ok {
		return types.NotFound("task", id)
	}
	g.nodes[v].status = status
	return nil
}

// SetDuration updates the planned duration of a task.
func (g *Graph) SetDuration(id string, minutes int) error {
	if minutes < 0 {
		return types.Invalid("planned_duration_min", "cannot be negative (got %d)", minutes)
	}
	v, ok := g.index[id]
	if !ok {
		return types.NotFound("task", id)
	}
	g.nodes[v].duration = minutes
	return nil
}

// CheckDependency reports whether pred -> succ may be inserted. It returns
// a CycleDetectedError when pred is already reachable from succ.
func (g *Graph) CheckDependency(predID, succID string, lag int) error {
	if predID == succID {
		return types.Invalid("dependency", "task %s cannot depend on itself", predID)
	}
	if lag < 0 {
		return types.Invalid("lag_minutes", "cannot be negative (got %d)", lag)
	}
	u, ok := g.index[predID]
	if !ok {
		return types.NotFound("task", predID)
	}
	v, ok := g.index[succID]
	if !ok {
		return types.NotFound("task", succID)
	}
	if g.hasEdge(u, v) {
		return &types.DuplicateError{Entity: "dependency", Key: predID + " -> " + succID}
	}
	if path := g.pathBetween(v, u); path != nil {
		ids := make([]string, 0, len(path)+1)
		for _, i := range path {
			ids = append(ids, g.nodes[i].id)
		}
		ids = append(ids, succID)
		return &types.CycleDetectedError{PredecessorID: predID, SuccessorID: succID, Path: ids}
	}
	return nil
}

// AddDependency inserts pred -> succ after CheckDependency succeeds.
func (g *Graph) AddDependency(predID, succID string, lag int) error {
	if err := g.CheckDependency(predID, succID, lag); err != nil {
		return err
	}
	g.link(g.index[predID], g.index[succID], lag)
	return nil
}

// RemoveDependency deletes pred -> succ.
func (g *Graph) RemoveDependency(predID, succID string) error {
	u, ok := g.index[predID]
	if !ok {
		return types.NotFound("task", predID)
	}
	v, ok := g.index[succID]
	if !ok {
		return types.NotFound("task", succID)
	}
	if !g.hasEdge(u, v) {
		return types.NotFound("dependency", predID+" -> "+succID)
	}
	g.succs[u] = dropEdge(g.succs[u], v)
	g.preds[v] = dropEdge(g.preds[v], u)
	g.edges--
	return nil
}

// Predecessors returns the direct predecessors of a task in insertion order.
func (g *Graph) Predecessors(id string) []string {
	v, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.preds[v]))
	for _, e := range g.preds[v] {
		out = append(out, g.nodes[e.to].id)
	}
	return out
}

// Successors returns the direct successors of a task in insertion order.
func (g *Graph) Successors(id string) []string {
	u, ok := g.index[id]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.succs[u]))
	for _, e := range g.succs[u] {
		out = append(out, g.nodes[e.to].id)
	}
	return out
}

// Reachable reports whether to can be reached from from by following edges.
func (g *Graph) Reachable(from, to string) bool {
	u, ok := g.index[from]
	if !ok {
		return false
	}
	v, ok := g.index[to]
	if !ok {
		return false
	}
	return g.pathBetween(u, v) != nil
}

func (g *Graph) link(u, v, lag int) {
	g.succs[u] = append(g.succs[u], edge{to: v, lag: lag})
	g.preds[v] = append(g.preds[v], edge{to: u, lag: lag})
	g.edges++
}

func (g *Graph) hasEdge(u, v int) bool {
	for _, e := range g.succs[u] {
		if e.to == v {
			return true
		}
	}
	return false
}

// pathBetween runs an iterative DFS from src and returns the node sequence
// ending at dst, or nil when dst is unreachable.
func (g *Graph) pathBetween(src, dst int) []int {
	if src == dst {
		return []int{src}
	}
	parent := make(map[int]int, len(g.index))
	parent[src] = -1
	stack := []int{src}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.succs[u] {
			if _, seen := parent[e.to]; seen {
				continue
			}
			parent[e.to] = u
			if e.to == dst {
				var path []int
				for n := dst; n != -1; n = parent[n] {
					path = append(path, n)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			stack = append(stack, e.to)
		}
	}
	return nil
}

func dropEdge(edges []edge, to int) []edge {
	for i, e := range edges {
		if e.to == to {
			return append(edges[:i], edges[i+1:]...)
		}
	}
	return edges
}
