package taskgraph

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

func task(id string, dur int, status types.TaskStatus) *types.Task {
	return &types.Task{ID: id, PlanID: "plan-1", PlannedDurationMin: dur, Status: status}
}

func buildGraph(t *testing.T, durations map[string]int, order []string, edges [][2]string) *Graph {
	t.Helper()
	g := New("plan-1")
	for _, id := range order {
		if err := g.AddTask(task(id, durations[id], types.TaskNotStarted)); err != nil {
			t.Fatalf("AddTask(%s): %v", id, err)
		}
	}
	for _, e := range edges {
		if err := g.AddDependency(e[0], e[1], 0); err != nil {
			t.Fatalf("AddDependency(%s, %s): %v", e[0], e[1], err)
		}
	}
	return g
}

func TestAddDependencyRejectsCycle(t *testing.T) {
	g := buildGraph(t, nil, []string{"a", "b", "c"}, [][2]string{{"a", "b"}, {"b", "c"}})

	err := g.AddDependency("c", "a", 0)
	var cycleErr *types.CycleDetectedError
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected CycleDetectedError, got %v", err)
	}
	if !errors.Is(err, types.ErrCycle) {
		t.Errorf("expected errors.Is(err, ErrCycle)")
	}
	want := []string{"a", "b", "c", "a"}
	if fmt.Sprint(cycleErr.Path) != fmt.Sprint(want) {
		t.Errorf("cycle path = %v, want %v", cycleErr.Path, want)
	}
	if g.EdgeCount() != 2 {
		t.Errorf("rejected edge was inserted: %d edges", g.EdgeCount())
	}
}

func TestAddDependencyValidation(t *testing.T) {
	g := buildGraph(t, nil, []string{"a", "b"}, [][2]string{{"a", "b"}})

	tests := []struct {
		name   string
		pred   string
		succ   string
		lag    int
		target error
	}{
		{"self edge", "a", "a", 0, types.ErrValidation},
		{"negative lag", "b", "a", -1, types.ErrValidation},
		{"duplicate", "a", "b", 5, types.ErrDuplicate},
		{"unknown predecessor", "zz", "b", 0, types.ErrNotFound},
		{"unknown successor", "a", "zz", 0, types.ErrNotFound},
		{"two-node cycle", "b", "a", 0, types.ErrCycle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := g.AddDependency(tt.pred, tt.succ, tt.lag)
			if !errors.Is(err, tt.target) {
				t.Errorf("AddDependency(%s, %s) = %v, want %v", tt.pred, tt.succ, err, tt.target)
			}
		})
	}
}

func TestAddTaskRejectsForeignPlan(t *testing.T) {
	g := New("plan-1")
	err := g.AddTask(&types.Task{ID: "x", PlanID: "plan-2"})
	if !errors.Is(err, types.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRemoveDependencyAllowsReverseEdge(t *testing.T) {
	g := buildGraph(t, nil, []string{"a", "b"}, [][2]string{{"a", "b"}})
	if err := g.RemoveDependency("a", "b"); err != nil {
		t.Fatalf("RemoveDependency: %v", err)
	}
	if err := g.AddDependency("b", "a", 0); err != nil {
		t.Fatalf("reverse edge after removal: %v", err)
	}
	if err := g.RemoveDependency("a", "b"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("removing missing edge: got %v, want not found", err)
	}
}

func TestRemoveTaskDropsEdges(t *testing.T) {
	g := buildGraph(t, map[string]int{"a": 10, "b": 20, "c": 30}, []string{"a", "b", "c"},
		[][2]string{{"a", "b"}, {"b", "c"}})
	if err := g.RemoveTask("b"); err != nil {
		t.Fatalf("RemoveTask: %v", err)
	}
	if g.Len() != 2 || g.EdgeCount() != 0 {
		t.Fatalf("after removal: %d tasks, %d edges", g.Len(), g.EdgeCount())
	}
	path, err := g.CriticalPath()
	if err != nil {
		t.Fatalf("CriticalPath: %v", err)
	}
	if path.TotalMinutes != 30 || fmt.Sprint(path.TaskIDs) != "[c]" {
		t.Errorf("path = %+v", path)
	}
}

func TestCriticalPath(t *testing.T) {
	// a(30) -> b(60) -> d(10)
	// a(30) -> c(20) -> d(10)
	// e(45) standalone
	g := buildGraph(t,
		map[string]int{"a": 30, "b": 60, "c": 20, "d": 10, "e": 45},
		[]string{"a", "b", "c", "d", "e"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}})

	flags, path, err := g.CriticalFlags()
	if err != nil {
		t.Fatalf("CriticalFlags: %v", err)
	}
	if path.TotalMinutes != 100 {
		t.Errorf("TotalMinutes = %d, want 100", path.TotalMinutes)
	}
	if got := fmt.Sprint(path.TaskIDs); got != "[a b d]" {
		t.Errorf("TaskIDs = %s, want [a b d]", got)
	}
	for id, want := range map[string]bool{"a": true, "b": true, "c": false, "d": true, "e": false} {
		if flags[id] != want {
			t.Errorf("flags[%s] = %v, want %v", id, flags[id], want)
		}
	}
}

func TestCriticalPathIgnoresLag(t *testing.T) {
	g := New("plan-1")
	for _, tk := range []*types.Task{task("a", 10, ""), task("b", 10, ""), task("c", 25, "")} {
		if err := g.AddTask(tk); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddDependency("a", "b", 120); err != nil {
		t.Fatal(err)
	}
	path, err := g.CriticalPath()
	if err != nil {
		t.Fatal(err)
	}
	if path.TotalMinutes != 25 || fmt.Sprint(path.TaskIDs) != "[c]" {
		t.Errorf("path = %+v, want c alone at 25", path)
	}
}

func TestCriticalPathTieBreaksByInsertionOrder(t *testing.T) {
	g := buildGraph(t, map[string]int{"x": 15, "y": 15}, []string{"x", "y"}, nil)
	path, err := g.CriticalPath()
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(path.TaskIDs) != "[x]" {
		t.Errorf("TaskIDs = %v, want [x]", path.TaskIDs)
	}
}

func TestCriticalPathEmpty(t *testing.T) {
	path, err := New("plan-1").CriticalPath()
	if err != nil {
		t.Fatal(err)
	}
	if path.TotalMinutes != 0 || len(path.TaskIDs) != 0 {
		t.Errorf("empty graph path = %+v", path)
	}
}

func TestCriticalPathCorruptGraph(t *testing.T) {
	tasks := []*types.Task{task("a", 1, ""), task("b", 1, "")}
	deps := []*types.Dependency{
		{PredecessorID: "a", SuccessorID: "b"},
		{PredecessorID: "b", SuccessorID: "a"},
	}
	g, err := Load("plan-1", tasks, deps)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := g.CriticalPath(); !errors.Is(err, types.ErrGraphCorrupt) {
		t.Fatalf("expected ErrGraphCorrupt, got %v", err)
	}
	if types.KindOf(err) == types.KindCycle {
		t.Errorf("corrupt graph must not surface as a user cycle error")
	}
}

func TestLoadRejectsUnknownTask(t *testing.T) {
	_, err := Load("plan-1", []*types.Task{task("a", 1, "")},
		[]*types.Dependency{{PredecessorID: "a", SuccessorID: "ghost"}})
	if !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLayers(t *testing.T) {
	g := buildGraph(t, nil, []string{"a", "b", "c", "d"},
		[][2]string{{"a", "b"}, {"a", "c"}, {"b", "d"}, {"c", "d"}})
	layers, err := g.Layers()
	if err != nil {
		t.Fatal(err)
	}
	if got := fmt.Sprint(layers); got != "[[a] [b c] [d]]" {
		t.Errorf("Layers = %s", got)
	}
}

// TestRandomDAGsStayAcyclic inserts random edges into random graphs and
// checks every accepted edge set is acyclic and every rejected edge would
// have closed a cycle.
func TestRandomDAGsStayAcyclic(t *testing.T) {
	for seed := uint64(1); seed <= 50; seed++ {
		rng := rand.New(rand.NewPCG(seed, seed*7919))
		n := 3 + rng.IntN(10)
		g := New("plan-1")
		for i := 0; i < n; i++ {
			if err := g.AddTask(task(fmt.Sprintf("t%d", i), rng.IntN(120), types.TaskNotStarted)); err != nil {
				t.Fatal(err)
			}
		}
		for attempt := 0; attempt < n*n; attempt++ {
			a := fmt.Sprintf("t%d", rng.IntN(n))
			b := fmt.Sprintf("t%d", rng.IntN(n))
			if a == b {
				continue
			}
			wouldCycle := g.Reachable(b, a)
			err := g.AddDependency(a, b, rng.IntN(30))
			switch {
			case errors.Is(err, types.ErrDuplicate):
			case wouldCycle && !errors.Is(err, types.ErrCycle):
				t.Fatalf("seed %d: %s -> %s closes a cycle but got %v", seed, a, b, err)
			case !wouldCycle && err != nil:
				t.Fatalf("seed %d: %s -> %s rejected: %v", seed, a, b, err)
			}
		}
		if _, err := g.topoOrder(); err != nil {
			t.Fatalf("seed %d: accepted edge set has a cycle: %v", seed, err)
		}
		checkCriticalPath(t, seed, g)
	}
}

// checkCriticalPath compares CriticalPath against exhaustive enumeration.
func checkCriticalPath(t *testing.T, seed uint64, g *Graph) {
	t.Helper()
	path, err := g.CriticalPath()
	if err != nil {
		t.Fatalf("seed %d: CriticalPath: %v", seed, err)
	}

	best := 0
	var walk func(v, acc int)
	walk = func(v, acc int) {
		acc += g.nodes[v].duration
		if acc > best {
			best = acc
		}
		for _, e := range g.succs[v] {
			walk(e.to, acc)
		}
	}
	for v := range g.nodes {
		walk(v, 0)
		if g.nodes[v].duration > path.TotalMinutes {
			t.Fatalf("seed %d: task %s longer than critical path", seed, g.nodes[v].id)
		}
	}
	if path.TotalMinutes != best {
		t.Fatalf("seed %d: TotalMinutes = %d, exhaustive longest = %d", seed, path.TotalMinutes, best)
	}

	sum := 0
	for i, id := range path.TaskIDs {
		sum += g.nodes[g.index[id]].duration
		if i > 0 && !g.hasEdge(g.index[path.TaskIDs[i-1]], g.index[id]) {
			t.Fatalf("seed %d: path %v is not a chain", seed, path.TaskIDs)
		}
	}
	if sum != path.TotalMinutes {
		t.Fatalf("seed %d: path durations sum to %d, reported %d", seed, sum, path.TotalMinutes)
	}
}

func TestTaskTransitionTable(t *testing.T) {
	tests := []struct {
		from, to types.TaskStatus
		ok       bool
	}{
		{types.TaskNotStarted, types.TaskInProgress, true},
		{types.TaskNotStarted, types.TaskSkipped, true},
		{types.TaskNotStarted, types.TaskCompleted, false},
		{types.TaskInProgress, types.TaskCompleted, true},
		{types.TaskInProgress, types.TaskFailed, true},
		{types.TaskInProgress, types.TaskRolledBack, true},
		{types.TaskFailed, types.TaskInProgress, true},
		{types.TaskFailed, types.TaskSkipped, true},
		{types.TaskSkipped, types.TaskNotStarted, true},
		{types.TaskRolledBack, types.TaskNotStarted, true},
		{types.TaskCompleted, types.TaskInProgress, false},
		{types.TaskInProgress, types.TaskInProgress, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.ok {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestStartGuard(t *testing.T) {
	g := New("plan-1")
	pred1 := task("p1", 10, types.TaskNotStarted)
	pred2 := task("p2", 10, types.TaskInProgress)
	succ := task("s", 10, types.TaskNotStarted)
	for _, tk := range []*types.Task{pred1, pred2, succ} {
		if err := g.AddTask(tk); err != nil {
			t.Fatal(err)
		}
	}
	for _, p := range []string{"p1", "p2"} {
		if err := g.AddDependency(p, "s", 0); err != nil {
			t.Fatal(err)
		}
	}

	err := g.CheckTransition(succ, types.TaskInProgress)
	var guard *types.GuardFailedError
	if !errors.As(err, &guard) {
		t.Fatalf("expected GuardFailedError, got %v", err)
	}
	if guard.Condition != "predecessor p1 is not_started" {
		t.Errorf("Condition = %q", guard.Condition)
	}

	_ = g.SetStatus("p1", types.TaskCompleted)
	if err := g.CheckTransition(succ, types.TaskInProgress); err == nil || g.FirstBlocker("s") != "p2" {
		t.Fatalf("expected p2 to block, got err=%v blocker=%q", err, g.FirstBlocker("s"))
	}

	_ = g.SetStatus("p2", types.TaskSkipped)
	if err := g.CheckTransition(succ, types.TaskInProgress); err != nil {
		t.Fatalf("start with satisfied predecessors: %v", err)
	}

	if err := g.CheckTransition(succ, types.TaskCompleted); !errors.Is(err, types.ErrInvalidTransition) {
		t.Errorf("not_started -> completed: got %v", err)
	}
}

func TestApplyTransitionSideEffects(t *testing.T) {
	start := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	tk := task("t", 60, types.TaskNotStarted)

	ApplyTransition(tk, types.TaskInProgress, start)
	if tk.ActualStart == nil || !tk.ActualStart.Equal(start) {
		t.Fatalf("ActualStart = %v", tk.ActualStart)
	}

	ApplyTransition(tk, types.TaskFailed, start.Add(10*time.Minute))
	ApplyTransition(tk, types.TaskInProgress, start.Add(20*time.Minute))
	if !tk.ActualStart.Equal(start) {
		t.Errorf("re-entering in_progress moved ActualStart to %v", tk.ActualStart)
	}

	ApplyTransition(tk, types.TaskCompleted, start.Add(45*time.Minute))
	if tk.DelayMinutes == nil || *tk.DelayMinutes != -15 {
		t.Fatalf("DelayMinutes = %v, want -15", tk.DelayMinutes)
	}

	rb := task("r", 30, types.TaskInProgress)
	rb.ActualStart = &start
	ApplyTransition(rb, types.TaskRolledBack, start.Add(time.Hour))
	ApplyTransition(rb, types.TaskNotStarted, start.Add(2*time.Hour))
	if rb.ActualStart != nil || rb.ActualEnd != nil || rb.DelayMinutes != nil {
		t.Errorf("rolled_back -> not_started kept actuals: %+v", rb)
	}
}

func TestDelay(t *testing.T) {
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		elapsed time.Duration
		planned int
		want    int
	}{
		{90 * time.Minute, 60, 30},
		{30 * time.Minute, 60, -30},
		{60*time.Minute + 59*time.Second, 60, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := Delay(start, start.Add(tt.elapsed), tt.planned); got != tt.want {
			t.Errorf("Delay(%v, %d) = %d, want %d", tt.elapsed, tt.planned, got, tt.want)
		}
	}
}
