package taskgraph

import (
	"fmt"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// taskTransitions is the allowed (from, to) table for runbook tasks.
// completed is terminal. Same-state requests are never listed.
var taskTransitions = map[types.TaskStatus][]types.TaskStatus{
	types.TaskNotStarted: {types.TaskInProgress, types.TaskSkipped},
	types.TaskInProgress: {types.TaskCompleted, types.TaskFailed, types.TaskRolledBack},
	types.TaskFailed:     {types.TaskInProgress, types.TaskSkipped},
	types.TaskSkipped:    {types.TaskNotStarted},
	types.TaskRolledBack: {types.TaskNotStarted},
}

// CanTransition reports whether from -> to is in the task table.
func CanTransition(from, to types.TaskStatus) bool {
	for _, s := range taskTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from from in one step.
func NextStatuses(from types.TaskStatus) []types.TaskStatus {
	return append([]types.TaskStatus(nil), taskTransitions[from]...)
}

// CheckTransition validates a requested status change for task. Entering
// in_progress additionally requires every direct predecessor in g to be
// completed or skipped.
func (g *Graph) CheckTransition(task *types.Task, to types.TaskStatus) error {
	if !to.IsValid() {
		return types.Invalid("status", "unknown task status %q", to)
	}
	if !CanTransition(task.Status, to) {
		return &types.InvalidTransitionError{Entity: "task", ID: task.ID, From: string(task.Status), To: string(to)}
	}
	if to == types.TaskInProgress {
		if blocker := g.FirstBlocker(task.ID); blocker != "" {
			v := g.index[blocker]
			return &types.GuardFailedError{
				Entity:    "task",
				ID:        task.ID,
				From:      string(task.Status),
				To:        string(to),
				Condition: fmt.Sprintf("predecessor %s is %s", blocker, g.nodes[v].status),
			}
		}
	}
	return nil
}

// FirstBlocker returns the first direct predecessor, in edge insertion
// order, that is neither completed nor skipped. Empty when none blocks.
func (g *Graph) FirstBlocker(id string) string {
	v, ok := g.index[id]
	if !ok {
		return ""
	}
	for _, e := range g.preds[v] {
		if !g.nodes[e.to].status.Satisfied() {
			return g.nodes[e.to].id
		}
	}
	return ""
}

// ApplyTransition mutates task to the target status and applies the
// timestamp side effects. Callers run CheckTransition first.
func ApplyTransition(task *types.Task, to types.TaskStatus, now time.Time) {
	now = now.UTC()
	switch to {
	case types.TaskInProgress:
		if task.ActualStart == nil {
			task.ActualStart = &now
		}
	case types.TaskCompleted:
		task.ActualEnd = &now
		start := now
		if task.ActualStart != nil {
			start = *task.ActualStart
		}
		d := Delay(start, now, task.PlannedDurationMin)
		task.DelayMinutes = &d
	case types.TaskNotStarted:
		if task.Status == types.TaskRolledBack {
			task.ActualStart = nil
			task.ActualEnd = nil
			task.DelayMinutes = nil
		}
	}
	task.Status = to
	task.UpdatedAt = now
}

// Delay returns whole elapsed minutes between start and end minus the
// planned duration. Negative values mean the task finished early.
func Delay(start, end time.Time, plannedMin int) int {
	return int(end.Sub(start)/time.Minute) - plannedMin
}
