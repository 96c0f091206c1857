// Package readiness aggregates rehearsal metrics, the Go/No-Go verdict of a
// plan, and the exit criteria that gate closing hypercare.
package readiness

import (
	"math"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// RevisionVarianceThreshold is the absolute variance percentage above which
// a rehearsal flags the runbook for revision.
const RevisionVarianceThreshold = 15.0

// RehearsalMetrics computes the execution snapshot of a set of tasks.
// Variance compares like with like: only tasks with both actual start and
// end contribute, to the actual total and to the measured planned total.
// Skipped or never-started tasks count toward PlannedTotalMin only.
func RehearsalMetrics(tasks []*types.Task) *types.RehearsalMetrics {
	m := &types.RehearsalMetrics{
		TotalTasks:   len(tasks),
		StatusCounts: make(map[types.TaskStatus]int),
	}
	for _, t := range tasks {
		m.StatusCounts[t.Status]++
		m.PlannedTotalMin += t.PlannedDurationMin
		if t.ActualStart != nil && t.ActualEnd != nil {
			m.MeasuredPlannedMin += t.PlannedDurationMin
			m.ActualTotalMin += int(t.ActualEnd.Sub(*t.ActualStart) / time.Minute)
		}
	}
	m.CompletedCount = m.StatusCounts[types.TaskCompleted]
	m.FailedCount = m.StatusCounts[types.TaskFailed]
	m.SkippedCount = m.StatusCounts[types.TaskSkipped]
	if m.MeasuredPlannedMin > 0 {
		v := float64(m.ActualTotalMin-m.MeasuredPlannedMin) / float64(m.MeasuredPlannedMin) * 100
		m.VariancePct = math.Round(v*100) / 100
	}
	m.RunbookRevisionNeeded = m.FailedCount > 0 || math.Abs(m.VariancePct) > RevisionVarianceThreshold
	return m
}

// Aggregate folds Go/No-Go items into a readiness verdict. Precedence is
// fixed: no_go beats pending beats go, and waived counts as satisfied.
func Aggregate(items []*types.GoNoGoItem) types.Readiness {
	r := types.Readiness{Total: len(items)}
	for _, it := range items {
		switch it.Verdict {
		case types.VerdictGo:
			r.Go++
		case types.VerdictNoGo:
			r.NoGo++
		case types.VerdictWaived:
			r.Waived++
		default:
			r.Pending++
		}
	}
	switch {
	case r.Total == 0:
		r.Verdict = types.ReadinessNoItems
	case r.NoGo > 0:
		r.Verdict = types.ReadinessNoGo
	case r.Pending > 0:
		r.Verdict = types.ReadinessPending
	default:
		r.Verdict = types.ReadinessGo
	}
	return r
}

// rehearsalTransitions is the allowed (from, to) table for rehearsals.
var rehearsalTransitions = map[types.RehearsalStatus][]types.RehearsalStatus{
	types.RehearsalPlanned:    {types.RehearsalInProgress, types.RehearsalCancelled},
	types.RehearsalInProgress: {types.RehearsalCompleted, types.RehearsalCancelled},
}

// CheckRehearsalTransition validates a rehearsal status change.
func CheckRehearsalTransition(r *types.Rehearsal, to types.RehearsalStatus) error {
	if !to.IsValid() {
		return types.Invalid("status", "unknown rehearsal status %q", to)
	}
	for _, s := range rehearsalTransitions[r.Status] {
		if s == to {
			return nil
		}
	}
	return &types.InvalidTransitionError{Entity: "rehearsal", ID: r.ID, From: string(r.Status), To: string(to)}
}

// ApplyRehearsalTransition mutates r to the target status. Completion
// attaches the metrics snapshot computed from tasks.
func ApplyRehearsalTransition(r *types.Rehearsal, to types.RehearsalStatus, tasks []*types.Task, now time.Time) {
	now = now.UTC()
	switch to {
	case types.RehearsalInProgress:
		r.StartedAt = &now
	case types.RehearsalCompleted:
		r.CompletedAt = &now
		r.Metrics = RehearsalMetrics(tasks)
	}
	r.Status = to
	r.UpdatedAt = now
}
