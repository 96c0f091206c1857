package readiness

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/sla"
	"github.com/steveyegge/cutover/internal/types"
)

func items(verdicts ...types.Verdict) []*types.GoNoGoItem {
	out := make([]*types.GoNoGoItem, len(verdicts))
	for i, v := range verdicts {
		out[i] = &types.GoNoGoItem{Verdict: v}
	}
	return out
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name  string
		items []*types.GoNoGoItem
		want  types.ReadinessVerdict
	}{
		{"empty", nil, types.ReadinessNoItems},
		{"go go no_go", items(types.VerdictGo, types.VerdictGo, types.VerdictNoGo), types.ReadinessNoGo},
		{"go pending", items(types.VerdictGo, types.VerdictPending), types.ReadinessPending},
		{"go waived", items(types.VerdictGo, types.VerdictWaived), types.ReadinessGo},
		{"no_go beats pending", items(types.VerdictPending, types.VerdictNoGo), types.ReadinessNoGo},
		{"all waived", items(types.VerdictWaived), types.ReadinessGo},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Aggregate(tt.items).Verdict)
		})
	}

	r := Aggregate(items(types.VerdictGo, types.VerdictNoGo, types.VerdictPending, types.VerdictWaived, types.VerdictGo))
	assert.Equal(t, types.Readiness{Verdict: types.ReadinessNoGo, Total: 5, Go: 2, NoGo: 1, Pending: 1, Waived: 1}, r)
}

func ranTask(status types.TaskStatus, planned int, actual time.Duration) *types.Task {
	t := &types.Task{Status: status, PlannedDurationMin: planned}
	if actual > 0 {
		start := time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)
		end := start.Add(actual)
		t.ActualStart, t.ActualEnd = &start, &end
	}
	return t
}

func TestRehearsalMetrics(t *testing.T) {
	m := RehearsalMetrics([]*types.Task{
		ranTask(types.TaskCompleted, 60, 66*time.Minute),
		ranTask(types.TaskCompleted, 40, 44*time.Minute),
		ranTask(types.TaskSkipped, 20, 0),
	})
	assert.Equal(t, 3, m.TotalTasks)
	assert.Equal(t, 2, m.CompletedCount)
	assert.Equal(t, 1, m.SkippedCount)
	assert.Equal(t, 120, m.PlannedTotalMin)
	assert.Equal(t, 100, m.MeasuredPlannedMin)
	assert.Equal(t, 110, m.ActualTotalMin)
	assert.InDelta(t, 10.0, m.VariancePct, 0.001)
	assert.False(t, m.RunbookRevisionNeeded)
}

func TestRehearsalMetricsIgnoresUnexecutedTasks(t *testing.T) {
	m := RehearsalMetrics([]*types.Task{
		ranTask(types.TaskCompleted, 30, 31*time.Minute),
		ranTask(types.TaskSkipped, 240, 0),
		ranTask(types.TaskSkipped, 180, 0),
		ranTask(types.TaskNotStarted, 60, 0),
	})
	assert.Equal(t, 510, m.PlannedTotalMin)
	assert.Equal(t, 30, m.MeasuredPlannedMin)
	assert.InDelta(t, 3.33, m.VariancePct, 0.001)
	assert.False(t, m.RunbookRevisionNeeded, "skipped work is not a timing variance")

	none := RehearsalMetrics([]*types.Task{ranTask(types.TaskSkipped, 90, 0)})
	assert.Zero(t, none.VariancePct)
	assert.False(t, none.RunbookRevisionNeeded)
}

func TestRehearsalMetricsRevision(t *testing.T) {
	over := RehearsalMetrics([]*types.Task{ranTask(types.TaskCompleted, 100, 120*time.Minute)})
	assert.InDelta(t, 20.0, over.VariancePct, 0.001)
	assert.True(t, over.RunbookRevisionNeeded, "variance above 15%")

	failed := RehearsalMetrics([]*types.Task{ranTask(types.TaskFailed, 100, 100*time.Minute)})
	assert.True(t, failed.RunbookRevisionNeeded, "any failure")

	edge := RehearsalMetrics([]*types.Task{ranTask(types.TaskCompleted, 100, 115*time.Minute)})
	assert.False(t, edge.RunbookRevisionNeeded, "exactly 15% is within tolerance")
}

func TestRehearsalMetricsZeroPlanned(t *testing.T) {
	m := RehearsalMetrics([]*types.Task{ranTask(types.TaskCompleted, 0, 30*time.Minute)})
	assert.Zero(t, m.VariancePct)
	assert.False(t, m.RunbookRevisionNeeded)

	empty := RehearsalMetrics(nil)
	assert.Zero(t, empty.TotalTasks)
	assert.Zero(t, empty.VariancePct)
}

func TestRehearsalTransitions(t *testing.T) {
	now := time.Date(2026, 2, 1, 20, 0, 0, 0, time.UTC)
	r := &types.Rehearsal{ID: "r1", Status: types.RehearsalPlanned}

	require.NoError(t, CheckRehearsalTransition(r, types.RehearsalInProgress))
	err := CheckRehearsalTransition(r, types.RehearsalCompleted)
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	ApplyRehearsalTransition(r, types.RehearsalInProgress, nil, now)
	require.NotNil(t, r.StartedAt)

	ApplyRehearsalTransition(r, types.RehearsalCompleted, []*types.Task{ranTask(types.TaskCompleted, 10, 10*time.Minute)}, now.Add(time.Hour))
	require.NotNil(t, r.Metrics)
	assert.Equal(t, 1, r.Metrics.CompletedCount)
	assert.ErrorIs(t, CheckRehearsalTransition(r, types.RehearsalCancelled), types.ErrInvalidTransition)
}

func incident(sev types.Severity, status types.IncidentStatus, reported time.Time) *types.Incident {
	inc := &types.Incident{Severity: sev, Status: status, ReportedAt: reported}
	_ = sla.Stamp(inc, nil)
	return inc
}

func TestEvaluateAuto(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	incs := []*types.Incident{
		incident(types.SeverityP3, types.IncidentOpen, now.Add(-10*time.Minute)),
		incident(types.SeverityP1, types.IncidentClosed, now.Add(-time.Hour)),
	}
	incs[1].FirstResponseAt = ptr(now.Add(-55 * time.Minute))
	incs[1].ResolvedAt = ptr(now.Add(-30 * time.Minute))

	critical := &types.ExitCriterion{ID: "c1", Type: types.CriterionAuto, Metric: types.MetricNoOpenCritical}
	ev, err := EvaluateAuto(critical, incs, now)
	require.NoError(t, err)
	assert.Equal(t, types.CriterionMet, ev.Status)

	anyOpen := &types.ExitCriterion{ID: "c2", Type: types.CriterionAuto, Metric: types.MetricNoOpenIncidents}
	ev, err = EvaluateAuto(anyOpen, incs, now)
	require.NoError(t, err)
	assert.Equal(t, types.CriterionNotMet, ev.Status)
	assert.Equal(t, "1 open incidents", ev.Evidence)

	compliance := &types.ExitCriterion{ID: "c3", Type: types.CriterionAuto, Metric: types.MetricSLACompliance, Threshold: 95}
	ev, err = EvaluateAuto(compliance, incs, now)
	require.NoError(t, err)
	assert.Equal(t, types.CriterionMet, ev.Status)

	manual := &types.ExitCriterion{ID: "c4", Type: types.CriterionManual}
	_, err = EvaluateAuto(manual, incs, now)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCheckStatusChange(t *testing.T) {
	manual := &types.ExitCriterion{ID: "m", Type: types.CriterionManual}
	auto := &types.ExitCriterion{ID: "a", Type: types.CriterionAuto, Metric: types.MetricNoOpenIncidents}

	err := CheckStatusChange(manual, types.CriterionMet, true)
	var ve *types.ValidationError
	require.True(t, errors.As(err, &ve), "auto path marking manual met: %v", err)

	assert.NoError(t, CheckStatusChange(manual, types.CriterionMet, false))
	assert.NoError(t, CheckStatusChange(manual, types.CriterionNotMet, true))
	assert.NoError(t, CheckStatusChange(auto, types.CriterionMet, true))
	assert.ErrorIs(t, CheckStatusChange(auto, types.CriterionMet, false), types.ErrValidation)
	assert.ErrorIs(t, CheckStatusChange(manual, "maybe", false), types.ErrValidation)
}

func TestCloseBlockers(t *testing.T) {
	criteria := []*types.ExitCriterion{
		{Name: "No P1/P2", Mandatory: true, Status: types.CriterionMet},
		{Name: "Training done", Mandatory: true, Status: types.CriterionPending},
		{Name: "Nice to have", Mandatory: false, Status: types.CriterionNotMet},
	}
	rejected := []*types.ExitSignoff{{Approver: "qa-lead", Decision: types.SignoffRejected}}

	blockers := CloseBlockers(criteria, rejected)
	assert.Equal(t, []string{
		`mandatory exit criterion "Training done" is pending`,
		"latest exit sign-off by qa-lead is rejected",
	}, blockers)
	assert.Equal(t, []string{"no approved exit sign-off recorded"}, CloseBlockers(nil, nil))

	criteria[1].Status = types.CriterionMet
	override := append(rejected, &types.ExitSignoff{Decision: types.SignoffOverrideApproved})
	assert.Empty(t, CloseBlockers(criteria, override))
}

func TestLatestSignoffDecides(t *testing.T) {
	day := time.Date(2026, 4, 20, 9, 0, 0, 0, time.UTC)
	approved := &types.ExitSignoff{Approver: "sponsor", Decision: types.SignoffApproved, SignedAt: day}
	rejected := &types.ExitSignoff{Approver: "qa-lead", Decision: types.SignoffRejected, SignedAt: day.Add(time.Hour)}

	assert.True(t, HasApprovingSignoff([]*types.ExitSignoff{approved}))
	assert.False(t, HasApprovingSignoff([]*types.ExitSignoff{approved, rejected}), "later rejection supersedes")
	assert.False(t, HasApprovingSignoff([]*types.ExitSignoff{rejected, approved}), "order by time, not position")
	assert.Same(t, rejected, LatestSignoff([]*types.ExitSignoff{rejected, approved}))
	assert.Nil(t, LatestSignoff(nil))

	reapproved := &types.ExitSignoff{Approver: "sponsor", Decision: types.SignoffOverrideApproved, SignedAt: day.Add(2 * time.Hour)}
	assert.True(t, HasApprovingSignoff([]*types.ExitSignoff{approved, rejected, reapproved}))
}

func ptr(t time.Time) *time.Time { return &t }
