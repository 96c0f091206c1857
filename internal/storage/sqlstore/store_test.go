package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

func TestPlanRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	got, err := s.GetPlan(ctx, testScope, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, "CUT-001", got.Code)
	assert.Equal(t, types.PlanDraft, got.Status)
	assert.True(t, got.CreatedAt.Equal(testNow))
	assert.Nil(t, got.ActualStart)

	byCode, err := s.GetPlanByCode(ctx, testScope, "cut-001")
	require.NoError(t, err)
	assert.Equal(t, plan.ID, byCode.ID)

	n, err := s.NextPlanNumber(ctx, testScope)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestPlanScopeIsolation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	other := types.Scope{TenantID: "acme", ProgramID: "other"}
	_, err := s.GetPlan(ctx, other, plan.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)

	plans, err := s.ListPlans(ctx, other, types.PlanFilter{})
	require.NoError(t, err)
	assert.Empty(t, plans)
}

func TestDuplicatePlanCode(t *testing.T) {
	s := newTestStore(t)
	seedPlan(t, s, "CUT-001")

	dup := &types.Plan{
		ID: "plan-dup", TenantID: testScope.TenantID, ProgramID: testScope.ProgramID,
		Code: "CUT-001", Name: "dup", Status: types.PlanDraft, HypercareDurationWeeks: 4,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	err := s.CreatePlan(context.Background(), dup)
	var de *types.DuplicateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "CUT-001", de.Key)
}

func TestUpdatePlanStatusCompareAndSwap(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	plan.Status = types.PlanApproved
	require.NoError(t, s.UpdatePlanStatus(ctx, testScope, plan, types.PlanDraft))

	// A second writer still believing the plan is draft loses.
	plan.Status = types.PlanApproved
	err := s.UpdatePlanStatus(ctx, testScope, plan, types.PlanDraft)
	assert.ErrorIs(t, err, storage.ErrStatusChanged)

	got, err := s.GetPlan(ctx, testScope, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PlanApproved, got.Status)
}

func TestTasksAndDependencies(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, item := seedPlan(t, s, "CUT-001")
	a := seedTask(t, s, plan, item, "t-a", 30)
	b := seedTask(t, s, plan, item, "t-b", 60)

	require.NoError(t, s.AddDependency(ctx, testScope, &types.Dependency{
		PlanID: plan.ID, PredecessorID: a.ID, SuccessorID: b.ID, CreatedAt: testNow,
	}))
	err := s.AddDependency(ctx, testScope, &types.Dependency{
		PlanID: plan.ID, PredecessorID: a.ID, SuccessorID: b.ID, CreatedAt: testNow,
	})
	assert.ErrorIs(t, err, types.ErrDuplicate)

	deps, err := s.ListDependencies(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "t-a", deps[0].PredecessorID)

	require.NoError(t, s.SetCriticalPathFlags(ctx, testScope, plan.ID, map[string]bool{"t-b": true}))
	tasks, err := s.ListTasks(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	flags := map[string]bool{}
	for _, task := range tasks {
		flags[task.ID] = task.IsCriticalPath
	}
	assert.Equal(t, map[string]bool{"t-a": false, "t-b": true}, flags)

	n, err := s.CountTasksForScopeItem(ctx, testScope, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, s.DeleteTask(ctx, testScope, a.ID))
	deps, err = s.ListDependencies(ctx, testScope, plan.ID)
	require.NoError(t, err)
	assert.Empty(t, deps)

	err = s.RemoveDependency(ctx, testScope, plan.ID, a.ID, b.ID)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestTaskKeyUniquePerPlan(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, item := seedPlan(t, s, "CUT-001")

	mk := func(id, key string) *types.Task {
		return &types.Task{
			ID: id, PlanID: plan.ID, ScopeItemID: item.ID, Key: key, Title: id,
			Status: types.TaskNotStarted, CreatedAt: testNow, UpdatedAt: testNow,
		}
	}
	// Empty keys are stored as NULL and never collide.
	require.NoError(t, s.CreateTask(ctx, testScope, mk("t1", "")))
	require.NoError(t, s.CreateTask(ctx, testScope, mk("t2", "")))
	require.NoError(t, s.CreateTask(ctx, testScope, mk("t3", "extract")))
	err := s.CreateTask(ctx, testScope, mk("t4", "extract"))
	assert.ErrorIs(t, err, types.ErrDuplicate)
}

func TestUpdateTaskStatusRecordsActuals(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, item := seedPlan(t, s, "CUT-001")
	task := seedTask(t, s, plan, item, "t-a", 30)

	start := testNow
	end := testNow.Add(45 * time.Minute)
	delay := 15
	task.Status = types.TaskCompleted
	task.ActualStart = &start
	task.ActualEnd = &end
	task.DelayMinutes = &delay
	require.NoError(t, s.UpdateTaskStatus(ctx, testScope, task, types.TaskNotStarted))

	got, err := s.GetTask(ctx, testScope, task.ID)
	require.NoError(t, err)
	assert.Equal(t, types.TaskCompleted, got.Status)
	require.NotNil(t, got.DelayMinutes)
	assert.Equal(t, 15, *got.DelayMinutes)
	require.NotNil(t, got.ActualEnd)
	assert.True(t, got.ActualEnd.Equal(end))

	err = s.UpdateTaskStatus(ctx, testScope, task, types.TaskNotStarted)
	assert.ErrorIs(t, err, storage.ErrStatusChanged)
}

func TestRehearsalMetricsPersist(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	n, err := s.NextRehearsalNumber(ctx, testScope, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	r := &types.Rehearsal{
		ID: "r1", PlanID: plan.ID, Number: n, Status: types.RehearsalInProgress,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, s.CreateRehearsal(ctx, testScope, r))

	done := testNow.Add(time.Hour)
	r.Status = types.RehearsalCompleted
	r.CompletedAt = &done
	r.Metrics = &types.RehearsalMetrics{
		TotalTasks:            2,
		StatusCounts:          map[types.TaskStatus]int{types.TaskCompleted: 2},
		CompletedCount:        2,
		VariancePct:           20,
		RunbookRevisionNeeded: true,
	}
	require.NoError(t, s.UpdateRehearsalStatus(ctx, testScope, r, types.RehearsalInProgress))

	got, err := s.GetRehearsal(ctx, testScope, r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Metrics)
	assert.Equal(t, 2, got.Metrics.StatusCounts[types.TaskCompleted])
	assert.True(t, got.Metrics.RunbookRevisionNeeded)

	count, err := s.CountRehearsals(ctx, testScope, plan.ID, types.RehearsalCompleted)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	dup := &types.Rehearsal{ID: "r2", PlanID: plan.ID, Number: 1, Status: types.RehearsalPlanned,
		CreatedAt: testNow, UpdatedAt: testNow}
	assert.ErrorIs(t, s.CreateRehearsal(ctx, testScope, dup), types.ErrDuplicate)
}

func TestIncidentFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	mk := func(id string, sev types.Severity, status types.IncidentStatus, reported time.Time) {
		inc := &types.Incident{
			ID: id, PlanID: plan.ID, Title: id, Severity: sev, Status: status,
			ReportedAt: reported, SLAResponseDeadline: reported.Add(time.Hour),
			SLAResolutionDeadline: reported.Add(4 * time.Hour), CreatedAt: reported, UpdatedAt: reported,
		}
		require.NoError(t, s.CreateIncident(ctx, testScope, inc))
	}
	mk("i1", types.SeverityP1, types.IncidentOpen, testNow)
	mk("i2", types.SeverityP2, types.IncidentResolved, testNow.Add(time.Minute))
	mk("i3", types.SeverityP1, types.IncidentInvestigating, testNow.Add(2*time.Minute))

	all, err := s.ListIncidents(ctx, testScope, plan.ID, types.IncidentFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "i3", all[0].ID, "newest first")

	open, err := s.ListIncidents(ctx, testScope, plan.ID, types.IncidentFilter{OpenOnly: true})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	p1 := types.SeverityP1
	crit, err := s.ListIncidents(ctx, testScope, plan.ID, types.IncidentFilter{Severity: &p1})
	require.NoError(t, err)
	assert.Len(t, crit, 2)
}

func TestEscalationEventUniquePerLevel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")
	inc := &types.Incident{
		ID: "i1", PlanID: plan.ID, Title: "posting fails", Severity: types.SeverityP1, Status: types.IncidentOpen,
		ReportedAt: testNow, SLAResponseDeadline: testNow, SLAResolutionDeadline: testNow,
		CreatedAt: testNow, UpdatedAt: testNow,
	}
	require.NoError(t, s.CreateIncident(ctx, testScope, inc))

	ev := &types.EscalationEvent{ID: "e1", IncidentID: inc.ID, PlanID: plan.ID, Level: 1, IsAuto: true, TriggeredAt: testNow}
	require.NoError(t, s.CreateEscalationEvent(ctx, testScope, ev))
	again := &types.EscalationEvent{ID: "e2", IncidentID: inc.ID, PlanID: plan.ID, Level: 1, TriggeredAt: testNow}
	assert.ErrorIs(t, s.CreateEscalationEvent(ctx, testScope, again), types.ErrDuplicate)

	ack := testNow.Add(time.Minute)
	ev.AcknowledgedAt = &ack
	ev.AcknowledgedBy = "lead"
	require.NoError(t, s.UpdateEscalationEvent(ctx, testScope, ev))
	got, err := s.GetEscalationEvent(ctx, testScope, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, "lead", got.AcknowledgedBy)
	assert.True(t, got.IsAuto)
}

func TestRuleAndOverrideUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	rule := &types.EscalationRule{PlanID: plan.ID, Severity: types.SeverityP2, LevelOrder: 1,
		TriggerAfterMin: 30, TargetRole: "lead", Basis: types.BasisReported, IsActive: true}
	require.NoError(t, s.SetEscalationRule(ctx, testScope, rule))
	rule.TriggerAfterMin = 45
	require.NoError(t, s.SetEscalationRule(ctx, testScope, rule))

	rules, err := s.ListEscalationRules(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 45, rules[0].TriggerAfterMin)

	o := &types.HypercareSLA{PlanID: plan.ID, Severity: types.SeverityP1,
		Target: types.SLATarget{ResponseMin: 10, ResolutionMin: 120}, UpdatedAt: testNow}
	require.NoError(t, s.SetSLAOverride(ctx, testScope, o))
	o.Target.ResolutionMin = 180
	require.NoError(t, s.SetSLAOverride(ctx, testScope, o))

	overrides, err := s.ListSLAOverrides(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Equal(t, 180, overrides[0].Target.ResolutionMin)
}

func TestExitCriteriaAndSignoffs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")

	c := &types.ExitCriterion{ID: "c1", PlanID: plan.ID, Name: "SLA compliance", Type: types.CriterionAuto,
		Metric: types.MetricSLACompliance, Threshold: 95, Mandatory: true, Status: types.CriterionPending,
		CreatedAt: testNow, UpdatedAt: testNow}
	require.NoError(t, s.CreateExitCriterion(ctx, testScope, c))

	c.Status = types.CriterionMet
	c.Evidence = "compliance 100.00%"
	require.NoError(t, s.UpdateExitCriterion(ctx, testScope, c))

	got, err := s.GetExitCriterion(ctx, testScope, c.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CriterionMet, got.Status)
	assert.InDelta(t, 95.0, got.Threshold, 0.001)
	assert.Equal(t, types.MetricSLACompliance, got.Metric)

	require.NoError(t, s.CreateSignoff(ctx, testScope, &types.ExitSignoff{
		ID: "s1", PlanID: plan.ID, Approver: "cfo", Decision: types.SignoffApproved, SignedAt: testNow,
	}))
	signoffs, err := s.ListSignoffs(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, signoffs, 1)
	assert.True(t, signoffs[0].Decision.Approves())
}

func TestRunInTransactionRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, item := seedPlan(t, s, "CUT-001")

	boom := errors.New("boom")
	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		task := &types.Task{ID: "t-x", PlanID: plan.ID, ScopeItemID: item.ID, Title: "x",
			Status: types.TaskNotStarted, CreatedAt: testNow, UpdatedAt: testNow}
		if err := tx.CreateTask(ctx, testScope, task); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.GetTask(ctx, testScope, "t-x")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestRunInTransactionCommits(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, item := seedPlan(t, s, "CUT-001")

	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		seq, err := tx.NextTaskSequence(ctx, testScope, plan.ID)
		if err != nil {
			return err
		}
		return tx.CreateTask(ctx, testScope, &types.Task{ID: "t-x", PlanID: plan.ID, ScopeItemID: item.ID,
			Title: "x", Sequence: seq, Status: types.TaskNotStarted, CreatedAt: testNow, UpdatedAt: testNow})
	})
	require.NoError(t, err)

	got, err := s.GetTask(ctx, testScope, "t-x")
	require.NoError(t, err)
	assert.Equal(t, 10, got.Sequence)
}

func TestIsUniqueConstraintError(t *testing.T) {
	assert.False(t, IsUniqueConstraintError(nil))
	assert.True(t, IsUniqueConstraintError(errors.New("UNIQUE constraint failed: plans.code")))
	assert.False(t, IsUniqueConstraintError(errors.New("no such table")))
}

func TestRunInTransactionRollsBackOnPanic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, item := seedPlan(t, s, "CUT-001")

	assert.PanicsWithValue(t, "boom", func() {
		_ = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
			task := &types.Task{ID: "t-x", PlanID: plan.ID, ScopeItemID: item.ID, Title: "x",
				Status: types.TaskNotStarted, CreatedAt: testNow, UpdatedAt: testNow}
			if err := tx.CreateTask(ctx, testScope, task); err != nil {
				return err
			}
			panic("boom")
		})
	})

	_, err := s.GetTask(ctx, testScope, "t-x")
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestLockPlanAndScope(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	plan, _ := seedPlan(t, s, "CUT-001")
	other := types.Scope{TenantID: "globex", ProgramID: testScope.ProgramID}

	err := s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		require.NoError(t, tx.LockScope(ctx, testScope))
		require.NoError(t, tx.LockPlan(ctx, testScope, plan.ID))
		return tx.LockPlan(ctx, other, plan.ID)
	})
	assert.ErrorIs(t, err, types.ErrNotFound)

	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		return tx.LockPlan(ctx, testScope, "missing")
	})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestIsDeadlockError(t *testing.T) {
	deadlock := &mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock; try restarting transaction"}
	assert.True(t, isDeadlockError(deadlock))
	assert.True(t, isDeadlockError(fmt.Errorf("add dependency: %w", deadlock)))
	assert.True(t, isDeadlockError(errors.New("Error 1213 (40001): Deadlock found when trying to get lock")))
	assert.False(t, isDeadlockError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}))
	assert.False(t, isDeadlockError(types.Invalid("lag_minutes", "cannot be negative")))
	assert.False(t, isDeadlockError(nil))
}
