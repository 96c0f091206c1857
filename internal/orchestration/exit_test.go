package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/types"
)

func TestAddExitCriterionValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	c, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "SLA compliance", Type: types.CriterionAuto, Metric: types.MetricSLACompliance, Mandatory: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 95.0, c.Threshold, "threshold defaults to the configured value")
	assert.Equal(t, types.CriterionPending, c.Status)

	_, err = svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{Name: "Bad", Type: types.CriterionAuto, Metric: "uptime"})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "Bad", Type: types.CriterionManual, Metric: types.MetricNoOpenIncidents,
	})
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "Bad", Type: types.CriterionAuto, Metric: types.MetricSLACompliance, Threshold: 120,
	})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestEvaluateExitCriteria(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	critical, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "No open P1/P2", Type: types.CriterionAuto, Metric: types.MetricNoOpenCritical, Mandatory: true,
	})
	require.NoError(t, err)
	compliance, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "SLA >= 50%", Type: types.CriterionAuto, Metric: types.MetricSLACompliance, Threshold: 50, Mandatory: true,
	})
	require.NoError(t, err)
	manual, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "Hand-over to AMS", Type: types.CriterionManual, Mandatory: true,
	})
	require.NoError(t, err)

	p1, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "Payroll", Severity: types.SeverityP1})
	require.NoError(t, err)
	_, err = svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "Layout", Severity: types.SeverityP4})
	require.NoError(t, err)

	byID := func(list []*types.ExitCriterion) map[string]*types.ExitCriterion {
		m := make(map[string]*types.ExitCriterion, len(list))
		for _, c := range list {
			m[c.ID] = c
		}
		return m
	}

	got, err := svc.EvaluateExitCriteria(ctx, testScope, plan.ID, testStart.Add(time.Minute), "pmo")
	require.NoError(t, err)
	m := byID(got)
	assert.Equal(t, types.CriterionNotMet, m[critical.ID].Status)
	assert.Equal(t, "1 open P1/P2 incidents", m[critical.ID].Evidence)
	assert.Equal(t, types.CriterionMet, m[compliance.ID].Status)
	assert.Equal(t, types.CriterionPending, m[manual.ID].Status, "manual criteria are never auto-evaluated")

	clock.Advance(30 * time.Minute)
	_, err = svc.TransitionIncident(ctx, testScope, p1.ID, types.IncidentResolved, "bob")
	require.NoError(t, err)

	got, err = svc.EvaluateExitCriteria(ctx, testScope, plan.ID, time.Time{}, "pmo")
	require.NoError(t, err)
	m = byID(got)
	assert.Equal(t, types.CriterionMet, m[critical.ID].Status)
	assert.Equal(t, "pmo", m[critical.ID].EvaluatedBy)
	// P1 responded late (30m > 15m); P4 is within target: 50%.
	assert.Equal(t, types.CriterionMet, m[compliance.ID].Status)

	stored, err := svc.ListExitCriteria(ctx, testScope, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.CriterionMet, byID(stored)[critical.ID].Status)
}

func TestSetExitCriterionStatusPaths(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	auto, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "No open incidents", Type: types.CriterionAuto, Metric: types.MetricNoOpenIncidents,
	})
	require.NoError(t, err)
	manual, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "Data archived", Type: types.CriterionManual,
	})
	require.NoError(t, err)

	_, err = svc.SetExitCriterionStatus(ctx, testScope, auto.ID, types.CriterionMet, "looked fine", "pmo", false)
	assert.ErrorIs(t, err, types.ErrValidation, "auto criteria are not set by hand")

	_, err = svc.SetExitCriterionStatus(ctx, testScope, manual.ID, types.CriterionMet, "", "system", true)
	assert.ErrorIs(t, err, types.ErrValidation, "the auto path cannot mark a manual criterion met")

	c, err := svc.SetExitCriterionStatus(ctx, testScope, manual.ID, types.CriterionMet, "archive job 42", "pmo", false)
	require.NoError(t, err)
	assert.Equal(t, types.CriterionMet, c.Status)
	require.NotNil(t, c.EvaluatedAt)

	c, err = svc.SetExitCriterionStatus(ctx, testScope, manual.ID, types.CriterionPending, "", "pmo", false)
	require.NoError(t, err)
	assert.Nil(t, c.EvaluatedAt)

	_, err = svc.SetExitCriterionStatus(ctx, testScope, manual.ID, "done", "", "pmo", false)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestRecordSignoffRules(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	draft := mustPlan(t, svc, "Not live")
	_, err := svc.RecordSignoff(ctx, testScope, draft.ID, "cio", types.SignoffApproved, "")
	assert.ErrorIs(t, err, types.ErrGuardFailed)

	plan := planInHypercare(t, svc)
	_, err = svc.RecordSignoff(ctx, testScope, plan.ID, "", types.SignoffApproved, "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.RecordSignoff(ctx, testScope, plan.ID, "cio", "maybe", "")
	assert.ErrorIs(t, err, types.ErrValidation)
	_, err = svc.RecordSignoff(ctx, testScope, plan.ID, "cio", types.SignoffOverrideApproved, "")
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = svc.RecordSignoff(ctx, testScope, plan.ID, "cio", types.SignoffOverrideApproved, "accepting open P3 backlog")
	require.NoError(t, err)
	signoffs, err := svc.ListSignoffs(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, signoffs, 1)
	assert.Equal(t, "cio", signoffs[0].Approver)
}

func TestExitStatusDoesNotPersist(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	c, err := svc.AddExitCriterion(ctx, testScope, plan.ID, CriterionInput{
		Name: "No open incidents", Type: types.CriterionAuto, Metric: types.MetricNoOpenIncidents, Mandatory: true,
	})
	require.NoError(t, err)

	st, err := svc.ExitStatus(ctx, testScope, plan.ID, time.Time{})
	require.NoError(t, err)
	assert.False(t, st.CanClose)
	require.Len(t, st.Criteria, 1)
	assert.Equal(t, types.CriterionMet, st.Criteria[0].Status)
	assert.Equal(t, []string{"no approved exit sign-off recorded"}, st.Blockers)

	stored, err := svc.ListExitCriteria(ctx, testScope, plan.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, c.ID, stored[0].ID)
	assert.Equal(t, types.CriterionPending, stored[0].Status)

	_, err = svc.RecordSignoff(ctx, testScope, plan.ID, "cio", types.SignoffApproved, "")
	require.NoError(t, err)
	st, err = svc.ExitStatus(ctx, testScope, plan.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, st.CanClose)
	assert.Empty(t, st.Blockers)
}
