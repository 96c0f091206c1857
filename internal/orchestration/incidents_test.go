package orchestration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/types"
)

func TestCreateIncidentStampsDefaultDeadlines(t *testing.T) {
	svc, _ := newTestService(t)
	plan := planInHypercare(t, svc)

	inc, err := svc.CreateIncident(context.Background(), testScope, plan.Code, IncidentInput{
		Title: "Payment run stuck", Severity: types.SeverityP1, Reporter: "ap-team",
	})
	require.NoError(t, err)
	assert.Equal(t, types.IncidentOpen, inc.Status)
	assert.Equal(t, plan.ID, inc.PlanID)
	assert.True(t, inc.SLAResponseDeadline.Equal(testStart.Add(15*time.Minute)))
	assert.True(t, inc.SLAResolutionDeadline.Equal(testStart.Add(240*time.Minute)))
}

func TestCreateIncidentUsesOverridesThenConfig(t *testing.T) {
	svc, _ := newTestService(t)
	svc.slaFn = func() map[types.Severity]types.SLATarget {
		return map[types.Severity]types.SLATarget{
			types.SeverityP2: {ResponseMin: 45, ResolutionMin: 600},
			types.SeverityP3: {ResponseMin: 90, ResolutionMin: 900},
		}
	}
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	_, err := svc.SetSLAOverride(ctx, testScope, plan.ID, types.SeverityP2, 20, 300)
	require.NoError(t, err)

	p2, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "Slow MRP", Severity: types.SeverityP2})
	require.NoError(t, err)
	assert.True(t, p2.SLAResponseDeadline.Equal(testStart.Add(20*time.Minute)))
	assert.True(t, p2.SLAResolutionDeadline.Equal(testStart.Add(300*time.Minute)))

	p3, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "Report layout", Severity: types.SeverityP3})
	require.NoError(t, err)
	assert.True(t, p3.SLAResponseDeadline.Equal(testStart.Add(90*time.Minute)))

	targets, err := svc.EffectiveSLATargets(ctx, testScope, plan.ID)
	require.NoError(t, err)
	assert.Equal(t, types.SLATarget{ResponseMin: 20, ResolutionMin: 300}, targets[types.SeverityP2])
	assert.Equal(t, types.SLATarget{ResponseMin: 15, ResolutionMin: 240}, targets[types.SeverityP1])

	_, err = svc.SetSLAOverride(ctx, testScope, plan.ID, types.SeverityP1, 60, 30)
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCreateIncidentRequiresHypercare(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	plan := mustPlan(t, svc, "Wave 1")

	_, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "Too early", Severity: types.SeverityP3})
	assert.ErrorIs(t, err, types.ErrGuardFailed)

	live := planInHypercare(t, svc)
	_, err = svc.CreateIncident(ctx, testScope, live.ID, IncidentInput{Title: "x", Severity: "P9"})
	assert.ErrorIs(t, err, types.ErrValidation)

	future := clock.Now().Add(time.Hour)
	_, err = svc.CreateIncident(ctx, testScope, live.ID, IncidentInput{Title: "x", Severity: types.SeverityP4, ReportedAt: &future})
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestIncidentLifecycleAndSLA(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	inc, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "GR/IR mismatch", Severity: types.SeverityP1})
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	inc, err = svc.TransitionIncident(ctx, testScope, inc.ID, types.IncidentInvestigating, "bob")
	require.NoError(t, err)
	require.NotNil(t, inc.FirstResponseAt)
	assert.True(t, inc.FirstResponseAt.Equal(testStart.Add(10*time.Minute)))

	_, err = svc.TransitionIncident(ctx, testScope, inc.ID, types.IncidentClosed, "bob")
	assert.ErrorIs(t, err, types.ErrInvalidTransition)

	st, err := svc.IncidentSLA(ctx, testScope, inc.ID, testStart.Add(5*time.Hour))
	require.NoError(t, err)
	assert.False(t, st.ResponseBreached, "responded inside 15 minutes")
	assert.True(t, st.ResolutionBreached, "still open after 240 minutes")

	clock.Advance(time.Hour)
	inc, err = svc.TransitionIncident(ctx, testScope, inc.ID, types.IncidentResolved, "bob")
	require.NoError(t, err)
	require.NotNil(t, inc.ResolvedAt)

	st, err = svc.IncidentSLA(ctx, testScope, inc.ID, testStart.Add(10*time.Hour))
	require.NoError(t, err)
	assert.False(t, st.Breached(), "resolution time is frozen once resolved")

	inc, err = svc.TransitionIncident(ctx, testScope, inc.ID, types.IncidentClosed, "bob")
	require.NoError(t, err)
	assert.NotNil(t, inc.ClosedAt)
}

func TestRespondIncidentStampsOnce(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)
	inc, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "Login failures", Severity: types.SeverityP2})
	require.NoError(t, err)

	clock.Advance(40 * time.Minute)
	inc, err = svc.RespondIncident(ctx, testScope, inc.ID, "bob")
	require.NoError(t, err)
	require.NotNil(t, inc.FirstResponseAt)
	first := *inc.FirstResponseAt
	assert.Equal(t, types.IncidentOpen, inc.Status)

	clock.Advance(time.Hour)
	inc, err = svc.RespondIncident(ctx, testScope, inc.ID, "carol")
	require.NoError(t, err)
	assert.True(t, inc.FirstResponseAt.Equal(first))

	st, err := svc.IncidentSLA(ctx, testScope, inc.ID, time.Time{})
	require.NoError(t, err)
	assert.True(t, st.ResponseBreached, "P2 response target is 30 minutes")
}

func TestIncidentCommentsAndFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	plan := planInHypercare(t, svc)

	a, err := svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "A", Severity: types.SeverityP1})
	require.NoError(t, err)
	_, err = svc.CreateIncident(ctx, testScope, plan.ID, IncidentInput{Title: "B", Severity: types.SeverityP4})
	require.NoError(t, err)
	_, err = svc.TransitionIncident(ctx, testScope, a.ID, types.IncidentResolved, "bob")
	require.NoError(t, err)

	open, err := svc.ListIncidents(ctx, testScope, plan.ID, types.IncidentFilter{OpenOnly: true})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "B", open[0].Title)

	p1 := types.SeverityP1
	bySev, err := svc.ListIncidents(ctx, testScope, plan.ID, types.IncidentFilter{Severity: &p1})
	require.NoError(t, err)
	require.Len(t, bySev, 1)
	assert.Equal(t, a.ID, bySev[0].ID)

	_, err = svc.AddIncidentComment(ctx, testScope, a.ID, "bob", "root cause: missing tolerance key")
	require.NoError(t, err)
	_, err = svc.AddIncidentComment(ctx, testScope, a.ID, "bob", " ")
	assert.ErrorIs(t, err, types.ErrValidation)

	comments, err := svc.ListIncidentComments(ctx, testScope, a.ID)
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "bob", comments[0].Author)

	inc, err := svc.AssignIncident(ctx, testScope, a.ID, "carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", inc.Assignee)
}
