package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/types"
)

var reported = time.Date(2026, 4, 6, 9, 0, 0, 0, time.UTC)

func openIncident(sev types.Severity) *types.Incident {
	return &types.Incident{ID: "inc-1", PlanID: "plan-1", Severity: sev, Status: types.IncidentOpen, ReportedAt: reported}
}

func TestRulesForFallsBackToDefaults(t *testing.T) {
	plan := []*types.EscalationRule{
		{Severity: types.SeverityP2, LevelOrder: 2, TriggerAfterMin: 90, TargetRole: "b", Basis: types.BasisReported, IsActive: true},
		{Severity: types.SeverityP2, LevelOrder: 1, TriggerAfterMin: 10, TargetRole: "a", Basis: types.BasisReported, IsActive: true},
	}
	p2 := RulesFor(plan, types.SeverityP2)
	require.Len(t, p2, 2)
	assert.Equal(t, 1, p2[0].LevelOrder)
	assert.Equal(t, "a", p2[0].TargetRole)

	p1 := RulesFor(plan, types.SeverityP1)
	require.Len(t, p1, 3)
	for _, r := range p1 {
		require.NoError(t, r.Validate())
	}
}

func TestEvaluateIsIdempotent(t *testing.T) {
	inc := openIncident(types.SeverityP1)
	rules := DefaultRules(types.SeverityP1)
	now := reported.Add(20 * time.Minute)

	first := Evaluate(inc, rules, nil, now)
	require.Len(t, first, 1)
	assert.Equal(t, 1, first[0].Level)
	assert.True(t, first[0].IsAuto)
	assert.Equal(t, "hypercare_lead", first[0].TargetRole)

	second := Evaluate(inc, rules, first, now)
	assert.Empty(t, second, "re-evaluating must not duplicate level 1")
}

func TestEvaluateStrictlyAfterTrigger(t *testing.T) {
	inc := openIncident(types.SeverityP1)
	rules := DefaultRules(types.SeverityP1)

	assert.Empty(t, Evaluate(inc, rules, nil, reported.Add(15*time.Minute)))
	assert.Len(t, Evaluate(inc, rules, nil, reported.Add(15*time.Minute+time.Second)), 1)
}

func TestEvaluateFiresSeveralLevelsInOrder(t *testing.T) {
	inc := openIncident(types.SeverityP1)
	events := Evaluate(inc, DefaultRules(types.SeverityP1), nil, reported.Add(3*time.Hour))
	require.Len(t, events, 3)
	for i, ev := range events {
		assert.Equal(t, i+1, ev.Level)
	}
}

func TestEvaluateSkipsClosedAndInactive(t *testing.T) {
	resolved := openIncident(types.SeverityP1)
	resolved.Status = types.IncidentResolved
	assert.Empty(t, Evaluate(resolved, DefaultRules(types.SeverityP1), nil, reported.Add(24*time.Hour)))

	rules := []*types.EscalationRule{
		{Severity: types.SeverityP3, LevelOrder: 1, TriggerAfterMin: 5, TargetRole: "x", Basis: types.BasisReported, IsActive: false},
		{Severity: types.SeverityP3, LevelOrder: 2, TriggerAfterMin: 5, TargetRole: "y", Basis: types.BasisReported, IsActive: true},
	}
	events := Evaluate(openIncident(types.SeverityP3), rules, nil, reported.Add(time.Hour))
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Level)
}

func TestEvaluateLastEscalationBasis(t *testing.T) {
	inc := openIncident(types.SeverityP2)
	rules := []*types.EscalationRule{
		{Severity: types.SeverityP2, LevelOrder: 1, TriggerAfterMin: 30, TargetRole: "lead", Basis: types.BasisReported, IsActive: true},
		{Severity: types.SeverityP2, LevelOrder: 2, TriggerAfterMin: 60, TargetRole: "manager", Basis: types.BasisLastEscalation, IsActive: true},
	}

	level1 := &types.EscalationEvent{IncidentID: inc.ID, Level: 1, TriggeredAt: reported.Add(40 * time.Minute)}

	// 90 minutes after reporting but only 50 after level 1.
	assert.Empty(t, Evaluate(inc, rules, []*types.EscalationEvent{level1}, reported.Add(90*time.Minute)))

	events := Evaluate(inc, rules, []*types.EscalationEvent{level1}, reported.Add(101*time.Minute))
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Level)

	// Without a level 1 event the level 2 rule waits.
	onlyUpper := rules[1:]
	onlyUpper[0].LevelOrder = 2
	assert.Len(t, Evaluate(inc, onlyUpper, nil, reported.Add(61*time.Minute)), 1, "lowest rule falls back to reported_at")
}

func TestManual(t *testing.T) {
	inc := openIncident(types.SeverityP2)
	rules := DefaultRules(types.SeverityP2)
	now := reported.Add(5 * time.Minute)

	ev, err := Manual(inc, rules, nil, 0, "alice", "customer escalation", now)
	require.NoError(t, err)
	assert.Equal(t, 1, ev.Level)
	assert.False(t, ev.IsAuto)
	assert.Equal(t, "alice", ev.TriggeredBy)

	next, err := Manual(inc, rules, []*types.EscalationEvent{ev}, 0, "alice", "", now)
	require.NoError(t, err)
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, "cutover_manager", next.TargetRole)

	_, err = Manual(inc, rules, []*types.EscalationEvent{ev}, 1, "alice", "", now)
	assert.ErrorIs(t, err, types.ErrDuplicate)

	inc.Status = types.IncidentClosed
	_, err = Manual(inc, rules, nil, 0, "alice", "", now)
	assert.ErrorIs(t, err, types.ErrGuardFailed)
}

func TestAcknowledge(t *testing.T) {
	ev := &types.EscalationEvent{Level: 1}
	first := reported.Add(time.Minute)

	assert.True(t, Acknowledge(ev, "bob", first))
	assert.False(t, Acknowledge(ev, "carol", first.Add(time.Hour)))
	assert.Equal(t, first, *ev.AcknowledgedAt)
	assert.Equal(t, "bob", ev.AcknowledgedBy)
}
