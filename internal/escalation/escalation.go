// Package escalation evaluates the severity-ordered escalation matrix
// against hypercare incidents.
//
// The engine is pure: it plans new events from an incident, its rule set
// and the events already recorded. Idempotency comes from the existence
// check on (incident, level) here plus the unique key in storage.
package escalation

import (
	"fmt"
	"slices"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

type defaultRule struct {
	level   int
	after   int
	role    string
	basisOf types.EscalationBasis
}

var defaultMatrix = map[types.Severity][]defaultRule{
	types.SeverityP1: {
		{1, 15, "hypercare_lead", types.BasisReported},
		{2, 60, "cutover_manager", types.BasisReported},
		{3, 120, "program_director", types.BasisReported},
	},
	types.SeverityP2: {
		{1, 30, "hypercare_lead", types.BasisReported},
		{2, 240, "cutover_manager", types.BasisReported},
	},
	types.SeverityP3: {
		{1, 240, "hypercare_lead", types.BasisReported},
	},
	types.SeverityP4: {
		{1, 1440, "hypercare_lead", types.BasisReported},
	},
}

// DefaultRules returns the built-in matrix rows for sev.
func DefaultRules(sev types.Severity) []*types.EscalationRule {
	rows := defaultMatrix[sev]
	out := make([]*types.EscalationRule, 0, len(rows))
	for _, r := range rows {
		out = append(out, &types.EscalationRule{
			Severity:        sev,
			LevelOrder:      r.level,
			TriggerAfterMin: r.after,
			TargetRole:      r.role,
			Basis:           r.basisOf,
			IsActive:        true,
		})
	}
	return out
}

// RulesFor selects the rules that apply to sev from a plan's rule set,
// sorted by level. A plan with no rows for sev uses the built-in matrix.
func RulesFor(planRules []*types.EscalationRule, sev types.Severity) []*types.EscalationRule {
	var out []*types.EscalationRule
	for _, r := range planRules {
		if r.Severity == sev {
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return DefaultRules(sev)
	}
	slices.SortFunc(out, func(a, b *types.EscalationRule) int { return a.LevelOrder - b.LevelOrder })
	return out
}

// Evaluate returns the events that should fire for inc at now, in
// ascending level order. Nothing fires for resolved or closed incidents,
// for inactive rules, or for levels that already have an event. A rule
// fires once elapsed time strictly exceeds its trigger.
func Evaluate(inc *types.Incident, rules []*types.EscalationRule, existing []*types.EscalationEvent, now time.Time) []*types.EscalationEvent {
	if !inc.IsOpen() {
		return nil
	}
	now = now.UTC()
	fired := make(map[int]time.Time, len(existing))
	for _, ev := range existing {
		fired[ev.Level] = ev.TriggeredAt
	}

	lowest := 0
	for _, r := range rules {
		if r.IsActive && (lowest == 0 || r.LevelOrder < lowest) {
			lowest = r.LevelOrder
		}
	}

	var out []*types.EscalationEvent
	for _, r := range sortedRules(rules) {
		if !r.IsActive {
			continue
		}
		if _, done := fired[r.LevelOrder]; done {
			continue
		}
		ref, ok := referenceTime(inc, r, fired, lowest)
		if !ok {
			continue
		}
		trigger := time.Duration(r.TriggerAfterMin) * time.Minute
		if now.Sub(ref) <= trigger {
			continue
		}
		ev := &types.EscalationEvent{
			IncidentID:  inc.ID,
			PlanID:      inc.PlanID,
			Level:       r.LevelOrder,
			TargetRole:  r.TargetRole,
			IsAuto:      true,
			Reason:      fmt.Sprintf("%s open %s past %dm trigger", inc.Severity, now.Sub(ref).Truncate(time.Minute), r.TriggerAfterMin),
			TriggeredAt: now,
			TriggeredBy: "system",
		}
		out = append(out, ev)
		fired[r.LevelOrder] = now
	}
	return out
}

// referenceTime picks the instant a rule measures elapsed time from. For
// the last_escalation basis that is the latest event below the rule's
// level; the lowest active rule falls back to reported_at, any other rule
// waits until a lower level has fired.
func referenceTime(inc *types.Incident, r *types.EscalationRule, fired map[int]time.Time, lowest int) (time.Time, bool) {
	if r.Basis != types.BasisLastEscalation {
		return inc.ReportedAt, true
	}
	var latest time.Time
	found := false
	for level, at := range fired {
		if level < r.LevelOrder && (!found || at.After(latest)) {
			latest, found = at, true
		}
	}
	if found {
		return latest, true
	}
	if r.LevelOrder == lowest {
		return inc.ReportedAt, true
	}
	return time.Time{}, false
}

// Manual builds a manually requested escalation event. level 0 means the
// next level above the highest existing event.
func Manual(inc *types.Incident, rules []*types.EscalationRule, existing []*types.EscalationEvent, level int, actor, reason string, now time.Time) (*types.EscalationEvent, error) {
	if !inc.IsOpen() {
		return nil, &types.GuardFailedError{
			Entity:    "incident",
			ID:        inc.ID,
			Condition: fmt.Sprintf("cannot escalate a %s incident", inc.Status),
		}
	}
	if level < 0 {
		return nil, types.Invalid("level", "must be positive (got %d)", level)
	}
	if level == 0 {
		level = NextLevel(existing)
	}
	for _, ev := range existing {
		if ev.Level == level {
			return nil, &types.DuplicateError{Entity: "escalation", Key: fmt.Sprintf("%s level %d", inc.ID, level)}
		}
	}
	ev := &types.EscalationEvent{
		IncidentID:  inc.ID,
		PlanID:      inc.PlanID,
		Level:       level,
		IsAuto:      false,
		Reason:      reason,
		TriggeredAt: now.UTC(),
		TriggeredBy: actor,
	}
	for _, r := range rules {
		if r.LevelOrder == level {
			ev.TargetRole = r.TargetRole
			break
		}
	}
	return ev, nil
}

// NextLevel returns one above the highest recorded level.
func NextLevel(existing []*types.EscalationEvent) int {
	highest := 0
	for _, ev := range existing {
		if ev.Level > highest {
			highest = ev.Level
		}
	}
	return highest + 1
}

// Acknowledge stamps the acknowledgment once. It reports whether ev changed;
// a second call leaves the original timestamp and actor in place.
func Acknowledge(ev *types.EscalationEvent, actor string, now time.Time) bool {
	if ev.AcknowledgedAt != nil {
		return false
	}
	now = now.UTC()
	ev.AcknowledgedAt = &now
	ev.AcknowledgedBy = actor
	return true
}

func sortedRules(rules []*types.EscalationRule) []*types.EscalationRule {
	out := slices.Clone(rules)
	slices.SortStableFunc(out, func(a, b *types.EscalationRule) int { return a.LevelOrder - b.LevelOrder })
	return out
}
