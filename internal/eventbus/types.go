package eventbus

import (
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// EventType identifies an event flowing through the bus.
type EventType string

const (
	EventPlanTransitioned     EventType = "plan.transitioned"
	EventTaskTransitioned     EventType = "task.transitioned"
	EventVerdictRecorded      EventType = "gonogo.verdict"
	EventIncidentRaised       EventType = "incident.raised"
	EventIncidentTransitioned EventType = "incident.transitioned"
	EventEscalationRaised     EventType = "escalation.raised"
	EventSignoffRecorded      EventType = "exit.signoff"
)

// AllEvents lists every event type, in the order above.
func AllEvents() []EventType {
	return []EventType{
		EventPlanTransitioned,
		EventTaskTransitioned,
		EventVerdictRecorded,
		EventIncidentRaised,
		EventIncidentTransitioned,
		EventEscalationRaised,
		EventSignoffRecorded,
	}
}

// ParseEventTypes converts names to event types, rejecting unknown ones.
// An empty list means every type.
func ParseEventTypes(names []string) ([]EventType, error) {
	if len(names) == 0 {
		return AllEvents(), nil
	}
	known := make(map[EventType]bool)
	for _, t := range AllEvents() {
		known[t] = true
	}
	out := make([]EventType, 0, len(names))
	for _, n := range names {
		t := EventType(n)
		if !known[t] {
			return nil, types.Invalid("events", "unknown event type %q", n)
		}
		out = append(out, t)
	}
	return out, nil
}

// Event is one committed state change. Subject is the id of the entity that
// changed; Data carries type-specific fields (from/to status, severity,
// level and so on).
type Event struct {
	Type    EventType      `json:"type"`
	Scope   types.Scope    `json:"scope"`
	PlanID  string         `json:"plan_id,omitempty"`
	Subject string         `json:"subject"`
	Actor   string         `json:"actor,omitempty"`
	At      time.Time      `json:"at"`
	Data    map[string]any `json:"data,omitempty"`
}
