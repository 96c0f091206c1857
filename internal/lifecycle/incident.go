package lifecycle

import (
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

var incidentTransitions = map[types.IncidentStatus][]types.IncidentStatus{
	types.IncidentOpen:          {types.IncidentInvestigating, types.IncidentResolved},
	types.IncidentInvestigating: {types.IncidentResolved},
	types.IncidentResolved:      {types.IncidentClosed, types.IncidentInvestigating},
}

// IncidentAcceptsNew reports whether a plan in status s may take new
// hypercare incidents.
func IncidentAcceptsNew(s types.PlanStatus) bool {
	return s == types.PlanHypercare || s == types.PlanCompleted
}

// CheckIncidentTransition validates an incident status change.
func CheckIncidentTransition(inc *types.Incident, to types.IncidentStatus) error {
	if !to.IsValid() {
		return types.Invalid("status", "unknown incident status %q", to)
	}
	for _, s := range incidentTransitions[inc.Status] {
		if s == to {
			return nil
		}
	}
	return &types.InvalidTransitionError{Entity: "incident", ID: inc.ID, From: string(inc.Status), To: string(to)}
}

// ApplyIncidentTransition mutates inc to the target status. The first move
// out of open stamps first_response_at; reopening clears resolved_at.
func ApplyIncidentTransition(inc *types.Incident, to types.IncidentStatus, now time.Time) {
	now = now.UTC()
	if inc.Status == types.IncidentOpen && inc.FirstResponseAt == nil {
		inc.FirstResponseAt = &now
	}
	switch to {
	case types.IncidentResolved:
		inc.ResolvedAt = &now
	case types.IncidentClosed:
		inc.ClosedAt = &now
	case types.IncidentInvestigating:
		if inc.Status == types.IncidentResolved {
			inc.ResolvedAt = nil
		}
	}
	inc.Status = to
	inc.UpdatedAt = now
}

// Respond stamps first_response_at if unset and reports whether it changed.
func Respond(inc *types.Incident, now time.Time) bool {
	if inc.FirstResponseAt != nil {
		return false
	}
	now = now.UTC()
	inc.FirstResponseAt = &now
	inc.UpdatedAt = now
	return true
}
