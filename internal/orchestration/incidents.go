package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/lifecycle"
	"github.com/steveyegge/cutover/internal/sla"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// IncidentInput holds the fields of a new hypercare incident.
type IncidentInput struct {
	Title       string
	Description string
	Severity    types.Severity
	Reporter    string
	Assignee    string
	ReportedAt  *time.Time // defaults to now
}

// CreateIncident records an incident against a plan in hypercare (or just
// completed) and fixes its SLA deadlines from the plan override, the
// installation defaults, or the built-in table, in that order.
func (s *Service) CreateIncident(ctx context.Context, scope types.Scope, planRef string, in IncidentInput) (*types.Incident, error) {
	now := s.clock()
	reported := now
	if in.ReportedAt != nil {
		reported = in.ReportedAt.UTC()
	}
	inc := &types.Incident{
		ID:          s.newID(),
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Severity:    in.Severity,
		Status:      types.IncidentOpen,
		Reporter:    actorOr(in.Reporter),
		Assignee:    in.Assignee,
		ReportedAt:  reported,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := inc.Validate(); err != nil {
		return nil, err
	}
	if reported.After(now) {
		return nil, types.Invalid("reported_at", "cannot be in the future")
	}
	err := s.write(ctx, "incident.create", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if !lifecycle.IncidentAcceptsNew(plan.Status) {
			return &types.GuardFailedError{
				Entity:    "plan",
				ID:        plan.Code,
				Condition: fmt.Sprintf("incidents can only be raised in hypercare or completed plans (plan is %s)", plan.Status),
			}
		}
		overrides, err := tx.ListSLAOverrides(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		if err := sla.Stamp(inc, sla.NewTargets(s.slaDefaults(), overrides)); err != nil {
			return err
		}
		inc.PlanID = plan.ID
		return tx.CreateIncident(ctx, scope, inc)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("incident raised", "incident", inc.ID, "plan", inc.PlanID, "severity", inc.Severity,
		"response_deadline", inc.SLAResponseDeadline, "resolution_deadline", inc.SLAResolutionDeadline)
	s.emit(ctx, scope, eventbus.EventIncidentRaised, inc.PlanID, inc.ID, inc.Reporter,
		map[string]any{"severity": inc.Severity, "title": inc.Title})
	return inc, nil
}

func (s *Service) slaDefaults() map[types.Severity]types.SLATarget {
	if s.slaFn == nil {
		return nil
	}
	return s.slaFn()
}

// GetIncident returns one incident.
func (s *Service) GetIncident(ctx context.Context, scope types.Scope, id string) (*types.Incident, error) {
	var inc *types.Incident
	err := s.read(ctx, "incident.get", scope, func(ctx context.Context, q storage.Queries) error {
		var err error
		inc, err = q.GetIncident(ctx, scope, id)
		return err
	})
	return inc, err
}

// ListIncidents returns the plan's incidents, newest first.
func (s *Service) ListIncidents(ctx context.Context, scope types.Scope, planRef string, filter types.IncidentFilter) ([]*types.Incident, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, types.Invalid("status", "unknown incident status %q", *filter.Status)
	}
	if filter.Severity != nil && !filter.Severity.IsValid() {
		return nil, types.Invalid("severity", "invalid severity %q (expected P1-P4)", *filter.Severity)
	}
	var out []*types.Incident
	err := s.read(ctx, "incident.list", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListIncidents(ctx, scope, plan.ID, filter)
		return err
	})
	return out, err
}

// TransitionIncident moves an incident through open, investigating,
// resolved and closed.
func (s *Service) TransitionIncident(ctx context.Context, scope types.Scope, id string, target types.IncidentStatus, actor string) (*types.Incident, error) {
	var (
		inc  *types.Incident
		from types.IncidentStatus
	)
	err := s.write(ctx, "incident.transition", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		inc, err = tx.GetIncident(ctx, scope, id)
		if err != nil {
			return err
		}
		if err := lifecycle.CheckIncidentTransition(inc, target); err != nil {
			return err
		}
		from = inc.Status
		lifecycle.ApplyIncidentTransition(inc, target, s.clock())
		if err := tx.UpdateIncidentStatus(ctx, scope, inc, from); err != nil {
			if errors.Is(err, storage.ErrStatusChanged) {
				current, gerr := tx.GetIncident(ctx, scope, id)
				if gerr != nil {
					return gerr
				}
				return lostRace("incident", id, string(current.Status), string(target))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("incident transitioned", "incident", inc.ID, "plan", inc.PlanID, "from", from, "to", inc.Status, "actor", actorOr(actor))
	s.emit(ctx, scope, eventbus.EventIncidentTransitioned, inc.PlanID, inc.ID, actorOr(actor),
		map[string]any{"from": from, "to": inc.Status, "severity": inc.Severity})
	return inc, nil
}

// RespondIncident stamps first_response_at if it is not already set.
func (s *Service) RespondIncident(ctx context.Context, scope types.Scope, id, actor string) (*types.Incident, error) {
	var (
		inc     *types.Incident
		changed bool
	)
	err := s.write(ctx, "incident.respond", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		inc, err = tx.GetIncident(ctx, scope, id)
		if err != nil {
			return err
		}
		if changed = lifecycle.Respond(inc, s.clock()); !changed {
			return nil
		}
		return tx.UpdateIncident(ctx, scope, inc)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("incident responded", "incident", inc.ID, "plan", inc.PlanID, "actor", actorOr(actor),
			"response_breached", sla.ResponseBreached(inc, s.clock()))
	}
	return inc, nil
}

// AssignIncident sets the incident's assignee.
func (s *Service) AssignIncident(ctx context.Context, scope types.Scope, id, assignee string) (*types.Incident, error) {
	var inc *types.Incident
	err := s.write(ctx, "incident.assign", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		inc, err = tx.GetIncident(ctx, scope, id)
		if err != nil {
			return err
		}
		inc.Assignee = strings.TrimSpace(assignee)
		inc.UpdatedAt = s.clock()
		return tx.UpdateIncident(ctx, scope, inc)
	})
	if err != nil {
		return nil, err
	}
	return inc, nil
}

// IncidentSLA projects breach status at now. A zero now means the current
// instant. Nothing is stored.
func (s *Service) IncidentSLA(ctx context.Context, scope types.Scope, id string, now time.Time) (*types.SLAStatus, error) {
	if now.IsZero() {
		now = s.clock()
	}
	var out *types.SLAStatus
	err := s.read(ctx, "incident.sla", scope, func(ctx context.Context, q storage.Queries) error {
		inc, err := q.GetIncident(ctx, scope, id)
		if err != nil {
			return err
		}
		st := sla.Evaluate(inc, now)
		out = &st
		return nil
	})
	return out, err
}

// AddIncidentComment appends a comment to an incident.
func (s *Service) AddIncidentComment(ctx context.Context, scope types.Scope, incidentID, author, text string) (*types.IncidentComment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, types.Invalid("text", "is required")
	}
	c := &types.IncidentComment{
		ID:         s.newID(),
		IncidentID: incidentID,
		Author:     actorOr(author),
		Text:       text,
		CreatedAt:  s.clock(),
	}
	err := s.write(ctx, "incident.comment", scope, func(ctx context.Context, tx storage.Transaction) error {
		if _, err := tx.GetIncident(ctx, scope, incidentID); err != nil {
			return err
		}
		return tx.AddIncidentComment(ctx, scope, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListIncidentComments returns an incident's comments, oldest first.
func (s *Service) ListIncidentComments(ctx context.Context, scope types.Scope, incidentID string) ([]*types.IncidentComment, error) {
	var out []*types.IncidentComment
	err := s.read(ctx, "incident.comments", scope, func(ctx context.Context, q storage.Queries) error {
		if _, err := q.GetIncident(ctx, scope, incidentID); err != nil {
			return err
		}
		var err error
		out, err = q.ListIncidentComments(ctx, scope, incidentID)
		return err
	})
	return out, err
}

// SetSLAOverride sets the plan's targets for one severity. Incidents that
// already exist keep their deadlines.
func (s *Service) SetSLAOverride(ctx context.Context, scope types.Scope, planRef string, sev types.Severity, responseMin, resolutionMin int) (*types.HypercareSLA, error) {
	if !sev.IsValid() {
		return nil, types.Invalid("severity", "invalid severity %q (expected P1-P4)", sev)
	}
	target := types.SLATarget{ResponseMin: responseMin, ResolutionMin: resolutionMin}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	var o *types.HypercareSLA
	err := s.write(ctx, "sla.override", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		o = &types.HypercareSLA{PlanID: plan.ID, Severity: sev, Target: target, UpdatedAt: s.clock()}
		return tx.SetSLAOverride(ctx, scope, o)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("sla override set", "plan", o.PlanID, "severity", sev, "response_min", responseMin, "resolution_min", resolutionMin)
	return o, nil
}

// ListSLAOverrides returns the plan's SLA overrides.
func (s *Service) ListSLAOverrides(ctx context.Context, scope types.Scope, planRef string) ([]*types.HypercareSLA, error) {
	var out []*types.HypercareSLA
	err := s.read(ctx, "sla.overrides", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListSLAOverrides(ctx, scope, plan.ID)
		return err
	})
	return out, err
}

// EffectiveSLATargets resolves the targets a new incident of each severity
// would get on the plan right now.
func (s *Service) EffectiveSLATargets(ctx context.Context, scope types.Scope, planRef string) (map[types.Severity]types.SLATarget, error) {
	out := make(map[types.Severity]types.SLATarget, 4)
	err := s.read(ctx, "sla.targets", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		overrides, err := q.ListSLAOverrides(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		targets := sla.NewTargets(s.slaDefaults(), overrides)
		for _, sev := range types.AllSeverities() {
			t, err := targets.For(sev)
			if err != nil {
				return err
			}
			out[sev] = t
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
