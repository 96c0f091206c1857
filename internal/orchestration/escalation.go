package orchestration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/steveyegge/cutover/internal/escalation"
	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// RuleInput holds one escalation matrix row for a plan.
type RuleInput struct {
	Severity        types.Severity
	LevelOrder      int
	TriggerAfterMin int
	TargetRole      string
	Basis           types.EscalationBasis // defaults to reported
	Active          bool
}

// SetEscalationRule creates or replaces the plan's rule for
// (severity, level). Once a plan has any rule for a severity, the built-in
// matrix no longer applies to that severity.
func (s *Service) SetEscalationRule(ctx context.Context, scope types.Scope, planRef string, in RuleInput) (*types.EscalationRule, error) {
	rule := &types.EscalationRule{
		Severity:        in.Severity,
		LevelOrder:      in.LevelOrder,
		TriggerAfterMin: in.TriggerAfterMin,
		TargetRole:      strings.TrimSpace(in.TargetRole),
		Basis:           in.Basis,
		IsActive:        in.Active,
	}
	if rule.Basis == "" {
		rule.Basis = types.BasisReported
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	err := s.write(ctx, "escalation.rule", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		rule.PlanID = plan.ID
		return tx.SetEscalationRule(ctx, scope, rule)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("escalation rule set", "plan", rule.PlanID, "severity", rule.Severity, "level", rule.LevelOrder,
		"trigger_after_min", rule.TriggerAfterMin, "role", rule.TargetRole, "active", rule.IsActive)
	return rule, nil
}

// ListEscalationRules returns the plan's own rules ordered by severity and
// level. Severities without plan rules fall back to the built-in matrix,
// which EffectiveEscalationRules includes.
func (s *Service) ListEscalationRules(ctx context.Context, scope types.Scope, planRef string) ([]*types.EscalationRule, error) {
	var out []*types.EscalationRule
	err := s.read(ctx, "escalation.rules", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListEscalationRules(ctx, scope, plan.ID)
		return err
	})
	return out, err
}

// EffectiveEscalationRules returns the matrix that evaluation actually
// uses for every severity.
func (s *Service) EffectiveEscalationRules(ctx context.Context, scope types.Scope, planRef string) ([]*types.EscalationRule, error) {
	planRules, err := s.ListEscalationRules(ctx, scope, planRef)
	if err != nil {
		return nil, err
	}
	var out []*types.EscalationRule
	for _, sev := range types.AllSeverities() {
		out = append(out, escalation.RulesFor(planRules, sev)...)
	}
	return out, nil
}

// EvaluateEscalations fires every due rule for the plan's open incidents
// and returns the events created. Running it again at the same instant
// creates nothing: at most one event exists per (incident, level).
func (s *Service) EvaluateEscalations(ctx context.Context, scope types.Scope, planRef string, now time.Time) ([]*types.EscalationEvent, error) {
	if now.IsZero() {
		now = s.clock()
	}
	var created []*types.EscalationEvent
	err := s.write(ctx, "escalation.evaluate", scope, func(ctx context.Context, tx storage.Transaction) error {
		created = nil
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		incidents, err := tx.ListIncidents(ctx, scope, plan.ID, types.IncidentFilter{OpenOnly: true})
		if err != nil {
			return err
		}
		planRules, err := tx.ListEscalationRules(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		for _, inc := range incidents {
			existing, err := tx.ListEscalationEvents(ctx, scope, inc.ID)
			if err != nil {
				return err
			}
			due := escalation.Evaluate(inc, escalation.RulesFor(planRules, inc.Severity), existing, now)
			for _, ev := range due {
				ev.ID = s.newID()
				if err := tx.CreateEscalationEvent(ctx, scope, ev); err != nil {
					if errors.Is(err, types.ErrDuplicate) {
						continue // another evaluator got there first
					}
					return err
				}
				created = append(created, ev)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, ev := range created {
		s.log.Warn("incident escalated", "incident", ev.IncidentID, "plan", ev.PlanID, "level", ev.Level, "role", ev.TargetRole, "auto", true)
		s.emitEscalation(ctx, scope, ev)
	}
	return created, nil
}

// Escalate records a manual escalation. level 0 picks the next level above
// the highest existing event. An existing event at the level is a
// DuplicateError; resolved or closed incidents cannot be escalated.
func (s *Service) Escalate(ctx context.Context, scope types.Scope, incidentID string, level int, reason, actor string) (*types.EscalationEvent, error) {
	var ev *types.EscalationEvent
	err := s.write(ctx, "escalation.manual", scope, func(ctx context.Context, tx storage.Transaction) error {
		inc, err := tx.GetIncident(ctx, scope, incidentID)
		if err != nil {
			return err
		}
		planRules, err := tx.ListEscalationRules(ctx, scope, inc.PlanID)
		if err != nil {
			return err
		}
		existing, err := tx.ListEscalationEvents(ctx, scope, inc.ID)
		if err != nil {
			return err
		}
		ev, err = escalation.Manual(inc, escalation.RulesFor(planRules, inc.Severity), existing, level, actorOr(actor), reason, s.clock())
		if err != nil {
			return err
		}
		ev.ID = s.newID()
		return tx.CreateEscalationEvent(ctx, scope, ev)
	})
	if err != nil {
		return nil, err
	}
	s.log.Warn("incident escalated", "incident", ev.IncidentID, "plan", ev.PlanID, "level", ev.Level, "role", ev.TargetRole, "auto", false, "actor", ev.TriggeredBy)
	s.emitEscalation(ctx, scope, ev)
	return ev, nil
}

func (s *Service) emitEscalation(ctx context.Context, scope types.Scope, ev *types.EscalationEvent) {
	s.emit(ctx, scope, eventbus.EventEscalationRaised, ev.PlanID, ev.IncidentID, ev.TriggeredBy, map[string]any{
		"escalation_id": ev.ID,
		"level":         ev.Level,
		"target_role":   ev.TargetRole,
		"reason":        ev.Reason,
	})
}

// AcknowledgeEscalation stamps the acknowledgment once. Later calls return
// the event unchanged.
func (s *Service) AcknowledgeEscalation(ctx context.Context, scope types.Scope, eventID, actor string) (*types.EscalationEvent, error) {
	var (
		ev      *types.EscalationEvent
		changed bool
	)
	err := s.write(ctx, "escalation.ack", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		ev, err = tx.GetEscalationEvent(ctx, scope, eventID)
		if err != nil {
			return err
		}
		if changed = escalation.Acknowledge(ev, actorOr(actor), s.clock()); !changed {
			return nil
		}
		return tx.UpdateEscalationEvent(ctx, scope, ev)
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.log.Info("escalation acknowledged", "event", ev.ID, "incident", ev.IncidentID, "level", ev.Level, "actor", ev.AcknowledgedBy)
	}
	return ev, nil
}

// ListEscalationEvents returns an incident's escalation history by level.
func (s *Service) ListEscalationEvents(ctx context.Context, scope types.Scope, incidentID string) ([]*types.EscalationEvent, error) {
	var out []*types.EscalationEvent
	err := s.read(ctx, "escalation.events", scope, func(ctx context.Context, q storage.Queries) error {
		if _, err := q.GetIncident(ctx, scope, incidentID); err != nil {
			return err
		}
		var err error
		out, err = q.ListEscalationEvents(ctx, scope, incidentID)
		return err
	})
	return out, err
}
