package orchestration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/readiness"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// CriterionInput holds the fields of a new exit criterion.
type CriterionInput struct {
	Name        string
	Description string
	Type        types.CriterionType
	Metric      types.ExitMetric // auto only
	Threshold   float64          // sla_compliance only; 0 uses the configured default
	Mandatory   bool
}

// ExitStatus summarises whether hypercare could close right now.
type ExitStatus struct {
	PlanID   string                 `json:"plan_id"`
	Code     string                 `json:"code"`
	Status   types.PlanStatus       `json:"status"`
	Criteria []*types.ExitCriterion `json:"criteria"`
	Signoffs []*types.ExitSignoff   `json:"signoffs"`
	Blockers []string               `json:"blockers"`
	CanClose bool                   `json:"can_close"`
}

// AddExitCriterion adds a pending exit criterion to the plan.
func (s *Service) AddExitCriterion(ctx context.Context, scope types.Scope, planRef string, in CriterionInput) (*types.ExitCriterion, error) {
	now := s.clock()
	c := &types.ExitCriterion{
		ID:          s.newID(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        in.Type,
		Metric:      in.Metric,
		Threshold:   in.Threshold,
		Mandatory:   in.Mandatory,
		Status:      types.CriterionPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Type == types.CriterionAuto && c.Metric == types.MetricSLACompliance && c.Threshold == 0 {
		c.Threshold = s.exitTh
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	err := s.write(ctx, "exit.criterion.add", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "add exit criteria"); err != nil {
			return err
		}
		c.PlanID = plan.ID
		return tx.CreateExitCriterion(ctx, scope, c)
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListExitCriteria returns the plan's exit criteria as stored.
func (s *Service) ListExitCriteria(ctx context.Context, scope types.Scope, planRef string) ([]*types.ExitCriterion, error) {
	var out []*types.ExitCriterion
	err := s.read(ctx, "exit.criteria", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListExitCriteria(ctx, scope, plan.ID)
		return err
	})
	return out, err
}

// EvaluateExitCriteria recomputes every auto criterion from the plan's
// incidents at now and stores the results. Manual criteria are untouched.
func (s *Service) EvaluateExitCriteria(ctx context.Context, scope types.Scope, planRef string, now time.Time, actor string) ([]*types.ExitCriterion, error) {
	if now.IsZero() {
		now = s.clock()
	}
	var out []*types.ExitCriterion
	err := s.write(ctx, "exit.evaluate", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		out, err = refreshAutoCriteria(ctx, tx, scope, plan.ID, now, actorOr(actor))
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetExitCriterionStatus sets a criterion's status. The manual path (auto
// false) only accepts manual criteria; the auto path may never mark a
// manual criterion met.
func (s *Service) SetExitCriterionStatus(ctx context.Context, scope types.Scope, id string, status types.CriterionStatus, evidence, actor string, auto bool) (*types.ExitCriterion, error) {
	var c *types.ExitCriterion
	err := s.write(ctx, "exit.criterion.status", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		c, err = tx.GetExitCriterion(ctx, scope, id)
		if err != nil {
			return err
		}
		if err := readiness.CheckStatusChange(c, status, auto); err != nil {
			return err
		}
		now := s.clock()
		c.Status = status
		c.Evidence = evidence
		if status == types.CriterionPending {
			c.EvaluatedAt = nil
			c.EvaluatedBy = ""
		} else {
			c.EvaluatedAt = &now
			c.EvaluatedBy = actorOr(actor)
		}
		c.UpdatedAt = now
		return tx.UpdateExitCriterion(ctx, scope, c)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("exit criterion set", "criterion", c.ID, "plan", c.PlanID, "status", status, "actor", actorOr(actor))
	return c, nil
}

// RecordSignoff records an exit decision on a plan in hypercare.
func (s *Service) RecordSignoff(ctx context.Context, scope types.Scope, planRef, approver string, decision types.SignoffDecision, comment string) (*types.ExitSignoff, error) {
	if !decision.IsValid() {
		return nil, types.Invalid("decision", "unknown decision %q (expected approved, rejected or override_approved)", decision)
	}
	if strings.TrimSpace(approver) == "" {
		return nil, types.Invalid("approver", "is required")
	}
	if decision == types.SignoffOverrideApproved && strings.TrimSpace(comment) == "" {
		return nil, types.Invalid("comment", "is required for an override approval")
	}
	var so *types.ExitSignoff
	err := s.write(ctx, "exit.signoff", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if plan.Status != types.PlanHypercare {
			return &types.GuardFailedError{
				Entity:    "plan",
				ID:        plan.Code,
				Condition: fmt.Sprintf("exit sign-off requires hypercare (plan is %s)", plan.Status),
			}
		}
		so = &types.ExitSignoff{
			ID:       s.newID(),
			PlanID:   plan.ID,
			Approver: strings.TrimSpace(approver),
			Decision: decision,
			Comment:  comment,
			SignedAt: s.clock(),
		}
		return tx.CreateSignoff(ctx, scope, so)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("exit sign-off recorded", "plan", so.PlanID, "approver", so.Approver, "decision", decision)
	s.emit(ctx, scope, eventbus.EventSignoffRecorded, so.PlanID, so.ID, so.Approver,
		map[string]any{"decision": decision})
	return so, nil
}

// ListSignoffs returns the plan's exit sign-offs.
func (s *Service) ListSignoffs(ctx context.Context, scope types.Scope, planRef string) ([]*types.ExitSignoff, error) {
	var out []*types.ExitSignoff
	err := s.read(ctx, "exit.signoffs", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListSignoffs(ctx, scope, plan.ID)
		return err
	})
	return out, err
}

// ExitStatus reports what still blocks hypercare from closing. Auto
// criteria are evaluated at now in memory; nothing is stored.
func (s *Service) ExitStatus(ctx context.Context, scope types.Scope, planRef string, now time.Time) (*ExitStatus, error) {
	if now.IsZero() {
		now = s.clock()
	}
	var out *ExitStatus
	err := s.read(ctx, "exit.status", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		criteria, err := q.ListExitCriteria(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		incidents, err := q.ListIncidents(ctx, scope, plan.ID, types.IncidentFilter{})
		if err != nil {
			return err
		}
		if _, err := applyAutoEvaluations(criteria, incidents, now, SystemActor); err != nil {
			return err
		}
		signoffs, err := q.ListSignoffs(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		blockers := readiness.CloseBlockers(criteria, signoffs)
		out = &ExitStatus{
			PlanID:   plan.ID,
			Code:     plan.Code,
			Status:   plan.Status,
			Criteria: criteria,
			Signoffs: signoffs,
			Blockers: blockers,
			CanClose: plan.Status == types.PlanHypercare && len(blockers) == 0,
		}
		return nil
	})
	return out, err
}

// refreshAutoCriteria evaluates the plan's auto criteria, persists the ones
// whose outcome changed and returns every criterion.
func refreshAutoCriteria(ctx context.Context, q storage.Queries, scope types.Scope, planID string, now time.Time, actor string) ([]*types.ExitCriterion, error) {
	criteria, err := q.ListExitCriteria(ctx, scope, planID)
	if err != nil {
		return nil, err
	}
	incidents, err := q.ListIncidents(ctx, scope, planID, types.IncidentFilter{})
	if err != nil {
		return nil, err
	}
	changed, err := applyAutoEvaluations(criteria, incidents, now, actor)
	if err != nil {
		return nil, err
	}
	for _, c := range changed {
		if err := q.UpdateExitCriterion(ctx, scope, c); err != nil {
			return nil, err
		}
	}
	return criteria, nil
}

// applyAutoEvaluations updates auto criteria in place and returns those
// whose status or evidence changed.
func applyAutoEvaluations(criteria []*types.ExitCriterion, incidents []*types.Incident, now time.Time, actor string) ([]*types.ExitCriterion, error) {
	now = now.UTC()
	var changed []*types.ExitCriterion
	for _, c := range criteria {
		if c.Type != types.CriterionAuto {
			continue
		}
		ev, err := readiness.EvaluateAuto(c, incidents, now)
		if err != nil {
			return nil, err
		}
		if ev.Status == c.Status && ev.Evidence == c.Evidence {
			continue
		}
		c.Status = ev.Status
		c.Evidence = ev.Evidence
		c.EvaluatedAt = &now
		c.EvaluatedBy = actor
		c.UpdatedAt = now
		changed = append(changed, c)
	}
	return changed, nil
}
