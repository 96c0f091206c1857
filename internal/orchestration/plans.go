package orchestration

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/idgen"
	"github.com/steveyegge/cutover/internal/lifecycle"
	"github.com/steveyegge/cutover/internal/readiness"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// PlanInput holds the fields of a new plan.
type PlanInput struct {
	Name                   string
	Description            string
	PlannedStart           *time.Time
	PlannedEnd             *time.Time
	RollbackDeadline       *time.Time
	HypercareDurationWeeks int // 0 uses the configured default
	CreatedBy              string
}

// PlanUpdate holds optional field edits. Nil fields are left unchanged.
// Status and code are never editable here.
type PlanUpdate struct {
	Name                   *string
	Description            *string
	PlannedStart           *time.Time
	PlannedEnd             *time.Time
	RollbackDeadline       *time.Time
	HypercareDurationWeeks *int
}

// PlanReadiness is the Go/No-Go aggregate of a plan plus its rehearsal count.
type PlanReadiness struct {
	PlanID              string           `json:"plan_id"`
	Code                string           `json:"code"`
	Status              types.PlanStatus `json:"status"`
	Readiness           types.Readiness  `json:"readiness"`
	CompletedRehearsals int              `json:"completed_rehearsals"`
}

// CreatePlan creates a draft plan and assigns the next sequential code.
func (s *Service) CreatePlan(ctx context.Context, scope types.Scope, in PlanInput) (*types.Plan, error) {
	now := s.clock()
	weeks := in.HypercareDurationWeeks
	if weeks == 0 {
		weeks = s.weeks
	}
	plan := &types.Plan{
		ID:                     s.newID(),
		TenantID:               scope.TenantID,
		ProgramID:              scope.ProgramID,
		Name:                   strings.TrimSpace(in.Name),
		Description:            in.Description,
		Status:                 types.PlanDraft,
		PlannedStart:           utcPtr(in.PlannedStart),
		PlannedEnd:             utcPtr(in.PlannedEnd),
		RollbackDeadline:       utcPtr(in.RollbackDeadline),
		HypercareDurationWeeks: weeks,
		CreatedBy:              actorOr(in.CreatedBy),
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	err := s.write(ctx, "plan.create", scope, func(ctx context.Context, tx storage.Transaction) error {
		if err := tx.LockScope(ctx, scope); err != nil {
			return err
		}
		n, err := tx.NextPlanNumber(ctx, scope)
		if err != nil {
			return err
		}
		plan.Code = idgen.PlanCode(s.prefix, n)
		return tx.CreatePlan(ctx, plan)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("plan created", "plan", plan.Code, "id", plan.ID, "actor", plan.CreatedBy)
	return plan, nil
}

// GetPlan returns a plan by id or code.
func (s *Service) GetPlan(ctx context.Context, scope types.Scope, ref string) (*types.Plan, error) {
	var plan *types.Plan
	err := s.read(ctx, "plan.get", scope, func(ctx context.Context, q storage.Queries) error {
		var err error
		plan, err = resolvePlan(ctx, q, scope, ref)
		return err
	})
	return plan, err
}

// ListPlans returns plans in scope, optionally filtered by status.
func (s *Service) ListPlans(ctx context.Context, scope types.Scope, filter types.PlanFilter) ([]*types.Plan, error) {
	if filter.Status != nil && !filter.Status.IsValid() {
		return nil, types.Invalid("status", "unknown plan status %q", *filter.Status)
	}
	var plans []*types.Plan
	err := s.read(ctx, "plan.list", scope, func(ctx context.Context, q storage.Queries) error {
		var err error
		plans, err = q.ListPlans(ctx, scope, filter)
		return err
	})
	return plans, err
}

// UpdatePlan applies field edits.
func (s *Service) UpdatePlan(ctx context.Context, scope types.Scope, ref string, upd PlanUpdate) (*types.Plan, error) {
	var plan *types.Plan
	err := s.write(ctx, "plan.update", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		plan, err = resolvePlan(ctx, tx, scope, ref)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			plan.Name = strings.TrimSpace(*upd.Name)
		}
		if upd.Description != nil {
			plan.Description = *upd.Description
		}
		if upd.PlannedStart != nil {
			plan.PlannedStart = utcPtr(upd.PlannedStart)
		}
		if upd.PlannedEnd != nil {
			plan.PlannedEnd = utcPtr(upd.PlannedEnd)
		}
		if upd.RollbackDeadline != nil {
			plan.RollbackDeadline = utcPtr(upd.RollbackDeadline)
		}
		if upd.HypercareDurationWeeks != nil {
			plan.HypercareDurationWeeks = *upd.HypercareDurationWeeks
		}
		if err := plan.Validate(); err != nil {
			return err
		}
		plan.UpdatedAt = s.clock()
		return tx.UpdatePlan(ctx, scope, plan)
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// TransitionPlan moves a plan to target after checking the transition table
// and the guard for that pair.
func (s *Service) TransitionPlan(ctx context.Context, scope types.Scope, ref string, target types.PlanStatus, actor string) (*types.Plan, error) {
	var (
		plan *types.Plan
		from types.PlanStatus
	)
	err := s.write(ctx, "plan.transition", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		plan, err = resolvePlan(ctx, tx, scope, ref)
		if err != nil {
			return err
		}
		now := s.clock()
		facts := planFacts{q: tx, scope: scope, planID: plan.ID, now: now}
		if err := lifecycle.CheckPlanTransition(ctx, plan, target, facts); err != nil {
			return err
		}
		from = plan.Status
		lifecycle.ApplyPlanTransition(plan, target, now)
		if err := tx.UpdatePlanStatus(ctx, scope, plan, from); err != nil {
			if errors.Is(err, storage.ErrStatusChanged) {
				return s.planRaceError(ctx, tx, scope, plan.ID, plan.Code, target)
			}
			return err
		}
		return nil
	})
	if err != nil {
		if types.KindOf(err) == types.KindGuardFailed {
			s.log.Warn("plan transition blocked", "plan", ref, "to", target, "actor", actorOr(actor), "error", err)
		}
		return nil, err
	}
	s.log.Info("plan transitioned", "plan", plan.Code, "from", from, "to", plan.Status, "actor", actorOr(actor))
	s.emit(ctx, scope, eventbus.EventPlanTransitioned, plan.ID, plan.Code, actorOr(actor),
		map[string]any{"from": from, "to": plan.Status})
	return plan, nil
}

func (s *Service) planRaceError(ctx context.Context, q storage.Queries, scope types.Scope, id, code string, to types.PlanStatus) error {
	current, err := q.GetPlan(ctx, scope, id)
	if err != nil {
		return err
	}
	return lostRace("plan", code, string(current.Status), string(to))
}

// PlanReadiness aggregates the plan's Go/No-Go items.
func (s *Service) PlanReadiness(ctx context.Context, scope types.Scope, ref string) (*PlanReadiness, error) {
	var out *PlanReadiness
	err := s.read(ctx, "plan.readiness", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, ref)
		if err != nil {
			return err
		}
		items, err := q.ListGoNoGoItems(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		completed, err := q.CountRehearsals(ctx, scope, plan.ID, types.RehearsalCompleted)
		if err != nil {
			return err
		}
		out = &PlanReadiness{
			PlanID:              plan.ID,
			Code:                plan.Code,
			Status:              plan.Status,
			Readiness:           readiness.Aggregate(items),
			CompletedRehearsals: completed,
		}
		return nil
	})
	return out, err
}

// resolvePlan looks a plan up by id, falling back to its code.
func resolvePlan(ctx context.Context, q storage.Queries, scope types.Scope, ref string) (*types.Plan, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, types.Invalid("plan", "is required")
	}
	plan, err := q.GetPlan(ctx, scope, ref)
	if err == nil || !errors.Is(err, types.ErrNotFound) || !idgen.LooksLikePlanCode(ref) {
		return plan, err
	}
	return q.GetPlanByCode(ctx, scope, ref)
}

// requireOpenPlan rejects changes to plans that have been closed.
func requireOpenPlan(plan *types.Plan, what string) error {
	if plan.Status == types.PlanClosed {
		return &types.GuardFailedError{Entity: "plan", ID: plan.Code, Condition: "plan is closed; cannot " + what}
	}
	return nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
