package orchestration

import (
	"context"
	"errors"
	"strings"

	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/readiness"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// GoNoGoInput holds the fields of a new readiness checklist item.
type GoNoGoInput struct {
	Criterion    string
	SourceDomain string
	Owner        string
}

// CreateRehearsal schedules the plan's next rehearsal.
func (s *Service) CreateRehearsal(ctx context.Context, scope types.Scope, planRef, notes string) (*types.Rehearsal, error) {
	var r *types.Rehearsal
	err := s.write(ctx, "rehearsal.create", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if plan, err = lockedPlan(ctx, tx, scope, plan.ID); err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "schedule rehearsals"); err != nil {
			return err
		}
		n, err := tx.NextRehearsalNumber(ctx, scope, plan.ID)
		if err != nil {
			return err
		}
		now := s.clock()
		r = &types.Rehearsal{
			ID:        s.newID(),
			PlanID:    plan.ID,
			Number:    n,
			Status:    types.RehearsalPlanned,
			Notes:     notes,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return tx.CreateRehearsal(ctx, scope, r)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("rehearsal scheduled", "rehearsal", r.ID, "plan", r.PlanID, "number", r.Number)
	return r, nil
}

// StartRehearsal moves a planned rehearsal to in_progress.
func (s *Service) StartRehearsal(ctx context.Context, scope types.Scope, id, actor string) (*types.Rehearsal, error) {
	return s.transitionRehearsal(ctx, scope, id, types.RehearsalInProgress, actor)
}

// CompleteRehearsal completes a rehearsal and snapshots metrics from the
// plan's current tasks.
func (s *Service) CompleteRehearsal(ctx context.Context, scope types.Scope, id, actor string) (*types.Rehearsal, error) {
	return s.transitionRehearsal(ctx, scope, id, types.RehearsalCompleted, actor)
}

// CancelRehearsal cancels a planned or running rehearsal.
func (s *Service) CancelRehearsal(ctx context.Context, scope types.Scope, id, actor string) (*types.Rehearsal, error) {
	return s.transitionRehearsal(ctx, scope, id, types.RehearsalCancelled, actor)
}

func (s *Service) transitionRehearsal(ctx context.Context, scope types.Scope, id string, to types.RehearsalStatus, actor string) (*types.Rehearsal, error) {
	var (
		r    *types.Rehearsal
		from types.RehearsalStatus
	)
	err := s.write(ctx, "rehearsal.transition", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		r, err = tx.GetRehearsal(ctx, scope, id)
		if err != nil {
			return err
		}
		if err := readiness.CheckRehearsalTransition(r, to); err != nil {
			return err
		}
		var tasks []*types.Task
		if to == types.RehearsalCompleted {
			if tasks, err = tx.ListTasks(ctx, scope, r.PlanID); err != nil {
				return err
			}
		}
		from = r.Status
		readiness.ApplyRehearsalTransition(r, to, tasks, s.clock())
		if err := tx.UpdateRehearsalStatus(ctx, scope, r, from); err != nil {
			if errors.Is(err, storage.ErrStatusChanged) {
				current, gerr := tx.GetRehearsal(ctx, scope, id)
				if gerr != nil {
					return gerr
				}
				return lostRace("rehearsal", id, string(current.Status), string(to))
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	attrs := []any{"rehearsal", r.ID, "plan", r.PlanID, "from", from, "to", r.Status, "actor", actorOr(actor)}
	if r.Metrics != nil && to == types.RehearsalCompleted {
		attrs = append(attrs, "variance_pct", r.Metrics.VariancePct, "revision_needed", r.Metrics.RunbookRevisionNeeded)
	}
	s.log.Info("rehearsal transitioned", attrs...)
	return r, nil
}

// ListRehearsals returns the plan's rehearsals by number.
func (s *Service) ListRehearsals(ctx context.Context, scope types.Scope, planRef string) ([]*types.Rehearsal, error) {
	var out []*types.Rehearsal
	err := s.read(ctx, "rehearsal.list", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListRehearsals(ctx, scope, plan.ID)
		return err
	})
	return out, err
}

// AddGoNoGoItem adds a pending readiness item to the plan.
func (s *Service) AddGoNoGoItem(ctx context.Context, scope types.Scope, planRef string, in GoNoGoInput) (*types.GoNoGoItem, error) {
	if strings.TrimSpace(in.Criterion) == "" {
		return nil, types.Invalid("criterion", "is required")
	}
	var item *types.GoNoGoItem
	err := s.write(ctx, "gonogo.add", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "add go/no-go items"); err != nil {
			return err
		}
		now := s.clock()
		item = &types.GoNoGoItem{
			ID:           s.newID(),
			PlanID:       plan.ID,
			Criterion:    strings.TrimSpace(in.Criterion),
			SourceDomain: in.SourceDomain,
			Owner:        in.Owner,
			Verdict:      types.VerdictPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		return tx.CreateGoNoGoItem(ctx, scope, item)
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// SetVerdict records an evaluation. Returning an item to pending clears
// the evaluation stamp.
func (s *Service) SetVerdict(ctx context.Context, scope types.Scope, id string, verdict types.Verdict, evidence, actor string) (*types.GoNoGoItem, error) {
	if !verdict.IsValid() {
		return nil, types.Invalid("verdict", "unknown verdict %q (expected pending, go, no_go or waived)", verdict)
	}
	var item *types.GoNoGoItem
	err := s.write(ctx, "gonogo.verdict", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		item, err = tx.GetGoNoGoItem(ctx, scope, id)
		if err != nil {
			return err
		}
		now := s.clock()
		item.Verdict = verdict
		item.Evidence = evidence
		if verdict == types.VerdictPending {
			item.EvaluatedAt = nil
			item.EvaluatedBy = ""
		} else {
			item.EvaluatedAt = &now
			item.EvaluatedBy = actorOr(actor)
		}
		item.UpdatedAt = now
		return tx.UpdateGoNoGoItem(ctx, scope, item)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("go/no-go verdict set", "item", item.ID, "plan", item.PlanID, "verdict", verdict, "actor", actorOr(actor))
	s.emit(ctx, scope, eventbus.EventVerdictRecorded, item.PlanID, item.ID, actorOr(actor),
		map[string]any{"verdict": verdict})
	return item, nil
}

// ListGoNoGoItems returns the plan's readiness checklist.
func (s *Service) ListGoNoGoItems(ctx context.Context, scope types.Scope, planRef string) ([]*types.GoNoGoItem, error) {
	var out []*types.GoNoGoItem
	err := s.read(ctx, "gonogo.list", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		out, err = q.ListGoNoGoItems(ctx, scope, plan.ID)
		return err
	})
	return out, err
}
