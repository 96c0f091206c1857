package orchestration

import (
	"context"
	"fmt"

	"github.com/steveyegge/cutover/internal/runbook"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// ImportResult reports what a runbook import created.
type ImportResult struct {
	PlanID            string              `json:"plan_id"`
	ScopeItemsCreated int                 `json:"scope_items_created"`
	ScopeItemsReused  int                 `json:"scope_items_reused"`
	Tasks             []*types.Task       `json:"tasks"`
	Dependencies      int                 `json:"dependencies"`
	CriticalPath      *types.CriticalPath `json:"critical_path"`
}

// ImportRunbook adds the tasks and dependencies of def to a plan in one
// transaction. Edges go through the same duplicate and cycle checks as
// AddDependency, so a cyclic runbook leaves the plan untouched. Declared
// scope items are matched to existing ones by name before being created.
func (s *Service) ImportRunbook(ctx context.Context, scope types.Scope, planRef string, def *runbook.Definition, actor string) (*ImportResult, error) {
	if def == nil {
		return nil, types.Invalid("runbook", "is required")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	res := &ImportResult{}
	err := s.write(ctx, "runbook.import", scope, func(ctx context.Context, tx storage.Transaction) error {
		*res = ImportResult{}
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if plan, err = lockedPlan(ctx, tx, scope, plan.ID); err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "import runbooks"); err != nil {
			return err
		}
		res.PlanID = plan.ID

		scopeIDs, err := s.importScopeItems(ctx, tx, scope, def, res)
		if err != nil {
			return err
		}

		g, err := loadGraph(ctx, tx, scope, plan.ID)
		if err != nil {
			return err
		}
		taskIDs := make(map[string]string, len(def.Tasks))
		for _, td := range def.Tasks {
			siID, ok := scopeIDs[td.ScopeItem]
			if !ok {
				return types.Invalid("scope_item", "task %q references unknown scope item %q", td.Key, td.ScopeItem)
			}
			task, err := s.insertTask(ctx, tx, scope, plan, TaskInput{
				ScopeItemID:        siID,
				Key:                td.Key,
				Title:              td.Title,
				Description:        td.Description,
				Owner:              td.Owner,
				PlannedDurationMin: td.DurationMin,
				Sequence:           td.Sequence,
			})
			if err != nil {
				return fmt.Errorf("runbook task %q: %w", td.Key, err)
			}
			if err := g.AddTask(task); err != nil {
				return err
			}
			taskIDs[td.Key] = task.ID
			res.Tasks = append(res.Tasks, task)
		}

		now := s.clock()
		for _, e := range def.Edges() {
			pred, succ := taskIDs[e.From], taskIDs[e.To]
			if err := g.AddDependency(pred, succ, e.LagMin); err != nil {
				return fmt.Errorf("runbook dependency %s -> %s: %w", e.From, e.To, err)
			}
			dep := &types.Dependency{
				PlanID:        plan.ID,
				PredecessorID: pred,
				SuccessorID:   succ,
				LagMinutes:    e.LagMin,
				CreatedAt:     now,
				CreatedBy:     actorOr(actor),
			}
			if err := tx.AddDependency(ctx, scope, dep); err != nil {
				return err
			}
			res.Dependencies++
		}

		path, err := recomputeCriticalPath(ctx, tx, scope, plan.ID)
		if err != nil {
			return err
		}
		for _, t := range res.Tasks {
			t.IsCriticalPath = path.Contains(t.ID)
		}
		ids := path.TaskIDs
		if ids == nil {
			ids = []string{}
		}
		res.CriticalPath = &types.CriticalPath{PlanID: plan.ID, TaskIDs: ids, TotalMinutes: path.TotalMinutes}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("runbook imported", "plan", res.PlanID, "source", def.Source, "tasks", len(res.Tasks),
		"dependencies", res.Dependencies, "scope_items_created", res.ScopeItemsCreated, "actor", actorOr(actor))
	return res, nil
}

// importScopeItems maps every scope item reference usable by the file's
// tasks to an id: declared keys, plus existing items by id and by name.
func (s *Service) importScopeItems(ctx context.Context, tx storage.Transaction, scope types.Scope, def *runbook.Definition, res *ImportResult) (map[string]string, error) {
	existing, err := tx.ListScopeItems(ctx, scope)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]string, len(existing)*2+len(def.ScopeItems))
	byName := make(map[string]string, len(existing))
	for _, si := range existing {
		ids[si.ID] = si.ID
		byName[si.Name] = si.ID
		if _, taken := ids[si.Name]; !taken {
			ids[si.Name] = si.ID
		}
	}
	now := s.clock()
	for _, d := range def.ScopeItems {
		if id, ok := byName[d.Name]; ok {
			ids[d.Key] = id
			res.ScopeItemsReused++
			continue
		}
		item := &types.ScopeItem{
			ID:          s.newID(),
			TenantID:    scope.TenantID,
			ProgramID:   scope.ProgramID,
			Name:        d.Name,
			Description: d.Description,
			Owner:       d.Owner,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.CreateScopeItem(ctx, item); err != nil {
			return nil, err
		}
		ids[d.Key] = item.ID
		byName[d.Name] = item.ID
		res.ScopeItemsCreated++
	}
	return ids, nil
}
