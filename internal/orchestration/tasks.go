package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/taskgraph"
	"github.com/steveyegge/cutover/internal/types"
)

// TaskInput holds the fields of a new runbook task.
type TaskInput struct {
	ScopeItemID        string
	Key                string
	Title              string
	Description        string
	Owner              string
	PlannedDurationMin int
	Sequence           int // 0 appends after the last task
}

// TaskUpdate holds optional descriptive edits. Duration changes go through
// UpdateTaskDuration because they move the critical path.
type TaskUpdate struct {
	Title       *string
	Description *string
	Owner       *string
}

// AddTask adds a task to a plan and recomputes the critical path.
func (s *Service) AddTask(ctx context.Context, scope types.Scope, planRef string, in TaskInput) (*types.Task, error) {
	var task *types.Task
	err := s.write(ctx, "task.add", scope, func(ctx context.Context, tx storage.Transaction) error {
		plan, err := resolvePlan(ctx, tx, scope, planRef)
		if err != nil {
			return err
		}
		if plan, err = lockedPlan(ctx, tx, scope, plan.ID); err != nil {
			return err
		}
		task, err = s.insertTask(ctx, tx, scope, plan, in)
		if err != nil {
			return err
		}
		path, err := recomputeCriticalPath(ctx, tx, scope, plan.ID)
		if err != nil {
			return err
		}
		task.IsCriticalPath = path.Contains(task.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task added", "task", task.ID, "plan", task.PlanID, "duration_min", task.PlannedDurationMin)
	return task, nil
}

// insertTask validates and stores a task without touching critical flags.
func (s *Service) insertTask(ctx context.Context, tx storage.Transaction, scope types.Scope, plan *types.Plan, in TaskInput) (*types.Task, error) {
	if err := requireOpenPlan(plan, "add tasks"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.ScopeItemID) == "" {
		return nil, types.Invalid("scope_item_id", "is required")
	}
	if _, err := tx.GetScopeItem(ctx, scope, in.ScopeItemID); err != nil {
		return nil, err
	}
	now := s.clock()
	task := &types.Task{
		ID:                 s.newID(),
		PlanID:             plan.ID,
		ScopeItemID:        in.ScopeItemID,
		Key:                strings.TrimSpace(in.Key),
		Title:              strings.TrimSpace(in.Title),
		Description:        in.Description,
		Owner:              in.Owner,
		Status:             types.TaskNotStarted,
		Sequence:           in.Sequence,
		PlannedDurationMin: in.PlannedDurationMin,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := task.Validate(); err != nil {
		return nil, err
	}
	if task.Sequence == 0 {
		seq, err := tx.NextTaskSequence(ctx, scope, plan.ID)
		if err != nil {
			return nil, err
		}
		task.Sequence = seq
	}
	if err := tx.CreateTask(ctx, scope, task); err != nil {
		return nil, err
	}
	return task, nil
}

// GetTask returns one task.
func (s *Service) GetTask(ctx context.Context, scope types.Scope, id string) (*types.Task, error) {
	var task *types.Task
	err := s.read(ctx, "task.get", scope, func(ctx context.Context, q storage.Queries) error {
		var err error
		task, err = q.GetTask(ctx, scope, id)
		return err
	})
	return task, err
}

// ListTasks returns a plan's tasks in sequence order.
func (s *Service) ListTasks(ctx context.Context, scope types.Scope, planRef string) ([]*types.Task, error) {
	var tasks []*types.Task
	err := s.read(ctx, "task.list", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		tasks, err = q.ListTasks(ctx, scope, plan.ID)
		return err
	})
	return tasks, err
}

// UpdateTask edits descriptive task fields.
func (s *Service) UpdateTask(ctx context.Context, scope types.Scope, id string, upd TaskUpdate) (*types.Task, error) {
	var task *types.Task
	err := s.write(ctx, "task.update", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		task, err = tx.GetTask(ctx, scope, id)
		if err != nil {
			return err
		}
		if upd.Title != nil {
			task.Title = strings.TrimSpace(*upd.Title)
		}
		if upd.Description != nil {
			task.Description = *upd.Description
		}
		if upd.Owner != nil {
			task.Owner = *upd.Owner
		}
		if err := task.Validate(); err != nil {
			return err
		}
		task.UpdatedAt = s.clock()
		return tx.UpdateTask(ctx, scope, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// UpdateTaskDuration changes a task's planned duration and recomputes the
// critical path.
func (s *Service) UpdateTaskDuration(ctx context.Context, scope types.Scope, id string, minutes int, actor string) (*types.Task, error) {
	if minutes < 0 {
		return nil, types.Invalid("planned_duration_min", "cannot be negative (got %d)", minutes)
	}
	var (
		task *types.Task
		old  int
	)
	err := s.write(ctx, "task.duration", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		task, err = tx.GetTask(ctx, scope, id)
		if err != nil {
			return err
		}
		plan, err := lockedPlan(ctx, tx, scope, task.PlanID)
		if err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "change task durations"); err != nil {
			return err
		}
		old = task.PlannedDurationMin
		task.PlannedDurationMin = minutes
		task.UpdatedAt = s.clock()
		if err := tx.UpdateTask(ctx, scope, task); err != nil {
			return err
		}
		path, err := recomputeCriticalPath(ctx, tx, scope, task.PlanID)
		if err != nil {
			return err
		}
		task.IsCriticalPath = path.Contains(task.ID)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("task duration changed", "task", task.ID, "plan", task.PlanID, "from", old, "to", minutes, "actor", actorOr(actor))
	return task, nil
}

// AppendTaskNote appends a timestamped, attributed line to the task's
// issue log. Existing text is never rewritten.
func (s *Service) AppendTaskNote(ctx context.Context, scope types.Scope, id, note, actor string) (*types.Task, error) {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil, types.Invalid("note", "is required")
	}
	var task *types.Task
	err := s.write(ctx, "task.note", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		task, err = tx.GetTask(ctx, scope, id)
		if err != nil {
			return err
		}
		now := s.clock()
		line := fmt.Sprintf("[%s] %s: %s", now.Format("2006-01-02T15:04:05Z"), actorOr(actor), note)
		if task.IssueNote != "" {
			task.IssueNote += "\n"
		}
		task.IssueNote += line
		task.UpdatedAt = now
		return tx.UpdateTask(ctx, scope, task)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// TransitionTask moves a task to target. Entering in_progress requires
// every direct predecessor to be completed or skipped.
func (s *Service) TransitionTask(ctx context.Context, scope types.Scope, id string, target types.TaskStatus, actor string) (*types.Task, error) {
	var (
		task *types.Task
		from types.TaskStatus
	)
	err := s.write(ctx, "task.transition", scope, func(ctx context.Context, tx storage.Transaction) error {
		var err error
		task, err = tx.GetTask(ctx, scope, id)
		if err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx, scope, task.PlanID)
		if err != nil {
			return err
		}
		if err := g.CheckTransition(task, target); err != nil {
			return err
		}
		from = task.Status
		taskgraph.ApplyTransition(task, target, s.clock())
		if err := tx.UpdateTaskStatus(ctx, scope, task, from); err != nil {
			if errors.Is(err, storage.ErrStatusChanged) {
				current, gerr := tx.GetTask(ctx, scope, id)
				if gerr != nil {
					return gerr
				}
				return lostRace("task", id, string(current.Status), string(target))
			}
			return err
		}
		return nil
	})
	if err != nil {
		if types.KindOf(err) == types.KindGuardFailed {
			s.log.Warn("task start blocked", "task", id, "actor", actorOr(actor), "error", err)
		}
		return nil, err
	}
	attrs := []any{"task", task.ID, "plan", task.PlanID, "from", from, "to", task.Status, "actor", actorOr(actor)}
	if task.DelayMinutes != nil && target == types.TaskCompleted {
		attrs = append(attrs, "delay_min", *task.DelayMinutes)
	}
	s.log.Info("task transitioned", attrs...)
	data := map[string]any{"from": from, "to": task.Status}
	if task.DelayMinutes != nil {
		data["delay_min"] = *task.DelayMinutes
	}
	s.emit(ctx, scope, eventbus.EventTaskTransitioned, task.PlanID, task.ID, actorOr(actor), data)
	return task, nil
}

// DeleteTask removes a task with its edges and recomputes the critical path.
func (s *Service) DeleteTask(ctx context.Context, scope types.Scope, id string, actor string) error {
	var planID string
	err := s.write(ctx, "task.delete", scope, func(ctx context.Context, tx storage.Transaction) error {
		task, err := tx.GetTask(ctx, scope, id)
		if err != nil {
			return err
		}
		planID = task.PlanID
		plan, err := lockedPlan(ctx, tx, scope, planID)
		if err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "delete tasks"); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, scope, id); err != nil {
			return err
		}
		_, err = recomputeCriticalPath(ctx, tx, scope, planID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("task deleted", "task", id, "plan", planID, "actor", actorOr(actor))
	return nil
}

// AddDependency inserts pred -> succ. Both tasks must belong to the same
// plan; duplicates and edges that would close a cycle are rejected before
// anything is written.
func (s *Service) AddDependency(ctx context.Context, scope types.Scope, predID, succID string, lagMin int, actor string) (*types.Dependency, error) {
	dep := &types.Dependency{PredecessorID: predID, SuccessorID: succID, LagMinutes: lagMin, CreatedBy: actorOr(actor)}
	if err := dep.Validate(); err != nil {
		return nil, err
	}
	err := s.write(ctx, "dependency.add", scope, func(ctx context.Context, tx storage.Transaction) error {
		pred, err := tx.GetTask(ctx, scope, predID)
		if err != nil {
			return err
		}
		succ, err := tx.GetTask(ctx, scope, succID)
		if err != nil {
			return err
		}
		if pred.PlanID != succ.PlanID {
			return types.Invalid("dependency", "tasks %s and %s belong to different plans", predID, succID)
		}
		plan, err := lockedPlan(ctx, tx, scope, pred.PlanID)
		if err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "change dependencies"); err != nil {
			return err
		}
		g, err := loadGraph(ctx, tx, scope, pred.PlanID)
		if err != nil {
			return err
		}
		if err := g.CheckDependency(predID, succID, lagMin); err != nil {
			return err
		}
		dep.PlanID = pred.PlanID
		dep.CreatedAt = s.clock()
		if err := tx.AddDependency(ctx, scope, dep); err != nil {
			return err
		}
		_, err = recomputeCriticalPath(ctx, tx, scope, dep.PlanID)
		return err
	})
	if err != nil {
		if types.KindOf(err) == types.KindCycle {
			s.log.Warn("dependency rejected", "predecessor", predID, "successor", succID, "actor", actorOr(actor), "error", err)
		}
		return nil, err
	}
	s.log.Info("dependency added", "plan", dep.PlanID, "predecessor", predID, "successor", succID, "lag_min", lagMin, "actor", dep.CreatedBy)
	return dep, nil
}

// RemoveDependency deletes pred -> succ and recomputes the critical path.
func (s *Service) RemoveDependency(ctx context.Context, scope types.Scope, predID, succID string, actor string) error {
	var planID string
	err := s.write(ctx, "dependency.remove", scope, func(ctx context.Context, tx storage.Transaction) error {
		pred, err := tx.GetTask(ctx, scope, predID)
		if err != nil {
			return err
		}
		planID = pred.PlanID
		plan, err := lockedPlan(ctx, tx, scope, planID)
		if err != nil {
			return err
		}
		if err := requireOpenPlan(plan, "change dependencies"); err != nil {
			return err
		}
		if err := tx.RemoveDependency(ctx, scope, planID, predID, succID); err != nil {
			return err
		}
		_, err = recomputeCriticalPath(ctx, tx, scope, planID)
		return err
	})
	if err != nil {
		return err
	}
	s.log.Info("dependency removed", "plan", planID, "predecessor", predID, "successor", succID, "actor", actorOr(actor))
	return nil
}

// ListDependencies returns the plan's edges.
func (s *Service) ListDependencies(ctx context.Context, scope types.Scope, planRef string) ([]*types.Dependency, error) {
	var deps []*types.Dependency
	err := s.read(ctx, "dependency.list", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		deps, err = q.ListDependencies(ctx, scope, plan.ID)
		return err
	})
	return deps, err
}

// CriticalPath computes the plan's current critical path.
func (s *Service) CriticalPath(ctx context.Context, scope types.Scope, planRef string) (*types.CriticalPath, error) {
	var out *types.CriticalPath
	err := s.read(ctx, "plan.critical_path", scope, func(ctx context.Context, q storage.Queries) error {
		plan, err := resolvePlan(ctx, q, scope, planRef)
		if err != nil {
			return err
		}
		g, err := loadGraph(ctx, q, scope, plan.ID)
		if err != nil {
			return err
		}
		path, err := g.CriticalPath()
		if err != nil {
			return fmt.Errorf("plan %s: %w", plan.Code, err)
		}
		ids := path.TaskIDs
		if ids == nil {
			ids = []string{}
		}
		out = &types.CriticalPath{PlanID: plan.ID, TaskIDs: ids, TotalMinutes: path.TotalMinutes}
		return nil
	})
	return out, err
}

// lockedPlan locks the plan for the rest of the transaction and returns
// its row as committed by the previous lock holder. Every read of the task
// graph that leads to a write happens after this call.
func lockedPlan(ctx context.Context, tx storage.Transaction, scope types.Scope, planID string) (*types.Plan, error) {
	if err := tx.LockPlan(ctx, scope, planID); err != nil {
		return nil, err
	}
	return tx.GetPlan(ctx, scope, planID)
}

func loadGraph(ctx context.Context, q storage.Queries, scope types.Scope, planID string) (*taskgraph.Graph, error) {
	tasks, err := q.ListTasks(ctx, scope, planID)
	if err != nil {
		return nil, err
	}
	deps, err := q.ListDependencies(ctx, scope, planID)
	if err != nil {
		return nil, err
	}
	return taskgraph.Load(planID, tasks, deps)
}

// recomputeCriticalPath rewrites every is_critical_path flag of the plan.
// A cycle here means the stored edge set is corrupt; the error keeps
// ErrGraphCorrupt so the boundary reports an internal failure.
func recomputeCriticalPath(ctx context.Context, tx storage.Transaction, scope types.Scope, planID string) (taskgraph.Path, error) {
	g, err := loadGraph(ctx, tx, scope, planID)
	if err != nil {
		return taskgraph.Path{}, err
	}
	flags, path, err := g.CriticalFlags()
	if err != nil {
		return taskgraph.Path{}, fmt.Errorf("recompute critical path for plan %s: %w", planID, err)
	}
	if err := tx.SetCriticalPathFlags(ctx, scope, planID, flags); err != nil {
		return taskgraph.Path{}, err
	}
	return path, nil
}
