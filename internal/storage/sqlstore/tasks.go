package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

// CreateScopeItem inserts a scope item.
func (s *queries) CreateScopeItem(ctx context.Context, item *types.ScopeItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO scope_items (id, tenant_id, program_id, name, description, owner, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.TenantID, item.ProgramID, item.Name, nullString(item.Description), nullString(item.Owner),
		formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	return wrapWriteError("insert scope item", "scope item", item.ID, err)
}

const scopeItemColumns = `id, tenant_id, program_id, name, description, owner, created_at, updated_at`

func scanScopeItem(row scanner) (*types.ScopeItem, error) {
	var item types.ScopeItem
	var description, owner sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&item.ID, &item.TenantID, &item.ProgramID, &item.Name, &description, &owner, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.Description = description.String
	item.Owner = owner.String
	item.CreatedAt = parseTimeString(createdAt)
	item.UpdatedAt = parseTimeString(updatedAt)
	return &item, nil
}

// GetScopeItem retrieves a scope item by ID within scope.
func (s *queries) GetScopeItem(ctx context.Context, scope types.Scope, id string) (*types.ScopeItem, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+scopeItemColumns+` FROM scope_items
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	item, err := scanScopeItem(row)
	if err != nil {
		return nil, wrapDBError("get scope item", "scope item", id, err)
	}
	return item, nil
}

// ListScopeItems returns every scope item in scope ordered by name.
func (s *queries) ListScopeItems(ctx context.Context, scope types.Scope) ([]*types.ScopeItem, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+scopeItemColumns+` FROM scope_items
		WHERE tenant_id = ? AND program_id = ? ORDER BY name, id`, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list scope items: %w", err)
	}
	defer rows.Close()

	var items []*types.ScopeItem
	for rows.Next() {
		item, err := scanScopeItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scope item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateScopeItem writes name, description and owner.
func (s *queries) UpdateScopeItem(ctx context.Context, scope types.Scope, item *types.ScopeItem) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE scope_items SET name = ?, description = ?, owner = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, item.Name, nullString(item.Description), nullString(item.Owner), formatTime(item.UpdatedAt),
		item.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update scope item: %w", err)
	}
	return checkAffected(res, "scope item", item.ID)
}

// DeleteScopeItem removes a scope item. Callers check task references first.
func (s *queries) DeleteScopeItem(ctx context.Context, scope types.Scope, id string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM scope_items WHERE id = ? AND tenant_id = ? AND program_id = ?`,
		id, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("delete scope item: %w", err)
	}
	return checkAffected(res, "scope item", id)
}

// CountTasksForScopeItem counts tasks that reference a scope item.
func (s *queries) CountTasksForScopeItem(ctx context.Context, scope types.Scope, id string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM tasks
		WHERE scope_item_id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count tasks for scope item: %w", err)
	}
	return n, nil
}

const taskColumns = `id, plan_id, scope_item_id, task_key, title, description, owner, status, sequence,
	planned_duration_min, actual_start, actual_end, delay_minutes, is_critical_path, issue_note,
	created_at, updated_at`

// CreateTask inserts a runbook task.
func (s *queries) CreateTask(ctx context.Context, scope types.Scope, t *types.Task) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO tasks (tenant_id, program_id, `+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID,
		t.ID, t.PlanID, t.ScopeItemID, nullString(t.Key), t.Title, nullString(t.Description), nullString(t.Owner),
		string(t.Status), t.Sequence, t.PlannedDurationMin,
		formatNullableTime(t.ActualStart), formatNullableTime(t.ActualEnd), nullInt(t.DelayMinutes),
		boolInt(t.IsCriticalPath), nullString(t.IssueNote), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	key := t.Key
	if key == "" {
		key = t.ID
	}
	return wrapWriteError("insert task", "task", key, err)
}

func scanTask(row scanner) (*types.Task, error) {
	var t types.Task
	var key, description, owner, note sql.NullString
	var actualStart, actualEnd sql.NullString
	var delay sql.NullInt64
	var status, createdAt, updatedAt string
	var critical int
	if err := row.Scan(&t.ID, &t.PlanID, &t.ScopeItemID, &key, &t.Title, &description, &owner, &status, &t.Sequence,
		&t.PlannedDurationMin, &actualStart, &actualEnd, &delay, &critical, &note, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	t.Key = key.String
	t.Description = description.String
	t.Owner = owner.String
	t.Status = types.TaskStatus(status)
	t.ActualStart = parseNullableTimeString(actualStart)
	t.ActualEnd = parseNullableTimeString(actualEnd)
	t.DelayMinutes = intPtr(delay)
	t.IsCriticalPath = critical != 0
	t.IssueNote = note.String
	t.CreatedAt = parseTimeString(createdAt)
	t.UpdatedAt = parseTimeString(updatedAt)
	return &t, nil
}

// GetTask retrieves a task by ID within scope.
func (s *queries) GetTask(ctx context.Context, scope types.Scope, id string) (*types.Task, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	t, err := scanTask(row)
	if err != nil {
		return nil, wrapDBError("get task", "task", id, err)
	}
	return t, nil
}

// ListTasks returns a plan's tasks ordered by sequence.
func (s *queries) ListTasks(ctx context.Context, scope types.Scope, planID string) ([]*types.Task, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?
		ORDER BY sequence, created_at, id`, planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// UpdateTask writes editable fields: title, description, owner, planned
// duration and the issue note. Status and actuals are left alone.
func (s *queries) UpdateTask(ctx context.Context, scope types.Scope, t *types.Task) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, owner = ?, planned_duration_min = ?,
			issue_note = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, t.Title, nullString(t.Description), nullString(t.Owner), t.PlannedDurationMin,
		nullString(t.IssueNote), formatTime(t.UpdatedAt), t.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return checkAffected(res, "task", t.ID)
}

// UpdateTaskStatus is a compare-and-swap on status that also writes
// actual start/end and delay.
func (s *queries) UpdateTaskStatus(ctx context.Context, scope types.Scope, t *types.Task, from types.TaskStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE tasks SET status = ?, actual_start = ?, actual_end = ?, delay_minutes = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ? AND status = ?
	`, string(t.Status), formatNullableTime(t.ActualStart), formatNullableTime(t.ActualEnd), nullInt(t.DelayMinutes),
		formatTime(t.UpdatedAt), t.ID, scope.TenantID, scope.ProgramID, string(from))
	if err != nil {
		return fmt.Errorf("update task status: %w", err)
	}
	if err := checkAffected(res, "task", t.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return storage.ErrStatusChanged
		}
		return err
	}
	return nil
}

// SetCriticalPathFlags rewrites is_critical_path for every task of a plan.
// Tasks missing from flags are cleared.
func (s *queries) SetCriticalPathFlags(ctx context.Context, scope types.Scope, planID string, flags map[string]bool) error {
	if _, err := s.q.ExecContext(ctx, `UPDATE tasks SET is_critical_path = 0
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?`, planID, scope.TenantID, scope.ProgramID); err != nil {
		return fmt.Errorf("clear critical path: %w", err)
	}
	for id, on := range flags {
		if !on {
			continue
		}
		if _, err := s.q.ExecContext(ctx, `UPDATE tasks SET is_critical_path = 1
			WHERE id = ? AND plan_id = ? AND tenant_id = ? AND program_id = ?`,
			id, planID, scope.TenantID, scope.ProgramID); err != nil {
			return fmt.Errorf("mark critical task %s: %w", id, err)
		}
	}
	return nil
}

// DeleteTask removes a task and every dependency edge touching it.
func (s *queries) DeleteTask(ctx context.Context, scope types.Scope, id string) error {
	if _, err := s.q.ExecContext(ctx, `DELETE FROM task_dependencies
		WHERE (predecessor_id = ? OR successor_id = ?) AND tenant_id = ? AND program_id = ?`,
		id, id, scope.TenantID, scope.ProgramID); err != nil {
		return fmt.Errorf("delete task dependencies: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND tenant_id = ? AND program_id = ?`,
		id, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return checkAffected(res, "task", id)
}

// NextTaskSequence returns one above the highest sequence in the plan,
// stepping by 10 so tasks can be slotted between.
func (s *queries) NextTaskSequence(ctx context.Context, scope types.Scope, planID string) (int, error) {
	var highest sql.NullInt64
	err := s.q.QueryRowContext(ctx, `SELECT MAX(sequence) FROM tasks
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?`, planID, scope.TenantID, scope.ProgramID).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("next task sequence: %w", err)
	}
	return int(highest.Int64) + 10, nil
}

// AddDependency inserts an edge. A repeated (predecessor, successor) pair
// is reported as a DuplicateError.
func (s *queries) AddDependency(ctx context.Context, scope types.Scope, d *types.Dependency) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO task_dependencies (tenant_id, program_id, plan_id, predecessor_id, successor_id,
			lag_minutes, created_at, created_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, d.PlanID, d.PredecessorID, d.SuccessorID, d.LagMinutes,
		formatTime(d.CreatedAt), nullString(d.CreatedBy))
	return wrapWriteError("insert dependency", "dependency", d.PredecessorID+" -> "+d.SuccessorID, err)
}

// RemoveDependency deletes an edge.
func (s *queries) RemoveDependency(ctx context.Context, scope types.Scope, planID, predecessorID, successorID string) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM task_dependencies
		WHERE plan_id = ? AND predecessor_id = ? AND successor_id = ? AND tenant_id = ? AND program_id = ?`,
		planID, predecessorID, successorID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("remove dependency: %w", err)
	}
	return checkAffected(res, "dependency", predecessorID+" -> "+successorID)
}

// ListDependencies returns a plan's edges in insertion order.
func (s *queries) ListDependencies(ctx context.Context, scope types.Scope, planID string) ([]*types.Dependency, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT plan_id, predecessor_id, successor_id, lag_minutes, created_at, created_by
		FROM task_dependencies
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?
		ORDER BY created_at, predecessor_id, successor_id
	`, planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies: %w", err)
	}
	defer rows.Close()

	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		var createdAt string
		var createdBy sql.NullString
		if err := rows.Scan(&d.PlanID, &d.PredecessorID, &d.SuccessorID, &d.LagMinutes, &createdAt, &createdBy); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		d.CreatedAt = parseTimeString(createdAt)
		d.CreatedBy = createdBy.String
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}
