package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

const planColumns = `id, tenant_id, program_id, code, name, description, status,
	planned_start, planned_end, actual_start, actual_end, rollback_deadline,
	hypercare_weeks, hypercare_start, hypercare_end, created_by, created_at, updated_at`

// CreatePlan inserts a new plan. ID, code and timestamps are set by the caller.
func (s *queries) CreatePlan(ctx context.Context, p *types.Plan) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO plans (`+planColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.TenantID, p.ProgramID, p.Code, p.Name, nullString(p.Description), string(p.Status),
		formatNullableTime(p.PlannedStart), formatNullableTime(p.PlannedEnd),
		formatNullableTime(p.ActualStart), formatNullableTime(p.ActualEnd), formatNullableTime(p.RollbackDeadline),
		p.HypercareDurationWeeks, formatNullableTime(p.HypercareStart), formatNullableTime(p.HypercareEnd),
		nullString(p.CreatedBy), formatTime(p.CreatedAt), formatTime(p.UpdatedAt))
	return wrapWriteError("insert plan", "plan", p.Code, err)
}

// GetPlan retrieves a plan by ID within scope.
func (s *queries) GetPlan(ctx context.Context, scope types.Scope, id string) (*types.Plan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	p, err := scanPlan(row)
	if err != nil {
		return nil, wrapDBError("get plan", "plan", id, err)
	}
	return p, nil
}

// GetPlanByCode retrieves a plan by its human-readable code within scope.
func (s *queries) GetPlanByCode(ctx context.Context, scope types.Scope, code string) (*types.Plan, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+planColumns+` FROM plans
		WHERE code = ? AND tenant_id = ? AND program_id = ?`, strings.ToUpper(code), scope.TenantID, scope.ProgramID)
	p, err := scanPlan(row)
	if err != nil {
		return nil, wrapDBError("get plan by code", "plan", code, err)
	}
	return p, nil
}

// ListPlans returns plans in scope ordered by code.
func (s *queries) ListPlans(ctx context.Context, scope types.Scope, filter types.PlanFilter) ([]*types.Plan, error) {
	where := []string{"tenant_id = ?", "program_id = ?"}
	args := []any{scope.TenantID, scope.ProgramID}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	query := `SELECT ` + planColumns + ` FROM plans WHERE ` + strings.Join(where, " AND ") + ` ORDER BY code`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []*types.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// UpdatePlan writes editable fields. Status and code are never touched.
func (s *queries) UpdatePlan(ctx context.Context, scope types.Scope, p *types.Plan) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE plans SET name = ?, description = ?, planned_start = ?, planned_end = ?,
			rollback_deadline = ?, hypercare_weeks = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, p.Name, nullString(p.Description), formatNullableTime(p.PlannedStart), formatNullableTime(p.PlannedEnd),
		formatNullableTime(p.RollbackDeadline), p.HypercareDurationWeeks, formatTime(p.UpdatedAt),
		p.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return checkAffected(res, "plan", p.ID)
}

// UpdatePlanStatus is a compare-and-swap on status. It returns
// storage.ErrStatusChanged when another writer moved the plan first.
func (s *queries) UpdatePlanStatus(ctx context.Context, scope types.Scope, p *types.Plan, from types.PlanStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE plans SET status = ?, actual_start = ?, actual_end = ?,
			hypercare_start = ?, hypercare_end = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ? AND status = ?
	`, string(p.Status), formatNullableTime(p.ActualStart), formatNullableTime(p.ActualEnd),
		formatNullableTime(p.HypercareStart), formatNullableTime(p.HypercareEnd), formatTime(p.UpdatedAt),
		p.ID, scope.TenantID, scope.ProgramID, string(from))
	if err != nil {
		return fmt.Errorf("update plan status: %w", err)
	}
	if err := checkAffected(res, "plan", p.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return storage.ErrStatusChanged
		}
		return err
	}
	return nil
}

// NextPlanNumber returns one above the highest plan sequence in scope.
// Codes are "<PREFIX>-NNN"; the numeric suffix is parsed in Go so the
// query stays portable.
func (s *queries) NextPlanNumber(ctx context.Context, scope types.Scope) (int, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT code FROM plans WHERE tenant_id = ? AND program_id = ?`,
		scope.TenantID, scope.ProgramID)
	if err != nil {
		return 0, fmt.Errorf("next plan number: %w", err)
	}
	defer rows.Close()

	highest := 0
	for rows.Next() {
		var code string
		if err := rows.Scan(&code); err != nil {
			return 0, fmt.Errorf("scan plan code: %w", err)
		}
		if i := strings.LastIndex(code, "-"); i >= 0 {
			var n int
			if _, err := fmt.Sscanf(code[i+1:], "%d", &n); err == nil && n > highest {
				highest = n
			}
		}
	}
	return highest + 1, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlan(row scanner) (*types.Plan, error) {
	var p types.Plan
	var status, createdAt, updatedAt string
	var description, createdBy sql.NullString
	var plannedStart, plannedEnd, rollbackDeadline sql.NullString
	var actualStart, actualEnd sql.NullString
	var hypercareStart, hypercareEnd sql.NullString
	if err := row.Scan(&p.ID, &p.TenantID, &p.ProgramID, &p.Code, &p.Name, &description, &status,
		&plannedStart, &plannedEnd, &actualStart, &actualEnd, &rollbackDeadline,
		&p.HypercareDurationWeeks, &hypercareStart, &hypercareEnd, &createdBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	p.Status = types.PlanStatus(status)
	p.Description = description.String
	p.CreatedBy = createdBy.String
	p.PlannedStart = parseNullableTimeString(plannedStart)
	p.PlannedEnd = parseNullableTimeString(plannedEnd)
	p.ActualStart = parseNullableTimeString(actualStart)
	p.ActualEnd = parseNullableTimeString(actualEnd)
	p.RollbackDeadline = parseNullableTimeString(rollbackDeadline)
	p.HypercareStart = parseNullableTimeString(hypercareStart)
	p.HypercareEnd = parseNullableTimeString(hypercareEnd)
	p.CreatedAt = parseTimeString(createdAt)
	p.UpdatedAt = parseTimeString(updatedAt)
	return &p, nil
}
