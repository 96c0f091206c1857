package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/cutover/internal/types"
)

const exitCriterionColumns = `id, plan_id, name, description, criterion_type, metric, threshold, mandatory,
	status, evidence, evaluated_at, evaluated_by, created_at, updated_at`

func nullFloat(f float64) sql.NullFloat64 {
	return sql.NullFloat64{Float64: f, Valid: f != 0}
}

// CreateExitCriterion inserts a hypercare exit criterion.
func (s *queries) CreateExitCriterion(ctx context.Context, scope types.Scope, c *types.ExitCriterion) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO exit_criteria (tenant_id, program_id, `+exitCriterionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, c.ID, c.PlanID, c.Name, nullString(c.Description), string(c.Type),
		nullString(string(c.Metric)), nullFloat(c.Threshold), boolInt(c.Mandatory), string(c.Status),
		nullString(c.Evidence), formatNullableTime(c.EvaluatedAt), nullString(c.EvaluatedBy),
		formatTime(c.CreatedAt), formatTime(c.UpdatedAt))
	return wrapWriteError("insert exit criterion", "exit criterion", c.ID, err)
}

func scanExitCriterion(row scanner) (*types.ExitCriterion, error) {
	var c types.ExitCriterion
	var ctype, status, createdAt, updatedAt string
	var description, metric, evidence, evaluatedAt, evaluatedBy sql.NullString
	var threshold sql.NullFloat64
	var mandatory int
	if err := row.Scan(&c.ID, &c.PlanID, &c.Name, &description, &ctype, &metric, &threshold, &mandatory,
		&status, &evidence, &evaluatedAt, &evaluatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.Description = description.String
	c.Type = types.CriterionType(ctype)
	c.Metric = types.ExitMetric(metric.String)
	c.Threshold = threshold.Float64
	c.Mandatory = mandatory != 0
	c.Status = types.CriterionStatus(status)
	c.Evidence = evidence.String
	c.EvaluatedAt = parseNullableTimeString(evaluatedAt)
	c.EvaluatedBy = evaluatedBy.String
	c.CreatedAt = parseTimeString(createdAt)
	c.UpdatedAt = parseTimeString(updatedAt)
	return &c, nil
}

// GetExitCriterion retrieves a criterion by ID within scope.
func (s *queries) GetExitCriterion(ctx context.Context, scope types.Scope, id string) (*types.ExitCriterion, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+exitCriterionColumns+` FROM exit_criteria
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	c, err := scanExitCriterion(row)
	if err != nil {
		return nil, wrapDBError("get exit criterion", "exit criterion", id, err)
	}
	return c, nil
}

// ListExitCriteria returns a plan's exit criteria in creation order.
func (s *queries) ListExitCriteria(ctx context.Context, scope types.Scope, planID string) ([]*types.ExitCriterion, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+exitCriterionColumns+` FROM exit_criteria
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ? ORDER BY created_at, id`,
		planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list exit criteria: %w", err)
	}
	defer rows.Close()

	var out []*types.ExitCriterion
	for rows.Next() {
		c, err := scanExitCriterion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan exit criterion: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// UpdateExitCriterion writes status, evidence and evaluation stamps.
func (s *queries) UpdateExitCriterion(ctx context.Context, scope types.Scope, c *types.ExitCriterion) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE exit_criteria SET status = ?, evidence = ?, evaluated_at = ?, evaluated_by = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, string(c.Status), nullString(c.Evidence), formatNullableTime(c.EvaluatedAt), nullString(c.EvaluatedBy),
		formatTime(c.UpdatedAt), c.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update exit criterion: %w", err)
	}
	return checkAffected(res, "exit criterion", c.ID)
}

// CreateSignoff appends a sign-off. Sign-offs are never edited.
func (s *queries) CreateSignoff(ctx context.Context, scope types.Scope, so *types.ExitSignoff) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO exit_signoffs (id, tenant_id, program_id, plan_id, approver, decision, comment, signed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, so.ID, scope.TenantID, scope.ProgramID, so.PlanID, so.Approver, string(so.Decision), nullString(so.Comment),
		formatTime(so.SignedAt))
	return wrapWriteError("insert signoff", "signoff", so.ID, err)
}

// ListSignoffs returns a plan's sign-offs oldest first.
func (s *queries) ListSignoffs(ctx context.Context, scope types.Scope, planID string) ([]*types.ExitSignoff, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, plan_id, approver, decision, comment, signed_at FROM exit_signoffs
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?
		ORDER BY signed_at, id
	`, planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list signoffs: %w", err)
	}
	defer rows.Close()

	var out []*types.ExitSignoff
	for rows.Next() {
		var so types.ExitSignoff
		var decision, signedAt string
		var comment sql.NullString
		if err := rows.Scan(&so.ID, &so.PlanID, &so.Approver, &decision, &comment, &signedAt); err != nil {
			return nil, fmt.Errorf("scan signoff: %w", err)
		}
		so.Decision = types.SignoffDecision(decision)
		so.Comment = comment.String
		so.SignedAt = parseTimeString(signedAt)
		out = append(out, &so)
	}
	return out, rows.Err()
}
