package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/types"
)

const rehearsalColumns = `id, plan_id, rehearsal_number, status, notes, started_at, completed_at, metrics,
	created_at, updated_at`

func metricsJSON(m *types.RehearsalMetrics) (sql.NullString, error) {
	if m == nil {
		return sql.NullString{}, nil
	}
	return formatJSON(m)
}

// CreateRehearsal inserts a rehearsal. The (plan, number) pair is unique.
func (s *queries) CreateRehearsal(ctx context.Context, scope types.Scope, r *types.Rehearsal) error {
	metrics, err := metricsJSON(r.Metrics)
	if err != nil {
		return fmt.Errorf("marshal rehearsal metrics: %w", err)
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO rehearsals (tenant_id, program_id, `+rehearsalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, r.ID, r.PlanID, r.Number, string(r.Status), nullString(r.Notes),
		formatNullableTime(r.StartedAt), formatNullableTime(r.CompletedAt), metrics,
		formatTime(r.CreatedAt), formatTime(r.UpdatedAt))
	return wrapWriteError("insert rehearsal", "rehearsal", fmt.Sprintf("%s#%d", r.PlanID, r.Number), err)
}

func scanRehearsal(row scanner) (*types.Rehearsal, error) {
	var r types.Rehearsal
	var status, createdAt, updatedAt string
	var notes, startedAt, completedAt, metrics sql.NullString
	if err := row.Scan(&r.ID, &r.PlanID, &r.Number, &status, &notes, &startedAt, &completedAt, &metrics,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	r.Status = types.RehearsalStatus(status)
	r.Notes = notes.String
	r.StartedAt = parseNullableTimeString(startedAt)
	r.CompletedAt = parseNullableTimeString(completedAt)
	if metrics.Valid && metrics.String != "" {
		var m types.RehearsalMetrics
		if err := json.Unmarshal([]byte(metrics.String), &m); err != nil {
			return nil, fmt.Errorf("parse rehearsal metrics: %w", err)
		}
		r.Metrics = &m
	}
	r.CreatedAt = parseTimeString(createdAt)
	r.UpdatedAt = parseTimeString(updatedAt)
	return &r, nil
}

// GetRehearsal retrieves a rehearsal by ID within scope.
func (s *queries) GetRehearsal(ctx context.Context, scope types.Scope, id string) (*types.Rehearsal, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+rehearsalColumns+` FROM rehearsals
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	r, err := scanRehearsal(row)
	if err != nil {
		return nil, wrapDBError("get rehearsal", "rehearsal", id, err)
	}
	return r, nil
}

// ListRehearsals returns a plan's rehearsals by number.
func (s *queries) ListRehearsals(ctx context.Context, scope types.Scope, planID string) ([]*types.Rehearsal, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+rehearsalColumns+` FROM rehearsals
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ? ORDER BY rehearsal_number`,
		planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list rehearsals: %w", err)
	}
	defer rows.Close()

	var out []*types.Rehearsal
	for rows.Next() {
		r, err := scanRehearsal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan rehearsal: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateRehearsalStatus is a compare-and-swap on status that also writes
// timestamps, notes and the metrics snapshot.
func (s *queries) UpdateRehearsalStatus(ctx context.Context, scope types.Scope, r *types.Rehearsal, from types.RehearsalStatus) error {
	metrics, err := metricsJSON(r.Metrics)
	if err != nil {
		return fmt.Errorf("marshal rehearsal metrics: %w", err)
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE rehearsals SET status = ?, notes = ?, started_at = ?, completed_at = ?, metrics = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ? AND status = ?
	`, string(r.Status), nullString(r.Notes), formatNullableTime(r.StartedAt), formatNullableTime(r.CompletedAt),
		metrics, formatTime(r.UpdatedAt), r.ID, scope.TenantID, scope.ProgramID, string(from))
	if err != nil {
		return fmt.Errorf("update rehearsal status: %w", err)
	}
	if err := checkAffected(res, "rehearsal", r.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return storage.ErrStatusChanged
		}
		return err
	}
	return nil
}

// NextRehearsalNumber returns one above the plan's highest rehearsal number.
func (s *queries) NextRehearsalNumber(ctx context.Context, scope types.Scope, planID string) (int, error) {
	var highest sql.NullInt64
	err := s.q.QueryRowContext(ctx, `SELECT MAX(rehearsal_number) FROM rehearsals
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?`, planID, scope.TenantID, scope.ProgramID).Scan(&highest)
	if err != nil {
		return 0, fmt.Errorf("next rehearsal number: %w", err)
	}
	return int(highest.Int64) + 1, nil
}

// CountRehearsals counts a plan's rehearsals in the given status.
func (s *queries) CountRehearsals(ctx context.Context, scope types.Scope, planID string, status types.RehearsalStatus) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM rehearsals
		WHERE plan_id = ? AND status = ? AND tenant_id = ? AND program_id = ?`,
		planID, string(status), scope.TenantID, scope.ProgramID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count rehearsals: %w", err)
	}
	return n, nil
}

const goNoGoColumns = `id, plan_id, criterion, source_domain, owner, verdict, evidence, evaluated_at, evaluated_by,
	created_at, updated_at`

// CreateGoNoGoItem inserts a readiness checklist item.
func (s *queries) CreateGoNoGoItem(ctx context.Context, scope types.Scope, item *types.GoNoGoItem) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO go_no_go_items (tenant_id, program_id, `+goNoGoColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, item.ID, item.PlanID, item.Criterion, nullString(item.SourceDomain),
		nullString(item.Owner), string(item.Verdict), nullString(item.Evidence), formatNullableTime(item.EvaluatedAt),
		nullString(item.EvaluatedBy), formatTime(item.CreatedAt), formatTime(item.UpdatedAt))
	return wrapWriteError("insert go/no-go item", "go/no-go item", item.ID, err)
}

func scanGoNoGoItem(row scanner) (*types.GoNoGoItem, error) {
	var item types.GoNoGoItem
	var verdict, createdAt, updatedAt string
	var domain, owner, evidence, evaluatedAt, evaluatedBy sql.NullString
	if err := row.Scan(&item.ID, &item.PlanID, &item.Criterion, &domain, &owner, &verdict, &evidence,
		&evaluatedAt, &evaluatedBy, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	item.SourceDomain = domain.String
	item.Owner = owner.String
	item.Verdict = types.Verdict(verdict)
	item.Evidence = evidence.String
	item.EvaluatedAt = parseNullableTimeString(evaluatedAt)
	item.EvaluatedBy = evaluatedBy.String
	item.CreatedAt = parseTimeString(createdAt)
	item.UpdatedAt = parseTimeString(updatedAt)
	return &item, nil
}

// GetGoNoGoItem retrieves an item by ID within scope.
func (s *queries) GetGoNoGoItem(ctx context.Context, scope types.Scope, id string) (*types.GoNoGoItem, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+goNoGoColumns+` FROM go_no_go_items
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	item, err := scanGoNoGoItem(row)
	if err != nil {
		return nil, wrapDBError("get go/no-go item", "go/no-go item", id, err)
	}
	return item, nil
}

// ListGoNoGoItems returns a plan's checklist in creation order.
func (s *queries) ListGoNoGoItems(ctx context.Context, scope types.Scope, planID string) ([]*types.GoNoGoItem, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+goNoGoColumns+` FROM go_no_go_items
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ? ORDER BY created_at, id`,
		planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list go/no-go items: %w", err)
	}
	defer rows.Close()

	var items []*types.GoNoGoItem
	for rows.Next() {
		item, err := scanGoNoGoItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan go/no-go item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// UpdateGoNoGoItem writes every mutable field of an item.
func (s *queries) UpdateGoNoGoItem(ctx context.Context, scope types.Scope, item *types.GoNoGoItem) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE go_no_go_items SET criterion = ?, source_domain = ?, owner = ?, verdict = ?, evidence = ?,
			evaluated_at = ?, evaluated_by = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, item.Criterion, nullString(item.SourceDomain), nullString(item.Owner), string(item.Verdict),
		nullString(item.Evidence), formatNullableTime(item.EvaluatedAt), nullString(item.EvaluatedBy),
		formatTime(item.UpdatedAt), item.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update go/no-go item: %w", err)
	}
	return checkAffected(res, "go/no-go item", item.ID)
}
