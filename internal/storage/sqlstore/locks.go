package sqlstore

import (
	"context"
	"fmt"

	"github.com/steveyegge/cutover/internal/types"
)

// LockPlan takes an exclusive lock on the plan row until commit. SQLite
// writers are already serialized by BEGIN IMMEDIATE, so there the plan is
// only looked up.
func (s *queries) LockPlan(ctx context.Context, scope types.Scope, planID string) error {
	query := `SELECT id FROM plans WHERE id = ? AND tenant_id = ? AND program_id = ?`
	if s.rowLocks {
		query += " FOR UPDATE"
	}
	var id string
	err := s.q.QueryRowContext(ctx, query, planID, scope.TenantID, scope.ProgramID).Scan(&id)
	return wrapDBError("lock plan", "plan", planID, err)
}

// LockScope locks the scope's row in scope_locks, creating it on first use.
// The upsert takes an exclusive row lock either way.
func (s *queries) LockScope(ctx context.Context, scope types.Scope) error {
	if !s.rowLocks {
		return nil
	}
	_, err := s.q.ExecContext(ctx, `INSERT INTO scope_locks (tenant_id, program_id) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE tenant_id = tenant_id`, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("lock scope %s: %w", scope, err)
	}
	return nil
}
