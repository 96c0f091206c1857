package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/steveyegge/cutover/internal/types"
)

// SetEscalationRule upserts one level of a plan's escalation matrix.
func (s *queries) SetEscalationRule(ctx context.Context, scope types.Scope, rule *types.EscalationRule) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE escalation_rules SET trigger_after_min = ?, target_role = ?, basis = ?, is_active = ?
		WHERE plan_id = ? AND severity = ? AND level_order = ? AND tenant_id = ? AND program_id = ?
	`, rule.TriggerAfterMin, rule.TargetRole, string(rule.Basis), boolInt(rule.IsActive),
		rule.PlanID, string(rule.Severity), rule.LevelOrder, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update escalation rule: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO escalation_rules (tenant_id, program_id, plan_id, severity, level_order,
			trigger_after_min, target_role, basis, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, rule.PlanID, string(rule.Severity), rule.LevelOrder,
		rule.TriggerAfterMin, rule.TargetRole, string(rule.Basis), boolInt(rule.IsActive))
	return wrapWriteError("insert escalation rule", "escalation rule",
		fmt.Sprintf("%s/%s/L%d", rule.PlanID, rule.Severity, rule.LevelOrder), err)
}

// ListEscalationRules returns a plan's configured rules by severity then level.
func (s *queries) ListEscalationRules(ctx context.Context, scope types.Scope, planID string) ([]*types.EscalationRule, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT plan_id, severity, level_order, trigger_after_min, target_role, basis, is_active
		FROM escalation_rules
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?
		ORDER BY severity, level_order
	`, planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list escalation rules: %w", err)
	}
	defer rows.Close()

	var rules []*types.EscalationRule
	for rows.Next() {
		var r types.EscalationRule
		var severity, basis string
		var active int
		if err := rows.Scan(&r.PlanID, &severity, &r.LevelOrder, &r.TriggerAfterMin, &r.TargetRole, &basis, &active); err != nil {
			return nil, fmt.Errorf("scan escalation rule: %w", err)
		}
		r.Severity = types.Severity(severity)
		r.Basis = types.EscalationBasis(basis)
		r.IsActive = active != 0
		rules = append(rules, &r)
	}
	return rules, rows.Err()
}

const escalationEventColumns = `id, incident_id, plan_id, level, target_role, is_auto, reason,
	triggered_at, triggered_by, acknowledged_at, acknowledged_by`

// CreateEscalationEvent records an escalation. A second event at the same
// level for the same incident is a DuplicateError, which keeps repeated
// evaluation idempotent even across racing writers.
func (s *queries) CreateEscalationEvent(ctx context.Context, scope types.Scope, ev *types.EscalationEvent) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO escalation_events (tenant_id, program_id, `+escalationEventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, ev.ID, ev.IncidentID, ev.PlanID, ev.Level, nullString(ev.TargetRole),
		boolInt(ev.IsAuto), nullString(ev.Reason), formatTime(ev.TriggeredAt), nullString(ev.TriggeredBy),
		formatNullableTime(ev.AcknowledgedAt), nullString(ev.AcknowledgedBy))
	return wrapWriteError("insert escalation event", "escalation",
		fmt.Sprintf("%s level %d", ev.IncidentID, ev.Level), err)
}

func scanEscalationEvent(row scanner) (*types.EscalationEvent, error) {
	var ev types.EscalationEvent
	var triggeredAt string
	var auto int
	var role, reason, triggeredBy, ackAt, ackBy sql.NullString
	if err := row.Scan(&ev.ID, &ev.IncidentID, &ev.PlanID, &ev.Level, &role, &auto, &reason,
		&triggeredAt, &triggeredBy, &ackAt, &ackBy); err != nil {
		return nil, err
	}
	ev.TargetRole = role.String
	ev.IsAuto = auto != 0
	ev.Reason = reason.String
	ev.TriggeredAt = parseTimeString(triggeredAt)
	ev.TriggeredBy = triggeredBy.String
	ev.AcknowledgedAt = parseNullableTimeString(ackAt)
	ev.AcknowledgedBy = ackBy.String
	return &ev, nil
}

// GetEscalationEvent retrieves an event by ID within scope.
func (s *queries) GetEscalationEvent(ctx context.Context, scope types.Scope, id string) (*types.EscalationEvent, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+escalationEventColumns+` FROM escalation_events
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	ev, err := scanEscalationEvent(row)
	if err != nil {
		return nil, wrapDBError("get escalation event", "escalation", id, err)
	}
	return ev, nil
}

// ListEscalationEvents returns an incident's escalations by level.
func (s *queries) ListEscalationEvents(ctx context.Context, scope types.Scope, incidentID string) ([]*types.EscalationEvent, error) {
	rows, err := s.q.QueryContext(ctx, `SELECT `+escalationEventColumns+` FROM escalation_events
		WHERE incident_id = ? AND tenant_id = ? AND program_id = ? ORDER BY level`,
		incidentID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list escalation events: %w", err)
	}
	defer rows.Close()

	var events []*types.EscalationEvent
	for rows.Next() {
		ev, err := scanEscalationEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan escalation event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// UpdateEscalationEvent writes the acknowledgement fields.
func (s *queries) UpdateEscalationEvent(ctx context.Context, scope types.Scope, ev *types.EscalationEvent) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE escalation_events SET acknowledged_at = ?, acknowledged_by = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, formatNullableTime(ev.AcknowledgedAt), nullString(ev.AcknowledgedBy), ev.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update escalation event: %w", err)
	}
	return checkAffected(res, "escalation", ev.ID)
}
