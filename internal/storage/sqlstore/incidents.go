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

const incidentColumns = `id, plan_id, title, description, severity, status, reporter, assignee, reported_at,
	sla_response_deadline, sla_resolution_deadline, first_response_at, resolved_at, closed_at,
	created_at, updated_at`

// CreateIncident inserts a hypercare incident with its stamped SLA deadlines.
func (s *queries) CreateIncident(ctx context.Context, scope types.Scope, inc *types.Incident) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO incidents (tenant_id, program_id, `+incidentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, inc.ID, inc.PlanID, inc.Title, nullString(inc.Description),
		string(inc.Severity), string(inc.Status), nullString(inc.Reporter), nullString(inc.Assignee),
		formatTime(inc.ReportedAt), formatTime(inc.SLAResponseDeadline), formatTime(inc.SLAResolutionDeadline),
		formatNullableTime(inc.FirstResponseAt), formatNullableTime(inc.ResolvedAt), formatNullableTime(inc.ClosedAt),
		formatTime(inc.CreatedAt), formatTime(inc.UpdatedAt))
	return wrapWriteError("insert incident", "incident", inc.ID, err)
}

func scanIncident(row scanner) (*types.Incident, error) {
	var inc types.Incident
	var severity, status, reportedAt, responseDeadline, resolutionDeadline, createdAt, updatedAt string
	var description, reporter, assignee sql.NullString
	var firstResponse, resolved, closed sql.NullString
	if err := row.Scan(&inc.ID, &inc.PlanID, &inc.Title, &description, &severity, &status, &reporter, &assignee,
		&reportedAt, &responseDeadline, &resolutionDeadline, &firstResponse, &resolved, &closed,
		&createdAt, &updatedAt); err != nil {
		return nil, err
	}
	inc.Description = description.String
	inc.Severity = types.Severity(severity)
	inc.Status = types.IncidentStatus(status)
	inc.Reporter = reporter.String
	inc.Assignee = assignee.String
	inc.ReportedAt = parseTimeString(reportedAt)
	inc.SLAResponseDeadline = parseTimeString(responseDeadline)
	inc.SLAResolutionDeadline = parseTimeString(resolutionDeadline)
	inc.FirstResponseAt = parseNullableTimeString(firstResponse)
	inc.ResolvedAt = parseNullableTimeString(resolved)
	inc.ClosedAt = parseNullableTimeString(closed)
	inc.CreatedAt = parseTimeString(createdAt)
	inc.UpdatedAt = parseTimeString(updatedAt)
	return &inc, nil
}

// GetIncident retrieves an incident by ID within scope.
func (s *queries) GetIncident(ctx context.Context, scope types.Scope, id string) (*types.Incident, error) {
	row := s.q.QueryRowContext(ctx, `SELECT `+incidentColumns+` FROM incidents
		WHERE id = ? AND tenant_id = ? AND program_id = ?`, id, scope.TenantID, scope.ProgramID)
	inc, err := scanIncident(row)
	if err != nil {
		return nil, wrapDBError("get incident", "incident", id, err)
	}
	return inc, nil
}

// ListIncidents returns a plan's incidents, most recently reported first.
func (s *queries) ListIncidents(ctx context.Context, scope types.Scope, planID string, filter types.IncidentFilter) ([]*types.Incident, error) {
	where := []string{"plan_id = ?", "tenant_id = ?", "program_id = ?"}
	args := []any{planID, scope.TenantID, scope.ProgramID}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.Severity != nil {
		where = append(where, "severity = ?")
		args = append(args, string(*filter.Severity))
	}
	if filter.OpenOnly {
		where = append(where, "status IN (?, ?)")
		args = append(args, string(types.IncidentOpen), string(types.IncidentInvestigating))
	}

	rows, err := s.q.QueryContext(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE `+
		strings.Join(where, " AND ")+` ORDER BY reported_at DESC, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	var out []*types.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		out = append(out, inc)
	}
	return out, rows.Err()
}

// UpdateIncidentStatus is a compare-and-swap on status that also writes the
// response, resolution and closure stamps.
func (s *queries) UpdateIncidentStatus(ctx context.Context, scope types.Scope, inc *types.Incident, from types.IncidentStatus) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE incidents SET status = ?, first_response_at = ?, resolved_at = ?, closed_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ? AND status = ?
	`, string(inc.Status), formatNullableTime(inc.FirstResponseAt), formatNullableTime(inc.ResolvedAt),
		formatNullableTime(inc.ClosedAt), formatTime(inc.UpdatedAt),
		inc.ID, scope.TenantID, scope.ProgramID, string(from))
	if err != nil {
		return fmt.Errorf("update incident status: %w", err)
	}
	if err := checkAffected(res, "incident", inc.ID); err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return storage.ErrStatusChanged
		}
		return err
	}
	return nil
}

// UpdateIncident writes title, description, assignee and the first
// response stamp. Severity and deadlines are fixed at creation.
func (s *queries) UpdateIncident(ctx context.Context, scope types.Scope, inc *types.Incident) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE incidents SET title = ?, description = ?, assignee = ?, first_response_at = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND program_id = ?
	`, inc.Title, nullString(inc.Description), nullString(inc.Assignee), formatNullableTime(inc.FirstResponseAt),
		formatTime(inc.UpdatedAt), inc.ID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return checkAffected(res, "incident", inc.ID)
}

// AddIncidentComment appends a comment to an incident.
func (s *queries) AddIncidentComment(ctx context.Context, scope types.Scope, c *types.IncidentComment) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO incident_comments (id, tenant_id, program_id, incident_id, author, body, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ID, scope.TenantID, scope.ProgramID, c.IncidentID, c.Author, c.Text, formatTime(c.CreatedAt))
	return wrapWriteError("insert comment", "comment", c.ID, err)
}

// ListIncidentComments returns an incident's comments oldest first.
func (s *queries) ListIncidentComments(ctx context.Context, scope types.Scope, incidentID string) ([]*types.IncidentComment, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, incident_id, author, body, created_at FROM incident_comments
		WHERE incident_id = ? AND tenant_id = ? AND program_id = ?
		ORDER BY created_at, id
	`, incidentID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	var comments []*types.IncidentComment
	for rows.Next() {
		var c types.IncidentComment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IncidentID, &c.Author, &c.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		c.CreatedAt = parseTimeString(createdAt)
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

// SetSLAOverride upserts a plan's SLA target for one severity.
func (s *queries) SetSLAOverride(ctx context.Context, scope types.Scope, o *types.HypercareSLA) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE hypercare_slas SET response_min = ?, resolution_min = ?, updated_at = ?
		WHERE plan_id = ? AND severity = ? AND tenant_id = ? AND program_id = ?
	`, o.Target.ResponseMin, o.Target.ResolutionMin, formatTime(o.UpdatedAt),
		o.PlanID, string(o.Severity), scope.TenantID, scope.ProgramID)
	if err != nil {
		return fmt.Errorf("update sla override: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	_, err = s.q.ExecContext(ctx, `
		INSERT INTO hypercare_slas (tenant_id, program_id, plan_id, severity, response_min, resolution_min, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, scope.TenantID, scope.ProgramID, o.PlanID, string(o.Severity), o.Target.ResponseMin, o.Target.ResolutionMin,
		formatTime(o.UpdatedAt))
	return wrapWriteError("insert sla override", "sla override", o.PlanID+"/"+string(o.Severity), err)
}

// ListSLAOverrides returns a plan's SLA overrides by severity.
func (s *queries) ListSLAOverrides(ctx context.Context, scope types.Scope, planID string) ([]*types.HypercareSLA, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT plan_id, severity, response_min, resolution_min, updated_at FROM hypercare_slas
		WHERE plan_id = ? AND tenant_id = ? AND program_id = ?
		ORDER BY severity
	`, planID, scope.TenantID, scope.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list sla overrides: %w", err)
	}
	defer rows.Close()

	var out []*types.HypercareSLA
	for rows.Next() {
		var o types.HypercareSLA
		var severity, updatedAt string
		if err := rows.Scan(&o.PlanID, &severity, &o.Target.ResponseMin, &o.Target.ResolutionMin, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan sla override: %w", err)
		}
		o.Severity = types.Severity(severity)
		o.UpdatedAt = parseTimeString(updatedAt)
		out = append(out, &o)
	}
	return out, rows.Err()
}
