// Package types defines core data structures for the cutover orchestration core.
package types

import (
	"fmt"
	"strings"
	"time"
)

// Scope partitions every entity by tenant and program. Lookups outside the
// caller's scope behave exactly like lookups of entities that do not exist.
type Scope struct {
	TenantID  string `json:"tenant_id"`
	ProgramID string `json:"program_id"`
}

// Validate checks that both identifiers are present.
func (s Scope) Validate() error {
	if strings.TrimSpace(s.TenantID) == "" {
		return Invalid("tenant_id", "is required")
	}
	if strings.TrimSpace(s.ProgramID) == "" {
		return Invalid("program_id", "is required")
	}
	return nil
}

func (s Scope) String() string {
	return s.TenantID + "/" + s.ProgramID
}

// Plan represents one cutover execution event for a program wave
type Plan struct {
	ID                     string     `json:"id"`
	TenantID               string     `json:"tenant_id"`
	ProgramID              string     `json:"program_id"`
	Code                   string     `json:"code"` // Sequential, immutable once assigned (e.g. CUT-007)
	Name                   string     `json:"name"`
	Description            string     `json:"description,omitempty"`
	Status                 PlanStatus `json:"status"`
	PlannedStart           *time.Time `json:"planned_start,omitempty"`
	PlannedEnd             *time.Time `json:"planned_end,omitempty"`
	ActualStart            *time.Time `json:"actual_start,omitempty"`
	ActualEnd              *time.Time `json:"actual_end,omitempty"`
	RollbackDeadline       *time.Time `json:"rollback_deadline,omitempty"`
	HypercareDurationWeeks int        `json:"hypercare_duration_weeks"`
	HypercareStart         *time.Time `json:"hypercare_start,omitempty"`
	HypercareEnd           *time.Time `json:"hypercare_end,omitempty"`
	CreatedBy              string     `json:"created_by,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at"`
}

// Scope returns the tenant/program partition the plan belongs to.
func (p *Plan) Scope() Scope {
	return Scope{TenantID: p.TenantID, ProgramID: p.ProgramID}
}

// Validate checks if the plan has valid field values
func (p *Plan) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return Invalid("name", "is required")
	}
	if len(p.Name) > 255 {
		return Invalid("name", "must be 255 characters or less (got %d)", len(p.Name))
	}
	if !p.Status.IsValid() {
		return Invalid("status", "unknown plan status %q", p.Status)
	}
	if p.HypercareDurationWeeks < 1 {
		return Invalid("hypercare_duration_weeks", "must be at least 1 (got %d)", p.HypercareDurationWeeks)
	}
	if p.PlannedStart != nil && p.PlannedEnd != nil && p.PlannedEnd.Before(*p.PlannedStart) {
		return Invalid("planned_end", "must not be before planned_start")
	}
	return nil
}

// PlanStatus represents the lifecycle state of a cutover plan
type PlanStatus string

// Plan status constants
const (
	PlanDraft      PlanStatus = "draft"
	PlanApproved   PlanStatus = "approved"
	PlanRehearsal  PlanStatus = "rehearsal"
	PlanReady      PlanStatus = "ready"
	PlanExecuting  PlanStatus = "executing"
	PlanCompleted  PlanStatus = "completed"
	PlanHypercare  PlanStatus = "hypercare"
	PlanClosed     PlanStatus = "closed"
	PlanRolledBack PlanStatus = "rolled_back"
)

// IsValid checks if the status value is one of the nine plan states
func (s PlanStatus) IsValid() bool {
	switch s {
	case PlanDraft, PlanApproved, PlanRehearsal, PlanReady, PlanExecuting,
		PlanCompleted, PlanHypercare, PlanClosed, PlanRolledBack:
		return true
	}
	return false
}

// ScopeItem is a collaborator record that runbook tasks hang off.
type ScopeItem struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ProgramID   string    `json:"program_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Owner       string    `json:"owner,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Task is an atomic step in the cutover runbook
type Task struct {
	ID                 string     `json:"id"`
	PlanID             string     `json:"plan_id"`
	ScopeItemID        string     `json:"scope_item_id"`
	Key                string     `json:"key,omitempty"` // Stable key from runbook import, unique per plan when set
	Title              string     `json:"title"`
	Description        string     `json:"description,omitempty"`
	Owner              string     `json:"owner,omitempty"`
	Status             TaskStatus `json:"status"`
	Sequence           int        `json:"sequence"`
	PlannedDurationMin int        `json:"planned_duration_min"`
	ActualStart        *time.Time `json:"actual_start,omitempty"`
	ActualEnd          *time.Time `json:"actual_end,omitempty"`
	DelayMinutes       *int       `json:"delay_minutes,omitempty"` // actual - planned, negative for early finishes
	IsCriticalPath     bool       `json:"is_critical_path"`
	IssueNote          string     `json:"issue_note,omitempty"` // Append-only log
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Validate checks if the task has valid field values
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return Invalid("title", "is required")
	}
	if len(t.Title) > 500 {
		return Invalid("title", "must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.PlanID == "" {
		return Invalid("plan_id", "is required")
	}
	if t.ScopeItemID == "" {
		return Invalid("scope_item_id", "is required")
	}
	if t.PlannedDurationMin < 0 {
		return Invalid("planned_duration_min", "cannot be negative (got %d)", t.PlannedDurationMin)
	}
	if t.Sequence < 0 {
		return Invalid("sequence", "cannot be negative (got %d)", t.Sequence)
	}
	if !t.Status.IsValid() {
		return Invalid("status", "unknown task status %q", t.Status)
	}
	return nil
}

// TaskStatus represents the execution state of a runbook task
type TaskStatus string

// Task status constants
const (
	TaskNotStarted TaskStatus = "not_started"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
	TaskSkipped    TaskStatus = "skipped"
	TaskRolledBack TaskStatus = "rolled_back"
)

// IsValid checks if the status value is one of the six task states
func (s TaskStatus) IsValid() bool {
	switch s {
	case TaskNotStarted, TaskInProgress, TaskCompleted, TaskFailed, TaskSkipped, TaskRolledBack:
		return true
	}
	return false
}

// Satisfied reports whether a predecessor in this state lets successors start.
func (s TaskStatus) Satisfied() bool {
	return s == TaskCompleted || s == TaskSkipped
}

// AllTaskStatuses lists task states in display order.
func AllTaskStatuses() []TaskStatus {
	return []TaskStatus{TaskNotStarted, TaskInProgress, TaskCompleted, TaskFailed, TaskSkipped, TaskRolledBack}
}

// Dependency is a directed edge between two tasks of the same plan
type Dependency struct {
	PlanID        string    `json:"plan_id"`
	PredecessorID string    `json:"predecessor_id"`
	SuccessorID   string    `json:"successor_id"`
	LagMinutes    int       `json:"lag_minutes"`
	CreatedAt     time.Time `json:"created_at"`
	CreatedBy     string    `json:"created_by,omitempty"`
}

// Validate checks the edge shape; plan membership is checked by the caller.
func (d *Dependency) Validate() error {
	if d.PredecessorID == "" || d.SuccessorID == "" {
		return Invalid("dependency", "predecessor and successor are required")
	}
	if d.PredecessorID == d.SuccessorID {
		return Invalid("dependency", "task %s cannot depend on itself", d.PredecessorID)
	}
	if d.LagMinutes < 0 {
		return Invalid("lag_minutes", "cannot be negative (got %d)", d.LagMinutes)
	}
	return nil
}

// Rehearsal is a dry run of the runbook
type Rehearsal struct {
	ID          string            `json:"id"`
	PlanID      string            `json:"plan_id"`
	Number      int               `json:"rehearsal_number"`
	Status      RehearsalStatus   `json:"status"`
	Notes       string            `json:"notes,omitempty"`
	StartedAt   *time.Time        `json:"started_at,omitempty"`
	CompletedAt *time.Time        `json:"completed_at,omitempty"`
	Metrics     *RehearsalMetrics `json:"metrics,omitempty"` // Snapshot taken on completion
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// RehearsalStatus represents the state of a rehearsal
type RehearsalStatus string

// Rehearsal status constants
const (
	RehearsalPlanned    RehearsalStatus = "planned"
	RehearsalInProgress RehearsalStatus = "in_progress"
	RehearsalCompleted  RehearsalStatus = "completed"
	RehearsalCancelled  RehearsalStatus = "cancelled"
)

// IsValid checks if the rehearsal status value is valid
func (s RehearsalStatus) IsValid() bool {
	switch s {
	case RehearsalPlanned, RehearsalInProgress, RehearsalCompleted, RehearsalCancelled:
		return true
	}
	return false
}

// RehearsalMetrics is the execution snapshot recorded when a rehearsal completes
type RehearsalMetrics struct {
	TotalTasks            int                `json:"total_tasks"`
	StatusCounts          map[TaskStatus]int `json:"status_counts"`
	CompletedCount        int                `json:"completed_count"`
	FailedCount           int                `json:"failed_count"`
	SkippedCount          int                `json:"skipped_count"`
	PlannedTotalMin       int                `json:"planned_total_min"`
	MeasuredPlannedMin    int                `json:"measured_planned_min"` // Planned minutes of tasks with actual times
	ActualTotalMin        int                `json:"actual_total_min"`
	VariancePct           float64            `json:"variance_pct"`
	RunbookRevisionNeeded bool               `json:"runbook_revision_needed"`
}

// GoNoGoItem is one readiness criterion evaluated before execution
type GoNoGoItem struct {
	ID           string     `json:"id"`
	PlanID       string     `json:"plan_id"`
	Criterion    string     `json:"criterion"`
	SourceDomain string     `json:"source_domain,omitempty"`
	Owner        string     `json:"owner,omitempty"`
	Verdict      Verdict    `json:"verdict"`
	Evidence     string     `json:"evidence,omitempty"`
	EvaluatedAt  *time.Time `json:"evaluated_at,omitempty"`
	EvaluatedBy  string     `json:"evaluated_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Verdict is the evaluation outcome of a Go/No-Go item
type Verdict string

// Verdict constants
const (
	VerdictPending Verdict = "pending"
	VerdictGo      Verdict = "go"
	VerdictNoGo    Verdict = "no_go"
	VerdictWaived  Verdict = "waived"
)

// IsValid checks if the verdict value is valid
func (v Verdict) IsValid() bool {
	switch v {
	case VerdictPending, VerdictGo, VerdictNoGo, VerdictWaived:
		return true
	}
	return false
}

// ReadinessVerdict is the aggregate over a plan's Go/No-Go items. It is
// always computed, never stored.
type ReadinessVerdict string

// Readiness verdict constants
const (
	ReadinessNoItems ReadinessVerdict = "no_items"
	ReadinessNoGo    ReadinessVerdict = "no_go"
	ReadinessPending ReadinessVerdict = "pending"
	ReadinessGo      ReadinessVerdict = "go"
)

// Readiness summarises Go/No-Go items for a plan
type Readiness struct {
	Verdict ReadinessVerdict `json:"verdict"`
	Total   int              `json:"total"`
	Go      int              `json:"go"`
	NoGo    int              `json:"no_go"`
	Pending int              `json:"pending"`
	Waived  int              `json:"waived"`
}

// Severity of a hypercare incident. P1 is the most severe.
type Severity string

// Severity constants
const (
	SeverityP1 Severity = "P1"
	SeverityP2 Severity = "P2"
	SeverityP3 Severity = "P3"
	SeverityP4 Severity = "P4"
)

// IsValid checks if the severity value is valid
func (s Severity) IsValid() bool {
	switch s {
	case SeverityP1, SeverityP2, SeverityP3, SeverityP4:
		return true
	}
	return false
}

// Rank returns 1 for P1 through 4 for P4, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityP1:
		return 1
	case SeverityP2:
		return 2
	case SeverityP3:
		return 3
	case SeverityP4:
		return 4
	}
	return 0
}

// ParseSeverity accepts "P1".."P4" (case-insensitive) or "1".."4".
func ParseSeverity(s string) (Severity, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "P") {
		s = "P" + s
	}
	sev := Severity(s)
	if !sev.IsValid() {
		return "", Invalid("severity", "invalid severity %q (expected P1-P4)", s)
	}
	return sev, nil
}

// AllSeverities lists severities from most to least severe.
func AllSeverities() []Severity {
	return []Severity{SeverityP1, SeverityP2, SeverityP3, SeverityP4}
}

// Incident is a hypercare-phase incident tracked against SLA
type Incident struct {
	ID          string         `json:"id"`
	PlanID      string         `json:"plan_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Severity    Severity       `json:"severity"`
	Status      IncidentStatus `json:"status"`
	Reporter    string         `json:"reporter,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	ReportedAt  time.Time      `json:"reported_at"`
	// Deadlines are derived once at creation and never recalculated.
	SLAResponseDeadline   time.Time  `json:"sla_response_deadline"`
	SLAResolutionDeadline time.Time  `json:"sla_resolution_deadline"`
	FirstResponseAt       *time.Time `json:"first_response_at,omitempty"`
	ResolvedAt            *time.Time `json:"resolved_at,omitempty"`
	ClosedAt              *time.Time `json:"closed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// IsOpen reports whether the incident is neither resolved nor closed.
func (i *Incident) IsOpen() bool {
	return i.Status == IncidentOpen || i.Status == IncidentInvestigating
}

// Validate checks if the incident has valid field values
func (i *Incident) Validate() error {
	if strings.TrimSpace(i.Title) == "" {
		return Invalid("title", "is required")
	}
	if !i.Severity.IsValid() {
		return Invalid("severity", "invalid severity %q (expected P1-P4)", i.Severity)
	}
	if !i.Status.IsValid() {
		return Invalid("status", "unknown incident status %q", i.Status)
	}
	if i.ReportedAt.IsZero() {
		return Invalid("reported_at", "is required")
	}
	return nil
}

// IncidentStatus represents the state of a hypercare incident
type IncidentStatus string

// Incident status constants
const (
	IncidentOpen          IncidentStatus = "open"
	IncidentInvestigating IncidentStatus = "investigating"
	IncidentResolved      IncidentStatus = "resolved"
	IncidentClosed        IncidentStatus = "closed"
)

// IsValid checks if the incident status value is valid
func (s IncidentStatus) IsValid() bool {
	switch s {
	case IncidentOpen, IncidentInvestigating, IncidentResolved, IncidentClosed:
		return true
	}
	return false
}

// IncidentComment is a collaborator record attached to an incident
type IncidentComment struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// SLATarget holds response/resolution minutes for one severity
type SLATarget struct {
	ResponseMin   int `json:"response_min" mapstructure:"response-min"`
	ResolutionMin int `json:"resolution_min" mapstructure:"resolution-min"`
}

// Validate checks that both targets are positive and ordered.
func (t SLATarget) Validate() error {
	if t.ResponseMin <= 0 {
		return Invalid("response_min", "must be positive (got %d)", t.ResponseMin)
	}
	if t.ResolutionMin <= 0 {
		return Invalid("resolution_min", "must be positive (got %d)", t.ResolutionMin)
	}
	if t.ResolutionMin < t.ResponseMin {
		return Invalid("resolution_min", "must not be shorter than response_min")
	}
	return nil
}

// HypercareSLA is a per-plan override of the default targets for one severity
type HypercareSLA struct {
	PlanID   string    `json:"plan_id"`
	Severity Severity  `json:"severity"`
	Target   SLATarget `json:"target"`
	// UpdatedAt is informational; incidents already created keep their deadlines.
	UpdatedAt time.Time `json:"updated_at"`
}

// SLAStatus is the lazily computed breach projection of an incident
type SLAStatus struct {
	IncidentID         string    `json:"incident_id"`
	Severity           Severity  `json:"severity"`
	ResponseDeadline   time.Time `json:"response_deadline"`
	ResolutionDeadline time.Time `json:"resolution_deadline"`
	ResponseBreached   bool      `json:"response_breached"`
	ResolutionBreached bool      `json:"resolution_breached"`
	EvaluatedAt        time.Time `json:"evaluated_at"`
}

// Breached reports whether either deadline is breached.
func (s SLAStatus) Breached() bool {
	return s.ResponseBreached || s.ResolutionBreached
}

// EscalationBasis selects the reference point a rule measures elapsed time from
type EscalationBasis string

// Escalation basis constants
const (
	BasisReported       EscalationBasis = "reported"        // since incident reported_at
	BasisLastEscalation EscalationBasis = "last_escalation" // since the latest lower-level event
)

// IsValid checks if the basis value is valid
func (b EscalationBasis) IsValid() bool {
	return b == BasisReported || b == BasisLastEscalation
}

// EscalationRule is one row of the severity-ordered escalation matrix
type EscalationRule struct {
	PlanID          string          `json:"plan_id,omitempty"` // Empty for built-in defaults
	Severity        Severity        `json:"severity"`
	LevelOrder      int             `json:"level_order"`
	TriggerAfterMin int             `json:"trigger_after_min"`
	TargetRole      string          `json:"target_role"`
	Basis           EscalationBasis `json:"basis"`
	IsActive        bool            `json:"is_active"`
}

// Validate checks if the rule has valid field values
func (r *EscalationRule) Validate() error {
	if !r.Severity.IsValid() {
		return Invalid("severity", "invalid severity %q (expected P1-P4)", r.Severity)
	}
	if r.LevelOrder < 1 {
		return Invalid("level_order", "must be at least 1 (got %d)", r.LevelOrder)
	}
	if r.TriggerAfterMin < 0 {
		return Invalid("trigger_after_min", "cannot be negative (got %d)", r.TriggerAfterMin)
	}
	if strings.TrimSpace(r.TargetRole) == "" {
		return Invalid("target_role", "is required")
	}
	if !r.Basis.IsValid() {
		return Invalid("basis", "unknown escalation basis %q", r.Basis)
	}
	return nil
}

// EscalationEvent records that an incident was escalated to a level.
// (incident_id, level) is unique.
type EscalationEvent struct {
	ID             string     `json:"id"`
	IncidentID     string     `json:"incident_id"`
	PlanID         string     `json:"plan_id"`
	Level          int        `json:"level"`
	TargetRole     string     `json:"target_role,omitempty"`
	IsAuto         bool       `json:"is_auto"`
	Reason         string     `json:"reason,omitempty"`
	TriggeredAt    time.Time  `json:"triggered_at"`
	TriggeredBy    string     `json:"triggered_by,omitempty"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
	AcknowledgedBy string     `json:"acknowledged_by,omitempty"`
}

// CriterionType distinguishes auto-evaluated from human-set exit criteria
type CriterionType string

// Criterion type constants
const (
	CriterionAuto   CriterionType = "auto"
	CriterionManual CriterionType = "manual"
)

// IsValid checks if the criterion type is valid
func (t CriterionType) IsValid() bool {
	return t == CriterionAuto || t == CriterionManual
}

// CriterionStatus is the evaluation state of an exit criterion
type CriterionStatus string

// Criterion status constants
const (
	CriterionPending CriterionStatus = "pending"
	CriterionMet     CriterionStatus = "met"
	CriterionNotMet  CriterionStatus = "not_met"
)

// IsValid checks if the criterion status is valid
func (s CriterionStatus) IsValid() bool {
	switch s {
	case CriterionPending, CriterionMet, CriterionNotMet:
		return true
	}
	return false
}

// ExitMetric names the incident query an auto criterion is computed from
type ExitMetric string

// Exit metric constants
const (
	MetricNoOpenCritical  ExitMetric = "no_open_critical"  // zero open P1/P2 incidents
	MetricSLACompliance   ExitMetric = "sla_compliance"    // % of incidents without breach >= threshold
	MetricNoOpenIncidents ExitMetric = "no_open_incidents" // zero open incidents of any severity
)

// IsValid checks if the metric is one the evaluator understands
func (m ExitMetric) IsValid() bool {
	switch m {
	case MetricNoOpenCritical, MetricSLACompliance, MetricNoOpenIncidents:
		return true
	}
	return false
}

// ExitCriterion is a condition that must hold before hypercare may close
type ExitCriterion struct {
	ID          string          `json:"id"`
	PlanID      string          `json:"plan_id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Type        CriterionType   `json:"type"`
	Metric      ExitMetric      `json:"metric,omitempty"`    // auto criteria only
	Threshold   float64         `json:"threshold,omitempty"` // sla_compliance only, percent
	Mandatory   bool            `json:"mandatory"`
	Status      CriterionStatus `json:"status"`
	Evidence    string          `json:"evidence,omitempty"`
	EvaluatedAt *time.Time      `json:"evaluated_at,omitempty"`
	EvaluatedBy string          `json:"evaluated_by,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Validate checks if the criterion has valid field values
func (c *ExitCriterion) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return Invalid("name", "is required")
	}
	if !c.Type.IsValid() {
		return Invalid("type", "unknown criterion type %q (expected auto or manual)", c.Type)
	}
	if !c.Status.IsValid() {
		return Invalid("status", "unknown criterion status %q", c.Status)
	}
	switch c.Type {
	case CriterionAuto:
		if !c.Metric.IsValid() {
			return Invalid("metric", "auto criteria need a known metric (got %q)", c.Metric)
		}
		if c.Metric == MetricSLACompliance && (c.Threshold <= 0 || c.Threshold > 100) {
			return Invalid("threshold", "must be in (0, 100] for sla_compliance (got %g)", c.Threshold)
		}
	case CriterionManual:
		if c.Metric != "" {
			return Invalid("metric", "manual criteria cannot have a metric")
		}
	}
	return nil
}

// SignoffDecision is the outcome recorded on an exit sign-off
type SignoffDecision string

// Sign-off decision constants
const (
	SignoffApproved         SignoffDecision = "approved"
	SignoffRejected         SignoffDecision = "rejected"
	SignoffOverrideApproved SignoffDecision = "override_approved"
)

// IsValid checks if the decision value is valid
func (d SignoffDecision) IsValid() bool {
	switch d {
	case SignoffApproved, SignoffRejected, SignoffOverrideApproved:
		return true
	}
	return false
}

// Approves reports whether the decision allows hypercare to close.
func (d SignoffDecision) Approves() bool {
	return d == SignoffApproved || d == SignoffOverrideApproved
}

// ExitSignoff is a recorded hypercare exit decision for a plan
type ExitSignoff struct {
	ID       string          `json:"id"`
	PlanID   string          `json:"plan_id"`
	Approver string          `json:"approver"`
	Decision SignoffDecision `json:"decision"`
	Comment  string          `json:"comment,omitempty"`
	SignedAt time.Time       `json:"signed_at"`
}

// PlanFilter is used to filter plan queries
type PlanFilter struct {
	Status *PlanStatus
	Limit  int
}

// IncidentFilter is used to filter incident queries
type IncidentFilter struct {
	Status   *IncidentStatus
	Severity *Severity
	OpenOnly bool
}

// CriticalPath is the longest duration-weighted chain through a plan's tasks
type CriticalPath struct {
	PlanID       string   `json:"plan_id"`
	TaskIDs      []string `json:"task_ids"` // In execution order
	TotalMinutes int      `json:"total_minutes"`
}

// FormatMinutes renders a minute count as "1h05m" for CLI output.
func FormatMinutes(min int) string {
	sign := ""
	if min < 0 {
		sign = "-"
		min = -min
	}
	if min < 60 {
		return fmt.Sprintf("%s%dm", sign, min)
	}
	return fmt.Sprintf("%s%dh%02dm", sign, min/60, min%60)
}
