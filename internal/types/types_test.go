package types

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestPlanValidate(t *testing.T) {
	now := time.Now()
	earlier := now.Add(-time.Hour)
	tests := []struct {
		name    string
		plan    Plan
		wantErr bool
	}{
		{"valid", Plan{Name: "Wave 1", Status: PlanDraft, HypercareDurationWeeks: 4}, false},
		{"missing name", Plan{Status: PlanDraft, HypercareDurationWeeks: 4}, true},
		{"blank name", Plan{Name: "   ", Status: PlanDraft, HypercareDurationWeeks: 4}, true},
		{"bad status", Plan{Name: "x", Status: "bogus", HypercareDurationWeeks: 4}, true},
		{"zero hypercare", Plan{Name: "x", Status: PlanDraft}, true},
		{"end before start", Plan{Name: "x", Status: PlanDraft, HypercareDurationWeeks: 1, PlannedStart: &now, PlannedEnd: &earlier}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.plan.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestTaskValidate(t *testing.T) {
	base := Task{Title: "Load GL balances", PlanID: "p", ScopeItemID: "s", Status: TaskNotStarted}
	if err := base.Validate(); err != nil {
		t.Fatalf("valid task rejected: %v", err)
	}

	neg := base
	neg.PlannedDurationMin = -1
	var ve *ValidationError
	if err := neg.Validate(); !errors.As(err, &ve) || ve.Field != "planned_duration_min" {
		t.Errorf("expected planned_duration_min validation error, got %v", err)
	}

	noScope := base
	noScope.ScopeItemID = ""
	if err := noScope.Validate(); err == nil {
		t.Error("expected error for missing scope item")
	}
}

func TestDependencyValidate(t *testing.T) {
	tests := []struct {
		name    string
		dep     Dependency
		wantErr bool
	}{
		{"valid", Dependency{PredecessorID: "a", SuccessorID: "b"}, false},
		{"with lag", Dependency{PredecessorID: "a", SuccessorID: "b", LagMinutes: 30}, false},
		{"self", Dependency{PredecessorID: "a", SuccessorID: "a"}, true},
		{"negative lag", Dependency{PredecessorID: "a", SuccessorID: "b", LagMinutes: -5}, true},
		{"missing end", Dependency{PredecessorID: "a"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.dep.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		in      string
		want    Severity
		wantErr bool
	}{
		{"P1", SeverityP1, false},
		{"p2", SeverityP2, false},
		{"3", SeverityP3, false},
		{" P4 ", SeverityP4, false},
		{"P5", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSeverity(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSeverity(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseSeverity(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIncidentIsOpen(t *testing.T) {
	for status, want := range map[IncidentStatus]bool{
		IncidentOpen:          true,
		IncidentInvestigating: true,
		IncidentResolved:      false,
		IncidentClosed:        false,
	} {
		inc := Incident{Status: status}
		if got := inc.IsOpen(); got != want {
			t.Errorf("IsOpen() for %s = %v, want %v", status, got, want)
		}
	}
}

func TestExitCriterionValidate(t *testing.T) {
	tests := []struct {
		name    string
		c       ExitCriterion
		wantErr bool
	}{
		{"manual", ExitCriterion{Name: "Business sign-off", Type: CriterionManual, Status: CriterionPending}, false},
		{"auto critical", ExitCriterion{Name: "No P1/P2", Type: CriterionAuto, Metric: MetricNoOpenCritical, Status: CriterionPending}, false},
		{"auto sla", ExitCriterion{Name: "SLA", Type: CriterionAuto, Metric: MetricSLACompliance, Threshold: 95, Status: CriterionPending}, false},
		{"auto sla no threshold", ExitCriterion{Name: "SLA", Type: CriterionAuto, Metric: MetricSLACompliance, Status: CriterionPending}, true},
		{"auto no metric", ExitCriterion{Name: "x", Type: CriterionAuto, Status: CriterionPending}, true},
		{"manual with metric", ExitCriterion{Name: "x", Type: CriterionManual, Metric: MetricNoOpenIncidents, Status: CriterionPending}, true},
		{"bad type", ExitCriterion{Name: "x", Type: "sometimes", Status: CriterionPending}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignoffApproves(t *testing.T) {
	if !SignoffApproved.Approves() || !SignoffOverrideApproved.Approves() {
		t.Error("approved and override_approved should approve")
	}
	if SignoffRejected.Approves() {
		t.Error("rejected should not approve")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{Invalid("x", "bad"), KindValidation},
		{NotFound("plan", "p1"), KindNotFound},
		{&InvalidTransitionError{Entity: "task", ID: "t", From: "completed", To: "in_progress"}, KindInvalidTransition},
		{&GuardFailedError{Entity: "task", ID: "t", Condition: "predecessor t0 not completed"}, KindGuardFailed},
		{&CycleDetectedError{PredecessorID: "a", SuccessorID: "b"}, KindCycle},
		{&DuplicateError{Entity: "escalation", Key: "1"}, KindDuplicate},
		{fmt.Errorf("wrapped: %w", NotFound("task", "t")), KindNotFound},
		{ErrGraphCorrupt, KindInternal},
		{errors.New("boom"), KindInternal},
	}
	for _, tt := range tests {
		if got := KindOf(tt.err); got != tt.want {
			t.Errorf("KindOf(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestFormatMinutes(t *testing.T) {
	tests := map[int]string{0: "0m", 45: "45m", 60: "1h00m", 125: "2h05m", -30: "-30m", -90: "-1h30m"}
	for in, want := range tests {
		if got := FormatMinutes(in); got != want {
			t.Errorf("FormatMinutes(%d) = %q, want %q", in, got, want)
		}
	}
}
