package api

import (
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/steveyegge/cutover/internal/types"
)

var registerOnce sync.Once

// registerValidators teaches gin's validator the cutover enums and makes
// error messages name the JSON field.
func registerValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			_, err := types.ParseSeverity(fl.Field().String())
			return err == nil
		})
		_ = v.RegisterValidation("basis", func(fl validator.FieldLevel) bool {
			b := fl.Field().String()
			return b == "" || types.EscalationBasis(b).IsValid()
		})
	})
}

type createPlanRequest struct {
	Name                   string     `json:"name" binding:"required,max=255"`
	Description            string     `json:"description"`
	PlannedStart           *time.Time `json:"planned_start"`
	PlannedEnd             *time.Time `json:"planned_end"`
	RollbackDeadline       *time.Time `json:"rollback_deadline"`
	HypercareDurationWeeks int        `json:"hypercare_duration_weeks" binding:"gte=0"`
}

type updatePlanRequest struct {
	Name                   *string    `json:"name" binding:"omitempty,max=255"`
	Description            *string    `json:"description"`
	PlannedStart           *time.Time `json:"planned_start"`
	PlannedEnd             *time.Time `json:"planned_end"`
	RollbackDeadline       *time.Time `json:"rollback_deadline"`
	HypercareDurationWeeks *int       `json:"hypercare_duration_weeks"`
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

type scopeItemRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Owner       string `json:"owner"`
}

type updateScopeItemRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Owner       *string `json:"owner"`
}

type createTaskRequest struct {
	ScopeItemID        string `json:"scope_item_id" binding:"required"`
	Key                string `json:"key"`
	Title              string `json:"title" binding:"required"`
	Description        string `json:"description"`
	Owner              string `json:"owner"`
	PlannedDurationMin int    `json:"planned_duration_min"`
	Sequence           int    `json:"sequence"`
}

type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Owner       *string `json:"owner"`
}

type durationRequest struct {
	PlannedDurationMin *int `json:"planned_duration_min" binding:"required"`
}

type noteRequest struct {
	Note string `json:"note" binding:"required"`
}

type dependencyRequest struct {
	PredecessorID string `json:"predecessor_id" binding:"required"`
	SuccessorID   string `json:"successor_id" binding:"required"`
	LagMinutes    int    `json:"lag_minutes"`
}

type rehearsalRequest struct {
	Notes string `json:"notes"`
}

type goNoGoRequest struct {
	Criterion    string `json:"criterion" binding:"required"`
	SourceDomain string `json:"source_domain"`
	Owner        string `json:"owner"`
}

type verdictRequest struct {
	Verdict  string `json:"verdict" binding:"required"`
	Evidence string `json:"evidence"`
}

type incidentRequest struct {
	Title       string     `json:"title" binding:"required"`
	Description string     `json:"description"`
	Severity    string     `json:"severity" binding:"required,severity"`
	Reporter    string     `json:"reporter"`
	Assignee    string     `json:"assignee"`
	ReportedAt  *time.Time `json:"reported_at"`
}

type assignRequest struct {
	Assignee string `json:"assignee"`
}

type commentRequest struct {
	Text string `json:"text" binding:"required"`
}

type slaOverrideRequest struct {
	ResponseMin   int `json:"response_min" binding:"required,gt=0"`
	ResolutionMin int `json:"resolution_min" binding:"required,gt=0,gtefield=ResponseMin"`
}

type ruleRequest struct {
	Severity        string `json:"severity" binding:"required,severity"`
	LevelOrder      int    `json:"level_order" binding:"required,gte=1"`
	TriggerAfterMin int    `json:"trigger_after_min" binding:"gte=0"`
	TargetRole      string `json:"target_role" binding:"required"`
	Basis           string `json:"basis" binding:"basis"`
	Active          *bool  `json:"is_active"`
}

type escalateRequest struct {
	Level  int    `json:"level" binding:"gte=0"`
	Reason string `json:"reason"`
}

type evaluateRequest struct {
	At *time.Time `json:"at"`
}

type criterionRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	Type        string  `json:"type" binding:"required,oneof=auto manual"`
	Metric      string  `json:"metric"`
	Threshold   float64 `json:"threshold" binding:"gte=0,lte=100"`
	Mandatory   bool    `json:"mandatory"`
}

type criterionStatusRequest struct {
	Status   string `json:"status" binding:"required"`
	Evidence string `json:"evidence"`
}

type signoffRequest struct {
	Approver string `json:"approver" binding:"required"`
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
}
