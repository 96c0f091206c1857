// Package lifecycle holds the guarded state machines for cutover plans and
// hypercare incidents.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// DefaultHypercareWeeks applies when a plan does not set its own window.
const DefaultHypercareWeeks = 4

// planTransitions is the allowed (from, to) table. Same-state requests
// and unlisted pairs are invalid transitions.
var planTransitions = map[types.PlanStatus][]types.PlanStatus{
	types.PlanDraft:      {types.PlanApproved},
	types.PlanApproved:   {types.PlanRehearsal, types.PlanReady},
	types.PlanRehearsal:  {types.PlanReady},
	types.PlanReady:      {types.PlanExecuting},
	types.PlanExecuting:  {types.PlanCompleted, types.PlanRolledBack},
	types.PlanCompleted:  {types.PlanHypercare},
	types.PlanHypercare:  {types.PlanClosed},
	types.PlanRolledBack: {types.PlanDraft},
}

// CanTransitionPlan reports whether from -> to is in the plan table.
func CanTransitionPlan(from, to types.PlanStatus) bool {
	for _, s := range planTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// NextPlanStatuses returns the statuses reachable from from in one step.
func NextPlanStatuses(from types.PlanStatus) []types.PlanStatus {
	return append([]types.PlanStatus(nil), planTransitions[from]...)
}

// Facts supplies the read-only state plan guards consult. Each method is
// called only by the transition that needs it.
type Facts interface {
	// CompletedRehearsals counts the plan's rehearsals in completed status.
	CompletedRehearsals(ctx context.Context) (int, error)
	// PendingGoNoGoItems counts Go/No-Go items still pending.
	PendingGoNoGoItems(ctx context.Context) (int, error)
	// CloseBlockers lists unmet mandatory exit criteria and a missing
	// approving sign-off. Empty means hypercare may close.
	CloseBlockers(ctx context.Context) ([]string, error)
}

// CheckPlanTransition validates plan -> to against the table and then the
// guard for that pair, if any.
func CheckPlanTransition(ctx context.Context, plan *types.Plan, to types.PlanStatus, facts Facts) error {
	if !to.IsValid() {
		return types.Invalid("status", "unknown plan status %q", to)
	}
	from := plan.Status
	if !CanTransitionPlan(from, to) {
		return &types.InvalidTransitionError{Entity: "plan", ID: plan.Code, From: string(from), To: string(to)}
	}

	guardErr := func(condition string) error {
		return &types.GuardFailedError{Entity: "plan", ID: plan.Code, From: string(from), To: string(to), Condition: condition}
	}

	switch {
	case to == types.PlanReady:
		n, err := facts.CompletedRehearsals(ctx)
		if err != nil {
			return fmt.Errorf("count completed rehearsals: %w", err)
		}
		if n == 0 {
			return guardErr("at least one completed rehearsal is required")
		}
	case from == types.PlanReady && to == types.PlanExecuting:
		n, err := facts.PendingGoNoGoItems(ctx)
		if err != nil {
			return fmt.Errorf("count pending go/no-go items: %w", err)
		}
		if n > 0 {
			return guardErr(fmt.Sprintf("%d go/no-go item(s) still pending", n))
		}
	case from == types.PlanHypercare && to == types.PlanClosed:
		blockers, err := facts.CloseBlockers(ctx)
		if err != nil {
			return fmt.Errorf("evaluate exit criteria: %w", err)
		}
		if len(blockers) > 0 {
			return guardErr(strings.Join(blockers, "; "))
		}
	}
	return nil
}

// ApplyPlanTransition mutates plan to the target status and applies the
// timestamp side effects of that transition.
func ApplyPlanTransition(plan *types.Plan, to types.PlanStatus, now time.Time) {
	now = now.UTC()
	switch to {
	case types.PlanExecuting:
		plan.ActualStart = &now
	case types.PlanCompleted, types.PlanRolledBack:
		plan.ActualEnd = &now
	case types.PlanHypercare:
		weeks := plan.HypercareDurationWeeks
		if weeks < 1 {
			weeks = DefaultHypercareWeeks
		}
		end := now.AddDate(0, 0, 7*weeks)
		plan.HypercareStart = &now
		plan.HypercareEnd = &end
	}
	plan.Status = to
	plan.UpdatedAt = now
}
