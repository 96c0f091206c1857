// Package storage defines the persistence boundary of the cutover core.
//
// The concrete implementation lives in the sqlstore sub-package. Every
// method takes the caller's Scope and filters on both tenant and program,
// so an entity outside the scope is reported exactly like a missing one.
package storage

import (
	"context"
	"errors"

	"github.com/steveyegge/cutover/internal/types"
)

// ErrStatusChanged is returned by the compare-and-swap status updates when
// the stored status no longer matches the expected source status.
var ErrStatusChanged = errors.New("status changed concurrently")

// ErrNotInitialized is returned when the schema has not been applied.
var ErrNotInitialized = errors.New("database not initialized")

// Queries is the set of reads and writes available both on a Storage and
// inside a Transaction.
type Queries interface {
	// Plans
	CreatePlan(ctx context.Context, plan *types.Plan) error
	GetPlan(ctx context.Context, scope types.Scope, id string) (*types.Plan, error)
	GetPlanByCode(ctx context.Context, scope types.Scope, code string) (*types.Plan, error)
	ListPlans(ctx context.Context, scope types.Scope, filter types.PlanFilter) ([]*types.Plan, error)
	UpdatePlan(ctx context.Context, scope types.Scope, plan *types.Plan) error
	// UpdatePlanStatus writes plan.Status and its lifecycle timestamps only
	// if the stored status still equals from.
	UpdatePlanStatus(ctx context.Context, scope types.Scope, plan *types.Plan, from types.PlanStatus) error
	NextPlanNumber(ctx context.Context, scope types.Scope) (int, error)

	// Scope items
	CreateScopeItem(ctx context.Context, item *types.ScopeItem) error
	GetScopeItem(ctx context.Context, scope types.Scope, id string) (*types.ScopeItem, error)
	ListScopeItems(ctx context.Context, scope types.Scope) ([]*types.ScopeItem, error)
	UpdateScopeItem(ctx context.Context, scope types.Scope, item *types.ScopeItem) error
	DeleteScopeItem(ctx context.Context, scope types.Scope, id string) error
	CountTasksForScopeItem(ctx context.Context, scope types.Scope, id string) (int, error)

	// Runbook tasks
	CreateTask(ctx context.Context, scope types.Scope, task *types.Task) error
	GetTask(ctx context.Context, scope types.Scope, id string) (*types.Task, error)
	ListTasks(ctx context.Context, scope types.Scope, planID string) ([]*types.Task, error)
	UpdateTask(ctx context.Context, scope types.Scope, task *types.Task) error
	// UpdateTaskStatus writes status, actuals and delay only if the stored
	// status still equals from.
	UpdateTaskStatus(ctx context.Context, scope types.Scope, task *types.Task, from types.TaskStatus) error
	SetCriticalPathFlags(ctx context.Context, scope types.Scope, planID string, flags map[string]bool) error
	DeleteTask(ctx context.Context, scope types.Scope, id string) error
	NextTaskSequence(ctx context.Context, scope types.Scope, planID string) (int, error)

	// Dependencies
	AddDependency(ctx context.Context, scope types.Scope, dep *types.Dependency) error
	RemoveDependency(ctx context.Context, scope types.Scope, planID, predecessorID, successorID string) error
	ListDependencies(ctx context.Context, scope types.Scope, planID string) ([]*types.Dependency, error)

	// Rehearsals
	CreateRehearsal(ctx context.Context, scope types.Scope, r *types.Rehearsal) error
	GetRehearsal(ctx context.Context, scope types.Scope, id string) (*types.Rehearsal, error)
	ListRehearsals(ctx context.Context, scope types.Scope, planID string) ([]*types.Rehearsal, error)
	UpdateRehearsalStatus(ctx context.Context, scope types.Scope, r *types.Rehearsal, from types.RehearsalStatus) error
	NextRehearsalNumber(ctx context.Context, scope types.Scope, planID string) (int, error)
	CountRehearsals(ctx context.Context, scope types.Scope, planID string, status types.RehearsalStatus) (int, error)

	// Go/No-Go
	CreateGoNoGoItem(ctx context.Context, scope types.Scope, item *types.GoNoGoItem) error
	GetGoNoGoItem(ctx context.Context, scope types.Scope, id string) (*types.GoNoGoItem, error)
	ListGoNoGoItems(ctx context.Context, scope types.Scope, planID string) ([]*types.GoNoGoItem, error)
	UpdateGoNoGoItem(ctx context.Context, scope types.Scope, item *types.GoNoGoItem) error

	// Hypercare incidents
	CreateIncident(ctx context.Context, scope types.Scope, inc *types.Incident) error
	GetIncident(ctx context.Context, scope types.Scope, id string) (*types.Incident, error)
	ListIncidents(ctx context.Context, scope types.Scope, planID string, filter types.IncidentFilter) ([]*types.Incident, error)
	// UpdateIncidentStatus writes status and response/resolution stamps
	// only if the stored status still equals from.
	UpdateIncidentStatus(ctx context.Context, scope types.Scope, inc *types.Incident, from types.IncidentStatus) error
	UpdateIncident(ctx context.Context, scope types.Scope, inc *types.Incident) error
	AddIncidentComment(ctx context.Context, scope types.Scope, c *types.IncidentComment) error
	ListIncidentComments(ctx context.Context, scope types.Scope, incidentID string) ([]*types.IncidentComment, error)

	// SLA overrides
	SetSLAOverride(ctx context.Context, scope types.Scope, o *types.HypercareSLA) error
	ListSLAOverrides(ctx context.Context, scope types.Scope, planID string) ([]*types.HypercareSLA, error)

	// Escalation
	SetEscalationRule(ctx context.Context, scope types.Scope, rule *types.EscalationRule) error
	ListEscalationRules(ctx context.Context, scope types.Scope, planID string) ([]*types.EscalationRule, error)
	CreateEscalationEvent(ctx context.Context, scope types.Scope, ev *types.EscalationEvent) error
	GetEscalationEvent(ctx context.Context, scope types.Scope, id string) (*types.EscalationEvent, error)
	ListEscalationEvents(ctx context.Context, scope types.Scope, incidentID string) ([]*types.EscalationEvent, error)
	UpdateEscalationEvent(ctx context.Context, scope types.Scope, ev *types.EscalationEvent) error

	// Exit criteria and sign-off
	CreateExitCriterion(ctx context.Context, scope types.Scope, c *types.ExitCriterion) error
	GetExitCriterion(ctx context.Context, scope types.Scope, id string) (*types.ExitCriterion, error)
	ListExitCriteria(ctx context.Context, scope types.Scope, planID string) ([]*types.ExitCriterion, error)
	UpdateExitCriterion(ctx context.Context, scope types.Scope, c *types.ExitCriterion) error
	CreateSignoff(ctx context.Context, scope types.Scope, s *types.ExitSignoff) error
	ListSignoffs(ctx context.Context, scope types.Scope, planID string) ([]*types.ExitSignoff, error)
}

// Transaction provides atomic multi-operation support within a single
// database transaction.
//
//   - All operations share one connection
//   - Changes are invisible to other connections until commit
//   - A returned error or a panic rolls the transaction back
//   - A nil return commits
//
// Example:
//
//	err := store.RunInTransaction(ctx, func(tx storage.Transaction) error {
//	    plan, err := tx.GetPlan(ctx, scope, planID)
//	    if err != nil {
//	        return err // rollback
//	    }
//	    plan.Status = types.PlanApproved
//	    return tx.UpdatePlanStatus(ctx, scope, plan, types.PlanDraft)
//	})
type Transaction interface {
	Queries

	// LockPlan holds the plan row until the transaction ends, so writers
	// that read and then change one plan's task graph or sequence numbers
	// run one after another. NotFoundError if the plan is not in scope.
	LockPlan(ctx context.Context, scope types.Scope, planID string) error

	// LockScope does the same for allocations shared by a whole
	// tenant/program, such as plan codes.
	LockScope(ctx context.Context, scope types.Scope) error
}

// Storage is the interface satisfied by *sqlstore.Store. Consumers depend
// on it so alternative implementations can be substituted.
type Storage interface {
	Queries

	// RunInTransaction executes fn inside one database transaction.
	RunInTransaction(ctx context.Context, fn func(tx Transaction) error) error

	// Backend names the engine in use ("sqlite" or "mysql").
	Backend() string

	Close() error
}
