// Package cutover provides a minimal public API for driving cutover plans
// from Go programs.
//
// It opens a store the same way the cutover CLI does and returns the
// orchestration service. Everything else (the HTTP API, the CLI, the
// runbook format) is built on the same service.
package cutover

import (
	"context"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/storage/factory"
	"github.com/steveyegge/cutover/internal/types"
)

// Core types
type (
	Service    = orchestration.Service
	Options    = orchestration.Options
	Scope      = types.Scope
	Plan       = types.Plan
	PlanFilter = types.PlanFilter
	Task       = types.Task
	Incident   = types.Incident
	Severity   = types.Severity
)

// Plan status constants
const (
	PlanDraft      = types.PlanDraft
	PlanApproved   = types.PlanApproved
	PlanRehearsal  = types.PlanRehearsal
	PlanReady      = types.PlanReady
	PlanExecuting  = types.PlanExecuting
	PlanCompleted  = types.PlanCompleted
	PlanHypercare  = types.PlanHypercare
	PlanClosed     = types.PlanClosed
	PlanRolledBack = types.PlanRolledBack
)

// Open opens (creating if needed) a SQLite database at path and returns a
// service over it. Close the service's store when done:
//
//	svc, err := cutover.Open(ctx, ".cutover/cutover.db", cutover.Options{})
//	defer svc.Store().Close()
func Open(ctx context.Context, path string, opts Options) (*Service, error) {
	return OpenBackend(ctx, "sqlite", path, opts)
}

// OpenBackend is Open for a named backend ("sqlite" or "mysql"). For mysql,
// path is the DSN.
func OpenBackend(ctx context.Context, backend, path string, opts Options) (*Service, error) {
	var fopts factory.Options
	if backend == "mysql" {
		fopts.DSN = path
	}
	store, err := factory.NewWithOptions(ctx, backend, path, fopts)
	if err != nil {
		return nil, err
	}
	svc, err := orchestration.New(store, opts)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return svc, nil
}
