// Package export writes point-in-time snapshots of a cutover plan.
//
// A snapshot is one JSON document holding the plan and everything hanging
// off it. Next to it a manifest records counts and a SHA-256 of the
// snapshot, so an archived go-live record can be checked later.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// Source is the read side of the orchestration service.
type Source interface {
	GetPlan(ctx context.Context, scope types.Scope, ref string) (*types.Plan, error)
	ListScopeItems(ctx context.Context, scope types.Scope) ([]*types.ScopeItem, error)
	ListTasks(ctx context.Context, scope types.Scope, planRef string) ([]*types.Task, error)
	ListDependencies(ctx context.Context, scope types.Scope, planRef string) ([]*types.Dependency, error)
	ListRehearsals(ctx context.Context, scope types.Scope, planRef string) ([]*types.Rehearsal, error)
	ListGoNoGoItems(ctx context.Context, scope types.Scope, planRef string) ([]*types.GoNoGoItem, error)
	ListIncidents(ctx context.Context, scope types.Scope, planRef string, filter types.IncidentFilter) ([]*types.Incident, error)
	ListSLAOverrides(ctx context.Context, scope types.Scope, planRef string) ([]*types.HypercareSLA, error)
	ListEscalationRules(ctx context.Context, scope types.Scope, planRef string) ([]*types.EscalationRule, error)
	ListExitCriteria(ctx context.Context, scope types.Scope, planRef string) ([]*types.ExitCriterion, error)
	ListSignoffs(ctx context.Context, scope types.Scope, planRef string) ([]*types.ExitSignoff, error)
}

// Snapshot is the exported document.
type Snapshot struct {
	ExportedAt      time.Time               `json:"exported_at"`
	ExportedBy      string                  `json:"exported_by,omitempty"`
	Scope           types.Scope             `json:"scope"`
	Plan            *types.Plan             `json:"plan"`
	ScopeItems      []*types.ScopeItem      `json:"scope_items"`
	Tasks           []*types.Task           `json:"tasks"`
	Dependencies    []*types.Dependency     `json:"dependencies"`
	Rehearsals      []*types.Rehearsal      `json:"rehearsals"`
	GoNoGoItems     []*types.GoNoGoItem     `json:"go_no_go_items"`
	Incidents       []*types.Incident       `json:"incidents"`
	SLAOverrides    []*types.HypercareSLA   `json:"sla_overrides"`
	EscalationRules []*types.EscalationRule `json:"escalation_rules"`
	ExitCriteria    []*types.ExitCriterion  `json:"exit_criteria"`
	Signoffs        []*types.ExitSignoff    `json:"signoffs"`
}

// Collect reads a plan and its children from src. Only scope items used
// by the plan's tasks are included.
func Collect(ctx context.Context, src Source, scope types.Scope, planRef, actor string, now time.Time) (*Snapshot, error) {
	plan, err := src.GetPlan(ctx, scope, planRef)
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{ExportedAt: now.UTC(), ExportedBy: actor, Scope: scope, Plan: plan}
	ref := plan.ID

	steps := []struct {
		name string
		fn   func() error
	}{
		{"tasks", func() (err error) { snap.Tasks, err = src.ListTasks(ctx, scope, ref); return }},
		{"dependencies", func() (err error) { snap.Dependencies, err = src.ListDependencies(ctx, scope, ref); return }},
		{"rehearsals", func() (err error) { snap.Rehearsals, err = src.ListRehearsals(ctx, scope, ref); return }},
		{"go/no-go items", func() (err error) { snap.GoNoGoItems, err = src.ListGoNoGoItems(ctx, scope, ref); return }},
		{"incidents", func() (err error) {
			snap.Incidents, err = src.ListIncidents(ctx, scope, ref, types.IncidentFilter{})
			return
		}},
		{"sla overrides", func() (err error) { snap.SLAOverrides, err = src.ListSLAOverrides(ctx, scope, ref); return }},
		{"escalation rules", func() (err error) { snap.EscalationRules, err = src.ListEscalationRules(ctx, scope, ref); return }},
		{"exit criteria", func() (err error) { snap.ExitCriteria, err = src.ListExitCriteria(ctx, scope, ref); return }},
		{"signoffs", func() (err error) { snap.Signoffs, err = src.ListSignoffs(ctx, scope, ref); return }},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return nil, fmt.Errorf("export %s: %w", step.name, err)
		}
	}

	items, err := src.ListScopeItems(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("export scope items: %w", err)
	}
	used := make(map[string]bool, len(snap.Tasks))
	for _, t := range snap.Tasks {
		used[t.ScopeItemID] = true
	}
	snap.ScopeItems = []*types.ScopeItem{}
	for _, item := range items {
		if used[item.ID] {
			snap.ScopeItems = append(snap.ScopeItems, item)
		}
	}
	return snap, nil
}
