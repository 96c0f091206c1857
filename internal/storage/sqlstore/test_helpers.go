package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/steveyegge/cutover/internal/types"
)

// newTestStore opens a file-backed SQLite store under t.TempDir().
// File databases behave like production under the connection pool; the
// shared ":memory:" database would leak state between tests.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := OpenSQLite(context.Background(), t.TempDir()+"/test.db")
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if cerr := store.Close(); cerr != nil {
			t.Fatalf("Failed to close test database: %v", cerr)
		}
	})
	return store
}

var testScope = types.Scope{TenantID: "acme", ProgramID: "s4-wave1"}

var testNow = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// seedPlan inserts a draft plan with one scope item and returns both.
func seedPlan(t *testing.T, s *Store, code string) (*types.Plan, *types.ScopeItem) {
	t.Helper()
	ctx := context.Background()

	plan := &types.Plan{
		ID:                     "plan-" + code,
		TenantID:               testScope.TenantID,
		ProgramID:              testScope.ProgramID,
		Code:                   code,
		Name:                   "Go-live " + code,
		Status:                 types.PlanDraft,
		HypercareDurationWeeks: 4,
		CreatedAt:              testNow,
		UpdatedAt:              testNow,
	}
	if err := s.CreatePlan(ctx, plan); err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	item := &types.ScopeItem{
		ID:        "si-" + code,
		TenantID:  testScope.TenantID,
		ProgramID: testScope.ProgramID,
		Name:      "Finance",
		CreatedAt: testNow,
		UpdatedAt: testNow,
	}
	if err := s.CreateScopeItem(ctx, item); err != nil {
		t.Fatalf("CreateScopeItem: %v", err)
	}
	return plan, item
}

func seedTask(t *testing.T, s *Store, plan *types.Plan, item *types.ScopeItem, id string, duration int) *types.Task {
	t.Helper()
	task := &types.Task{
		ID:                 id,
		PlanID:             plan.ID,
		ScopeItemID:        item.ID,
		Title:              "Task " + id,
		Status:             types.TaskNotStarted,
		PlannedDurationMin: duration,
		CreatedAt:          testNow,
		UpdatedAt:          testNow,
	}
	if err := s.CreateTask(context.Background(), testScope, task); err != nil {
		t.Fatalf("CreateTask %s: %v", id, err)
	}
	return task
}
