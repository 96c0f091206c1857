package orchestration

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/storage"
	"github.com/steveyegge/cutover/internal/storage/sqlstore"
	"github.com/steveyegge/cutover/internal/types"
)

var testScope = types.Scope{TenantID: "acme", ProgramID: "s4-wave1"}

var testStart = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

// testClock is a settable clock shared by a test and its Service.
type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	return newTestServiceOn(t, openTestStore(t))
}

func openTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := sqlstore.OpenSQLite(context.Background(), t.TempDir()+"/cutover.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// newTestServiceOn builds a Service over store with sequential ids that are
// safe to draw from several goroutines.
func newTestServiceOn(t *testing.T, store storage.Storage) (*Service, *testClock) {
	t.Helper()
	clock := &testClock{now: testStart}
	var n atomic.Int64
	svc, err := New(store, Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Now:    clock.Now,
		NewID: func() string {
			return fmt.Sprintf("id-%04d", n.Add(1))
		},
	})
	require.NoError(t, err)
	return svc, clock
}

func mustPlan(t *testing.T, svc *Service, name string) *types.Plan {
	t.Helper()
	plan, err := svc.CreatePlan(context.Background(), testScope, PlanInput{Name: name, CreatedBy: "alice"})
	require.NoError(t, err)
	return plan
}

func mustScopeItem(t *testing.T, svc *Service, name string) *types.ScopeItem {
	t.Helper()
	item, err := svc.CreateScopeItem(context.Background(), testScope, ScopeItemInput{Name: name})
	require.NoError(t, err)
	return item
}

func mustTask(t *testing.T, svc *Service, plan *types.Plan, item *types.ScopeItem, title string, minutes int) *types.Task {
	t.Helper()
	task, err := svc.AddTask(context.Background(), testScope, plan.ID, TaskInput{
		ScopeItemID:        item.ID,
		Title:              title,
		PlannedDurationMin: minutes,
	})
	require.NoError(t, err)
	return task
}

func mustTransition(t *testing.T, svc *Service, plan *types.Plan, to types.PlanStatus) *types.Plan {
	t.Helper()
	got, err := svc.TransitionPlan(context.Background(), testScope, plan.ID, to, "alice")
	require.NoError(t, err, "transition %s -> %s", plan.Status, to)
	return got
}

// completeRehearsal schedules, starts and completes one rehearsal.
func completeRehearsal(t *testing.T, svc *Service, plan *types.Plan) *types.Rehearsal {
	t.Helper()
	ctx := context.Background()
	r, err := svc.CreateRehearsal(ctx, testScope, plan.ID, "")
	require.NoError(t, err)
	_, err = svc.StartRehearsal(ctx, testScope, r.ID, "alice")
	require.NoError(t, err)
	r, err = svc.CompleteRehearsal(ctx, testScope, r.ID, "alice")
	require.NoError(t, err)
	return r
}

// planInHypercare drives a fresh plan through the full lifecycle into
// hypercare.
func planInHypercare(t *testing.T, svc *Service) *types.Plan {
	t.Helper()
	plan := mustPlan(t, svc, "Wave 1 go-live")
	plan = mustTransition(t, svc, plan, types.PlanApproved)
	plan = mustTransition(t, svc, plan, types.PlanRehearsal)
	completeRehearsal(t, svc, plan)
	plan = mustTransition(t, svc, plan, types.PlanReady)
	plan = mustTransition(t, svc, plan, types.PlanExecuting)
	plan = mustTransition(t, svc, plan, types.PlanCompleted)
	return mustTransition(t, svc, plan, types.PlanHypercare)
}
