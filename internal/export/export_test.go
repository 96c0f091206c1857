package export

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/storage/sqlstore"
	"github.com/steveyegge/cutover/internal/types"
)

var testScope = types.Scope{TenantID: "acme", ProgramID: "s4-wave1"}

func seededService(t *testing.T) (*orchestration.Service, *types.Plan) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlstore.OpenSQLite(ctx, filepath.Join(t.TempDir(), "cutover.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	svc, err := orchestration.New(store, orchestration.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	plan, err := svc.CreatePlan(ctx, testScope, orchestration.PlanInput{Name: "Wave 1"})
	require.NoError(t, err)
	fi, err := svc.CreateScopeItem(ctx, testScope, orchestration.ScopeItemInput{Name: "Finance"})
	require.NoError(t, err)
	_, err = svc.CreateScopeItem(ctx, testScope, orchestration.ScopeItemInput{Name: "Unused"})
	require.NoError(t, err)

	a, err := svc.AddTask(ctx, testScope, plan.ID, orchestration.TaskInput{ScopeItemID: fi.ID, Title: "Freeze postings", PlannedDurationMin: 30})
	require.NoError(t, err)
	b, err := svc.AddTask(ctx, testScope, plan.ID, orchestration.TaskInput{ScopeItemID: fi.ID, Title: "Extract open items", PlannedDurationMin: 60})
	require.NoError(t, err)
	_, err = svc.AddDependency(ctx, testScope, a.ID, b.ID, 0, "alice")
	require.NoError(t, err)
	return svc, plan
}

func TestCollectAndWrite(t *testing.T) {
	ctx := context.Background()
	svc, plan := seededService(t)
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	snap, err := Collect(ctx, svc, testScope, plan.Code, "alice", now)
	require.NoError(t, err)
	assert.Equal(t, plan.ID, snap.Plan.ID)
	assert.Len(t, snap.Tasks, 2)
	assert.Len(t, snap.Dependencies, 1)
	require.Len(t, snap.ScopeItems, 1, "only scope items used by the plan")
	assert.Equal(t, "Finance", snap.ScopeItems[0].Name)

	path := filepath.Join(t.TempDir(), "out", plan.Code+".json")
	m, err := Write(path, snap)
	require.NoError(t, err)
	assert.Equal(t, plan.Code, m.PlanCode)
	assert.Equal(t, 2, m.Counts["tasks"])
	assert.FileExists(t, ManifestPath(path))

	verified, err := Verify(ManifestPath(path))
	require.NoError(t, err)
	assert.Equal(t, m.SHA256, verified.SHA256)
}

func TestVerifyDetectsTampering(t *testing.T) {
	svc, plan := seededService(t)
	snap, err := Collect(context.Background(), svc, testScope, plan.ID, "", time.Now())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "snap.json")
	_, err = Write(path, snap)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, []byte(`{"plan":{}}`), 0o600))

	_, err = Verify(ManifestPath(path))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not match manifest")
}

func TestCollectUnknownPlan(t *testing.T) {
	svc, _ := seededService(t)
	_, err := Collect(context.Background(), svc, testScope, "CUT-999", "", time.Now())
	require.Error(t, err)
	assert.Equal(t, types.KindNotFound, types.KindOf(err))
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, "/tmp/CUT-001.manifest.json", ManifestPath("/tmp/CUT-001.json"))
	assert.Equal(t, "snap.manifest.json", ManifestPath("snap"))
}
