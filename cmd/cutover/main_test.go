package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/cutover/internal/config"
	"github.com/steveyegge/cutover/internal/eventbus"
	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/storage/sqlstore"
	"github.com/steveyegge/cutover/internal/types"
)

func TestNeedsStore(t *testing.T) {
	root := &cobra.Command{Use: "cutover"}
	planCmd := &cobra.Command{Use: "plan"}
	listCmd := &cobra.Command{Use: "list"}
	cfgCmd := &cobra.Command{Use: "config"}
	cfgSet := &cobra.Command{Use: "set"}
	rb := &cobra.Command{Use: "runbook"}
	validate := &cobra.Command{Use: "validate <file>"}
	planCmd.AddCommand(listCmd)
	cfgCmd.AddCommand(cfgSet)
	rb.AddCommand(validate)
	root.AddCommand(planCmd, cfgCmd, rb)

	assert.False(t, needsStore(root), "bare root prints help")
	assert.True(t, needsStore(listCmd))
	assert.False(t, needsStore(cfgSet))
	assert.False(t, needsStore(validate))
}

func TestLogLevel(t *testing.T) {
	require.NoError(t, config.Initialize())
	t.Cleanup(func() {
		verboseFlag, quietFlag = false, false
		config.Set(config.KeyLogLevel, "info")
	})

	config.Set(config.KeyLogLevel, "error")
	assert.Equal(t, slog.LevelError, logLevel())

	config.Set(config.KeyLogLevel, "nonsense")
	assert.Equal(t, slog.LevelWarn, logLevel())

	quietFlag = true
	assert.Equal(t, slog.LevelError, logLevel())
	verboseFlag = true
	assert.Equal(t, slog.LevelDebug, logLevel())
}

func TestNewLoggerFloorAndFormat(t *testing.T) {
	require.NoError(t, config.Initialize())
	t.Cleanup(func() { config.Set(config.KeyLogFormat, "text") })

	config.Set(config.KeyLogLevel, "info")
	config.Set(config.KeyLogFormat, "json")
	var buf bytes.Buffer
	l := newLogger(&buf, slog.LevelWarn)
	l.Info("hidden")
	l.Warn("shown", "plan", "CUT-001")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"shown"`)
	assert.Contains(t, out, `"plan":"CUT-001"`)
}

func TestFlatten(t *testing.T) {
	got := flatten("", map[string]any{
		"tenant": "acme",
		"storage": map[string]any{
			"backend": "sqlite",
			"path":    ".cutover/cutover.db",
		},
		"sla": map[string]any{"p1": map[string]any{"response_min": 15}},
	})
	assert.Equal(t, map[string]any{
		"tenant":              "acme",
		"storage.backend":     "sqlite",
		"storage.path":        ".cutover/cutover.db",
		"sla.p1.response_min": 15,
	}, got)
}

func TestTaskLabel(t *testing.T) {
	assert.Equal(t, "freeze", taskLabel(&types.Task{ID: "0190a8c2-7f1e", Key: "freeze"}))
	assert.Equal(t, "0190a8c2", taskLabel(&types.Task{ID: "0190a8c2-7f1e"}))
	assert.Equal(t, "abc", taskLabel(&types.Task{ID: "abc"}))
}

func TestShortCommit(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortCommit("0123456789abcdef"))
	assert.Equal(t, "abc", shortCommit("abc"))
}

func TestParseTimeFlag(t *testing.T) {
	assert.Nil(t, parseTimeFlag("start", ""))

	got := parseTimeFlag("start", "2026-03-01T06:00:00+01:00")
	require.NotNil(t, got)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.Equal(time.Date(2026, 3, 1, 5, 0, 0, 0, time.UTC)))

	assert.True(t, parseAtFlag("").IsZero())
}

func TestEvaluateHypercarePlansWithoutPlans(t *testing.T) {
	ctx := context.Background()
	s, err := sqlstore.OpenSQLite(ctx, t.TempDir()+"/cutover.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	service, err := orchestration.New(s, orchestration.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	require.NoError(t, err)

	scope := types.Scope{TenantID: "acme", ProgramID: "s4-wave1"}
	_, err = service.CreatePlan(ctx, scope, orchestration.PlanInput{Name: "Wave 1"})
	require.NoError(t, err)

	n, err := evaluateHypercarePlans(ctx, service, scope, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, n, "draft plans are not swept")

	_, err = evaluateHypercarePlans(ctx, service, types.Scope{}, time.Time{})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "tenant"), err.Error())
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(""))
	assert.Equal(t, []string{"incident.raised", "escalation.raised"}, splitList(" incident.raised, ,escalation.raised "))
}

func TestNewEventBusHandlers(t *testing.T) {
	require.NoError(t, config.Initialize())
	log = slog.New(slog.NewTextHandler(io.Discard, nil))
	t.Cleanup(func() {
		config.Set(config.KeyNotifyWebhookURL, "")
		config.Set(config.KeyNotifyEvents, "")
	})

	assert.Len(t, newEventBus().Handlers(), 1)

	config.Set(config.KeyNotifyWebhookURL, "http://127.0.0.1:9/hook")
	config.Set(config.KeyNotifyEvents, "incident.raised")
	handlers := newEventBus().Handlers()
	require.Len(t, handlers, 2)
	assert.Equal(t, "webhook", handlers[1].ID())
	assert.Equal(t, []eventbus.EventType{eventbus.EventIncidentRaised}, handlers[1].Handles())
}
