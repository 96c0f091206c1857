package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/cutover/internal/api"
	"github.com/steveyegge/cutover/internal/config"
	"github.com/steveyegge/cutover/internal/orchestration"
	"github.com/steveyegge/cutover/internal/storage/factory"
	"github.com/steveyegge/cutover/internal/telemetry"
	"github.com/steveyegge/cutover/internal/types"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	GroupID: "setup",
	Short:   "Run the HTTP API",
	Long: `Run the HTTP API on --addr (default server.addr, :8420).

Requests are scoped by the X-Tenant-ID and X-Program-ID headers; X-Actor
names the caller for audit fields. /healthz and /metrics are unscoped.

With --escalate-every, the server also evaluates escalation rules for every
hypercare plan of the configured tenant/program on that interval.`,
	Run: func(cmd *cobra.Command, args []string) {
		addr, _ := cmd.Flags().GetString("addr")
		if addr == "" {
			addr = config.GetString(config.KeyServerAddr)
		}
		every, _ := cmd.Flags().GetDuration("escalate-every")

		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		if err := telemetry.Init(rootCtx, "cutover", Version, telemetry.Options{PrometheusRegisterer: reg}); err != nil {
			WarnError("telemetry init failed: %v", err)
		}

		s, err := factory.NewFromConfig(rootCtx)
		if err != nil {
			FatalError("failed to open %s store: %v", config.GetString(config.KeyStorageBackend), err)
		}
		store = s
		svc, err = newService(s, telemetry.NewRecorder())
		if err != nil {
			FatalError("%v", err)
		}

		srv := api.New(svc, api.Options{Logger: log, Registry: reg, ServiceName: "cutover"})
		config.Watch(func() {
			log.Info("configuration reloaded", "sla", config.SLATargets())
		})

		g, ctx := errgroup.WithContext(rootCtx)
		g.Go(func() error { return srv.Run(ctx, addr) })
		if every > 0 {
			scope := currentScope()
			g.Go(func() error { return escalationLoop(ctx, svc, scope, every) })
		}
		if err := g.Wait(); err != nil {
			FatalError("server: %v", err)
		}
	},
}

// escalationLoop evaluates escalation rules for hypercare plans until ctx is
// done. Evaluation errors are logged and do not stop the loop.
func escalationLoop(ctx context.Context, svc *orchestration.Service, scope types.Scope, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		n, err := evaluateHypercarePlans(ctx, svc, scope, time.Time{})
		if err != nil {
			log.Warn("escalation sweep failed", "error", err)
			continue
		}
		if n > 0 {
			log.Info("escalation sweep", "raised", n)
		}
	}
}

// evaluateHypercarePlans runs EvaluateEscalations for every plan in
// hypercare and returns the number of events raised.
func evaluateHypercarePlans(ctx context.Context, svc *orchestration.Service, scope types.Scope, now time.Time) (int, error) {
	status := types.PlanHypercare
	plans, err := svc.ListPlans(ctx, scope, types.PlanFilter{Status: &status})
	if err != nil {
		return 0, err
	}
	raised := 0
	for _, p := range plans {
		events, err := svc.EvaluateEscalations(ctx, scope, p.ID, now)
		if err != nil {
			return raised, fmt.Errorf("plan %s: %w", p.Code, err)
		}
		raised += len(events)
	}
	return raised, nil
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default: server.addr)")
	serveCmd.Flags().Duration("escalate-every", 0, "Evaluate escalation rules on this interval (0 disables)")
	rootCmd.AddCommand(serveCmd)
}
