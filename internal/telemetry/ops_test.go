package telemetry

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/steveyegge/cutover/internal/types"
)

func TestRecorderCountsOperationsAndErrors(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { otel.SetMeterProvider(prev) })

	rec := NewRecorder()
	ctx := context.Background()

	_, done := rec.Start(ctx, "CreatePlan", Scope(types.Scope{TenantID: "t", ProgramID: "p"})...)
	done(nil)
	_, done = rec.Start(ctx, "TransitionPlan")
	done(types.NotFound("plan", "x"))
	_, done = rec.Start(ctx, "TransitionPlan")
	done(errors.New("disk on fire"))

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	sums := map[string]int64{}
	kinds := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			data, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range data.DataPoints {
				sums[m.Name] += dp.Value
				if m.Name == "cutover.errors" {
					if v, ok := dp.Attributes.Value("kind"); ok {
						kinds[v.AsString()] += dp.Value
					}
				}
			}
		}
	}
	if sums["cutover.operations"] != 3 {
		t.Errorf("cutover.operations = %d, want 3", sums["cutover.operations"])
	}
	if sums["cutover.errors"] != 2 {
		t.Errorf("cutover.errors = %d, want 2", sums["cutover.errors"])
	}
	if kinds[types.KindNotFound] != 1 || kinds[types.KindInternal] != 1 {
		t.Errorf("error kinds = %v", kinds)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	t.Setenv("CUTOVER_OTEL_ENABLED", "")
	if err := Init(context.Background(), "cutover", "test", Options{}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if Enabled() {
		t.Fatal("Enabled() should be false")
	}
	Shutdown(context.Background())
}
