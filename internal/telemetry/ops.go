package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/steveyegge/cutover/internal/types"
)

const opsScopeName = "github.com/steveyegge/cutover/internal/orchestration"

// Recorder opens a span per orchestration operation and counts it in the
// cutover.* metrics. Instruments are resolved from the global providers at
// construction, so build it after Init.
type Recorder struct {
	tracer trace.Tracer
	ops    metric.Int64Counter
	dur    metric.Float64Histogram
	errs   metric.Int64Counter
}

// NewRecorder builds a Recorder against the current global providers.
func NewRecorder() *Recorder {
	m := Meter(opsScopeName)
	ops, _ := m.Int64Counter("cutover.operations",
		metric.WithDescription("Total orchestration operations executed"),
	)
	dur, _ := m.Float64Histogram("cutover.operation.duration",
		metric.WithDescription("Orchestration operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("cutover.errors",
		metric.WithDescription("Orchestration operation errors by kind"),
	)
	return &Recorder{
		tracer: Tracer(opsScopeName),
		ops:    ops,
		dur:    dur,
		errs:   errs,
	}
}

// Start begins the named operation. The returned func must be called
// exactly once with the operation's error.
func (r *Recorder) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	all := append([]attribute.KeyValue{attribute.String("cutover.operation", name)}, attrs...)
	ctx, span := r.tracer.Start(ctx, "cutover."+name, trace.WithAttributes(all...))
	r.ops.Add(ctx, 1, metric.WithAttributes(all[0]))
	start := time.Now()

	return ctx, func(err error) {
		ms := float64(time.Since(start).Microseconds()) / 1000
		r.dur.Record(ctx, ms, metric.WithAttributes(all[0]))
		if err != nil {
			kind := types.KindOf(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			span.SetAttributes(attribute.String("cutover.error.kind", kind))
			r.errs.Add(ctx, 1, metric.WithAttributes(all[0], attribute.String("kind", kind)))
		}
		span.End()
	}
}

// Scope returns the standard tenant/program attributes.
func Scope(s types.Scope) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("cutover.tenant", s.TenantID),
		attribute.String("cutover.program", s.ProgramID),
	}
}
