package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/steveyegge/cutover/internal/types"
)

// Metrics are the Prometheus series the HTTP boundary maintains in
// addition to the OpenTelemetry cutover.* instruments.
type Metrics struct {
	requests    *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	transitions *prometheus.CounterVec
	escalations *prometheus.CounterVec
	breaches    *prometheus.CounterVec
}

// NewMetrics registers the series on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutover",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"method", "route", "code"}),
		latency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "cutover",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutover",
			Name:      "transitions_total",
			Help:      "Committed status transitions by entity and target status.",
		}, []string{"entity", "to"}),
		escalations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutover",
			Name:      "escalations_total",
			Help:      "Escalation events created, by level and trigger.",
		}, []string{"level", "trigger"}),
		breaches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cutover",
			Name:      "sla_breaches_observed_total",
			Help:      "SLA projections that reported a breach, by deadline.",
		}, []string{"deadline"}),
	}
}

func (m *Metrics) transition(entity, to string) {
	m.transitions.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) escalated(ev *types.EscalationEvent) {
	trigger := "manual"
	if ev.IsAuto {
		trigger = "auto"
	}
	m.escalations.WithLabelValues(strconv.Itoa(ev.Level), trigger).Inc()
}

func (m *Metrics) observeSLA(st *types.SLAStatus) {
	if st.ResponseBreached {
		m.breaches.WithLabelValues("response").Inc()
	}
	if st.ResolutionBreached {
		m.breaches.WithLabelValues("resolution").Inc()
	}
}
