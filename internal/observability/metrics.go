package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveWorkflows   prometheus.Gauge
	PhaseTransitions  *prometheus.CounterVec
	JobEvents         *prometheus.CounterVec
	StreamErrors      *prometheus.CounterVec
	SessionOps        *prometheus.CounterVec
	PlanAdjustLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveWorkflows: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_workflows",
			Help:      "Number of open analysis workflows.",
		}),
		PhaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Workflow phase transitions by source and target phase.",
		}, []string{"from", "to"}),
		JobEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_events_total",
			Help:      "Remote job lifecycle events by kind.",
		}, []string{"kind"}),
		StreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_errors_total",
			Help:      "Job status stream transport errors by stage.",
		}, []string{"stage"}),
		SessionOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_ops_total",
			Help:      "Persisted session operations by type.",
		}, []string{"op"}),
		PlanAdjustLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "plan_adjust_latency_ms",
			Help:      "Latency of remote plan case-limit updates in milliseconds.",
			Buckets:   []float64{50, 100, 200, 400, 800, 1500, 3000, 6000},
		}),
	}
}

func (m *Metrics) SetActiveWorkflows(n int) {
	if m == nil {
		return
	}
	m.ActiveWorkflows.Set(float64(n))
}

func (m *Metrics) ObservePhaseTransition(from, to string) {
	if m == nil {
		return
	}
	m.PhaseTransitions.WithLabelValues(from, to).Inc()
}

func (m *Metrics) ObserveJobEvent(kind string) {
	if m == nil {
		return
	}
	m.JobEvents.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveStreamError(stage string) {
	if m == nil {
		return
	}
	m.StreamErrors.WithLabelValues(stage).Inc()
}

func (m *Metrics) ObserveSessionOp(op string) {
	if m == nil {
		return
	}
	m.SessionOps.WithLabelValues(op).Inc()
}

func (m *Metrics) ObservePlanAdjustLatency(d time.Duration) {
	if m == nil {
		return
	}
	m.PlanAdjustLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
