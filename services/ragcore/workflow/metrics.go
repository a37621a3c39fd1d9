package workflow

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "ragflow"
	metricsSubsystem = "workflow"
)

// engineMetrics holds the Prometheus instruments for the Workflow Engine.
// Metrics and tracing are observability only — they never affect control
// flow (SPEC_FULL §4.5).
type engineMetrics struct {
	transitionsTotal *prometheus.CounterVec
	nodeLatency      *prometheus.HistogramVec
	runsTotal        *prometheus.CounterVec
}

func newEngineMetrics(registerer prometheus.Registerer) *engineMetrics {
	factory := promauto.With(registerer)
	return &engineMetrics{
		transitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "transitions_total",
				Help:      "Total node transitions by origin and destination node",
			},
			[]string{"from", "to"},
		),
		nodeLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "node_latency_seconds",
				Help:      "Latency of each node's work, in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"node"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: metricsSubsystem,
				Name:      "runs_total",
				Help:      "Total workflow runs by terminal status",
			},
			[]string{"status"},
		),
	}
}
