package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the scheduler and streaming collectors. Constructed once
// in main and passed by handle, so tests can use isolated registries.
type Metrics struct {
	registry *prometheus.Registry

	TasksSubmitted *prometheus.CounterVec
	TasksCompleted *prometheus.CounterVec
	TasksFailed    *prometheus.CounterVec
	TasksEvicted   prometheus.Counter
	TasksInFlight  prometheus.Gauge
	StreamFrames   prometheus.Counter
	StreamErrors   prometheus.Counter
}

// New creates the metric collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		TasksSubmitted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crebai_tasks_submitted_total",
			Help: "Total number of tasks submitted.",
		}, []string{"type"}),

		TasksCompleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crebai_tasks_completed_total",
			Help: "Total number of tasks that finished successfully.",
		}, []string{"type"}),

		TasksFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crebai_tasks_failed_total",
			Help: "Total number of tasks that finished with an error.",
		}, []string{"type", "kind"}),

		TasksEvicted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crebai_tasks_evicted_total",
			Help: "Total number of task records removed by reclamation.",
		}),

		TasksInFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "crebai_tasks_in_flight",
			Help: "Number of execution units currently running.",
		}),

		StreamFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "crebai_stream_frames_total",
			Help: "Total number of streaming frames emitted.",
		}),

		StreamErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "crebai_stream_errors_total",
			Help: "Total number of streams terminated by an error frame.",
		}),
	}
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
