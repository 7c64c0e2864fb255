package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector implements MetricsCollector using Prometheus
type Collector struct {
	runsStarted     *prometheus.CounterVec
	runsFinished    *prometheus.CounterVec
	runsRejected    *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	nodeTransitions *prometheus.CounterVec
	variableErrors  *prometheus.CounterVec
	activeSessions  prometheus.Gauge
}

// NewCollector registers the editor metrics with reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		runsStarted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_editor_runs_started_total",
				Help: "Total number of workflow runs started",
			},
			[]string{"mode"},
		),
		runsFinished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_editor_runs_finished_total",
				Help: "Total number of workflow runs finished",
			},
			[]string{"state"},
		),
		runsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_editor_runs_rejected_total",
				Help: "Total number of run requests rejected before execution",
			},
			[]string{"reason"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dago_editor_run_duration_seconds",
				Help:    "Workflow run duration in seconds, including playback",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"state"},
		),
		nodeTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_editor_node_transitions_total",
				Help: "Total number of node status transitions during playback",
			},
			[]string{"status"},
		),
		variableErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dago_editor_variable_errors_total",
				Help: "Total number of variable reference errors reported",
			},
			[]string{"kind"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dago_editor_active_sessions",
				Help: "Current number of editor sessions",
			},
		),
	}
}

// RecordRunStarted records a run start
func (c *Collector) RecordRunStarted(mode string) {
	c.runsStarted.WithLabelValues(mode).Inc()
}

// RecordRunFinished records a terminal run state and its duration
func (c *Collector) RecordRunFinished(state string, duration time.Duration) {
	c.runsFinished.WithLabelValues(state).Inc()
	c.runDuration.WithLabelValues(state).Observe(duration.Seconds())
}

// RecordRunRejected records a run that never reached the backend
func (c *Collector) RecordRunRejected(reason string) {
	c.runsRejected.WithLabelValues(reason).Inc()
}

// RecordNodeTransition records a node entering status
func (c *Collector) RecordNodeTransition(status string) {
	c.nodeTransitions.WithLabelValues(status).Inc()
}

// RecordVariableError records a reported reference error
func (c *Collector) RecordVariableError(kind string) {
	c.variableErrors.WithLabelValues(kind).Inc()
}

// SetActiveSessions sets the live session count
func (c *Collector) SetActiveSessions(count int) {
	c.activeSessions.Set(float64(count))
}
