// Package metrics exposes Prometheus counters for the ask pipeline.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the collectors. A nil *Metrics records nothing.
type Metrics struct {
	attempts  *prometheus.CounterVec
	sessions  *prometheus.CounterVec
	execution *prometheus.HistogramVec
	asks      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg when it is non-nil.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_attempts_total",
				Help: "SQL attempts by outcome",
			},
			[]string{"outcome"},
		),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_correction_sessions_total",
				Help: "Correction sessions by terminal state",
			},
			[]string{"state"},
		),
		execution: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "askdb_execution_duration_seconds",
				Help:    "Duration of query executions",
				Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
			},
			[]string{"result"},
		),
		asks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askdb_asks_total",
				Help: "Questions answered by plan kind and status",
			},
			[]string{"kind", "status"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.attempts, m.sessions, m.execution, m.asks)
	}
	return m
}

// Attempt counts one attempt outcome.
func (m *Metrics) Attempt(outcome string) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(outcome).Inc()
}

// Session counts a correction session reaching a terminal state.
func (m *Metrics) Session(state string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(state).Inc()
}

// Execution observes the latency of one query; result is "ok" or a failure category.
func (m *Metrics) Execution(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.execution.WithLabelValues(result).Observe(elapsed.Seconds())
}

// Ask counts a completed question.
func (m *Metrics) Ask(kind, status string) {
	if m == nil {
		return
	}
	m.asks.WithLabelValues(kind, status).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
