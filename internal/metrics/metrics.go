// Package metrics exposes Prometheus instrumentation for the smoothing
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SolveMetrics instruments the synchronous smoothing endpoint.
type SolveMetrics struct {
	Duration   prometheus.Histogram
	Iterations prometheus.Histogram
	Solves     *prometheus.CounterVec
}

// NewSolveMetrics creates and registers the solve metrics. A nil
// registerer skips registration, which tests use to avoid collisions.
func NewSolveMetrics(reg prometheus.Registerer) *SolveMetrics {
	m := &SolveMetrics{
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splineqp",
			Name:      "solve_duration_seconds",
			Help:      "Wall time of one smoothing solve cycle.",
			Buckets:   prometheus.ExponentialBuckets(1e-4, 4, 10),
		}),
		Iterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "splineqp",
			Name:      "solve_iterations",
			Help:      "Engine iterations per solve cycle.",
			Buckets:   prometheus.ExponentialBuckets(10, 3, 8),
		}),
		Solves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "splineqp",
			Name:      "solves_total",
			Help:      "Smoothing solves by terminal status.",
		}, []string{"status"}),
	}
	if reg != nil {
		reg.MustRegister(m.Duration, m.Iterations, m.Solves)
	}
	return m
}

// Observe records one finished solve cycle.
func (m *SolveMetrics) Observe(status string, seconds float64, iterations int) {
	m.Duration.Observe(seconds)
	m.Iterations.Observe(float64(iterations))
	m.Solves.WithLabelValues(status).Inc()
}
