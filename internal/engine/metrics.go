package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus collectors for rule resolution.
//
// Metrics:
//   - hapticd_decisions_total{outcome,reason} - decisions by outcome and reason
//   - hapticd_resolve_duration_seconds - time spent resolving one event
//   - hapticd_dispatch_errors_total - waveforms the actuator failed to accept
type Metrics struct {
	Decisions       *prometheus.CounterVec
	ResolveDuration prometheus.Histogram
	DispatchErrors  prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "hapticd_decisions_total",
				Help: "Total number of resolution decisions",
			},
			[]string{"outcome", "reason"},
		),
		ResolveDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "hapticd_resolve_duration_seconds",
				Help:    "Duration of event resolution in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
		),
		DispatchErrors: f.NewCounter(
			prometheus.CounterOpts{
				Name: "hapticd_dispatch_errors_total",
				Help: "Total number of failed waveform dispatches",
			},
		),
	}
}
