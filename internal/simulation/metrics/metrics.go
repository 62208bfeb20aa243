package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the simulation path. Nil-safe.
type Metrics struct {
	Outcomes         *prometheus.CounterVec
	ProcessorLatency prometheus.Histogram
	AuditFailures    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_simulation_outcomes_total",
			Help: "Simulation requests by terminal state",
		}, []string{"state"}),

		ProcessorLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendgate_simulation_processor_duration_seconds",
			Help:    "Duration of calls to the simulation processor",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),

		AuditFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "lendgate_simulation_audit_failures_total",
			Help: "Simulation audit events that could not be stored",
		}),
	}
}

func (m *Metrics) IncOutcome(state string) {
	if m != nil {
		m.Outcomes.WithLabelValues(state).Inc()
	}
}

func (m *Metrics) ObserveProcessor(d time.Duration) {
	if m != nil {
		m.ProcessorLatency.Observe(d.Seconds())
	}
}

func (m *Metrics) IncAuditFailure() {
	if m != nil {
		m.AuditFailures.Inc()
	}
}
