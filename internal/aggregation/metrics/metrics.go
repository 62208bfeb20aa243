package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the bank fan-out. All methods are safe
// to call concurrently and on a nil receiver.
type Metrics struct {
	// Per-bank fetch latencies
	FetchLatency *prometheus.HistogramVec

	// Per-bank outcomes: "ok" or an error category
	FetchOutcome *prometheus.CounterVec

	// Applications merged per bank
	RecordsReturned *prometheus.CounterVec

	// Overall FetchAll latency
	AggregateLatency prometheus.Histogram
}

// New registers the aggregation metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendgate_bank_fetch_duration_seconds",
			Help:    "Duration of application fetches by bank",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"bank"}),

		FetchOutcome: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_bank_fetch_total",
			Help: "Total application fetches by bank and outcome",
		}, []string{"bank", "outcome"}),

		RecordsReturned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_bank_applications_total",
			Help: "Total applications returned by bank",
		}, []string{"bank"}),

		AggregateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lendgate_aggregate_duration_seconds",
			Help:    "Duration of a full fan-out across all banks",
			Buckets: []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
	}
}

// ObserveFetch records one bank call.
func (m *Metrics) ObserveFetch(bank, outcome string, records int, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchLatency.WithLabelValues(bank).Observe(d.Seconds())
	m.FetchOutcome.WithLabelValues(bank, outcome).Inc()
	if records > 0 {
		m.RecordsReturned.WithLabelValues(bank).Add(float64(records))
	}
}

// ObserveAggregate records a complete FetchAll.
func (m *Metrics) ObserveAggregate(d time.Duration) {
	if m != nil {
		m.AggregateLatency.Observe(d.Seconds())
	}
}
