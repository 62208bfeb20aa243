package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions      *prometheus.CounterVec
	FallbackChecks prometheus.Counter
	LimiterErrors  prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lendgate_ratelimit_decisions_total",
			Help: "Rate limit decisions by endpoint class and result",
		}, []string{"class", "result"}),
		FallbackChecks: factory.NewCounter(prometheus.CounterOpts{
			Name: "lendgate_ratelimit_fallback_checks_total",
			Help: "Rate limit checks served by the in-memory fallback",
		}),
		LimiterErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lendgate_ratelimit_limiter_errors_total",
			Help: "Errors returned by the primary rate limit store",
		}),
	}
}

func (m *Metrics) ObserveDecision(class string, allowed bool) {
	if m == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	m.Decisions.WithLabelValues(class, result).Inc()
}

func (m *Metrics) IncFallback() {
	if m != nil {
		m.FallbackChecks.Inc()
	}
}

func (m *Metrics) IncLimiterError() {
	if m != nil {
		m.LimiterErrors.Inc()
	}
}
