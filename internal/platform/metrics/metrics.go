package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the process-wide Prometheus registry. Domain packages
// register their own collectors on Registerer().
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates a registry preloaded with Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &Registry{reg: reg}
}

func (r *Registry) Registerer() prometheus.Registerer {
	return r.reg
}

// Handler serves /metrics.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// HTTPMetrics tracks inbound request latency per route.
type HTTPMetrics struct {
	RequestDuration *prometheus.HistogramVec
	InFlight        prometheus.Gauge
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	factory := promauto.With(reg)
	return &HTTPMetrics{
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendgate_http_request_duration_seconds",
			Help:    "Duration of inbound HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lendgate_http_requests_in_flight",
			Help: "Inbound HTTP requests currently being served",
		}),
	}
}

func (m *HTTPMetrics) ObserveRequest(method, route, status string, d time.Duration) {
	if m != nil {
		m.RequestDuration.WithLabelValues(method, route, status).Observe(d.Seconds())
	}
}

func (m *HTTPMetrics) IncInFlight() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *HTTPMetrics) DecInFlight() {
	if m != nil {
		m.InFlight.Dec()
	}
}
