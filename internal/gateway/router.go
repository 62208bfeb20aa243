package gateway

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lendgate/internal/platform/metrics"
	"lendgate/internal/platform/middleware"
	ratelimitmw "lendgate/internal/ratelimit/middleware"
	"lendgate/internal/ratelimit/models"
	"lendgate/pkg/platform/middleware/metadata"
	"lendgate/pkg/platform/middleware/requesttime"
)

// RouteRegistrar is a handler package that mounts its own routes.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// Routes collects everything the router mounts. RateLimit and Metrics are
// optional.
type Routes struct {
	Logger      *slog.Logger
	HTTPMetrics *metrics.HTTPMetrics
	Metrics     http.Handler
	RateLimit   *ratelimitmw.Middleware

	// TrustProxyHeaders takes the client IP from X-Forwarded-For. Only set
	// it when an ingress in front of the gateway rewrites that header.
	TrustProxyHeaders bool

	Applications RouteRegistrar
	Simulation   RouteRegistrar
	Fallback     RouteRegistrar
	Health       RouteRegistrar
}

// NewRouter assembles the gateway's HTTP surface.
func NewRouter(rt Routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(rt.Logger))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata(rt.TrustProxyHeaders))
	r.Use(middleware.Caller)
	r.Use(middleware.Logger(rt.Logger, rt.HTTPMetrics))

	r.Group(func(r chi.Router) {
		if rt.RateLimit != nil {
			r.Use(rt.RateLimit.RateLimit(models.ClassRead))
		}
		rt.Applications.Register(r)
	})

	r.Group(func(r chi.Router) {
		if rt.RateLimit != nil {
			r.Use(rt.RateLimit.RateLimit(models.ClassSensitive))
		}
		rt.Simulation.Register(r)
	})

	if rt.Fallback != nil {
		rt.Fallback.Register(r)
	}
	if rt.Health != nil {
		rt.Health.Register(r)
	}
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}
	return r
}
