package gateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lendgate/internal/aggregation"
	"lendgate/internal/banks"
	"lendgate/pkg/platform/httputil"
	"lendgate/pkg/requestcontext"
)

// HealthCheck probes one optional dependency.
type HealthCheck func(ctx context.Context) error

// HealthResponse reports dependencies and the bank breakers. An open bank
// breaker does not make the gateway unhealthy; the bank is simply skipped.
type HealthResponse struct {
	Status       string            `json:"status"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
	Banks        map[string]string `json:"banks"`
}

type HealthHandler struct {
	registry *banks.Registry
	engine   *aggregation.Engine
	checks   map[string]HealthCheck
	timeout  time.Duration
	logger   *slog.Logger
}

// dependencyUnavailable is all a failed check reports publicly; the cause is
// logged.
const dependencyUnavailable = "unavailable"

func NewHealthHandler(registry *banks.Registry, engine *aggregation.Engine, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &HealthHandler{
		registry: registry,
		engine:   engine,
		checks:   map[string]HealthCheck{},
		timeout:  2 * time.Second,
		logger:   logger,
	}
}

// WithCheck adds a named dependency probe.
func (h *HealthHandler) WithCheck(name string, check HealthCheck) *HealthHandler {
	h.checks[name] = check
	return h
}

func (h *HealthHandler) Register(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *HealthHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := HealthResponse{Status: "ok", Banks: make(map[string]string, h.registry.Len())}
	status := http.StatusOK

	if len(h.checks) > 0 {
		resp.Dependencies = make(map[string]string, len(h.checks))
		for name, check := range h.checks {
			if err := check(ctx); err != nil {
				h.logger.WarnContext(ctx, "health check failed",
					"request_id", requestcontext.RequestID(ctx),
					"dependency", name,
					"error", err,
				)
				resp.Dependencies[name] = dependencyUnavailable
				resp.Status = "unhealthy"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Dependencies[name] = "ok"
		}
	}

	for _, bank := range h.registry.All() {
		state := "unguarded"
		if h.engine != nil {
			if b := h.engine.Breaker(bank.Code); b != nil {
				state = b.State().String()
			}
		}
		resp.Banks[string(bank.Code)] = state
	}

	httputil.WriteJSON(w, status, resp)
}
