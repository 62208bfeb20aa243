package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lendgate/internal/simulation"
	dErrors "lendgate/pkg/domain-errors"
	"lendgate/pkg/platform/httputil"
	"lendgate/pkg/requestcontext"
)

const (
	maxBodyBytes = 64 << 10

	// retryAfterSeconds is the hint sent when the processor is unreachable.
	retryAfterSeconds = "60"
)

// Service runs one simulation.
type Service interface {
	Simulate(ctx context.Context, req simulation.Request, credential string) simulation.Outcome
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register registers the simulation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/api/simulation", h.handleSimulate)
}

func (h *Handler) handleSimulate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req simulation.Request
	if err := httputil.DecodeJSON(r, &req, maxBodyBytes); err != nil {
		reason := "malformed JSON body"
		if de, ok := dErrors.As(err); ok {
			reason = de.Message
		}
		h.logger.WarnContext(ctx, "invalid simulation body",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteJSON(w, http.StatusBadRequest, simulation.FailureBody{
			Success: false,
			Message: simulation.MessageInvalid,
			Reason:  reason,
		})
		return
	}

	outcome := h.service.Simulate(ctx, req, r.Header.Get("Authorization"))
	writeOutcome(w, outcome)
}

func writeOutcome(w http.ResponseWriter, outcome simulation.Outcome) {
	switch outcome.State {
	case simulation.StateSucceeded:
		httputil.WriteRawJSON(w, http.StatusOK, outcome.Body)
	case simulation.StateInvalid:
		httputil.WriteJSON(w, http.StatusBadRequest, outcome.Failure.Body())
	case simulation.StateRejected:
		httputil.WriteJSON(w, http.StatusBadGateway, outcome.Failure.Body())
	default:
		w.Header().Set("Retry-After", retryAfterSeconds)
		body := simulation.FailureBody{Success: false, Message: simulation.MessageUnavailable}
		if outcome.Failure != nil {
			body = outcome.Failure.Body()
		}
		httputil.WriteJSON(w, http.StatusServiceUnavailable, body)
	}
}
