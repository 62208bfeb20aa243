package gateway

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dErrors "lendgate/pkg/domain-errors"
	"lendgate/pkg/platform/httputil"
	"lendgate/pkg/requestcontext"
)

// BankCodeHeader names the bank an upstream proxy failed to reach.
const BankCodeHeader = "X-Bank-Code"

const fallbackRetryAfter = "60"

// FallbackResponse is returned to callers routed here by an edge proxy whose
// bank route is short-circuited.
type FallbackResponse struct {
	Error      string    `json:"error"`
	Bank       string    `json:"bank"`
	Timestamp  time.Time `json:"timestamp"`
	RetryAfter string    `json:"retryAfter"`
}

type FallbackHandler struct {
	logger *slog.Logger
}

func NewFallbackHandler(logger *slog.Logger) *FallbackHandler {
	return &FallbackHandler{logger: logger}
}

func (h *FallbackHandler) Register(r chi.Router) {
	r.Get("/fallback", h.handleFallback)
}

func (h *FallbackHandler) handleFallback(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bank := r.Header.Get(BankCodeHeader)
	if bank == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing "+BankCodeHeader+" header"))
		return
	}

	h.logger.WarnContext(ctx, "bank fallback served",
		"request_id", requestcontext.RequestID(ctx),
		"bank_code", bank,
	)
	w.Header().Set("Retry-After", fallbackRetryAfter)
	httputil.WriteJSON(w, http.StatusServiceUnavailable, FallbackResponse{
		Error:      "Service temporarily unavailable",
		Bank:       bank,
		Timestamp:  requestcontext.Now(ctx).UTC(),
		RetryAfter: fallbackRetryAfter,
	})
}
