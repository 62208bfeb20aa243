package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"lendgate/internal/aggregation"
	"lendgate/internal/banks"
	"lendgate/pkg/platform/httputil"
	"lendgate/pkg/requestcontext"
)

// UpstreamFailuresHeader lists the codes of the banks that contributed
// nothing to the response.
const UpstreamFailuresHeader = "X-Upstream-Failures"

// Aggregator fans a user query out to the banks.
type Aggregator interface {
	FetchAll(ctx context.Context, userID, credential string) aggregation.Result
}

type Handler struct {
	aggregator Aggregator
	logger     *slog.Logger
}

func New(aggregator Aggregator, logger *slog.Logger) *Handler {
	return &Handler{aggregator: aggregator, logger: logger}
}

// Register registers the aggregation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/api/applications/user/{userId}", h.handleGetApplications)
}

// handleGetApplications always answers 200 with a JSON array: bank failures
// shrink the array and are named in X-Upstream-Failures.
func (h *Handler) handleGetApplications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := pathParam(r, "userId")
	credential := r.Header.Get("Authorization")

	result := h.aggregator.FetchAll(ctx, userID, credential)
	if result.Cancelled {
		h.logger.InfoContext(ctx, "client went away before aggregation finished",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
		)
		return
	}

	if failed := result.Failed(); len(failed) > 0 {
		w.Header().Set(UpstreamFailuresHeader, joinCodes(failed))
	}

	apps := result.Applications
	if apps == nil {
		apps = []aggregation.Envelope{}
	}
	httputil.WriteJSON(w, http.StatusOK, apps)
}

// pathParam returns a decoded URL parameter. chi matches on RawPath when the
// path carries escaped reserved characters, so the param may still be escaped;
// the bank client escapes it again on the way out.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return raw
	}
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

func joinCodes(codes []banks.Code) string {
	parts := make([]string, len(codes))
	for i, c := range codes {
		parts[i] = string(c)
	}
	return strings.Join(parts, ",")
}
