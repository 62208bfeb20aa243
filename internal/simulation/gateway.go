package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendgate/internal/simulation/metrics"
	audit "lendgate/pkg/platform/audit"
	"lendgate/pkg/requestcontext"
)

const (
	defaultProcessorTimeout = 30 * time.Second

	// noErrorBody stands in for an empty rejection body.
	noErrorBody = "no error body"

	// maxReasonBody caps how much of a rejection body ends up in the reason.
	maxReasonBody = 1024
)

// Messages shown to the caller with each failure state.
const (
	MessageInvalid     = "Invalid simulation request"
	MessageRejected    = "Simulation processing failed"
	MessageUnavailable = "Service temporarily unavailable"
)

// Gateway validates simulations and forwards them to the processor. It is
// single-shot: one request, at most one processor call, one Outcome.
type Gateway struct {
	processor Processor
	audit     audit.Store
	timeout   time.Duration
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithAuditStore records every terminal outcome in store.
func WithAuditStore(store audit.Store) Option {
	return func(g *Gateway) {
		g.audit = store
	}
}

// WithTimeout bounds the processor call. Zero leaves it to the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(g *Gateway) {
		g.tracer = tracer
	}
}

func New(processor Processor, opts ...Option) (*Gateway, error) {
	if processor == nil {
		return nil, errors.New("processor is required")
	}
	g := &Gateway{
		processor: processor,
		timeout:   defaultProcessorTimeout,
		logger:    slog.New(slog.DiscardHandler),
		tracer:    otel.Tracer("lendgate/internal/simulation"),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Simulate never returns an error: invalid input, processor rejections and
// transport failures all come back as an Outcome.
func (g *Gateway) Simulate(ctx context.Context, req Request, credential string) Outcome {
	ctx, span := g.tracer.Start(ctx, "simulation.simulate", trace.WithAttributes(
		attribute.String("user.id", req.UserID),
	))
	defer span.End()

	outcome := g.simulate(ctx, req, credential)

	span.SetAttributes(attribute.String("simulation.state", string(outcome.State)))
	if outcome.Failure != nil {
		span.SetStatus(codes.Error, outcome.Failure.Reason)
	}
	g.metrics.IncOutcome(string(outcome.State))
	g.record(ctx, req, outcome)
	return outcome
}

func (g *Gateway) simulate(ctx context.Context, req Request, credential string) Outcome {
	if err := Validate(req, credential); err != nil {
		var ve *ValidationError
		field := ""
		if errors.As(err, &ve) {
			field = ve.Field
		}
		g.logger.WarnContext(ctx, "simulation rejected by validation",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID,
			"field", field,
			"reason", err.Error(),
		)
		return Outcome{
			State:   StateInvalid,
			Failure: &Failure{Message: MessageInvalid, Reason: err.Error(), Field: field},
		}
	}

	g.logger.InfoContext(ctx, "forwarding simulation",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", req.UserID,
		"amount", req.Amount.Decimal.StringFixed(0),
		"term_months", *req.TermMonths,
		"monthly_income", req.MonthlyIncome.Decimal.StringFixed(0),
	)

	callCtx := ctx
	if g.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := g.processor.Submit(callCtx, NewPayload(req), credential)
	g.metrics.ObserveProcessor(time.Since(start))
	if err != nil {
		g.logger.ErrorContext(ctx, "simulation processor unreachable",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID,
			"error", err,
		)
		return unavailable(fmt.Sprintf("processor unreachable: %v", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body := strings.TrimSpace(string(resp.Body))
		g.logger.ErrorContext(ctx, "simulation processor returned error status",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID,
			"status", resp.StatusCode,
			"body", truncate(body, maxReasonBody),
		)
		return Outcome{
			State: StateRejected,
			Failure: &Failure{
				Message:         MessageRejected,
				Reason:          rejectionReason(resp.StatusCode, body),
				ProcessorStatus: resp.StatusCode,
			},
		}
	}

	if !gjson.ValidBytes(resp.Body) {
		g.logger.ErrorContext(ctx, "simulation processor returned malformed body",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID,
			"status", resp.StatusCode,
			"bytes", len(resp.Body),
		)
		return unavailable("processor unreachable: malformed response body")
	}

	g.logSummary(ctx, req.UserID, resp.Body)
	return Outcome{State: StateSucceeded, Body: resp.Body}
}

// logSummary reads the headline fields of a processor answer without
// decoding the whole document.
func (g *Gateway) logSummary(ctx context.Context, userID string, body []byte) {
	summary := gjson.GetManyBytes(body,
		"success",
		"bestOffer.entity",
		"offersCount",
		"creditScore",
		"recommendation.riskAssessment",
	)
	g.logger.InfoContext(ctx, "simulation completed",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"success", summary[0].Bool(),
		"best_offer", summary[1].String(),
		"offers_count", summary[2].Int(),
		"credit_score", summary[3].Int(),
		"risk_assessment", summary[4].String(),
	)
}

func (g *Gateway) record(ctx context.Context, req Request, outcome Outcome) {
	if g.audit == nil {
		return
	}
	event := audit.Event{
		Timestamp: requestcontext.Now(ctx),
		UserID:    req.UserID,
		Action:    auditAction(outcome.State),
		RequestID: requestcontext.RequestID(ctx),
		ClientIP:  requestcontext.ClientIP(ctx),
		Caller:    requestcontext.Caller(ctx),
	}
	if outcome.Failure != nil {
		event.Reason = outcome.Failure.Reason
		event.ProcessorStatus = outcome.Failure.ProcessorStatus
	}
	// The caller may already be gone; the record should still land.
	if err := g.audit.Append(context.WithoutCancel(ctx), event); err != nil {
		g.metrics.IncAuditFailure()
		g.logger.ErrorContext(ctx, "failed to record simulation audit event",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", req.UserID,
			"action", event.Action,
			"error", err,
		)
	}
}

func auditAction(state State) audit.Action {
	switch state {
	case StateSucceeded:
		return audit.ActionSimulationSucceeded
	case StateRejected:
		return audit.ActionSimulationRejected
	case StateInvalid:
		return audit.ActionSimulationInvalid
	default:
		return audit.ActionSimulationFailed
	}
}

func unavailable(reason string) Outcome {
	return Outcome{
		State:   StateFailed,
		Failure: &Failure{Message: MessageUnavailable, Reason: reason},
	}
}

func rejectionReason(status int, body string) string {
	if body == "" {
		body = noErrorBody
	}
	statusText := strings.TrimSpace(fmt.Sprintf("%d %s", status, http.StatusText(status)))
	return fmt.Sprintf("processor error: %s - %s", statusText, truncate(body, maxReasonBody))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
