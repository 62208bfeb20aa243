package aggregation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"lendgate/internal/aggregation/metrics"
	"lendgate/internal/banks"
	"lendgate/pkg/platform/circuit"
	"lendgate/pkg/requestcontext"
)

const defaultBankTimeout = 10 * time.Second

// Engine fans a user query out to every registered bank and merges whatever
// comes back. A bank failure only ever removes that bank's contribution.
type Engine struct {
	registry *banks.Registry
	fetcher  Fetcher
	breakers map[banks.Code]*circuit.Breaker
	timeout  time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithTimeout bounds each bank call. Zero disables the per-call budget.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.timeout = d
	}
}

// WithBreakers guards every bank with its own circuit breaker. A threshold
// of zero leaves the banks unguarded.
func WithBreakers(threshold int, cooldown time.Duration) Option {
	return func(e *Engine) {
		if threshold <= 0 {
			e.breakers = nil
			return
		}
		e.breakers = make(map[banks.Code]*circuit.Breaker, e.registry.Len())
		for _, bank := range e.registry.All() {
			e.breakers[bank.Code] = circuit.New(string(bank.Code),
				circuit.WithFailureThreshold(threshold),
				circuit.WithSuccessThreshold(1),
				circuit.WithCooldown(cooldown),
			)
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = tracer
	}
}

// New builds an Engine over registry using fetcher for the bank calls.
func New(registry *banks.Registry, fetcher Fetcher, opts ...Option) (*Engine, error) {
	if registry == nil {
		return nil, errors.New("bank registry is required")
	}
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}

	e := &Engine{
		registry: registry,
		fetcher:  fetcher,
		timeout:  defaultBankTimeout,
		logger:   slog.New(slog.DiscardHandler),
		tracer:   otel.Tracer("lendgate/internal/aggregation"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Breaker exposes a bank's breaker, nil when the bank is unguarded.
func (e *Engine) Breaker(code banks.Code) *circuit.Breaker {
	return e.breakers[code]
}

// FetchAll never fails. Each bank runs in its own goroutine and writes only
// its own slot; the merge is a single pass over the slots after every call
// has finished. If ctx is cancelled before the merge the result is marked
// Cancelled and carries no applications.
func (e *Engine) FetchAll(ctx context.Context, userID, credential string) Result {
	start := time.Now()
	all := e.registry.All()
	slots := make([]bankSlot, len(all))

	g, gctx := errgroup.WithContext(ctx)
	for i, bank := range all {
		g.Go(func() error {
			slots[i] = e.fetchBank(gctx, bank, userID, credential)
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Banks: make([]BankStatus, len(slots))}
	for i, slot := range slots {
		result.Banks[i] = slot.status
	}

	if ctx.Err() != nil {
		result.Cancelled = true
		e.logger.InfoContext(ctx, "aggregation cancelled by caller",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", userID,
		)
		return result
	}

	result.Applications = make([]Envelope, 0)
	for _, slot := range slots {
		result.Applications = append(result.Applications, slot.envelopes...)
	}

	e.metrics.ObserveAggregate(time.Since(start))
	e.logger.InfoContext(ctx, "applications aggregated",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", userID,
		"applications", len(result.Applications),
		"banks", len(all),
		"failed_banks", len(result.Failed()),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// bankSlot is the private output of one bank goroutine.
type bankSlot struct {
	status    BankStatus
	envelopes []Envelope
}

func (e *Engine) fetchBank(ctx context.Context, bank banks.Descriptor, userID, credential string) bankSlot {
	start := time.Now()
	slot := bankSlot{status: BankStatus{Code: bank.Code, Name: bank.Name}}

	ctx, span := e.tracer.Start(ctx, "bank.fetch_applications", trace.WithAttributes(
		attribute.String("bank.code", string(bank.Code)),
		attribute.String("bank.name", bank.Name),
	))
	defer span.End()

	breaker := e.breakers[bank.Code]
	if breaker != nil && !breaker.Allow() {
		slot.status.Err = newCircuitOpenError(bank.Code)
		e.recordFailure(ctx, span, bank, slot.status.Err, start)
		slot.status.Duration = time.Since(start)
		return slot
	}

	e.logger.DebugContext(ctx, "fetching applications",
		"request_id", requestcontext.RequestID(ctx),
		"bank", bank.Name,
		"url", bank.ApplicationsURL(userID),
	)

	callCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	apps, err := e.fetcher.FetchApplications(callCtx, bank, userID, credential)
	slot.status.Duration = time.Since(start)
	if err != nil {
		ue := classifyTransport(bank.Code, err)
		switch {
		case ctx.Err() != nil:
			// The caller left; this says nothing about the bank's health.
			ue.Category = ErrorCancelled
		case IsBankFault(ue):
			e.recordBreakerFailure(ctx, breaker, bank)
		case ue.Category == ErrorUpstreamStatus:
			// The bank answered; the request was refused.
			e.recordBreakerSuccess(ctx, breaker, bank)
		}
		slot.status.Err = ue
		e.recordFailure(ctx, span, bank, ue, start)
		return slot
	}

	e.recordBreakerSuccess(ctx, breaker, bank)

	slot.envelopes = wrap(bank, apps)
	slot.status.Records = len(slot.envelopes)

	span.SetAttributes(attribute.Int("bank.records", slot.status.Records))
	e.metrics.ObserveFetch(string(bank.Code), "ok", slot.status.Records, slot.status.Duration)
	e.logger.InfoContext(ctx, "bank returned applications",
		"request_id", requestcontext.RequestID(ctx),
		"bank", bank.Name,
		"bank_code", bank.Code,
		"records", slot.status.Records,
		"duration_ms", slot.status.Duration.Milliseconds(),
	)
	return slot
}

func (e *Engine) recordBreakerFailure(ctx context.Context, breaker *circuit.Breaker, bank banks.Descriptor) {
	if breaker == nil {
		return
	}
	if _, change := breaker.RecordFailure(); change.Opened {
		e.logger.WarnContext(ctx, "bank circuit opened",
			"request_id", requestcontext.RequestID(ctx),
			"bank", bank.Name,
			"bank_code", bank.Code,
		)
	}
}

func (e *Engine) recordBreakerSuccess(ctx context.Context, breaker *circuit.Breaker, bank banks.Descriptor) {
	if breaker == nil {
		return
	}
	if _, change := breaker.RecordSuccess(); change.Closed {
		e.logger.InfoContext(ctx, "bank circuit closed",
			"request_id", requestcontext.RequestID(ctx),
			"bank", bank.Name,
			"bank_code", bank.Code,
		)
	}
}

func (e *Engine) recordFailure(ctx context.Context, span trace.Span, bank banks.Descriptor, err error, start time.Time) {
	category := Category(err)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(category))
	e.metrics.ObserveFetch(string(bank.Code), string(category), 0, time.Since(start))

	level := slog.LevelWarn
	if category == ErrorCancelled {
		level = slog.LevelDebug
	}
	e.logger.Log(ctx, level, "bank fetch failed",
		"request_id", requestcontext.RequestID(ctx),
		"bank", bank.Name,
		"bank_code", bank.Code,
		"category", category,
		"error", err,
	)
}
