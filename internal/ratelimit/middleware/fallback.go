package middleware

import (
	"context"
	"log/slog"

	"lendgate/internal/ratelimit/metrics"
	"lendgate/internal/ratelimit/models"
	"lendgate/pkg/platform/circuit"
)

// ResilientLimiter checks the primary store and drops to the in-memory
// fallback while the primary keeps failing:
//   - every primary error counts against the breaker and the check is served
//     by the fallback;
//   - once the breaker is open the primary is skipped until its cool-down
//     elapses, then probed again;
//   - results served by the fallback are marked Degraded.
type ResilientLimiter struct {
	primary  BucketStore
	fallback BucketStore
	breaker  *circuit.Breaker
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewResilientLimiter guards primary with breaker. A nil fallback makes the
// limiter fail open.
func NewResilientLimiter(primary, fallback BucketStore, breaker *circuit.Breaker, logger *slog.Logger, m *metrics.Metrics) *ResilientLimiter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &ResilientLimiter{
		primary:  primary,
		fallback: fallback,
		breaker:  breaker,
		logger:   logger,
		metrics:  m,
	}
}

// Check is like BucketStore.Allow but reports whether the fallback answered.
func (l *ResilientLimiter) Check(ctx context.Context, key string, limit models.Limit) (result *models.RateLimitResult, degraded bool, err error) {
	if l.breaker == nil || l.breaker.Allow() {
		result, err = l.primary.Allow(ctx, key, limit)
		if err == nil {
			if l.breaker != nil {
				if _, change := l.breaker.RecordSuccess(); change.Closed {
					l.logger.InfoContext(ctx, "rate limit store recovered", "breaker", l.breaker.Name())
				}
			}
			return result, false, nil
		}
		l.metrics.IncLimiterError()
		if l.breaker != nil {
			if _, change := l.breaker.RecordFailure(); change.Opened {
				l.logger.WarnContext(ctx, "rate limit store failing, using in-memory fallback",
					"breaker", l.breaker.Name(),
					"error", err,
				)
			}
		}
		if l.fallback == nil {
			return nil, true, err
		}
	}

	if l.fallback == nil {
		return nil, true, circuit.ErrOpen
	}
	l.metrics.IncFallback()
	result, err = l.fallback.Allow(ctx, key, limit)
	return result, true, err
}
