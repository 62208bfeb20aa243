package bucket

import (
	"context"
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"lendgate/internal/ratelimit/models"
)

// InMemoryBucketStore keeps one token bucket per key. The bucket refills
// continuously, so a full budget is spread evenly over the window instead of
// resetting at window boundaries. Not shared between instances.
type InMemoryBucketStore struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	now     func() time.Time
}

type MemoryOption func(*InMemoryBucketStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *InMemoryBucketStore) {
		s.now = now
	}
}

func NewInMemoryBucketStore(opts ...MemoryOption) *InMemoryBucketStore {
	s := &InMemoryBucketStore{
		buckets: make(map[string]*rate.Limiter),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Allow takes one token from key's bucket.
func (s *InMemoryBucketStore) Allow(_ context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	lim := s.bucket(key, limit)
	allowed := lim.AllowN(now, 1)
	tokens := lim.TokensAt(now)

	result := &models.RateLimitResult{
		Allowed:   allowed,
		Limit:     limit.RequestsPerWindow,
		Remaining: max(0, int(math.Floor(tokens))),
		ResetAt:   now.Add(refillDuration(lim, float64(limit.RequestsPerWindow)-tokens)),
	}
	if !allowed {
		result.RetryAfter = retryAfterSeconds(refillDuration(lim, 1-tokens))
	}
	return result, nil
}

// Reset forgets key's bucket.
func (s *InMemoryBucketStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, key)
	return nil
}

// Sweep drops buckets that have refilled completely; they are
// indistinguishable from new ones.
func (s *InMemoryBucketStore) Sweep() int {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, lim := range s.buckets {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(s.buckets, key)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps every interval until ctx is done.
func (s *InMemoryBucketStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Len is the number of live buckets.
func (s *InMemoryBucketStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// bucket must be called with s.mu held.
func (s *InMemoryBucketStore) bucket(key string, limit models.Limit) *rate.Limiter {
	every := rate.Every(limit.Window / time.Duration(max(1, limit.RequestsPerWindow)))
	lim, ok := s.buckets[key]
	if !ok || lim.Burst() != limit.RequestsPerWindow || lim.Limit() != every {
		lim = rate.NewLimiter(every, limit.RequestsPerWindow)
		s.buckets[key] = lim
	}
	return lim
}

func refillDuration(lim *rate.Limiter, missing float64) time.Duration {
	if missing <= 0 || lim.Limit() <= 0 {
		return 0
	}
	return time.Duration(missing / float64(lim.Limit()) * float64(time.Second))
}

func retryAfterSeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Round(time.Millisecond).Seconds())))
}
