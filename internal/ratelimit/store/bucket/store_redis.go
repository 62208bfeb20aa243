package bucket

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"lendgate/internal/ratelimit/models"
)

const redisKeyPrefix = "lendgate:rl:"

// RedisBucketStore is a fixed-window counter shared by every gateway
// instance. Each window gets its own key, which expires shortly after the
// window closes.
type RedisBucketStore struct {
	client *redis.Client
	now    func() time.Time
}

type RedisOption func(*RedisBucketStore)

func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisBucketStore) {
		s.now = now
	}
}

func NewRedisBucketStore(client *redis.Client, opts ...RedisOption) *RedisBucketStore {
	s := &RedisBucketStore{client: client, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisBucketStore) Allow(ctx context.Context, key string, limit models.Limit) (*models.RateLimitResult, error) {
	now := s.now()
	windowStart := now.Truncate(limit.Window)
	resetAt := windowStart.Add(limit.Window)
	windowKey := redisKeyPrefix + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, limit.Window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("increment rate limit window: %w", err)
	}

	count := int(incr.Val())
	result := &models.RateLimitResult{
		Allowed:   count <= limit.RequestsPerWindow,
		Limit:     limit.RequestsPerWindow,
		Remaining: max(0, limit.RequestsPerWindow-count),
		ResetAt:   resetAt,
	}
	if !result.Allowed {
		result.RetryAfter = retryAfterSeconds(resetAt.Sub(now))
	}
	return result, nil
}

// Reset deletes the current window of key.
func (s *RedisBucketStore) Reset(ctx context.Context, key string, limit models.Limit) error {
	windowStart := s.now().Truncate(limit.Window)
	windowKey := redisKeyPrefix + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)
	return s.client.Del(ctx, windowKey).Err()
}
