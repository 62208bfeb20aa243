//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"lendgate/internal/ratelimit/models"
	"lendgate/pkg/testutil/containers"
)

type RedisBucketStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *RedisBucketStore
	now   time.Time
}

func TestRedisBucketStoreSuite(t *testing.T) {
	suite.Run(t, new(RedisBucketStoreSuite))
}

func (s *RedisBucketStoreSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisBucketStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
	s.now = time.Date(2026, 1, 1, 12, 0, 10, 0, time.UTC)
	s.store = NewRedisBucketStore(s.redis.Client, WithRedisClock(func() time.Time { return s.now }))
}

func (s *RedisBucketStoreSuite) TestFixedWindow() {
	ctx := context.Background()
	limit := models.Limit{RequestsPerWindow: 3, Window: time.Minute}

	for i := range 3 {
		result, err := s.store.Allow(ctx, "ip:10.0.0.1:read", limit)
		s.Require().NoError(err)
		s.True(result.Allowed)
		s.Equal(2-i, result.Remaining)
		s.Equal(time.Date(2026, 1, 1, 12, 1, 0, 0, time.UTC), result.ResetAt.UTC())
	}

	denied, err := s.store.Allow(ctx, "ip:10.0.0.1:read", limit)
	s.Require().NoError(err)
	s.False(denied.Allowed)
	s.Equal(50, denied.RetryAfter)

	s.now = s.now.Add(time.Minute)
	next, err := s.store.Allow(ctx, "ip:10.0.0.1:read", limit)
	s.Require().NoError(err)
	s.True(next.Allowed)
}

func (s *RedisBucketStoreSuite) TestWindowKeysExpire() {
	ctx := context.Background()
	limit := models.Limit{RequestsPerWindow: 3, Window: time.Minute}

	_, err := s.store.Allow(ctx, "ip:10.0.0.2:read", limit)
	s.Require().NoError(err)

	keys, err := s.redis.Client.Keys(ctx, redisKeyPrefix+"ip:10.0.0.2:read:*").Result()
	s.Require().NoError(err)
	s.Require().Len(keys, 1)

	ttl, err := s.redis.Client.TTL(ctx, keys[0]).Result()
	s.Require().NoError(err)
	s.Greater(ttl, time.Duration(0))
	s.LessOrEqual(ttl, limit.Window+time.Second)
}

func (s *RedisBucketStoreSuite) TestReset() {
	ctx := context.Background()
	limit := models.Limit{RequestsPerWindow: 1, Window: time.Minute}

	_, err := s.store.Allow(ctx, "ip:10.0.0.3:sensitive", limit)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Reset(ctx, "ip:10.0.0.3:sensitive", limit))

	result, err := s.store.Allow(ctx, "ip:10.0.0.3:sensitive", limit)
	s.Require().NoError(err)
	s.True(result.Allowed)
}
