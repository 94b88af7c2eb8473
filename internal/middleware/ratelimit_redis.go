package middleware

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisRateLimitStore is a fixed-window RateLimitStore shared across
// instances. Redis errors allow the request.
type RedisRateLimitStore struct {
	client  *redis.Client
	prefix  string
	metrics *Metrics
	logger  *slog.Logger
}

// NewRedisRateLimitStore creates a Redis-backed store. metrics may be nil.
func NewRedisRateLimitStore(client *redis.Client, metrics *Metrics, logger *slog.Logger) *RedisRateLimitStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRateLimitStore{
		client:  client,
		prefix:  "sparkfeed:ratelimit:",
		metrics: metrics,
		logger:  logger,
	}
}

// Allow implements RateLimitStore. The window starts at the first INCR of
// a key, which also sets its expiry.
func (s *RedisRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	redisKey := s.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		ttl = pipe.PTTL(ctx, redisKey)
		return nil
	})
	if err == nil && ttl.Val() < 0 {
		err = s.client.PExpire(ctx, redisKey, config.WindowDuration).Err()
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.IncRateLimitRedisErrors()
		}
		s.logger.WarnContext(ctx, "rate limit redis error, allowing request",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return true, 0
	}

	if incr.Val() <= int64(config.RequestsPerWindow) {
		return true, 0
	}

	remaining := ttl.Val()
	if remaining <= 0 {
		remaining = config.WindowDuration
	}
	return false, retryAfterSeconds(remaining)
}

// Reset clears the window for key.
func (s *RedisRateLimitStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.prefix+key).Err()
}

var _ RateLimitStore = (*RedisRateLimitStore)(nil)
