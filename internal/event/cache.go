package event

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/sparkfeed/internal/tracing"
)

// DefaultCacheTTL is how long a cached participant set is served.
const DefaultCacheTTL = 30 * time.Second

// emptyMarker is stored in place of an empty participant set so that a
// cached empty event is distinguishable from a cache miss.
const emptyMarker = "\x00empty"

// Breaker settings for cache reads and writes. After breakerTrips
// consecutive Redis failures the cache is bypassed for breakerTimeout.
const (
	breakerTrips   = 5
	breakerTimeout = 30 * time.Second
)

// CachedStore serves participant sets from Redis and falls back to the
// backing store on a miss or any Redis error. Reads and writes go through
// a circuit breaker so an unavailable Redis is not retried on every feed.
type CachedStore struct {
	backing ParticipantStore
	client  *redis.Client
	ttl     time.Duration
	logger  *slog.Logger
	breaker *gobreaker.CircuitBreaker[[]string]
}

// NewCachedStore wraps backing with a Redis cache. A non-positive ttl uses
// DefaultCacheTTL and a nil logger uses slog.Default.
func NewCachedStore(backing ParticipantStore, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &CachedStore{backing: backing, client: client, ttl: ttl, logger: logger}
	s.breaker = gobreaker.NewCircuitBreaker[[]string](gobreaker.Settings{
		Name:        "participant-cache",
		MaxRequests: 1,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerTrips
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	return s
}

// CacheKey returns the Redis key holding an event's participant set.
func CacheKey(eventID string) string {
	return fmt.Sprintf("sparkfeed:event:%s:participants", eventID)
}

// ParticipantIDs implements ParticipantStore.
func (s *CachedStore) ParticipantIDs(ctx context.Context, eventID string) (map[string]struct{}, error) {
	key := CacheKey(eventID)

	if ids, ok := s.read(ctx, key); ok {
		return ids, nil
	}

	ids, err := s.backing.ParticipantIDs(ctx, eventID)
	if err != nil {
		return nil, err
	}
	s.write(ctx, key, ids)
	return ids, nil
}

// Invalidate drops the cached set for eventID.
func (s *CachedStore) Invalidate(ctx context.Context, eventID string) (err error) {
	key := CacheKey(eventID)
	ctx, endSpan := tracing.StartCacheSpan(ctx, "DEL", key)
	defer func() { endSpan(err) }()

	if err = s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to invalidate participants cache: %w", err)
	}
	return nil
}

func (s *CachedStore) read(ctx context.Context, key string) (_ map[string]struct{}, hit bool) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "SMEMBERS", key)

	members, err := s.breaker.Execute(func() ([]string, error) {
		return s.client.SMembers(ctx, key).Result()
	})
	endSpan(err)
	if isBreakerOpen(err) {
		return nil, false
	}
	if err != nil {
		s.logger.WarnContext(ctx, "participant cache read failed, using backing store",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return nil, false
	}
	if len(members) == 0 {
		return nil, false
	}

	ids := make(map[string]struct{}, len(members))
	for _, m := range members {
		if m == emptyMarker {
			continue
		}
		ids[m] = struct{}{}
	}
	return ids, true
}

func (s *CachedStore) write(ctx context.Context, key string, ids map[string]struct{}) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "SADD", key)

	members := make([]any, 0, len(ids))
	for id := range ids {
		members = append(members, id)
	}
	if len(members) == 0 {
		members = append(members, emptyMarker)
	}

	_, err := s.breaker.Execute(func() ([]string, error) {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			pipe.SAdd(ctx, key, members...)
			pipe.Expire(ctx, key, s.ttl)
			return nil
		})
		return nil, err
	})
	endSpan(err)
	if err != nil && !isBreakerOpen(err) {
		s.logger.WarnContext(ctx, "participant cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()))
	}
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
