package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T, metrics *Metrics) (*miniredis.Miniredis, *RedisRateLimitStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, NewRedisRateLimitStore(client, metrics, nil)
}

func TestRedisRateLimitStore_Window(t *testing.T) {
	mr, store := setupRedisStore(t, nil)
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 2, WindowDuration: time.Minute}

	for i := 0; i < 2; i++ {
		if allowed, _ := store.Allow(ctx, "viewer:a", config); !allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	allowed, retryAfter := store.Allow(ctx, "viewer:a", config)
	if allowed {
		t.Fatal("third request should be blocked")
	}
	if retryAfter < 1 || retryAfter > 60 {
		t.Errorf("retryAfter = %d, want within the window", retryAfter)
	}

	if ttl := mr.TTL("sparkfeed:ratelimit:viewer:a"); ttl <= 0 || ttl > time.Minute {
		t.Errorf("key TTL = %s, want (0, 1m]", ttl)
	}

	mr.FastForward(time.Minute + time.Second)
	if allowed, _ := store.Allow(ctx, "viewer:a", config); !allowed {
		t.Error("request after expiry should be allowed")
	}
}

func TestRedisRateLimitStore_Reset(t *testing.T) {
	_, store := setupRedisStore(t, nil)
	ctx := context.Background()
	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}

	store.Allow(ctx, "ip:1.2.3.4", config)
	if allowed, _ := store.Allow(ctx, "ip:1.2.3.4", config); allowed {
		t.Fatal("second request should be blocked")
	}
	if err := store.Reset(ctx, "ip:1.2.3.4"); err != nil {
		t.Fatalf("Reset() failed: %v", err)
	}
	if allowed, _ := store.Allow(ctx, "ip:1.2.3.4", config); !allowed {
		t.Error("request after reset should be allowed")
	}
}

func TestRedisRateLimitStore_FailsOpen(t *testing.T) {
	m := NewMetrics()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("Register() failed: %v", err)
	}
	mr, store := setupRedisStore(t, m)
	mr.Close()

	config := RateLimitConfig{RequestsPerWindow: 1, WindowDuration: time.Minute}
	for i := 0; i < 3; i++ {
		if allowed, _ := store.Allow(context.Background(), "viewer:a", config); !allowed {
			t.Fatalf("request %d should be allowed when redis is down", i+1)
		}
	}

	errs := gatherFamily(t, reg, MetricRateLimitRedisErrors)
	if errs == nil {
		t.Fatal("redis error metric not gathered")
	}
	if got := errs.GetMetric()[0].GetCounter().GetValue(); got != 3 {
		t.Errorf("redis errors = %v, want 3", got)
	}
}
