package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig is a fixed-window limit.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// Validate requires a positive request count and window.
func (c RateLimitConfig) Validate() error {
	if c.RequestsPerWindow <= 0 {
		return fmt.Errorf("RequestsPerWindow must be > 0 (got %d)", c.RequestsPerWindow)
	}
	if c.WindowDuration <= 0 {
		return fmt.Errorf("WindowDuration must be > 0 (got %s)", c.WindowDuration)
	}
	return nil
}

// DefaultFeedLimit allows 60 feed requests per minute per viewer.
func DefaultFeedLimit() RateLimitConfig {
	return RateLimitConfig{RequestsPerWindow: 60, WindowDuration: time.Minute}
}

// RateLimitStore tracks request counts per key.
type RateLimitStore interface {
	// Allow counts a request for key and reports whether it is within the
	// limit. retryAfter is the number of seconds until the window resets.
	Allow(ctx context.Context, key string, config RateLimitConfig) (allowed bool, retryAfter int)
}

type window struct {
	count int
	end   time.Time
}

// InMemoryRateLimitStore is a fixed-window RateLimitStore for a single instance.
type InMemoryRateLimitStore struct {
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

// NewInMemoryRateLimitStore creates an empty in-memory store.
func NewInMemoryRateLimitStore() *InMemoryRateLimitStore {
	return &InMemoryRateLimitStore{
		windows: make(map[string]*window),
		now:     time.Now,
	}
}

// Allow implements RateLimitStore.
func (s *InMemoryRateLimitStore) Allow(ctx context.Context, key string, config RateLimitConfig) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || !now.Before(w.end) {
		s.windows[key] = &window{count: 1, end: now.Add(config.WindowDuration)}
		return true, 0
	}
	if w.count < config.RequestsPerWindow {
		w.count++
		return true, 0
	}
	return false, retryAfterSeconds(w.end.Sub(now))
}

// Cleanup drops expired windows. Call it periodically.
func (s *InMemoryRateLimitStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for key, w := range s.windows {
		if !now.Before(w.end) {
			delete(s.windows, key)
		}
	}
}

// StartCleanup runs Cleanup every interval until ctx is done.
func (s *InMemoryRateLimitStore) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Cleanup()
			}
		}
	}()
}

func retryAfterSeconds(d time.Duration) int {
	secs := int((d + time.Second - 1) / time.Second)
	if secs <= 0 {
		return 1
	}
	return secs
}

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// IPKeyFunc keys by client IP, honoring X-Forwarded-For and X-Real-IP.
func IPKeyFunc() KeyFunc {
	return func(r *http.Request) string {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
}

// ViewerKeyFunc keys by authenticated viewer id, falling back to client IP.
func ViewerKeyFunc() KeyFunc {
	ip := IPKeyFunc()
	return func(r *http.Request) string {
		if id := GetViewerID(r.Context()); id != "" {
			return "viewer:" + id
		}
		return "ip:" + ip(r)
	}
}

// RateLimiter rejects requests over the limit with 429 and a Retry-After
// header. metrics may be nil.
func RateLimiter(store RateLimitStore, config RateLimitConfig, keyFunc KeyFunc, metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			keyType, _, _ := strings.Cut(key, ":")
			route := RouteLabel(r.URL.Path)
			if metrics != nil {
				metrics.IncRateLimitRequests(route, keyType)
			}

			allowed, retryAfter := store.Allow(r.Context(), key, config)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			if metrics != nil {
				metrics.IncRateLimitBlocked(route, keyType)
			}
			ctx := SetErrorCode(r.Context(), "rate_limited")
			UpdateResponseContext(w, ctx)

			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			reset := time.Now().Add(time.Duration(retryAfter) * time.Second).Unix()
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset, 10))
			writeJSONError(w, http.StatusTooManyRequests, "rate_limited", "Too many requests")
		})
	}
}

// writeJSONError writes the API error envelope. It mirrors api.WriteError,
// which this package cannot import.
func writeJSONError(w http.ResponseWriter, status int, code, message string) {
	body := map[string]map[string]string{"error": {"code": code, "message": message}}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
