package main

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/sparkfeed/internal/api"
	"github.com/onnwee/sparkfeed/internal/health"
	"github.com/onnwee/sparkfeed/internal/middleware"
)

const serviceName = "sparkfeed-api"

// deps are the collaborators the HTTP handler is built from.
type deps struct {
	feed        api.FeedBuilder
	tokens      middleware.TokenValidator
	checkers    []health.Checker
	rateStore   middleware.RateLimitStore
	rateLimit   middleware.RateLimitConfig
	httpMetrics *middleware.Metrics
	registry    *prometheus.Registry
	logger      *slog.Logger
}

// newHandler wires routes and middleware.
// Chain: RequestID -> Tracing -> Logging -> HTTPMetrics -> mux.
func newHandler(d deps) http.Handler {
	mux := http.NewServeMux()

	healthHandlers := api.NewHealthHandlers(d.checkers...)
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)

	if d.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
	}

	feedHandlers := api.NewFeedHandlers(d.feed)
	var feedRoute http.Handler = http.HandlerFunc(feedHandlers.GetFeed)
	feedRoute = middleware.RateLimiter(d.rateStore, d.rateLimit, middleware.ViewerKeyFunc(), d.httpMetrics)(feedRoute)
	feedRoute = middleware.RequireAuth(d.tokens, d.httpMetrics)(feedRoute)
	mux.Handle("/feed", feedRoute)

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			ctx := middleware.SetErrorCode(r.Context(), api.ErrCodeNotFound)
			api.WriteError(w, ctx, api.StatusCodeMapping(api.ErrCodeNotFound), api.ErrCodeNotFound, "The requested resource was not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`{"service":"` + serviceName + `","version":"` + version + `"}`)); err != nil {
			slog.Error("failed to write response", "error", err)
		}
	})

	var handler http.Handler = mux
	handler = middleware.HTTPMetrics(d.httpMetrics)(handler)
	handler = middleware.Logging(d.logger)(handler)
	handler = middleware.Tracing(serviceName)(handler)
	return middleware.RequestID(handler)
}
