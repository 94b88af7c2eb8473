package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/onnwee/sparkfeed/internal/health"
)

// readyTimeout bounds all readiness checks together.
const readyTimeout = 5 * time.Second

// HealthHandlers serves the liveness and readiness endpoints.
type HealthHandlers struct {
	checkers []health.Checker
	now      func() time.Time
}

// NewHealthHandlers creates health handlers. Every checker must pass for
// the service to be ready.
func NewHealthHandlers(checkers ...health.Checker) *HealthHandlers {
	return &HealthHandlers{checkers: checkers, now: time.Now}
}

// HealthResponse is the health response body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	Timestamp string            `json:"timestamp"`
}

// Health handles GET /health. It never touches dependencies.
func (h *HealthHandlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	writeJSON(w, r, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Checks:    map[string]string{"runtime": "ok"},
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

// Ready handles GET /ready. It returns 503 when any checker fails.
func (h *HealthHandlers) Ready(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	healthy := true
	for _, c := range h.checkers {
		if err := c.HealthCheck(ctx); err != nil {
			checks[c.Name()] = "error"
			healthy = false
			slog.WarnContext(ctx, "readiness check failed", "check", c.Name(), "error", err)
			continue
		}
		checks[c.Name()] = "ok"
	}

	resp := HealthResponse{
		Status:    "healthy",
		Checks:    checks,
		Timestamp: h.now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	if !healthy {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, r, status, resp)
}
