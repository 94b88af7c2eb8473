package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/onnwee/sparkfeed/internal/feed"
	"github.com/onnwee/sparkfeed/internal/middleware"
	"github.com/onnwee/sparkfeed/internal/profile"
	"github.com/onnwee/sparkfeed/internal/ranking"
)

// Sort orders accepted by GET /feed.
const (
	SortRecent        = "recent"
	SortCompatibility = "compatibility"
)

// FeedBuilder builds ranked feed pages.
type FeedBuilder interface {
	Build(ctx context.Context, req feed.Request) (*feed.Page, error)
}

// FeedHandlers serves the discovery feed.
type FeedHandlers struct {
	builder FeedBuilder
}

// NewFeedHandlers creates feed handlers.
func NewFeedHandlers(builder FeedBuilder) *FeedHandlers {
	return &FeedHandlers{builder: builder}
}

// FeedResponse is the body of GET /feed.
type FeedResponse struct {
	Items      []feed.Item `json:"items"`
	NextCursor *string     `json:"next_cursor,omitempty"`
	Stages     []string    `json:"stages"`
}

// GetFeed handles GET /feed.
//
// Query parameters: limit (1..100, default 20), cursor
// (created_at_unix_nano:id), sort (recent|compatibility), event_id,
// event_only, serendipity and diversity. Flags accept true/1/yes/on and
// false/0/no/off.
func (h *FeedHandlers) GetFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, ErrCodeBadRequest, "Method not allowed")
		return
	}

	req, msg := parseFeedRequest(r.URL.Query())
	if msg != "" {
		writeError(w, r, http.StatusBadRequest, ErrCodeValidation, msg)
		return
	}
	req.ViewerID = middleware.GetViewerID(r.Context())

	page, err := h.builder.Build(r.Context(), req)
	if err != nil {
		if errors.Is(err, feed.ErrMissingViewer) {
			writeError(w, r, http.StatusUnauthorized, ErrCodeAuthFailed, "Authentication required")
			return
		}
		slog.ErrorContext(r.Context(), "failed to build feed", "error", err, "viewer_id", req.ViewerID)
		writeError(w, r, http.StatusInternalServerError, ErrCodeInternal, "Failed to build feed")
		return
	}

	resp := FeedResponse{
		Items:  page.Items,
		Stages: page.Stages,
	}
	if resp.Items == nil {
		resp.Items = []feed.Item{}
	}
	if resp.Stages == nil {
		resp.Stages = []string{}
	}
	if page.NextCursor != nil {
		next := page.NextCursor.String()
		resp.NextCursor = &next
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// parseFeedRequest reads the feed query. A non-empty message describes the
// first invalid parameter.
func parseFeedRequest(q url.Values) (feed.Request, string) {
	var req feed.Request

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return req, "Invalid limit parameter"
		}
		req.Limit = feed.ClampLimit(limit)
	}

	cursor, err := profile.ParseCursor(q.Get("cursor"))
	if err != nil {
		return req, "Invalid cursor parameter"
	}
	req.Cursor = cursor

	var filters ranking.FilterState
	switch strings.ToLower(q.Get("sort")) {
	case "", SortRecent:
	case SortCompatibility:
		filters.SortByCompatibility = true
	default:
		return req, "Invalid sort parameter"
	}

	filters.EventID = strings.TrimSpace(q.Get("event_id"))
	for _, f := range []struct {
		name string
		dst  *bool
	}{
		{"event_only", &filters.EventOnly},
		{"serendipity", &filters.Serendipity},
		{"diversity", &filters.Diversity},
	} {
		raw := q.Get(f.name)
		if raw == "" {
			continue
		}
		v, ok := parseFlag(raw)
		if !ok {
			return req, "Invalid " + f.name + " parameter"
		}
		*f.dst = v
	}

	req.Filters = filters
	return req, ""
}

func parseFlag(s string) (value, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "on":
		return true, true
	case "false", "0", "no", "off":
		return false, true
	}
	return false, false
}
