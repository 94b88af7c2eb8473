// Package feed builds discovery feed pages: it loads candidates and the
// viewer's context, runs the ranking pipeline, and resolves display distances.
package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/sparkfeed/internal/event"
	"github.com/onnwee/sparkfeed/internal/geo"
	"github.com/onnwee/sparkfeed/internal/profile"
	"github.com/onnwee/sparkfeed/internal/ranking"
	"github.com/onnwee/sparkfeed/internal/tracing"
)

// Page size bounds.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// ErrMissingViewer is returned when a request has no viewer id.
var ErrMissingViewer = errors.New("viewer id is required")

// Request describes one feed page.
type Request struct {
	ViewerID string
	Limit    int
	Cursor   *profile.Cursor
	Filters  ranking.FilterState
}

// Item is a ranked profile with its resolved display distance.
// DistanceKm shadows the profile's optional distance and is always set.
type Item struct {
	*profile.Profile
	DistanceKm        float64 `json:"distance_km"`
	DistanceEstimated bool    `json:"distance_estimated"`
}

// Page is one ranked feed page.
type Page struct {
	Items      []Item
	NextCursor *profile.Cursor
	Stages     []string
	Seed       int
}

// Service builds feed pages.
type Service struct {
	profiles     profile.Repository
	participants event.ParticipantStore
	pipeline     *ranking.Pipeline
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records build metrics on m.
func WithMetrics(m *Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the clock used for the serendipity seed.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a feed Service. participants may be nil, in which case
// the event filter never applies. A nil pipeline uses the default options.
func NewService(profiles profile.Repository, participants event.ParticipantStore, pipeline *ranking.Pipeline, opts ...Option) *Service {
	if pipeline == nil {
		pipeline = ranking.NewPipeline(nil)
	}
	s := &Service{
		profiles:     profiles,
		participants: participants,
		pipeline:     pipeline,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

// Build loads, ranks and decorates one feed page for the viewer.
func (s *Service) Build(ctx context.Context, req Request) (_ *Page, err error) {
	if req.ViewerID == "" {
		return nil, ErrMissingViewer
	}
	start := time.Now()
	limit := ClampLimit(req.Limit)

	ctx, endSpan := tracing.StartSpan(ctx, "feed.build")
	defer func() { endSpan(err) }()

	var (
		viewer       *profile.Profile
		candidates   []*profile.Profile
		next         *profile.Cursor
		participants map[string]struct{}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.profiles.GetByID(gctx, req.ViewerID)
		if errors.Is(err, profile.ErrProfileNotFound) {
			s.logger.DebugContext(gctx, "viewer has no profile, ranking without home city",
				slog.String("viewer_id", req.ViewerID))
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to load viewer: %w", err)
		}
		viewer = v
		return nil
	})
	g.Go(func() error {
		list, cur, err := s.profiles.ListCandidates(gctx, profile.Query{
			ViewerID: req.ViewerID,
			Limit:    limit,
			Cursor:   req.Cursor,
		})
		if err != nil {
			return fmt.Errorf("failed to list candidates: %w", err)
		}
		candidates, next = list, cur
		return nil
	})
	if req.Filters.WantsEventScope() && s.participants != nil {
		g.Go(func() error {
			ids, err := s.participants.ParticipantIDs(gctx, req.Filters.EventID)
			if err != nil {
				// Fail open: an empty set disables the event filter.
				s.logger.WarnContext(gctx, "event participant lookup failed, showing unfiltered feed",
					slog.String("event_id", req.Filters.EventID),
					slog.String("error", err.Error()))
				if s.metrics != nil {
					s.metrics.incParticipantLookupErrors()
				}
				return nil
			}
			participants = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byID := make(map[string]*profile.Profile, len(candidates))
	input := make([]ranking.Candidate, 0, len(candidates))
	for _, p := range candidates {
		byID[p.ID] = p
		input = append(input, ranking.Candidate{
			ID:                 p.ID,
			City:               p.City,
			Gender:             p.Gender,
			CompatibilityScore: p.CompatibilityScore,
			DistanceKm:         p.DistanceKm,
		})
	}

	result := s.pipeline.RankDetailed(input, req.Filters, participants, req.ViewerID, s.now())

	items := make([]Item, 0, len(result.Candidates))
	for i, c := range result.Candidates {
		p := byID[c.ID]
		km, estimated := resolveDistance(p, viewer, i)
		items = append(items, Item{Profile: p, DistanceKm: km, DistanceEstimated: estimated})
	}

	report := result.Report
	tracing.SetAttributes(ctx,
		attribute.Int("feed.limit", limit),
		attribute.Int("feed.candidates", report.Output),
		attribute.StringSlice("feed.stages", report.Stages),
		attribute.Int("feed.event_dropped", report.EventDropped),
		attribute.Bool("feed.has_more", next != nil),
	)
	if s.metrics != nil {
		s.metrics.observeBuild(report.Stages, report.Output, report.EventDropped, time.Since(start).Seconds())
	}
	s.logger.DebugContext(ctx, "feed built",
		slog.String("viewer_id", req.ViewerID),
		slog.Int("input", report.Input),
		slog.Int("output", report.Output),
		slog.Any("stages", report.Stages),
		slog.Int("buckets", report.Buckets))

	return &Page{
		Items:      items,
		NextCursor: next,
		Stages:     report.Stages,
		Seed:       report.Seed,
	}, nil
}

// resolveDistance prefers an explicit distance, then the geohash distance
// between viewer and candidate, then the placeholder estimate seeded by the
// item's position in the ranked page.
func resolveDistance(p, viewer *profile.Profile, index int) (km float64, estimated bool) {
	if p.DistanceKm != nil {
		return *p.DistanceKm, false
	}
	var viewerCity string
	if viewer != nil {
		viewerCity = viewer.City
		if km, ok := geo.DistanceBetweenGeohashes(viewer.Geohash, p.Geohash); ok {
			return km, false
		}
	}
	return geo.EstimateDistanceKm(p.ID, p.City, viewerCity, index), true
}
