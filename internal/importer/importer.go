// Package importer loads profile, compatibility and event participant
// records from a JSON-lines stream into the feed stores.
package importer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/sparkfeed/internal/profile"
)

// Record kinds, selected by the "kind" field. Records without one are profiles.
const (
	KindProfile       = "profile"
	KindCompatibility = "compatibility"
	KindParticipant   = "participant"
)

// Participant actions, selected by the "action" field. Missing means join.
const (
	ActionJoin  = "join"
	ActionLeave = "leave"
)

// maxLineBytes bounds a single record.
const maxLineBytes = 1 << 20

// Record errors. Records that fail with these are skipped, not fatal.
var (
	ErrUnknownKind  = errors.New("unknown record kind")
	ErrMissingField = errors.New("missing required field")
	ErrMalformed    = errors.New("malformed record")
)

// ProfileWriter stores profiles and per-viewer compatibility scores.
type ProfileWriter interface {
	Upsert(ctx context.Context, p *profile.Profile) error
	SetCompatibility(ctx context.Context, viewerID, candidateID string, score int) error
}

// ParticipantWriter stores event participation.
type ParticipantWriter interface {
	Join(ctx context.Context, eventID, profileID string) error
	Leave(ctx context.Context, eventID, profileID string) error
}

// CacheInvalidator drops cached participant sets.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, eventID string) error
}

// Stats summarizes a run.
type Stats struct {
	Lines    int
	Imported int
	Skipped  int
	// Events lists the events whose participants changed, sorted.
	Events []string
}

// Importer writes records to the stores. It is not safe for concurrent Runs.
type Importer struct {
	profiles     ProfileWriter
	participants ParticipantWriter
	invalidator  CacheInvalidator
	metrics      *Metrics
	logger       *slog.Logger
	now          func() time.Time
}

// Option configures an Importer.
type Option func(*Importer)

// WithInvalidator invalidates the participant cache for every event touched by a run.
func WithInvalidator(inv CacheInvalidator) Option {
	return func(im *Importer) { im.invalidator = inv }
}

// WithMetrics records per-record results on m.
func WithMetrics(m *Metrics) Option {
	return func(im *Importer) { im.metrics = m }
}

// WithLogger sets the importer logger.
func WithLogger(l *slog.Logger) Option {
	return func(im *Importer) { im.logger = l }
}

// New creates an Importer.
func New(profiles ProfileWriter, participants ParticipantWriter, opts ...Option) *Importer {
	im := &Importer{
		profiles:     profiles,
		participants: participants,
		logger:       slog.Default(),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Run imports every line of r. Blank lines and lines starting with '#' are
// ignored. Invalid records are logged and skipped; a store error stops the
// run and is returned with the offending line number.
func (im *Importer) Run(ctx context.Context, r io.Reader) (Stats, error) {
	var stats Stats
	touched := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if err := ctx.Err(); err != nil {
			im.invalidate(context.WithoutCancel(ctx), touched, &stats)
			return stats, err
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Lines++

		kind, err := im.importLine(ctx, line, touched)
		switch {
		case err == nil:
			stats.Imported++
			im.metrics.record(kind, resultImported)
		case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrMissingField),
			errors.Is(err, ErrMalformed), errors.Is(err, profile.ErrMissingID):
			stats.Skipped++
			im.metrics.record(kind, resultSkipped)
			im.logger.WarnContext(ctx, "skipping import record",
				slog.Int("line", lineNo),
				slog.String("kind", kind),
				slog.String("error", err.Error()))
		default:
			im.metrics.record(kind, resultFailed)
			im.invalidate(ctx, touched, &stats)
			return stats, fmt.Errorf("line %d: %w", lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		im.invalidate(ctx, touched, &stats)
		return stats, fmt.Errorf("failed to read input: %w", err)
	}

	im.invalidate(ctx, touched, &stats)
	im.logger.InfoContext(ctx, "import finished",
		slog.Int("lines", stats.Lines),
		slog.Int("imported", stats.Imported),
		slog.Int("skipped", stats.Skipped))
	return stats, nil
}

// importLine decodes and writes one record, returning its kind for metrics.
func (im *Importer) importLine(ctx context.Context, line string, touched map[string]struct{}) (string, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		return "unknown", fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	kind := KindProfile
	if k, ok := rec["kind"].(string); ok && k != "" {
		kind = strings.ToLower(k)
	}

	start := time.Now()
	defer func() { im.metrics.observeWrite(time.Since(start).Seconds()) }()

	switch kind {
	case KindProfile:
		p, err := profile.FromRecord(rec)
		if err != nil {
			return kind, err
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = im.now().UTC()
		}
		return kind, im.profiles.Upsert(ctx, p)

	case KindCompatibility:
		viewerID, candidateID := stringValue(rec["viewer_id"]), stringValue(rec["candidate_id"])
		score, ok := scoreValue(rec["score"])
		if viewerID == "" || candidateID == "" || !ok {
			return kind, fmt.Errorf("%w: viewer_id, candidate_id and score", ErrMissingField)
		}
		return kind, im.profiles.SetCompatibility(ctx, viewerID, candidateID, score)

	case KindParticipant:
		eventID, profileID := stringValue(rec["event_id"]), stringValue(rec["profile_id"])
		if eventID == "" || profileID == "" {
			return kind, fmt.Errorf("%w: event_id and profile_id", ErrMissingField)
		}
		var err error
		switch action := strings.ToLower(stringValue(rec["action"])); action {
		case "", ActionJoin:
			err = im.participants.Join(ctx, eventID, profileID)
		case ActionLeave:
			err = im.participants.Leave(ctx, eventID, profileID)
		default:
			return kind, fmt.Errorf("%w: unknown action %q", ErrMalformed, action)
		}
		if err != nil {
			return kind, err
		}
		touched[eventID] = struct{}{}
		return kind, nil
	}
	return "unknown", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

// invalidate drops cached participant sets for touched events. Failures are
// logged; stale entries expire with the cache TTL.
func (im *Importer) invalidate(ctx context.Context, touched map[string]struct{}, stats *Stats) {
	stats.Events = make([]string, 0, len(touched))
	for id := range touched {
		stats.Events = append(stats.Events, id)
	}
	sort.Strings(stats.Events)

	if im.invalidator == nil {
		return
	}
	for _, id := range stats.Events {
		if err := im.invalidator.Invalidate(ctx, id); err != nil {
			im.logger.WarnContext(ctx, "failed to invalidate participant cache",
				slog.String("event_id", id),
				slog.String("error", err.Error()))
		}
	}
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

// scoreValue reads a compatibility score, clamped to [0, 100].
func scoreValue(v any) (int, bool) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return profile.ScoreFromFloat(f), true
}
