// Package profile provides the candidate profile model and its storage
// for the discovery feed.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Sentinel errors for profile operations.
var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrInvalidCursor   = errors.New("invalid cursor")
	ErrMissingID       = errors.New("profile record has no id")
)

// Profile is a dating profile as shown in the discovery feed.
// CompatibilityScore is relative to the viewer that listed it.
type Profile struct {
	ID                 string     `json:"id"`
	DisplayName        string     `json:"display_name"`
	City               string     `json:"city,omitempty"`
	Gender             string     `json:"gender,omitempty"`
	Age                int        `json:"age,omitempty"`
	Bio                string     `json:"bio,omitempty"`
	PhotoURL           string     `json:"photo_url,omitempty"`
	CompatibilityScore *int       `json:"compatibility_score,omitempty"`
	DistanceKm         *float64   `json:"distance_km,omitempty"`
	Geohash            string     `json:"-"`
	LastActiveAt       *time.Time `json:"last_active_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	c := *p
	if p.CompatibilityScore != nil {
		v := *p.CompatibilityScore
		c.CompatibilityScore = &v
	}
	if p.DistanceKm != nil {
		v := *p.DistanceKm
		c.DistanceKm = &v
	}
	if p.LastActiveAt != nil {
		v := *p.LastActiveAt
		c.LastActiveAt = &v
	}
	return &c
}

// Cursor is a keyset position in the (created_at DESC, id ASC) order.
type Cursor struct {
	CreatedAt time.Time `json:"created_at"`
	ID        string    `json:"id"`
}

// String encodes the cursor as "created_at_unix_nano:id".
func (c Cursor) String() string {
	return fmt.Sprintf("%d:%s", c.CreatedAt.UnixNano(), c.ID)
}

// After reports whether p sorts strictly after the cursor position.
func (c Cursor) After(p *Profile) bool {
	if p.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return p.CreatedAt.Equal(c.CreatedAt) && p.ID > c.ID
}

// ParseCursor decodes a cursor produced by Cursor.String.
// An empty string yields a nil cursor.
func ParseCursor(s string) (*Cursor, error) {
	if s == "" {
		return nil, nil
	}
	ts, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return nil, fmt.Errorf("%w: expected created_at:id", ErrInvalidCursor)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidCursor, err)
	}
	return &Cursor{CreatedAt: time.Unix(0, nanos).UTC(), ID: id}, nil
}

// Query selects one page of feed candidates for a viewer.
type Query struct {
	ViewerID string
	Limit    int
	Cursor   *Cursor
}

// Repository reads profiles for the feed.
type Repository interface {
	// GetByID returns ErrProfileNotFound when no live profile has the id.
	GetByID(ctx context.Context, id string) (*Profile, error)

	// ListCandidates returns profiles other than the viewer ordered by
	// (created_at DESC, id ASC), with the viewer's compatibility scores
	// attached. The returned cursor is nil on the last page.
	ListCandidates(ctx context.Context, q Query) ([]*Profile, *Cursor, error)
}
