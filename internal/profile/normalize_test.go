package profile

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/onnwee/sparkfeed/internal/geo"
)

func TestFromRecord_AlternateKeys(t *testing.T) {
	tests := []struct {
		name       string
		rec        map[string]any
		wantID     string
		wantCity   string
		wantGender string
		wantScore  *int
	}{
		{
			name:       "canonical keys",
			rec:        map[string]any{"id": "u1", "city": "Paris", "gender": "F", "compatibility_score": 72.0},
			wantID:     "u1",
			wantCity:   "Paris",
			wantGender: "F",
			wantScore:  intPtr(72),
		},
		{
			name:       "alternate keys",
			rec:        map[string]any{"user_id": "u2", "location_city": "Lyon", "sex": "m", "match_score": "64"},
			wantID:     "u2",
			wantCity:   "Lyon",
			wantGender: "m",
			wantScore:  intPtr(64),
		},
		{
			name:      "uuid and location",
			rec:       map[string]any{"uuid": "u3", "location": "Nice", "compatibility": 101},
			wantID:    "u3",
			wantCity:  "Nice",
			wantScore: intPtr(100),
		},
		{
			name:      "canonical key wins",
			rec:       map[string]any{"id": "primary", "user_id": "secondary", "compatibility_score": -5},
			wantID:    "primary",
			wantScore: intPtr(0),
		},
		{
			name:   "unparseable score left unset",
			rec:    map[string]any{"id": "u4", "compatibility_score": "high"},
			wantID: "u4",
		},
		{
			name:   "numeric id",
			rec:    map[string]any{"user_id": 12345.0},
			wantID: "12345",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromRecord(tt.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.ID != tt.wantID {
				t.Errorf("ID = %q, want %q", p.ID, tt.wantID)
			}
			if p.City != tt.wantCity {
				t.Errorf("City = %q, want %q", p.City, tt.wantCity)
			}
			if p.Gender != tt.wantGender {
				t.Errorf("Gender = %q, want %q", p.Gender, tt.wantGender)
			}
			switch {
			case tt.wantScore == nil && p.CompatibilityScore != nil:
				t.Errorf("CompatibilityScore = %d, want unset", *p.CompatibilityScore)
			case tt.wantScore != nil && p.CompatibilityScore == nil:
				t.Errorf("CompatibilityScore unset, want %d", *tt.wantScore)
			case tt.wantScore != nil && *p.CompatibilityScore != *tt.wantScore:
				t.Errorf("CompatibilityScore = %d, want %d", *p.CompatibilityScore, *tt.wantScore)
			}
		})
	}
}

func TestFromRecord_MissingID(t *testing.T) {
	for _, rec := range []map[string]any{
		{},
		{"city": "Paris"},
		{"id": "   "},
		{"id": nil},
	} {
		if _, err := FromRecord(rec); !errors.Is(err, ErrMissingID) {
			t.Errorf("FromRecord(%v) error = %v, want ErrMissingID", rec, err)
		}
	}
}

func TestFromRecord_Distance(t *testing.T) {
	p, _ := FromRecord(map[string]any{"id": "a", "distance": "12.5"})
	if p.DistanceKm == nil || *p.DistanceKm != 12.5 {
		t.Errorf("DistanceKm = %v, want 12.5", p.DistanceKm)
	}

	p, _ = FromRecord(map[string]any{"id": "a", "distance_km": -3.0})
	if p.DistanceKm != nil {
		t.Errorf("negative distance should be dropped, got %v", *p.DistanceKm)
	}
}

func TestFromRecord_DecodedJSON(t *testing.T) {
	raw := `{"user_id":"u9","name":"Sam","location":"Berlin","sex":"nb","age":"29",
		"match_score":88,"geohash":"U33DC0","joined_at":"2026-01-02T03:04:05Z"}`

	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()
	var rec map[string]any
	if err := dec.Decode(&rec); err != nil {
		t.Fatalf("decode: %v", err)
	}

	p, err := FromRecord(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.DisplayName != "Sam" || p.City != "Berlin" || p.Gender != "nb" || p.Age != 29 {
		t.Errorf("unexpected profile: %+v", p)
	}
	if p.CompatibilityScore == nil || *p.CompatibilityScore != 88 {
		t.Errorf("CompatibilityScore = %v, want 88", p.CompatibilityScore)
	}
	if p.Geohash != "u33dc0" {
		t.Errorf("Geohash = %q, want lower-cased u33dc0", p.Geohash)
	}
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if !p.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", p.CreatedAt, want)
	}
}

func TestFromRecord_Location(t *testing.T) {
	tests := []struct {
		name string
		rec  map[string]any
		want string
	}{
		{"long geohash truncated", map[string]any{"id": "a", "geohash": "U09TVW0QZ"}, "u09tvw"},
		{"invalid geohash dropped", map[string]any{"id": "a", "geohash": "hello!"}, ""},
		{"coordinates encoded", map[string]any{"id": "a", "lat": 48.8566, "lng": "2.3522"}, geo.Encode(48.8566, 2.3522, geo.DefaultPrecision)},
		{"geohash wins over coordinates", map[string]any{"id": "a", "geohash": "u33dc0", "latitude": 10.0, "longitude": 10.0}, "u33dc0"},
		{"out of range coordinates", map[string]any{"id": "a", "lat": 120.0, "lon": 2.0}, ""},
		{"latitude alone", map[string]any{"id": "a", "lat": 48.0}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := FromRecord(tt.rec)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.Geohash != tt.want {
				t.Errorf("Geohash = %q, want %q", p.Geohash, tt.want)
			}
		})
	}
}

func TestScoreFromFloat(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{87.6, 88},
		{-0.4, 0},
		{1e300, 100},
		{-1e300, 0},
		{math.Inf(1), 100},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		if got := ScoreFromFloat(tt.in); got != tt.want {
			t.Errorf("ScoreFromFloat(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}

	p, err := FromRecord(map[string]any{"id": "a", "compatibility_score": 1e300})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.CompatibilityScore == nil || *p.CompatibilityScore != 100 {
		t.Errorf("CompatibilityScore = %v, want 100", p.CompatibilityScore)
	}
}

func TestClampScore(t *testing.T) {
	tests := map[int]int{-10: 0, 0: 0, 50: 50, 100: 100, 250: 100}
	for in, want := range tests {
		if got := ClampScore(in); got != want {
			t.Errorf("ClampScore(%d) = %d, want %d", in, got, want)
		}
	}
}

func intPtr(v int) *int { return &v }
