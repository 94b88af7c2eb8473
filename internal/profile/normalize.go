package profile

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/sparkfeed/internal/geo"
)

// Alternate key names seen in upstream profile records, in priority order.
var (
	idKeys       = []string{"id", "user_id", "uuid"}
	nameKeys     = []string{"display_name", "name", "first_name"}
	cityKeys     = []string{"city", "location_city", "location"}
	genderKeys   = []string{"gender", "sex"}
	scoreKeys    = []string{"compatibility_score", "compatibility", "match_score"}
	distanceKeys = []string{"distance_km", "distance"}
	photoKeys    = []string{"photo_url", "avatar_url", "photo"}
	createdKeys  = []string{"created_at", "joined_at"}
	latKeys      = []string{"lat", "latitude"}
	lngKeys      = []string{"lng", "lon", "longitude"}
)

// ClampScore limits a compatibility score to [0, 100].
func ClampScore(score int) int {
	return min(max(score, 0), 100)
}

// ScoreFromFloat rounds a fractional score after clamping it to [0, 100].
// NaN maps to 0.
func ScoreFromFloat(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(min(max(v, 0), 100)))
}

// FromRecord builds a Profile from a loosely typed record such as a decoded
// JSON object from a matching service. Numeric fields may arrive as numbers
// or numeric strings. Unparseable optional fields are left unset.
func FromRecord(rec map[string]any) (*Profile, error) {
	id := stringField(rec, idKeys)
	if id == "" {
		return nil, ErrMissingID
	}

	p := &Profile{
		ID:          id,
		DisplayName: stringField(rec, nameKeys),
		City:        stringField(rec, cityKeys),
		Gender:      stringField(rec, genderKeys),
		Bio:         stringField(rec, []string{"bio"}),
		PhotoURL:    stringField(rec, photoKeys),
		Geohash:     geo.RoundGeohash(stringField(rec, []string{"geohash"}), geo.DefaultPrecision),
	}
	if p.Geohash == "" {
		lat, okLat := numberField(rec, latKeys)
		lng, okLng := numberField(rec, lngKeys)
		if okLat && okLng && math.Abs(lat) <= 90 && math.Abs(lng) <= 180 {
			p.Geohash = geo.Encode(lat, lng, geo.DefaultPrecision)
		}
	}

	if v, ok := numberField(rec, []string{"age"}); ok && v > 0 {
		p.Age = int(v)
	}
	if v, ok := numberField(rec, scoreKeys); ok {
		s := ScoreFromFloat(v)
		p.CompatibilityScore = &s
	}
	if v, ok := numberField(rec, distanceKeys); ok && v >= 0 {
		p.DistanceKm = &v
	}
	if t, ok := timeField(rec, createdKeys); ok {
		p.CreatedAt = t
	}
	if t, ok := timeField(rec, []string{"last_active_at"}); ok {
		p.LastActiveAt = &t
	}
	return p, nil
}

func lookup(rec map[string]any, keys []string) (any, bool) {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func stringField(rec map[string]any, keys []string) string {
	v, ok := lookup(rec, keys)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case json.Number:
		return s.String()
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case int64:
		return strconv.FormatInt(s, 10)
	default:
		return fmt.Sprint(s)
	}
}

func numberField(rec map[string]any, keys []string) (float64, bool) {
	v, ok := lookup(rec, keys)
	if !ok {
		return 0, false
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
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
	return f, true
}

func timeField(rec map[string]any, keys []string) (time.Time, bool) {
	v, ok := lookup(rec, keys)
	if !ok {
		return time.Time{}, false
	}
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), true
	case string:
		parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(t))
		if err != nil {
			return time.Time{}, false
		}
		return parsed.UTC(), true
	default:
		if secs, ok := numberField(map[string]any{"t": v}, []string{"t"}); ok {
			return time.Unix(int64(secs), 0).UTC(), true
		}
		return time.Time{}, false
	}
}
