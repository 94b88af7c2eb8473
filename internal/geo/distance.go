package geo

import (
	"math"
	"strings"
)

// earthRadiusKm is the mean Earth radius used by HaversineKm.
const earthRadiusKm = 6371.0

// Placeholder distance construction. Same-city candidates start at
// sameCityBaseKm, everyone else at otherCityBaseKm, and the id-derived
// spread stays below estimateSpreadKm.
const (
	sameCityBaseKm   = 2
	otherCityBaseKm  = 14
	estimateSpreadKm = 58
	tieBreakerFactor = 13
)

// HaversineKm returns the great-circle distance in kilometers between two points.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLng := (lng2 - lng1) * math.Pi / 180
	rLat1 := lat1 * math.Pi / 180
	rLat2 := lat2 * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLat1)*math.Cos(rLat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// DistanceBetweenGeohashes returns the haversine distance between the centers
// of two geohash cells. ok is false when either hash is missing or invalid.
func DistanceBetweenGeohashes(a, b string) (km float64, ok bool) {
	lat1, lng1, err := Decode(a)
	if err != nil {
		return 0, false
	}
	lat2, lng2, err := Decode(b)
	if err != nil {
		return 0, false
	}
	return HaversineKm(lat1, lng1, lat2, lng2), true
}

// EstimateDistanceKm derives a stable placeholder distance for a candidate
// whose real distance is unknown. It is a ranking and display proxy, not a
// geodesic value, and must never replace a distance supplied by the data
// source.
//
// The result is base + ((sum of id code points + tieBreakerSeed*13) mod 58),
// where base is 2 when city and selfCity are both set and equal ignoring
// case, else 14. The value is always in [2, 72).
func EstimateDistanceKm(id, city, selfCity string, tieBreakerSeed int) float64 {
	sum := 0
	for _, r := range id {
		sum += int(r)
	}

	spread := (sum + tieBreakerSeed*tieBreakerFactor) % estimateSpreadKm
	if spread < 0 {
		spread += estimateSpreadKm
	}

	base := otherCityBaseKm
	if city != "" && selfCity != "" && strings.EqualFold(city, selfCity) {
		base = sameCityBaseKm
	}

	return float64(base + spread)
}
