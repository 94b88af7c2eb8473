// Package geo provides location helpers for the discovery feed: coarse
// geohash handling, great-circle distances, and the placeholder distance
// shown when no real distance is known.
package geo

import (
	"errors"
	"strings"
)

// DefaultPrecision is the geohash length stored for profiles.
// Six characters is roughly a 1.2 km x 0.6 km cell, coarse enough that a
// profile's home is never pinpointed.
const DefaultPrecision = 6

// base32 is the geohash base32 alphabet (no 'a', 'i', 'l' or 'o').
const base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// ErrInvalidGeohash is returned when a geohash is empty or contains
// characters outside the geohash alphabet.
var ErrInvalidGeohash = errors.New("invalid geohash")

// Encode encodes latitude and longitude into a geohash of the given length.
// A precision below 1 falls back to DefaultPrecision.
func Encode(lat, lng float64, precision int) string {
	if precision < 1 {
		precision = DefaultPrecision
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	var sb strings.Builder
	sb.Grow(precision)

	bits := 0
	var ch uint
	even := true
	for sb.Len() < precision {
		if even {
			mid := (lngRange[0] + lngRange[1]) / 2
			if lng > mid {
				ch |= 1 << (4 - bits)
				lngRange[0] = mid
			} else {
				lngRange[1] = mid
			}
		} else {
			mid := (latRange[0] + latRange[1]) / 2
			if lat > mid {
				ch |= 1 << (4 - bits)
				latRange[0] = mid
			} else {
				latRange[1] = mid
			}
		}
		even = !even

		bits++
		if bits == 5 {
			sb.WriteByte(base32[ch])
			bits = 0
			ch = 0
		}
	}

	return sb.String()
}

// Decode returns the center point of the cell described by a geohash.
// Decoding is case-insensitive.
func Decode(hash string) (lat, lng float64, err error) {
	if hash == "" {
		return 0, 0, ErrInvalidGeohash
	}

	latRange := [2]float64{-90.0, 90.0}
	lngRange := [2]float64{-180.0, 180.0}

	even := true
	for _, c := range strings.ToLower(hash) {
		idx := strings.IndexRune(base32, c)
		if idx < 0 {
			return 0, 0, ErrInvalidGeohash
		}
		for bit := 4; bit >= 0; bit-- {
			set := idx&(1<<bit) != 0
			if even {
				mid := (lngRange[0] + lngRange[1]) / 2
				if set {
					lngRange[0] = mid
				} else {
					lngRange[1] = mid
				}
			} else {
				mid := (latRange[0] + latRange[1]) / 2
				if set {
					latRange[0] = mid
				} else {
					latRange[1] = mid
				}
			}
			even = !even
		}
	}

	return (latRange[0] + latRange[1]) / 2, (lngRange[0] + lngRange[1]) / 2, nil
}

// RoundGeohash lower-cases a geohash and truncates it to precision so that
// stored locations never exceed the configured resolution.
// Returns "" for empty input, a precision below 1, or characters outside the
// geohash alphabet.
func RoundGeohash(input string, precision int) string {
	if input == "" || precision < 1 {
		return ""
	}

	lower := strings.ToLower(input)
	for _, c := range lower {
		if !strings.ContainsRune(base32, c) {
			return ""
		}
	}

	if len(lower) <= precision {
		return lower
	}
	return lower[:precision]
}
