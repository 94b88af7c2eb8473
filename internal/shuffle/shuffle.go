// Package shuffle provides a deterministic, seeded permutation of slices.
//
// The same input order and seed always produce the same output order, which
// lets callers derive a "surprise" ordering that stays stable for a given
// user on a given day without storing anything server-side.
package shuffle

// Xorshift32 is a 32-bit xorshift pseudo-random generator.
// The zero state is a fixed point of xorshift, so NewXorshift32 never
// produces it.
type Xorshift32 struct {
	state uint32
}

// NewXorshift32 creates a generator seeded with the low 32 bits of seed.
// A seed that reduces to zero is replaced with 1.
func NewXorshift32(seed int) *Xorshift32 {
	s := uint32(seed)
	if s == 0 {
		s = 1
	}
	return &Xorshift32{state: s}
}

// Next advances the generator and returns the next 32-bit output.
func (x *Xorshift32) Next() uint32 {
	s := x.state
	s ^= s << 13
	s ^= s >> 17
	s ^= s << 5
	x.state = s
	return s
}

// Float64 returns the next output normalized to [0, 1).
func (x *Xorshift32) Float64() float64 {
	return float64(x.Next()) / 4294967296.0
}

// Intn returns a value uniformly drawn from [0, n). n must be > 0.
func (x *Xorshift32) Intn(n int) int {
	return int(x.Float64() * float64(n))
}

// Shuffle returns a Fisher-Yates permutation of items driven by a
// Xorshift32 generator seeded with seed. The input slice is never modified.
//
// Positions are visited from the last element down to the second; at each
// position i an index j in [0, i] is drawn and elements i and j are swapped.
// Slices with fewer than two elements come back as an unchanged copy.
func Shuffle[T any](items []T, seed int) []T {
	out := make([]T, len(items))
	copy(out, items)

	rng := NewXorshift32(seed)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}
