package types

import "math/rand"

// Rand provides an abstraction over randomness so jittered delays stay
// deterministic in tests
type Rand interface {
	// Float64 returns a pseudo-random number in [0.0, 1.0)
	Float64() float64
}

// RealRand implements Rand using the shared math/rand source
type RealRand struct{}

// NewRealRand creates a new real random source
func NewRealRand() Rand {
	return &RealRand{}
}

func (r *RealRand) Float64() float64 {
	return rand.Float64()
}
