// Package sampler produces randomized but mean-anchored payout amounts
// using a skew-normal distribution, scaled to the chain's fixed-point
// currency unit.
package sampler

import (
	"math"
	"math/rand"
)

// Distribution shape is fixed: only the mean varies per call.
const (
	deviation = 0.3
	skewness  = 0.5

	// maxDraws bounds the rejection loop for negative variates. With a
	// mean of 0.8 and deviation 0.3 a negative draw is already a >2.6
	// sigma event, so the bound is never hit in practice.
	maxDraws = 16
)

// SkewNormal samples skew-normal variates around a caller-provided mean.
// The zero value is not usable; construct with New or NewWithRand.
type SkewNormal struct {
	divisibility int
	rng          *rand.Rand
}

// New returns a sampler seeded from the given source. Production callers
// seed from entropy; tests pass a fixed seed for reproducible draws.
func New(seed int64) *SkewNormal {
	return NewWithRand(rand.New(rand.NewSource(seed)))
}

// NewWithRand wraps an existing generator, which the sampler then owns.
// The generator must not be shared across goroutines.
func NewWithRand(rng *rand.Rand) *SkewNormal {
	return &SkewNormal{divisibility: 6, rng: rng}
}

// Sample returns a skew-normal variate around mean, rounded to 6 decimal
// places and scaled by 10^6 into the chain's smallest currency unit.
// Negative variates are redrawn so the result is always >= 0.
func (s *SkewNormal) Sample(mean float64) int64 {
	variate := 0.0
	for i := 0; i < maxDraws; i++ {
		if v := s.skewNormal(mean); v >= 0 {
			variate = v
			break
		}
	}

	// Round to the divisibility, then scale to an integer amount.
	scale := math.Pow(10, float64(s.divisibility))
	return int64(math.Round(variate * scale))
}

// boxMuller produces two independent standard-normal variates. Uniform
// draws of exactly zero are rejected to avoid the log(0) singularity.
func (s *SkewNormal) boxMuller() (float64, float64) {
	var u1, u2 float64
	for u1 == 0 {
		u1 = s.rng.Float64()
	}
	for u2 == 0 {
		u2 = s.rng.Float64()
	}
	mag := math.Sqrt(-2.0 * math.Log(u1))
	dir := 2.0 * math.Pi * u2
	return mag * math.Cos(dir), mag * math.Sin(dir)
}

// skewNormal applies the closed-form skew transform to a Box-Muller pair.
// See https://spin.atomicobject.com/2019/09/30/skew-normal-prng-javascript/
func (s *SkewNormal) skewNormal(mean float64) float64 {
	u0, v := s.boxMuller()
	if skewness == 0 {
		return mean + deviation*u0
	}
	coeff := skewness / math.Sqrt(1+skewness*skewness)
	u1 := coeff*u0 + math.Sqrt(1-coeff*coeff)*v
	z := u1
	if u0 < 0 {
		z = -u1
	}
	return mean + deviation*z
}
