// Package retry provides backoff delay calculation
package retry

import (
	"math"
	"time"

	"github.com/seshuthota/backstop/pkg/types"
)

// defaultJitterFraction is the symmetric jitter range applied to computed
// delays. Treated as a tuning constant, overridable per calculator.
const defaultJitterFraction = 0.25

// Calculator computes the delay before a retry attempt from a policy. It is
// pure given a fixed random source and safe for concurrent use.
type Calculator struct {
	rand           types.Rand
	jitterFraction float64
}

// CalculatorOption is a configuration option for the calculator
type CalculatorOption func(*Calculator)

// WithRand sets the random source used for jitter
func WithRand(rand types.Rand) CalculatorOption {
	return func(c *Calculator) {
		c.rand = rand
	}
}

// WithJitterFraction sets the symmetric jitter range as a fraction of the
// raw delay; values outside (0, 1] keep the default.
func WithJitterFraction(fraction float64) CalculatorOption {
	return func(c *Calculator) {
		if fraction > 0 && fraction <= 1.0 {
			c.jitterFraction = fraction
		}
	}
}

// NewCalculator creates a backoff calculator
func NewCalculator(opts ...CalculatorOption) *Calculator {
	c := &Calculator{
		rand:           types.NewRealRand(),
		jitterFraction: defaultJitterFraction,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Delay computes the delay before retry attemptIndex. attemptIndex is
// 0-based: 0 is the delay after the first failure. The raw delay grows
// exponentially from the policy's base delay and is capped at its max delay;
// when the policy enables jitter the result is shifted by a uniform random
// amount within ±jitterFraction of the raw value, floored at zero.
func (c *Calculator) Delay(attemptIndex int, p *Policy) time.Duration {
	if attemptIndex < 0 {
		attemptIndex = 0
	}

	raw := float64(p.BaseDelay()) * math.Pow(p.Multiplier(), float64(attemptIndex))
	if raw > float64(p.MaxDelay()) {
		raw = float64(p.MaxDelay())
	}

	if !p.Jitter() {
		return time.Duration(raw)
	}

	// uniform in [-fraction, +fraction] of raw
	offset := (c.rand.Float64()*2 - 1) * c.jitterFraction * raw
	delay := raw + offset
	if delay < 0 {
		delay = 0
	}

	return time.Duration(delay)
}
