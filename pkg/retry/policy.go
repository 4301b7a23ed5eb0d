// Package retry provides the retry policy and its presets
package retry

import (
	"errors"
	"time"

	"github.com/seshuthota/backstop/pkg/types"
)

// Predicate decides whether an error observed on a given attempt should be
// retried. Attempt numbering is 1-based and counts the attempt that just
// failed.
type Predicate func(err error, attempt int) bool

// Policy defines the parameters of one retry execution. A Policy is immutable
// once constructed; build a new one to change behavior.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	multiplier  float64
	jitter      bool
	timeout     time.Duration
	predicate   Predicate
}

// PolicyOption is a configuration option for retry policies
type PolicyOption func(*Policy)

// WithMaxAttempts sets the total attempt budget (minimum 1)
func WithMaxAttempts(maxAttempts int) PolicyOption {
	return func(p *Policy) {
		p.maxAttempts = maxAttempts
	}
}

// WithBaseDelay sets the delay before the first retry
func WithBaseDelay(baseDelay time.Duration) PolicyOption {
	return func(p *Policy) {
		p.baseDelay = baseDelay
	}
}

// WithMaxDelay caps the delay between attempts
func WithMaxDelay(maxDelay time.Duration) PolicyOption {
	return func(p *Policy) {
		p.maxDelay = maxDelay
	}
}

// WithMultiplier sets the exponential backoff multiplier (minimum 1.0)
func WithMultiplier(multiplier float64) PolicyOption {
	return func(p *Policy) {
		p.multiplier = multiplier
	}
}

// WithJitter enables symmetric jitter on computed delays
func WithJitter(enabled bool) PolicyOption {
	return func(p *Policy) {
		p.jitter = enabled
	}
}

// WithTimeout sets a per-attempt timeout; zero disables it
func WithTimeout(timeout time.Duration) PolicyOption {
	return func(p *Policy) {
		p.timeout = timeout
	}
}

// WithPredicate sets the retry predicate. A policy without a predicate
// retries every failure until the attempt budget is exhausted.
func WithPredicate(predicate Predicate) PolicyOption {
	return func(p *Policy) {
		p.predicate = predicate
	}
}

// NewPolicy creates a policy with the given options. Out-of-range parameters
// are normalized rather than rejected: maxAttempts is raised to 1, the
// multiplier to 1.0, and maxDelay to at least baseDelay.
func NewPolicy(opts ...PolicyOption) *Policy {
	p := &Policy{
		maxAttempts: 3,
		baseDelay:   100 * time.Millisecond,
		maxDelay:    30 * time.Second,
		multiplier:  2.0,
		jitter:      false,
	}

	for _, opt := range opts {
		opt(p)
	}

	p.normalize()
	return p
}

func (p *Policy) normalize() {
	if p.maxAttempts < 1 {
		p.maxAttempts = 1
	}
	if p.baseDelay < 0 {
		p.baseDelay = 0
	}
	if p.multiplier < 1.0 {
		p.multiplier = 1.0
	}
	if p.maxDelay < p.baseDelay {
		p.maxDelay = p.baseDelay
	}
	if p.timeout < 0 {
		p.timeout = 0
	}
}

// MaxAttempts returns the total attempt budget
func (p *Policy) MaxAttempts() int {
	return p.maxAttempts
}

// BaseDelay returns the delay before the first retry
func (p *Policy) BaseDelay() time.Duration {
	return p.baseDelay
}

// MaxDelay returns the delay cap
func (p *Policy) MaxDelay() time.Duration {
	return p.maxDelay
}

// Multiplier returns the exponential backoff multiplier
func (p *Policy) Multiplier() float64 {
	return p.multiplier
}

// Jitter reports whether jitter is applied to delays
func (p *Policy) Jitter() bool {
	return p.jitter
}

// Timeout returns the per-attempt timeout, zero if none
func (p *Policy) Timeout() time.Duration {
	return p.timeout
}

// ShouldRetry reports whether the given failure on the given 1-based attempt
// leaves room for another try under this policy. An explicit
// types.RetryableError classification on the error takes precedence over the
// predicate.
func (p *Policy) ShouldRetry(err error, attempt int) bool {
	if attempt >= p.maxAttempts {
		return false
	}

	var rerr *types.RetryableError
	if errors.As(err, &rerr) {
		return rerr.Retryable
	}

	if p.predicate != nil {
		return p.predicate(err, attempt)
	}
	return true
}

// derive produces a copy of the policy with an adapted attempt budget and
// base delay, used by AdaptiveController.
func (p *Policy) derive(maxAttempts int, baseDelay time.Duration) *Policy {
	derived := *p
	derived.maxAttempts = maxAttempts
	derived.baseDelay = baseDelay
	derived.normalize()
	return &derived
}

// NetworkPolicy is the aggressive preset for flaky network calls: a wide
// attempt budget, short initial delay and jitter to spread retry storms.
func NetworkPolicy() *Policy {
	return NewPolicy(
		WithMaxAttempts(5),
		WithBaseDelay(100*time.Millisecond),
		WithMaxDelay(10*time.Second),
		WithMultiplier(2.0),
		WithJitter(true),
		WithTimeout(5*time.Second),
	)
}

// APIPolicy is the moderate preset for rate-limited upstream APIs
func APIPolicy() *Policy {
	return NewPolicy(
		WithMaxAttempts(3),
		WithBaseDelay(200*time.Millisecond),
		WithMaxDelay(5*time.Second),
		WithMultiplier(2.0),
		WithJitter(true),
		WithTimeout(10*time.Second),
	)
}

// CriticalPolicy is the single-shot preset: one attempt, no retries, for
// operations that must not be replayed.
func CriticalPolicy() *Policy {
	return NewPolicy(
		WithMaxAttempts(1),
		WithBaseDelay(0),
	)
}

// BackgroundPolicy is the patient preset for background work that can wait
// out long outages.
func BackgroundPolicy() *Policy {
	return NewPolicy(
		WithMaxAttempts(8),
		WithBaseDelay(1*time.Second),
		WithMaxDelay(60*time.Second),
		WithMultiplier(1.5),
		WithJitter(true),
	)
}
