// Package breaker implements the circuit breaker pattern: a three-state
// guard in front of a logical dependency. Construct one breaker per
// dependency and share it by reference across callers; it stops calls while
// the dependency is believed bad and lets trial calls probe for recovery.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/seshuthota/backstop/pkg/types"
)

// ErrCircuitOpen indicates the breaker rejected a call without invoking the
// operation
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	// StateClosed means calls pass through normally
	StateClosed State = iota
	// StateOpen means calls are rejected without invoking the operation
	StateOpen
	// StateHalfOpen means trial calls are probing for recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// OpenError is the rejection returned while the breaker is open. It matches
// ErrCircuitOpen under errors.Is so callers can distinguish "dependency
// unavailable" from the operation's own failures.
type OpenError struct {
	// Failures is the consecutive failure count that tripped the breaker
	Failures int

	// RetryAfter is how long until the next trial call will be allowed
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker is open (%d consecutive failures, retry in %v)", e.Failures, e.RetryAfter)
}

// Is reports whether target is the circuit-open sentinel
func (e *OpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// Breaker is a three-state circuit breaker. State transitions are atomic:
// failureThreshold consecutive failures open the circuit, a recovery timeout
// admits a trial call, and the trial's outcome decides between closed and
// open.
type Breaker struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	lastFailure         time.Time

	failureThreshold int
	recoveryTimeout  time.Duration
	clock            types.Clock
	onStateChange    func(from, to State)

	totalRequests  int64
	totalFailures  int64
	totalSuccesses int64
	totalRejected  int64
}

// Option configures the breaker
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failures that open the circuit
func WithFailureThreshold(threshold int) Option {
	return func(b *Breaker) {
		if threshold >= 1 {
			b.failureThreshold = threshold
		}
	}
}

// WithRecoveryTimeout sets how long the circuit stays open before admitting
// a trial call
func WithRecoveryTimeout(timeout time.Duration) Option {
	return func(b *Breaker) {
		if timeout > 0 {
			b.recoveryTimeout = timeout
		}
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) Option {
	return func(b *Breaker) {
		b.clock = clock
	}
}

// WithOnStateChange sets a callback fired on every state transition. The
// callback runs outside the breaker lock and must not call back into the
// breaker synchronously from another goroutine it blocks on.
func WithOnStateChange(fn func(from, to State)) Option {
	return func(b *Breaker) {
		b.onStateChange = fn
	}
}

// New creates a circuit breaker
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:            StateClosed,
		failureThreshold: 5,
		recoveryTimeout:  30 * time.Second,
		clock:            types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Execute runs the operation through the breaker. While open and inside the
// recovery window it returns an *OpenError without invoking the operation;
// otherwise the operation's own result is passed through and its outcome
// recorded. The call that finds the recovery window elapsed transitions the
// breaker to half-open and is itself allowed through as the trial.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	err := fn(ctx)
	b.record(err)
	return err
}

// State returns the current state
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutiveFailures
}

// Reset forces the breaker closed with counters cleared
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.consecutiveFailures = 0
	b.lastFailure = time.Time{}
	b.mu.Unlock()

	b.notify(from, StateClosed)
}

func (b *Breaker) allow() error {
	b.mu.Lock()

	b.totalRequests++

	switch b.state {
	case StateClosed, StateHalfOpen:
		b.mu.Unlock()
		return nil

	case StateOpen:
		elapsed := b.clock.Since(b.lastFailure)
		if elapsed >= b.recoveryTimeout {
			b.state = StateHalfOpen
			b.mu.Unlock()
			b.notify(StateOpen, StateHalfOpen)
			return nil
		}

		b.totalRejected++
		err := &OpenError{
			Failures:   b.consecutiveFailures,
			RetryAfter: b.recoveryTimeout - elapsed,
		}
		b.mu.Unlock()
		return err

	default:
		b.mu.Unlock()
		return fmt.Errorf("circuit breaker in unknown state %d", b.state)
	}
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	from := b.state

	if err != nil {
		b.consecutiveFailures++
		b.totalFailures++
		b.lastFailure = b.clock.Now()

		switch b.state {
		case StateClosed:
			if b.consecutiveFailures >= b.failureThreshold {
				b.state = StateOpen
			}
		case StateHalfOpen:
			// failed trial call, back to open
			b.state = StateOpen
		}
	} else {
		b.totalSuccesses++

		switch b.state {
		case StateClosed:
			b.consecutiveFailures = 0
			b.lastFailure = time.Time{}
		case StateHalfOpen:
			b.state = StateClosed
			b.consecutiveFailures = 0
			b.lastFailure = time.Time{}
		}
	}

	to := b.state
	b.mu.Unlock()

	b.notify(from, to)
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onStateChange != nil {
		b.onStateChange(from, to)
	}
}

// Metrics is a point-in-time snapshot of breaker counters
type Metrics struct {
	State               State
	ConsecutiveFailures int
	LastFailure         time.Time
	TotalRequests       int64
	TotalFailures       int64
	TotalSuccesses      int64
	TotalRejected       int64
}

// Metrics returns a snapshot of breaker counters
func (b *Breaker) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return Metrics{
		State:               b.state,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailure:         b.lastFailure,
		TotalRequests:       b.totalRequests,
		TotalFailures:       b.totalFailures,
		TotalSuccesses:      b.totalSuccesses,
		TotalRejected:       b.totalRejected,
	}
}
