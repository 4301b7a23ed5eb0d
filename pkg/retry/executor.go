// Package retry provides the retry executor implementation
package retry

import (
	"context"
	"sync"
	"time"

	"github.com/seshuthota/backstop/pkg/types"
)

// Operation is the function type driven by the executor
type Operation[T any] func(ctx context.Context) (T, error)

// CircuitBreaker guards a logical dependency across executions. When set on
// an executor it is consulted before every attempt and records every attempt
// outcome, including synthesized timeouts.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// Observer receives retry lifecycle events. Observers are side-effect only
// and must not influence control flow.
type Observer interface {
	OnRetry(ctx context.Context, attempt int, err error, delay time.Duration)
	OnSuccess(ctx context.Context, attempts int, duration time.Duration)
	OnExhausted(ctx context.Context, attempts int, err error)
}

// Executor drives repeated invocation of an operation under a policy. All
// failure is communicated through the returned Outcome; Execute never panics
// and never returns a bare error.
type Executor struct {
	calc     *Calculator
	observer Observer
	breaker  CircuitBreaker
	clock    types.Clock

	mu    sync.RWMutex
	stats Stats
}

// Stats contains aggregate executor statistics
type Stats struct {
	TotalExecutions int64         // completed executions
	TotalAttempts   int64         // attempts across all executions
	TotalSuccesses  int64         // executions that ended in success
	TotalFailures   int64         // executions that ended in failure
	AverageAttempts float64       // attempts per execution
	LastRetryTime   time.Time     // when the last retry was scheduled
	TotalRetryDelay time.Duration // accumulated scheduled backoff
}

// ExecutorOption is a configuration option for the executor
type ExecutorOption func(*Executor)

// WithCalculator sets the backoff calculator
func WithCalculator(calc *Calculator) ExecutorOption {
	return func(e *Executor) {
		e.calc = calc
	}
}

// WithObserver sets the lifecycle observer
func WithObserver(observer Observer) ExecutorOption {
	return func(e *Executor) {
		e.observer = observer
	}
}

// WithCircuitBreaker sets the circuit breaker consulted around each attempt
func WithCircuitBreaker(breaker CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.breaker = breaker
	}
}

// WithClock sets the clock for time operations
func WithClock(clock types.Clock) ExecutorOption {
	return func(e *Executor) {
		e.clock = clock
	}
}

// NewExecutor creates a retry executor
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{
		clock: types.NewRealClock(),
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.calc == nil {
		e.calc = NewCalculator()
	}

	return e
}

// Execute runs the operation under the policy. Attempts are strictly
// sequential; cancellation is observed before each attempt and during each
// inter-attempt delay, and surfaces as a failed Outcome with the context
// error as LastError.
func Execute[T any](e *Executor, ctx context.Context, op Operation[T], p *Policy) Outcome[T] {
	start := e.clock.Now()
	out := Outcome[T]{}

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			out.Attempts = attempt - 1
			if out.Attempts < 1 {
				out.Attempts = 1
			}
			out.LastError = ctx.Err()
			return finish(e, ctx, start, out)
		default:
		}

		attemptStart := e.clock.Now()
		data, err := runAttempt(e, ctx, op, p)
		attemptDuration := e.clock.Since(attemptStart)

		e.countAttempt()

		if err == nil {
			out.Success = true
			out.Data = data
			out.Attempts = attempt
			return finish(e, ctx, start, out)
		}

		out.LastError = err

		if !p.ShouldRetry(err, attempt) {
			out.Attempts = attempt
			out.AttemptLog = append(out.AttemptLog, AttemptRecord{
				Attempt:  attempt,
				Err:      err,
				Duration: attemptDuration,
			})
			return finish(e, ctx, start, out)
		}

		delay := e.calc.Delay(attempt-1, p)
		// an explicit retry-after hint on the error raises the delay
		if hint := types.GetRetryDelay(err); hint > delay {
			delay = hint
		}
		out.AttemptLog = append(out.AttemptLog, AttemptRecord{
			Attempt:  attempt,
			Err:      err,
			Duration: attemptDuration,
			Delay:    delay,
		})

		e.recordRetry(delay)
		if e.observer != nil {
			e.observer.OnRetry(ctx, attempt, err, delay)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				out.Attempts = attempt
				out.LastError = ctx.Err()
				return finish(e, ctx, start, out)
			case <-e.clock.After(delay):
			}
		}
	}
}

// ExecuteAsync runs the operation under the policy in a goroutine and
// delivers the single Outcome on the returned channel.
func ExecuteAsync[T any](e *Executor, ctx context.Context, op Operation[T], p *Policy) <-chan Outcome[T] {
	outcomeChan := make(chan Outcome[T], 1)

	go func() {
		defer close(outcomeChan)
		outcomeChan <- Execute(e, ctx, op, p)
	}()

	return outcomeChan
}

// runAttempt performs one attempt, racing it against the per-attempt timeout
// and routing it through the circuit breaker when one is configured. A timer
// win is an ordinary failure so the breaker and predicate both see it.
func runAttempt[T any](e *Executor, ctx context.Context, op Operation[T], p *Policy) (T, error) {
	if e.breaker == nil {
		return timedAttempt(e, ctx, op, p)
	}

	var data T
	err := e.breaker.Execute(ctx, func(ctx context.Context) error {
		d, err := timedAttempt(e, ctx, op, p)
		if err == nil {
			data = d
		}
		return err
	})
	return data, err
}

// timedAttempt invokes the operation, bounding it by the policy timeout when
// one is set. On timeout the attempt context is canceled so the operation can
// stop early.
func timedAttempt[T any](e *Executor, ctx context.Context, op Operation[T], p *Policy) (T, error) {
	if p.Timeout() <= 0 {
		return op(ctx)
	}

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		data T
		err  error
	}
	resultChan := make(chan result, 1)

	go func() {
		data, err := op(attemptCtx)
		resultChan <- result{data: data, err: err}
	}()

	timer := e.clock.NewTimer(p.Timeout())
	defer timer.Stop()

	var zero T
	select {
	case r := <-resultChan:
		return r.data, r.err
	case <-timer.C():
		cancel()
		return zero, types.NewTimeoutError(p.Timeout())
	case <-ctx.Done():
		cancel()
		return zero, ctx.Err()
	}
}

// finish stamps the outcome, updates statistics and fires terminal observer
// events.
func finish[T any](e *Executor, ctx context.Context, start time.Time, out Outcome[T]) Outcome[T] {
	out.TotalDuration = e.clock.Since(start)

	e.mu.Lock()
	e.stats.TotalExecutions++
	if out.Success {
		e.stats.TotalSuccesses++
	} else {
		e.stats.TotalFailures++
	}
	if e.stats.TotalExecutions > 0 {
		e.stats.AverageAttempts = float64(e.stats.TotalAttempts) / float64(e.stats.TotalExecutions)
	}
	e.mu.Unlock()

	if e.observer != nil {
		if out.Success {
			e.observer.OnSuccess(ctx, out.Attempts, out.TotalDuration)
		} else {
			e.observer.OnExhausted(ctx, out.Attempts, out.LastError)
		}
	}

	return out
}

func (e *Executor) countAttempt() {
	e.mu.Lock()
	e.stats.TotalAttempts++
	e.mu.Unlock()
}

func (e *Executor) recordRetry(delay time.Duration) {
	e.mu.Lock()
	e.stats.LastRetryTime = e.clock.Now()
	e.stats.TotalRetryDelay += delay
	e.mu.Unlock()
}

// GetStats returns a snapshot of executor statistics
func (e *Executor) GetStats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.stats
}

// ResetStats resets statistics
func (e *Executor) ResetStats() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stats = Stats{}
}

// Logger is the minimal logging interface used by the default observer
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// LoggingObserver logs retry lifecycle events through a Logger
type LoggingObserver struct {
	logger Logger
}

// NewLoggingObserver creates a logging observer
func NewLoggingObserver(logger Logger) *LoggingObserver {
	return &LoggingObserver{logger: logger}
}

// OnRetry handles retry scheduling events
func (o *LoggingObserver) OnRetry(ctx context.Context, attempt int, err error, delay time.Duration) {
	if o.logger != nil {
		o.logger.Warnf("attempt %d failed: %v, retrying in %v", attempt, err, delay)
	}
}

// OnSuccess handles terminal success events
func (o *LoggingObserver) OnSuccess(ctx context.Context, attempts int, duration time.Duration) {
	if o.logger != nil {
		o.logger.Infof("succeeded on attempt %d after %v", attempts, duration)
	}
}

// OnExhausted handles terminal failure events
func (o *LoggingObserver) OnExhausted(ctx context.Context, attempts int, err error) {
	if o.logger != nil {
		o.logger.Errorf("gave up after %d attempts: %v", attempts, err)
	}
}
