// Package queue provides a bounded retry queue: many retryable operations
// submitted concurrently, admitted in capacity-limited batches and executed
// through the retry executor, with one outcome handle per entry.
package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/seshuthota/backstop/pkg/retry"
)

var (
	// ErrCleared rejects pending entries when the queue is cleared
	ErrCleared = errors.New("retry queue cleared")

	// ErrAborted rejects pending entries when fail-fast stops the drain
	ErrAborted = errors.New("retry queue aborted")
)

// Queue accepts retryable operations and drains them in FIFO batches of at
// most maxConcurrent entries. A single drain goroutine owns the queue; it
// starts lazily on the first Add and exits once the queue is empty, so an
// idle queue costs nothing and stays reusable.
type Queue[T any] struct {
	executor      *retry.Executor
	maxConcurrent int
	failFast      bool

	mu       sync.Mutex
	pending  []*entry[T]
	draining bool
}

type entry[T any] struct {
	id      string
	ctx     context.Context
	op      retry.Operation[T]
	policy  *retry.Policy
	outcome chan retry.Outcome[T]
}

// reject delivers a synthetic failed outcome for an entry that never ran
func (e *entry[T]) reject(err error) {
	e.outcome <- retry.Outcome[T]{LastError: err}
}

// Handle resolves to exactly one outcome once its entry completes or is
// rejected
type Handle[T any] struct {
	id      string
	outcome <-chan retry.Outcome[T]
}

// ID returns the entry identifier
func (h *Handle[T]) ID() string {
	return h.id
}

// Outcome returns the channel the single outcome is delivered on
func (h *Handle[T]) Outcome() <-chan retry.Outcome[T] {
	return h.outcome
}

// Wait blocks until the outcome is delivered or the context is done
func (h *Handle[T]) Wait(ctx context.Context) (retry.Outcome[T], error) {
	select {
	case out := <-h.outcome:
		return out, nil
	case <-ctx.Done():
		var zero retry.Outcome[T]
		return zero, ctx.Err()
	}
}

// Option configures the queue
type Option func(*config)

type config struct {
	maxConcurrent int
	failFast      bool
}

// WithMaxConcurrent sets the batch admission limit (minimum 1)
func WithMaxConcurrent(n int) Option {
	return func(c *config) {
		if n >= 1 {
			c.maxConcurrent = n
		}
	}
}

// WithFailFast stops draining and rejects un-started entries once any batch
// member fails after exhausting its retries
func WithFailFast(enabled bool) Option {
	return func(c *config) {
		c.failFast = enabled
	}
}

// New creates a bounded retry queue draining through the given executor
func New[T any](executor *retry.Executor, opts ...Option) *Queue[T] {
	cfg := &config{
		maxConcurrent: 5,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	return &Queue[T]{
		executor:      executor,
		maxConcurrent: cfg.maxConcurrent,
		failFast:      cfg.failFast,
	}
}

// Add enqueues an operation under the given policy and returns its handle.
// The entry is stamped with a generated ID.
func (q *Queue[T]) Add(ctx context.Context, op retry.Operation[T], policy *retry.Policy) *Handle[T] {
	return q.AddWithID(ctx, uuid.NewString(), op, policy)
}

// AddWithID enqueues an operation with a caller-chosen ID. Re-entrant adds
// while a drain is running join the existing drain; only one drain goroutine
// is ever active.
func (q *Queue[T]) AddWithID(ctx context.Context, id string, op retry.Operation[T], policy *retry.Policy) *Handle[T] {
	e := &entry[T]{
		id:      id,
		ctx:     ctx,
		op:      op,
		policy:  policy,
		outcome: make(chan retry.Outcome[T], 1),
	}

	q.mu.Lock()
	q.pending = append(q.pending, e)
	startDrain := !q.draining
	if startDrain {
		q.draining = true
	}
	q.mu.Unlock()

	if startDrain {
		go q.drain()
	}

	return &Handle[T]{id: e.id, outcome: e.outcome}
}

// Size returns the number of entries waiting to be dispatched. Entries
// already executing in the current batch are not counted.
func (q *Queue[T]) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Clear rejects every not-yet-dispatched entry with ErrCleared and empties
// the queue. Entries already executing in the current batch complete
// normally.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	cleared := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range cleared {
		e.reject(ErrCleared)
	}
}

// drain pulls FIFO batches of up to maxConcurrent entries, executes each
// batch concurrently and awaits it fully before pulling the next. Exits when
// the queue is empty or fail-fast aborts it.
func (q *Queue[T]) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}

		n := q.maxConcurrent
		if n > len(q.pending) {
			n = len(q.pending)
		}
		batch := q.pending[:n:n]
		q.pending = q.pending[n:]
		q.mu.Unlock()

		var wg sync.WaitGroup
		var batchFailed atomic.Bool

		for _, e := range batch {
			wg.Add(1)
			go func(e *entry[T]) {
				defer wg.Done()
				out := retry.Execute(q.executor, e.ctx, e.op, e.policy)
				if !out.Success {
					batchFailed.Store(true)
				}
				e.outcome <- out
			}(e)
		}

		wg.Wait()

		if q.failFast && batchFailed.Load() {
			q.mu.Lock()
			rest := q.pending
			q.pending = nil
			q.draining = false
			q.mu.Unlock()

			for _, e := range rest {
				e.reject(ErrAborted)
			}
			return
		}
	}
}
