// Package types defines error types
package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimeout indicates a single attempt exceeded its configured timeout
var ErrTimeout = errors.New("operation timeout")

// TimeoutError is the failure synthesized when an attempt loses the race
// against its per-attempt timeout. It matches ErrTimeout under errors.Is.
type TimeoutError struct {
	// Timeout is the configured per-attempt timeout that elapsed
	Timeout time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("operation timed out after %v", e.Timeout)
}

// Is reports whether target is the timeout sentinel
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// NewTimeoutError creates a timeout error for the given timeout
func NewTimeoutError(timeout time.Duration) *TimeoutError {
	return &TimeoutError{Timeout: timeout}
}

// RetryableError wraps an error with an explicit retryable classification
type RetryableError struct {
	// Err is the underlying error
	Err error

	// Retryable indicates whether the error is retryable
	Retryable bool

	// RetryAfter is the suggested retry delay
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *RetryableError) Error() string {
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *RetryableError) Unwrap() error {
	return e.Err
}

// IsRetryable checks if an error carries an explicit retryable classification
func IsRetryable(err error) bool {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}
	return false
}

// GetRetryDelay returns the suggested retry delay attached to an error
func GetRetryDelay(err error) time.Duration {
	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.RetryAfter
	}
	return 0
}
