package retry

import (
	"time"
)

// Outcome is the result of one retry execution. Exactly one Outcome is
// produced per execution; it is never partially filled in.
type Outcome[T any] struct {
	// Success reports whether any attempt succeeded
	Success bool

	// Data is the value returned by the successful attempt
	Data T

	// Attempts is the number of attempts made; zero only for entries a queue
	// rejected before dispatch
	Attempts int

	// TotalDuration is the wall time of the whole execution including delays
	TotalDuration time.Duration

	// LastError is the error from the final attempt, or the cancellation
	// error if the execution was cut short
	LastError error

	// AttemptLog records every failed attempt and the delay scheduled after
	// it, so callers can react to retries without hooking into the loop
	AttemptLog []AttemptRecord
}

// AttemptRecord describes one failed attempt
type AttemptRecord struct {
	// Attempt is the 1-based attempt number
	Attempt int

	// Err is the failure observed on this attempt
	Err error

	// Duration is how long the attempt itself took
	Duration time.Duration

	// Delay is the backoff scheduled after this attempt, zero if the
	// execution stopped here
	Delay time.Duration
}
