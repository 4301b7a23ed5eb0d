package retry

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	// defaultWindowSize bounds the rolling outcome window
	defaultWindowSize = 100

	// defaultRateFloor is the lowest multiplier applied to the base policy.
	// Like the jitter fraction, a tuning constant rather than an invariant.
	defaultRateFloor = 0.5
)

// AdaptiveController wraps an Executor and adapts the base policy to the
// observed success rate: as the rate degrades the attempt budget shrinks and
// delays lengthen, so a struggling dependency sees less retry pressure.
// Safe for concurrent use.
type AdaptiveController struct {
	executor *Executor
	base     *Policy
	floor    float64

	mu       sync.Mutex
	window   []bool
	head     int
	count    int
	capacity int
}

// AdaptiveOption is a configuration option for the adaptive controller
type AdaptiveOption func(*AdaptiveController)

// WithWindowSize sets the rolling window capacity (minimum 1)
func WithWindowSize(size int) AdaptiveOption {
	return func(c *AdaptiveController) {
		if size >= 1 {
			c.capacity = size
		}
	}
}

// WithRateFloor sets the lowest multiplier applied to the base policy;
// values outside (0, 1] keep the default.
func WithRateFloor(floor float64) AdaptiveOption {
	return func(c *AdaptiveController) {
		if floor > 0 && floor <= 1.0 {
			c.floor = floor
		}
	}
}

// NewAdaptiveController creates an adaptive controller over the given
// executor and base policy.
func NewAdaptiveController(executor *Executor, base *Policy, opts ...AdaptiveOption) *AdaptiveController {
	c := &AdaptiveController{
		executor: executor,
		base:     base,
		floor:    defaultRateFloor,
		capacity: defaultWindowSize,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.window = make([]bool, c.capacity)
	return c
}

// SuccessRate returns the fraction of successes in the rolling window,
// 1.0 while the window is empty.
func (c *AdaptiveController) SuccessRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.successRateLocked()
}

func (c *AdaptiveController) successRateLocked() float64 {
	if c.count == 0 {
		return 1.0
	}

	successes := 0
	for i := 0; i < c.count; i++ {
		if c.window[(c.head+i)%c.capacity] {
			successes++
		}
	}
	return float64(successes) / float64(c.count)
}

// adapt derives the policy for the next execution from the current success
// rate: multiplier = max(floor, rate), budget = ceil(base budget * multiplier),
// base delay = ceil(base delay / multiplier).
func (c *AdaptiveController) adapt() *Policy {
	c.mu.Lock()
	rate := c.successRateLocked()
	c.mu.Unlock()

	multiplier := math.Max(c.floor, rate)
	maxAttempts := int(math.Ceil(float64(c.base.MaxAttempts()) * multiplier))
	baseDelay := time.Duration(math.Ceil(float64(c.base.BaseDelay()) / multiplier))

	return c.base.derive(maxAttempts, baseDelay)
}

// record pushes one execution outcome into the window, evicting the oldest
// entry once capacity is exceeded.
func (c *AdaptiveController) record(success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.count < c.capacity {
		c.window[(c.head+c.count)%c.capacity] = success
		c.count++
		return
	}

	c.window[c.head] = success
	c.head = (c.head + 1) % c.capacity
}

// ExecuteAdaptive runs the operation through the controller's executor under
// a policy derived from the base policy and the rolling success rate, then
// feeds the outcome back into the window.
func ExecuteAdaptive[T any](c *AdaptiveController, ctx context.Context, op Operation[T]) Outcome[T] {
	out := Execute(c.executor, ctx, op, c.adapt())
	c.record(out.Success)
	return out
}
