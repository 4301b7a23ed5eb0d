// Package retry implements resilient execution of failing operations with
// exponential backoff, jitter, per-attempt timeouts and success-rate
// adaptation.
//
// Key pieces:
//
// 1. Policy:
//   - Immutable parameter set: attempt budget, base/max delay, multiplier,
//     jitter, per-attempt timeout, retry predicate
//   - Presets: NetworkPolicy, APIPolicy, CriticalPolicy, BackgroundPolicy
//
// 2. Calculator:
//   - Exponential backoff capped at the policy max delay
//   - Symmetric jitter (default ±25%) from an injectable random source
//
// 3. Executor:
//   - Execute / ExecuteAsync drive an operation under a policy and always
//     return an Outcome; failure never surfaces as a bare error
//   - Per-attempt timeouts raced on an injectable clock
//   - Context cancellation observed at every suspension point
//   - Optional circuit breaker wrapped around each attempt
//   - Optional Observer for lifecycle events, aggregate Stats
//
// 4. AdaptiveController:
//   - Rolling success-rate window that narrows the attempt budget and
//     stretches delays while a dependency is struggling
//
// Basic usage:
//
//	executor := retry.NewExecutor()
//	policy := retry.NetworkPolicy()
//
//	outcome := retry.Execute(executor, ctx, func(ctx context.Context) (string, error) {
//		return fetchSomething(ctx)
//	}, policy)
//
//	if !outcome.Success {
//		log.Printf("gave up after %d attempts: %v", outcome.Attempts, outcome.LastError)
//	}
//
// With a circuit breaker guarding the dependency:
//
//	cb := breaker.New(breaker.WithFailureThreshold(5))
//	executor := retry.NewExecutor(retry.WithCircuitBreaker(cb))
//
// Adaptive retries:
//
//	ctrl := retry.NewAdaptiveController(executor, retry.APIPolicy())
//	outcome := retry.ExecuteAdaptive(ctrl, ctx, op)
package retry
