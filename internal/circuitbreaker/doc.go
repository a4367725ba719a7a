// Package circuitbreaker implements the circuit breaker pattern for
// text-generation backend failover.
//
// A circuit breaker prevents cascading failures by temporarily blocking
// calls to failing backends. It has three states:
//
//   - CLOSED: Normal operation, calls pass through
//   - OPEN: Backend failing, calls rejected until the cooldown elapses
//   - HALF-OPEN: Testing recovery with a single probe call
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	cb := registry.GetBreaker("openai")
//	text, err := cb.Execute(ctx, callBackend, nil)
//
// Only one concurrent caller wins the half-open probe; the rest keep
// fast-failing until the probe resolves.
package circuitbreaker
