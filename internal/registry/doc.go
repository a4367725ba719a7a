// Package registry holds the named text-generation backends and runs
// generation along an ordered fallback chain. Each hop executes through
// the backend's circuit breaker wrapping a retry-governed call, with
// every outcome recorded to metrics; only exhaustion of the whole chain
// surfaces to the caller.
package registry
