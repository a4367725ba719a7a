// Package healthcheck implements periodic health monitoring for
// generation backends. It watches circuit breaker state instead of
// probing HTTP endpoints: a breaker leaving CLOSED marks its backend
// degraded, and transitions are logged and counted as metrics.
package healthcheck
