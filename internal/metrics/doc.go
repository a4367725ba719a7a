// Package metrics provides in-process latency and counter aggregation
// for generation operations.
//
// Samples are recorded synchronously under a mutex and keyed by
// operation name plus a canonicalized tag string, so recording order
// follows the caller's own ordering and tag order never splits keys.
// Summaries report count, min, max, mean, and p50/p95/p99 percentiles
// computed on sorted snapshot copies.
//
// Example usage:
//
//	agg := metrics.NewAggregator()
//	_ = agg.Time("generate", map[string]string{"backend": "openai"}, func() error {
//		return callBackend()
//	})
//	summary := agg.Summary()
package metrics
