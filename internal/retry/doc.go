// Package retry wraps a single backend call with bounded retry and
// exponential backoff. Only failures classified as transient are
// retried; permanent failures propagate on first occurrence.
package retry
