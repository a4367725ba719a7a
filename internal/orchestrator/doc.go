// Package orchestrator wires the backend registry, style checker, and
// experiment assigner into the single generation entry point exposed to
// the HTTP layer.
package orchestrator
