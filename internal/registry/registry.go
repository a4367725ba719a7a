package registry

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/avasilakis/llm-gateway/internal/backend"
	"github.com/avasilakis/llm-gateway/internal/circuitbreaker"
	"github.com/avasilakis/llm-gateway/internal/metrics"
	"github.com/avasilakis/llm-gateway/internal/retry"
)

// Factory constructs a backend on its first reference, resolving
// credentials. It returns *backend.UnavailableError when the backend
// cannot be built.
type Factory func(name string) (backend.Backend, error)

// Result is a successful generation with the backend that produced it.
type Result struct {
	Text        string
	BackendUsed string
}

// AllFailedError reports that every backend in the fallback chain
// failed, carrying the last underlying error for diagnostics.
type AllFailedError struct {
	Attempted []string
	LastErr   error
}

func (e *AllFailedError) Error() string {
	return fmt.Sprintf("all backends failed (tried %s): %v",
		strings.Join(e.Attempted, ", "), e.LastErr)
}

func (e *AllFailedError) Unwrap() error {
	return e.LastErr
}

// Registry holds named backends with one circuit breaker each and
// executes generation along an ordered fallback chain.
type Registry struct {
	mutex    sync.RWMutex
	backends map[string]backend.Backend

	chain    []string
	factory  Factory
	breakers *circuitbreaker.Registry
	retrier  *retry.Executor
	metrics  *metrics.Aggregator
	logger   *slog.Logger
}

func New(
	chain []string,
	factory Factory,
	breakers *circuitbreaker.Registry,
	retrier *retry.Executor,
	aggregator *metrics.Aggregator,
	logger *slog.Logger,
) *Registry {
	return &Registry{
		backends: make(map[string]backend.Backend),
		chain:    chain,
		factory:  factory,
		breakers: breakers,
		retrier:  retrier,
		metrics:  aggregator,
		logger:   logger,
	}
}

// Register installs a pre-built backend, bypassing the factory.
func (r *Registry) Register(name string, b backend.Backend) {
	r.mutex.Lock()
	r.backends[name] = b
	r.mutex.Unlock()
}

// Chain returns the configured fallback order.
func (r *Registry) Chain() []string {
	out := make([]string, len(r.chain))
	copy(out, r.chain)
	return out
}

// Generate tries each backend in fallback order until one succeeds.
// The preferred backend, when given, is tried first. Every hop runs
// through that backend's circuit breaker wrapping a retry-governed
// call, and every hop outcome is recorded to metrics tagged by backend
// name. Exhausting the whole chain yields an AllFailedError.
func (r *Registry) Generate(ctx context.Context, prompt string, opts backend.Options, preferred string) (Result, error) {
	order := r.order(preferred)
	if len(order) == 0 {
		return Result{}, &AllFailedError{LastErr: fmt.Errorf("no backends configured")}
	}

	attempted := make([]string, 0, len(order))
	var lastErr error

	for _, name := range order {
		attempted = append(attempted, name)

		b, err := r.resolve(name)
		if err != nil {
			lastErr = err
			r.metrics.Increment("backend.unavailable", map[string]string{"backend": name}, 1)
			r.logger.Warn("backend unavailable, falling through",
				slog.String("backend", name),
				slog.String("error", err.Error()))
			continue
		}

		cb := r.breakers.GetBreaker(name)

		var text string
		err = r.metrics.Time("generate", map[string]string{"backend": name}, func() error {
			var genErr error
			text, genErr = cb.Execute(ctx, func(ctx context.Context) (string, error) {
				return r.retrier.Do(ctx, func(ctx context.Context) (string, error) {
					return b.Generate(ctx, prompt, opts)
				})
			}, nil)
			return genErr
		})

		if err == nil {
			r.logger.Debug("generation succeeded",
				slog.String("backend", name),
				slog.Int("hop", len(attempted)))
			return Result{Text: text, BackendUsed: name}, nil
		}

		lastErr = err
		r.logger.Warn("backend failed, falling through",
			slog.String("backend", name),
			slog.String("error", err.Error()))
	}

	return Result{}, &AllFailedError{Attempted: attempted, LastErr: lastErr}
}

// order puts the preferred backend first, then the chain with the
// duplicate removed.
func (r *Registry) order(preferred string) []string {
	if preferred == "" {
		return r.chain
	}

	order := make([]string, 0, len(r.chain)+1)
	order = append(order, preferred)
	for _, name := range r.chain {
		if name != preferred {
			order = append(order, name)
		}
	}
	return order
}

// resolve returns the named backend, building it lazily on first
// reference. Construction failures are not cached so a backend whose
// credentials appear later can still come up.
func (r *Registry) resolve(name string) (backend.Backend, error) {
	r.mutex.RLock()
	b, exists := r.backends[name]
	r.mutex.RUnlock()

	if exists {
		return b, nil
	}

	if r.factory == nil {
		return nil, &backend.UnavailableError{Backend: name, Reason: "not registered"}
	}

	built, err := r.factory(name)
	if err != nil {
		return nil, err
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Another goroutine may have registered it in the meantime.
	if existing, exists := r.backends[name]; exists {
		return existing, nil
	}
	r.backends[name] = built
	return built, nil
}
