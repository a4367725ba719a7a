package circuitbreaker

import (
	"sync"
	"time"
)

// Registry holds one circuit breaker per backend name, created lazily
// with shared threshold and cooldown settings.
type Registry struct {
	mutex     sync.RWMutex
	breakers  map[string]*CircuitBreaker
	threshold int
	cooldown  time.Duration
	onChange  func(backend string, from, to State)
}

func NewRegistry(threshold int, cooldown time.Duration) *Registry {
	return &Registry{
		breakers:  make(map[string]*CircuitBreaker),
		threshold: threshold,
		cooldown:  cooldown,
	}
}

// OnStateChange registers a hook invoked whenever any breaker in the
// registry transitions, tagged with the owning backend's name. Must be
// called before the first GetBreaker.
func (r *Registry) OnStateChange(hook func(backend string, from, to State)) {
	r.mutex.Lock()
	r.onChange = hook
	r.mutex.Unlock()
}

func (r *Registry) GetBreaker(backend string) *CircuitBreaker {
	r.mutex.RLock()
	cb, exists := r.breakers[backend]
	r.mutex.RUnlock()

	if exists {
		return cb
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	// Double-check: another goroutine may have created it
	if cb, exists = r.breakers[backend]; exists {
		return cb
	}

	cb = NewCircuitBreaker(r.threshold, r.cooldown)
	if r.onChange != nil {
		hook := r.onChange
		name := backend
		cb.OnStateChange(func(from, to State) {
			hook(name, from, to)
		})
	}
	r.breakers[backend] = cb
	return cb
}

func (r *Registry) Reset() {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.breakers = make(map[string]*CircuitBreaker)
}

// Stats returns the current state of every known breaker keyed by
// backend name.
func (r *Registry) Stats() map[string]State {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	stats := make(map[string]State, len(r.breakers))
	for name, cb := range r.breakers {
		stats[name] = cb.State()
	}
	return stats
}
