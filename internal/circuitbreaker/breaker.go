package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Blocking requests
	StateHalfOpen              // Testing with one probe request
)

// ErrCircuitOpen is returned when a call is rejected because the breaker
// is open and no fallback was supplied.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Operation is a guarded call producing generated text.
type Operation func(ctx context.Context) (string, error)

type CircuitBreaker struct {
	mutex            sync.Mutex
	state            State
	failures         int
	failureThreshold int
	cooldown         time.Duration
	lastFailure      time.Time
	openedUntil      time.Time
	probing          bool
	onStateChange    func(from, to State)
}

func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            StateClosed,
		failureThreshold: threshold,
		cooldown:         cooldown,
	}
}

// OnStateChange registers a hook invoked after every state transition.
// The hook runs outside the breaker's lock.
func (cb *CircuitBreaker) OnStateChange(hook func(from, to State)) {
	cb.mutex.Lock()
	cb.onStateChange = hook
	cb.mutex.Unlock()
}

// Execute runs op under the breaker's protection. While the breaker is
// open, op is not invoked: the fallback runs instead if supplied,
// otherwise ErrCircuitOpen is returned. The first call at or after
// openedUntil becomes the half-open probe; concurrent callers at that
// boundary are still rejected until the probe resolves.
func (cb *CircuitBreaker) Execute(ctx context.Context, op Operation, fallback Operation) (string, error) {
	if !cb.Allow() {
		if fallback != nil {
			return fallback(ctx)
		}
		return "", ErrCircuitOpen
	}

	text, err := op(ctx)
	if err != nil {
		cb.RecordFailure()
		return "", err
	}

	cb.RecordSuccess()
	return text, nil
}

// Allow reports whether a call may proceed, transitioning OPEN to
// HALF-OPEN once the cooldown has elapsed. Exactly one caller wins the
// half-open probe slot.
func (cb *CircuitBreaker) Allow() bool {
	cb.mutex.Lock()

	switch cb.state {
	case StateClosed:
		cb.mutex.Unlock()
		return true

	case StateOpen:
		if time.Now().Before(cb.openedUntil) {
			cb.mutex.Unlock()
			return false
		}
		from := cb.state
		cb.state = StateHalfOpen
		cb.probing = true
		hook := cb.onStateChange
		cb.mutex.Unlock()
		cb.notify(hook, from, StateHalfOpen)
		return true

	case StateHalfOpen:
		// Probe already in flight; everyone else waits it out.
		if cb.probing {
			cb.mutex.Unlock()
			return false
		}
		cb.probing = true
		cb.mutex.Unlock()
		return true

	default:
		cb.mutex.Unlock()
		return true
	}
}

// RecordFailure notes a failed call. Reaching the failure threshold in
// CLOSED, or any failure in HALF-OPEN, opens the breaker for a fresh
// cooldown window.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mutex.Lock()

	cb.failures++
	cb.lastFailure = time.Now()

	from := cb.state
	switch {
	case cb.state == StateHalfOpen:
		cb.state = StateOpen
		cb.openedUntil = time.Now().Add(cb.cooldown)
		cb.probing = false
	case cb.state == StateClosed && cb.failures >= cb.failureThreshold:
		cb.state = StateOpen
		cb.openedUntil = time.Now().Add(cb.cooldown)
	}

	to := cb.state
	hook := cb.onStateChange
	cb.mutex.Unlock()

	if from != to {
		cb.notify(hook, from, to)
	}
}

// RecordSuccess notes a successful call, closing the breaker and
// resetting the consecutive-failure counter.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mutex.Lock()

	from := cb.state
	cb.failures = 0
	cb.state = StateClosed
	cb.probing = false

	hook := cb.onStateChange
	cb.mutex.Unlock()

	if from != StateClosed {
		cb.notify(hook, from, StateClosed)
	}
}

func (cb *CircuitBreaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.state
}

// Failures returns the current consecutive-failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.failures
}

func (cb *CircuitBreaker) notify(hook func(from, to State), from, to State) {
	if hook != nil {
		hook(from, to)
	}
}

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}
