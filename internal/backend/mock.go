package backend

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/avasilakis/llm-gateway/internal/retry"
)

// Mock is a scriptable in-process backend used in tests and for local
// development without provider credentials.
type Mock struct {
	name string

	mutex     sync.Mutex
	response  string
	err       error
	failFirst int
	latency   time.Duration
	calls     int
}

func NewMock(name string) *Mock {
	return &Mock{name: name, response: "mock response"}
}

// WithResponse sets the canned text returned on success.
func (m *Mock) WithResponse(text string) *Mock {
	m.mutex.Lock()
	m.response = text
	m.mutex.Unlock()
	return m
}

// WithError makes every call fail with err.
func (m *Mock) WithError(err error) *Mock {
	m.mutex.Lock()
	m.err = err
	m.mutex.Unlock()
	return m
}

// FailFirst makes the first n calls fail with a retryable fault before
// succeeding.
func (m *Mock) FailFirst(n int) *Mock {
	m.mutex.Lock()
	m.failFirst = n
	m.mutex.Unlock()
	return m
}

// WithLatency adds a simulated response delay.
func (m *Mock) WithLatency(d time.Duration) *Mock {
	m.mutex.Lock()
	m.latency = d
	m.mutex.Unlock()
	return m
}

func (m *Mock) Name() string {
	return m.name
}

// Calls returns how many times Generate has been invoked.
func (m *Mock) Calls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.calls
}

func (m *Mock) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	m.mutex.Lock()
	m.calls++
	call := m.calls
	response, scriptedErr, failFirst, latency := m.response, m.err, m.failFirst, m.latency
	m.mutex.Unlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}

	if scriptedErr != nil {
		return "", scriptedErr
	}
	if call <= failFirst {
		return "", retry.Retryable(errors.New("mock backend scripted failure"))
	}
	return response, nil
}
