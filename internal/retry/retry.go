package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Policy bounds a retried operation: at most MaxAttempts invocations,
// with exponential backoff BaseBackoff * Multiplier^(n-1) between
// attempt n and n+1. No backoff follows the final attempt.
type Policy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Multiplier  float64
}

func (p Policy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.MaxAttempts, validation.Required, validation.Min(1)),
		validation.Field(&p.BaseBackoff, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&p.Multiplier, validation.Required, validation.Min(1.0)),
	)
}

// ExhaustedError reports that every attempt permitted by the policy
// failed. It carries the last underlying error for diagnostics.
type ExhaustedError struct {
	Attempts int
	LastErr  error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retry exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}

// Operation is a retried call producing generated text.
type Operation func(ctx context.Context) (string, error)

type Executor struct {
	policy Policy
	logger *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

type Option func(*Executor)

// WithSleep replaces the backoff sleep, used by tests to observe and
// skip real waiting.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Executor) { e.sleep = sleep }
}

func NewExecutor(policy Policy, logger *slog.Logger, opts ...Option) (*Executor, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry policy: %w", err)
	}

	e := &Executor{
		policy: policy,
		logger: logger,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Do invokes op until it succeeds, fails permanently, or the attempt
// budget runs out. Only errors classified retryable trigger another
// attempt; anything else propagates immediately. A context cancelled
// during backoff abandons the remaining attempts at once.
func (e *Executor) Do(ctx context.Context, op Operation) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		text, err := op(ctx)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !IsRetryable(err) {
			e.logger.Debug("permanent failure, not retrying",
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()))
			return "", err
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		backoff := e.backoff(attempt)
		e.logger.Warn("retryable failure, backing off",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", e.policy.MaxAttempts),
			slog.Duration("backoff", backoff),
			slog.String("error", err.Error()))

		if err := e.sleep(ctx, backoff); err != nil {
			return "", err
		}
	}

	return "", &ExhaustedError{Attempts: e.policy.MaxAttempts, LastErr: lastErr}
}

func (e *Executor) backoff(attempt int) time.Duration {
	scale := math.Pow(e.policy.Multiplier, float64(attempt-1))
	return time.Duration(float64(e.policy.BaseBackoff) * scale)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
