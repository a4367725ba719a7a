package retry

import (
	"context"
	"errors"
	"net"
	"syscall"
)

// retryableError marks an error as transient so the executor knows it
// may be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Retryable wraps err to mark it transient. Backend adapters use this
// for connectivity faults, 5xx-equivalent server errors, and rate-limit
// responses. Wrapping nil returns nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable reports whether err should trigger another attempt.
// Explicitly marked errors, network timeouts, connection faults, and
// per-attempt deadline expiry all qualify; everything else is treated
// as permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var marked *retryableError
	if errors.As(err, &marked) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	return errors.Is(err, context.DeadlineExceeded)
}
