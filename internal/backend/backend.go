package backend

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client-side rate limiting defaults: 50 requests per minute with small
// bursts, matching typical provider entry-tier quotas.
const (
	defaultRateLimit = 50.0 / 60.0
	defaultBurst     = 5
)

// Backend is an interchangeable text-generation capability. Adapters
// translate Generate into the provider's wire format and classify
// provider failures for the retry layer.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
}

// Options carries per-call generation parameters.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float32
	Timeout     time.Duration
}

// Settings describes a configured backend entry: which provider to
// speak to and how to resolve its credentials.
type Settings struct {
	Name      string
	Provider  string
	Model     string
	APIKeyEnv string
	BaseURL   string
	RateLimit float64
	Burst     int
}

// UnavailableError reports a backend whose credentials or configuration
// cannot be resolved. It is not retryable: the fallback chain moves on
// to the next entry.
type UnavailableError struct {
	Backend string
	Reason  string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend %q unavailable: %s", e.Backend, e.Reason)
}

// resolveKey reads the API key from the environment variable named in
// the settings.
func resolveKey(s Settings) (string, error) {
	if s.APIKeyEnv == "" {
		return "", &UnavailableError{Backend: s.Name, Reason: "no api_key_env configured"}
	}
	key := strings.TrimSpace(os.Getenv(s.APIKeyEnv))
	if key == "" {
		return "", &UnavailableError{Backend: s.Name, Reason: fmt.Sprintf("environment variable %s not set", s.APIKeyEnv)}
	}
	return key, nil
}

func newLimiter(s Settings) *rate.Limiter {
	limit := s.RateLimit
	if limit <= 0 {
		limit = defaultRateLimit
	}
	burst := s.Burst
	if burst <= 0 {
		burst = defaultBurst
	}
	return rate.NewLimiter(rate.Limit(limit), burst)
}

// callContext bounds a backend invocation by the caller-supplied
// timeout, if any.
func callContext(ctx context.Context, opts Options) (context.Context, context.CancelFunc) {
	if opts.Timeout > 0 {
		return context.WithTimeout(ctx, opts.Timeout)
	}
	return context.WithCancel(ctx)
}
