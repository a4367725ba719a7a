package healthcheck

import (
	"context"
	"log/slog"
	"time"

	"github.com/avasilakis/llm-gateway/internal/circuitbreaker"
	"github.com/avasilakis/llm-gateway/internal/metrics"
)

// Watch periodically snapshots every circuit breaker's state and logs
// transitions since the previous tick. A backend whose breaker leaves
// CLOSED is effectively unhealthy; a breaker returning to CLOSED means
// the backend has recovered.
func Watch(
	ctx context.Context,
	breakers *circuitbreaker.Registry,
	aggregator *metrics.Aggregator,
	interval time.Duration,
	logger *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	previous := breakers.Stats()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Breaker watcher stopped")
			return

		case <-ticker.C:
			current := breakers.Stats()

			for name, state := range current {
				before, seen := previous[name]
				if seen && before == state {
					continue
				}
				// A breaker seen for the first time has not
				// transitioned; only report it if it is already
				// degraded.
				if !seen && state == circuitbreaker.StateClosed {
					continue
				}

				aggregator.Increment("breaker.transition",
					map[string]string{"backend": name}, 1)

				if state == circuitbreaker.StateClosed {
					logger.Info("Backend is back up",
						slog.String("backend", name),
						slog.String("state", state.String()))
				} else {
					logger.Warn("Backend is degraded",
						slog.String("backend", name),
						slog.String("state", state.String()))
				}
			}

			previous = current
		}
	}
}
