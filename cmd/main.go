package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/avasilakis/llm-gateway/config"
	"github.com/avasilakis/llm-gateway/internal/backend"
	"github.com/avasilakis/llm-gateway/internal/circuitbreaker"
	"github.com/avasilakis/llm-gateway/internal/experiment"
	"github.com/avasilakis/llm-gateway/internal/handler"
	"github.com/avasilakis/llm-gateway/internal/healthcheck"
	"github.com/avasilakis/llm-gateway/internal/httpserver"
	"github.com/avasilakis/llm-gateway/internal/metrics"
	"github.com/avasilakis/llm-gateway/internal/orchestrator"
	"github.com/avasilakis/llm-gateway/internal/registry"
	"github.com/avasilakis/llm-gateway/internal/retry"
	"github.com/avasilakis/llm-gateway/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(cfg.Logging.Level, cfg.Logging.AddSource, cfg.Server.Environment)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	aggregator := metrics.NewAggregator()

	breakers := circuitbreaker.NewRegistry(cfg.Breaker.FailureThreshold, cfg.BreakerCooldown())
	breakers.OnStateChange(func(name string, from, to circuitbreaker.State) {
		log.Warn("Circuit breaker state changed",
			slog.String("backend", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})

	retrier, err := retry.NewExecutor(cfg.RetryPolicy(), log)
	if err != nil {
		log.Error("Failed to create retry executor", slog.Any("err", err))
		os.Exit(1)
	}

	reg := registry.New(cfg.FallbackChain, backendFactory(ctx, cfg, log),
		breakers, retrier, aggregator, log)

	assigner := experiment.NewAssigner(log)
	orch := orchestrator.New(reg, assigner, log)

	go healthcheck.Watch(ctx, breakers, aggregator, cfg.WatcherInterval(), log)

	gatewayHandler := handler.NewGatewayHandler(log, orch, assigner, breakers)

	srv, err := httpserver.New(cfg.Server.Address,
		setupRouter(gatewayHandler, aggregator), httpserver.Timeouts{})
	if err != nil {
		log.Error("Failed to create server", slog.Any("err", err))
		os.Exit(1)
	}

	log.Info("Gateway listening",
		slog.String("address", cfg.Server.Address),
		slog.Any("chain", cfg.FallbackChain))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", slog.Any("err", err))
		}
	case err := <-srvErrCh:
		if err != nil {
			log.Error("Error starting gateway", slog.Any("err", err))
			os.Exit(1)
		}
	}
}

// backendFactory builds backends lazily on first use so a missing API
// key for one provider does not prevent the rest of the chain from
// serving.
func backendFactory(ctx context.Context, cfg *config.Config, log *slog.Logger) registry.Factory {
	configured := make(map[string]config.BackendConfig, len(cfg.Backends))
	for _, b := range cfg.Backends {
		configured[b.Name] = b
	}

	return func(name string) (backend.Backend, error) {
		bc, ok := configured[name]
		if !ok {
			return nil, &backend.UnavailableError{Backend: name, Reason: "not configured"}
		}
		return buildBackend(ctx, bc, log)
	}
}

func buildBackend(ctx context.Context, bc config.BackendConfig, log *slog.Logger) (backend.Backend, error) {
	settings := backend.Settings{
		Name:      bc.Name,
		Provider:  bc.Provider,
		Model:     bc.Model,
		APIKeyEnv: bc.APIKeyEnv,
		BaseURL:   bc.BaseURL,
		RateLimit: bc.RateLimit,
		Burst:     bc.Burst,
	}

	switch bc.Provider {
	case config.ProviderOpenAI:
		return backend.NewOpenAI(settings, log)
	case config.ProviderAnthropic:
		return backend.NewAnthropic(settings, log)
	case config.ProviderGemini:
		return backend.NewGemini(ctx, settings, log)
	case config.ProviderMock:
		return backend.NewMock(bc.Name), nil
	default:
		return nil, &backend.UnavailableError{
			Backend: bc.Name,
			Reason:  fmt.Sprintf("unknown provider %q", bc.Provider),
		}
	}
}
