package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/avasilakis/llm-gateway/config"
	"github.com/avasilakis/llm-gateway/internal/backend"
	"github.com/avasilakis/llm-gateway/internal/handler"
	"github.com/avasilakis/llm-gateway/internal/metrics"
)

func TestGateway(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Main Suite")
}

var _ = Describe("buildBackend", func() {
	var (
		log *slog.Logger
		ctx context.Context
	)

	BeforeEach(func() {
		log = slog.Default()
		ctx = context.Background()
	})

	Context("mock provider", func() {
		It("should build without credentials", func() {
			b, err := buildBackend(ctx, config.BackendConfig{
				Name:     "stub",
				Provider: config.ProviderMock,
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Name()).To(Equal("stub"))
		})
	})

	Context("openai provider", func() {
		It("should build when the key variable is set", func() {
			GinkgoT().Setenv("TEST_OPENAI_KEY", "sk-test")

			b, err := buildBackend(ctx, config.BackendConfig{
				Name:      "openai-main",
				Provider:  config.ProviderOpenAI,
				Model:     "gpt-4o-mini",
				APIKeyEnv: "TEST_OPENAI_KEY",
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Name()).To(Equal("openai-main"))
		})

		It("should report unavailable when the key variable is missing", func() {
			_, err := buildBackend(ctx, config.BackendConfig{
				Name:      "openai-main",
				Provider:  config.ProviderOpenAI,
				APIKeyEnv: "TEST_OPENAI_KEY_UNSET",
			}, log)

			var unavailable *backend.UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
			Expect(unavailable.Backend).To(Equal("openai-main"))
		})

		It("should report unavailable without an api_key_env", func() {
			_, err := buildBackend(ctx, config.BackendConfig{
				Name:     "openai-main",
				Provider: config.ProviderOpenAI,
			}, log)

			var unavailable *backend.UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
		})
	})

	Context("anthropic provider", func() {
		It("should build when the key variable is set", func() {
			GinkgoT().Setenv("TEST_ANTHROPIC_KEY", "sk-ant-test")

			b, err := buildBackend(ctx, config.BackendConfig{
				Name:      "claude",
				Provider:  config.ProviderAnthropic,
				Model:     "claude-sonnet-4-0",
				APIKeyEnv: "TEST_ANTHROPIC_KEY",
			}, log)
			Expect(err).NotTo(HaveOccurred())
			Expect(b.Name()).To(Equal("claude"))
		})
	})

	Context("unknown provider", func() {
		It("should report unavailable", func() {
			_, err := buildBackend(ctx, config.BackendConfig{
				Name:     "mystery",
				Provider: "telepathy",
			}, log)

			var unavailable *backend.UnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
			Expect(unavailable.Reason).To(ContainSubstring("telepathy"))
		})
	})
})

var _ = Describe("backendFactory", func() {
	It("should resolve configured names only", func() {
		cfg := &config.Config{
			Backends: []config.BackendConfig{
				{Name: "stub", Provider: config.ProviderMock},
			},
		}
		factory := backendFactory(context.Background(), cfg, slog.Default())

		b, err := factory("stub")
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Name()).To(Equal("stub"))

		_, err = factory("ghost")
		var unavailable *backend.UnavailableError
		Expect(errors.As(err, &unavailable)).To(BeTrue())
		Expect(unavailable.Reason).To(ContainSubstring("not configured"))
	})
})

var _ = Describe("setupRouter", func() {
	It("should route health and metrics", func() {
		mux := setupRouter(&handler.GatewayHandler{}, metrics.NewAggregator())

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("counters"))
	})

	It("should reject a GET on generate", func() {
		mux := setupRouter(&handler.GatewayHandler{}, metrics.NewAggregator())

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generate", nil))
		Expect(rec.Code).To(Equal(http.StatusMethodNotAllowed))
	})
})
