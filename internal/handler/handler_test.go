package handler_test

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/avasilakis/llm-gateway/internal/backend"
	"github.com/avasilakis/llm-gateway/internal/circuitbreaker"
	"github.com/avasilakis/llm-gateway/internal/experiment"
	"github.com/avasilakis/llm-gateway/internal/handler"
	"github.com/avasilakis/llm-gateway/internal/metrics"
	"github.com/avasilakis/llm-gateway/internal/orchestrator"
	"github.com/avasilakis/llm-gateway/internal/registry"
	"github.com/avasilakis/llm-gateway/internal/retry"
)

func TestHandler(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Handler Suite")
}

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

var _ = Describe("GatewayHandler", func() {
	var (
		reg      *registry.Registry
		assigner *experiment.Assigner
		breakers *circuitbreaker.Registry
		h        *handler.GatewayHandler
	)

	BeforeEach(func() {
		retrier, err := retry.NewExecutor(
			retry.Policy{MaxAttempts: 1, BaseBackoff: time.Millisecond, Multiplier: 2},
			discard)
		Expect(err).NotTo(HaveOccurred())

		breakers = circuitbreaker.NewRegistry(5, time.Second)
		reg = registry.New([]string{"mock"}, nil, breakers, retrier, metrics.NewAggregator(), discard)
		assigner = experiment.NewAssigner(discard)
		h = handler.NewGatewayHandler(discard, orchestrator.New(reg, assigner, discard), assigner, breakers)
	})

	Describe("Generate", func() {
		It("should return the generation response", func() {
			reg.Register("mock", backend.NewMock("mock").WithResponse("generated"))

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/generate",
				strings.NewReader(`{"prompt":"write a haiku"}`))
			h.Generate(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))

			var resp orchestrator.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Text).To(Equal("generated"))
			Expect(resp.BackendUsed).To(Equal("mock"))
		})

		It("should reject a missing prompt", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{}`))
			h.Generate(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject malformed JSON", func() {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{not json`))
			h.Generate(rec, req)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should map chain exhaustion to 503", func() {
			reg.Register("mock", backend.NewMock("mock").WithError(errors.New("down")))

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/generate",
				strings.NewReader(`{"prompt":"hello"}`))
			h.Generate(rec, req)

			Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(rec.Body.String()).To(ContainSubstring("all backends failed"))
		})

		It("should map an unknown experiment to 404", func() {
			reg.Register("mock", backend.NewMock("mock"))

			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/generate",
				strings.NewReader(`{"prompt":"hello","experiment_id":"missing"}`))
			h.Generate(rec, req)

			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("should include a style report when rules are supplied", func() {
			reg.Register("mock", backend.NewMock("mock").
				WithResponse("This revolutionary tool helps."))

			body := `{"prompt":"hello","style_rules":{"must_avoid":["revolutionary"],"reading_level":"Grade 8-10"}}`
			rec := httptest.NewRecorder()
			h.Generate(rec, httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(body)))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var resp orchestrator.Response
			Expect(json.Unmarshal(rec.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Style).NotTo(BeNil())
			Expect(resp.Style.Banned).To(Equal([]string{"revolutionary"}))
		})
	})

	Describe("Experiments", func() {
		It("should create an experiment", func() {
			rec := httptest.NewRecorder()
			body := `{"id":"exp-1","variants":[{"name":"control","weight":0.5},{"name":"b","weight":0.5}]}`
			h.StartExperiment(rec, httptest.NewRequest(http.MethodPost, "/experiments", strings.NewReader(body)))
			Expect(rec.Code).To(Equal(http.StatusCreated))
		})

		It("should reject invalid weights with 400", func() {
			rec := httptest.NewRecorder()
			body := `{"id":"exp-1","variants":[{"name":"control","weight":0.9}]}`
			h.StartExperiment(rec, httptest.NewRequest(http.MethodPost, "/experiments", strings.NewReader(body)))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("should reject a duplicate id with 409", func() {
			body := `{"id":"exp-1","variants":[{"name":"control","weight":1}]}`
			rec := httptest.NewRecorder()
			h.StartExperiment(rec, httptest.NewRequest(http.MethodPost, "/experiments", strings.NewReader(body)))
			Expect(rec.Code).To(Equal(http.StatusCreated))

			rec = httptest.NewRecorder()
			h.StartExperiment(rec, httptest.NewRequest(http.MethodPost, "/experiments", strings.NewReader(body)))
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("should assign and report results", func() {
			Expect(assigner.Start("exp-1", []experiment.Variant{{Name: "control", Weight: 1.0}})).To(Succeed())

			req := httptest.NewRequest(http.MethodPost, "/experiments/exp-1/assign",
				strings.NewReader(`{"subject_key":"user-1"}`))
			req.SetPathValue("id", "exp-1")
			rec := httptest.NewRecorder()
			h.Assign(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring("control"))

			req = httptest.NewRequest(http.MethodGet, "/experiments/exp-1/results", nil)
			req.SetPathValue("id", "exp-1")
			rec = httptest.NewRecorder()
			h.Results(rec, req)

			Expect(rec.Code).To(Equal(http.StatusOK))
			var results map[string]experiment.VariantResults
			Expect(json.Unmarshal(rec.Body.Bytes(), &results)).To(Succeed())
			Expect(results).To(HaveKey("control"))
		})

		It("should 404 results for an unknown experiment", func() {
			req := httptest.NewRequest(http.MethodGet, "/experiments/missing/results", nil)
			req.SetPathValue("id", "missing")
			rec := httptest.NewRecorder()
			h.Results(rec, req)
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("Breakers", func() {
		It("should report breaker states", func() {
			cb := breakers.GetBreaker("mock")
			for i := 0; i < 5; i++ {
				cb.RecordFailure()
			}

			rec := httptest.NewRecorder()
			h.Breakers(rec, httptest.NewRequest(http.MethodGet, "/breakers", nil))

			Expect(rec.Code).To(Equal(http.StatusOK))
			var states map[string]string
			Expect(json.Unmarshal(rec.Body.Bytes(), &states)).To(Succeed())
			Expect(states).To(HaveKeyWithValue("mock", "OPEN"))
		})
	})

	Describe("Health", func() {
		It("should report ok", func() {
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})
})
