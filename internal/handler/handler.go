package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/avasilakis/llm-gateway/internal/backend"
	"github.com/avasilakis/llm-gateway/internal/circuitbreaker"
	"github.com/avasilakis/llm-gateway/internal/experiment"
	"github.com/avasilakis/llm-gateway/internal/orchestrator"
	"github.com/avasilakis/llm-gateway/internal/registry"
	"github.com/avasilakis/llm-gateway/internal/style"
)

// GatewayHandler exposes generation and experiment management over
// HTTP.
type GatewayHandler struct {
	logger       *slog.Logger
	orchestrator *orchestrator.Orchestrator
	assigner     *experiment.Assigner
	breakers     *circuitbreaker.Registry
}

func NewGatewayHandler(
	logger *slog.Logger,
	orch *orchestrator.Orchestrator,
	assigner *experiment.Assigner,
	breakers *circuitbreaker.Registry,
) *GatewayHandler {
	return &GatewayHandler{
		logger:       logger,
		orchestrator: orch,
		assigner:     assigner,
		breakers:     breakers,
	}
}

type generateRequest struct {
	Prompt       string         `json:"prompt"`
	Backend      string         `json:"backend,omitempty"`
	Model        string         `json:"model,omitempty"`
	MaxTokens    int            `json:"max_tokens,omitempty"`
	Temperature  float32        `json:"temperature,omitempty"`
	TimeoutMs    int            `json:"timeout_ms,omitempty"`
	StyleRules   *style.RuleSet `json:"style_rules,omitempty"`
	ExperimentID string         `json:"experiment_id,omitempty"`
	SubjectKey   string         `json:"subject_key,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Generate handles POST /generate.
func (h *GatewayHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	h.logger.Info("received generate request",
		slog.String("backend", req.Backend),
		slog.String("experiment", req.ExperimentID),
		slog.Int("prompt_length", len(req.Prompt)))

	resp, err := h.orchestrator.Generate(r.Context(), orchestrator.Request{
		Prompt: req.Prompt,
		Options: backend.Options{
			Model:       req.Model,
			MaxTokens:   req.MaxTokens,
			Temperature: req.Temperature,
			Timeout:     time.Duration(req.TimeoutMs) * time.Millisecond,
		},
		Preferred:    req.Backend,
		Rules:        req.StyleRules,
		ExperimentID: req.ExperimentID,
		SubjectKey:   req.SubjectKey,
	})
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *GatewayHandler) writeGenerateError(w http.ResponseWriter, err error) {
	var allFailed *registry.AllFailedError
	switch {
	case errors.Is(err, experiment.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &allFailed):
		writeError(w, http.StatusServiceUnavailable, allFailed.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type startExperimentRequest struct {
	ID       string               `json:"id"`
	Variants []experiment.Variant `json:"variants"`
}

// StartExperiment handles POST /experiments.
func (h *GatewayHandler) StartExperiment(w http.ResponseWriter, r *http.Request) {
	var req startExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "experiment id is required")
		return
	}

	if err := h.assigner.Start(req.ID, req.Variants); err != nil {
		if errors.Is(err, experiment.ErrInvalidWeights) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}

	h.logger.Info("experiment created", slog.String("experiment", req.ID))
	writeJSON(w, http.StatusCreated, map[string]string{"id": req.ID})
}

type assignRequest struct {
	SubjectKey string `json:"subject_key,omitempty"`
}

// Assign handles POST /experiments/{id}/assign.
func (h *GatewayHandler) Assign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req assignRequest
	if r.Body != nil {
		// An empty body means a random assignment.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	variant, err := h.assigner.Assign(id, req.SubjectKey)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"variant": variant})
}

// Results handles GET /experiments/{id}/results.
func (h *GatewayHandler) Results(w http.ResponseWriter, r *http.Request) {
	results, err := h.assigner.Results(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, results)
}

// Breakers handles GET /breakers, reporting every breaker's state.
func (h *GatewayHandler) Breakers(w http.ResponseWriter, r *http.Request) {
	stats := h.breakers.Stats()
	out := make(map[string]string, len(stats))
	for name, state := range stats {
		out[name] = state.String()
	}
	writeJSON(w, http.StatusOK, out)
}

// Health handles GET /health.
func (h *GatewayHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
