package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/avasilakis/llm-gateway/internal/backend"
	"github.com/avasilakis/llm-gateway/internal/experiment"
	"github.com/avasilakis/llm-gateway/internal/registry"
	"github.com/avasilakis/llm-gateway/internal/style"
)

// Request is one logical generation call.
type Request struct {
	Prompt       string
	Options      backend.Options
	Preferred    string
	Rules        *style.RuleSet
	ExperimentID string
	SubjectKey   string
}

// Response carries the generated text plus everything a caller needs
// for diagnosis without inspecting internal breaker state.
type Response struct {
	RequestID   string        `json:"request_id"`
	Text        string        `json:"text"`
	BackendUsed string        `json:"backend_used"`
	LatencyMs   int64         `json:"latency_ms"`
	Variant     string        `json:"variant,omitempty"`
	Style       *style.Report `json:"style,omitempty"`
}

// Orchestrator is the top-level entry point for generation. It issues
// exactly one logical registry call per request; all retry and fallback
// behavior lives below in the registry layer.
type Orchestrator struct {
	registry *registry.Registry
	assigner *experiment.Assigner
	logger   *slog.Logger
}

func New(reg *registry.Registry, assigner *experiment.Assigner, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		assigner: assigner,
		logger:   logger,
	}
}

// Generate obtains text via the fallback chain, optionally scores it
// against a style rule set, and records the outcome against an
// experiment variant when one is named.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (Response, error) {
	requestID := uuid.NewString()
	log := o.logger.With(slog.String("request_id", requestID))

	var variant string
	if req.ExperimentID != "" {
		assigned, err := o.assigner.Assign(req.ExperimentID, req.SubjectKey)
		if err != nil {
			return Response{RequestID: requestID}, err
		}
		variant = assigned
	}

	start := time.Now()
	result, err := o.registry.Generate(ctx, req.Prompt, req.Options, req.Preferred)
	latency := time.Since(start)

	if req.ExperimentID != "" {
		if recErr := o.assigner.Record(req.ExperimentID, variant, experiment.Outcome{
			Success: err == nil,
			Latency: latency,
		}); recErr != nil {
			log.Warn("failed to record experiment outcome",
				slog.String("experiment", req.ExperimentID),
				slog.String("error", recErr.Error()))
		}
	}

	if err != nil {
		log.Error("generation failed",
			slog.Int64("latency_ms", latency.Milliseconds()),
			slog.String("error", err.Error()))
		return Response{RequestID: requestID, LatencyMs: latency.Milliseconds(), Variant: variant}, err
	}

	resp := Response{
		RequestID:   requestID,
		Text:        result.Text,
		BackendUsed: result.BackendUsed,
		LatencyMs:   latency.Milliseconds(),
		Variant:     variant,
	}

	if req.Rules != nil {
		report := style.Check(result.Text, *req.Rules)
		resp.Style = &report
	}

	log.Info("generation succeeded",
		slog.String("backend", result.BackendUsed),
		slog.Int64("latency_ms", resp.LatencyMs))
	return resp, nil
}
