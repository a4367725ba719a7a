package backend

import (
	"context"
	"fmt"
	"log/slog"

	"google.golang.org/genai"

	"github.com/avasilakis/llm-gateway/internal/retry"
)

const defaultGeminiModel = "gemini-2.0-flash"

// Gemini adapts Google's Gemini API to the Backend interface.
type Gemini struct {
	name   string
	client *genai.Client
	model  string
	logger *slog.Logger
}

func NewGemini(ctx context.Context, s Settings, logger *slog.Logger) (*Gemini, error) {
	key, err := resolveKey(s)
	if err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &UnavailableError{Backend: s.Name, Reason: fmt.Sprintf("failed to create gemini client: %v", err)}
	}

	model := s.Model
	if model == "" {
		model = defaultGeminiModel
	}

	return &Gemini{
		name:   s.Name,
		client: client,
		model:  model,
		logger: logger,
	}, nil
}

func (g *Gemini) Name() string {
	return g.name
}

func (g *Gemini) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	model := opts.Model
	if model == "" {
		model = g.model
	}

	cfg := &genai.GenerateContentConfig{}
	if opts.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.Temperature > 0 {
		cfg.Temperature = genai.Ptr(opts.Temperature)
	}

	g.logger.Debug("calling gemini", slog.String("backend", g.name), slog.String("model", model))

	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), cfg)
	if err != nil {
		// API errors here are dominated by quota and availability
		// issues; treat them as transient like the provider docs
		// recommend.
		return "", retry.Retryable(fmt.Errorf("gemini request failed: %w", err))
	}

	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini returned no candidates")
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("gemini blocked content by safety filters")
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini returned empty content")
	}
	return text, nil
}
