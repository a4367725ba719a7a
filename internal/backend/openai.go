package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/avasilakis/llm-gateway/internal/retry"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAI adapts the OpenAI chat completion API to the Backend
// interface.
type OpenAI struct {
	name    string
	client  *openai.Client
	model   string
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewOpenAI(s Settings, logger *slog.Logger) (*OpenAI, error) {
	key, err := resolveKey(s)
	if err != nil {
		return nil, err
	}

	cfg := openai.DefaultConfig(key)
	if s.BaseURL != "" {
		cfg.BaseURL = s.BaseURL
	}

	model := s.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	return &OpenAI{
		name:    s.Name,
		client:  openai.NewClientWithConfig(cfg),
		model:   model,
		limiter: newLimiter(s),
		logger:  logger,
	}, nil
}

func (o *OpenAI) Name() string {
	return o.name
}

func (o *OpenAI) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	if err := o.limiter.Wait(ctx); err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = o.model
	}

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.Temperature > 0 {
		req.Temperature = opts.Temperature
	}

	o.logger.Debug("calling openai", slog.String("backend", o.name), slog.String("model", model))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

// classifyOpenAIError marks rate-limit and server-side failures as
// retryable; request errors propagate as permanent.
func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500 {
			return retry.Retryable(fmt.Errorf("openai api error (%d): %w", apiErr.HTTPStatusCode, err))
		}
		return fmt.Errorf("openai api error (%d): %w", apiErr.HTTPStatusCode, err)
	}
	// Transport-level failures are connectivity faults.
	return retry.Retryable(fmt.Errorf("openai request failed: %w", err))
}
