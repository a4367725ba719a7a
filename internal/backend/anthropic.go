package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/avasilakis/llm-gateway/internal/retry"
)

const (
	anthropicAPIVersion       = "2023-06-01"
	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicModel     = "claude-3-5-sonnet-20241022"
	defaultAnthropicMaxTokens = 1024
	anthropicHTTPTimeout      = 60 * time.Second
)

// Anthropic adapts the Anthropic Messages API to the Backend interface.
// There is no official Go SDK, so the wire format is spoken directly.
type Anthropic struct {
	name       string
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature *float32           `json:"temperature,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Error      *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func NewAnthropic(s Settings, logger *slog.Logger) (*Anthropic, error) {
	key, err := resolveKey(s)
	if err != nil {
		return nil, err
	}

	baseURL := s.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}

	model := s.Model
	if model == "" {
		model = defaultAnthropicModel
	}

	return &Anthropic{
		name:       s.Name,
		apiKey:     key,
		baseURL:    baseURL,
		model:      model,
		httpClient: &http.Client{Timeout: anthropicHTTPTimeout},
		limiter:    newLimiter(s),
		logger:     logger,
	}, nil
}

func (a *Anthropic) Name() string {
	return a.name
}

func (a *Anthropic) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctx, cancel := callContext(ctx, opts)
	defer cancel()

	if err := a.limiter.Wait(ctx); err != nil {
		return "", err
	}

	model := opts.Model
	if model == "" {
		model = a.model
	}

	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	reqBody := anthropicRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages: []anthropicMessage{
			{Role: "user", Content: prompt},
		},
	}
	if opts.Temperature > 0 {
		reqBody.Temperature = &opts.Temperature
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal anthropic request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build anthropic request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", anthropicAPIVersion)

	a.logger.Debug("calling anthropic", slog.String("backend", a.name), slog.String("model", model))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("anthropic request failed: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", retry.Retryable(fmt.Errorf("failed to read anthropic response: %w", err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", retry.Retryable(fmt.Errorf("anthropic rate limited (429)"))
	}
	if resp.StatusCode >= 500 {
		return "", retry.Retryable(fmt.Errorf("anthropic server error (%d): %s", resp.StatusCode, body))
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("anthropic error (%d): %s", resp.StatusCode, body)
	}

	var parsed anthropicResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse anthropic response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("anthropic api error: %s: %s", parsed.Error.Type, parsed.Error.Message)
	}
	if len(parsed.Content) == 0 {
		return "", fmt.Errorf("anthropic returned empty content")
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return text, nil
}
