package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// Provider constants for LLM provider selection.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds LLM client configuration.
type Config struct {
	Provider string // "anthropic" or "openai"
	APIKey   string // Required: API key for the provider
	BaseURL  string // Optional: custom API endpoint
	Model    string // Model name (e.g., "claude-sonnet-4-5-20250929", "gpt-4o-mini")
}

// Client is a plain text-completion client. The generation gateway feeds
// its output to tolerant line-oriented parsers, so no structured-output
// mode is involved.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Model() string
}

// Request is a single-turn completion request.
type Request struct {
	Prompt      string
	MaxTokens   int
	Temperature *float64 // nil = model default
}

// Response carries the completion text plus token usage.
type Response struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
}

// New creates a Client for the configured provider.
// Defaults to Anthropic if no provider is specified.
func New(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	provider := cfg.Provider
	if provider == "" {
		provider = ProviderAnthropic
	}

	switch provider {
	case ProviderAnthropic:
		return newAnthropicClient(cfg)
	case ProviderOpenAI:
		return newOpenAIClient(cfg)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", provider)
	}
}

// Temp returns a pointer to the given temperature value.
func Temp(t float64) *float64 {
	return &t
}

// IsRetryable classifies completion errors. Rate limits and server errors
// are retryable; context cancellation and client errors are not.
func IsRetryable(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		slog.DebugContext(ctx, "llm error not retryable: context cancelled or deadline exceeded")
		return false
	}

	if code, ok := statusCode(err); ok {
		switch {
		case code == 429:
			slog.WarnContext(ctx, "llm rate limited, will retry", "status_code", code)
			return true
		case code >= 500:
			slog.WarnContext(ctx, "llm server error, will retry", "status_code", code)
			return true
		default:
			slog.ErrorContext(ctx, "llm client error, not retryable", "status_code", code)
			return false
		}
	}

	// Network errors (no API response) are generally retryable
	slog.WarnContext(ctx, "llm network error, will retry", "error", err)
	return true
}
