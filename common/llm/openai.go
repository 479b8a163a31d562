package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIClient struct {
	client openai.Client
	model  string
}

func newOpenAIClient(cfg Config) (Client, error) {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &openAIClient{
		client: openai.NewClient(opts...),
		model:  model,
	}, nil
}

func (c *openAIClient) Complete(ctx context.Context, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(req.Prompt),
		},
		MaxTokens: openai.Int(int64(maxTokens)),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}

	start := time.Now()
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai complete: %w", err)
	}

	slog.DebugContext(ctx, "llm completion finished",
		"model", c.model,
		"duration_ms", time.Since(start).Milliseconds(),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in response")
	}

	return &Response{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func (c *openAIClient) Model() string {
	return c.model
}

// statusCode extracts the HTTP status from a provider API error, covering
// both SDK error types.
func statusCode(err error) (int, bool) {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode, true
	}
	var anErr *anthropic.Error
	if errors.As(err, &anErr) {
		return anErr.StatusCode, true
	}
	return 0, false
}
