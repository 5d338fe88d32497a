package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient provides completions using the Anthropic Messages API.
type AnthropicClient struct {
	api       *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient creates an Anthropic client with the given API key and model.
// baseURL is optional and only used to point at a proxy or test server.
func NewAnthropicClient(apiKey, model, baseURL string, maxTokens int) *AnthropicClient {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	// Retries are decided by the triage wiring, not the SDK.
	opts = append(opts, option.WithMaxRetries(0))

	if model == "" {
		model = "claude-haiku-4-5-20251001"
	}
	if maxTokens == 0 {
		maxTokens = 2000
	}

	client := anthropic.NewClient(opts...)
	return &AnthropicClient{
		api:       &client,
		model:     anthropic.Model(model),
		maxTokens: int64(maxTokens),
	}
}

// Complete sends the conversation and returns the first text block.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message) (string, error) {
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return "", fmt.Errorf("no user message to send")
	}

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			continue
		}
		params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return "", &UpstreamError{Provider: ProviderAnthropic, StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		return "", fmt.Errorf("anthropic API call: %w", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}

	return "", &UpstreamError{Provider: ProviderAnthropic, Message: "no text content in API response"}
}
