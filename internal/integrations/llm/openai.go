package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	openRouterBaseURL = "https://openrouter.ai/api/v1"
	openAIBaseURL     = "https://api.openai.com/v1"
)

// ChatClient talks to an OpenAI-compatible /chat/completions endpoint.
// OpenRouter is the default deployment target.
type ChatClient struct {
	httpClient *http.Client
	provider   Provider
	apiKey     string
	baseURL    string
	model      string
	maxTokens  int
}

// ChatOptions configures a ChatClient.
type ChatOptions struct {
	Provider   Provider
	APIKey     string
	BaseURL    string
	Model      string
	MaxTokens  int
	HTTPClient *http.Client
}

type chatRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewChatClient creates a client for an OpenAI-compatible endpoint.
func NewChatClient(opts ChatOptions) *ChatClient {
	if opts.Provider == "" {
		opts.Provider = ProviderOpenRouter
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = openRouterBaseURL
		if opts.Provider == ProviderOpenAI {
			opts.BaseURL = openAIBaseURL
		}
	}
	if opts.Model == "" {
		opts.Model = "google/gemini-2.5-flash"
		if opts.Provider == ProviderOpenAI {
			opts.Model = "gpt-4o-mini"
		}
	}
	if opts.MaxTokens == 0 {
		opts.MaxTokens = 2000
	}

	return &ChatClient{
		httpClient: opts.HTTPClient,
		provider:   opts.Provider,
		apiKey:     opts.APIKey,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		model:      opts.Model,
		maxTokens:  opts.MaxTokens,
	}
}

// Complete sends the messages and returns the first choice's content.
func (c *ChatClient) Complete(ctx context.Context, messages []Message) (string, error) {
	var out chatResponse
	in := chatRequest{Model: c.model, Messages: messages, MaxTokens: c.maxTokens}
	if err := c.callJSON(ctx, "/chat/completions", in, &out); err != nil {
		return "", err
	}

	if len(out.Choices) == 0 {
		return "", &UpstreamError{Provider: c.provider, Message: "empty response from LLM"}
	}
	return out.Choices[0].Message.Content, nil
}

func (c *ChatClient) callJSON(ctx context.Context, endpoint string, in, out interface{}) error {
	if strings.TrimSpace(c.apiKey) == "" {
		return fmt.Errorf("%s API key is required", c.provider)
	}

	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", c.provider, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", c.provider, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &UpstreamError{Provider: c.provider, Message: err.Error()}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read %s response: %w", c.provider, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &UpstreamError{
			Provider:   c.provider,
			StatusCode: resp.StatusCode,
			Message:    extractErrorMessage(respBody),
		}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse %s response: %w", c.provider, err)
	}

	return nil
}

func extractErrorMessage(body []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		msg := strings.TrimSpace(errResp.Error.Message)
		if msg != "" {
			return msg
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
