package llm

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"
)

// Provider identifies the active AI provider.
type Provider string

const (
	ProviderOpenRouter Provider = "openrouter"
	ProviderOpenAI     Provider = "openai"
	ProviderGemini     Provider = "gemini"
	ProviderAnthropic  Provider = "anthropic"
)

// providerEnvKeys is checked in order; the first non-empty key wins.
var providerEnvKeys = []struct {
	provider Provider
	env      string
}{
	{ProviderOpenRouter, "OPENROUTER_API_KEY"},
	{ProviderGemini, "GEMINI_API_KEY"},
	{ProviderAnthropic, "ANTHROPIC_API_KEY"},
	{ProviderOpenAI, "OPENAI_API_KEY"},
}

// ResolveProvider selects provider/key using the configured provider, environment
// variables and config key.
//
// Selection order:
//  1. If a provider is configured and its env key is set, use it.
//  2. If a provider is configured and a config key is set, use both.
//  3. Otherwise the first provider with an env key set wins
//     (OpenRouter, Gemini, Anthropic, OpenAI).
//  4. Otherwise infer the provider from the config key's shape.
func ResolveProvider(configured, apiKey string) (Provider, string, error) {
	configured = strings.ToLower(strings.TrimSpace(configured))
	configKey := strings.TrimSpace(apiKey)

	if configured != "" {
		p := Provider(configured)
		if !p.valid() {
			return "", "", fmt.Errorf("unknown LLM provider %q", configured)
		}
		if key := envKeyFor(p); key != "" {
			return p, key, nil
		}
		if configKey != "" {
			return p, configKey, nil
		}
	}

	for _, candidate := range providerEnvKeys {
		if key := strings.TrimSpace(os.Getenv(candidate.env)); key != "" {
			return candidate.provider, key, nil
		}
	}

	if configKey != "" {
		return inferProviderFromKey(configKey), configKey, nil
	}

	return "", "", fmt.Errorf("no AI API key found (set OPENROUTER_API_KEY, GEMINI_API_KEY, ANTHROPIC_API_KEY or OPENAI_API_KEY)")
}

func (p Provider) valid() bool {
	switch p {
	case ProviderOpenRouter, ProviderOpenAI, ProviderGemini, ProviderAnthropic:
		return true
	}
	return false
}

func envKeyFor(p Provider) string {
	for _, candidate := range providerEnvKeys {
		if candidate.provider == p {
			return strings.TrimSpace(os.Getenv(candidate.env))
		}
	}
	return ""
}

func inferProviderFromKey(apiKey string) Provider {
	switch {
	case strings.HasPrefix(apiKey, "sk-or-"):
		return ProviderOpenRouter
	case strings.HasPrefix(apiKey, "sk-ant-"):
		return ProviderAnthropic
	case strings.HasPrefix(apiKey, "sk-"):
		return ProviderOpenAI
	case strings.HasPrefix(apiKey, "AIza"):
		return ProviderGemini
	}
	return ProviderOpenRouter
}

// Options configures New.
type Options struct {
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	Timeout   time.Duration
}

// New builds the Client for the resolved provider.
func New(ctx context.Context, opts Options) (Client, error) {
	provider, key, err := ResolveProvider(opts.Provider, opts.APIKey)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	switch provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, key, opts.Model, opts.MaxTokens)
	case ProviderAnthropic:
		return NewAnthropicClient(key, opts.Model, opts.BaseURL, opts.MaxTokens), nil
	default:
		return NewChatClient(ChatOptions{
			Provider:   provider,
			APIKey:     key,
			BaseURL:    opts.BaseURL,
			Model:      opts.Model,
			MaxTokens:  opts.MaxTokens,
			HTTPClient: &http.Client{Timeout: timeout},
		}), nil
	}
}

// WithTimeout bounds every Complete call with a per-request deadline.
func WithTimeout(c Client, timeout time.Duration) Client {
	if timeout <= 0 {
		return c
	}
	return &timeoutClient{next: c, timeout: timeout}
}

type timeoutClient struct {
	next    Client
	timeout time.Duration
}

func (t *timeoutClient) Complete(ctx context.Context, messages []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	return t.next.Complete(ctx, messages)
}
