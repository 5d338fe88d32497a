package llm

import "testing"

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, candidate := range providerEnvKeys {
		t.Setenv(candidate.env, "")
	}
}

func TestResolveProviderConfiguredUsesItsEnvKey(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("ANTHROPIC_API_KEY", "anthropic-env-key")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env-key")

	provider, key, err := ResolveProvider("anthropic", "config-key")
	if err != nil {
		t.Fatalf("ResolveProvider returned error: %v", err)
	}
	if provider != ProviderAnthropic {
		t.Fatalf("expected provider %q, got %q", ProviderAnthropic, provider)
	}
	if key != "anthropic-env-key" {
		t.Fatalf("expected Anthropic env key, got %q", key)
	}
}

func TestResolveProviderConfiguredFallsBackToConfigKey(t *testing.T) {
	clearProviderEnv(t)

	provider, key, err := ResolveProvider("Gemini", "config-key")
	if err != nil {
		t.Fatalf("ResolveProvider returned error: %v", err)
	}
	if provider != ProviderGemini {
		t.Fatalf("expected provider %q, got %q", ProviderGemini, provider)
	}
	if key != "config-key" {
		t.Fatalf("expected config key passthrough, got %q", key)
	}
}

func TestResolveProviderPrefersOpenRouterEnv(t *testing.T) {
	clearProviderEnv(t)
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env-key")
	t.Setenv("OPENAI_API_KEY", "sk-openai-env-key")

	provider, key, err := ResolveProvider("", "")
	if err != nil {
		t.Fatalf("ResolveProvider returned error: %v", err)
	}
	if provider != ProviderOpenRouter {
		t.Fatalf("expected provider %q, got %q", ProviderOpenRouter, provider)
	}
	if key != "sk-or-env-key" {
		t.Fatalf("expected OpenRouter env key, got %q", key)
	}
}

func TestResolveProviderInfersFromConfigKey(t *testing.T) {
	clearProviderEnv(t)

	tests := []struct {
		key  string
		want Provider
	}{
		{"sk-or-v1-abc", ProviderOpenRouter},
		{"sk-ant-abc", ProviderAnthropic},
		{"sk-proj-abc", ProviderOpenAI},
		{"AIzaSyabc", ProviderGemini},
		{"something-else", ProviderOpenRouter},
	}
	for _, tt := range tests {
		provider, key, err := ResolveProvider("", tt.key)
		if err != nil {
			t.Fatalf("ResolveProvider(%q) returned error: %v", tt.key, err)
		}
		if provider != tt.want {
			t.Errorf("ResolveProvider(%q) provider = %q, want %q", tt.key, provider, tt.want)
		}
		if key != tt.key {
			t.Errorf("expected config key passthrough, got %q", key)
		}
	}
}

func TestResolveProviderErrors(t *testing.T) {
	clearProviderEnv(t)

	if _, _, err := ResolveProvider("", ""); err == nil {
		t.Fatal("expected error when no key is available")
	}
	if _, _, err := ResolveProvider("mystery", "key"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
