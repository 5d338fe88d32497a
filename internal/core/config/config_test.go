package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestConfigDefaults verifies that default values are applied correctly.
func TestConfigDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.Limits.MaxInputChars != 10000 {
		t.Errorf("Expected MaxInputChars to be 10000, got %d", cfg.Limits.MaxInputChars)
	}
	if cfg.Limits.PendingTTL != 30*time.Minute {
		t.Errorf("Expected PendingTTL to be 30m, got %v", cfg.Limits.PendingTTL)
	}
	if cfg.Limits.IPSubmissions != 5 || cfg.Limits.IPWindow != 6*time.Hour {
		t.Errorf("Expected 5 submissions per 6h, got %d per %v", cfg.Limits.IPSubmissions, cfg.Limits.IPWindow)
	}
	if cfg.Limits.MaxDuplicates != 3 {
		t.Errorf("Expected MaxDuplicates to be 3, got %d", cfg.Limits.MaxDuplicates)
	}
	if cfg.LLM.Provider != "openrouter" {
		t.Errorf("Expected LLM.Provider to be 'openrouter', got %s", cfg.LLM.Provider)
	}
	if cfg.Storage.Domain != "fra1.digitaloceanspaces.com" {
		t.Errorf("Expected default Spaces domain, got %s", cfg.Storage.Domain)
	}
}

func TestTierLimit(t *testing.T) {
	cfg := Default()

	tests := []struct {
		tier int
		want int
	}{
		{0, 35},
		{1, 500},
		{2, 2500},
		{9, 35},
	}

	for _, tt := range tests {
		if got := cfg.TierLimit(tt.tier); got != tt.want {
			t.Errorf("TierLimit(%d) = %d, want %d", tt.tier, got, tt.want)
		}
	}
}

func TestLoadConfigWithEnvExpansion(t *testing.T) {
	t.Setenv("BUGSPOT_TEST_BUCKET", "reports")

	yamlContent := `
server:
  port: 8080
storage:
  bucket: ${BUGSPOT_TEST_BUCKET}
  region: ams3
limits:
  pending_ttl: 5m
  tier_limits:
    0: 10
    1: 100
`
	dir := t.TempDir()
	path := filepath.Join(dir, "bugspot.yaml")
	if err := os.WriteFile(path, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Storage.Bucket != "reports" {
		t.Errorf("Expected bucket from env, got %q", cfg.Storage.Bucket)
	}
	if cfg.Storage.Domain != "ams3.digitaloceanspaces.com" {
		t.Errorf("Expected domain derived from region, got %q", cfg.Storage.Domain)
	}
	if cfg.Limits.PendingTTL != 5*time.Minute {
		t.Errorf("Expected PendingTTL 5m, got %v", cfg.Limits.PendingTTL)
	}
	if cfg.TierLimit(1) != 100 {
		t.Errorf("Expected tier 1 limit 100, got %d", cfg.TierLimit(1))
	}
}

func TestGitHubPrivateKeyUnescapesNewlines(t *testing.T) {
	cfg := &Config{GitHub: GitHubConfig{PrivateKey: `-----BEGIN KEY-----\nabc\n-----END KEY-----`}}

	got := string(cfg.GitHubPrivateKey())
	want := "-----BEGIN KEY-----\nabc\n-----END KEY-----"
	if got != want {
		t.Errorf("GitHubPrivateKey() = %q, want %q", got, want)
	}
}

func TestFindConfigPathExplicitMissing(t *testing.T) {
	if got := FindConfigPath(filepath.Join(t.TempDir(), "nope.yaml")); got != "" {
		t.Errorf("Expected empty path for missing explicit file, got %q", got)
	}
}

func TestParseTrustedProxies(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  trusted_proxies: ["10.0.0.0/8", "192.0.2.1"]
  ip_header: CF-Connecting-IP
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(cfg.Server.TrustedProxies) != 2 || cfg.Server.TrustedProxies[1] != "192.0.2.1" {
		t.Errorf("Unexpected trusted proxies: %v", cfg.Server.TrustedProxies)
	}
	if cfg.Server.IPHeader != "CF-Connecting-IP" {
		t.Errorf("Expected ip_header, got %q", cfg.Server.IPHeader)
	}

	if len(Default().Server.TrustedProxies) != 0 {
		t.Error("Expected no trusted proxies by default")
	}
}
