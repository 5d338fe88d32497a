// Package config handles loading Bugspot configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Server configures the HTTP listener and request-level limits.
	Server ServerConfig `yaml:"server"`

	// Database configures the SQLite data directory.
	Database DatabaseConfig `yaml:"database"`

	// LLM configures the chat-completion provider used for triage.
	LLM LLMConfig `yaml:"llm"`

	// GitHub configures the GitHub App (or fallback token) used to file issues.
	GitHub GitHubConfig `yaml:"github"`

	// Storage configures the S3-compatible bucket holding uploaded media.
	Storage StorageConfig `yaml:"storage"`

	// Captcha configures Turnstile verification.
	Captcha CaptchaConfig `yaml:"captcha"`

	// Email configures the SMTP account used to notify reporters.
	Email EmailConfig `yaml:"email"`

	// Limits holds quota, size and TTL settings for the triage pipeline.
	Limits LimitsConfig `yaml:"limits"`

	// Workflow is a preset workflow name (e.g., "report-triage").
	Workflow string `yaml:"workflow,omitempty"`

	// Steps is a custom list of triage steps (overrides workflow).
	Steps []string `yaml:"steps,omitempty"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	// AIRequests per AIWindow per client IP on /api/report/ai.
	AIRequests int           `yaml:"ai_requests"`
	AIWindow   time.Duration `yaml:"ai_window"`
	// UploadRequests per UploadWindow per client IP on file uploads.
	UploadRequests int           `yaml:"upload_requests"`
	UploadWindow   time.Duration `yaml:"upload_window"`
	// TrustedProxies lists the CIDRs or addresses whose forwarding headers
	// are believed. Empty means the peer address is always the client IP.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty"`
	// IPHeader names a single header set by the trusted proxy, such as
	// CF-Connecting-IP. Empty means X-Forwarded-For then X-Real-IP.
	IPHeader string `yaml:"ip_header,omitempty"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	DataDir string `yaml:"data_dir"`
	// PendingBackend selects "memory" or "sql" for pending duplicate decisions.
	PendingBackend string `yaml:"pending_backend,omitempty"`
}

// LLMConfig holds chat-completion provider settings.
type LLMConfig struct {
	Provider  string        `yaml:"provider,omitempty"`
	APIKey    string        `yaml:"api_key"`
	Model     string        `yaml:"model,omitempty"`
	BaseURL   string        `yaml:"base_url,omitempty"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
	Retries   int           `yaml:"retries"`
}

// GitHubConfig holds GitHub App credentials.
type GitHubConfig struct {
	AppID int64 `yaml:"app_id"`
	// PrivateKey is the PEM-encoded App key. Escaped "\n" sequences are accepted.
	PrivateKey     string        `yaml:"private_key"`
	Token          string        `yaml:"token,omitempty"`
	WebhookSecret  string        `yaml:"webhook_secret"`
	APITimeout     time.Duration `yaml:"api_timeout"`
	DiscordTimeout time.Duration `yaml:"discord_timeout"`
}

// StorageConfig holds object storage settings.
type StorageConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	Domain          string `yaml:"domain"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	KeyPrefix       string `yaml:"key_prefix"`
	// OrphanDelay is how long an upload may stay unreferenced before deletion.
	OrphanDelay time.Duration `yaml:"orphan_delay"`
}

// CaptchaConfig holds Turnstile settings.
type CaptchaConfig struct {
	Secret    string        `yaml:"secret"`
	VerifyURL string        `yaml:"verify_url,omitempty"`
	Bypass    bool          `yaml:"bypass"`
	Timeout   time.Duration `yaml:"timeout"`
}

// EmailConfig holds SMTP settings.
type EmailConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from,omitempty"`
}

// LimitsConfig holds triage limits.
type LimitsConfig struct {
	MaxInputChars      int           `yaml:"max_input_chars"`
	MaxCustomDataChars int           `yaml:"max_custom_data_chars"`
	IPSubmissions      int           `yaml:"ip_submissions"`
	IPWindow           time.Duration `yaml:"ip_window"`
	PendingTTL         time.Duration `yaml:"pending_ttl"`
	MaxDuplicates      int           `yaml:"max_duplicates"`
	OpenIssueScan      int           `yaml:"open_issue_scan"`
	// TierLimits maps subscription tier to monthly report allowance.
	TierLimits map[int]int `yaml:"tier_limits,omitempty"`
}

// DefaultTierLimits mirrors the Base / Pro / Enterprise plans.
var DefaultTierLimits = map[int]int{0: 35, 1: 500, 2: 2500}

// Load reads a config file from the given path and expands environment variables.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config content, expanding environment variables first.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Default returns a config with only defaults and environment overrides applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// FindConfigPath searches for a config file in standard locations.
func FindConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	candidates := []string{
		"bugspot.yaml",
		"bugspot.yml",
		".bugspot.yaml",
		".bugspot.yml",
	}

	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			abs, _ := filepath.Abs(c)
			return abs
		}
	}

	return ""
}

// TierLimit returns the monthly report allowance for a subscription tier.
// Unknown tiers fall back to the lowest configured allowance.
func (c *Config) TierLimit(tier int) int {
	if limit, ok := c.Limits.TierLimits[tier]; ok {
		return limit
	}
	lowest := -1
	for _, limit := range c.Limits.TierLimits {
		if lowest == -1 || limit < lowest {
			lowest = limit
		}
	}
	if lowest == -1 {
		return 0
	}
	return lowest
}

// GitHubPrivateKey returns the App private key with escaped newlines restored.
func (c *Config) GitHubPrivateKey() []byte {
	return []byte(strings.ReplaceAll(c.GitHub.PrivateKey, `\n`, "\n"))
}

// applyDefaults sets default values for unset fields.
func (c *Config) applyDefaults() {
	c.applyEnvOverrides()

	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Server.AIRequests == 0 {
		c.Server.AIRequests = 3
	}
	if c.Server.AIWindow == 0 {
		c.Server.AIWindow = 30 * time.Second
	}
	if c.Server.UploadRequests == 0 {
		c.Server.UploadRequests = 5
	}
	if c.Server.UploadWindow == 0 {
		c.Server.UploadWindow = 2 * time.Minute
	}

	if c.Database.DataDir == "" {
		c.Database.DataDir = "data"
	}
	if c.Database.PendingBackend == "" {
		c.Database.PendingBackend = "memory"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openrouter"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 2000
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}

	if c.GitHub.APITimeout == 0 {
		c.GitHub.APITimeout = 30 * time.Second
	}
	if c.GitHub.DiscordTimeout == 0 {
		c.GitHub.DiscordTimeout = 10 * time.Second
	}

	if c.Storage.Region == "" {
		c.Storage.Region = "fra1"
	}
	if c.Storage.Domain == "" {
		c.Storage.Domain = c.Storage.Region + ".digitaloceanspaces.com"
	}
	if c.Storage.Endpoint == "" {
		c.Storage.Endpoint = "https://" + c.Storage.Domain
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "bugspot"
	}
	if c.Storage.OrphanDelay == 0 {
		c.Storage.OrphanDelay = 10 * time.Minute
	}

	if c.Captcha.Timeout == 0 {
		c.Captcha.Timeout = 10 * time.Second
	}

	if c.Email.Port == 0 {
		c.Email.Port = 465
	}
	if c.Email.From == "" {
		c.Email.From = c.Email.Username
	}

	if c.Limits.MaxInputChars == 0 {
		c.Limits.MaxInputChars = 10000
	}
	if c.Limits.MaxCustomDataChars == 0 {
		c.Limits.MaxCustomDataChars = 2000
	}
	if c.Limits.IPSubmissions == 0 {
		c.Limits.IPSubmissions = 5
	}
	if c.Limits.IPWindow == 0 {
		c.Limits.IPWindow = 6 * time.Hour
	}
	if c.Limits.PendingTTL == 0 {
		c.Limits.PendingTTL = 30 * time.Minute
	}
	if c.Limits.MaxDuplicates == 0 {
		c.Limits.MaxDuplicates = 3
	}
	if c.Limits.OpenIssueScan == 0 {
		c.Limits.OpenIssueScan = 100
	}
	if len(c.Limits.TierLimits) == 0 {
		c.Limits.TierLimits = make(map[int]int, len(DefaultTierLimits))
		for tier, limit := range DefaultTierLimits {
			c.Limits.TierLimits[tier] = limit
		}
	}
}

// applyEnvOverrides fills secrets from the environment when the file leaves them empty.
func (c *Config) applyEnvOverrides() {
	setIfEmpty(&c.LLM.APIKey, "OPENROUTER_API_KEY")
	setIfEmpty(&c.GitHub.Token, "GITHUB_TOKEN")
	setIfEmpty(&c.GitHub.PrivateKey, "GITHUB_APP_PRIVATE_KEY")
	setIfEmpty(&c.GitHub.WebhookSecret, "GITHUB_WEBHOOK_SECRET")
	setIfEmpty(&c.Captcha.Secret, "CAPTCHA_SECRET_KEY")
	setIfEmpty(&c.Storage.Bucket, "SPACES_BUCKET_NAME")
	setIfEmpty(&c.Storage.AccessKeyID, "SPACES_ACCESS_KEY_ID")
	setIfEmpty(&c.Storage.SecretAccessKey, "SPACES_SECRET_ACCESS_KEY")
	setIfEmpty(&c.Email.Host, "EMAIL_HOST")
	setIfEmpty(&c.Email.Username, "EMAIL_USER")
	setIfEmpty(&c.Email.Password, "EMAIL_PASSWORD")
}

func setIfEmpty(dst *string, env string) {
	if *dst != "" {
		return
	}
	if v := strings.TrimSpace(os.Getenv(env)); v != "" {
		*dst = v
	}
}
