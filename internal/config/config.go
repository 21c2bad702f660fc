package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Persona roles
const (
	RolePanelist  = "panelist"
	RoleMediator  = "mediator"
	RoleCurator   = "curator"
	RoleSentiment = "sentiment"
)

// Config represents the main roundtable configuration
type Config struct {
	// Personas available to discussions
	Personas []PersonaConfig `json:"personas" mapstructure:"personas"`

	// Models
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// AI provider credentials
	AI AIConfig `json:"ai" mapstructure:"ai"`

	// Search tool backend
	Search SearchConfig `json:"search" mapstructure:"search"`

	// Discussion engine tuning
	Discussion DiscussionConfig `json:"discussion" mapstructure:"discussion"`

	// Persistence
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Tracing
	Tracing TracingConfig `json:"tracing" mapstructure:"tracing"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`
}

// PersonaConfig describes one discussion participant
type PersonaConfig struct {
	Key          string `json:"key" mapstructure:"key"`
	Name         string `json:"name" mapstructure:"name"`
	Specialty    string `json:"specialty" mapstructure:"specialty"`
	Personality  string `json:"personality" mapstructure:"personality"`
	Color        string `json:"color" mapstructure:"color"`
	Avatar       string `json:"avatar" mapstructure:"avatar"`
	Role         string `json:"role" mapstructure:"role"` // panelist, mediator, curator, sentiment
	SystemPrompt string `json:"system_prompt" mapstructure:"system_prompt"`
}

// ModelsConfig holds process-wide model defaults
type ModelsConfig struct {
	DefaultProvider string `json:"default_provider" mapstructure:"default_provider"`
	DefaultModel    string `json:"default_model" mapstructure:"default_model"`
	MaxTokens       int    `json:"max_tokens" mapstructure:"max_tokens"`
}

// AIConfig holds AI provider credentials
type AIConfig struct {
	Profiles []AIProfile `json:"profiles" mapstructure:"profiles"`
}

// AIProfile is a stored credential for one provider
type AIProfile struct {
	ID       string `json:"id" mapstructure:"id"`
	Provider string `json:"provider" mapstructure:"provider"` // anthropic, openai, deepseek, gemini, groq
	APIKey   string `json:"api_key" mapstructure:"api_key"`
}

// SearchConfig holds search tool settings
type SearchConfig struct {
	BraveAPIKey  string `json:"brave_api_key" mapstructure:"brave_api_key"`
	SafeSearch   string `json:"safesearch" mapstructure:"safesearch"` // off, moderate, strict
	WebResults   int    `json:"web_results" mapstructure:"web_results"`
	ImageResults int    `json:"image_results" mapstructure:"image_results"`
	TimeoutSec   int    `json:"timeout_sec" mapstructure:"timeout_sec"`
}

// DiscussionConfig holds session engine settings
type DiscussionConfig struct {
	DefaultRounds    int    `json:"default_rounds" mapstructure:"default_rounds"`
	MaxRounds        int    `json:"max_rounds" mapstructure:"max_rounds"`
	DrainPollMS      int    `json:"drain_poll_ms" mapstructure:"drain_poll_ms"`
	CuratorKey       string `json:"curator_key" mapstructure:"curator_key"`
	SentimentKey     string `json:"sentiment_key" mapstructure:"sentiment_key"`
	MaxFileChars     int    `json:"max_file_chars" mapstructure:"max_file_chars"`
	InboundQueueSize int    `json:"inbound_queue_size" mapstructure:"inbound_queue_size"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Path              string `json:"path" mapstructure:"path"`
	RetentionDays     int    `json:"retention_days" mapstructure:"retention_days"`
	RetentionSchedule string `json:"retention_schedule" mapstructure:"retention_schedule"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port           int      `json:"port" mapstructure:"port"`
	Host           string   `json:"host" mapstructure:"host"`
	AllowedOrigins []string `json:"allowed_origins" mapstructure:"allowed_origins"`
	FramesPerMin   int      `json:"frames_per_min" mapstructure:"frames_per_min"`
	MaxUploadMB    int      `json:"max_upload_mb" mapstructure:"max_upload_mb"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Personas: DefaultPersonas(),
		Models: ModelsConfig{
			DefaultProvider: "anthropic",
			DefaultModel:    "claude-sonnet-4-5-20250929",
			MaxTokens:       1024,
		},
		AI: AIConfig{
			Profiles: []AIProfile{},
		},
		Search: SearchConfig{
			SafeSearch:   "moderate",
			WebResults:   5,
			ImageResults: 3,
			TimeoutSec:   15,
		},
		Discussion: DiscussionConfig{
			DefaultRounds:    3,
			MaxRounds:        5,
			DrainPollMS:      5,
			CuratorKey:       "the_curator",
			SentimentKey:     "the_sentiment_analyst",
			MaxFileChars:     10000,
			InboundQueueSize: 64,
		},
		Storage: StorageConfig{
			RetentionDays:     30,
			RetentionSchedule: "0 3 * * *",
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   50,
			MaxAge:    14,
			Compress:  true,
			Redaction: true,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			SampleRatio: 1,
		},
		Gateway: GatewayConfig{
			Port:           8000,
			Host:           "127.0.0.1",
			AllowedOrigins: []string{},
			FramesPerMin:   120,
			MaxUploadMB:    20,
		},
	}
}

// String returns a JSON representation of the config with secrets masked
func (c *Config) String() string {
	masked := *c
	masked.AI.Profiles = make([]AIProfile, len(c.AI.Profiles))
	for i, p := range c.AI.Profiles {
		p.APIKey = maskSecret(p.APIKey)
		masked.AI.Profiles[i] = p
	}
	masked.Search.BraveAPIKey = maskSecret(c.Search.BraveAPIKey)

	data, _ := json.MarshalIndent(masked, "", "  ")
	return string(data)
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}

// Persona returns the persona with the given key
func (c *Config) Persona(key string) (PersonaConfig, bool) {
	for _, p := range c.Personas {
		if p.Key == key {
			return p, true
		}
	}
	return PersonaConfig{}, false
}

// APIKeyFor returns the stored credential for a provider, falling back to
// the provider's conventional environment variable.
func (c *Config) APIKeyFor(provider string) string {
	for _, p := range c.AI.Profiles {
		if p.Provider == provider && p.APIKey != "" {
			return p.APIKey
		}
	}
	if env, ok := providerEnvVars[provider]; ok {
		return os.Getenv(env)
	}
	return ""
}

// BraveKey returns the configured search key or BRAVE_API_KEY
func (c *Config) BraveKey() string {
	if c.Search.BraveAPIKey != "" {
		return c.Search.BraveAPIKey
	}
	return os.Getenv("BRAVE_API_KEY")
}

var providerEnvVars = map[string]string{
	"anthropic": "ANTHROPIC_API_KEY",
	"openai":    "OPENAI_API_KEY",
	"deepseek":  "DEEPSEEK_API_KEY",
	"gemini":    "GEMINI_API_KEY",
	"groq":      "GROQ_API_KEY",
}

// Validate checks that the configuration can run discussions
func (c *Config) Validate() error {
	if len(c.Personas) == 0 {
		return fmt.Errorf("at least one persona must be configured")
	}

	seen := map[string]bool{}
	panelists := 0
	for i, p := range c.Personas {
		if p.Key == "" {
			return fmt.Errorf("persona %d: key is required", i)
		}
		if seen[p.Key] {
			return fmt.Errorf("persona %s: duplicate key", p.Key)
		}
		seen[p.Key] = true
		if p.Name == "" {
			return fmt.Errorf("persona %s: name is required", p.Key)
		}
		if p.SystemPrompt == "" {
			return fmt.Errorf("persona %s: system_prompt is required", p.Key)
		}
		switch p.Role {
		case "", RolePanelist, RoleMediator:
			panelists++
		case RoleCurator, RoleSentiment:
		default:
			return fmt.Errorf("persona %s: invalid role %s", p.Key, p.Role)
		}
	}
	if panelists == 0 {
		return fmt.Errorf("at least one non-observer persona must be configured")
	}

	if c.Discussion.CuratorKey != "" && !seen[c.Discussion.CuratorKey] {
		return fmt.Errorf("curator persona %s is not configured", c.Discussion.CuratorKey)
	}
	if c.Discussion.SentimentKey != "" && !seen[c.Discussion.SentimentKey] {
		return fmt.Errorf("sentiment persona %s is not configured", c.Discussion.SentimentKey)
	}
	if c.Discussion.MaxRounds < 1 {
		return fmt.Errorf("discussion.max_rounds must be >= 1")
	}

	if c.Models.DefaultProvider == "" || c.Models.DefaultModel == "" {
		return fmt.Errorf("models.default_provider and models.default_model are required")
	}
	if c.Models.MaxTokens <= 0 {
		return fmt.Errorf("models.max_tokens must be positive")
	}

	for i, profile := range c.AI.Profiles {
		if profile.Provider == "" {
			return fmt.Errorf("AI profile %d: provider is required", i)
		}
		if _, ok := providerEnvVars[profile.Provider]; !ok {
			return fmt.Errorf("AI profile %d: invalid provider %s", i, profile.Provider)
		}
	}

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	return nil
}
