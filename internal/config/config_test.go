package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "anthropic", cfg.Models.DefaultProvider)
	assert.Equal(t, 1024, cfg.Models.MaxTokens)
	assert.Equal(t, 5, cfg.Discussion.MaxRounds)
	assert.Equal(t, 5, cfg.Discussion.DrainPollMS)
	assert.Equal(t, "0 3 * * *", cfg.Storage.RetentionSchedule)
	assert.NoError(t, cfg.Validate())

	curator, ok := cfg.Persona("the_curator")
	require.True(t, ok)
	assert.Equal(t, RoleCurator, curator.Role)

	sentiment, ok := cfg.Persona(cfg.Discussion.SentimentKey)
	require.True(t, ok)
	assert.Contains(t, sentiment.SystemPrompt, SentimentDelimiter)

	for _, p := range cfg.Personas {
		assert.NotEmpty(t, p.SystemPrompt, p.Key)
	}

	_, ok = cfg.Persona("nobody")
	assert.False(t, ok)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no personas", func(c *Config) { c.Personas = nil }, "at least one persona"},
		{"duplicate key", func(c *Config) { c.Personas = append(c.Personas, c.Personas[0]) }, "duplicate key"},
		{"missing prompt", func(c *Config) { c.Personas[0].SystemPrompt = "" }, "system_prompt is required"},
		{"bad role", func(c *Config) { c.Personas[0].Role = "judge" }, "invalid role"},
		{"only observers", func(c *Config) {
			observers := []PersonaConfig{}
			for _, p := range c.Personas {
				if p.Role == RoleCurator || p.Role == RoleSentiment {
					observers = append(observers, p)
				}
			}
			c.Personas = observers
		}, "non-observer"},
		{"missing curator", func(c *Config) { c.Discussion.CuratorKey = "ghost" }, "curator persona ghost"},
		{"max rounds", func(c *Config) { c.Discussion.MaxRounds = 0 }, "max_rounds"},
		{"max tokens", func(c *Config) { c.Models.MaxTokens = 0 }, "max_tokens"},
		{"bad profile", func(c *Config) { c.AI.Profiles = []AIProfile{{Provider: "cohere", APIKey: "x"}} }, "invalid provider"},
		{"bad port", func(c *Config) { c.Gateway.Port = 70000 }, "invalid gateway port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("observers may be disabled", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Discussion.CuratorKey = ""
		cfg.Discussion.SentimentKey = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestAPIKeyFor(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "gsk_from_env")
	t.Setenv("BRAVE_API_KEY", "brave-env")

	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{{ID: "main", Provider: "anthropic", APIKey: "sk-ant-stored"}}

	assert.Equal(t, "sk-ant-stored", cfg.APIKeyFor("anthropic"))
	assert.Equal(t, "gsk_from_env", cfg.APIKeyFor("groq"))
	assert.Empty(t, cfg.APIKeyFor("unknown"))

	assert.Equal(t, "brave-env", cfg.BraveKey())
	cfg.Search.BraveAPIKey = "brave-file"
	assert.Equal(t, "brave-file", cfg.BraveKey())
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{{ID: "a", Provider: "anthropic", APIKey: "sk-ant-verysecretvalue1234"}}
	cfg.Search.BraveAPIKey = "qz9x"

	out := cfg.String()
	assert.NotContains(t, out, "verysecretvalue")
	assert.Contains(t, out, "sk-a")
	assert.Contains(t, out, "1234")
	assert.NotContains(t, out, "qz9x")
	assert.Equal(t, "sk-ant-verysecretvalue1234", cfg.AI.Profiles[0].APIKey, "original must be untouched")
	assert.True(t, strings.HasPrefix(strings.TrimSpace(out), "{"))
}
