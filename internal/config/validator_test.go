package config

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	t.Run("provider", func(t *testing.T) {
		assert.NoError(t, v.ValidateProvider("deepseek"))
		err := v.ValidateProvider("cohere")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "anthropic, deepseek, gemini, groq, openai")
	})

	t.Run("api key prefix", func(t *testing.T) {
		assert.NoError(t, v.ValidateAPIKey("sk-ant-123", "anthropic"))
		assert.Error(t, v.ValidateAPIKey("sk-123", "anthropic"))
		assert.NoError(t, v.ValidateAPIKey("gsk_abc", "groq"))
		assert.NoError(t, v.ValidateAPIKey("anything", "deepseek"))
		assert.Error(t, v.ValidateAPIKey("", "openai"))
	})

	t.Run("persona fields", func(t *testing.T) {
		assert.NoError(t, v.ValidatePersonaRole(RoleMediator))
		assert.Error(t, v.ValidatePersonaRole("host"))
		assert.NoError(t, v.ValidateColor("#1ABC9C"))
		assert.Error(t, v.ValidateColor("teal"))
	})

	t.Run("misc", func(t *testing.T) {
		assert.NoError(t, v.ValidateSchedule("0 3 * * *"))
		assert.Error(t, v.ValidateSchedule("every night"))
		assert.NoError(t, v.ValidateSafeSearch("off"))
		assert.Error(t, v.ValidateSafeSearch("max"))
		assert.Error(t, v.ValidateMaxTokens(0))
		assert.Error(t, v.ValidateMaxTokens(100000))
		assert.Error(t, v.ValidateLogLevel("trace"))
	})
}

func TestValidateConfig(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.ValidateConfig(DefaultConfig()))

	cfg := DefaultConfig()
	cfg.AI.Profiles = []AIProfile{{ID: "x", Provider: "anthropic", APIKey: "wrong"}}
	cfg.Logging.Level = "loud"
	cfg.Storage.RetentionSchedule = "nope"
	cfg.Personas[0].Color = "red"
	assert.Len(t, v.ValidateConfig(cfg), 4)
}

func TestWizard(t *testing.T) {
	input := strings.Join([]string{
		"mystery",      // rejected provider
		"groq",         // provider
		"gsk_testkey",  // api key
		"",             // keep model default
		"BSAbrave",     // brave key
		"abc",          // rejected port
		"9100",         // port
		"debug",        // log level
	}, "\n") + "\n"

	var out bytes.Buffer
	cfg, err := NewWizardIO(strings.NewReader(input), &out).Run(nil)
	require.NoError(t, err)

	assert.Equal(t, "groq", cfg.Models.DefaultProvider)
	require.Len(t, cfg.AI.Profiles, 1)
	assert.Equal(t, "gsk_testkey", cfg.AI.Profiles[0].APIKey)
	assert.Equal(t, "BSAbrave", cfg.Search.BraveAPIKey)
	assert.Equal(t, 9100, cfg.Gateway.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Contains(t, out.String(), "unknown provider")
	assert.Contains(t, out.String(), "port must be between")
}

func TestWizardEOF(t *testing.T) {
	_, err := NewWizardIO(strings.NewReader(""), &bytes.Buffer{}).Run(nil)
	assert.Error(t, err)
}
