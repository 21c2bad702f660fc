package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("file output with redaction", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "logs", "roundtable.log")

		l, err := New(Config{Level: "debug", File: logFile, Redaction: true})
		require.NoError(t, err)
		defer l.Close()

		cl := l.Component("gateway")
		cl.Info().Str("api_key_hint", "sk-ant-REDACTED").Msg("connected")

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), `"component":"gateway"`)
		assert.Contains(t, string(data), redactedMarker)
		assert.NotContains(t, string(data), "abcdefghijklmnopqrstuvwxyz")
		assert.NotNil(t, l.Redactor())
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "out.log")
		l, err := New(Config{Level: "chatty", File: logFile})
		require.NoError(t, err)
		defer l.Close()

		zl := l.GetZerolog()
		zl.Debug().Msg("hidden")
		zl.Info().Msg("shown")

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "hidden")
		assert.Contains(t, string(data), "shown")
		assert.Nil(t, l.Redactor())
	})

	t.Run("unwritable directory", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

		_, err := New(Config{File: filepath.Join(blocker, "sub", "x.log")})
		assert.Error(t, err)
	})
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Redaction)
	assert.True(t, cfg.Console)
}
