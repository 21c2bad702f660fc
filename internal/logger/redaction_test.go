package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedact(t *testing.T) {
	r := NewRedactor()

	tests := []struct {
		name   string
		input  string
		secret string
	}{
		{"anthropic key", "key=sk-ant-REDACTED", "AAAAAAAAAAAAAAAAAAAAAAAA"},
		{"openai project key", "using sk-proj-BBBBBBBBBBBBBBBBBBBBBBBBBB", "BBBBBBBBBBBBBBBBBBBBBBBBBB"},
		{"groq key", "gsk_CCCCCCCCCCCCCCCCCCCCCCCC", "CCCCCCCCCCCCCCCCCCCCCCCC"},
		{"gemini key", "AIzaDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD", "DDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDDD"},
		{"brave key", "BSAEEEEEEEEEEEEEEEEEEEEEEEE", "EEEEEEEEEEEEEEEEEEEEEEEE"},
		{"bearer", "Authorization: Bearer abc.def.ghi", "abc.def.ghi"},
		{"subscription header", "X-Subscription-Token: tok123", "tok123"},
		{"json frame", `{"action":"init","api_key":"whatever-value"}`, "whatever-value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Redact(tt.input)
			assert.NotContains(t, out, tt.secret)
			assert.Contains(t, out, redactedMarker)
		})
	}

	assert.Equal(t, "plain text", r.Redact("plain text"))
}

func TestAddPattern(t *testing.T) {
	r := NewRedactor()
	require.NoError(t, r.AddPattern(`session-[0-9]+`))
	assert.Equal(t, redactedMarker, r.Redact("session-42"))
	assert.Error(t, r.AddPattern(`(`))
}

func TestRedactingWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewRedactor().Wrap(&buf)

	line := []byte("token gsk_ZZZZZZZZZZZZZZZZZZZZZZZZZZ end\n")
	n, err := w.Write(line)
	require.NoError(t, err)
	assert.Equal(t, len(line), n)
	assert.Equal(t, "token [REDACTED] end\n", buf.String())
}
