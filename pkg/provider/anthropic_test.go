package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSSE(w http.ResponseWriter, events [][2]string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	for _, ev := range events {
		if ev[0] != "" {
			fmt.Fprintf(w, "event: %s\n", ev[0])
		}
		fmt.Fprintf(w, "data: %s\n\n", ev[1])
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

func newAnthropicTestServer(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewAnthropicProvider(AnthropicConfig{
		APIKey:  "sk-ant-test",
		Model:   "claude-test",
		BaseURL: server.URL,
	})
}

func collect(seq func(func(Chunk) bool)) (string, []Chunk) {
	var sb strings.Builder
	finals := []Chunk{}
	for chunk := range seq {
		if chunk.IsFinal() {
			finals = append(finals, chunk)
			continue
		}
		sb.WriteString(chunk.Text)
	}
	return sb.String(), finals
}

func TestAnthropicCreate(t *testing.T) {
	var captured map[string]any
	p := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [
				{"type": "text", "text": "checking"},
				{"type": "tool_use", "id": "tu_1", "name": "web_search", "input": {"query": "go iterators"}}
			],
			"stop_reason": "tool_use", "stop_sequence": null,
			"usage": {"input_tokens": 11, "output_tokens": 7}
		}`)
	})

	resp, err := p.Create(context.Background(), Request{
		SystemPrompt: "you are terse",
		Messages:     []Message{TextMessage(RoleUser, "what is new")},
		Tools: []ToolDefinition{{
			Name:        "web_search",
			Description: "search",
			InputSchema: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []string{"query"},
			},
		}},
	})
	require.NoError(t, err)

	assert.Equal(t, "checking", resp.Text)
	assert.Equal(t, StopToolUse, resp.StopReason)
	assert.Equal(t, Usage{InputTokens: 11, OutputTokens: 7}, resp.Usage)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "tu_1", resp.ToolCalls[0].ID)
	assert.Equal(t, "go iterators", resp.ToolCalls[0].Input["query"])

	assert.Equal(t, "claude-test", captured["model"])
	assert.EqualValues(t, defaultMaxTokens, captured["max_tokens"])
	tools, ok := captured["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 1)
}

func TestAnthropicStream(t *testing.T) {
	t.Run("text then one usage", func(t *testing.T) {
		p := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, [][2]string{
				{"message_start", `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","model":"claude-test","content":[],"stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":12,"output_tokens":1}}}`},
				{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
				{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`},
				{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`},
				{"content_block_stop", `{"type":"content_block_stop","index":0}`},
				{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":9}}`},
				{"message_stop", `{"type":"message_stop"}`},
			})
		})

		text, finals := collect(p.Stream(context.Background(), Request{
			Messages: []Message{TextMessage(RoleUser, "hi")},
		}))

		assert.Equal(t, "Hello world", text)
		require.Len(t, finals, 1)
		assert.NoError(t, finals[0].Err)
		assert.Equal(t, Usage{InputTokens: 12, OutputTokens: 9}, *finals[0].Usage)
	})

	t.Run("backend failure still ends with usage", func(t *testing.T) {
		p := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprint(w, `{"type":"error","error":{"type":"api_error","message":"boom"}}`)
		})

		text, finals := collect(p.Stream(context.Background(), Request{
			Messages: []Message{TextMessage(RoleUser, "hi")},
		}))

		assert.Empty(t, text)
		require.Len(t, finals, 1)
		assert.Equal(t, Usage{}, *finals[0].Usage)

		var pe *ProviderError
		require.True(t, errors.As(finals[0].Err, &pe))
		assert.Equal(t, "anthropic", pe.Provider)
		assert.Equal(t, KindServer, pe.Kind)
		assert.True(t, pe.Retryable())
	})
}

func TestAnthropicCreateAuthError(t *testing.T) {
	calls := 0
	p := newAnthropicTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
	})

	_, err := p.Create(context.Background(), Request{Messages: []Message{TextMessage(RoleUser, "hi")}})
	require.Error(t, err)

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindAuth, pe.Kind)
	assert.Equal(t, http.StatusUnauthorized, pe.StatusCode)
	assert.False(t, pe.Retryable())
	assert.Equal(t, 1, calls, "adapter must not retry")
}

func TestToAnthropicMessagesSkipsEmpty(t *testing.T) {
	out := toAnthropicMessages([]Message{
		{Role: RoleUser, Blocks: []Block{{Type: BlockText, Text: ""}}},
		TextMessage(RoleUser, "kept"),
	})
	assert.Len(t, out, 1)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"q"}, requiredFields(map[string]any{"required": []string{"q"}}))
	assert.Equal(t, []string{"q"}, requiredFields(map[string]any{"required": []any{"q", 3}}))
	assert.Nil(t, requiredFields(map[string]any{}))
}
