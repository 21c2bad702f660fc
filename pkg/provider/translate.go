package provider

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Compatible message roles
const (
	CompatibleRoleSystem    = "system"
	CompatibleRoleUser      = "user"
	CompatibleRoleAssistant = "assistant"
	CompatibleRoleTool      = "tool"
)

// CompatibleToolCall is a function call entry on a flat assistant message
type CompatibleToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// CompatibleMessage is the flat chat-completions message shape
type CompatibleMessage struct {
	Role       string               `json:"role"`
	Content    string               `json:"content"`
	ToolCalls  []CompatibleToolCall `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

// ToCompatibleMessages flattens native block history into chat-completions messages.
// Text blocks are joined into content, tool_use blocks become tool_calls with
// JSON-encoded arguments and every tool_result becomes its own tool-role message.
func ToCompatibleMessages(systemPrompt string, messages []Message) ([]CompatibleMessage, error) {
	out := []CompatibleMessage{}
	if systemPrompt != "" {
		out = append(out, CompatibleMessage{Role: CompatibleRoleSystem, Content: systemPrompt})
	}

	for _, msg := range messages {
		texts := []string{}
		toolCalls := []CompatibleToolCall{}
		toolResults := []CompatibleMessage{}

		for _, b := range msg.Blocks {
			switch b.Type {
			case BlockText:
				texts = append(texts, b.Text)
			case BlockToolUse:
				input := b.Input
				if input == nil {
					input = map[string]any{}
				}
				args, err := json.Marshal(input)
				if err != nil {
					return nil, fmt.Errorf("failed to marshal tool arguments for %s: %w", b.ToolUseID, err)
				}
				toolCalls = append(toolCalls, CompatibleToolCall{
					ID:        b.ToolUseID,
					Name:      b.ToolName,
					Arguments: string(args),
				})
			case BlockToolResult:
				toolResults = append(toolResults, CompatibleMessage{
					Role:       CompatibleRoleTool,
					Content:    b.Content,
					ToolCallID: b.ToolUseID,
				})
			}
		}

		content := strings.Join(texts, "\n")

		if msg.Role == RoleAssistant {
			m := CompatibleMessage{Role: CompatibleRoleAssistant, Content: content}
			if len(toolCalls) > 0 {
				m.ToolCalls = toolCalls
			}
			out = append(out, m)
			continue
		}

		out = append(out, toolResults...)
		if len(toolResults) == 0 || content != "" {
			out = append(out, CompatibleMessage{Role: CompatibleRoleUser, Content: content})
		}
	}

	return out, nil
}

// FromCompatibleMessages rebuilds native block history from chat-completions
// messages. Consecutive tool messages fold into a single user turn of
// tool_result blocks. The system prompt is returned separately.
func FromCompatibleMessages(messages []CompatibleMessage) (string, []Message, error) {
	systemPrompt := ""
	out := []Message{}

	for _, m := range messages {
		switch m.Role {
		case CompatibleRoleSystem:
			systemPrompt = m.Content
		case CompatibleRoleTool:
			result := Block{Type: BlockToolResult, ToolUseID: m.ToolCallID, Content: m.Content}
			if n := len(out); n > 0 && isToolResultTurn(out[n-1]) {
				out[n-1].Blocks = append(out[n-1].Blocks, result)
				continue
			}
			out = append(out, Message{Role: RoleUser, Blocks: []Block{result}})
		case CompatibleRoleAssistant:
			blocks := []Block{}
			if m.Content != "" {
				blocks = append(blocks, Block{Type: BlockText, Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input := map[string]any{}
				if tc.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Arguments), &input); err != nil {
						return "", nil, fmt.Errorf("failed to decode arguments for %s: %w", tc.ID, err)
					}
				}
				blocks = append(blocks, Block{
					Type:      BlockToolUse,
					ToolUseID: tc.ID,
					ToolName:  tc.Name,
					Input:     input,
				})
			}
			out = append(out, Message{Role: RoleAssistant, Blocks: blocks})
		default:
			out = append(out, TextMessage(RoleUser, m.Content))
		}
	}

	return systemPrompt, out, nil
}

func isToolResultTurn(m Message) bool {
	if m.Role != RoleUser || len(m.Blocks) == 0 {
		return false
	}
	for _, b := range m.Blocks {
		if b.Type != BlockToolResult {
			return false
		}
	}
	return true
}
