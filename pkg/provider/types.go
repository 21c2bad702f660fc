package provider

// Role identifies the author of a conversation turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// BlockType identifies the kind of a content block
type BlockType string

const (
	BlockText       BlockType = "text"
	BlockToolUse    BlockType = "tool_use"
	BlockToolResult BlockType = "tool_result"
)

// StopReason tells the caller why the model stopped generating
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopToolUse StopReason = "tool_use"
)

// Block is one piece of message content in the native block model.
// Text is set for text blocks; ToolUseID, ToolName and Input for tool_use;
// ToolUseID and Content for tool_result.
type Block struct {
	Type      BlockType      `json:"type"`
	Text      string         `json:"text,omitempty"`
	ToolUseID string         `json:"tool_use_id,omitempty"`
	ToolName  string         `json:"name,omitempty"`
	Input     map[string]any `json:"input,omitempty"`
	Content   string         `json:"content,omitempty"`
}

// Message is a conversation turn made of blocks
type Message struct {
	Role   Role    `json:"role"`
	Blocks []Block `json:"content"`
}

// TextMessage creates a single text block message
func TextMessage(role Role, text string) Message {
	return Message{Role: role, Blocks: []Block{{Type: BlockText, Text: text}}}
}

// Text returns the concatenated text blocks of the message
func (m Message) Text() string {
	out := ""
	for _, b := range m.Blocks {
		if b.Type == BlockText {
			out += b.Text
		}
	}
	return out
}

// ToolDefinition describes a tool the model may call
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Request is the backend-agnostic call description
type Request struct {
	SystemPrompt string
	Messages     []Message
	Tools        []ToolDefinition
	MaxTokens    int
}

// ToolCall is a tool invocation requested by the model
type ToolCall struct {
	ID    string         `json:"id"`
	Name  string         `json:"name"`
	Input map[string]any `json:"input"`
}

// Usage accumulates token counts
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Add returns the pairwise sum of two usages
func (u Usage) Add(other Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + other.InputTokens,
		OutputTokens: u.OutputTokens + other.OutputTokens,
	}
}

// Response is the normalized non-streaming result
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason StopReason
	Usage      Usage
}

// Chunk is one element of a stream. A chunk with a non-nil Usage is the
// terminal element; Err may be set on it when the stream failed.
type Chunk struct {
	Text  string
	Usage *Usage
	Err   error
}

// IsFinal reports whether the chunk terminates the stream
func (c Chunk) IsFinal() bool {
	return c.Usage != nil
}

// FinalChunk creates a terminal chunk
func FinalChunk(usage Usage, err error) Chunk {
	return Chunk{Usage: &usage, Err: err}
}

// AssistantTurn rebuilds the assistant message for a tool-use response,
// echoing the model's text and tool_use blocks.
func AssistantTurn(resp *Response) Message {
	blocks := []Block{}
	if resp.Text != "" {
		blocks = append(blocks, Block{Type: BlockText, Text: resp.Text})
	}
	for _, tc := range resp.ToolCalls {
		blocks = append(blocks, Block{
			Type:      BlockToolUse,
			ToolUseID: tc.ID,
			ToolName:  tc.Name,
			Input:     tc.Input,
		})
	}
	return Message{Role: RoleAssistant, Blocks: blocks}
}
