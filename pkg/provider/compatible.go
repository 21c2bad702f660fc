package provider

import (
	"context"
	"encoding/json"
	"iter"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// CompatibleConfig configures an OpenAI-compatible adapter
type CompatibleConfig struct {
	Name       string
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// CompatibleProvider implements Provider for OpenAI-compatible chat completion APIs
type CompatibleProvider struct {
	client openai.Client
	name   string
	model  string
}

// NewCompatibleProvider creates a new OpenAI-compatible provider
func NewCompatibleProvider(cfg CompatibleConfig) *CompatibleProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	name := cfg.Name
	if name == "" {
		name = "openai"
	}

	return &CompatibleProvider{
		client: openai.NewClient(opts...),
		name:   name,
		model:  cfg.Model,
	}
}

// Name returns the provider name
func (p *CompatibleProvider) Name() string {
	return p.name
}

// Create makes a non-streaming chat completion call
func (p *CompatibleProvider) Create(ctx context.Context, request Request) (*Response, error) {
	params, err := p.buildParams(request)
	if err != nil {
		return nil, wrapError(p.name, err)
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, wrapError(p.name, err)
	}

	return normalizeCompatible(response), nil
}

// Stream makes a streaming chat completion call. Usage may arrive on any
// chunk; only the last reported total is emitted.
func (p *CompatibleProvider) Stream(ctx context.Context, request Request) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		params, err := p.buildParams(request)
		if err != nil {
			yield(FinalChunk(Usage{}, wrapError(p.name, err)))
			return
		}
		params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		}

		stream := p.client.Chat.Completions.NewStreaming(ctx, params)
		defer stream.Close()

		usage := Usage{}
		for stream.Next() {
			chunk := stream.Current()
			if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
				usage = Usage{
					InputTokens:  int(chunk.Usage.PromptTokens),
					OutputTokens: int(chunk.Usage.CompletionTokens),
				}
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			if !yield(Chunk{Text: chunk.Choices[0].Delta.Content}) {
				return
			}
		}

		yield(FinalChunk(usage, wrapError(p.name, stream.Err())))
	}
}

func (p *CompatibleProvider) buildParams(request Request) (openai.ChatCompletionNewParams, error) {
	flat, err := ToCompatibleMessages(request.SystemPrompt, request.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}

	maxTokens := request.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := openai.ChatCompletionNewParams{
		Model:     openai.ChatModel(p.model),
		Messages:  toOpenAIMessages(flat),
		MaxTokens: openai.Int(int64(maxTokens)),
	}

	if len(request.Tools) > 0 {
		params.Tools = toOpenAITools(request.Tools)
	}

	return params, nil
}

func toOpenAIMessages(flat []CompatibleMessage) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(flat))

	for _, m := range flat {
		switch m.Role {
		case CompatibleRoleSystem:
			messages = append(messages, openai.SystemMessage(m.Content))
		case CompatibleRoleAssistant:
			if len(m.ToolCalls) == 0 {
				messages = append(messages, openai.AssistantMessage(m.Content))
				continue
			}
			assistant := openai.ChatCompletionAssistantMessageParam{}
			if m.Content != "" {
				assistant.Content.OfString = openai.String(m.Content)
			}
			for _, tc := range m.ToolCalls {
				assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: tc.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: tc.Arguments,
					},
				})
			}
			messages = append(messages, openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant})
		case CompatibleRoleTool:
			messages = append(messages, openai.ChatCompletionMessageParamUnion{
				OfTool: &openai.ChatCompletionToolMessageParam{
					ToolCallID: m.ToolCallID,
					Content: openai.ChatCompletionToolMessageParamContentUnion{
						OfString: openai.String(m.Content),
					},
				},
			})
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	return messages
}

func toOpenAITools(defs []ToolDefinition) []openai.ChatCompletionToolParam {
	tools := make([]openai.ChatCompletionToolParam, 0, len(defs))
	for _, def := range defs {
		tools = append(tools, openai.ChatCompletionToolParam{
			Type: "function",
			Function: openai.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  openai.FunctionParameters(def.InputSchema),
			},
		})
	}
	return tools
}

func normalizeCompatible(response *openai.ChatCompletion) *Response {
	usage := Usage{
		InputTokens:  int(response.Usage.PromptTokens),
		OutputTokens: int(response.Usage.CompletionTokens),
	}

	if len(response.Choices) == 0 {
		return &Response{StopReason: StopEndTurn, Usage: usage}
	}

	msg := response.Choices[0].Message
	toolCalls := []ToolCall{}
	for _, tc := range msg.ToolCalls {
		// Unparseable arguments degrade to an empty input rather than failing the turn
		args := map[string]any{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]any{}
		}
		toolCalls = append(toolCalls, ToolCall{
			ID:    tc.ID,
			Name:  tc.Function.Name,
			Input: args,
		})
	}

	stop := StopEndTurn
	if len(toolCalls) > 0 {
		stop = StopToolUse
	}

	return &Response{
		Text:       msg.Content,
		ToolCalls:  toolCalls,
		StopReason: stop,
		Usage:      usage,
	}
}
