package agent

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/harun/roundtable/internal/observability"
	"github.com/harun/roundtable/internal/tracing"
	"github.com/harun/roundtable/pkg/provider"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

const tracerName = "roundtable.agent"

// Runner executes persona turns
type Runner struct {
	factory  ProviderFactory
	tools    ToolExecutor
	defaults Defaults
	logger   zerolog.Logger
}

// Config holds runner configuration
type Config struct {
	Factory  ProviderFactory
	Tools    ToolExecutor
	Defaults Defaults
	Logger   zerolog.Logger
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	observability.EnsureRegistered()

	if cfg.Factory == nil {
		return nil, fmt.Errorf("provider factory is required")
	}
	if cfg.Defaults.Provider == "" || cfg.Defaults.Model == "" {
		return nil, fmt.Errorf("default provider and model are required")
	}
	if cfg.Defaults.MaxTokens <= 0 {
		cfg.Defaults.MaxTokens = 1024
	}

	return &Runner{
		factory:  cfg.Factory,
		tools:    cfg.Tools,
		defaults: cfg.Defaults,
		logger:   cfg.Logger.With().Str("component", "agent").Logger(),
	}, nil
}

// Resolve fills empty options from the runner defaults. The API key falls
// back to the stored credential of the resolved provider.
func (r *Runner) Resolve(opts RuntimeOptions) RuntimeOptions {
	if opts.Provider == "" {
		opts.Provider = r.defaults.Provider
	}
	if opts.Model == "" {
		if opts.Provider == r.defaults.Provider {
			opts.Model = r.defaults.Model
		} else if entries := provider.DefaultCatalog()[opts.Provider].Models; len(entries) > 0 {
			opts.Model = entries[0].ID
		} else {
			opts.Model = r.defaults.Model
		}
	}
	if opts.APIKey == "" && r.defaults.APIKeyFor != nil {
		opts.APIKey = r.defaults.APIKeyFor(opts.Provider)
	}
	if opts.SearchAPIKey == "" {
		opts.SearchAPIKey = r.defaults.SearchAPIKey
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = r.defaults.MaxTokens
	}
	return opts
}

// toolDefinitions returns the tool set for a turn: empty without a search credential
func (r *Runner) toolDefinitions(opts RuntimeOptions) []provider.ToolDefinition {
	if r.tools == nil || opts.SearchAPIKey == "" {
		return nil
	}
	return r.tools.Definitions()
}

// Stream runs the tool loop for persona then streams the final answer.
// Fragments are yielded as they arrive; the last chunk carries the summed
// usage and, on failure, the provider error.
func (r *Runner) Stream(ctx context.Context, persona Persona, history []provider.Message, opts RuntimeOptions) iter.Seq[provider.Chunk] {
	return func(yield func(provider.Chunk) bool) {
		opts = r.Resolve(opts)
		start := time.Now()

		ctx, span := tracing.StartSpan(ctx, tracerName, "agent.stream",
			attribute.String("persona", persona.Key),
			attribute.String("provider", opts.Provider),
			attribute.String("model", opts.Model),
		)
		logger := tracing.LoggerFromContext(ctx, r.logger).With().
			Str("persona", persona.Key).
			Str("provider", opts.Provider).
			Logger()

		var total provider.Usage
		finish := func(err error) {
			r.recordTurn(opts.Provider, start, total, err)
			tracing.EndSpan(span, err)
			yield(provider.FinalChunk(total, err))
		}

		llm, err := r.factory.New(opts.Provider, opts.APIKey, opts.Model)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to create provider")
			finish(fmt.Errorf("failed to create provider: %w", err))
			return
		}

		working, usage, err := r.runToolLoop(ctx, llm, persona, history, opts)
		total = total.Add(usage)
		if err != nil {
			logger.Warn().Err(err).Msg("Tool loop failed")
			finish(err)
			return
		}

		request := provider.Request{
			SystemPrompt: persona.SystemPrompt,
			Messages:     working,
			Tools:        r.toolDefinitions(opts),
			MaxTokens:    opts.MaxTokens,
		}
		for chunk := range llm.Stream(ctx, request) {
			if chunk.IsFinal() {
				total = total.Add(*chunk.Usage)
				if chunk.Err != nil {
					logger.Warn().Err(chunk.Err).Msg("Stream failed")
				}
				finish(chunk.Err)
				return
			}
			observability.RecordChunk(opts.Provider)
			if !yield(chunk) {
				r.recordTurn(opts.Provider, start, total, context.Canceled)
				tracing.EndSpan(span, nil)
				return
			}
		}
		finish(nil)
	}
}

// runToolLoop makes up to MaxToolRounds non-streaming calls, dispatching
// tool calls between them. It returns the tool-augmented copy of history.
func (r *Runner) runToolLoop(ctx context.Context, llm provider.Provider, persona Persona, history []provider.Message, opts RuntimeOptions) ([]provider.Message, provider.Usage, error) {
	working := make([]provider.Message, len(history), len(history)+2*MaxToolRounds)
	copy(working, history)

	var total provider.Usage
	tools := r.toolDefinitions(opts)
	if len(tools) == 0 {
		return working, total, nil
	}

	for round := 0; round < MaxToolRounds; round++ {
		resp, err := llm.Create(ctx, provider.Request{
			SystemPrompt: persona.SystemPrompt,
			Messages:     working,
			Tools:        tools,
			MaxTokens:    opts.MaxTokens,
		})
		if err != nil {
			return working, total, err
		}
		total = total.Add(resp.Usage)

		if resp.StopReason != provider.StopToolUse || len(resp.ToolCalls) == 0 {
			break
		}

		answered, results := r.dispatch(ctx, opts, resp.ToolCalls)
		if len(answered) == 0 {
			break
		}

		// Echo only answered calls so every tool_use has its tool_result.
		echoed := *resp
		echoed.ToolCalls = answered
		working = append(working,
			provider.AssistantTurn(&echoed),
			provider.Message{Role: provider.RoleUser, Blocks: results},
		)
	}

	return working, total, nil
}

// dispatch executes tool calls in order and returns the calls that were
// answered along with their tool_result blocks
func (r *Runner) dispatch(ctx context.Context, opts RuntimeOptions, calls []provider.ToolCall) ([]provider.ToolCall, []provider.Block) {
	answered := []provider.ToolCall{}
	results := []provider.Block{}
	for _, call := range calls {
		content, ok := r.tools.Execute(ctx, opts.SearchAPIKey, call)
		if !ok {
			r.logger.Debug().Str("tool", call.Name).Msg("Ignoring unknown tool")
			continue
		}
		answered = append(answered, call)
		results = append(results, provider.Block{
			Type:      provider.BlockToolResult,
			ToolUseID: call.ID,
			Content:   content,
		})
	}
	return answered, results
}

// Complete makes one non-streaming call without tools. Observers use it.
func (r *Runner) Complete(ctx context.Context, persona Persona, history []provider.Message, opts RuntimeOptions) (string, provider.Usage, error) {
	opts = r.Resolve(opts)
	start := time.Now()

	ctx, span := tracing.StartSpan(ctx, tracerName, "agent.complete",
		attribute.String("persona", persona.Key),
		attribute.String("provider", opts.Provider),
	)

	llm, err := r.factory.New(opts.Provider, opts.APIKey, opts.Model)
	if err != nil {
		err = fmt.Errorf("failed to create provider: %w", err)
		tracing.EndSpan(span, err)
		return "", provider.Usage{}, err
	}

	resp, err := llm.Create(ctx, provider.Request{
		SystemPrompt: persona.SystemPrompt,
		Messages:     history,
		MaxTokens:    opts.MaxTokens,
	})
	if err != nil {
		r.recordTurn(opts.Provider, start, provider.Usage{}, err)
		tracing.EndSpan(span, err)
		return "", provider.Usage{}, err
	}

	r.recordTurn(opts.Provider, start, resp.Usage, nil)
	tracing.EndSpan(span, nil)
	return resp.Text, resp.Usage, nil
}

func (r *Runner) recordTurn(providerKey string, start time.Time, usage provider.Usage, err error) {
	observability.RecordAgentTurn(providerKey, time.Since(start), err == nil)
	observability.RecordTokens(providerKey, usage.InputTokens, usage.OutputTokens)

	var perr *provider.ProviderError
	if errors.As(err, &perr) {
		observability.RecordProviderError(providerKey, string(perr.Kind))
	}
}
