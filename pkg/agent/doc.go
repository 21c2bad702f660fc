// Package agent runs one persona turn against a provider adapter.
//
// Invariants:
// - A turn makes at most MaxToolRounds non-streaming calls before its single streaming call.
// - Tool results are appended to a local copy of the history; the caller's slice is never modified.
// - The stream always ends with exactly one Usage chunk carrying the sum of every call in the turn.
// - Unknown tool names are skipped without emitting a tool result.
//
// Usage:
//
//	runner, _ := agent.NewRunner(agent.Config{
//		Factory:  provider.NewFactory(),
//		Tools:    search.NewClient(search.Config{}),
//		Defaults: agent.Defaults{Provider: "anthropic", Model: "claude-sonnet-4-5-20250929", MaxTokens: 1024},
//	})
//	for chunk := range runner.Stream(ctx, persona, history, agent.RuntimeOptions{}) {
//		_ = chunk
//	}
package agent
