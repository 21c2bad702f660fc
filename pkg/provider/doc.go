// Package provider normalizes LLM backends behind a single request/response/stream contract.
//
// Invariants:
// - Every adapter returns a Response with StopReason either StopEndTurn or StopToolUse.
// - Every stream ends with exactly one chunk carrying Usage, even when the backend never reports usage.
// - Backend failures are returned as *ProviderError and are never retried here.
// - History is kept in the native block model; the compatible adapter translates it on every call.
//
// Usage:
//
//	p, _ := provider.NewFactory().New("anthropic", apiKey, "claude-sonnet-4-5-20250929")
//	for chunk := range p.Stream(ctx, provider.Request{Messages: history, MaxTokens: 1024}) {
//		if chunk.Usage != nil {
//			break
//		}
//		fmt.Print(chunk.Text)
//	}
package provider
