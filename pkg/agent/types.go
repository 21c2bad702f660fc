package agent

import (
	"context"

	"github.com/harun/roundtable/internal/config"
	"github.com/harun/roundtable/pkg/provider"
)

// MaxToolRounds bounds the non-streaming tool round-trips of one turn
const MaxToolRounds = 3

// Persona is the immutable runtime view of a configured participant
type Persona struct {
	Key          string `json:"key"`
	Name         string `json:"name"`
	Specialty    string `json:"specialty"`
	Personality  string `json:"-"`
	Color        string `json:"color"`
	Avatar       string `json:"avatar"`
	Role         string `json:"role"`
	SystemPrompt string `json:"-"`
}

// PersonaFromConfig converts a configured persona
func PersonaFromConfig(p config.PersonaConfig) Persona {
	role := p.Role
	if role == "" {
		role = config.RolePanelist
	}
	return Persona{
		Key:          p.Key,
		Name:         p.Name,
		Specialty:    p.Specialty,
		Personality:  p.Personality,
		Color:        p.Color,
		Avatar:       p.Avatar,
		Role:         role,
		SystemPrompt: p.SystemPrompt,
	}
}

// IsObserver reports whether the persona produces structured data instead of chat
func (p Persona) IsObserver() bool {
	return p.Role == config.RoleCurator || p.Role == config.RoleSentiment
}

// IsMediator reports whether the persona closes each speaking order
func (p Persona) IsMediator() bool {
	return p.Role == config.RoleMediator
}

// RuntimeOptions are the per-session overrides sent by the client.
// Empty fields fall back to the runner defaults.
type RuntimeOptions struct {
	Provider     string `json:"provider,omitempty"`
	Model        string `json:"model,omitempty"`
	APIKey       string `json:"-"`
	SearchAPIKey string `json:"-"`
	MaxTokens    int    `json:"max_tokens,omitempty"`
}

// Defaults are the process-wide fallbacks for RuntimeOptions
type Defaults struct {
	Provider     string
	Model        string
	MaxTokens    int
	SearchAPIKey string

	// APIKeyFor resolves a stored credential for a provider key
	APIKeyFor func(providerKey string) string
}

// DefaultsFromConfig builds runner defaults from the loaded configuration
func DefaultsFromConfig(cfg *config.Config) Defaults {
	return Defaults{
		Provider:     cfg.Models.DefaultProvider,
		Model:        cfg.Models.DefaultModel,
		MaxTokens:    cfg.Models.MaxTokens,
		SearchAPIKey: cfg.BraveKey(),
		APIKeyFor:    cfg.APIKeyFor,
	}
}

// ProviderFactory creates adapters from a catalog key
type ProviderFactory interface {
	New(providerKey, apiKey, model string) (provider.Provider, error)
}

// ToolExecutor dispatches tool calls to external collaborators
type ToolExecutor interface {
	// Definitions returns the tools offered to the model
	Definitions() []provider.ToolDefinition

	// Execute runs one call. ok is false for tool names the executor does not know.
	Execute(ctx context.Context, apiKey string, call provider.ToolCall) (content string, ok bool)
}
