package provider

import (
	"context"
	"fmt"
	"iter"
	"sort"
)

// Provider is implemented by every backend adapter
type Provider interface {
	// Name returns the catalog key of the backend
	Name() string

	// Create makes a single non-streaming call
	Create(ctx context.Context, request Request) (*Response, error)

	// Stream yields text fragments followed by exactly one Usage chunk
	Stream(ctx context.Context, request Request) iter.Seq[Chunk]
}

// Variant distinguishes the two wire formats
type Variant string

const (
	VariantNative     Variant = "native"
	VariantCompatible Variant = "compatible"
)

// ModelInfo describes a selectable model
type ModelInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// CatalogEntry is the static description of a supported backend
type CatalogEntry struct {
	Key       string      `json:"key"`
	Name      string      `json:"name"`
	Variant   Variant     `json:"variant"`
	Models    []ModelInfo `json:"models"`
	KeyPrefix string      `json:"key_prefix"`
	BaseURL   string      `json:"-"`
}

// DefaultCatalog lists the supported backends
func DefaultCatalog() map[string]CatalogEntry {
	return map[string]CatalogEntry{
		"anthropic": {
			Key:     "anthropic",
			Name:    "Anthropic",
			Variant: VariantNative,
			Models: []ModelInfo{
				{ID: "claude-sonnet-4-5-20250929", Label: "Claude Sonnet 4.5"},
				{ID: "claude-haiku-4-5-20251001", Label: "Claude Haiku 4.5"},
			},
			KeyPrefix: "sk-ant-",
		},
		"openai": {
			Key:     "openai",
			Name:    "OpenAI",
			Variant: VariantCompatible,
			Models: []ModelInfo{
				{ID: "gpt-4o", Label: "GPT-4o"},
				{ID: "gpt-4o-mini", Label: "GPT-4o Mini"},
				{ID: "o3-mini", Label: "o3-mini"},
			},
			KeyPrefix: "sk-",
		},
		"deepseek": {
			Key:     "deepseek",
			Name:    "DeepSeek",
			Variant: VariantCompatible,
			Models: []ModelInfo{
				{ID: "deepseek-chat", Label: "DeepSeek V3"},
				{ID: "deepseek-reasoner", Label: "DeepSeek R1"},
			},
			BaseURL: "https://api.deepseek.com",
		},
		"gemini": {
			Key:     "gemini",
			Name:    "Google Gemini",
			Variant: VariantCompatible,
			Models: []ModelInfo{
				{ID: "gemini-2.0-flash", Label: "Gemini 2.0 Flash"},
				{ID: "gemini-2.5-pro-preview-06-05", Label: "Gemini 2.5 Pro"},
			},
			BaseURL: "https://generativelanguage.googleapis.com/v1beta/openai/",
		},
		"groq": {
			Key:     "groq",
			Name:    "Groq",
			Variant: VariantCompatible,
			Models: []ModelInfo{
				{ID: "llama-3.3-70b-versatile", Label: "Llama 3.3 70B"},
				{ID: "mixtral-8x7b-32768", Label: "Mixtral 8x7B"},
			},
			KeyPrefix: "gsk_",
			BaseURL:   "https://api.groq.com/openai/v1",
		},
	}
}

// Factory creates adapters from catalog keys
type Factory struct {
	catalog map[string]CatalogEntry
}

// NewFactory creates a factory over the default catalog
func NewFactory() *Factory {
	return &Factory{catalog: DefaultCatalog()}
}

// NewFactoryWithCatalog creates a factory over a custom catalog
func NewFactoryWithCatalog(catalog map[string]CatalogEntry) *Factory {
	return &Factory{catalog: catalog}
}

// New creates the adapter for a catalog key
func (f *Factory) New(providerKey, apiKey, model string) (Provider, error) {
	entry, ok := f.catalog[providerKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, providerKey)
	}

	switch entry.Variant {
	case VariantNative:
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  apiKey,
			Model:   model,
			BaseURL: entry.BaseURL,
		}), nil
	default:
		return NewCompatibleProvider(CompatibleConfig{
			Name:    entry.Key,
			APIKey:  apiKey,
			Model:   model,
			BaseURL: entry.BaseURL,
		}), nil
	}
}

// Entries returns catalog entries sorted by key
func (f *Factory) Entries() []CatalogEntry {
	out := make([]CatalogEntry, 0, len(f.catalog))
	for _, entry := range f.catalog {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Has reports whether the catalog knows a provider key
func (f *Factory) Has(providerKey string) bool {
	_, ok := f.catalog[providerKey]
	return ok
}
