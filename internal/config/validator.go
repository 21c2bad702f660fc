package config

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/harun/roundtable/pkg/provider"
	"github.com/robfig/cron/v3"
)

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Validator validates individual configuration values
type Validator struct {
	catalog map[string]provider.CatalogEntry
}

// NewValidator creates a new validator over the default provider catalog
func NewValidator() *Validator {
	return &Validator{catalog: provider.DefaultCatalog()}
}

// ValidateProvider checks that a provider key is in the catalog
func (v *Validator) ValidateProvider(key string) error {
	if _, ok := v.catalog[key]; !ok {
		known := make([]string, 0, len(v.catalog))
		for k := range v.catalog {
			known = append(known, k)
		}
		sort.Strings(known)
		return fmt.Errorf("unknown provider: %s (known: %s)", key, strings.Join(known, ", "))
	}
	return nil
}

// ValidateAPIKey checks a key against the provider's expected prefix
func (v *Validator) ValidateAPIKey(key string, providerKey string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", providerKey)
	}

	entry, ok := v.catalog[providerKey]
	if !ok {
		return v.ValidateProvider(providerKey)
	}
	if entry.KeyPrefix != "" && !strings.HasPrefix(key, entry.KeyPrefix) {
		return fmt.Errorf("invalid %s API key format (should start with %s)", entry.Name, entry.KeyPrefix)
	}
	return nil
}

// ValidateModel checks that a model belongs to the provider's catalog entry.
// Unknown models are allowed for custom deployments but must be non-empty.
func (v *Validator) ValidateModel(providerKey, model string) error {
	if model == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if _, ok := v.catalog[providerKey]; !ok {
		return v.ValidateProvider(providerKey)
	}
	return nil
}

// ValidatePersonaRole validates a persona role
func (v *Validator) ValidatePersonaRole(role string) error {
	switch role {
	case "", RolePanelist, RoleMediator, RoleCurator, RoleSentiment:
		return nil
	}
	return fmt.Errorf("invalid persona role: %s (must be one of: %s)", role,
		strings.Join([]string{RolePanelist, RoleMediator, RoleCurator, RoleSentiment}, ", "))
}

// ValidateColor validates a #RRGGBB display color
func (v *Validator) ValidateColor(color string) error {
	if color == "" {
		return nil
	}
	if !colorPattern.MatchString(color) {
		return fmt.Errorf("invalid color %q (expected #RRGGBB)", color)
	}
	return nil
}

// ValidateMaxTokens validates max tokens value
func (v *Validator) ValidateMaxTokens(tokens int) error {
	if tokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", tokens)
	}
	if tokens > 64000 {
		return fmt.Errorf("max tokens too large (max 64000), got %d", tokens)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSafeSearch validates the search safesearch level
func (v *Validator) ValidateSafeSearch(level string) error {
	switch level {
	case "", "off", "moderate", "strict":
		return nil
	}
	return fmt.Errorf("invalid safesearch level: %s (must be one of: off, moderate, strict)", level)
}

// ValidateSchedule validates a five-field cron expression
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateConfig performs value-level validation and returns every problem found
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	for i, profile := range cfg.AI.Profiles {
		if err := v.ValidateAPIKey(profile.APIKey, profile.Provider); err != nil {
			errs = append(errs, fmt.Errorf("AI profile %d (%s): %w", i, profile.ID, err))
		}
	}

	if err := v.ValidateProvider(cfg.Models.DefaultProvider); err != nil {
		errs = append(errs, fmt.Errorf("models.default_provider: %w", err))
	} else if err := v.ValidateModel(cfg.Models.DefaultProvider, cfg.Models.DefaultModel); err != nil {
		errs = append(errs, fmt.Errorf("models.default_model: %w", err))
	}
	if err := v.ValidateMaxTokens(cfg.Models.MaxTokens); err != nil {
		errs = append(errs, err)
	}

	for _, p := range cfg.Personas {
		if err := v.ValidatePersonaRole(p.Role); err != nil {
			errs = append(errs, fmt.Errorf("persona %s: %w", p.Key, err))
		}
		if err := v.ValidateColor(p.Color); err != nil {
			errs = append(errs, fmt.Errorf("persona %s: %w", p.Key, err))
		}
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateSafeSearch(cfg.Search.SafeSearch); err != nil {
		errs = append(errs, err)
	}
	if err := v.ValidateSchedule(cfg.Storage.RetentionSchedule); err != nil {
		errs = append(errs, err)
	}
	if cfg.Storage.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("storage.retention_days must be >= 0"))
	}
	if cfg.Discussion.DrainPollMS < 0 {
		errs = append(errs, fmt.Errorf("discussion.drain_poll_ms must be >= 0"))
	}
	if cfg.Gateway.FramesPerMin < 0 {
		errs = append(errs, fmt.Errorf("gateway.frames_per_min must be >= 0"))
	}

	return errs
}
