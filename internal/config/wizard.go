package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader    *bufio.Reader
	out       io.Writer
	validator *Validator
}

// NewWizard creates a wizard reading from stdin
func NewWizard() *Wizard {
	return NewWizardIO(os.Stdin, os.Stdout)
}

// NewWizardIO creates a wizard over arbitrary streams
func NewWizardIO(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader:    bufio.NewReader(in),
		out:       out,
		validator: NewValidator(),
	}
}

// Run asks for the settings a first discussion needs, starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	cfg := base
	if cfg == nil {
		cfg = DefaultConfig()
	}

	fmt.Fprintln(w.out, "=== Roundtable Configuration ===")
	fmt.Fprintln(w.out)

	providerKey, err := w.ask(fmt.Sprintf("Default provider [%s]: ", cfg.Models.DefaultProvider), cfg.Models.DefaultProvider, w.validator.ValidateProvider)
	if err != nil {
		return nil, err
	}
	cfg.Models.DefaultProvider = providerKey

	key, err := w.ask(fmt.Sprintf("%s API key (Enter to use the environment): ", providerKey), "", func(s string) error {
		if s == "" {
			return nil
		}
		return w.validator.ValidateAPIKey(s, providerKey)
	})
	if err != nil {
		return nil, err
	}
	if key != "" {
		cfg.AI.Profiles = upsertProfile(cfg.AI.Profiles, AIProfile{ID: providerKey, Provider: providerKey, APIKey: key})
	}

	model, err := w.ask(fmt.Sprintf("Default model [%s]: ", cfg.Models.DefaultModel), cfg.Models.DefaultModel, func(s string) error {
		return w.validator.ValidateModel(providerKey, s)
	})
	if err != nil {
		return nil, err
	}
	cfg.Models.DefaultModel = model

	brave, err := w.ask("Brave Search API key for web/image tools (Enter to skip): ", cfg.Search.BraveAPIKey, nil)
	if err != nil {
		return nil, err
	}
	cfg.Search.BraveAPIKey = brave

	port, err := w.ask(fmt.Sprintf("Gateway port [%d]: ", cfg.Gateway.Port), strconv.Itoa(cfg.Gateway.Port), func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 || n > 65535 {
			return fmt.Errorf("port must be between 1 and 65535")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	cfg.Gateway.Port, _ = strconv.Atoi(port)

	level, err := w.ask(fmt.Sprintf("Log level (debug/info/warn/error) [%s]: ", cfg.Logging.Level), cfg.Logging.Level, w.validator.ValidateLogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return cfg, nil
}

// ask prompts until the answer validates. An empty answer selects def.
func (w *Wizard) ask(prompt, def string, validate func(string) error) (string, error) {
	for {
		fmt.Fprint(w.out, prompt)
		answer, err := w.readLine()
		if err != nil {
			return "", err
		}
		if answer == "" {
			answer = def
		}
		if validate != nil {
			if err := validate(answer); err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
		}
		return answer, nil
	}
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil && !(err == io.EOF && line != "") {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func upsertProfile(profiles []AIProfile, p AIProfile) []AIProfile {
	for i := range profiles {
		if profiles[i].Provider == p.Provider {
			profiles[i] = p
			return profiles
		}
	}
	return append(profiles, p)
}
