package config

import (
	"fmt"
	"os"
	"strings"
)

// Allowed PostgreSQL SSL modes (libpq-compatible).
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate performs fail-fast validation of the whole configuration.
// Returns the first violation wrapped around its sentinel error.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI, ProviderGoogleAI:
	default:
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderGoogleAI)
	}

	if err := c.validateAPIKey(); err != nil {
		return err
	}

	if strings.TrimSpace(c.ModelName) == "" {
		return fmt.Errorf("%w: model_name is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.CheapModelName) == "" {
		return fmt.Errorf("%w: cheap_model_name is empty", ErrInvalidModelName)
	}
	if len(c.FallbackModels) == 0 {
		return fmt.Errorf("%w: fallback_models is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder_model is empty", ErrInvalidEmbedderModel)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host is empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name is empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.SessionTTLSeconds < 60 || c.SessionTTLSeconds > 86400 {
		return fmt.Errorf("%w: %d seconds (expected 60..86400)", ErrInvalidSessionTTL, c.SessionTTLSeconds)
	}
	if c.SessionCapacity < 1 {
		return fmt.Errorf("%w: capacity %d", ErrInvalidSessionTTL, c.SessionCapacity)
	}
	if c.TokenBudget < 500 || c.TokenBudget > 128000 {
		return fmt.Errorf("%w: %d (expected 500..128000)", ErrInvalidTokenBudget, c.TokenBudget)
	}

	if c.PopulationSize < 10 || c.PopulationSize > 200 {
		return fmt.Errorf("%w: population_size %d (expected 10..200)", ErrInvalidOptimizeParams, c.PopulationSize)
	}
	if c.Generations < 5 || c.Generations > 100 {
		return fmt.Errorf("%w: generations %d (expected 5..100)", ErrInvalidOptimizeParams, c.Generations)
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidServerPort, c.ServerPort)
	}

	return nil
}

// validateAPIKey checks the provider's API key environment variable is set.
// The Genkit plugins read the key directly; we only verify presence up front
// so misconfiguration fails at startup instead of on the first chat request.
func (c *Config) validateAPIKey() error {
	var envVar string
	switch c.Provider {
	case ProviderGoogleAI:
		envVar = "GEMINI_API_KEY"
	default:
		envVar = "OPENAI_API_KEY"
	}
	if os.Getenv(envVar) == "" {
		return fmt.Errorf("%w: %s is not set", ErrMissingAPIKey, envVar)
	}
	return nil
}
