package config

import (
	"fmt"
	"log/slog"
	"slices"
)

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. Provider and API key validation
	switch c.Provider {
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required for provider %q\n"+
				"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
				ErrMissingAPIKey, ProviderGemini)
		}
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY environment variable is required for provider %q",
				ErrMissingAPIKey, ProviderOpenAI)
		}
	default:
		return fmt.Errorf("%w: %q is not supported, must be %q or %q",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOpenAI)
	}

	// 2. Model configuration validation
	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.ExtractionModel == "" {
		return fmt.Errorf("%w: extraction_model cannot be empty", ErrInvalidModelName)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.MaxTokens < 1 || c.MaxTokens > 2097152 {
		return fmt.Errorf("%w: must be between 1 and 2,097,152, got %d", ErrInvalidMaxTokens, c.MaxTokens)
	}

	// 3. Interview configuration validation
	if c.Language != LanguageEnglish && c.Language != LanguageTwi {
		return fmt.Errorf("%w: %q is not supported, must be %q or %q",
			ErrInvalidLanguage, c.Language, LanguageEnglish, LanguageTwi)
	}

	// 4. HTTP configuration validation
	if c.HTTPAddr == "" {
		return fmt.Errorf("%w: http_addr cannot be empty", ErrInvalidHTTPAddr)
	}

	// 5. PostgreSQL configuration validation
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}

	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}

	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set", ErrInvalidPostgresPassword)
	}

	// Warn on the default dev password but do not block local development.
	if c.PostgresPassword == "bogan_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password for production deployments")
	}

	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated (MITM vulnerable).
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	return nil
}
