// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml)
//  3. Default values
//
// Security: sensitive data (passwords, API keys) is never logged; see MarshalJSON.
// Validation: fail-fast range checks in validation.go with sentinel errors for errors.Is().
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidLanguage indicates the default interview language is unsupported.
	ErrInvalidLanguage = errors.New("invalid language")

	// ErrInvalidHTTPAddr indicates the HTTP listen address is invalid.
	ErrInvalidHTTPAddr = errors.New("invalid http address")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresPassword indicates the PostgreSQL password is invalid.
	ErrInvalidPostgresPassword = errors.New("invalid PostgreSQL password")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Interview languages accepted in Config.Language and per-session overrides.
const (
	LanguageEnglish = "en"
	LanguageTwi     = "ak"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// Model provider and model configuration
	Provider        string `mapstructure:"provider" json:"provider"`                 // "gemini" (default) or "openai"
	ModelName       string `mapstructure:"model_name" json:"model_name"`             // conversation model, e.g. "gemini-2.5-flash", "gpt-4o"
	ExtractionModel string `mapstructure:"extraction_model" json:"extraction_model"` // cheaper model for background finding extraction
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`
	MaxTokens       int    `mapstructure:"max_tokens" json:"max_tokens"`

	// GeminiAPIKey and OpenAIAPIKey are read from the environment only.
	GeminiAPIKey string `mapstructure:"gemini_api_key" json:"gemini_api_key"` // SENSITIVE: masked in MarshalJSON
	OpenAIAPIKey string `mapstructure:"openai_api_key" json:"openai_api_key"` // SENSITIVE: masked in MarshalJSON

	// Interview configuration
	Language string `mapstructure:"language" json:"language"` // default session language: "en" or "ak"

	// HTTP server configuration
	HTTPAddr    string   `mapstructure:"http_addr" json:"http_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Observability configuration (see observability.go)
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, if set, overrides the individual postgres_* settings.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// Model defaults
	viper.SetDefault("provider", ProviderGemini)
	viper.SetDefault("model_name", "gemini-2.5-flash")
	viper.SetDefault("extraction_model", "gemini-2.5-flash-lite")
	viper.SetDefault("embedder_model", "gemini-embedding-001")
	viper.SetDefault("max_tokens", 2048)

	// Interview defaults
	viper.SetDefault("language", LanguageEnglish)

	// HTTP defaults
	viper.SetDefault("http_addr", ":8080")
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "bogan")
	viper.SetDefault("postgres_password", "bogan_dev_password")
	viper.SetDefault("postgres_db_name", "bogan")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Tracing defaults
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.environment", "dev")
	viper.SetDefault("tracing.service_name", "bogan")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	// Provider API keys (secrets, env only)
	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("openai_api_key", "OPENAI_API_KEY")

	// Model overrides
	mustBind("provider", "BOGAN_PROVIDER")
	mustBind("model_name", "BOGAN_MODEL_NAME")
	mustBind("extraction_model", "BOGAN_EXTRACTION_MODEL")
	mustBind("embedder_model", "BOGAN_EMBEDDER_MODEL")

	// Server overrides
	mustBind("http_addr", "BOGAN_HTTP_ADDR")
	mustBind("cors_origins", "BOGAN_CORS_ORIGINS")

	// Tracing
	mustBind("tracing.enabled", "BOGAN_TRACING_ENABLED")
	mustBind("tracing.endpoint", "BOGAN_TRACING_ENDPOINT")
}

// maskedValue is the placeholder for masked sensitive data.
// Full-width blocks (U+2588) avoid accidental substring matches against
// real secret characters.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked; longer secrets keep
// the first and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//   - GeminiAPIKey
//   - OpenAIAPIKey
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	a.GeminiAPIKey = maskSecret(a.GeminiAPIKey)
	a.OpenAIAPIKey = maskSecret(a.OpenAIAPIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
