// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (./config.yaml or /etc/retrofit/config.yaml)
//  3. Default values (sensible defaults for quick start)
//
// Main configuration categories:
//   - AI: provider, chat models, fallback chain, embedder
//   - Storage: PostgreSQL connection for buildings and the vector store
//   - RAG: documentation directory, simulation inputs directory, retrieval counts
//   - Chat: session TTL/capacity, token budget
//   - Optimize: population size, generation count, random seed
//   - Server: listen address, CORS, rate limiting
//   - Observability: OTLP trace export
//
// Security: Sensitive data (passwords) are never logged.
// Validation: range checks in validation.go with clear error messages.
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates a model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidSessionTTL indicates the chat session TTL is out of range.
	ErrInvalidSessionTTL = errors.New("invalid session TTL")

	// ErrInvalidTokenBudget indicates the chat token budget is out of range.
	ErrInvalidTokenBudget = errors.New("invalid token budget")

	// ErrInvalidOptimizeParams indicates optimizer parameters are out of range.
	ErrInvalidOptimizeParams = errors.New("invalid optimizer parameters")

	// ErrInvalidServerPort indicates the HTTP listen port is out of range.
	ErrInvalidServerPort = errors.New("invalid server port")
)

// AI provider identifiers used in Config.Provider.
const (
	ProviderOpenAI   = "openai"
	ProviderGoogleAI = "googleai"
)

// Default chat and embedding models.
const (
	// DefaultModel is the primary chat model.
	DefaultModel = "gpt-4o"

	// DefaultCheapModel serves short navigation-style queries.
	DefaultCheapModel = "gpt-4o-mini"

	// DefaultEmbedderModel produces 1536-dimension vectors; see knowledge.VectorDimension.
	DefaultEmbedderModel = "text-embedding-3-small"
)

// Config stores application configuration.
// SECURITY: Sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields (passwords, API keys, tokens), update MarshalJSON.
type Config struct {
	// AI provider and model configuration
	Provider       string   `mapstructure:"provider" json:"provider"` // "openai" (default) or "googleai"
	ModelName      string   `mapstructure:"model_name" json:"model_name"`
	CheapModelName string   `mapstructure:"cheap_model_name" json:"cheap_model_name"`
	FallbackModels []string `mapstructure:"fallback_models" json:"fallback_models"` // Tried in order on rate-limit errors

	// Storage configuration
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// RAG configuration
	EmbedderModel string `mapstructure:"embedder_model" json:"embedder_model"`
	DocsDir       string `mapstructure:"docs_dir" json:"docs_dir"`
	InputsDir     string `mapstructure:"inputs_dir" json:"inputs_dir"` // Simulation result CSVs, one per climate scenario year
	RetrieveDocs  int    `mapstructure:"retrieve_docs" json:"retrieve_docs"`
	RetrieveCases int    `mapstructure:"retrieve_cases" json:"retrieve_cases"`

	// Chat configuration
	SessionTTLSeconds int `mapstructure:"session_ttl_seconds" json:"session_ttl_seconds"`
	SessionCapacity   int `mapstructure:"session_capacity" json:"session_capacity"`
	TokenBudget       int `mapstructure:"token_budget" json:"token_budget"`

	// Optimizer configuration
	PopulationSize int    `mapstructure:"population_size" json:"population_size"`
	Generations    int    `mapstructure:"generations" json:"generations"`
	OptimizeSeed   uint64 `mapstructure:"optimize_seed" json:"optimize_seed"`

	// Surrogate model weights (empty enables the analytic fallback only)
	ModelWeightsPath string `mapstructure:"model_weights_path" json:"model_weights_path"`

	// Server configuration
	ServerHost  string   `mapstructure:"server_host" json:"server_host"`
	ServerPort  int      `mapstructure:"server_port" json:"server_port"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy  bool     `mapstructure:"trust_proxy" json:"trust_proxy"` // Trust X-Real-IP/X-Forwarded-For (set true behind reverse proxy)
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Observability configuration
	TracingEnabled bool   `mapstructure:"tracing_enabled" json:"tracing_enabled"`
	OTLPEndpoint   string `mapstructure:"otlp_endpoint" json:"otlp_endpoint"`
	Environment    string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/retrofit")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{".", "/etc/retrofit"},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// Parse DATABASE_URL if set (highest priority for PostgreSQL config)
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// CRITICAL: Validate immediately (fail-fast)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("provider", ProviderOpenAI)
	viper.SetDefault("model_name", DefaultModel)
	viper.SetDefault("cheap_model_name", DefaultCheapModel)
	viper.SetDefault("fallback_models", []string{"gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"})

	// PostgreSQL defaults (local development database)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "retrofit")
	viper.SetDefault("postgres_password", "retrofit_dev_password")
	viper.SetDefault("postgres_db_name", "retrofit")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// RAG defaults
	viper.SetDefault("embedder_model", DefaultEmbedderModel)
	viper.SetDefault("docs_dir", "docs")
	viper.SetDefault("inputs_dir", "data/inputs")
	viper.SetDefault("retrieve_docs", 3)
	viper.SetDefault("retrieve_cases", 2)

	// Chat defaults
	viper.SetDefault("session_ttl_seconds", 3600)
	viper.SetDefault("session_capacity", 1000)
	viper.SetDefault("token_budget", 8000)

	// Optimizer defaults
	viper.SetDefault("population_size", 40)
	viper.SetDefault("generations", 20)
	viper.SetDefault("optimize_seed", 42)

	// Server defaults (SPA dev server origin)
	viper.SetDefault("server_host", "0.0.0.0")
	viper.SetDefault("server_port", 8000)
	viper.SetDefault("cors_origins", []string{"http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)

	// Observability defaults
	viper.SetDefault("tracing_enabled", false)
	viper.SetDefault("otlp_endpoint", "localhost:4318")
	viper.SetDefault("environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// OPENAI_API_KEY and GEMINI_API_KEY are read directly by the Genkit plugins,
// not via Viper; Validate() checks their presence based on the selected provider.
func bindEnvVariables() {
	// Helper to panic on unexpected bind errors (hardcoded strings can't fail).
	// If this panics, it's a BUG in our code, not a runtime error.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("provider", "ISABELLA_PROVIDER")
	mustBind("model_name", "ISABELLA_MODEL_NAME")
	mustBind("cheap_model_name", "ISABELLA_CHEAP_MODEL_NAME")
	mustBind("embedder_model", "ISABELLA_EMBEDDER_MODEL")

	mustBind("docs_dir", "ISABELLA_DOCS_DIR")
	mustBind("inputs_dir", "ISABELLA_INPUTS_DIR")
	mustBind("model_weights_path", "ISABELLA_MODEL_WEIGHTS_PATH")

	mustBind("server_host", "ISABELLA_SERVER_HOST")
	mustBind("server_port", "ISABELLA_SERVER_PORT")
	mustBind("cors_origins", "ISABELLA_CORS_ORIGINS")
	mustBind("trust_proxy", "ISABELLA_TRUST_PROXY")
	mustBind("rate_burst", "ISABELLA_RATE_BURST")

	mustBind("tracing_enabled", "ISABELLA_TRACING_ENABLED")
	mustBind("otlp_endpoint", "ISABELLA_OTLP_ENDPOINT")
	mustBind("environment", "ISABELLA_ENVIRONMENT")
}

// parseDatabaseURL overrides PostgreSQL settings from DATABASE_URL when set.
// Accepts postgres:// and postgresql:// URLs.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("invalid port %q: %w", p, err)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if name := strings.TrimPrefix(u.Path, "/"); name != "" {
		c.PostgresDBName = name
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// DatabaseURL assembles the postgres:// connection URL for pgx and migrations.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(c.PostgresUser),
		url.QueryEscape(c.PostgresPassword),
		c.PostgresHost,
		c.PostgresPort,
		c.PostgresDBName,
		c.PostgresSSLMode,
	)
}

// ServerAddr returns the host:port listen address for the HTTP server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// FullModelName returns the provider-qualified model name for Genkit.
// Examples: "openai/gpt-4o", "googleai/gemini-2.5-flash".
// If name already contains a "/", it is returned as-is.
func (c *Config) FullModelName(name string) string {
	if name == "" {
		name = c.ModelName
	}
	if strings.Contains(name, "/") {
		return name
	}
	switch c.Provider {
	case ProviderGoogleAI:
		return ProviderGoogleAI + "/" + name
	default:
		return ProviderOpenAI + "/" + name
	}
}

// maskedValue is the placeholder for masked sensitive data.
// Using ████████ (full-width blocks U+2588) to avoid substring matching.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Shows first 2 and last 2 characters, masks the rest.
// SECURITY: For secrets <=8 chars, fully masks to prevent substring attacks.
//
// THREAT MODEL: This defends against accidental logging of real secrets.
// It is NOT cryptographically secure - if logs are compromised, rotate secrets.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	// Fully mask short secrets to prevent substring matching attacks
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field masking.
//
// Sensitive fields masked:
//   - PostgresPassword
//
// When adding new sensitive fields, update this method.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
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
