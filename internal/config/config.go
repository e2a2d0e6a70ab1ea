// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.coursemate/config.yaml, or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: OpenAI chat model, embedding model, temperature, max tokens
//   - Retrieval: top-k, similarity threshold for course search
//   - Storage: PostgreSQL connection (see storage.go)
//   - Services: API and web bind addresses, CORS, rate limiting
//   - Supervisor: log directory, startup delays, probe timeout (see supervisor.go)
//   - Observability: optional OTLP trace export
//
// Security: the OpenAI API key is read from the environment only, never from
// the config file; the PostgreSQL password is masked in MarshalJSON/String.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates the OpenAI API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates the chat model name is invalid.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidEmbeddingModel indicates the embedding model is invalid.
	ErrInvalidEmbeddingModel = errors.New("invalid embedding model")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidMaxTokens indicates the max tokens value is out of range.
	ErrInvalidMaxTokens = errors.New("invalid max tokens")

	// ErrInvalidRetrievalK indicates the retrieval top-k is out of range.
	ErrInvalidRetrievalK = errors.New("invalid retrieval k")

	// ErrInvalidThreshold indicates the similarity threshold is out of range.
	ErrInvalidThreshold = errors.New("invalid similarity threshold")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidAddr indicates a service bind address is invalid.
	ErrInvalidAddr = errors.New("invalid bind address")

	// ErrInvalidCoursePath indicates the course data path is empty.
	ErrInvalidCoursePath = errors.New("invalid course data path")
)

// Defaults for the AI and retrieval configuration.
const (
	// DefaultChatModel matches the model the recommendation prompt is tuned for.
	DefaultChatModel = "gpt-4.1-mini"

	// DefaultEmbeddingModel produces 1536-dimensional vectors; the pgvector
	// schema uses vector(1536) accordingly (see knowledge.VectorDimension).
	DefaultEmbeddingModel = "text-embedding-3-small"

	// DefaultRetrievalK is the number of courses retrieved per query.
	DefaultRetrievalK = 5

	// DefaultSimilarityThreshold filters low-relevance vector matches.
	// Values in 0.6..0.8 keep noise down without starving niche queries.
	DefaultSimilarityThreshold = 0.7
)

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
type Config struct {
	// AI model configuration
	ModelName      string  `mapstructure:"model_name" json:"model_name"`
	EmbeddingModel string  `mapstructure:"embedding_model" json:"embedding_model"`
	Temperature    float64 `mapstructure:"temperature" json:"temperature"`
	MaxTokens      int     `mapstructure:"max_tokens" json:"max_tokens"`

	// Retrieval configuration
	RetrievalK          int     `mapstructure:"retrieval_k" json:"retrieval_k"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`

	// Course data
	CourseDataPath string `mapstructure:"course_data_path" json:"course_data_path"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Service configuration
	APIAddr     string   `mapstructure:"api_addr" json:"api_addr"`
	WebAddr     string   `mapstructure:"web_addr" json:"web_addr"`
	CORSOrigins []string `mapstructure:"cors_origins" json:"cors_origins"`
	RateBurst   int      `mapstructure:"rate_burst" json:"rate_burst"`

	// Supervisor configuration (see supervisor.go)
	Supervisor SupervisorConfig `mapstructure:"supervisor" json:"supervisor"`

	// Observability configuration
	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// TracingConfig controls optional OTLP trace export.
type TracingConfig struct {
	// Enabled turns trace export on. Default: false.
	Enabled bool `mapstructure:"enabled" json:"enabled"`
	// Endpoint is the OTLP HTTP collector endpoint (host:port).
	Endpoint string `mapstructure:"endpoint" json:"endpoint"`
	// ServiceName tags exported spans. Default: "coursemate".
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	// Environment tags exported spans (dev, staging, prod).
	Environment string `mapstructure:"environment" json:"environment"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".coursemate")

	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".") // Also support current directory

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL overrides the individual postgres_* settings
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	// Each command validates with the check that fits it: Validate for
	// anything touching the AI models and the database, ValidateWeb for
	// the frontend which only needs addresses.
	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	// AI defaults
	viper.SetDefault("model_name", DefaultChatModel)
	viper.SetDefault("embedding_model", DefaultEmbeddingModel)
	viper.SetDefault("temperature", 0.7)
	viper.SetDefault("max_tokens", 1500)

	// Retrieval defaults
	viper.SetDefault("retrieval_k", DefaultRetrievalK)
	viper.SetDefault("similarity_threshold", DefaultSimilarityThreshold)

	// Course data
	viper.SetDefault("course_data_path", "courses.json")

	// PostgreSQL defaults (matching docker-compose.yml)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "coursemate")
	viper.SetDefault("postgres_password", "coursemate_dev_password")
	viper.SetDefault("postgres_db_name", "coursemate")
	viper.SetDefault("postgres_ssl_mode", "disable")

	// Service defaults: the API on 8000 and the web UI on 8501,
	// the ports the deployment guides and probes assume.
	viper.SetDefault("api_addr", "127.0.0.1:8000")
	viper.SetDefault("web_addr", "127.0.0.1:8501")
	viper.SetDefault("cors_origins", []string{"http://localhost:8501"})
	viper.SetDefault("rate_burst", 0)

	// Supervisor defaults (see supervisor.go)
	setSupervisorDefaults()

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "localhost:4318")
	viper.SetDefault("tracing.service_name", "coursemate")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
//
// Secrets:
//   - OPENAI_API_KEY is read directly by the OpenAI client, not via Viper;
//     its presence is checked in Validate().
//   - DATABASE_URL is parsed separately in parseDatabaseURL().
func bindEnvVariables() {
	// Hardcoded keys can't fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("model_name", "COURSEMATE_MODEL_NAME")
	mustBind("embedding_model", "COURSEMATE_EMBEDDING_MODEL")
	mustBind("course_data_path", "COURSEMATE_COURSE_DATA")
	mustBind("api_addr", "COURSEMATE_API_ADDR")
	mustBind("web_addr", "COURSEMATE_WEB_ADDR")
	mustBind("cors_origins", "COURSEMATE_CORS_ORIGINS")
	mustBind("rate_burst", "COURSEMATE_RATE_BURST")
	mustBind("tracing.enabled", "COURSEMATE_TRACING")
}

// maskedValue is the placeholder for masked sensitive data.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging.
// Secrets of 8 characters or fewer are fully masked to prevent substring
// matching; longer ones keep the first and last 2 characters for debugging.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
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
