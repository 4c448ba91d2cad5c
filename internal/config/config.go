// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.arkivo/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Embedder: provider, model, vector dimension, rate limit
//   - Storage: PostgreSQL connection (see storage.go)
//   - Vectors: which vector store backs search (pgvector or qdrant)
//   - Chunking: default chunk size, overlap, minimum size
//   - Search: result cache sizing
//   - Server: HTTP listen address
//
// Sensitive values (passwords, API keys) are masked in MarshalJSON and
// String. Validation uses sentinel errors checkable with errors.Is().
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

	// ErrMissingAPIKey indicates a required API key is missing.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidEmbedderModel indicates the embedder model is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidEmbedderDimension indicates the embedder dimension is out of range.
	ErrInvalidEmbedderDimension = errors.New("invalid embedder dimension")

	// ErrInvalidEmbedderRate indicates the embedder rate limit is invalid.
	ErrInvalidEmbedderRate = errors.New("invalid embedder rate limit")

	// ErrInvalidChunking indicates the chunking parameters are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking parameters")

	// ErrInvalidVectorStore indicates the vector store type is not supported.
	ErrInvalidVectorStore = errors.New("invalid vector store")

	// ErrInvalidQdrantHost indicates the Qdrant host is invalid.
	ErrInvalidQdrantHost = errors.New("invalid Qdrant host")

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

	// ErrInvalidServerAddr indicates the HTTP listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")

	// ErrInvalidCache indicates the search cache settings are invalid.
	ErrInvalidCache = errors.New("invalid cache settings")
)

// Vector store backends selectable via vector_store.
const (
	VectorStorePgvector = "pgvector"
	VectorStoreQdrant   = "qdrant"
)

const (
	// DefaultEmbedderModel is the default Gemini embedder model.
	// gemini-embedding-001 supports truncation to 768 dimensions via
	// OutputDimensionality; the pgvector schema is sized to match.
	DefaultEmbedderModel = "gemini-embedding-001"

	// DefaultEmbedderDimension is the vector dimension the schema is
	// provisioned for.
	DefaultEmbedderDimension = 768
)

// QdrantConfig configures the optional Qdrant vector store backend.
type QdrantConfig struct {
	Host       string `mapstructure:"host" json:"host"`
	Port       int    `mapstructure:"port" json:"port"`
	APIKey     string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in MarshalJSON
	UseTLS     bool   `mapstructure:"use_tls" json:"use_tls"`
	Collection string `mapstructure:"collection" json:"collection"`
}

// MarshalJSON masks the API key.
func (q QdrantConfig) MarshalJSON() ([]byte, error) {
	type alias QdrantConfig
	a := alias(q)
	a.APIKey = maskSecret(a.APIKey)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal qdrant config: %w", err)
	}
	return data, nil
}

// Config stores application configuration.
// SECURITY: sensitive fields are explicitly masked in MarshalJSON().
// When adding new sensitive fields, update MarshalJSON.
type Config struct {
	// Embedder configuration
	EmbedderModel       string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderDimension   int    `mapstructure:"embedder_dimension" json:"embedder_dimension"`
	EmbedderRateLimit   int    `mapstructure:"embedder_rate_limit" json:"embedder_rate_limit"` // requests per second
	EmbedderConcurrency int    `mapstructure:"embedder_concurrency" json:"embedder_concurrency"`

	// Chunking defaults applied when a request does not override them
	ChunkMaxSize int  `mapstructure:"chunk_max_size" json:"chunk_max_size"`
	ChunkOverlap int  `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	ChunkMinSize int  `mapstructure:"chunk_min_size" json:"chunk_min_size"`
	ChunkByUnits bool `mapstructure:"chunk_by_units" json:"chunk_by_units"` // sentence/paragraph boundaries

	// Vector store selection and Qdrant settings
	VectorStore string       `mapstructure:"vector_store" json:"vector_store"`
	Qdrant      QdrantConfig `mapstructure:"qdrant" json:"qdrant"`

	// Storage configuration (see storage.go)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Search result cache
	CacheMaxEntries int `mapstructure:"cache_max_entries" json:"cache_max_entries"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" json:"cache_ttl_seconds"`

	// HTTP server (serve mode only)
	ServerAddr string `mapstructure:"server_addr" json:"server_addr"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".arkivo")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is not an error, defaults apply.
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."},
			"config_name", "config.yaml")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual postgres_* keys.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults(v *viper.Viper) {
	// Embedder defaults
	v.SetDefault("embedder_model", DefaultEmbedderModel)
	v.SetDefault("embedder_dimension", DefaultEmbedderDimension)
	v.SetDefault("embedder_rate_limit", 10)
	v.SetDefault("embedder_concurrency", 4)

	// Chunking defaults
	v.SetDefault("chunk_max_size", 1000)
	v.SetDefault("chunk_overlap", 200)
	v.SetDefault("chunk_min_size", 100)
	v.SetDefault("chunk_by_units", true)

	// Vector store defaults
	v.SetDefault("vector_store", VectorStorePgvector)
	v.SetDefault("qdrant.host", "localhost")
	v.SetDefault("qdrant.port", 6334)
	v.SetDefault("qdrant.use_tls", false)
	v.SetDefault("qdrant.collection", "arkivo_chunks")

	// PostgreSQL defaults (matching docker-compose.yml)
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "arkivo")
	v.SetDefault("postgres_password", "arkivo_dev_password")
	v.SetDefault("postgres_db_name", "arkivo")
	v.SetDefault("postgres_ssl_mode", "disable")

	// Search cache defaults
	v.SetDefault("cache_max_entries", 512)
	v.SetDefault("cache_ttl_seconds", 300)

	// Server defaults
	v.SetDefault("server_addr", ":8080")

	// Logging defaults
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
// GEMINI_API_KEY is read directly by Genkit, not via Viper; Validate
// only checks its presence.
func bindEnvVariables(v *viper.Viper) {
	// Hardcoded keys cannot fail to bind; a panic here is a bug.
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("embedder_model", "ARKIVO_EMBEDDER_MODEL")
	mustBind("vector_store", "ARKIVO_VECTOR_STORE")
	mustBind("qdrant.host", "ARKIVO_QDRANT_HOST")
	mustBind("qdrant.api_key", "QDRANT_API_KEY")
	mustBind("server_addr", "ARKIVO_SERVER_ADDR")
	mustBind("log_level", "ARKIVO_LOG_LEVEL")
	mustBind("log_json", "ARKIVO_LOG_JSON")
}

// maskedValue is the placeholder for masked sensitive data. Full-width
// blocks avoid accidental substring matches against real secrets.
const maskedValue = "████████"

// maskSecret masks a secret string for safe logging. Secrets of 8
// characters or fewer are fully masked; longer secrets keep the first
// and last 2 characters for debug utility.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with explicit sensitive field
// masking. When adding new sensitive fields, update this method or the
// nested struct's MarshalJSON.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	// Qdrant.APIKey is handled by QdrantConfig.MarshalJSON.
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
