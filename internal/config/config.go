// Package config provides application configuration management with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (QUARRY_* prefix, plus DATABASE_URL)
//  2. Config file (~/.quarry/config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - AI: embedding provider and model (see ai.go)
//   - Storage: PostgreSQL connection (see storage.go)
//   - Indexer: batch sizing for embedding runs
//   - Retrieval: top-k, context budget, cache capacity, search timeout
//   - Server: HTTP listen address and rate limiting
//   - Tracing: optional OTLP span export
//
// Validation lives in validation.go and uses sentinel errors so callers can
// check failure causes with errors.Is.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the AI provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidEmbedderModel indicates the embedder model name is invalid.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidBatchSize indicates an indexer batch size is out of range.
	ErrInvalidBatchSize = errors.New("invalid batch size")

	// ErrInvalidTopK indicates the retrieval top-k is out of range.
	ErrInvalidTopK = errors.New("invalid top k")

	// ErrInvalidContextBudget indicates the context character budget is out of range.
	ErrInvalidContextBudget = errors.New("invalid context budget")

	// ErrInvalidCacheCapacity indicates the result cache capacity is out of range.
	ErrInvalidCacheCapacity = errors.New("invalid cache capacity")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")

	// ErrInvalidServerAddr indicates the HTTP listen address is invalid.
	ErrInvalidServerAddr = errors.New("invalid server address")
)

// Config holds all application configuration.
type Config struct {
	// AI provider settings
	Provider      string `mapstructure:"provider"`       // gemini (default), ollama, openai
	EmbedderModel string `mapstructure:"embedder_model"` // embedding model name
	OllamaHost    string `mapstructure:"ollama_host"`    // ollama server address

	// PostgreSQL settings
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_dbname"`
	PostgresSSLMode  string `mapstructure:"postgres_sslmode"`

	// Embedding indexer batch sizing
	InitialBatchSize int `mapstructure:"initial_batch_size"`
	MinBatchSize     int `mapstructure:"min_batch_size"`
	MaxBatchSize     int `mapstructure:"max_batch_size"`

	// Retrieval defaults
	TopK              int `mapstructure:"top_k"`
	MaxContextChars   int `mapstructure:"max_context_chars"`
	CacheCapacity     int `mapstructure:"cache_capacity"`
	SearchTimeoutSecs int `mapstructure:"search_timeout_seconds"`

	// HTTP server
	ServerAddr string  `mapstructure:"server_addr"`
	RateLimit  float64 `mapstructure:"rate_limit"` // requests per second per IP
	RateBurst  int     `mapstructure:"rate_burst"`
	TrustProxy bool    `mapstructure:"trust_proxy"`

	// Tracing (OTLP HTTP export to a local agent)
	Tracing TracingConfig `mapstructure:"tracing"`
}

// TracingConfig holds OTLP trace export settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	AgentHost   string `mapstructure:"agent_host"` // host:port of the OTLP HTTP endpoint
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
}

// Load reads configuration from defaults, the config file, and the environment.
// A missing config file is not an error; defaults and env vars still apply.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("QUARRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if dir, err := configDir(); err == nil {
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// DATABASE_URL overrides individual postgres_* settings when set.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults registers default values for all settings.
func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", "gemini")
	v.SetDefault("embedder_model", "text-embedding-004")
	v.SetDefault("ollama_host", "http://localhost:11434")

	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "quarry")
	v.SetDefault("postgres_password", "")
	v.SetDefault("postgres_dbname", "quarry")
	v.SetDefault("postgres_sslmode", "disable")

	v.SetDefault("initial_batch_size", 6)
	v.SetDefault("min_batch_size", 2)
	v.SetDefault("max_batch_size", 8)

	v.SetDefault("top_k", 6)
	v.SetDefault("max_context_chars", 4000)
	v.SetDefault("cache_capacity", 128)
	v.SetDefault("search_timeout_seconds", 10)

	v.SetDefault("server_addr", "127.0.0.1:8090")
	v.SetDefault("rate_limit", 5.0)
	v.SetDefault("rate_burst", 10)
	v.SetDefault("trust_proxy", false)

	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.agent_host", "localhost:4318")
	v.SetDefault("tracing.service_name", "quarry")
	v.SetDefault("tracing.environment", "")
}

// configDir returns the quarry config directory (~/.quarry), creating it if needed.
func configDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}

	dir := filepath.Join(home, ".quarry")
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("creating config directory: %w", err)
	}

	return dir, nil
}
