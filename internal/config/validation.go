package config

import (
	"fmt"
	"net"
	"strings"
)

// validSSLModes are the PostgreSQL sslmode values accepted by pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// validProviders are the supported embedding providers.
var validProviders = map[string]bool{
	"gemini": true,
	"ollama": true,
	"openai": true,
}

// Validate checks every setting needed for indexing and retrieval.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if !validProviders[c.Provider] {
		return fmt.Errorf("%w: %q (expected gemini, ollama, or openai)", ErrInvalidProvider, c.Provider)
	}
	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmbedderModel)
	}

	if err := c.validateStorage(); err != nil {
		return err
	}

	if c.MinBatchSize < 1 {
		return fmt.Errorf("%w: min_batch_size must be >= 1, got %d", ErrInvalidBatchSize, c.MinBatchSize)
	}
	if c.InitialBatchSize < c.MinBatchSize {
		return fmt.Errorf("%w: initial_batch_size %d below min_batch_size %d",
			ErrInvalidBatchSize, c.InitialBatchSize, c.MinBatchSize)
	}
	if c.MaxBatchSize < c.InitialBatchSize {
		return fmt.Errorf("%w: max_batch_size %d below initial_batch_size %d",
			ErrInvalidBatchSize, c.MaxBatchSize, c.InitialBatchSize)
	}

	if c.TopK < 1 || c.TopK > 50 {
		return fmt.Errorf("%w: top_k must be in [1, 50], got %d", ErrInvalidTopK, c.TopK)
	}
	if c.MaxContextChars < 100 || c.MaxContextChars > 50000 {
		return fmt.Errorf("%w: max_context_chars must be in [100, 50000], got %d",
			ErrInvalidContextBudget, c.MaxContextChars)
	}
	if c.CacheCapacity < 1 || c.CacheCapacity > 65536 {
		return fmt.Errorf("%w: cache_capacity must be in [1, 65536], got %d",
			ErrInvalidCacheCapacity, c.CacheCapacity)
	}

	return nil
}

// ValidateServe checks settings needed by the HTTP server, on top of Validate.
func (c *Config) ValidateServe() error {
	if err := c.Validate(); err != nil {
		return err
	}

	if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidServerAddr, c.ServerAddr, err)
	}

	return nil
}

// validateStorage checks the PostgreSQL connection settings.
func (c *Config) validateStorage() error {
	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: empty host", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: port must be in [1, 65535], got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: empty database name", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}
	return nil
}
