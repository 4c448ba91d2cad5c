package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"slices"
)

// Validate validates configuration values. Returns sentinel errors
// checkable with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// 1. API key (required for embedding generation)
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	// 2. Embedder configuration
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}
	if c.EmbedderDimension < 1 || c.EmbedderDimension > 4096 {
		return fmt.Errorf("%w: must be between 1 and 4096, got %d",
			ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}
	if c.EmbedderRateLimit < 1 {
		return fmt.Errorf("%w: embedder_rate_limit must be at least 1, got %d",
			ErrInvalidEmbedderRate, c.EmbedderRateLimit)
	}
	if c.EmbedderConcurrency < 1 {
		return fmt.Errorf("%w: embedder_concurrency must be at least 1, got %d",
			ErrInvalidEmbedderRate, c.EmbedderConcurrency)
	}

	// 3. Chunking configuration
	if c.ChunkMaxSize < 1 {
		return fmt.Errorf("%w: chunk_max_size must be positive, got %d",
			ErrInvalidChunking, c.ChunkMaxSize)
	}
	if c.ChunkMinSize < 0 || c.ChunkMinSize > c.ChunkMaxSize {
		return fmt.Errorf("%w: chunk_min_size must be between 0 and chunk_max_size, got %d",
			ErrInvalidChunking, c.ChunkMinSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkMaxSize {
		return fmt.Errorf("%w: chunk_overlap must be smaller than chunk_max_size, got %d",
			ErrInvalidChunking, c.ChunkOverlap)
	}

	// 4. Vector store selection
	switch c.VectorStore {
	case VectorStorePgvector:
	case VectorStoreQdrant:
		if c.Qdrant.Host == "" {
			return fmt.Errorf("%w: qdrant.host cannot be empty", ErrInvalidQdrantHost)
		}
		if c.Qdrant.Port < 1 || c.Qdrant.Port > 65535 {
			return fmt.Errorf("%w: qdrant.port must be between 1 and 65535, got %d",
				ErrInvalidQdrantHost, c.Qdrant.Port)
		}
		if c.Qdrant.Collection == "" {
			return fmt.Errorf("%w: qdrant.collection cannot be empty", ErrInvalidQdrantHost)
		}
	default:
		return fmt.Errorf("%w: %q is not valid, must be one of: [%s %s]",
			ErrInvalidVectorStore, c.VectorStore, VectorStorePgvector, VectorStoreQdrant)
	}

	// 5. PostgreSQL configuration
	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if c.PostgresPassword == "" {
		return fmt.Errorf("%w: postgres_password must be set in config.yaml",
			ErrInvalidPostgresPassword)
	}
	if c.PostgresPassword == "arkivo_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}
	if len(c.PostgresPassword) < 8 {
		return fmt.Errorf("%w: postgres_password must be at least 8 characters (got %d)",
			ErrInvalidPostgresPassword, len(c.PostgresPassword))
	}

	// Modern SSL modes only; allow/prefer are deprecated and MITM
	// vulnerable. https://www.postgresql.org/docs/current/libpq-ssl.html
	validSSLModes := []string{"disable", "require", "verify-ca", "verify-full"}
	if !slices.Contains(validSSLModes, c.PostgresSSLMode) {
		return fmt.Errorf("%w: %q is not valid, must be one of: %v",
			ErrInvalidPostgresSSLMode, c.PostgresSSLMode, validSSLModes)
	}

	// 6. Search cache
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("%w: cache_max_entries cannot be negative, got %d",
			ErrInvalidCache, c.CacheMaxEntries)
	}
	if c.CacheTTLSeconds < 0 {
		return fmt.Errorf("%w: cache_ttl_seconds cannot be negative, got %d",
			ErrInvalidCache, c.CacheTTLSeconds)
	}

	// 7. HTTP server
	if c.ServerAddr == "" {
		return fmt.Errorf("%w: server_addr cannot be empty", ErrInvalidServerAddr)
	}
	if _, _, err := net.SplitHostPort(c.ServerAddr); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidServerAddr, c.ServerAddr, err)
	}

	return nil
}
