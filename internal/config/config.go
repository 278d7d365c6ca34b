// Package config holds the vectorstored configuration tree and its loader.
//
// Values are resolved in three layers: built-in defaults, an optional YAML
// file, then VECTORSTORED_* environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/vectorstored/internal/chunking"
)

// Config is the complete daemon configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Logging    LoggingConfig    `koanf:"logging"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Embeddings EmbeddingsConfig `koanf:"embeddings"`
	ChunkStore ChunkStoreConfig `koanf:"chunkstore"`
	Metadata   MetadataConfig   `koanf:"metadata"`
	Storage    StorageConfig    `koanf:"storage"`
	Ingest     IngestConfig     `koanf:"ingest"`
	Search     SearchConfig     `koanf:"search"`
	Expiry     ExpiryConfig     `koanf:"expiry"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
	MaxUploadMB     int      `koanf:"max_upload_mb"`
}

// LoggingConfig selects the log level and encoder.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	OTEL   bool   `koanf:"otel"`
}

// TelemetryConfig controls OpenTelemetry export.
type TelemetryConfig struct {
	Enabled        bool    `koanf:"enabled"`
	Endpoint       string  `koanf:"endpoint"`
	Protocol       string  `koanf:"protocol"` // grpc or http/protobuf
	Insecure       bool    `koanf:"insecure"`
	SampleRate     float64 `koanf:"sample_rate"`
	ServiceVersion string  `koanf:"service_version"`
}

// EmbeddingsConfig selects and tunes the embedding model.
type EmbeddingsConfig struct {
	Provider  string   `koanf:"provider"` // fastembed, tei or openai
	Model     string   `koanf:"model"`
	BaseURL   string   `koanf:"base_url"`
	APIKey    Secret   `koanf:"api_key"`
	Dimension int      `koanf:"dimension"`
	CacheDir  string   `koanf:"cache_dir"`
	Timeout   Duration `koanf:"timeout"`
	RateLimit float64  `koanf:"rate_limit"` // requests per second, 0 disables
	Burst     int      `koanf:"burst"`
	BatchSize int      `koanf:"batch_size"`

	QueryCacheSize int      `koanf:"query_cache_size"`
	QueryCacheTTL  Duration `koanf:"query_cache_ttl"`
}

// ChunkStoreConfig selects the chunk persistence backend.
type ChunkStoreConfig struct {
	Backend       string        `koanf:"backend"` // memory, chromem, qdrant, sqlite or postgres
	Chromem       ChromemConfig `koanf:"chromem"`
	Qdrant        QdrantConfig  `koanf:"qdrant"`
	DSN           string        `koanf:"dsn"`
	DeleteRetries int           `koanf:"delete_retries"`
}

// ChromemConfig configures the embedded chromem-go database.
type ChromemConfig struct {
	Path     string `koanf:"path"`
	Compress bool   `koanf:"compress"`
}

// QdrantConfig configures the Qdrant gRPC client.
type QdrantConfig struct {
	Host       string `koanf:"host"`
	Port       int    `koanf:"port"`
	APIKey     Secret `koanf:"api_key"`
	UseTLS     bool   `koanf:"use_tls"`
	Collection string `koanf:"collection"`
}

// MetadataConfig selects the relational store for vector stores and files.
type MetadataConfig struct {
	Backend string `koanf:"backend"` // memory, sqlite or postgres
	DSN     string `koanf:"dsn"`
}

// StorageConfig selects the object storage for uploaded files.
type StorageConfig struct {
	Backend string   `koanf:"backend"` // local or s3
	Root    string   `koanf:"root"`
	S3      S3Config `koanf:"s3"`
}

// S3Config configures an S3-compatible bucket.
type S3Config struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint"`
	Prefix          string `koanf:"prefix"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey Secret `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`
}

// IngestConfig tunes the ingestion orchestrator.
type IngestConfig struct {
	PersistWorkers    int               `koanf:"persist_workers"`
	KeepPartialChunks bool              `koanf:"keep_partial_chunks"`
	DefaultStrategy   chunking.Strategy `koanf:"default_strategy"`
	// Synchronous makes file attachment wait for ingestion to finish.
	Synchronous bool `koanf:"synchronous"`
}

// SearchConfig bounds similarity queries.
type SearchConfig struct {
	DefaultTopK int `koanf:"default_top_k"`
	MaxTopK     int `koanf:"max_top_k"`
}

// ExpiryConfig schedules the vector store expiry sweep.
type ExpiryConfig struct {
	Disabled bool   `koanf:"disabled"`
	Schedule string `koanf:"schedule"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults fills zero values.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = Duration(10 * time.Second)
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 512
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = "localhost:4317"
	}
	if cfg.Telemetry.Protocol == "" {
		cfg.Telemetry.Protocol = "grpc"
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = 1.0
	}
	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = "0.1.0"
	}

	if cfg.Embeddings.Provider == "" {
		cfg.Embeddings.Provider = "fastembed"
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "BAAI/bge-base-en-v1.5"
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = 768
	}
	if cfg.Embeddings.CacheDir == "" {
		cfg.Embeddings.CacheDir = "./local_cache"
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = Duration(30 * time.Second)
	}
	if cfg.Embeddings.Burst == 0 {
		cfg.Embeddings.Burst = 1
	}
	if cfg.Embeddings.BatchSize == 0 {
		cfg.Embeddings.BatchSize = 32
	}
	if cfg.Embeddings.QueryCacheSize == 0 {
		cfg.Embeddings.QueryCacheSize = 1024
	}
	if cfg.Embeddings.QueryCacheTTL == 0 {
		cfg.Embeddings.QueryCacheTTL = Duration(10 * time.Minute)
	}

	if cfg.ChunkStore.Backend == "" {
		cfg.ChunkStore.Backend = "chromem"
	}
	if cfg.ChunkStore.Chromem.Path == "" {
		cfg.ChunkStore.Chromem.Path = "./data/chunks"
	}
	if cfg.ChunkStore.Qdrant.Host == "" {
		cfg.ChunkStore.Qdrant.Host = "localhost"
	}
	if cfg.ChunkStore.Qdrant.Port == 0 {
		cfg.ChunkStore.Qdrant.Port = 6334
	}
	if cfg.ChunkStore.Qdrant.Collection == "" {
		cfg.ChunkStore.Qdrant.Collection = "vectorstored_chunks"
	}
	if cfg.ChunkStore.DeleteRetries == 0 {
		cfg.ChunkStore.DeleteRetries = 5
	}

	if cfg.Metadata.Backend == "" {
		cfg.Metadata.Backend = "sqlite"
	}
	if cfg.Metadata.DSN == "" && cfg.Metadata.Backend == "sqlite" {
		cfg.Metadata.DSN = "./data/metadata.db"
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = "local"
	}
	if cfg.Storage.Root == "" {
		cfg.Storage.Root = "./data/files"
	}
	if cfg.Storage.S3.Region == "" {
		cfg.Storage.S3.Region = "us-east-1"
	}

	if cfg.Ingest.PersistWorkers == 0 {
		cfg.Ingest.PersistWorkers = 4
	}
	cfg.Ingest.DefaultStrategy = cfg.Ingest.DefaultStrategy.Normalize()

	if cfg.Search.DefaultTopK == 0 {
		cfg.Search.DefaultTopK = 10
	}
	if cfg.Search.MaxTopK == 0 {
		cfg.Search.MaxTopK = 100
	}

	if cfg.Expiry.Schedule == "" {
		cfg.Expiry.Schedule = "@every 1h"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Server.MaxUploadMB < 0 {
		return fmt.Errorf("max_upload_mb must not be negative, got %d", c.Server.MaxUploadMB)
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format)
	}

	if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http/protobuf" {
		return fmt.Errorf("telemetry.protocol must be 'grpc' or 'http/protobuf', got %q", c.Telemetry.Protocol)
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be between 0 and 1, got %f", c.Telemetry.SampleRate)
	}

	switch c.Embeddings.Provider {
	case "fastembed":
	case "tei", "openai":
		if c.Embeddings.BaseURL == "" {
			return fmt.Errorf("embeddings.base_url is required for provider %q", c.Embeddings.Provider)
		}
	default:
		return fmt.Errorf("unknown embeddings provider %q", c.Embeddings.Provider)
	}
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embeddings.dimension must be positive, got %d", c.Embeddings.Dimension)
	}
	if c.Embeddings.RateLimit < 0 {
		return fmt.Errorf("embeddings.rate_limit must not be negative, got %f", c.Embeddings.RateLimit)
	}

	switch c.ChunkStore.Backend {
	case "memory", "chromem", "qdrant":
	case "sqlite", "postgres":
		if c.ChunkStore.DSN == "" {
			return fmt.Errorf("chunkstore.dsn is required for backend %q", c.ChunkStore.Backend)
		}
	default:
		return fmt.Errorf("unknown chunkstore backend %q", c.ChunkStore.Backend)
	}

	switch c.Metadata.Backend {
	case "memory":
	case "sqlite", "postgres":
		if c.Metadata.DSN == "" {
			return fmt.Errorf("metadata.dsn is required for backend %q", c.Metadata.Backend)
		}
	default:
		return fmt.Errorf("unknown metadata backend %q", c.Metadata.Backend)
	}

	switch c.Storage.Backend {
	case "local":
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required for backend \"s3\"")
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	if c.Ingest.PersistWorkers < 1 {
		return fmt.Errorf("ingest.persist_workers must be at least 1, got %d", c.Ingest.PersistWorkers)
	}
	if err := c.Ingest.DefaultStrategy.Validate(); err != nil {
		return fmt.Errorf("ingest.default_strategy: %w", err)
	}

	if c.Search.DefaultTopK < 1 || c.Search.DefaultTopK > c.Search.MaxTopK {
		return fmt.Errorf("search.default_top_k must be between 1 and max_top_k (%d), got %d",
			c.Search.MaxTopK, c.Search.DefaultTopK)
	}

	return nil
}
