// Package config provides configuration management for the retrieval
// engine, handling environment variables, .env files, and defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config is the top-level configuration for the engine.
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Embedding EmbeddingConfig `json:"embedding"`
	Indexing  IndexingConfig  `json:"indexing"`
	Cache     CacheConfig     `json:"cache"`
	Timeouts  TimeoutsConfig  `json:"timeouts"`
	Breaker   BreakerConfig   `json:"breaker"`
	Hybrid    HybridConfig    `json:"hybrid"`
	Vector    VectorConfig    `json:"vector"`
	Lexical   LexicalConfig   `json:"lexical"`
	Logging   LoggingConfig   `json:"logging"`
}

// DatabaseConfig holds the PostgreSQL+pgvector connection settings owned
// exclusively by the storage gateway.
type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"-"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	QueryTimeout    time.Duration `json:"query_timeout"`
}

// DSN builds the lib/pq connection string from the configured fields.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		d.Host, d.Port, d.Name, d.User, d.Password, d.SSLMode)
}

// EmbeddingConfig controls the embedding provider and its process-local cache.
type EmbeddingConfig struct {
	Dim       int           `json:"dim"`
	Mode      string        `json:"mode"` // "real" or "mock"
	CacheSize int           `json:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl"`

	// Real-mode HTTP provider settings.
	APIKey         string        `json:"-"`
	BaseURL        string        `json:"base_url"`
	Model          string        `json:"model"`
	RequestTimeout time.Duration `json:"request_timeout"`
	MaxRetries     int           `json:"max_retries"`
}

// IndexingConfig controls the worker pool driving the indexing pipeline.
type IndexingConfig struct {
	Workers        int `json:"workers"`
	QueueCapacity  int `json:"queue_capacity"`
}

// CacheConfig configures the three cascade-cache tiers.
type CacheConfig struct {
	L1MaxBytes int64         `json:"l1_max_bytes"`
	L1TTL      time.Duration `json:"l1_ttl"`
	L2URL      string        `json:"l2_url"`
	L2TTL      time.Duration `json:"l2_ttl"`
}

// TimeoutsConfig holds the per-operation deadlines enforced by the
// timeout/breaker kernel.
type TimeoutsConfig struct {
	ASTParse          time.Duration `json:"ast_parse"`
	EmbeddingSingle   time.Duration `json:"embedding_single"`
	EmbeddingBatch    time.Duration `json:"embedding_batch"`
	GraphConstruction time.Duration `json:"graph_construction"`
	GraphTraversal    time.Duration `json:"graph_traversal"`
	IndexFile         time.Duration `json:"index_file"`
	LexicalSearch     time.Duration `json:"lexical_search"`
	VectorSearch      time.Duration `json:"vector_search"`
	HybridSearch      time.Duration `json:"hybrid_search"`
}

// BreakerConfig configures the circuit breakers wrapping the embedding
// provider and the L2 cache.
type BreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout"`
}

// HybridConfig configures RRF fusion weights.
type HybridConfig struct {
	LexicalWeight float64 `json:"lexical_weight"`
	VectorWeight  float64 `json:"vector_weight"`
	RRFK          int     `json:"rrf_k"`
}

// VectorConfig configures HNSW query-time parameters.
type VectorConfig struct {
	EFSearch int `json:"ef_search"`
}

// LexicalConfig configures trigram search thresholds.
type LexicalConfig struct {
	SimilarityThreshold float64 `json:"similarity_threshold"`
}

// LoggingConfig controls the ambient structured logger.
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig returns the configuration used when no environment
// overrides are present.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "mnemolite",
			User:            "postgres",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Dim:            768,
			Mode:           "mock",
			CacheSize:      10000,
			CacheTTL:       24 * time.Hour,
			BaseURL:        "https://api.openai.com/v1",
			Model:          "text-embedding-3-small",
			RequestTimeout: 30 * time.Second,
			MaxRetries:     3,
		},
		Indexing: IndexingConfig{
			Workers:       4,
			QueueCapacity: 16,
		},
		Cache: CacheConfig{
			L1MaxBytes: 100 * 1024 * 1024,
			L1TTL:      5 * time.Minute,
			L2URL:      "redis://localhost:6379/0",
			L2TTL:      time.Hour,
		},
		Timeouts: TimeoutsConfig{
			ASTParse:          10 * time.Second,
			EmbeddingSingle:   5 * time.Second,
			EmbeddingBatch:    30 * time.Second,
			GraphConstruction: 300 * time.Second,
			GraphTraversal:    10 * time.Second,
			IndexFile:         60 * time.Second,
			LexicalSearch:     5 * time.Second,
			VectorSearch:      5 * time.Second,
			HybridSearch:      10 * time.Second,
		},
		Breaker: BreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
		},
		Hybrid: HybridConfig{
			LexicalWeight: 0.4,
			VectorWeight:  0.6,
			RRFK:          60,
		},
		Vector: VectorConfig{
			EFSearch: 100,
		},
		Lexical: LexicalConfig{
			SimilarityThreshold: 0.1,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig loads configuration from a .env file (if present) and the
// environment, layered over DefaultConfig.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := DefaultConfig()
	loadDatabaseConfig(cfg)
	loadEmbeddingConfig(cfg)
	loadIndexingConfig(cfg)
	loadCacheConfig(cfg)
	loadTimeoutsConfig(cfg)
	loadBreakerConfig(cfg)
	loadHybridConfig(cfg)
	loadVectorAndLexicalConfig(cfg)
	loadLoggingConfig(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func loadDatabaseConfig(cfg *Config) {
	cfg.Database.Host = getStringEnvWithDefault("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getIntEnvWithDefault("DB_PORT", cfg.Database.Port)
	cfg.Database.Name = getStringEnvWithDefault("DB_NAME", cfg.Database.Name)
	cfg.Database.User = getStringEnvWithDefault("DB_USER", cfg.Database.User)
	cfg.Database.Password = getStringEnvWithDefault("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.SSLMode = getStringEnvWithDefault("DB_SSLMODE", cfg.Database.SSLMode)
	cfg.Database.MaxOpenConns = getIntEnvWithDefault("DB_MAX_OPEN_CONNS", cfg.Database.MaxOpenConns)
	cfg.Database.MaxIdleConns = getIntEnvWithDefault("DB_MAX_IDLE_CONNS", cfg.Database.MaxIdleConns)
	cfg.Database.ConnMaxLifetime = getDurationEnvWithDefault("DB_CONN_MAX_LIFETIME", cfg.Database.ConnMaxLifetime)
	cfg.Database.ConnMaxIdleTime = getDurationEnvWithDefault("DB_CONN_MAX_IDLE_TIME", cfg.Database.ConnMaxIdleTime)
	cfg.Database.QueryTimeout = getDurationEnvWithDefault("DB_QUERY_TIMEOUT", cfg.Database.QueryTimeout)
}

func loadEmbeddingConfig(cfg *Config) {
	cfg.Embedding.Dim = getIntEnvWithDefault("EMBEDDING_DIM", cfg.Embedding.Dim)
	cfg.Embedding.Mode = getStringEnvWithDefault("EMBEDDING_MODE", cfg.Embedding.Mode)
	cfg.Embedding.CacheSize = getIntEnvWithDefault("EMBEDDING_CACHE_SIZE", cfg.Embedding.CacheSize)
	cfg.Embedding.CacheTTL = getDurationEnvWithDefault("EMBEDDING_CACHE_TTL", cfg.Embedding.CacheTTL)
	cfg.Embedding.APIKey = getStringEnvWithDefault("EMBEDDING_API_KEY", cfg.Embedding.APIKey)
	cfg.Embedding.BaseURL = getStringEnvWithDefault("EMBEDDING_BASE_URL", cfg.Embedding.BaseURL)
	cfg.Embedding.Model = getStringEnvWithDefault("EMBEDDING_MODEL", cfg.Embedding.Model)
	cfg.Embedding.RequestTimeout = getDurationEnvWithDefault("EMBEDDING_REQUEST_TIMEOUT", cfg.Embedding.RequestTimeout)
	cfg.Embedding.MaxRetries = getIntEnvWithDefault("EMBEDDING_MAX_RETRIES", cfg.Embedding.MaxRetries)
}

func loadIndexingConfig(cfg *Config) {
	cfg.Indexing.Workers = getIntEnvWithDefault("INDEXING_WORKERS", cfg.Indexing.Workers)
	cfg.Indexing.QueueCapacity = getIntEnvWithDefault("INDEXING_QUEUE_CAPACITY", 4*cfg.Indexing.Workers)
}

func loadCacheConfig(cfg *Config) {
	cfg.Cache.L1MaxBytes = getInt64EnvWithDefault("CACHE_L1_MAX_BYTES", cfg.Cache.L1MaxBytes)
	cfg.Cache.L1TTL = getDurationEnvWithDefault("CACHE_L1_TTL", cfg.Cache.L1TTL)
	cfg.Cache.L2URL = getStringEnvWithDefault("CACHE_L2_URL", cfg.Cache.L2URL)
	cfg.Cache.L2TTL = getDurationEnvWithDefault("CACHE_L2_TTL", cfg.Cache.L2TTL)
}

func loadTimeoutsConfig(cfg *Config) {
	cfg.Timeouts.ASTParse = getDurationEnvWithDefault("TIMEOUT_AST_PARSE", cfg.Timeouts.ASTParse)
	cfg.Timeouts.EmbeddingSingle = getDurationEnvWithDefault("TIMEOUT_EMBEDDING_SINGLE", cfg.Timeouts.EmbeddingSingle)
	cfg.Timeouts.EmbeddingBatch = getDurationEnvWithDefault("TIMEOUT_EMBEDDING_BATCH", cfg.Timeouts.EmbeddingBatch)
	cfg.Timeouts.GraphConstruction = getDurationEnvWithDefault("TIMEOUT_GRAPH_CONSTRUCTION", cfg.Timeouts.GraphConstruction)
	cfg.Timeouts.GraphTraversal = getDurationEnvWithDefault("TIMEOUT_GRAPH_TRAVERSAL", cfg.Timeouts.GraphTraversal)
	cfg.Timeouts.IndexFile = getDurationEnvWithDefault("TIMEOUT_INDEX_FILE", cfg.Timeouts.IndexFile)
	cfg.Timeouts.LexicalSearch = getDurationEnvWithDefault("TIMEOUT_LEXICAL_SEARCH", cfg.Timeouts.LexicalSearch)
	cfg.Timeouts.VectorSearch = getDurationEnvWithDefault("TIMEOUT_VECTOR_SEARCH", cfg.Timeouts.VectorSearch)
	cfg.Timeouts.HybridSearch = getDurationEnvWithDefault("TIMEOUT_HYBRID_SEARCH", cfg.Timeouts.HybridSearch)
}

func loadBreakerConfig(cfg *Config) {
	cfg.Breaker.FailureThreshold = getIntEnvWithDefault("BREAKER_FAILURE_THRESHOLD", cfg.Breaker.FailureThreshold)
	cfg.Breaker.RecoveryTimeout = getDurationEnvWithDefault("BREAKER_RECOVERY_TIMEOUT_S", cfg.Breaker.RecoveryTimeout)
}

func loadHybridConfig(cfg *Config) {
	cfg.Hybrid.LexicalWeight = getFloatEnvWithDefault("HYBRID_LEXICAL_WEIGHT", cfg.Hybrid.LexicalWeight)
	cfg.Hybrid.VectorWeight = getFloatEnvWithDefault("HYBRID_VECTOR_WEIGHT", cfg.Hybrid.VectorWeight)
	cfg.Hybrid.RRFK = getIntEnvWithDefault("RRF_K", cfg.Hybrid.RRFK)
}

func loadVectorAndLexicalConfig(cfg *Config) {
	cfg.Vector.EFSearch = getIntEnvWithDefault("VECTOR_EF_SEARCH", cfg.Vector.EFSearch)
	cfg.Lexical.SimilarityThreshold = getFloatEnvWithDefault("LEXICAL_SIMILARITY_THRESHOLD", cfg.Lexical.SimilarityThreshold)
}

func loadLoggingConfig(cfg *Config) {
	cfg.Logging.Level = getStringEnvWithDefault("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getStringEnvWithDefault("LOG_FORMAT", cfg.Logging.Format)
}

// Validate checks the configuration for internally inconsistent values.
func (c *Config) Validate() error {
	if c.Embedding.Dim <= 0 {
		return fmt.Errorf("embedding.dim must be positive, got %d", c.Embedding.Dim)
	}
	if c.Embedding.Mode != "real" && c.Embedding.Mode != "mock" {
		return fmt.Errorf("embedding.mode must be 'real' or 'mock', got %q", c.Embedding.Mode)
	}
	if c.Indexing.Workers <= 0 {
		return fmt.Errorf("indexing.workers must be positive, got %d", c.Indexing.Workers)
	}
	if c.Vector.EFSearch < 10 || c.Vector.EFSearch > 1000 {
		return fmt.Errorf("vector.ef_search must be in [10,1000], got %d", c.Vector.EFSearch)
	}
	if c.Hybrid.LexicalWeight < 0 || c.Hybrid.LexicalWeight > 1 {
		return fmt.Errorf("hybrid.lexical_weight must be in [0,1], got %f", c.Hybrid.LexicalWeight)
	}
	if c.Hybrid.VectorWeight < 0 || c.Hybrid.VectorWeight > 1 {
		return fmt.Errorf("hybrid.vector_weight must be in [0,1], got %f", c.Hybrid.VectorWeight)
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failure_threshold must be positive, got %d", c.Breaker.FailureThreshold)
	}
	return nil
}

func getStringEnvWithDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnvWithDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getDurationEnvWithDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
