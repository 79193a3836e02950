package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "mnemolite", cfg.Database.Name)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)

	assert.Equal(t, 768, cfg.Embedding.Dim)
	assert.Equal(t, "mock", cfg.Embedding.Mode)

	assert.Equal(t, 4, cfg.Indexing.Workers)
	assert.Equal(t, 16, cfg.Indexing.QueueCapacity)

	assert.Equal(t, int64(100*1024*1024), cfg.Cache.L1MaxBytes)
	assert.Equal(t, 5*time.Minute, cfg.Cache.L1TTL)
	assert.Equal(t, time.Hour, cfg.Cache.L2TTL)

	assert.Equal(t, 10*time.Second, cfg.Timeouts.ASTParse)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.EmbeddingSingle)
	assert.Equal(t, 300*time.Second, cfg.Timeouts.GraphConstruction)

	assert.Equal(t, 5, cfg.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.Breaker.RecoveryTimeout)

	assert.InDelta(t, 0.4, cfg.Hybrid.LexicalWeight, 1e-9)
	assert.InDelta(t, 0.6, cfg.Hybrid.VectorWeight, 1e-9)
	assert.Equal(t, 60, cfg.Hybrid.RRFK)

	assert.Equal(t, 100, cfg.Vector.EFSearch)
	assert.InDelta(t, 0.1, cfg.Lexical.SimilarityThreshold, 1e-9)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("EMBEDDING_DIM", "1536")
	t.Setenv("INDEXING_WORKERS", "8")
	t.Setenv("VECTOR_EF_SEARCH", "200")
	t.Setenv("HYBRID_LEXICAL_WEIGHT", "0.5")
	t.Setenv("HYBRID_VECTOR_WEIGHT", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 1536, cfg.Embedding.Dim)
	assert.Equal(t, 8, cfg.Indexing.Workers)
	assert.Equal(t, 200, cfg.Vector.EFSearch)
	assert.InDelta(t, 0.5, cfg.Hybrid.LexicalWeight, 1e-9)
}

func TestValidateRejectsBadEmbeddingMode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Embedding.Mode = "bogus"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWorkers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Indexing.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsOutOfRangeEFSearch(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Vector.EFSearch = 5
	assert.Error(t, cfg.Validate())

	cfg.Vector.EFSearch = 5000
	assert.Error(t, cfg.Validate())
}

func TestDatabaseDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Database.Password = "secret"
	dsn := cfg.Database.DSN()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=mnemolite")
	assert.Contains(t, dsn, "password=secret")
}

func TestMain(m *testing.M) {
	code := m.Run()
	os.Exit(code)
}
