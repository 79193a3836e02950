package embeddings

import (
	"mnemolite/internal/circuitbreaker"
	"mnemolite/internal/config"
)

// NewFromConfig builds the Service the engine should use: a mock provider
// in "mock" mode (default, offline-friendly), or the HTTP provider wrapped
// in a breaker configured from cfg.Breaker in "real" mode.
func NewFromConfig(cfg *config.Config) Service {
	if cfg.Embedding.Mode != "real" {
		return NewMockService(cfg.Embedding.Dim, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
	}

	httpCfg := HTTPConfig{
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Model:      cfg.Embedding.Model,
		Dim:        cfg.Embedding.Dim,
		Timeout:    cfg.Embedding.RequestTimeout,
		MaxRetries: cfg.Embedding.MaxRetries,
	}
	breakerCfg := &circuitbreaker.Config{
		FailureThreshold:      cfg.Breaker.FailureThreshold,
		SuccessThreshold:      1,
		Timeout:               cfg.Breaker.RecoveryTimeout,
		MaxConcurrentRequests: 1,
	}
	return NewHTTPService(httpCfg, breakerCfg, cfg.Embedding.CacheSize, cfg.Embedding.CacheTTL)
}
