// Package embeddings implements C4: turning chunk/query text into fixed-size
// vectors, with a process-local cache, a deterministic mock provider for
// tests and offline use, and an HTTP-backed real provider guarded by a
// circuit breaker. Grounded on the teacher's internal/embeddings package.
package embeddings

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"mnemolite/internal/circuitbreaker"
	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/internal/logging"
	"mnemolite/pkg/types"
)

// Service is the C4 contract: Embed turns texts into L2-normalized vectors
// of a provider-fixed dimension. Callers batch texts of the same domain
// together; the returned slice preserves input order and length.
type Service interface {
	Embed(ctx context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error)
	Dimensions() int
}

// rawProvider is what a concrete backend (mock or HTTP) implements. Service
// wraps a rawProvider with caching, circuit-breaking, and vector hygiene
// (normalization, NaN/Inf guards) common to every backend.
type rawProvider interface {
	embed(ctx context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error)
	dimensions() int
}

// CachedService composes a rawProvider with an LRU cache and, for remote
// backends, a circuit breaker. It is the only exported constructor path;
// callers never construct MockProvider/HTTPProvider directly.
type CachedService struct {
	provider rawProvider
	cache    *Cache
	breaker  *circuitbreaker.CircuitBreaker // nil for the mock provider
	dep      string
}

// NewMockService returns a Service backed by the deterministic hash-based
// mock provider. No circuit breaker is attached: the mock never fails.
func NewMockService(dim int, cacheSize int, cacheTTL time.Duration) *CachedService {
	return &CachedService{
		provider: &MockProvider{dim: dim},
		cache:    NewCache(cacheSize, cacheTTL),
	}
}

// NewHTTPService returns a Service backed by an HTTP embedding API, wrapped
// in a circuit breaker with SuccessThreshold=1: the spec's half-open state
// closes on a single success, not the package default of two.
func NewHTTPService(cfg HTTPConfig, breakerCfg *circuitbreaker.Config, cacheSize int, cacheTTL time.Duration) *CachedService {
	if breakerCfg == nil {
		breakerCfg = circuitbreaker.DefaultConfig()
	}
	breakerCfg.SuccessThreshold = 1

	return &CachedService{
		provider: NewHTTPProvider(cfg),
		cache:    NewCache(cacheSize, cacheTTL),
		breaker:  circuitbreaker.New(breakerCfg),
		dep:      "embedding-provider",
	}
}

func (s *CachedService) Dimensions() int { return s.provider.dimensions() }

// Breaker returns the circuit breaker guarding the underlying provider, or
// nil for the mock provider (which never fails). Used by the kernel to
// surface embedding-provider health via Health().
func (s *CachedService) Breaker() *circuitbreaker.CircuitBreaker { return s.breaker }

// Embed resolves each text against the cache, then asks the provider for
// whatever is missing in one batched call, preserving the caller's order.
func (s *CachedService) Embed(ctx context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error) {
	if !domain.Valid() {
		return nil, mnemoerrors.New(mnemoerrors.KindInvalidArgument, fmt.Sprintf("invalid embedding domain %q", domain))
	}
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if v, ok := s.cache.Get(domain, text); ok {
			out[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	if len(missTexts) == 0 {
		return out, nil
	}

	fetched, err := s.fetch(ctx, domain, missTexts)
	if err != nil {
		return nil, err
	}
	for j, idx := range missIdx {
		vec := sanitize(fetched[j])
		out[idx] = vec
		s.cache.Set(domain, missTexts[j], vec)
	}
	return out, nil
}

func (s *CachedService) fetch(ctx context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error) {
	if s.breaker == nil {
		return s.provider.embed(ctx, domain, texts)
	}

	var result [][]float32
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		var innerErr error
		result, innerErr = s.provider.embed(ctx, domain, texts)
		return innerErr
	})
	if err == circuitbreaker.ErrCircuitOpen || err == circuitbreaker.ErrTooManyConcurrentRequests {
		return nil, mnemoerrors.NewCircuitOpen(s.dep)
	}
	if err != nil {
		logging.EmbeddingLogger.WithError(err).Error("embedding provider call failed")
		return nil, mnemoerrors.Wrap(mnemoerrors.KindEmbeddingUnavailable, "generate embeddings", err)
	}
	return result, nil
}

// CacheStats exposes the process-local cache's hit-rate counters.
func (s *CachedService) CacheStats() Stats { return s.cache.Stats() }

// sanitize clamps NaN/Inf to 0 and L2-normalizes the vector so cosine
// distance in storage is well-defined; a text whose vector norm is zero
// stays the zero vector rather than dividing by zero.
func sanitize(v []float32) []float32 {
	out := make([]float32, len(v))
	var sumSq float64
	for i, x := range v {
		if math.IsNaN(float64(x)) || math.IsInf(float64(x), 0) {
			x = 0
		}
		out[i] = x
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return out
	}
	for i, x := range out {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// MockProvider produces deterministic, dimension-fixed vectors derived from
// a sha256 hash of the input text, so the same (domain, text) pair always
// yields the same embedding without a network call. Grounded on the
// teacher's httptest-based fakes for the same concern (a stand-in backend
// with fixed, reproducible output), adapted from an HTTP fake to an
// in-process one since no I/O is needed to be deterministic here.
type MockProvider struct {
	dim int
}

func (m *MockProvider) dimensions() int {
	if m.dim <= 0 {
		return 768
	}
	return m.dim
}

func (m *MockProvider) embed(_ context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error) {
	dim := m.dimensions()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(domain, text, dim)
	}
	return out, nil
}

// deterministicVector expands a sha256 digest of (domain, text) into dim
// pseudo-random floats in [-1, 1] via a simple counter-mode stretch.
func deterministicVector(domain types.EmbeddingDomain, text string, dim int) []float32 {
	seed := sha256.Sum256([]byte(string(domain) + "\x00" + text))
	vec := make([]float32, dim)
	block := seed[:]
	counter := uint32(0)
	for i := 0; i < dim; i++ {
		if i%8 == 0 {
			var buf bytes.Buffer
			buf.Write(seed[:])
			_ = binary.Write(&buf, binary.LittleEndian, counter)
			h := sha256.Sum256(buf.Bytes())
			block = h[:]
			counter++
		}
		b := block[(i%8)*4 : (i%8)*4+4]
		u := binary.LittleEndian.Uint32(b)
		vec[i] = float32(u)/float32(math.MaxUint32)*2 - 1
	}
	return vec
}

// HTTPConfig configures the real-mode HTTP embedding provider.
type HTTPConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Dim        int
	Timeout    time.Duration
	MaxRetries int
}

// HTTPProvider calls an OpenAI-compatible embeddings endpoint over plain
// net/http, following the shape of the teacher's OpenAIService: a JSON
// request body of {input, model}, a Bearer auth header, and a response of
// {data: [{embedding}]}. No SDK dependency, matching the teacher's own
// dependency-free embedding client.
type HTTPProvider struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPProvider(cfg HTTPConfig) *HTTPProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	return &HTTPProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *HTTPProvider) dimensions() int {
	switch p.cfg.Model {
	case "text-embedding-3-large":
		return 3072
	case "text-embedding-ada-002", "text-embedding-3-small":
		return 1536
	default:
		if p.cfg.Dim > 0 {
			return p.cfg.Dim
		}
		return 1536
	}
}

type openAIRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

type openAIResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// embed ignores domain: a single hosted model serves both TEXT and CODE
// inputs for the HTTP backend (unlike the mock, which varies output by
// domain purely to keep test fixtures distinguishable).
func (p *HTTPProvider) embed(ctx context.Context, _ types.EmbeddingDomain, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}
		vectors, err := p.call(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (p *HTTPProvider) call(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(openAIRequest{Input: texts, Model: p.cfg.Model})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call embedding endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("embedding endpoint returned %d: %s", resp.StatusCode, string(data))
	}

	var parsed openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("embedding endpoint returned %d vectors for %d inputs", len(parsed.Data), len(texts))
	}

	out := make([][]float32, len(texts))
	for _, d := range parsed.Data {
		if d.Index < 0 || d.Index >= len(out) {
			continue
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}
