package embeddings

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/internal/circuitbreaker"
	"mnemolite/pkg/types"
)

func TestMockServiceDeterministicAndNormalized(t *testing.T) {
	svc := NewMockService(32, 100, time.Hour)

	v1, err := svc.Embed(context.Background(), types.DomainCode, []string{"func main() {}"})
	require.NoError(t, err)
	v2, err := svc.Embed(context.Background(), types.DomainCode, []string{"func main() {}"})
	require.NoError(t, err)
	assert.Equal(t, v1, v2)

	var sumSq float64
	for _, x := range v1[0] {
		assert.False(t, math.IsNaN(float64(x)))
		assert.False(t, math.IsInf(float64(x), 0))
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestMockServiceDomainChangesVector(t *testing.T) {
	svc := NewMockService(16, 100, time.Hour)

	code, err := svc.Embed(context.Background(), types.DomainCode, []string{"same text"})
	require.NoError(t, err)
	text, err := svc.Embed(context.Background(), types.DomainText, []string{"same text"})
	require.NoError(t, err)
	assert.NotEqual(t, code[0], text[0])
}

func TestMockServiceRejectsInvalidDomain(t *testing.T) {
	svc := NewMockService(16, 100, time.Hour)
	_, err := svc.Embed(context.Background(), types.EmbeddingDomain("BOGUS"), []string{"x"})
	assert.Error(t, err)
}

func TestCacheHitAvoidsProviderCall(t *testing.T) {
	svc := NewMockService(8, 100, time.Hour)
	ctx := context.Background()

	_, err := svc.Embed(ctx, types.DomainText, []string{"hello"})
	require.NoError(t, err)
	stats := svc.CacheStats()
	assert.Equal(t, int64(0), stats.Hits)

	_, err = svc.Embed(ctx, types.DomainText, []string{"hello"})
	require.NoError(t, err)
	stats = svc.CacheStats()
	assert.Equal(t, int64(1), stats.Hits)
}

func TestBatchPreservesOrderAndMixesCacheHitsMisses(t *testing.T) {
	svc := NewMockService(8, 100, time.Hour)
	ctx := context.Background()

	_, err := svc.Embed(ctx, types.DomainText, []string{"a"})
	require.NoError(t, err)

	results, err := svc.Embed(ctx, types.DomainText, []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, results, 3)

	solo, err := svc.Embed(ctx, types.DomainText, []string{"b"})
	require.NoError(t, err)
	assert.Equal(t, solo[0], results[1])
}

func TestHTTPProviderCallsConfiguredEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"object":"list","data":[{"object":"embedding","index":0,"embedding":[0.1,0.2,0.3]}],"model":"text-embedding-3-small"}`))
	}))
	defer server.Close()

	svc := NewHTTPService(HTTPConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "text-embedding-3-small",
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	}, nil, 100, time.Hour)

	results, err := svc.Embed(context.Background(), types.DomainCode, []string{"package main"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Len(t, results[0], 3)
}

func TestHTTPProviderOpensBreakerAfterFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewHTTPService(HTTPConfig{
		APIKey:     "test-key",
		BaseURL:    server.URL,
		Model:      "text-embedding-3-small",
		Timeout:    time.Second,
		MaxRetries: 1,
	}, nil, 100, time.Hour)

	for i := 0; i < 10; i++ {
		_, _ = svc.Embed(context.Background(), types.DomainCode, []string{"fails"})
	}
	_, err := svc.Embed(context.Background(), types.DomainCode, []string{"another distinct text"})
	require.Error(t, err)
	assert.Equal(t, circuitbreaker.StateOpen, svc.Breaker().GetState())
}
