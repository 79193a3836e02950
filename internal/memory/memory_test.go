package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/pkg/types"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) Embed(ctx context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = s.vec
	}
	return out, nil
}

func (s stubEmbedder) Dimensions() int { return len(s.vec) }

func TestEmbedTextReturnsVectorOnSuccess(t *testing.T) {
	store := &Store{embeds: stubEmbedder{vec: []float32{0.1, 0.2, 0.3}}}
	vec, err := store.embedText(context.Background(), "title", "content")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestEmbedTextDegradesOnFailure(t *testing.T) {
	store := &Store{embeds: stubEmbedder{err: errors.New("provider down")}}
	vec, err := store.embedText(context.Background(), "title", "content")
	require.NoError(t, err)
	assert.Nil(t, vec)
}

func TestEmbedSetsMemoryEmbedding(t *testing.T) {
	store := &Store{embeds: stubEmbedder{vec: []float32{1, 2}}}
	m := &types.Memory{Title: "t", Content: "c"}
	require.NoError(t, store.embed(context.Background(), m))
	assert.Equal(t, []float32{1, 2}, m.Embedding)
}
