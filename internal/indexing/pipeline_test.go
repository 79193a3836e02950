package indexing

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/internal/embeddings"
	"mnemolite/pkg/types"
)

func TestTextDescriptionPrefersNamePath(t *testing.T) {
	c := types.Chunk{ChunkType: types.ChunkTypeMethod, Name: "Save", NamePath: "Widget.Save", FilePath: "widget.go"}
	assert.Equal(t, "method Widget.Save in widget.go", textDescription(c))
}

func TestTextDescriptionFallsBackToName(t *testing.T) {
	c := types.Chunk{ChunkType: types.ChunkTypeFunction, Name: "helper", FilePath: "util.py"}
	assert.Equal(t, "function helper in util.py", textDescription(c))
}

func TestFilterByLanguageEmptyMeansAll(t *testing.T) {
	files := []discoveredFile{{relPath: "a.go", language: types.LanguageGo}, {relPath: "b.py", language: types.LanguagePython}}
	out := filterByLanguage(files, nil)
	assert.Len(t, out, 2)
}

func TestFilterByLanguageRestricts(t *testing.T) {
	files := []discoveredFile{{relPath: "a.go", language: types.LanguageGo}, {relPath: "b.py", language: types.LanguagePython}}
	out := filterByLanguage(files, []types.Language{types.LanguageGo})
	require.Len(t, out, 1)
	assert.Equal(t, "a.go", out[0].relPath)
}

func TestExtOf(t *testing.T) {
	assert.Equal(t, ".go", extOf("pkg/main.go"))
	assert.Equal(t, "", extOf("pkg/Makefile"))
	assert.Equal(t, ".py", extOf("b.py"))
}

func TestEmbedBatchFillsBothDomains(t *testing.T) {
	p := &Pipeline{}
	svc := embeddings.NewMockService(8, 100, time.Minute)

	chunks := []types.Chunk{
		{ID: uuid.New(), Name: "f", NamePath: "f", FilePath: "a.go", SourceCode: "func f() {}"},
		{ID: uuid.New(), Name: "g", NamePath: "g", FilePath: "a.go", SourceCode: "func g() {}"},
	}

	p.embedBatch(context.Background(), svc, chunks)

	for _, c := range chunks {
		require.Len(t, c.EmbeddingText, 8)
		require.Len(t, c.EmbeddingCode, 8)
	}
}

func TestEmbedBatchLeavesNilOnFailure(t *testing.T) {
	p := &Pipeline{}
	chunks := []types.Chunk{
		{ID: uuid.New(), Name: "f", NamePath: "f", FilePath: "a.go", SourceCode: "func f() {}"},
	}

	p.embedBatch(context.Background(), failingEmbedder{}, chunks)

	assert.Nil(t, chunks[0].EmbeddingText)
	assert.Nil(t, chunks[0].EmbeddingCode)
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(ctx context.Context, domain types.EmbeddingDomain, texts []string) ([][]float32, error) {
	return nil, assertErr
}

func (failingEmbedder) Dimensions() int { return 8 }

var assertErr = embeddingFailure("embedding provider unavailable")

type embeddingFailure string

func (e embeddingFailure) Error() string { return string(e) }
