package chunking

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/pkg/types"
)

func TestChunkTypeScriptFunction(t *testing.T) {
	src := []byte(`export function validateUser(email: string): boolean {
  if (!email) return false;
  return email.includes('@');
}
`)
	c := New(DefaultOptions())
	defer c.Close()

	results, err := c.Chunk(context.Background(), src, types.LanguageTypeScript, "user.ts")
	require.NoError(t, err)
	require.Len(t, results, 1)

	chunk := results[0].Chunk
	assert.Equal(t, "validateUser", chunk.Name)
	assert.Equal(t, types.ChunkTypeFunction, chunk.ChunkType)
	assert.Equal(t, 1, chunk.StartLine)

	extractor := NewExtractor()
	meta := extractor.Extract(results[0])
	sig, ok := meta["signature"].(types.Signature)
	require.True(t, ok)
	assert.False(t, sig.IsAsync)

	complexity, ok := meta["complexity"].(types.Complexity)
	require.True(t, ok)
	assert.GreaterOrEqual(t, complexity.Cyclomatic, 2)
}

func TestChunkGoMethodNamePath(t *testing.T) {
	src := []byte(`package widget

type Gadget struct{}

func (g *Gadget) Spin(times int) int {
	total := 0
	for i := 0; i < times; i++ {
		total += i
	}
	return total
}
`)
	c := New(DefaultOptions())
	defer c.Close()

	results, err := c.Chunk(context.Background(), src, types.LanguageGo, "gadget.go")
	require.NoError(t, err)
	require.Len(t, results, 1)

	chunk := results[0].Chunk
	assert.Equal(t, types.ChunkTypeMethod, chunk.ChunkType)
	assert.Equal(t, "Spin", chunk.Name)
	assert.Equal(t, "Gadget.Spin", chunk.NamePath)
}

func TestChunkEmptySourceProducesNoChunks(t *testing.T) {
	c := New(DefaultOptions())
	defer c.Close()

	results, err := c.Chunk(context.Background(), []byte("   \n\t\n"), types.LanguageGo, "empty.go")
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestChunkUnsupportedLanguageFallsBack(t *testing.T) {
	src := []byte(strings.Repeat("line of text\n", 5))
	c := New(DefaultOptions())
	defer c.Close()

	results, err := c.Chunk(context.Background(), src, types.LanguageUnknown, "notes.txt")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, types.ChunkTypeFallbackBlock, results[0].Chunk.ChunkType)
	assert.Equal(t, true, results[0].Chunk.Metadata["fallback"])
}

func TestFallbackWindowingOverlaps(t *testing.T) {
	lines := make([]string, 150)
	for i := range lines {
		lines[i] = "x"
	}
	src := []byte(strings.Join(lines, "\n"))

	fc := newFallbackChunker(60, 15)
	results := fc.chunk(src, "big.txt", "ast_parsing_failed")
	require.True(t, len(results) >= 3)
	assert.Equal(t, 1, results[0].Chunk.StartLine)
	assert.Equal(t, 60, results[0].Chunk.EndLine)
	assert.Equal(t, 46, results[1].Chunk.StartLine) // stride = 60-15
}

func TestDuplicateNamePathDisambiguatedByLineRange(t *testing.T) {
	src := []byte(`package pkg

func Foo() {}

type wrapper struct{}
`)
	col := newCollector()
	first := col.namePath(types.ChunkTypeFunction, "Foo", 3, 3)
	second := col.namePath(types.ChunkTypeFunction, "Foo", 10, 12)
	assert.Equal(t, "Foo", first)
	assert.Equal(t, "Foo:L10-12", second)
	_ = src
}
