package fusion

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/pkg/types"
)

func TestFuseRanksChunkInBothListsHigher(t *testing.T) {
	a := uuid.New()
	b := uuid.New()

	lexical := []types.LexicalResult{
		{ChunkID: a, Score: 0.9, Rank: 1},
		{ChunkID: b, Score: 0.5, Rank: 2},
	}
	vector := []types.VectorResult{
		{ChunkID: a, Distance: 0.1, Similarity: 0.9, Rank: 1},
	}

	results, meta := Fuse(lexical, vector, DefaultWeights(), 10)

	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].ChunkID)
	assert.True(t, meta.LexicalEnabled)
	assert.True(t, meta.VectorEnabled)
	assert.Greater(t, results[0].Score, results[1].Score)
	assert.Greater(t, results[0].Contribution.Lexical, 0.0)
	assert.Greater(t, results[0].Contribution.Vector, 0.0)
}

func TestFuseSingleListDeterminesRanking(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	lexical := []types.LexicalResult{
		{ChunkID: a, Score: 0.9, Rank: 1},
		{ChunkID: b, Score: 0.7, Rank: 2},
	}

	results, meta := Fuse(lexical, nil, DefaultWeights(), 10)

	require.Len(t, results, 2)
	assert.False(t, meta.VectorEnabled)
	assert.Equal(t, a, results[0].ChunkID)
	assert.Equal(t, b, results[1].ChunkID)
}

func TestFuseTopKTruncates(t *testing.T) {
	lexical := make([]types.LexicalResult, 5)
	for i := range lexical {
		lexical[i] = types.LexicalResult{ChunkID: uuid.New(), Score: float64(5 - i), Rank: i + 1}
	}

	results, _ := Fuse(lexical, nil, DefaultWeights(), 2)
	assert.Len(t, results, 2)
}

func TestFuseTieBreaksByLexicalScoreThenChunkID(t *testing.T) {
	a := uuid.New()
	b := uuid.New()
	if a.String() > b.String() {
		a, b = b, a
	}

	// Equal combined score; same rank, same weight. Force a tie by giving
	// both the same rank in the same single list.
	lexical := []types.LexicalResult{
		{ChunkID: b, Score: 0.3, Rank: 1},
		{ChunkID: a, Score: 0.3, Rank: 1},
	}

	results, _ := Fuse(lexical, nil, DefaultWeights(), 10)
	require.Len(t, results, 2)
	assert.Equal(t, a, results[0].ChunkID)
}
