package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/pkg/types"
)

func TestNewGatewayFromDBConfiguresDefaults(t *testing.T) {
	g := NewGatewayFromDB(nil, 768)
	assert.Equal(t, 768, g.dim)
	assert.Equal(t, 100, g.efSearch)
	assert.InDelta(t, 0.1, g.lexicalThreshold, 1e-9)
	require.NotNil(t, g.retrier)
}

func TestAppendFilterConditionsEmpty(t *testing.T) {
	var args []interface{}
	conds := appendFilterConditions(types.Filters{}, &args)
	assert.Empty(t, conds)
	assert.Empty(t, args)
	assert.Equal(t, "", whereClause(conds))
}

func TestAppendFilterConditionsBuildsPlaceholdersInOrder(t *testing.T) {
	var args []interface{}
	args = append(args, "seed")

	f := types.Filters{
		Language:   types.LanguageGo,
		ChunkType:  types.ChunkTypeFunction,
		Repository: "acme/widgets",
		FilePath:   "main.go",
		ReturnType: "error",
	}
	conds := appendFilterConditions(f, &args)

	require.Len(t, conds, 5)
	assert.Equal(t, "language = $2", conds[0])
	assert.Equal(t, "chunk_type = $3", conds[1])
	assert.Equal(t, "repository = $4", conds[2])
	assert.Equal(t, "file_path = $5", conds[3])
	assert.Equal(t, "metadata->'signature'->>'return_type' = $6", conds[4])
	assert.Equal(t, []interface{}{"seed", "go", "function", "acme/widgets", "main.go", "error"}, args)

	where := whereClause(conds)
	assert.True(t, len(where) > 0)
	assert.Contains(t, where, "WHERE ")
	assert.Contains(t, where, " AND ")
}

func TestVectorValueNilForEmptyEmbedding(t *testing.T) {
	assert.Nil(t, vectorValue(nil))
	assert.NotNil(t, vectorValue([]float32{0.1, 0.2}))
}

func TestMarshalJSONDefaultsToEmptyObject(t *testing.T) {
	raw, err := marshalJSON(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(raw))

	raw, err = marshalJSON(map[string]interface{}{"a": 1})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(raw))
}

func TestNullableString(t *testing.T) {
	assert.Nil(t, nullableString(""))
	assert.Equal(t, "x", nullableString("x"))
}

func TestTxAddChunkRejectsInvalidChunkBeforeTouchingDB(t *testing.T) {
	tx := &Tx{dim: 768} // tx.tx intentionally nil: a rejected chunk must never reach it

	c := &types.Chunk{
		Repository: "acme/widgets",
		FilePath:   "main.go",
		Language:   types.LanguageGo,
		ChunkType:  "not-a-real-type",
		StartLine:  10,
		EndLine:    5, // invalid: end before start
	}

	err := tx.AddChunk(context.Background(), c)
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.KindInvalidArgument, mnemoerrors.KindOf(err))
}

func TestTxUpsertNodeRejectsInvalidNodeType(t *testing.T) {
	tx := &Tx{dim: 768}

	n := &types.Node{NodeType: "bogus", Label: "main"}
	err := tx.UpsertNode(context.Background(), n)
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.KindInvalidArgument, mnemoerrors.KindOf(err))
}

func TestTxUpsertEdgeRejectsInvalidRelationType(t *testing.T) {
	tx := &Tx{dim: 768}

	e := &types.Edge{RelationType: "bogus"}
	err := tx.UpsertEdge(context.Background(), e)
	require.Error(t, err)
	assert.Equal(t, mnemoerrors.KindInvalidArgument, mnemoerrors.KindOf(err))
}
