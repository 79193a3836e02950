package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/pkg/types"

	"github.com/google/uuid"
)

func TestClampDepthWithinRange(t *testing.T) {
	assert.Equal(t, 3, clampDepth(3, 10))
}

func TestClampDepthCapsAboveMax(t *testing.T) {
	assert.Equal(t, 10, clampDepth(50, 10))
	assert.Equal(t, 20, clampDepth(999, 20))
}

func TestClampDepthFloorsNegative(t *testing.T) {
	assert.Equal(t, 0, clampDepth(-5, 10))
}

func TestFilterCacheTokenIsDeterministic(t *testing.T) {
	f := types.Filters{Language: types.LanguageGo, Repository: "repo", FilePath: "a.go"}
	assert.Equal(t, filterCacheToken(f), filterCacheToken(f))
}

func TestFilterCacheTokenDistinguishesFilters(t *testing.T) {
	a := types.Filters{Repository: "repo-a"}
	b := types.Filters{Repository: "repo-b"}
	assert.NotEqual(t, filterCacheToken(a), filterCacheToken(b))
}

func TestMapNodeValuesReturnsAllEntries(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	m := map[uuid.UUID]types.Node{
		id1: {ID: id1, NodeType: types.NodeTypeFunction},
		id2: {ID: id2, NodeType: types.NodeTypeClass},
	}
	out := mapNodeValues(m)
	assert.Len(t, out, 2)
}

func TestMapEdgeValuesReturnsAllEntries(t *testing.T) {
	id1, id2 := uuid.New(), uuid.New()
	m := map[uuid.UUID]types.Edge{
		id1: {ID: id1},
		id2: {ID: id2},
	}
	out := mapEdgeValues(m)
	assert.Len(t, out, 2)
}

func TestSearchLexicalRejectsEmptyQuery(t *testing.T) {
	e := &Engine{}
	_, err := e.SearchLexical(context.Background(), "", types.Filters{}, 10)
	require.Error(t, err)
}

func TestSearchHybridRejectsEmptyQuery(t *testing.T) {
	e := &Engine{}
	_, err := e.SearchHybrid(context.Background(), "", types.Filters{}, 10, 0, types.SearchFlags{})
	require.Error(t, err)
}

func TestFlushCacheRejectsUnknownScope(t *testing.T) {
	e := &Engine{}
	err := e.FlushCache(context.Background(), types.CacheFlushScope("bogus"), "")
	require.Error(t, err)
}
