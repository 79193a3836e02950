package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemolite/pkg/types"
)

func chunk(filePath, name, namePath string, chunkType types.ChunkType, meta map[string]interface{}) types.Chunk {
	return types.Chunk{
		ID:        types.NewUUID(),
		FilePath:  filePath,
		Language:  types.LanguageGo,
		ChunkType: chunkType,
		Name:      name,
		NamePath:  namePath,
		Metadata:  meta,
	}
}

func TestBuildCreatesOneModulePerFile(t *testing.T) {
	chunks := []types.Chunk{
		chunk("a.go", "Foo", "Foo", types.ChunkTypeFunction, nil),
		chunk("a.go", "Bar", "Bar", types.ChunkTypeFunction, nil),
		chunk("b.go", "Baz", "Baz", types.ChunkTypeFunction, nil),
	}

	b := New(DefaultOptions())
	result, err := b.Build(context.Background(), "acme/widgets", chunks)
	require.NoError(t, err)

	var modules int
	for _, n := range result.Arena.Nodes {
		if n.Type == types.NodeTypeModule {
			modules++
		}
	}
	assert.Equal(t, 2, modules)
	assert.Len(t, result.Arena.Nodes, 5) // 2 modules + 3 functions
}

func TestBuildResolvesCallsWithinSameFile(t *testing.T) {
	chunks := []types.Chunk{
		chunk("a.go", "Helper", "Helper", types.ChunkTypeFunction, nil),
		chunk("a.go", "Main", "Main", types.ChunkTypeFunction, map[string]interface{}{
			"calls": []types.CallRef{{CalleeName: "Helper"}},
		}),
	}

	b := New(DefaultOptions())
	result, err := b.Build(context.Background(), "acme/widgets", chunks)
	require.NoError(t, err)

	var callEdges int
	var externalNodes int
	for _, n := range result.Arena.Nodes {
		if n.Type == types.NodeTypeExternal {
			externalNodes++
		}
	}
	for _, e := range result.Arena.Edges {
		if e.Relation == types.RelationCalls {
			callEdges++
		}
	}
	assert.Equal(t, 1, callEdges)
	assert.Equal(t, 0, externalNodes, "Helper should resolve to the in-repo node, not an External stub")
}

func TestBuildCreatesExternalNodeForUnresolvedCall(t *testing.T) {
	chunks := []types.Chunk{
		chunk("a.go", "Main", "Main", types.ChunkTypeFunction, map[string]interface{}{
			"calls": []types.CallRef{{CalleeName: "fmt.Println"}},
		}),
	}

	b := New(DefaultOptions())
	result, err := b.Build(context.Background(), "acme/widgets", chunks)
	require.NoError(t, err)

	var external int
	for _, n := range result.Arena.Nodes {
		if n.Type == types.NodeTypeExternal {
			external++
			assert.Equal(t, "fmt.Println", n.Label)
		}
	}
	assert.Equal(t, 1, external)
}

func TestBuildAssignsMethodContainsEdgeToOwningClass(t *testing.T) {
	chunks := []types.Chunk{
		chunk("a.go", "Widget", "Widget", types.ChunkTypeClass, nil),
		chunk("a.go", "Render", "Widget.Render", types.ChunkTypeMethod, nil),
	}

	b := New(DefaultOptions())
	result, err := b.Build(context.Background(), "acme/widgets", chunks)
	require.NoError(t, err)

	var classIdx, methodIdx int
	for i, n := range result.Arena.Nodes {
		if n.Type == types.NodeTypeClass {
			classIdx = i
		}
		if n.Type == types.NodeTypeMethod {
			methodIdx = i
		}
	}

	found := false
	for _, e := range result.Arena.Edges {
		if e.Relation == types.RelationContains && e.Source == classIdx && e.Target == methodIdx {
			found = true
		}
	}
	assert.True(t, found, "expected a contains edge from the owning class to its method")
}

func TestBuildComputesPageRankSummingToOne(t *testing.T) {
	chunks := []types.Chunk{
		chunk("a.go", "A", "A", types.ChunkTypeFunction, map[string]interface{}{
			"calls": []types.CallRef{{CalleeName: "B"}},
		}),
		chunk("a.go", "B", "B", types.ChunkTypeFunction, map[string]interface{}{
			"calls": []types.CallRef{{CalleeName: "A"}},
		}),
	}

	b := New(DefaultOptions())
	result, err := b.Build(context.Background(), "acme/widgets", chunks)
	require.NoError(t, err)

	var sum float64
	for _, m := range result.Metrics {
		sum += m.PageRank
	}
	assert.InDelta(t, 1.0, sum, 1e-4)
}

func TestOwnerClassNameStripsDisambiguationSuffix(t *testing.T) {
	owner, ok := ownerClassName("Widget.Render:L12-34")
	require.True(t, ok)
	assert.Equal(t, "Widget", owner)

	_, ok = ownerClassName("TopLevelFunc")
	assert.False(t, ok)
}

func TestSortedFileListDedupesAndSorts(t *testing.T) {
	chunks := []types.Chunk{
		chunk("b.go", "X", "X", types.ChunkTypeFunction, nil),
		chunk("a.go", "Y", "Y", types.ChunkTypeFunction, nil),
		chunk("a.go", "Z", "Z", types.ChunkTypeFunction, nil),
	}
	assert.Equal(t, []string{"a.go", "b.go"}, SortedFileList(chunks))
}

func TestDecodeComplexityDefaultsCyclomaticToOne(t *testing.T) {
	comp := decodeComplexity(nil)
	assert.Equal(t, 1, comp.Cyclomatic)

	comp = decodeComplexity(map[string]interface{}{
		"complexity": types.Complexity{Cyclomatic: 4, LinesOfCode: 20},
	})
	assert.Equal(t, 4, comp.Cyclomatic)
	assert.Equal(t, 20, comp.LinesOfCode)
}
