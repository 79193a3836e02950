package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"mnemolite/internal/logging"
	"mnemolite/pkg/types"
)

// Options configures the post-pass metrics computation.
type Options struct {
	Damping       float64
	Tolerance     float64
	MaxIterations int
}

// DefaultOptions matches spec.md §4.5's PageRank parameters.
func DefaultOptions() Options {
	return Options{Damping: 0.85, Tolerance: 1e-6, MaxIterations: 100}
}

// Builder implements C5: turning one repository's chunks into a node/edge
// arena, then deriving per-node coupling and PageRank. It holds no state
// across calls to Build and is safe to reuse and share.
type Builder struct {
	opts Options
}

// New creates a Graph Builder.
func New(opts Options) *Builder {
	if opts.Damping <= 0 {
		opts.Damping = 0.85
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = 1e-6
	}
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = 100
	}
	return &Builder{opts: opts}
}

// Result is everything the construction pass produced, ready for
// Arena.Commit: the arena itself plus per-node detailed metadata and
// computed metrics, indexed in parallel with arena.Nodes.
type Result struct {
	Arena   *Arena
	Details []*types.DetailedMetadata
	Metrics []*types.ComputedMetrics
}

// Build constructs the full graph for one repository's chunks: one Module
// node per file, one Function/Method/Class node per chunk, calls/imports
// edges resolved through an in-memory symbol table (External nodes for
// unresolved targets), contains edges from Module/Class to their children,
// and finally per-node ComputedMetrics over the calls subgraph.
func (b *Builder) Build(ctx context.Context, repository string, chunks []types.Chunk) (*Result, error) {
	start := time.Now()
	arena := NewArena(repository)
	symtab := newSymbolTable(arena)

	moduleByFile := make(map[string]int)
	nodeByChunk := make(map[string]int, len(chunks)) // chunk.ID.String() -> node index
	classByFileName := make(map[string]int)          // file|class-name -> node index
	externalByLabel := make(map[string]int)

	// Pass 1: one Module node per distinct file, one node per chunk.
	for _, c := range chunks {
		if _, ok := moduleByFile[c.FilePath]; !ok {
			idx := arena.AddNode(NodeRecord{
				Type:     types.NodeTypeModule,
				Label:    c.FilePath,
				FilePath: c.FilePath,
				Properties: map[string]interface{}{
					"repository": repository,
					"file_path":  c.FilePath,
				},
			})
			moduleByFile[c.FilePath] = idx
		}
	}

	for i := range chunks {
		c := &chunks[i]
		nodeType := nodeTypeForChunk(c.ChunkType)
		chunkID := c.ID
		idx := arena.AddNode(NodeRecord{
			Type:     nodeType,
			Label:    labelFor(c),
			NamePath: c.NamePath,
			FilePath: c.FilePath,
			ChunkID:  &chunkID,
			Properties: map[string]interface{}{
				"repository": repository,
				"file_path":  c.FilePath,
				"chunk_id":   chunkID.String(),
			},
		})
		nodeByChunk[c.ID.String()] = idx
		symtab.index(idx, c.Name, c.NamePath)
		if c.ChunkType == types.ChunkTypeClass || c.ChunkType == types.ChunkTypeInterface {
			classByFileName[c.FilePath+"|"+c.Name] = idx
		}
	}

	// Pass 2: contains edges from Module (or owning Class) to each chunk node.
	for i := range chunks {
		c := &chunks[i]
		idx := nodeByChunk[c.ID.String()]
		moduleIdx := moduleByFile[c.FilePath]

		if c.ChunkType == types.ChunkTypeMethod {
			owner, ok := ownerClassName(c.NamePath)
			if ok {
				if classIdx, ok := classByFileName[c.FilePath+"|"+owner]; ok {
					arena.AddEdge(classIdx, idx, types.RelationContains)
					continue
				}
			}
		}
		arena.AddEdge(moduleIdx, idx, types.RelationContains)
	}

	// Pass 3: calls/imports edges, resolved through the symbol table.
	for i := range chunks {
		c := &chunks[i]
		idx := nodeByChunk[c.ID.String()]

		for _, call := range decodeCalls(c.Metadata) {
			target, ok := symtab.resolve(call.CalleeName, c.FilePath)
			if !ok {
				target = externalNode(arena, externalByLabel, call.CalleeName)
			}
			arena.AddEdge(idx, target, types.RelationCalls)
		}

		for _, imp := range decodeImports(c.Metadata) {
			ref := imp.ImportedName
			if ref == "" {
				ref = imp.Module
			}
			if ref == "" {
				continue
			}
			target, ok := symtab.resolve(ref, c.FilePath)
			if !ok {
				target = externalNode(arena, externalByLabel, ref)
			}
			arena.AddEdge(idx, target, types.RelationImports)
		}
	}

	details := make([]*types.DetailedMetadata, len(arena.Nodes))
	for i := range chunks {
		c := &chunks[i]
		idx := nodeByChunk[c.ID.String()]
		sig := decodeSignature(c.Metadata)
		comp := decodeComplexity(c.Metadata)
		details[idx] = &types.DetailedMetadata{
			ChunkID:      c.ID,
			Parameters:   sig.Parameters,
			ReturnType:   sig.ReturnType,
			IsAsync:      sig.IsAsync,
			Cyclomatic:   comp.Cyclomatic,
			LinesOfCode:  comp.LinesOfCode,
			CallContexts: decodeCalls(c.Metadata),
		}
	}

	metrics := b.computeMetrics(arena)

	logging.GraphLogger.Info("graph built",
		"repository", repository, "nodes", len(arena.Nodes), "edges", len(arena.Edges),
		"duration_ms", time.Since(start).Milliseconds())

	return &Result{Arena: arena, Details: details, Metrics: metrics}, nil
}

// computeMetrics derives per-node efferent/afferent coupling and PageRank
// over the calls-only subgraph, per spec.md §4.5's post-pass.
func (b *Builder) computeMetrics(arena *Arena) []*types.ComputedMetrics {
	var callEdges []EdgeRecord
	for _, e := range arena.Edges {
		if e.Relation == types.RelationCalls {
			callEdges = append(callEdges, e)
		}
	}

	out := make(map[int]int)
	in := make(map[int]int)
	for _, e := range callEdges {
		out[e.Source]++
		in[e.Target]++
	}

	ranks := computePageRank(len(arena.Nodes), callEdges, b.opts.Damping, b.opts.Tolerance, b.opts.MaxIterations)

	metrics := make([]*types.ComputedMetrics, len(arena.Nodes))
	for i := range arena.Nodes {
		var pr float64
		if i < len(ranks) {
			pr = ranks[i]
		}
		metrics[i] = &types.ComputedMetrics{
			EfferentCoupling: out[i],
			AfferentCoupling: in[i],
			PageRank:         pr,
		}
	}
	return metrics
}

func nodeTypeForChunk(t types.ChunkType) types.NodeType {
	switch t {
	case types.ChunkTypeFunction, types.ChunkTypeFallbackBlock:
		return types.NodeTypeFunction
	case types.ChunkTypeMethod:
		return types.NodeTypeMethod
	case types.ChunkTypeClass, types.ChunkTypeInterface:
		return types.NodeTypeClass
	case types.ChunkTypeModule:
		return types.NodeTypeModule
	default:
		return types.NodeTypeFunction
	}
}

func labelFor(c *types.Chunk) string {
	if c.Name != "" {
		return c.Name
	}
	if c.NamePath != "" {
		return c.NamePath
	}
	return fmt.Sprintf("%s:L%d-%d", c.FilePath, c.StartLine, c.EndLine)
}

// ownerClassName extracts "Receiver" from a method name_path of the shape
// "Receiver.methodName" (or "Receiver.methodName:L12-34" once disambiguated).
func ownerClassName(namePath string) (string, bool) {
	base := namePath
	if i := strings.Index(base, ":L"); i >= 0 {
		base = base[:i]
	}
	i := strings.LastIndex(base, ".")
	if i <= 0 {
		return "", false
	}
	return base[:i], true
}

func externalNode(arena *Arena, byLabel map[string]int, label string) int {
	if idx, ok := byLabel[label]; ok {
		return idx
	}
	idx := arena.AddNode(NodeRecord{
		Type:  types.NodeTypeExternal,
		Label: label,
		Properties: map[string]interface{}{
			"repository": arena.Repository,
		},
	})
	byLabel[label] = idx
	return idx
}

// decode* round-trip a metadata section through JSON so the builder works
// identically whether Metadata holds the Extractor's original typed values
// (same-process, pre-commit) or the generic map/slice shapes produced by
// unmarshaling a chunk row read back from storage (Phase 3, post-commit).
func decodeSection(meta map[string]interface{}, key string, out interface{}) {
	v, ok := meta[key]
	if !ok || v == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = json.Unmarshal(raw, out)
}

func decodeSignature(meta map[string]interface{}) types.Signature {
	var sig types.Signature
	decodeSection(meta, "signature", &sig)
	return sig
}

func decodeCalls(meta map[string]interface{}) []types.CallRef {
	var calls []types.CallRef
	decodeSection(meta, "calls", &calls)
	return calls
}

func decodeImports(meta map[string]interface{}) []types.ImportRef {
	var imports []types.ImportRef
	decodeSection(meta, "imports", &imports)
	return imports
}

func decodeComplexity(meta map[string]interface{}) types.Complexity {
	var comp types.Complexity
	decodeSection(meta, "complexity", &comp)
	if comp.Cyclomatic <= 0 {
		comp.Cyclomatic = 1
	}
	return comp
}

// SortedFileList returns the distinct file paths present in chunks, sorted,
// useful for callers reporting progress per-file during graph construction.
func SortedFileList(chunks []types.Chunk) []string {
	seen := make(map[string]bool)
	var files []string
	for _, c := range chunks {
		if !seen[c.FilePath] {
			seen[c.FilePath] = true
			files = append(files, c.FilePath)
		}
	}
	sort.Strings(files)
	return files
}
