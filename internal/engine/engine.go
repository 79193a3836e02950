// Package engine wires C1-C12 into the single library-level API described
// by spec.md §6, the facade everything out-of-scope (HTTP, MCP, the
// dashboard) builds on. Grounded on the teacher's internal/mcp.MemoryServer
// (internal/mcp/server.go): a struct wrapping its dependency-injection
// container, exposing one method per tool. Engine plays the same role but
// wraps each component constructed directly from config.Config rather than
// a generic DI container, since the retrieval pack's component graph is
// small and fixed.
package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"mnemolite/internal/cache"
	"mnemolite/internal/circuitbreaker"
	"mnemolite/internal/config"
	"mnemolite/internal/embeddings"
	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/internal/fusion"
	"mnemolite/internal/indexing"
	"mnemolite/internal/kernel"
	"mnemolite/internal/logging"
	"mnemolite/internal/memory"
	"mnemolite/internal/storage"
	"mnemolite/pkg/types"
)

// Engine is the assembled retrieval engine: one storage gateway, one
// cascade cache, one indexing pipeline, one memory store, and the kernel
// that deadline-bounds and breaker-protects every call that leaves the
// process.
type Engine struct {
	cfg      *config.Config
	gw       *storage.Gateway
	cache    *cache.Cascade
	pipeline *indexing.Pipeline
	memory   *memory.Store
	kernel   *kernel.Kernel
	embeds   embeddings.Service
}

// New assembles an Engine from configuration: opens the storage gateway,
// ensures its schema, builds the cascade cache, registers circuit breakers
// with the kernel, and constructs the indexing pipeline with a per-worker
// embedding-service factory per spec.md §4.6 ("embedding provider per
// worker, not shared").
func New(ctx context.Context, cfg *config.Config) (*Engine, error) {
	gw, err := storage.NewGateway(cfg)
	if err != nil {
		return nil, err
	}
	if err := gw.EnsureSchema(ctx); err != nil {
		_ = gw.Close()
		return nil, err
	}

	breakerCfg := &circuitbreaker.Config{
		FailureThreshold:      cfg.Breaker.FailureThreshold,
		SuccessThreshold:      1,
		Timeout:               cfg.Breaker.RecoveryTimeout,
		MaxConcurrentRequests: 1,
	}

	cascade := cache.New(cfg.Cache, breakerCfg)
	k := kernel.New(cfg.Timeouts)
	if b := cascade.Breaker(); b != nil {
		k.Register("cache_l2", b)
	}

	sharedEmbeds := embeddings.NewFromConfig(cfg)
	if cs, ok := sharedEmbeds.(*embeddings.CachedService); ok {
		if b := cs.Breaker(); b != nil {
			k.Register("embedding_provider", b)
		}
	}

	pipeline := indexing.New(gw, func() embeddings.Service { return embeddings.NewFromConfig(cfg) }, cfg.Indexing, k)
	memStore := memory.New(gw, sharedEmbeds)

	return &Engine{
		cfg:      cfg,
		gw:       gw,
		cache:    cascade,
		pipeline: pipeline,
		memory:   memStore,
		kernel:   k,
		embeds:   sharedEmbeds,
	}, nil
}

// Close releases the storage connection pool and the L2 cache client.
func (e *Engine) Close() error {
	if err := e.cache.Close(); err != nil {
		logging.CacheLogger.Warn("cache close failed", "error", err.Error())
	}
	return e.gw.Close()
}

// IndexRepository walks root and indexes every recognized-language file
// into repository, per spec.md §4.6's four-phase pipeline.
func (e *Engine) IndexRepository(ctx context.Context, repository, root string, opts types.IndexOptions) (*types.Summary, error) {
	summary, err := e.pipeline.IndexRepository(ctx, repository, root, opts)
	if err == nil {
		e.cache.InvalidateRepository(ctx, repository)
	}
	return summary, err
}

// IndexFiles indexes an explicit in-memory file set, skipping the
// filesystem walk.
func (e *Engine) IndexFiles(ctx context.Context, repository string, files []types.InputFile, opts types.IndexOptions) (*types.Summary, error) {
	summary, err := e.pipeline.IndexFiles(ctx, repository, files, opts)
	if err == nil {
		e.cache.InvalidateRepository(ctx, repository)
	}
	return summary, err
}

// DeleteRepository removes every row a repository owns: chunks, nodes,
// edges, metrics, and indexing errors.
func (e *Engine) DeleteRepository(ctx context.Context, repository string) error {
	if err := e.pipeline.DeleteRepository(ctx, repository); err != nil {
		return err
	}
	e.cache.InvalidateRepository(ctx, repository)
	return nil
}

// SearchLexical runs a trigram-similarity search, honoring the cascade
// cache and the configured lexical-search deadline.
func (e *Engine) SearchLexical(ctx context.Context, query string, filters types.Filters, limit int) ([]types.LexicalResult, error) {
	if query == "" {
		return nil, mnemoerrors.ErrEmptyQuery
	}

	key := cache.SearchKey("lexical", filters.Repository, query, filterCacheToken(filters), limit)
	if cached, ok, err := e.getCached(ctx, key, &[]types.LexicalResult{}); err == nil && ok {
		return *(cached.(*[]types.LexicalResult)), nil
	}

	var out []types.LexicalResult
	err := e.kernel.Do(ctx, kernel.OpLexicalSearch, func(ctx context.Context) error {
		results, err := e.gw.TrigramSearch(ctx, query, filters, limit)
		out = results
		return err
	})
	if err != nil {
		return nil, err
	}

	e.setCached(ctx, key, out)
	return out, nil
}

// SearchVector runs an HNSW nearest-neighbour search in the requested
// embedding domain.
func (e *Engine) SearchVector(ctx context.Context, vec []float32, domain types.EmbeddingDomain, filters types.Filters, limit int) ([]types.VectorResult, error) {
	if len(vec) != e.gw.Dim() {
		return nil, mnemoerrors.New(mnemoerrors.KindInvalidArgument, "vector dimension mismatch").
			WithDetail("expected", e.gw.Dim()).WithDetail("got", len(vec))
	}

	var out []types.VectorResult
	err := e.kernel.Do(ctx, kernel.OpVectorSearch, func(ctx context.Context) error {
		results, err := e.gw.VectorSearchEF(ctx, vec, domain, filters, limit, e.cfg.Vector.EFSearch)
		out = results
		return err
	})
	return out, err
}

// SearchBoth runs the text and code vector searches independently,
// returning two ranked lists, for callers building their own fusion.
func (e *Engine) SearchBoth(ctx context.Context, textVec, codeVec []float32, filters types.Filters, limitPerDomain int) ([]types.VectorResult, []types.VectorResult, error) {
	var textResults, codeResults []types.VectorResult
	var textErr, codeErr error

	done := make(chan struct{}, 2)
	go func() {
		defer func() { done <- struct{}{} }()
		if len(textVec) == 0 {
			return
		}
		textResults, textErr = e.SearchVector(ctx, textVec, types.DomainText, filters, limitPerDomain)
	}()
	go func() {
		defer func() { done <- struct{}{} }()
		if len(codeVec) == 0 {
			return
		}
		codeResults, codeErr = e.SearchVector(ctx, codeVec, types.DomainCode, filters, limitPerDomain)
	}()
	<-done
	<-done

	if textErr != nil && codeErr != nil {
		return nil, nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "search both domains", textErr)
	}
	return textResults, codeResults, nil
}

// SearchHybrid runs lexical and vector search concurrently and fuses them
// with reciprocal rank fusion per spec.md §4.10. The query vector is
// derived from query text via the embedding provider (domain CODE when
// filters.Language is set, TEXT otherwise); a provider failure degrades the
// search to lexical-only rather than failing the whole request. Either
// leg's failure degrades gracefully to the other; only a failure of both
// legs surfaces as StorageUnavailable.
func (e *Engine) SearchHybrid(ctx context.Context, query string, filters types.Filters, limit, offset int, flags types.SearchFlags) (*types.HybridSearchResult, error) {
	if query == "" {
		return nil, mnemoerrors.ErrEmptyQuery
	}

	key := cache.SearchKey("hybrid", filters.Repository, query, filterCacheToken(filters), limit)
	if cachedVal, ok, err := e.getCached(ctx, key, &types.HybridSearchResult{}); err == nil && ok {
		return cachedVal.(*types.HybridSearchResult), nil
	}

	domain := types.DomainCode
	if filters.Language == "" {
		domain = types.DomainText
	}

	var lexical []types.LexicalResult
	var vector []types.VectorResult
	var lexErr, vecErr error

	err := e.kernel.Do(ctx, kernel.OpHybridSearch, func(ctx context.Context) error {
		done := make(chan struct{}, 2)
		go func() {
			defer func() { done <- struct{}{} }()
			lexical, lexErr = e.gw.TrigramSearch(ctx, query, filters, limit+offset)
		}()
		go func() {
			defer func() { done <- struct{}{} }()
			vecs, embedErr := e.embeds.Embed(ctx, domain, []string{query})
			if embedErr != nil {
				vecErr = embedErr
				return
			}
			vector, vecErr = e.gw.VectorSearchEF(ctx, vecs[0], domain, filters, limit+offset, e.cfg.Vector.EFSearch)
		}()
		<-done
		<-done

		if lexErr != nil && vecErr != nil {
			return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "hybrid search", lexErr)
		}
		if lexErr != nil {
			logging.SearchLogger.Warn("lexical leg failed, degrading to vector-only", "error", lexErr.Error())
			lexical = nil
		}
		if vecErr != nil {
			logging.SearchLogger.Warn("vector leg failed, degrading to lexical-only", "error", vecErr.Error())
			vector = nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	weights := fusion.Weights{Lexical: e.cfg.Hybrid.LexicalWeight, Vector: e.cfg.Hybrid.VectorWeight, K: e.cfg.Hybrid.RRFK}
	fused, metadata := fusion.Fuse(lexical, vector, weights, limit+offset)

	if offset > 0 {
		if offset >= len(fused) {
			fused = nil
		} else {
			fused = fused[offset:]
		}
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}

	if flags.EnableGraphExpansion {
		if err := fusion.ExpandGraph(ctx, e.gw, fused); err != nil {
			logging.SearchLogger.Warn("graph expansion failed, returning unexpanded results", "error", err.Error())
		}
	}

	total, err := e.gw.CountByFilter(ctx, filters)
	if err != nil {
		total = len(fused)
	}

	result := &types.HybridSearchResult{
		Results:    fused,
		Metadata:   metadata,
		Pagination: types.Pagination{Limit: limit, Offset: offset, Total: total},
	}

	e.setCached(ctx, key, result)
	return result, nil
}

// GraphTraverse walks outbound or inbound edges from startNodeID up to
// maxDepth hops (capped at 10 per spec.md §6), optionally restricted to
// one relation type, collecting every node and edge visited.
func (e *Engine) GraphTraverse(ctx context.Context, startNodeID uuid.UUID, direction types.GraphDirection, relation *types.RelationType, maxDepth int) (*types.TraversalResult, error) {
	maxDepth = clampDepth(maxDepth, 10)

	var result *types.TraversalResult
	err := e.kernel.Do(ctx, kernel.OpGraphTraversal, func(ctx context.Context) error {
		r, err := e.traverse(ctx, startNodeID, direction, relation, maxDepth)
		result = r
		return err
	})
	return result, err
}

func (e *Engine) traverse(ctx context.Context, startNodeID uuid.UUID, direction types.GraphDirection, relation *types.RelationType, maxDepth int) (*types.TraversalResult, error) {
	start, err := e.gw.GetNode(ctx, startNodeID)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, mnemoerrors.New(mnemoerrors.KindNotFound, fmt.Sprintf("node %s not found", startNodeID))
	}

	var relations []types.RelationType
	if relation != nil {
		relations = []types.RelationType{*relation}
	}

	visitedNodes := map[uuid.UUID]types.Node{start.ID: *start}
	visitedEdges := map[uuid.UUID]types.Edge{}
	frontier := []uuid.UUID{start.ID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []uuid.UUID
		for _, nodeID := range frontier {
			edges, err := e.edgesFor(ctx, nodeID, direction, relations)
			if err != nil {
				return nil, err
			}
			for _, edge := range edges {
				if _, seen := visitedEdges[edge.ID]; !seen {
					visitedEdges[edge.ID] = edge
				}
				neighborID := edge.TargetNodeID
				if direction == types.DirectionInbound {
					neighborID = edge.SourceNodeID
				}
				if _, seen := visitedNodes[neighborID]; seen {
					continue
				}
				neighbor, err := e.gw.GetNode(ctx, neighborID)
				if err != nil {
					return nil, err
				}
				if neighbor == nil {
					continue
				}
				visitedNodes[neighbor.ID] = *neighbor
				next = append(next, neighbor.ID)
			}
		}
		frontier = next
	}

	return &types.TraversalResult{Nodes: mapNodeValues(visitedNodes), Edges: mapEdgeValues(visitedEdges)}, nil
}

func (e *Engine) edgesFor(ctx context.Context, nodeID uuid.UUID, direction types.GraphDirection, relations []types.RelationType) ([]types.Edge, error) {
	if direction == types.DirectionInbound {
		return e.gw.EdgesTo(ctx, nodeID, relations)
	}
	return e.gw.EdgesFrom(ctx, nodeID, relations)
}

// GraphFindPath performs a breadth-first search from src to dst, following
// outbound edges (optionally restricted to one relation type) up to
// maxDepth hops (capped at 20), returning the first shortest path found or
// nil if none exists within the depth bound.
func (e *Engine) GraphFindPath(ctx context.Context, src, dst uuid.UUID, relation *types.RelationType, maxDepth int) (*types.Path, error) {
	maxDepth = clampDepth(maxDepth, 20)

	var result *types.Path
	err := e.kernel.Do(ctx, kernel.OpGraphTraversal, func(ctx context.Context) error {
		p, err := e.findPath(ctx, src, dst, relation, maxDepth)
		result = p
		return err
	})
	return result, err
}

type pathStep struct {
	node uuid.UUID
	via  *types.Edge
}

func (e *Engine) findPath(ctx context.Context, src, dst uuid.UUID, relation *types.RelationType, maxDepth int) (*types.Path, error) {
	startNode, err := e.gw.GetNode(ctx, src)
	if err != nil {
		return nil, err
	}
	if startNode == nil {
		return nil, mnemoerrors.New(mnemoerrors.KindNotFound, fmt.Sprintf("node %s not found", src))
	}

	if src == dst {
		return &types.Path{Nodes: []types.Node{*startNode}}, nil
	}

	var relations []types.RelationType
	if relation != nil {
		relations = []types.RelationType{*relation}
	}

	type queueEntry struct {
		node  uuid.UUID
		depth int
	}
	visited := map[uuid.UUID]pathStep{src: {node: src}}
	queue := []queueEntry{{node: src, depth: 0}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}

		edges, err := e.gw.EdgesFrom(ctx, cur.node, relations)
		if err != nil {
			return nil, err
		}
		for i := range edges {
			edge := edges[i]
			if _, seen := visited[edge.TargetNodeID]; seen {
				continue
			}
			visited[edge.TargetNodeID] = pathStep{node: cur.node, via: &edge}
			if edge.TargetNodeID == dst {
				return e.reconstructPath(ctx, visited, dst)
			}
			queue = append(queue, queueEntry{node: edge.TargetNodeID, depth: cur.depth + 1})
		}
	}

	return nil, nil
}

func (e *Engine) reconstructPath(ctx context.Context, visited map[uuid.UUID]pathStep, dst uuid.UUID) (*types.Path, error) {
	var nodeIDs []uuid.UUID
	var edges []types.Edge

	cur := dst
	for {
		nodeIDs = append([]uuid.UUID{cur}, nodeIDs...)
		step := visited[cur]
		if step.via == nil {
			break
		}
		edges = append([]types.Edge{*step.via}, edges...)
		cur = step.node
	}

	nodes := make([]types.Node, 0, len(nodeIDs))
	for _, id := range nodeIDs {
		n, err := e.gw.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		if n == nil {
			return nil, mnemoerrors.New(mnemoerrors.KindInternal, fmt.Sprintf("path node %s vanished mid-query", id))
		}
		nodes = append(nodes, *n)
	}

	return &types.Path{Nodes: nodes, Edges: edges}, nil
}

// CreateMemory, GetMemory, UpdateMemory, SoftDeleteMemory,
// DeleteMemoryPermanently, ListMemories, SearchMemories: the Memory Store
// surface (C11), delegated straight to internal/memory.Store with cache
// invalidation folded in since memory listings and searches are cached.

func (e *Engine) CreateMemory(ctx context.Context, m *types.Memory) (uuid.UUID, error) {
	id, err := e.memory.Create(ctx, m)
	if err == nil {
		e.cache.InvalidateMemory(ctx)
	}
	return id, err
}

func (e *Engine) GetMemory(ctx context.Context, id uuid.UUID) (*types.Memory, error) {
	return e.memory.GetByID(ctx, id)
}

func (e *Engine) UpdateMemory(ctx context.Context, id uuid.UUID, patch storage.MemoryPatch, regenerateEmbedding bool) error {
	err := e.memory.Update(ctx, id, patch, regenerateEmbedding)
	if err == nil {
		e.cache.InvalidateMemory(ctx)
	}
	return err
}

func (e *Engine) SoftDeleteMemory(ctx context.Context, id uuid.UUID) error {
	err := e.memory.SoftDelete(ctx, id)
	if err == nil {
		e.cache.InvalidateMemory(ctx)
	}
	return err
}

func (e *Engine) DeleteMemoryPermanently(ctx context.Context, id uuid.UUID) error {
	err := e.memory.DeletePermanently(ctx, id)
	if err == nil {
		e.cache.InvalidateMemory(ctx)
	}
	return err
}

func (e *Engine) ListMemories(ctx context.Context, filters types.MemoryFilters, limit, offset int) ([]types.Memory, int, error) {
	return e.memory.List(ctx, filters, limit, offset)
}

func (e *Engine) SearchMemoriesByVector(ctx context.Context, vec []float32, filters types.MemoryFilters, limit int, distanceThreshold float64) ([]types.Memory, int, error) {
	return e.memory.SearchByVector(ctx, vec, filters, limit, distanceThreshold)
}

func (e *Engine) SearchMemoriesByText(ctx context.Context, query string, filters types.MemoryFilters, limit int, distanceThreshold float64) ([]types.Memory, int, error) {
	return e.memory.SearchByText(ctx, query, filters, limit, distanceThreshold)
}

// FlushCache clears the requested cache scope. scope=all flushes every
// tier entirely; scope=repository/file invalidate just that target's
// entries (plus, per spec.md §4.7, every search:* entry unconditionally).
func (e *Engine) FlushCache(ctx context.Context, scope types.CacheFlushScope, target string) error {
	switch scope {
	case types.FlushScopeAll:
		return e.cache.Flush(ctx)
	case types.FlushScopeRepository:
		e.cache.InvalidateRepository(ctx, target)
		return nil
	case types.FlushScopeFile:
		e.cache.InvalidateFile(ctx, "", target)
		return nil
	default:
		return mnemoerrors.New(mnemoerrors.KindInvalidArgument, fmt.Sprintf("unknown cache flush scope %q", scope))
	}
}

// CacheStats reports per-tier hit/miss counters and the effective hit rate.
func (e *Engine) CacheStats() (cache.Stats, float64) {
	return e.cache.Stats()
}

// Health aggregates circuit breaker state across the embedding provider and
// the L2 cache, plus storage connectivity, into the spec.md §6 Health()
// response.
func (e *Engine) Health(ctx context.Context) kernel.HealthReport {
	report := e.kernel.Health()
	if err := e.gw.Ping(ctx); err != nil {
		report.Status = kernel.StatusCritical
	}
	return report
}

func (e *Engine) getCached(ctx context.Context, key string, into interface{}) (interface{}, bool, error) {
	raw, ok, err := e.cache.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	if err := json.Unmarshal(raw, into); err != nil {
		return nil, false, err
	}
	return into, true, nil
}

func (e *Engine) setCached(ctx context.Context, key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = e.cache.Set(ctx, key, raw, 0)
}

// clampDepth bounds a caller-requested traversal depth to [0, max], per
// spec.md §6's GraphTraverse/GraphFindPath depth ceilings.
func clampDepth(requested, max int) int {
	if requested > max {
		return max
	}
	if requested < 0 {
		return 0
	}
	return requested
}

func filterCacheToken(f types.Filters) string {
	return fmt.Sprintf("%s|%s|%s|%s|%s|%s", f.Language, f.ChunkType, f.Repository, f.FilePath, f.ReturnType, f.ParamType)
}

func mapNodeValues(m map[uuid.UUID]types.Node) []types.Node {
	out := make([]types.Node, 0, len(m))
	for _, n := range m {
		out = append(out, n)
	}
	return out
}

func mapEdgeValues(m map[uuid.UUID]types.Edge) []types.Edge {
	out := make([]types.Edge, 0, len(m))
	for _, e := range m {
		out = append(out, e)
	}
	return out
}

