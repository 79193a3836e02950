package types

// TraversalResult is the response shape of GraphTraverse: every node and
// edge reachable from the starting node within the requested depth and
// direction, deduplicated.
type TraversalResult struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Path is one node-to-node walk found by GraphFindPath: the ordered node
// sequence from source to destination plus the edge taken at each hop.
type Path struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// GraphDirection selects which side of an edge a traversal follows,
// mirrored from the storage package so engine callers need not import it
// directly just to name a direction.
type GraphDirection int

const (
	DirectionOutbound GraphDirection = iota
	DirectionInbound
)

// CacheFlushScope selects what FlushCache clears.
type CacheFlushScope string

const (
	FlushScopeAll        CacheFlushScope = "all"
	FlushScopeRepository CacheFlushScope = "repository"
	FlushScopeFile       CacheFlushScope = "file"
)

// SearchFlags toggles optional SearchHybrid behaviour.
type SearchFlags struct {
	EnableGraphExpansion bool
}

// HybridSearchResult is the full SearchHybrid response: fused results,
// metadata describing which legs were active, and the pagination window
// actually served.
type HybridSearchResult struct {
	Results    []FusedResult  `json:"results"`
	Metadata   HybridMetadata `json:"metadata"`
	Pagination Pagination     `json:"pagination"`
}
