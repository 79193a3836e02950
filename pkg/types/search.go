package types

import "github.com/google/uuid"

// Filters narrows a lexical, vector, or hybrid search to a subset of chunks.
// Zero-value fields are unconstrained.
type Filters struct {
	Language   Language  `json:"language,omitempty"`
	ChunkType  ChunkType `json:"chunk_type,omitempty"`
	Repository string    `json:"repository,omitempty"`
	FilePath   string    `json:"file_path,omitempty"`
	ReturnType string    `json:"return_type,omitempty"`
	ParamType  string    `json:"param_type,omitempty"`
}

// LexicalResult is one row returned by the trigram search.
type LexicalResult struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Score   float64   `json:"score"`
	Rank    int       `json:"rank"`
}

// VectorResult is one row returned by the HNSW search.
type VectorResult struct {
	ChunkID    uuid.UUID `json:"chunk_id"`
	Distance   float64   `json:"distance"`
	Similarity float64   `json:"similarity"`
	Rank       int       `json:"rank"`
}

// Contribution records how much each search leg contributed to a fused score.
type Contribution struct {
	Lexical float64 `json:"lexical"`
	Vector  float64 `json:"vector"`
}

// FusedResult is one row of a SearchHybrid response after RRF fusion.
type FusedResult struct {
	ChunkID        uuid.UUID    `json:"chunk_id"`
	Score          float64      `json:"score"`
	Contribution   Contribution `json:"contribution"`
	LexicalScore   float64      `json:"lexical_score,omitempty"`
	VectorDistance float64      `json:"vector_distance,omitempty"`
	RelatedChunks  []uuid.UUID  `json:"related_chunks,omitempty"`
}

// HybridMetadata reports which search legs were active for a SearchHybrid call.
type HybridMetadata struct {
	LexicalEnabled bool `json:"lexical_enabled"`
	VectorEnabled  bool `json:"vector_enabled"`
}

// Pagination describes the page window applied to a result set.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// MemoryFilters narrows Memory Store listing and search operations.
type MemoryFilters struct {
	ProjectID      *uuid.UUID `json:"project_id,omitempty"`
	MemoryType     MemoryType `json:"memory_type,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Author         string     `json:"author,omitempty"`
	IncludeDeleted bool       `json:"include_deleted,omitempty"`
}

// IndexOptions controls which phases of the indexing pipeline run.
type IndexOptions struct {
	GenerateEmbeddings bool
	BuildGraph         bool
	ExtractMetadata    bool
	Languages          []Language
}

// FileResult is the per-file outcome of an indexing pass.
type FileResult struct {
	FilePath      string
	Success       bool
	ChunksCreated int
	Error         string
}

// Summary is the aggregate result of IndexRepository / IndexFiles.
type Summary struct {
	Files  int             `json:"files"`
	Chunks int             `json:"chunks"`
	Nodes  int             `json:"nodes"`
	Edges  int             `json:"edges"`
	Errors []IndexingError `json:"errors,omitempty"`
}

// InputFile is one in-memory file passed to IndexFiles.
type InputFile struct {
	Path     string
	Content  []byte
	Language Language
}
