// Package types provides the core data structures shared across the
// indexing and retrieval engine: chunks, graph nodes/edges, derived
// metrics, memories, and projects.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Language identifies the source language a chunk was parsed from.
type Language string

const (
	LanguageGo         Language = "go"
	LanguageTypeScript Language = "typescript"
	LanguageJavaScript Language = "javascript"
	LanguagePython     Language = "python"
	LanguageUnknown    Language = "unknown"
)

// Valid reports whether l is one of the recognized languages.
func (l Language) Valid() bool {
	switch l {
	case LanguageGo, LanguageTypeScript, LanguageJavaScript, LanguagePython, LanguageUnknown:
		return true
	}
	return false
}

// ChunkType classifies the syntactic unit a chunk represents.
type ChunkType string

const (
	ChunkTypeFunction      ChunkType = "function"
	ChunkTypeMethod        ChunkType = "method"
	ChunkTypeClass         ChunkType = "class"
	ChunkTypeInterface     ChunkType = "interface"
	ChunkTypeModule        ChunkType = "module"
	ChunkTypeFallbackBlock ChunkType = "fallback_block"
)

func (t ChunkType) Valid() bool {
	switch t {
	case ChunkTypeFunction, ChunkTypeMethod, ChunkTypeClass, ChunkTypeInterface, ChunkTypeModule, ChunkTypeFallbackBlock:
		return true
	}
	return false
}

// EmbeddingDomain selects which embedding column/model a vector belongs to.
type EmbeddingDomain string

const (
	DomainText EmbeddingDomain = "TEXT"
	DomainCode EmbeddingDomain = "CODE"
)

func (d EmbeddingDomain) Valid() bool {
	return d == DomainText || d == DomainCode
}

// Chunk is the unit of code indexed by the engine.
//
// Invariants: StartLine <= EndLine; when EmbeddingText/EmbeddingCode is
// present its length equals the process-wide vector dimension; the tuple
// (Repository, FilePath, NamePath, StartLine) is unique.
type Chunk struct {
	ID            uuid.UUID              `json:"id"`
	Repository    string                 `json:"repository"`
	FilePath      string                 `json:"file_path"`
	Language      Language               `json:"language"`
	ChunkType     ChunkType              `json:"chunk_type"`
	Name          string                 `json:"name,omitempty"`
	NamePath      string                 `json:"name_path"`
	SourceCode    string                 `json:"source_code"`
	StartLine     int                    `json:"start_line"`
	EndLine       int                    `json:"end_line"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	EmbeddingText []float32              `json:"embedding_text,omitempty"`
	EmbeddingCode []float32              `json:"embedding_code,omitempty"`
	CommitHash    string                 `json:"commit_hash,omitempty"`
	IndexedAt     time.Time              `json:"indexed_at"`
}

// Validate checks the invariants that must hold before a chunk is persisted.
func (c *Chunk) Validate(dim int) error {
	if c.StartLine > c.EndLine {
		return fmt.Errorf("chunk: start_line %d > end_line %d", c.StartLine, c.EndLine)
	}
	if !c.ChunkType.Valid() {
		return fmt.Errorf("chunk: invalid chunk_type %q", c.ChunkType)
	}
	if c.EmbeddingText != nil && len(c.EmbeddingText) != dim {
		return fmt.Errorf("chunk: embedding_text dim %d != %d", len(c.EmbeddingText), dim)
	}
	if c.EmbeddingCode != nil && len(c.EmbeddingCode) != dim {
		return fmt.Errorf("chunk: embedding_code dim %d != %d", len(c.EmbeddingCode), dim)
	}
	return nil
}

// NodeType classifies a graph vertex.
type NodeType string

const (
	NodeTypeModule   NodeType = "Module"
	NodeTypeFunction NodeType = "Function"
	NodeTypeClass    NodeType = "Class"
	NodeTypeMethod   NodeType = "Method"
	NodeTypeExternal NodeType = "External"
)

func (t NodeType) Valid() bool {
	switch t {
	case NodeTypeModule, NodeTypeFunction, NodeTypeClass, NodeTypeMethod, NodeTypeExternal:
		return true
	}
	return false
}

// Node is a graph vertex derived from a chunk or a synthesised external symbol.
type Node struct {
	ID         uuid.UUID              `json:"id"`
	NodeType   NodeType               `json:"node_type"`
	Label      string                 `json:"label"`
	Properties map[string]interface{} `json:"properties"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Repository reads properties["repository"] if present.
func (n *Node) Repository() string {
	if n.Properties == nil {
		return ""
	}
	if v, ok := n.Properties["repository"].(string); ok {
		return v
	}
	return ""
}

// ChunkID reads properties["chunk_id"] if present.
func (n *Node) ChunkID() (uuid.UUID, bool) {
	if n.Properties == nil {
		return uuid.Nil, false
	}
	switch v := n.Properties["chunk_id"].(type) {
	case string:
		id, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, false
		}
		return id, true
	case uuid.UUID:
		return v, true
	}
	return uuid.Nil, false
}

// RelationType classifies a directed edge between two nodes.
type RelationType string

const (
	RelationCalls      RelationType = "calls"
	RelationImports    RelationType = "imports"
	RelationInherits   RelationType = "inherits"
	RelationContains   RelationType = "contains"
	RelationReferences RelationType = "references"
)

func (r RelationType) Valid() bool {
	switch r {
	case RelationCalls, RelationImports, RelationInherits, RelationContains, RelationReferences:
		return true
	}
	return false
}

// Edge is a directed typed relation between two nodes.
type Edge struct {
	ID           uuid.UUID              `json:"id"`
	SourceNodeID uuid.UUID              `json:"source_node_id"`
	TargetNodeID uuid.UUID              `json:"target_node_id"`
	RelationType RelationType           `json:"relation_type"`
	Properties   map[string]interface{} `json:"properties,omitempty"`
	CreatedAt    time.Time              `json:"created_at"`
}

// Key returns the uniqueness key (source, target, relation_type).
func (e *Edge) Key() [3]string {
	return [3]string{e.SourceNodeID.String(), e.TargetNodeID.String(), string(e.RelationType)}
}

// Signature describes the parsed call signature of a chunk.
type Signature struct {
	Parameters []Parameter `json:"parameters"`
	ReturnType string      `json:"return_type,omitempty"`
	IsAsync    bool        `json:"is_async"`
	IsGeneric  bool        `json:"is_generic"`
	Decorators []string    `json:"decorators,omitempty"`
}

// Parameter is a single formal parameter in a Signature.
type Parameter struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// CallRef records one call site found while walking a chunk's sub-AST.
type CallRef struct {
	CalleeName   string `json:"callee_name"`
	Line         int    `json:"line"`
	IsMethodCall bool   `json:"is_method_call"`
}

// ImportRef records one import found while walking a chunk's sub-AST.
type ImportRef struct {
	ImportedName string `json:"imported_name"`
	Module       string `json:"module"`
	IsRelative   bool   `json:"is_relative"`
}

// Complexity summarises the structural complexity of a chunk.
type Complexity struct {
	Cyclomatic  int `json:"cyclomatic"`
	Cognitive   int `json:"cognitive,omitempty"`
	LinesOfCode int `json:"lines_of_code"`
}

// DetailedMetadata is enriched per-chunk information kept in its own table
// for query efficiency, keyed by (NodeID, ChunkID).
type DetailedMetadata struct {
	NodeID       uuid.UUID    `json:"node_id"`
	ChunkID      uuid.UUID    `json:"chunk_id"`
	Parameters   []Parameter  `json:"parameters"`
	ReturnType   string       `json:"return_type,omitempty"`
	IsAsync      bool         `json:"is_async"`
	Cyclomatic   int          `json:"cyclomatic"`
	LinesOfCode  int          `json:"lines_of_code"`
	CallContexts []CallRef    `json:"call_contexts"`
}

// ComputedMetrics holds per-node derived metrics, recomputed on repository reindex.
type ComputedMetrics struct {
	NodeID            uuid.UUID `json:"node_id"`
	EfferentCoupling  int       `json:"efferent_coupling"`
	AfferentCoupling  int       `json:"afferent_coupling"`
	PageRank          float64   `json:"page_rank"`
	ComputedAt        time.Time `json:"computed_at"`
}

// EdgeWeights holds an optional per-edge importance score.
type EdgeWeights struct {
	EdgeID          uuid.UUID `json:"edge_id"`
	ImportanceScore float64   `json:"importance_score"`
}

// MemoryType classifies a Memory's nature.
type MemoryType string

const (
	MemoryTypeNote         MemoryType = "note"
	MemoryTypeDecision     MemoryType = "decision"
	MemoryTypeTask         MemoryType = "task"
	MemoryTypeReference    MemoryType = "reference"
	MemoryTypeConversation MemoryType = "conversation"
)

func (m MemoryType) Valid() bool {
	switch m {
	case MemoryTypeNote, MemoryTypeDecision, MemoryTypeTask, MemoryTypeReference, MemoryTypeConversation:
		return true
	}
	return false
}

// ResourceLink is an external reference attached to a Memory.
type ResourceLink struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri"`
}

// Memory is a user-visible knowledge item: note, decision, task, reference
// or conversation.
//
// Invariants: (ProjectID, Title) is unique among rows with DeletedAt == nil;
// Embedding length equals the process-wide vector dimension when non-nil.
type Memory struct {
	ID            uuid.UUID      `json:"id"`
	Title         string         `json:"title"`
	Content       string         `json:"content"`
	MemoryType    MemoryType     `json:"memory_type"`
	Tags          []string       `json:"tags,omitempty"`
	Author        string         `json:"author,omitempty"`
	ProjectID     *uuid.UUID     `json:"project_id,omitempty"`
	RelatedChunks []uuid.UUID    `json:"related_chunks,omitempty"`
	ResourceLinks []ResourceLink `json:"resource_links,omitempty"`
	Embedding     []float32      `json:"embedding,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     *time.Time     `json:"deleted_at,omitempty"`
}

// IsDeleted reports whether the memory has been soft-deleted.
func (m *Memory) IsDeleted() bool {
	return m.DeletedAt != nil
}

// Project is a scoping container with a case-insensitive unique name.
type Project struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// IndexingError records a single per-file failure during IndexRepository,
// kept in the indexing_errors table for operator visibility.
type IndexingError struct {
	ID         uuid.UUID `json:"id"`
	Repository string    `json:"repository"`
	FilePath   string    `json:"file_path"`
	Stage      string    `json:"stage"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewUUID is a small indirection point so callers never need to import
// google/uuid directly just to mint an identity.
func NewUUID() uuid.UUID {
	return uuid.New()
}
