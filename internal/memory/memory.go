// Package memory implements the business-rule layer of C11 atop the
// already-complete storage CRUD in internal/storage: it auto-generates an
// embedding for a memory's title+content when the caller does not supply
// one, and otherwise passes calls straight through. Grounded on the
// teacher's service-layer-over-repository pattern (a thin struct wrapping
// a storage handle plus one collaborator, no extra state).
package memory

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"mnemolite/internal/embeddings"
	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/internal/logging"
	"mnemolite/internal/storage"
	"mnemolite/pkg/types"
)

// Store is the Memory Store facade: CRUD plus vector search, with
// embedding generation folded in so callers never have to call the
// embedding provider themselves for ordinary memory writes.
type Store struct {
	gw     *storage.Gateway
	embeds embeddings.Service
}

// New builds a Memory Store over a gateway and an embedding service. The
// embedding service may be shared across requests; unlike the indexing
// pipeline's per-worker instances, memory writes are not a concurrency
// hot path dense enough to need isolation.
func New(gw *storage.Gateway, embeds embeddings.Service) *Store {
	return &Store{gw: gw, embeds: embeds}
}

// Create inserts a memory, embedding title+content in the TEXT domain when
// the caller does not supply embedding != nil already.
func (s *Store) Create(ctx context.Context, m *types.Memory) (uuid.UUID, error) {
	if m.Embedding == nil {
		if err := s.embed(ctx, m); err != nil {
			return uuid.Nil, err
		}
	}
	return s.gw.CreateMemory(ctx, m)
}

// GetByID returns the memory, or nil if absent or soft-deleted.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*types.Memory, error) {
	return s.gw.GetMemoryByID(ctx, id)
}

// Update applies a partial update. When the patch changes Title or
// Content and the caller has not supplied a new embedding, and
// regenerateEmbedding is true, a fresh embedding is generated from the
// post-patch title+content; otherwise the existing embedding is preserved
// (storage.MemoryPatch.Embedding stays nil).
func (s *Store) Update(ctx context.Context, id uuid.UUID, patch storage.MemoryPatch, regenerateEmbedding bool) error {
	if regenerateEmbedding && patch.Embedding == nil && (patch.Title != nil || patch.Content != nil) {
		current, err := s.gw.GetMemoryByID(ctx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return mnemoerrors.New(mnemoerrors.KindNotFound, fmt.Sprintf("memory %s not found", id))
		}
		title, content := current.Title, current.Content
		if patch.Title != nil {
			title = *patch.Title
		}
		if patch.Content != nil {
			content = *patch.Content
		}
		vec, err := s.embedText(ctx, title, content)
		if err != nil {
			return err
		}
		patch.Embedding = vec
	}
	return s.gw.UpdateMemory(ctx, id, patch)
}

// SoftDelete marks the memory deleted without removing its row.
func (s *Store) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return s.gw.SoftDeleteMemory(ctx, id)
}

// DeletePermanently removes a soft-deleted memory's row entirely.
func (s *Store) DeletePermanently(ctx context.Context, id uuid.UUID) error {
	return s.gw.DeletePermanentlyMemory(ctx, id)
}

// List returns a filtered, paginated memory listing plus the total count.
func (s *Store) List(ctx context.Context, filters types.MemoryFilters, limit, offset int) ([]types.Memory, int, error) {
	return s.gw.ListMemories(ctx, filters, limit, offset)
}

// SearchByVector finds memories nearest a query vector within a distance
// threshold.
func (s *Store) SearchByVector(ctx context.Context, vec []float32, filters types.MemoryFilters, limit int, distanceThreshold float64) ([]types.Memory, int, error) {
	return s.gw.SearchMemoriesByVector(ctx, vec, filters, limit, distanceThreshold)
}

// SearchByText embeds a free-text query in the TEXT domain and delegates
// to SearchByVector, the convenience path most callers actually want.
func (s *Store) SearchByText(ctx context.Context, query string, filters types.MemoryFilters, limit int, distanceThreshold float64) ([]types.Memory, int, error) {
	vecs, err := s.embeds.Embed(ctx, types.DomainText, []string{query})
	if err != nil {
		return nil, 0, mnemoerrors.Wrap(mnemoerrors.KindEmbeddingUnavailable, "embed memory search query", err)
	}
	return s.SearchByVector(ctx, vecs[0], filters, limit, distanceThreshold)
}

func (s *Store) embed(ctx context.Context, m *types.Memory) error {
	vec, err := s.embedText(ctx, m.Title, m.Content)
	if err != nil {
		return err
	}
	m.Embedding = vec
	return nil
}

// embedText generates a TEXT-domain embedding from a title+content pair.
// An embedding failure is recoverable per spec.md §7 (EmbeddingUnavailable
// leaves the memory written without a vector) rather than aborting the
// write, so callers receive a nil vector instead of an error for this
// specific path; Create still proceeds with m.Embedding left nil.
func (s *Store) embedText(ctx context.Context, title, content string) ([]float32, error) {
	text := title + "\n\n" + content
	vecs, err := s.embeds.Embed(ctx, types.DomainText, []string{text})
	if err != nil {
		logging.MemoryLogger.Warn("memory embedding failed, writing without vector", "error", err.Error())
		return nil, nil
	}
	return vecs[0], nil
}
