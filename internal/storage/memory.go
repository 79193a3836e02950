package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/pkg/types"
)

// MemoryPatch carries the fields an Update call wants to change; a nil
// pointer (or nil slice) leaves the corresponding column untouched, per
// spec.md §4.11's partial-update contract.
type MemoryPatch struct {
	Title         *string
	Content       *string
	MemoryType    *types.MemoryType
	Tags          []string
	Author        *string
	RelatedChunks []uuid.UUID
	ResourceLinks []types.ResourceLink
	Embedding     []float32 // only applied when Embedding != nil
}

// CreateMemory inserts a memory row, enforcing the (project_id, title)
// uniqueness invariant among non-deleted rows. Postgres unique indexes treat
// NULL project_id values as distinct from one another, so the conflict check
// is done explicitly here rather than relying solely on the partial index.
func (t *Tx) CreateMemory(ctx context.Context, m *types.Memory) error {
	if m.ID == uuid.Nil {
		m.ID = types.NewUUID()
	}
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	var exists bool
	err := t.tx.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM memories
			WHERE title = $1 AND deleted_at IS NULL
			AND project_id IS NOT DISTINCT FROM $2
		)`, m.Title, nullableProjectID(m.ProjectID)).Scan(&exists)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "check memory uniqueness", err)
	}
	if exists {
		return mnemoerrors.New(mnemoerrors.KindConflict, fmt.Sprintf("memory titled %q already exists in this project", m.Title))
	}

	linksJSON, err := marshalJSON(m.ResourceLinks)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal resource links", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO memories (id, title, content, memory_type, tags, author, project_id,
			related_chunks, resource_links, embedding, created_at, updated_at, deleted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,NULL)`,
		m.ID, m.Title, m.Content, string(m.MemoryType), pq.Array(m.Tags), nullableString(m.Author),
		nullableProjectID(m.ProjectID), pq.Array(uuidsToStrings(m.RelatedChunks)), linksJSON,
		vectorValue(m.Embedding), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "insert memory", err)
	}
	return nil
}

// CreateMemory is the non-transactional convenience form of Tx.CreateMemory.
func (g *Gateway) CreateMemory(ctx context.Context, m *types.Memory) (uuid.UUID, error) {
	err := g.InTransaction(ctx, func(tx *Tx) error {
		return tx.CreateMemory(ctx, m)
	})
	return m.ID, err
}

// GetMemoryByID returns the memory, or nil if the row is missing or
// soft-deleted, per spec.md §4.11.
func (g *Gateway) GetMemoryByID(ctx context.Context, id uuid.UUID) (*types.Memory, error) {
	row := g.db.QueryRowContext(ctx, `
		SELECT id, title, content, memory_type, tags, author, project_id, related_chunks,
			resource_links, created_at, updated_at, deleted_at
		FROM memories WHERE id = $1 AND deleted_at IS NULL`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "get memory", err)
	}
	return m, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*types.Memory, error) {
	var m types.Memory
	var memoryType string
	var tags pq.StringArray
	var author sql.NullString
	var projectID sql.NullString
	var relatedChunks pq.StringArray
	var linksRaw []byte
	var deletedAt sql.NullTime

	if err := row.Scan(&m.ID, &m.Title, &m.Content, &memoryType, &tags, &author, &projectID,
		&relatedChunks, &linksRaw, &m.CreatedAt, &m.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}

	m.MemoryType = types.MemoryType(memoryType)
	m.Tags = []string(tags)
	m.Author = author.String
	if projectID.Valid {
		if pid, err := uuid.Parse(projectID.String); err == nil {
			m.ProjectID = &pid
		}
	}
	m.RelatedChunks = stringsToUUIDs([]string(relatedChunks))
	if len(linksRaw) > 0 {
		_ = json.Unmarshal(linksRaw, &m.ResourceLinks)
	}
	if deletedAt.Valid {
		d := deletedAt.Time
		m.DeletedAt = &d
	}
	return &m, nil
}

// UpdateMemory applies a partial update. When patch.Embedding is non-nil the
// embedding column is replaced; otherwise the existing embedding is
// preserved, per spec.md §4.11 ("the caller may supply a new embedding;
// otherwise existing embedding is preserved").
func (g *Gateway) UpdateMemory(ctx context.Context, id uuid.UUID, patch MemoryPatch) error {
	return g.InTransaction(ctx, func(tx *Tx) error {
		sets := []string{"updated_at = $1"}
		args := []interface{}{time.Now().UTC()}

		add := func(col string, val interface{}) {
			args = append(args, val)
			sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
		}
		if patch.Title != nil {
			add("title", *patch.Title)
		}
		if patch.Content != nil {
			add("content", *patch.Content)
		}
		if patch.MemoryType != nil {
			add("memory_type", string(*patch.MemoryType))
		}
		if patch.Tags != nil {
			add("tags", pq.Array(patch.Tags))
		}
		if patch.Author != nil {
			add("author", *patch.Author)
		}
		if patch.RelatedChunks != nil {
			add("related_chunks", pq.Array(uuidsToStrings(patch.RelatedChunks)))
		}
		if patch.ResourceLinks != nil {
			linksJSON, err := marshalJSON(patch.ResourceLinks)
			if err != nil {
				return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal resource links", err)
			}
			add("resource_links", linksJSON)
		}
		if patch.Embedding != nil {
			add("embedding", vectorValue(patch.Embedding))
		}

		args = append(args, id)
		query := fmt.Sprintf("UPDATE memories SET %s WHERE id = $%d AND deleted_at IS NULL",
			joinAnd(sets), len(args))
		result, err := tx.tx.ExecContext(ctx, query, args...)
		if err != nil {
			return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "update memory", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "update memory rows affected", err)
		}
		if rows == 0 {
			return mnemoerrors.New(mnemoerrors.KindNotFound, "memory not found")
		}
		return nil
	})
}

// SoftDeleteMemory marks a memory deleted; subsequent GetMemoryByID returns nil while
// the row remains in the table. Only the ALIVE -> DELETED transition is
// legal: a row that is already deleted (or never existed) is NotFound.
func (g *Gateway) SoftDeleteMemory(ctx context.Context, id uuid.UUID) error {
	result, err := g.db.ExecContext(ctx, `
		UPDATE memories SET deleted_at = $1 WHERE id = $2 AND deleted_at IS NULL`,
		time.Now().UTC(), id)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "soft delete memory", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "soft delete rows affected", err)
	}
	if rows == 0 {
		return mnemoerrors.New(mnemoerrors.KindNotFound, "memory not found or already deleted")
	}
	return nil
}

// DeletePermanentlyMemory hard-deletes a row. Precondition: the row must
// already be soft-deleted, per spec.md §4.11's DELETED -> REMOVED transition.
func (g *Gateway) DeletePermanentlyMemory(ctx context.Context, id uuid.UUID) error {
	var deletedAt sql.NullTime
	err := g.db.QueryRowContext(ctx, `SELECT deleted_at FROM memories WHERE id = $1`, id).Scan(&deletedAt)
	if err == sql.ErrNoRows {
		return mnemoerrors.New(mnemoerrors.KindNotFound, "memory not found")
	}
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "check memory deletion state", err)
	}
	if !deletedAt.Valid {
		return mnemoerrors.ErrNotSoftDeleted
	}
	if _, err := g.db.ExecContext(ctx, `DELETE FROM memories WHERE id = $1`, id); err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "delete memory permanently", err)
	}
	return nil
}

// ListMemories returns memories matching filters, paginated, plus the total
// matching count (ignoring limit/offset) for caller-side paging.
func (g *Gateway) ListMemories(ctx context.Context, f types.MemoryFilters, limit, offset int) ([]types.Memory, int, error) {
	var args []interface{}
	conds := memoryFilterConditions(f, &args)

	countQuery := fmt.Sprintf(`SELECT count(*) FROM memories %s`, whereClause(conds))
	var total int
	if err := g.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "count memories", err)
	}

	if limit <= 0 {
		return nil, total, nil
	}

	args = append(args, limit, offset)
	query := fmt.Sprintf(`
		SELECT id, title, content, memory_type, tags, author, project_id, related_chunks,
			resource_links, created_at, updated_at, deleted_at
		FROM memories %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`, whereClause(conds), len(args)-1, len(args))

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "list memories", err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, 0, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan memory", err)
		}
		out = append(out, *m)
	}
	return out, total, rows.Err()
}

// SearchMemoriesByVector ranks non-deleted memories by cosine distance of
// their embedding to vec, within distanceThreshold, applying filters.
func (g *Gateway) SearchMemoriesByVector(ctx context.Context, vec []float32, f types.MemoryFilters, limit int, distanceThreshold float64) ([]types.Memory, int, error) {
	var args []interface{}
	args = append(args, vectorValue(vec))
	conds := []string{"embedding IS NOT NULL"}
	conds = append(conds, memoryFilterConditions(f, &args)...)
	args = append(args, distanceThreshold)
	conds = append(conds, fmt.Sprintf("(embedding <=> $1) <= $%d", len(args)))
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, title, content, memory_type, tags, author, project_id, related_chunks,
			resource_links, created_at, updated_at, deleted_at
		FROM memories %s
		ORDER BY embedding <=> $1
		LIMIT $%d`, whereClause(conds), len(args))

	rows, err := g.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "search memories by vector", err)
	}
	defer rows.Close()

	var out []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, 0, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan memory", err)
		}
		out = append(out, *m)
	}
	return out, len(out), rows.Err()
}

func memoryFilterConditions(f types.MemoryFilters, args *[]interface{}) []string {
	var conds []string
	if !f.IncludeDeleted {
		conds = append(conds, "deleted_at IS NULL")
	}
	if f.ProjectID != nil {
		*args = append(*args, f.ProjectID.String())
		conds = append(conds, fmt.Sprintf("project_id = $%d", len(*args)))
	}
	if f.MemoryType != "" {
		*args = append(*args, string(f.MemoryType))
		conds = append(conds, fmt.Sprintf("memory_type = $%d", len(*args)))
	}
	if f.Author != "" {
		*args = append(*args, f.Author)
		conds = append(conds, fmt.Sprintf("author = $%d", len(*args)))
	}
	if len(f.Tags) > 0 {
		*args = append(*args, pq.Array(f.Tags))
		conds = append(conds, fmt.Sprintf("tags && $%d", len(*args)))
	}
	return conds
}

func nullableProjectID(id *uuid.UUID) interface{} {
	if id == nil {
		return nil
	}
	return id.String()
}

func uuidsToStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func stringsToUUIDs(ss []string) []uuid.UUID {
	if len(ss) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(ss))
	for _, s := range ss {
		if id, err := uuid.Parse(s); err == nil {
			out = append(out, id)
		}
	}
	return out
}
