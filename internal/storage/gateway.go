// Package storage implements the Storage Gateway: the thin typed layer
// over PostgreSQL+pgvector that every other component reads and writes
// through. No other package opens a database connection directly.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // registers the "postgres" database/sql driver
	"github.com/pgvector/pgvector-go"

	"mnemolite/internal/config"
	mnemoerrors "mnemolite/internal/errors"
	"mnemolite/internal/retry"
	"mnemolite/pkg/types"
)

// Gateway owns the connection pool and exposes the engine's persistence
// contract. It is the only component permitted to hold a *sql.DB.
type Gateway struct {
	db               *sql.DB
	dim              int
	efSearch         int
	lexicalThreshold float64
	retrier          *retry.Retrier
}

// NewGateway opens the connection pool described by cfg, applies its
// pooling limits, and verifies connectivity with a retried ping (the
// database may still be starting up). It does not create the schema;
// call EnsureSchema for that.
func NewGateway(cfg *config.Config) (*Gateway, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "open database", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.Database.ConnMaxIdleTime)

	g := &Gateway{
		db:               db,
		dim:              cfg.Embedding.Dim,
		efSearch:         cfg.Vector.EFSearch,
		lexicalThreshold: cfg.Lexical.SimilarityThreshold,
		retrier:          retry.New(retry.DefaultConfig()),
	}

	if result := g.retrier.Do(context.Background(), func(ctx context.Context) error {
		return db.PingContext(ctx)
	}); result.Err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "connect to database", result.Err)
	}

	return g, nil
}

// NewGatewayFromDB wraps an already-open *sql.DB, useful for tests against
// sqlmock or an in-memory fixture.
func NewGatewayFromDB(db *sql.DB, dim int) *Gateway {
	return &Gateway{db: db, dim: dim, efSearch: 100, lexicalThreshold: 0.1, retrier: retry.New(retry.DefaultConfig())}
}

// Close releases the underlying connection pool.
func (g *Gateway) Close() error {
	return g.db.Close()
}

// Ping verifies connectivity, used by the health aggregation in C12. It
// retries transient connection failures but never masks a real outage:
// DefaultConfig caps attempts at 3.
func (g *Gateway) Ping(ctx context.Context) error {
	result := g.retrier.Do(ctx, func(ctx context.Context) error {
		return g.db.PingContext(ctx)
	})
	if result.Err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "ping", result.Err)
	}
	return nil
}

// EnsureSchema idempotently creates every table, extension, and index the
// engine depends on.
func (g *Gateway) EnsureSchema(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, schemaDDL(g.dim)); err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "ensure schema", err)
	}
	return nil
}

// Tx is a transaction-scoped handle exposing the gateway's write surface.
// Every multi-statement write the engine performs goes through one Tx so
// the atomicity boundary is always a single database transaction.
type Tx struct {
	tx  *sql.Tx
	dim int
}

// InTransaction runs fn inside one database transaction, committing on a
// nil return and rolling back otherwise. This is the gateway's ACID
// boundary; callers compose multi-statement writes inside fn.
func (g *Gateway) InTransaction(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "begin transaction", err)
	}

	if err := fn(&Tx{tx: sqlTx, dim: g.dim}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
			return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "rollback after error", rbErr)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "commit transaction", err)
	}
	return nil
}

func vectorValue(v []float32) interface{} {
	if v == nil {
		return nil
	}
	vec := pgvector.NewVector(v)
	return &vec
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// AddChunk inserts one chunk row. Callers replacing a file's chunks should
// delete-then-insert inside the same Tx (see DeleteChunksByFile).
func (t *Tx) AddChunk(ctx context.Context, c *types.Chunk) error {
	if err := c.Validate(t.dim); err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInvalidArgument, "add chunk", err)
	}
	if c.ID == uuid.Nil {
		c.ID = types.NewUUID()
	}
	if c.IndexedAt.IsZero() {
		c.IndexedAt = time.Now().UTC()
	}

	metaJSON, err := marshalJSON(c.Metadata)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal chunk metadata", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO chunks (id, repository, file_path, language, chunk_type, name, name_path,
			source_code, start_line, end_line, metadata, embedding_text, embedding_code,
			commit_hash, indexed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		ON CONFLICT (repository, file_path, name_path, start_line)
		DO UPDATE SET source_code = EXCLUDED.source_code, end_line = EXCLUDED.end_line,
			metadata = EXCLUDED.metadata, embedding_text = EXCLUDED.embedding_text,
			embedding_code = EXCLUDED.embedding_code, commit_hash = EXCLUDED.commit_hash,
			indexed_at = EXCLUDED.indexed_at`,
		c.ID, c.Repository, c.FilePath, string(c.Language), string(c.ChunkType),
		nullableString(c.Name), c.NamePath, c.SourceCode, c.StartLine, c.EndLine,
		metaJSON, vectorValue(c.EmbeddingText), vectorValue(c.EmbeddingCode),
		nullableString(c.CommitHash), c.IndexedAt)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "insert chunk", err)
	}
	return nil
}

// DeleteChunksByFile removes all chunks owned by one file, the first half
// of the indexing pipeline's atomic per-file replace.
func (t *Tx) DeleteChunksByFile(ctx context.Context, repository, filePath string) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM chunks WHERE repository=$1 AND file_path=$2`, repository, filePath)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "delete chunks by file", err)
	}
	return nil
}

// DeleteByRepository removes every row owned by a repository, in FK order:
// edge_weights, computed_metrics, detailed_metadata, edges, nodes, chunks,
// indexing_errors.
func (t *Tx) DeleteByRepository(ctx context.Context, repository string) error {
	stmts := []string{
		`DELETE FROM edge_weights WHERE edge_id IN (
			SELECT e.id FROM edges e JOIN nodes n ON n.id = e.source_node_id
			WHERE n.properties->>'repository' = $1)`,
		`DELETE FROM computed_metrics WHERE node_id IN (
			SELECT id FROM nodes WHERE properties->>'repository' = $1)`,
		`DELETE FROM detailed_metadata WHERE chunk_id IN (
			SELECT id FROM chunks WHERE repository = $1)`,
		`DELETE FROM edges WHERE source_node_id IN (
			SELECT id FROM nodes WHERE properties->>'repository' = $1)
			OR target_node_id IN (SELECT id FROM nodes WHERE properties->>'repository' = $1)`,
		`DELETE FROM nodes WHERE properties->>'repository' = $1`,
		`DELETE FROM chunks WHERE repository = $1`,
		`DELETE FROM indexing_errors WHERE repository = $1`,
	}
	for _, stmt := range stmts {
		if _, err := t.tx.ExecContext(ctx, stmt, repository); err != nil {
			return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "delete by repository", err)
		}
	}
	return nil
}

// UpsertNode inserts or updates a node, idempotent on its id.
func (t *Tx) UpsertNode(ctx context.Context, n *types.Node) error {
	if !n.NodeType.Valid() {
		return mnemoerrors.New(mnemoerrors.KindInvalidArgument, fmt.Sprintf("invalid node_type %q", n.NodeType))
	}
	if n.ID == uuid.Nil {
		n.ID = types.NewUUID()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	propsJSON, err := marshalJSON(n.Properties)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal node properties", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO nodes (id, node_type, label, properties, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET node_type=EXCLUDED.node_type, label=EXCLUDED.label,
			properties=EXCLUDED.properties`,
		n.ID, string(n.NodeType), n.Label, propsJSON, n.CreatedAt)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "upsert node", err)
	}
	return nil
}

// UpsertEdge inserts or updates an edge, idempotent on (source, target, relation_type).
func (t *Tx) UpsertEdge(ctx context.Context, e *types.Edge) error {
	if !e.RelationType.Valid() {
		return mnemoerrors.New(mnemoerrors.KindInvalidArgument, fmt.Sprintf("invalid relation_type %q", e.RelationType))
	}
	if e.ID == uuid.Nil {
		e.ID = types.NewUUID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	propsJSON, err := marshalJSON(e.Properties)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal edge properties", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO edges (id, source_node_id, target_node_id, relation_type, properties, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (source_node_id, target_node_id, relation_type) DO UPDATE SET properties=EXCLUDED.properties`,
		e.ID, e.SourceNodeID, e.TargetNodeID, string(e.RelationType), propsJSON, e.CreatedAt)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "upsert edge", err)
	}
	return nil
}

// InsertDetailedMetadata writes the per-chunk enriched metadata row.
func (t *Tx) InsertDetailedMetadata(ctx context.Context, m *types.DetailedMetadata) error {
	paramsJSON, err := marshalJSON(m.Parameters)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal parameters", err)
	}
	callsJSON, err := marshalJSON(m.CallContexts)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindInternal, "marshal call contexts", err)
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO detailed_metadata (node_id, chunk_id, parameters, return_type, is_async,
			cyclomatic, lines_of_code, call_contexts)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (node_id, chunk_id) DO UPDATE SET parameters=EXCLUDED.parameters,
			return_type=EXCLUDED.return_type, is_async=EXCLUDED.is_async,
			cyclomatic=EXCLUDED.cyclomatic, lines_of_code=EXCLUDED.lines_of_code,
			call_contexts=EXCLUDED.call_contexts`,
		m.NodeID, m.ChunkID, paramsJSON, nullableString(m.ReturnType), m.IsAsync,
		m.Cyclomatic, m.LinesOfCode, callsJSON)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "insert detailed metadata", err)
	}
	return nil
}

// UpsertComputedMetrics writes the per-node derived metrics row.
func (t *Tx) UpsertComputedMetrics(ctx context.Context, m *types.ComputedMetrics) error {
	if m.ComputedAt.IsZero() {
		m.ComputedAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO computed_metrics (node_id, efferent_coupling, afferent_coupling, page_rank, computed_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (node_id) DO UPDATE SET efferent_coupling=EXCLUDED.efferent_coupling,
			afferent_coupling=EXCLUDED.afferent_coupling, page_rank=EXCLUDED.page_rank,
			computed_at=EXCLUDED.computed_at`,
		m.NodeID, m.EfferentCoupling, m.AfferentCoupling, m.PageRank, m.ComputedAt)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "upsert computed metrics", err)
	}
	return nil
}

// InsertIndexingError appends one row to the indexing error ledger.
func (t *Tx) InsertIndexingError(ctx context.Context, e *types.IndexingError) error {
	if e.ID == uuid.Nil {
		e.ID = types.NewUUID()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO indexing_errors (id, repository, file_path, stage, message, occurred_at)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		e.ID, e.Repository, e.FilePath, e.Stage, e.Message, e.OccurredAt)
	if err != nil {
		return mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "insert indexing error", err)
	}
	return nil
}

// AddChunk is the non-transactional convenience form of Tx.AddChunk, for
// callers that are not already inside a pipeline transaction.
func (g *Gateway) AddChunk(ctx context.Context, c *types.Chunk) (uuid.UUID, error) {
	err := g.InTransaction(ctx, func(tx *Tx) error {
		return tx.AddChunk(ctx, c)
	})
	return c.ID, err
}

// DeleteByRepository is the non-transactional convenience form of
// Tx.DeleteByRepository.
func (g *Gateway) DeleteByRepository(ctx context.Context, repository string) error {
	return g.InTransaction(ctx, func(tx *Tx) error {
		return tx.DeleteByRepository(ctx, repository)
	})
}

// DeleteByFile is the non-transactional convenience form of Tx.DeleteChunksByFile.
func (g *Gateway) DeleteByFile(ctx context.Context, repository, filePath string) error {
	return g.InTransaction(ctx, func(tx *Tx) error {
		return tx.DeleteChunksByFile(ctx, repository, filePath)
	})
}

// GetChunks returns every chunk owned by a repository.
func (g *Gateway) GetChunks(ctx context.Context, repository string) ([]types.Chunk, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT id, repository, file_path, language, chunk_type, COALESCE(name,''), name_path,
			source_code, start_line, end_line, metadata, commit_hash, indexed_at
		FROM chunks WHERE repository=$1 ORDER BY file_path, start_line`, repository)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "get chunks", err)
	}
	defer rows.Close()

	var out []types.Chunk
	for rows.Next() {
		var c types.Chunk
		var language, chunkType string
		var metaRaw []byte
		var commitHash sql.NullString
		if err := rows.Scan(&c.ID, &c.Repository, &c.FilePath, &language, &chunkType, &c.Name,
			&c.NamePath, &c.SourceCode, &c.StartLine, &c.EndLine, &metaRaw, &commitHash, &c.IndexedAt); err != nil {
			return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan chunk", err)
		}
		c.Language = types.Language(language)
		c.ChunkType = types.ChunkType(chunkType)
		c.CommitHash = commitHash.String
		if len(metaRaw) > 0 {
			_ = json.Unmarshal(metaRaw, &c.Metadata)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CountByFilter returns the number of chunks matching filters, for hybrid paging.
func (g *Gateway) CountByFilter(ctx context.Context, f types.Filters) (int, error) {
	var args []interface{}
	conds := appendFilterConditions(f, &args)
	query := fmt.Sprintf(`SELECT count(*) FROM chunks %s`, whereClause(conds))
	var count int
	if err := g.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "count by filter", err)
	}
	return count, nil
}

// TrigramSearch ranks chunks by pg_trgm similarity of their source code to
// query, restricted to rows at or above the configured similarity floor.
func (g *Gateway) TrigramSearch(ctx context.Context, query string, f types.Filters, limit int) ([]types.LexicalResult, error) {
	var args []interface{}
	args = append(args, query)
	args = append(args, g.lexicalThreshold)
	conds := []string{fmt.Sprintf("similarity(source_code, $1) >= $%d", len(args))}
	conds = append(conds, appendFilterConditions(f, &args)...)
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
		SELECT id, similarity(source_code, $1) AS score
		FROM chunks %s
		ORDER BY score DESC
		LIMIT $%d`, whereClause(conds), len(args))

	rows, err := g.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "trigram search", err)
	}
	defer rows.Close()

	var out []types.LexicalResult
	rank := 0
	for rows.Next() {
		var r types.LexicalResult
		if err := rows.Scan(&r.ChunkID, &r.Score); err != nil {
			return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan trigram result", err)
		}
		rank++
		r.Rank = rank
		out = append(out, r)
	}
	return out, rows.Err()
}

// VectorSearch ranks chunks by cosine distance of the requested embedding
// domain's column to vec, using the configured HNSW ef_search.
func (g *Gateway) VectorSearch(ctx context.Context, vec []float32, domain types.EmbeddingDomain, f types.Filters, limit int) ([]types.VectorResult, error) {
	return g.VectorSearchEF(ctx, vec, domain, f, limit, g.efSearch)
}

// VectorSearchEF is VectorSearch with an explicit ef_search override,
// applied via SET LOCAL for the scope of one transaction only (per
// spec.md §4.9, "must be applied per-query without persisting"). Passing
// efSearch<=0 falls back to the gateway's configured default.
func (g *Gateway) VectorSearchEF(ctx context.Context, vec []float32, domain types.EmbeddingDomain, f types.Filters, limit, efSearch int) ([]types.VectorResult, error) {
	column := "embedding_text"
	if domain == types.DomainCode {
		column = "embedding_code"
	}
	if efSearch <= 0 {
		efSearch = g.efSearch
	}

	return g.vectorSearch(ctx, vec, column, f, limit, efSearch)
}

// Dim returns the process-wide embedding dimension the gateway validates
// chunk and memory vectors against.
func (g *Gateway) Dim() int { return g.dim }

func (g *Gateway) vectorSearch(ctx context.Context, vec []float32, column string, f types.Filters, limit, efSearch int) ([]types.VectorResult, error) {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "begin vector search", err)
	}
	defer tx.Rollback() //nolint:errcheck // read-only transaction, rollback is always safe to ignore here

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", efSearch)); err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "set ef_search", err)
	}

	var args []interface{}
	args = append(args, vectorValue(vec))
	conds := []string{fmt.Sprintf("%s IS NOT NULL", column)}
	conds = append(conds, appendFilterConditions(f, &args)...)
	args = append(args, limit)

	sqlQuery := fmt.Sprintf(`
		SELECT id, %[1]s <=> $1 AS distance
		FROM chunks %s
		ORDER BY %[1]s <=> $1
		LIMIT $%d`, column, whereClause(conds), len(args))

	rows, err := tx.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "vector search", err)
	}
	defer rows.Close()

	var out []types.VectorResult
	rank := 0
	for rows.Next() {
		var r types.VectorResult
		if err := rows.Scan(&r.ChunkID, &r.Distance); err != nil {
			return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "scan vector result", err)
		}
		r.Similarity = 1 - r.Distance
		rank++
		r.Rank = rank
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, mnemoerrors.Wrap(mnemoerrors.KindStorageUnavailable, "iterate vector results", err)
	}
	return out, tx.Commit()
}

// appendFilterConditions appends filter values to args (continuing its
// existing parameter numbering) and returns the matching SQL conditions.
func appendFilterConditions(f types.Filters, args *[]interface{}) []string {
	var conds []string
	add := func(col, val string) {
		if val == "" {
			return
		}
		*args = append(*args, val)
		conds = append(conds, fmt.Sprintf("%s = $%d", col, len(*args)))
	}
	add("language", string(f.Language))
	add("chunk_type", string(f.ChunkType))
	add("repository", f.Repository)
	add("file_path", f.FilePath)
	if f.ReturnType != "" {
		*args = append(*args, f.ReturnType)
		conds = append(conds, fmt.Sprintf("metadata->'signature'->>'return_type' = $%d", len(*args)))
	}
	if f.ParamType != "" {
		*args = append(*args, f.ParamType)
		conds = append(conds, fmt.Sprintf("metadata->'signature'->'parameters' @> jsonb_build_array(jsonb_build_object('type', $%d::text))", len(*args)))
	}
	return conds
}

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "WHERE " + joinAnd(conds)
}

func joinAnd(conds []string) string {
	out := conds[0]
	for _, c := range conds[1:] {
		out += " AND " + c
	}
	return out
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
