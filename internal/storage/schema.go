package storage

import "fmt"

// schemaDDL returns the idempotent DDL for the engine's relational+vector
// schema, parameterised on the process-wide embedding dimension.
//
// Table and index layout follows the authoritative schema in the external
// interfaces contract: chunks, nodes, edges, detailed_metadata,
// computed_metrics, edge_weights, memories, projects, indexing_errors.
func schemaDDL(dim int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;
CREATE EXTENSION IF NOT EXISTS pg_trgm;

CREATE TABLE IF NOT EXISTS projects (
	id UUID PRIMARY KEY,
	name TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS projects_name_ci_idx ON projects (lower(name));

CREATE TABLE IF NOT EXISTS chunks (
	id UUID PRIMARY KEY,
	repository TEXT NOT NULL,
	file_path TEXT NOT NULL,
	language TEXT NOT NULL,
	chunk_type TEXT NOT NULL,
	name TEXT,
	name_path TEXT NOT NULL,
	source_code TEXT NOT NULL,
	start_line INT NOT NULL,
	end_line INT NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	embedding_text vector(%[1]d),
	embedding_code vector(%[1]d),
	commit_hash TEXT,
	indexed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS chunks_identity_idx
	ON chunks (repository, file_path, name_path, start_line);
CREATE INDEX IF NOT EXISTS chunks_repo_file_idx ON chunks (repository, file_path);
CREATE INDEX IF NOT EXISTS chunks_source_trgm_idx ON chunks USING gin (source_code gin_trgm_ops);
CREATE INDEX IF NOT EXISTS chunks_name_trgm_idx ON chunks USING gin (name gin_trgm_ops);

DO $$
BEGIN
	IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'chunks_embedding_text_hnsw_idx') THEN
		EXECUTE 'CREATE INDEX chunks_embedding_text_hnsw_idx ON chunks USING hnsw (embedding_text vector_cosine_ops)';
	END IF;
	IF NOT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'chunks_embedding_code_hnsw_idx') THEN
		EXECUTE 'CREATE INDEX chunks_embedding_code_hnsw_idx ON chunks USING hnsw (embedding_code vector_cosine_ops)';
	END IF;
END
$$;

CREATE TABLE IF NOT EXISTS nodes (
	id UUID PRIMARY KEY,
	node_type TEXT NOT NULL,
	label TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS nodes_repository_idx ON nodes ((properties->>'repository'));
CREATE INDEX IF NOT EXISTS nodes_chunk_id_idx ON nodes ((properties->>'chunk_id'));

CREATE TABLE IF NOT EXISTS edges (
	id UUID PRIMARY KEY,
	source_node_id UUID NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	target_node_id UUID NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
	relation_type TEXT NOT NULL,
	properties JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE UNIQUE INDEX IF NOT EXISTS edges_unique_idx
	ON edges (source_node_id, target_node_id, relation_type);
CREATE INDEX IF NOT EXISTS edges_source_idx ON edges (source_node_id);
CREATE INDEX IF NOT EXISTS edges_target_idx ON edges (target_node_id);

CREATE TABLE IF NOT EXISTS detailed_metadata (
	node_id UUID NOT NULL,
	chunk_id UUID NOT NULL REFERENCES chunks(id) ON DELETE CASCADE,
	parameters JSONB NOT NULL DEFAULT '[]'::jsonb,
	return_type TEXT,
	is_async BOOLEAN NOT NULL DEFAULT false,
	cyclomatic INT NOT NULL DEFAULT 1,
	lines_of_code INT NOT NULL DEFAULT 0,
	call_contexts JSONB NOT NULL DEFAULT '[]'::jsonb,
	PRIMARY KEY (node_id, chunk_id)
);

CREATE TABLE IF NOT EXISTS computed_metrics (
	node_id UUID PRIMARY KEY REFERENCES nodes(id) ON DELETE CASCADE,
	efferent_coupling INT NOT NULL DEFAULT 0,
	afferent_coupling INT NOT NULL DEFAULT 0,
	page_rank DOUBLE PRECISION NOT NULL DEFAULT 0,
	computed_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS edge_weights (
	edge_id UUID PRIMARY KEY REFERENCES edges(id) ON DELETE CASCADE,
	importance_score DOUBLE PRECISION NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS memories (
	id UUID PRIMARY KEY,
	title TEXT NOT NULL,
	content TEXT NOT NULL,
	memory_type TEXT NOT NULL,
	tags TEXT[] NOT NULL DEFAULT '{}',
	author TEXT,
	project_id UUID,
	related_chunks UUID[] NOT NULL DEFAULT '{}',
	resource_links JSONB NOT NULL DEFAULT '[]'::jsonb,
	embedding vector(%[1]d),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at TIMESTAMPTZ
);
CREATE UNIQUE INDEX IF NOT EXISTS memories_project_title_alive_idx
	ON memories (project_id, title) WHERE deleted_at IS NULL;
CREATE INDEX IF NOT EXISTS memories_alive_idx ON memories (id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS indexing_errors (
	id UUID PRIMARY KEY,
	repository TEXT NOT NULL,
	file_path TEXT NOT NULL,
	stage TEXT NOT NULL,
	message TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS indexing_errors_repo_idx ON indexing_errors (repository);
`, dim)
}
