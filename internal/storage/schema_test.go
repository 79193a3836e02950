package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaDDLContainsExpectedObjects(t *testing.T) {
	ddl := schemaDDL(768)

	for _, want := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE EXTENSION IF NOT EXISTS pg_trgm",
		"CREATE TABLE IF NOT EXISTS chunks",
		"CREATE TABLE IF NOT EXISTS nodes",
		"CREATE TABLE IF NOT EXISTS edges",
		"CREATE TABLE IF NOT EXISTS detailed_metadata",
		"CREATE TABLE IF NOT EXISTS computed_metrics",
		"CREATE TABLE IF NOT EXISTS edge_weights",
		"CREATE TABLE IF NOT EXISTS memories",
		"CREATE TABLE IF NOT EXISTS projects",
		"CREATE TABLE IF NOT EXISTS indexing_errors",
		"USING gin (source_code gin_trgm_ops)",
		"USING hnsw (embedding_text vector_cosine_ops)",
		"USING hnsw (embedding_code vector_cosine_ops)",
		"memories_project_title_alive_idx",
	} {
		assert.Contains(t, ddl, want)
	}

	assert.Equal(t, 3, strings.Count(ddl, "vector(768)"))
}

func TestSchemaDDLParameterisesDimension(t *testing.T) {
	ddl1536 := schemaDDL(1536)
	assert.Contains(t, ddl1536, "vector(1536)")
	assert.NotContains(t, ddl1536, "vector(768)")
}
