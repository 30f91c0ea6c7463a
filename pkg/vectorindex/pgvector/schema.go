// Package pgvector provides a PostgreSQL + pgvector implementation of
// [github.com/lumenforge/tutorcore/pkg/vectorindex.Index]. The pgvector
// extension must be available in the target database; [Migrate] installs it
// automatically via CREATE EXTENSION IF NOT EXISTS.
package pgvector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddl returns the document_chunks DDL with the embedding dimension baked
// into the column type, matching the HNSW cosine-distance index the hybrid
// retriever queries against.
func ddl(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS document_chunks (
    chunk_id      TEXT         PRIMARY KEY,
    collection    TEXT         NOT NULL,
    source_doc_id TEXT         NOT NULL,
    page          INT          NOT NULL DEFAULT 0,
    offset_begin  INT          NOT NULL DEFAULT 0,
    offset_end    INT          NOT NULL DEFAULT 0,
    text          TEXT         NOT NULL,
    metadata      JSONB        NOT NULL DEFAULT '{}',
    embedding     vector(%d),
    model_id      TEXT         NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_document_chunks_collection
    ON document_chunks (collection);

CREATE INDEX IF NOT EXISTS idx_document_chunks_embedding
    ON document_chunks USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the document_chunks table and its indexes
// exist. Idempotent; safe to call on every application start.
//
// embeddingDimensions must match the embedding provider configured for the
// deployment (e.g. 1536 for OpenAI text-embedding-3-small). Changing it after
// the first migration requires a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddl(embeddingDimensions)); err != nil {
		return fmt.Errorf("vectorindex migrate: %w", err)
	}
	return nil
}
