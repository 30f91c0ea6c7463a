package pgvector

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgv "github.com/pgvector/pgvector-go"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
)

// Index is a [vectorindex.Index] backed by a single pgxpool connection pool
// shared with the rest of the durable record store.
//
// All methods are safe for concurrent use.
type Index struct {
	pool *pgxpool.Pool
}

var _ vectorindex.Index = (*Index)(nil)

// New constructs an [Index] over an already-migrated pool. Use [Migrate]
// beforehand to ensure the schema exists.
func New(pool *pgxpool.Pool) *Index {
	return &Index{pool: pool}
}

// Upsert implements [vectorindex.Index]. Re-running with the same chunk IDs
// replaces the prior row, which is what makes ingest retries idempotent.
func (ix *Index) Upsert(ctx context.Context, collection string, chunks []model.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, c := range chunks {
		meta, err := json.Marshal(c.Metadata)
		if err != nil {
			return errkind.Wrap(errkind.InvalidInput, "marshal chunk metadata", err)
		}
		batch.Queue(`
			INSERT INTO document_chunks
			    (chunk_id, collection, source_doc_id, page, offset_begin, offset_end, text, metadata, embedding, model_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (chunk_id) DO UPDATE SET
			    collection    = EXCLUDED.collection,
			    source_doc_id = EXCLUDED.source_doc_id,
			    page          = EXCLUDED.page,
			    offset_begin  = EXCLUDED.offset_begin,
			    offset_end    = EXCLUDED.offset_end,
			    text          = EXCLUDED.text,
			    metadata      = EXCLUDED.metadata,
			    embedding     = EXCLUDED.embedding,
			    model_id      = EXCLUDED.model_id`,
			c.ChunkID, collection, c.SourceDocID, c.Page, c.OffsetBegin, c.OffsetEnd,
			c.Text, meta, pgv.NewVector(c.Embedding), c.ModelID,
		)
	}
	br := ix.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range chunks {
		if _, err := br.Exec(); err != nil {
			return errkind.Wrap(errkind.Transient, "vectorindex: upsert batch", err)
		}
	}
	return nil
}

// Query implements [vectorindex.Index].
func (ix *Index) Query(ctx context.Context, collection string, embedding []float32, topK int, filter vectorindex.Filter) ([]vectorindex.Result, error) {
	args := []any{collection, pgv.NewVector(embedding)}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"collection = $1"}
	if filter.CourseID != "" {
		conditions = append(conditions, "metadata->>'course' = "+next(filter.CourseID))
	}
	if filter.ModuleID != "" {
		conditions = append(conditions, "metadata->>'module' = "+next(filter.ModuleID))
	}
	if filter.TopicID != "" {
		conditions = append(conditions, "metadata->>'topic' = "+next(filter.TopicID))
	}
	if filter.Language != "" {
		conditions = append(conditions, "metadata->>'language' = "+next(filter.Language))
	}

	args = append(args, topK)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT chunk_id, source_doc_id, page, offset_begin, offset_end, text, metadata, embedding, model_id,
		       embedding <=> $2 AS distance
		FROM   document_chunks
		WHERE  %s
		ORDER  BY distance
		LIMIT  %s`, strings.Join(conditions, " AND "), limitArg)

	rows, err := ix.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "vectorindex: query", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorindex.Result, error) {
		var (
			r       vectorindex.Result
			rawMeta []byte
			vec     pgv.Vector
		)
		if err := row.Scan(
			&r.Chunk.ChunkID, &r.Chunk.SourceDocID, &r.Chunk.Page, &r.Chunk.OffsetBegin, &r.Chunk.OffsetEnd,
			&r.Chunk.Text, &rawMeta, &vec, &r.Chunk.ModelID, &r.Distance,
		); err != nil {
			return vectorindex.Result{}, err
		}
		r.Chunk.Embedding = vec.Slice()
		if len(rawMeta) > 0 {
			_ = json.Unmarshal(rawMeta, &r.Chunk.Metadata)
		}
		return r, nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "vectorindex: scan rows", err)
	}
	if results == nil {
		results = []vectorindex.Result{}
	}
	return results, nil
}

// Count implements [vectorindex.Index].
func (ix *Index) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := ix.pool.QueryRow(ctx, `SELECT count(*) FROM document_chunks WHERE collection = $1`, collection).Scan(&n)
	if err != nil {
		return 0, errkind.Wrap(errkind.Transient, "vectorindex: count", err)
	}
	return n, nil
}

// Delete implements [vectorindex.Index].
func (ix *Index) Delete(ctx context.Context, collection string, filter vectorindex.Filter) error {
	args := []any{collection}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	conditions := []string{"collection = $1"}
	if filter.CourseID != "" {
		conditions = append(conditions, "metadata->>'course' = "+next(filter.CourseID))
	}
	if filter.ModuleID != "" {
		conditions = append(conditions, "metadata->>'module' = "+next(filter.ModuleID))
	}
	if filter.TopicID != "" {
		conditions = append(conditions, "metadata->>'topic' = "+next(filter.TopicID))
	}
	if filter.Language != "" {
		conditions = append(conditions, "metadata->>'language' = "+next(filter.Language))
	}
	q := fmt.Sprintf(`DELETE FROM document_chunks WHERE %s`, strings.Join(conditions, " AND "))
	if _, err := ix.pool.Exec(ctx, q, args...); err != nil {
		return errkind.Wrap(errkind.Transient, "vectorindex: delete", err)
	}
	return nil
}
