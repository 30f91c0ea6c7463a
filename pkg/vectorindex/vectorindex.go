// Package vectorindex defines the capability interface for upserting and
// querying the per-tenant collection of dense chunk embeddings (component B).
// Implementations must batch writes and classify errors per
// [github.com/lumenforge/tutorcore/internal/errkind].
package vectorindex

import (
	"context"

	"github.com/lumenforge/tutorcore/pkg/model"
)

// Filter narrows a [Index.Query] or [Index.Delete] to a metadata subset.
// Zero-value fields are unconstrained.
type Filter struct {
	CourseID string
	ModuleID string
	TopicID  string
	Language string
}

// Result pairs a chunk with its cosine distance to the query vector in a
// [Index.Query] response. Lower Distance is more similar.
type Result struct {
	Chunk    model.Chunk
	Distance float64
}

// Index is the capability interface consumed by the ingest pipeline (upsert)
// and the hybrid retriever (query). Implementations are stateless aside from
// a connection/auth handle and are safe to share across goroutines.
type Index interface {
	// Upsert writes or replaces a batch of chunks under collection. Re-running
	// with the same chunk IDs must be idempotent.
	Upsert(ctx context.Context, collection string, chunks []model.Chunk) error

	// Query returns the topK chunks under collection nearest to embedding,
	// narrowed by filter, ordered by ascending distance.
	Query(ctx context.Context, collection string, embedding []float32, topK int, filter Filter) ([]Result, error)

	// Count returns the number of chunks currently stored under collection.
	// Used by the ingest pipeline to verify a post-upsert size increase.
	Count(ctx context.Context, collection string) (int, error)

	// Delete removes every chunk under collection matching filter. Used on
	// course deletion to cascade chunk removal.
	Delete(ctx context.Context, collection string, filter Filter) error
}
