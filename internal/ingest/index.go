package ingest

import (
	"context"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/internal/retrieval/bleveindex"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
)

const indexBatchSize = 200

// upsertChunks writes chunks into the dense index under collection in
// bounded batches, then verifies the collection's count did not decrease.
// Any increase, including one smaller than len(chunks), is accepted, since
// chunk ids that already existed are overwritten rather than added.
func upsertChunks(ctx context.Context, index vectorindex.Index, sparse *bleveindex.Index, collection string, chunks []model.Chunk) error {
	before, err := index.Count(ctx, collection)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "count before upsert", err)
	}

	for start := 0; start < len(chunks); start += indexBatchSize {
		end := start + indexBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		if err := index.Upsert(ctx, collection, batch); err != nil {
			return errkind.Wrap(errkind.Transient, "upsert dense batch", err)
		}
		if sparse != nil {
			for _, c := range batch {
				if err := sparse.Index(ctx, collection, c); err != nil {
					// The sparse index is a best-effort accelerator; the hybrid
					// retriever degrades to dense-only if it is incomplete.
					continue
				}
			}
		}
	}

	after, err := index.Count(ctx, collection)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "count after upsert", err)
	}
	if after < before {
		return errkind.New(errkind.Transient, "vector index count decreased after upsert")
	}
	return nil
}
