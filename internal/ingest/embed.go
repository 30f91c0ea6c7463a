package ingest

import (
	"context"
	"fmt"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings"
)

// embedBatchWords caps the number of words sent to the embedding provider in
// a single call, keeping every batch comfortably under typical per-call
// token budgets without needing a model-specific tokenizer here.
const embedBatchWords = 6000

const maxBatchRetries = 2

// embedChunks assigns a dense embedding to every chunk, batching calls to
// provider and retrying a batch up to maxBatchRetries times on a transient
// failure.
func embedChunks(ctx context.Context, provider embeddings.Provider, chunks []rawChunk, sourceDocID string) ([]model.Chunk, error) {
	out := make([]model.Chunk, 0, len(chunks))
	modelID := provider.ModelID()

	for start := 0; start < len(chunks); {
		end := start
		words := 0
		for end < len(chunks) {
			w := wordCount(chunks[end].Text)
			if end > start && words+w > embedBatchWords {
				break
			}
			words += w
			end++
		}
		batch := chunks[start:end]

		vectors, err := embedBatchWithRetry(ctx, provider, batch)
		if err != nil {
			return nil, err
		}
		for i, c := range batch {
			out = append(out, model.Chunk{
				ChunkID:     chunkID(sourceDocID, c.Page, c.OffsetBegin),
				SourceDocID: sourceDocID,
				Page:        c.Page,
				OffsetBegin: c.OffsetBegin,
				OffsetEnd:   c.OffsetEnd,
				Text:        c.Text,
				Embedding:   vectors[i],
				ModelID:     modelID,
			})
		}
		start = end
	}
	return out, nil
}

func embedBatchWithRetry(ctx context.Context, provider embeddings.Provider, batch []rawChunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Text
	}

	var lastErr error
	for attempt := 0; attempt <= maxBatchRetries; attempt++ {
		vectors, err := provider.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err
		if !errkind.Of(err).Retryable() {
			break
		}
	}
	return nil, errkind.Wrap(errkind.Transient, "embed batch", lastErr)
}

// chunkID derives a stable identifier from the source document and the
// chunk's position, so re-ingesting the same document produces the same ids
// and upserts are idempotent.
func chunkID(sourceDocID string, page, offsetBegin int) string {
	return fmt.Sprintf("%s:%d:%d", sourceDocID, page, offsetBegin)
}
