package ingest

import (
	"context"
	"testing"

	embmock "github.com/lumenforge/tutorcore/pkg/provider/embeddings/mock"
)

func TestEmbedChunks_AssignsModelIDAndChunkID(t *testing.T) {
	chunks := []rawChunk{
		{Page: 1, OffsetBegin: 0, OffsetEnd: 10, Text: "hello world"},
	}
	provider := &embmock.Provider{
		EmbedBatchResult: [][]float32{{0.1, 0.2}},
		ModelIDValue:     "test-embed-v1",
	}

	out, err := embedChunks(context.Background(), provider, chunks, "doc-1")
	if err != nil {
		t.Fatalf("embedChunks: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(out))
	}
	if out[0].ModelID != "test-embed-v1" {
		t.Fatalf("expected model id to be stamped, got %q", out[0].ModelID)
	}
	if out[0].ChunkID != "doc-1:1:0" {
		t.Fatalf("unexpected chunk id: %q", out[0].ChunkID)
	}
	if out[0].SourceDocID != "doc-1" {
		t.Fatalf("unexpected source doc id: %q", out[0].SourceDocID)
	}
}

func TestEmbedChunks_SplitsIntoMultipleBatches(t *testing.T) {
	big := repeatWords(embedBatchWords - 1)
	chunks := []rawChunk{
		{Page: 1, Text: big},
		{Page: 1, Text: "small trailing chunk"},
	}
	provider := &embmock.Provider{}
	// The mock returns a fixed result regardless of batch size, so only
	// assert on call count here: two distinct batches should be made
	// because the first chunk alone nearly fills embedBatchWords.
	_, err := embedChunks(context.Background(), provider, chunks, "doc-2")
	if err != nil {
		t.Fatalf("embedChunks: %v", err)
	}
	if got := len(provider.EmbedBatchCalls); got != 2 {
		t.Fatalf("expected 2 embedding batches, got %d", got)
	}
}
