// Package mock provides a test double for [reranker.Reranker].
package mock

import (
	"context"

	"github.com/lumenforge/tutorcore/pkg/provider/reranker"
)

// Reranker is a mock implementation of [reranker.Reranker].
type Reranker struct {
	Scores map[string]float64 // chunk ID -> score; missing IDs score 0
	Err    error
}

var _ reranker.Reranker = (*Reranker)(nil)

func (m *Reranker) Rerank(ctx context.Context, query string, candidates []reranker.Candidate) ([]reranker.Scored, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	out := make([]reranker.Scored, len(candidates))
	for i, c := range candidates {
		out[i] = reranker.Scored{ChunkID: c.ChunkID, Score: m.Scores[c.ChunkID]}
	}
	return out, nil
}
