// Package reranker defines the cross-encoder reranking capability interface
// consumed by the hybrid retriever's optional rerank stage. A reranker
// scores (query, candidate) pairs directly, which is slower but more
// accurate than embedding similarity alone.
package reranker

import "context"

// Candidate is one (query, chunk) pair to be scored.
type Candidate struct {
	ChunkID string
	Text    string
}

// Scored pairs a candidate's ChunkID with its reranked score. Higher is more
// relevant.
type Scored struct {
	ChunkID string
	Score   float64
}

// Reranker is the capability interface. If unavailable, the hybrid
// retriever skips the rerank stage without error (it is a degradation, not
// a failure).
type Reranker interface {
	// Rerank scores each candidate against query and returns scores in the
	// same order as candidates.
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error)
}
