// Package retrieval implements the hybrid retriever (component F): dense
// vector search, lexical BM25 search, reciprocal rank fusion, and optional
// cross-encoder reranking, with a four-rung degradation ladder so that a
// missing component degrades the result set rather than erroring.
package retrieval

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/lumenforge/tutorcore/internal/observe"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings"
	"github.com/lumenforge/tutorcore/pkg/provider/reranker"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
)

// Rung names the degradation level a query was served at, for metrics and
// the "log once per component failure, not per query" requirement.
type Rung string

const (
	RungFullHybrid     Rung = "full_hybrid"
	RungDenseRerank    Rung = "dense_rerank"
	RungDenseOnly      Rung = "dense_only"
	RungEmpty          Rung = "empty"
)

// Query carries a natural-language question plus optional narrowing
// filters.
type Query struct {
	Text     string
	CourseID string
	ModuleID string
	Language string
}

// Result is one retrieved chunk with its fused or reranked score and the
// rung the overall query was served at.
type Result struct {
	Chunk model.Chunk
	Score float64
	Rung  Rung
}

// SparseIndex is the lexical search capability the retriever queries
// alongside the dense vector index. The production implementation is
// bleveindex.Index, an in-memory index holding the chunks that the ingest
// pipeline has indexed in this process.
type SparseIndex interface {
	// Search returns up to topK chunk IDs ranked by BM25 score (best first),
	// scoped to the given collection.
	Search(ctx context.Context, collection string, query string, topK int) ([]string, error)

	// Index adds or replaces a chunk in the lexical index.
	Index(ctx context.Context, collection string, chunk model.Chunk) error
}

// Config tunes the retrieval pipeline's constants.
type Config struct {
	DenseK    int     // K1, default 10
	SparseK   int     // K2, default 10
	TopR      int     // R, default 4
	RRFKappa  float64 // κ, default 60
	DenseBias float64 // α, default 0.6 (60% dense)
}

// DefaultConfig matches the pipeline's documented defaults.
var DefaultConfig = Config{DenseK: 10, SparseK: 10, TopR: 4, RRFKappa: 60, DenseBias: 0.6}

// Retriever implements the hybrid retrieval pipeline.
type Retriever struct {
	embedder embeddings.Provider
	index    vectorindex.Index
	sparse   SparseIndex // may be nil: sparse retrieval is skipped
	rerank   reranker.Reranker // may be nil: rerank stage is skipped
	cfg      Config
	metrics  *observe.Metrics

	warnOnce struct {
		sparse sync.Once
		rerank sync.Once
	}
}

// New constructs a [Retriever]. sparse and rerank may be nil; their absence
// degrades the ladder but never errors.
func New(embedder embeddings.Provider, index vectorindex.Index, sparse SparseIndex, rerank reranker.Reranker, cfg Config, metrics *observe.Metrics) *Retriever {
	if cfg.DenseK == 0 {
		cfg = DefaultConfig
	}
	return &Retriever{embedder: embedder, index: index, sparse: sparse, rerank: rerank, cfg: cfg, metrics: metrics}
}

// Retrieve runs the full hybrid pipeline for q against collection, returning
// at most TopR results. It never returns an error for a down component —
// only for a failure in embedding the query itself, which makes dense
// retrieval (the pipeline's floor) impossible.
func (r *Retriever) Retrieve(ctx context.Context, collection string, q Query) ([]Result, error) {
	queryVec, err := r.embedder.Embed(ctx, q.Text)
	if err != nil {
		return nil, err
	}

	filter := vectorindex.Filter{CourseID: q.CourseID, ModuleID: q.ModuleID, Language: q.Language}

	// Dense and sparse retrieval are independent lookups against separate
	// indexes; run them concurrently via errgroup and assemble the results,
	// the same fan-out-then-join shape the teacher uses to fetch
	// independent hot-context sources in parallel. A sparse failure must
	// degrade rather than abort the query, so its error is captured locally
	// instead of returned to the group.
	var dense []vectorindex.Result
	var denseErr error
	var sparseRanked []string
	var sparseErr error

	var g errgroup.Group
	g.Go(func() error {
		dense, denseErr = r.index.Query(ctx, collection, queryVec, r.cfg.DenseK, filter)
		return nil
	})
	if r.sparse != nil {
		g.Go(func() error {
			sparseRanked, sparseErr = r.sparse.Search(ctx, collection, q.Text, r.cfg.SparseK)
			return nil
		})
	}
	g.Wait()

	if denseErr != nil {
		r.recordRung(ctx, RungEmpty)
		slog.Warn("retrieval: dense query failed, returning empty", "error", denseErr)
		return nil, nil
	}
	if len(dense) == 0 {
		r.recordRung(ctx, RungEmpty)
		return nil, nil
	}

	denseRanked := chunkIDs(dense, func(r vectorindex.Result) model.Chunk { return r.Chunk })

	if sparseErr != nil {
		r.warnOnce.sparse.Do(func() {
			slog.Warn("retrieval: sparse index unavailable, degrading to dense-only fusion", "error", sparseErr)
		})
		sparseRanked = nil
	}

	fused := fuse(denseRanked, sparseRanked, r.cfg.RRFKappa, r.cfg.DenseBias)
	rung := RungFullHybrid
	if sparseRanked == nil {
		rung = RungDenseOnly
	}

	byID := make(map[string]model.Chunk, len(dense))
	for _, d := range dense {
		byID[d.Chunk.ChunkID] = d.Chunk
	}

	if r.rerank != nil {
		candidates := make([]reranker.Candidate, 0, len(fused))
		for _, f := range fused {
			if c, ok := byID[f.id]; ok {
				candidates = append(candidates, reranker.Candidate{ChunkID: c.ChunkID, Text: c.Text})
			}
		}
		scores, err := r.rerank.Rerank(ctx, q.Text, candidates)
		if err != nil {
			r.warnOnce.rerank.Do(func() {
				slog.Warn("retrieval: reranker unavailable, skipping rerank stage", "error", err)
			})
			if rung == RungFullHybrid {
				rung = RungDenseOnly
			}
		} else {
			fused = applyRerank(fused, scores)
			if rung == RungFullHybrid {
				rung = RungDenseRerank
			}
		}
	}

	sort.Slice(fused, func(i, j int) bool { return fused[i].score > fused[j].score })
	if len(fused) > r.cfg.TopR {
		fused = fused[:r.cfg.TopR]
	}

	results := make([]Result, 0, len(fused))
	for _, f := range fused {
		chunk, ok := byID[f.id]
		if !ok {
			continue
		}
		results = append(results, Result{Chunk: chunk, Score: f.score, Rung: rung})
	}

	r.recordRung(ctx, rung)
	return results, nil
}

func (r *Retriever) recordRung(ctx context.Context, rung Rung) {
	if r.metrics != nil {
		r.metrics.RecordRetrievalQuery(ctx, string(rung))
	}
}

type fusedEntry struct {
	id    string
	score float64
}

// fuse computes Reciprocal Rank Fusion over the dense and sparse rankings,
// weighting dense by denseBias (sparse gets 1-denseBias).
func fuse(dense, sparse []string, kappa, denseBias float64) []fusedEntry {
	scores := make(map[string]float64)
	for rank, id := range dense {
		scores[id] += denseBias * (1.0 / (kappa + float64(rank+1)))
	}
	for rank, id := range sparse {
		scores[id] += (1 - denseBias) * (1.0 / (kappa + float64(rank+1)))
	}
	out := make([]fusedEntry, 0, len(scores))
	for id, score := range scores {
		out = append(out, fusedEntry{id: id, score: score})
	}
	return out
}

func applyRerank(fused []fusedEntry, scores []reranker.Scored) []fusedEntry {
	byID := make(map[string]float64, len(scores))
	for _, s := range scores {
		byID[s.ChunkID] = s.Score
	}
	out := make([]fusedEntry, len(fused))
	for i, f := range fused {
		if s, ok := byID[f.id]; ok {
			out[i] = fusedEntry{id: f.id, score: s}
		} else {
			out[i] = f
		}
	}
	return out
}

func chunkIDs(results []vectorindex.Result, get func(vectorindex.Result) model.Chunk) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = get(r).ChunkID
	}
	return ids
}
