// Package intent classifies an incoming user message into one of a small
// fixed label set using embedding-nearest-neighbour against labelled
// exemplar utterances, with a deterministic rule-based fallback. This is an
// order of magnitude faster and cheaper than an LLM call and more
// predictable than keyword rules alone.
package intent

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/lumenforge/tutorcore/pkg/provider/embeddings"
)

// Default route labels.
const (
	Greeting        = "greeting"
	GeneralQuestion = "general_question"
	CourseQuery     = "course_query"
)

// DefaultThreshold is the per-label cosine-similarity threshold below which
// the nearest exemplar is not trusted and the heuristic fallback runs.
const DefaultThreshold = 0.30

// Exemplar is one labelled training utterance.
type Exemplar struct {
	Label string
	Text  string
}

type exemplarVector struct {
	label     string
	text      string
	embedding []float32
}

// Result is the outcome of [Router.Classify].
type Result struct {
	Label      string
	Confidence float64
	LatencyMS  float64
}

// Router classifies messages against a fixed exemplar set, embedded once at
// startup. Safe for concurrent use; Classify does not mutate router state.
type Router struct {
	embedder   embeddings.Provider
	exemplars  []exemplarVector
	threshold  float64
	defaultLbl string
}

// New embeds every exemplar via embedder and returns a ready [Router].
// threshold is applied per classification; pass [DefaultThreshold] unless a
// deployment has tuned it. defaultLabel is returned when neither the
// nearest-exemplar match nor the heuristic fallback is conclusive.
func New(ctx context.Context, embedder embeddings.Provider, exemplars []Exemplar, threshold float64, defaultLabel string) (*Router, error) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if defaultLabel == "" {
		defaultLabel = GeneralQuestion
	}
	texts := make([]string, len(exemplars))
	for i, e := range exemplars {
		texts[i] = e.Text
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	vecs := make([]exemplarVector, len(exemplars))
	for i, e := range exemplars {
		vecs[i] = exemplarVector{label: e.Label, text: e.Text, embedding: vectors[i]}
	}
	return &Router{embedder: embedder, exemplars: vecs, threshold: threshold, defaultLbl: defaultLabel}, nil
}

// Classify embeds message and returns the label of the nearest exemplar
// whose similarity clears its threshold. If nothing clears it, falls back
// to keyword/length heuristics; if that too is inconclusive, returns the
// router's default label.
func (r *Router) Classify(ctx context.Context, message string) (Result, error) {
	start := time.Now()

	vec, err := r.embedder.Embed(ctx, message)
	if err != nil {
		return Result{}, err
	}

	bestLabel := ""
	bestSim := -1.0
	for _, ex := range r.exemplars {
		sim := cosineSimilarity(vec, ex.embedding)
		if sim > bestSim {
			bestSim = sim
			bestLabel = ex.label
		}
	}

	if bestLabel != "" && bestSim >= r.threshold {
		return Result{Label: bestLabel, Confidence: bestSim, LatencyMS: elapsedMS(start)}, nil
	}

	if label, ok := heuristicClassify(message); ok {
		return Result{Label: label, Confidence: r.threshold, LatencyMS: elapsedMS(start)}, nil
	}

	return Result{Label: r.defaultLbl, Confidence: 0, LatencyMS: elapsedMS(start)}, nil
}

func elapsedMS(start time.Time) float64 {
	return float64(time.Since(start)) / float64(time.Millisecond)
}

// heuristicClassify applies simple keyword and length heuristics when the
// embedding match is inconclusive.
func heuristicClassify(message string) (string, bool) {
	trimmed := strings.TrimSpace(strings.ToLower(message))
	if trimmed == "" {
		return "", false
	}

	for _, greeting := range []string{"hi", "hello", "hey", "good morning", "good afternoon", "good evening"} {
		if trimmed == greeting || strings.HasPrefix(trimmed, greeting+" ") || strings.HasPrefix(trimmed, greeting+",") {
			return Greeting, true
		}
	}

	for _, kw := range []string{"module", "topic", "course", "lesson", "chapter", "quiz"} {
		if strings.Contains(trimmed, kw) {
			return CourseQuery, true
		}
	}

	if len(strings.Fields(trimmed)) <= 3 {
		return "", false
	}

	return "", false
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
