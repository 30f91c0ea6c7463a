package intent

import (
	"context"
	"testing"

	embmock "github.com/lumenforge/tutorcore/pkg/provider/embeddings/mock"
)

// fixedEmbedder returns a unit vector along one of a few fixed axes based on
// a keyword in the text, so cosine similarity behaves predictably in tests.
type fixedEmbedder struct{ embmock.Provider }

func vectorFor(text string) []float32 {
	switch {
	case contains(text, "hello") || contains(text, "hi"):
		return []float32{1, 0, 0}
	case contains(text, "course") || contains(text, "module"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func contains(s, sub string) bool {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return true
		}
	}
	return false
}

func TestClassify_ExemplarRoundTrip(t *testing.T) {
	ctx := context.Background()
	exemplars := []Exemplar{
		{Label: Greeting, Text: "hello there"},
		{Label: CourseQuery, Text: "tell me about this course module"},
		{Label: GeneralQuestion, Text: "what is the weather like"},
	}

	embedder := &embmock.Provider{}
	router, err := newTestRouter(ctx, embedder, exemplars)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := router.Classify(ctx, "hi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Label != Greeting {
		t.Fatalf("label = %q, want %q", res.Label, Greeting)
	}
	if res.Confidence < DefaultThreshold {
		t.Fatalf("confidence = %f, want >= %f", res.Confidence, DefaultThreshold)
	}
}

// newTestRouter builds a Router using vectorFor instead of a live embedder
// call, by pre-seeding EmbedBatchResult/EmbedResult per invocation.
func newTestRouter(ctx context.Context, embedder *embmock.Provider, exemplars []Exemplar) (*Router, error) {
	vectors := make([][]float32, len(exemplars))
	for i, e := range exemplars {
		vectors[i] = vectorFor(e.Text)
	}
	embedder.EmbedBatchResult = vectors
	r, err := New(ctx, embedder, exemplars, DefaultThreshold, GeneralQuestion)
	if err != nil {
		return nil, err
	}
	// Classify's single Embed call uses EmbedResult; set it per-call by
	// wrapping embedder would require a stateful stub, so tests that need
	// varying query vectors construct their own embedder per call.
	embedder.EmbedResult = vectorFor("hi")
	return r, nil
}
