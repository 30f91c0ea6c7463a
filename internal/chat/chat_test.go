package chat

import (
	"context"
	"strings"
	"testing"

	"github.com/lumenforge/tutorcore/internal/intent"
	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/internal/session"
	cachemock "github.com/lumenforge/tutorcore/pkg/cache/mock"
	"github.com/lumenforge/tutorcore/pkg/drs"
	drsmock "github.com/lumenforge/tutorcore/pkg/drs/mock"
	"github.com/lumenforge/tutorcore/pkg/model"
	embmock "github.com/lumenforge/tutorcore/pkg/provider/embeddings/mock"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	llmmock "github.com/lumenforge/tutorcore/pkg/provider/llm/mock"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
	vectormock "github.com/lumenforge/tutorcore/pkg/vectorindex/mock"
)

// exemplar axes: Greeting -> {1,0,0}, CourseQuery -> {0,1,0}, GeneralQuestion -> {0,0,1}.
var testExemplars = []intent.Exemplar{
	{Label: intent.Greeting, Text: "hello"},
	{Label: intent.CourseQuery, Text: "tell me about this module"},
	{Label: intent.GeneralQuestion, Text: "what is the weather"},
}

func newTestService(t *testing.T, llmProvider *llmmock.Provider, queryVec []float32) (*Service, *embmock.Provider) {
	t.Helper()
	ctx := context.Background()
	embedder := &embmock.Provider{EmbedBatchResult: [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
	router, err := intent.New(ctx, embedder, testExemplars, intent.DefaultThreshold, intent.GeneralQuestion)
	if err != nil {
		t.Fatalf("intent.New: %v", err)
	}
	embedder.EmbedResult = queryVec

	sessions := session.NewManager(drsmock.New(), cachemock.New())
	return New(sessions, router, nil, llmProvider, nil), embedder
}

func TestTurn_Greeting_NoLLMCall(t *testing.T) {
	llmProvider := &llmmock.Provider{}
	svc, _ := newTestService(t, llmProvider, []float32{1, 0, 0})

	resp, err := svc.Turn(context.Background(), Request{UserID: "u1", Message: "hello", Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RouteLabel != intent.Greeting {
		t.Fatalf("route = %q, want greeting", resp.RouteLabel)
	}
	if len(llmProvider.CompleteCalls) != 0 {
		t.Fatalf("expected no LLM calls for a greeting, got %d", len(llmProvider.CompleteCalls))
	}
	if resp.Answer == "" {
		t.Fatal("expected a non-empty canned greeting")
	}
}

func TestTurn_GeneralQuestion_CallsLLM(t *testing.T) {
	llmProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "The weather varies by location."}}
	svc, _ := newTestService(t, llmProvider, []float32{0, 0, 1})

	resp, err := svc.Turn(context.Background(), Request{UserID: "u2", Message: "what is the weather like today", Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RouteLabel != intent.GeneralQuestion {
		t.Fatalf("route = %q, want general_question", resp.RouteLabel)
	}
	if len(llmProvider.CompleteCalls) != 1 {
		t.Fatalf("expected 1 LLM call, got %d", len(llmProvider.CompleteCalls))
	}
	if resp.Answer != "The weather varies by location." {
		t.Fatalf("unexpected answer: %q", resp.Answer)
	}
}

func TestTurn_GarbageOutput_RetriesThenFallsBack(t *testing.T) {
	garbage := strings.Repeat("a b ", 200)
	llmProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: garbage}}
	svc, _ := newTestService(t, llmProvider, []float32{0, 0, 1})

	resp, err := svc.Turn(context.Background(), Request{UserID: "u3", Message: "what is the weather", Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != fallbackMessage {
		t.Fatalf("expected fallback message after a garbage retry, got %q", resp.Answer)
	}
	if len(llmProvider.CompleteCalls) != 2 {
		t.Fatalf("expected exactly one retry (2 total calls), got %d", len(llmProvider.CompleteCalls))
	}
}

func TestTurn_LongHistory_SummarisesBeforeCompletion(t *testing.T) {
	ctx := context.Background()
	llmProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "The weather varies by location."}}
	svc, _ := newTestService(t, llmProvider, []float32{0, 0, 1})
	svc.WithMaxContextTokens(1)

	sess, err := svc.sessions.GetOrCreate(ctx, "u5", drs.ClientInfo{})
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	for i := 0; i < 6; i++ {
		if _, err := svc.sessions.Append(ctx, model.Message{
			SessionID: sess.SessionID, UserID: "u5", Role: model.RoleUser,
			Content: strings.Repeat("previous turn content ", 20), MessageType: model.MessageText,
		}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	resp, err := svc.Turn(ctx, Request{UserID: "u5", Message: "what is the weather like today", Language: "en"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RouteLabel != intent.GeneralQuestion {
		t.Fatalf("route = %q, want general_question", resp.RouteLabel)
	}
	if len(llmProvider.CompleteCalls) < 2 {
		t.Fatalf("expected a summarisation call ahead of the answer call, got %d completion calls", len(llmProvider.CompleteCalls))
	}
}

func TestTurn_CourseQuery_UsesRetrieverAndCitesSources(t *testing.T) {
	ctx := context.Background()
	embedder := &embmock.Provider{EmbedBatchResult: [][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 1}}}
	router, err := intent.New(ctx, embedder, testExemplars, intent.DefaultThreshold, intent.GeneralQuestion)
	if err != nil {
		t.Fatalf("intent.New: %v", err)
	}
	embedder.EmbedResult = []float32{0, 1, 0}

	index := &vectormock.Index{QueryResults: []vectorindex.Result{
		{Chunk: model.Chunk{ChunkID: "c1", SourceDocID: "doc-1", Page: 3, Text: "Kalman filters estimate state recursively."}},
	}}
	retriever := retrieval.New(embedder, index, nil, nil, retrieval.DefaultConfig, nil)
	llmProvider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Kalman filters are recursive state estimators."}}
	sessions := session.NewManager(drsmock.New(), cachemock.New())
	svc := New(sessions, router, retriever, llmProvider, nil)

	resp, err := svc.Turn(ctx, Request{UserID: "u4", Message: "tell me about this module's Kalman filter section", CourseID: "course-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.RouteLabel != intent.CourseQuery {
		t.Fatalf("route = %q, want course_query", resp.RouteLabel)
	}
	if len(resp.Sources) != 1 || resp.Sources[0].ChunkID != "c1" {
		t.Fatalf("expected one cited source, got %+v", resp.Sources)
	}
}
