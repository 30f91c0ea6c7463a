package app_test

import (
	"context"
	"testing"
	"time"

	"github.com/lumenforge/tutorcore/internal/app"
	"github.com/lumenforge/tutorcore/internal/chat"
	"github.com/lumenforge/tutorcore/internal/config"
	"github.com/lumenforge/tutorcore/internal/quiz"
	cachemock "github.com/lumenforge/tutorcore/pkg/cache/mock"
	"github.com/lumenforge/tutorcore/pkg/drs"
	drsmock "github.com/lumenforge/tutorcore/pkg/drs/mock"
	"github.com/lumenforge/tutorcore/pkg/model"
	embeddingsmock "github.com/lumenforge/tutorcore/pkg/provider/embeddings/mock"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	llmmock "github.com/lumenforge/tutorcore/pkg/provider/llm/mock"
	queuemock "github.com/lumenforge/tutorcore/pkg/queue/mock"
	vectorindexmock "github.com/lumenforge/tutorcore/pkg/vectorindex/mock"
)

// fakeStore composes the individually-mocked storage surfaces into a full
// [drs.Store].
type fakeStore struct {
	*drsmock.SessionStore
	*drsmock.CourseStore
	*drsmock.QuizStore
	*drsmock.TaskStore
	*drsmock.CheckpointStore
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		SessionStore:    drsmock.New(),
		CourseStore:     drsmock.NewCourseStore(),
		QuizStore:       drsmock.NewQuizStore(),
		TaskStore:       drsmock.NewTaskStore(),
		CheckpointStore: drsmock.NewCheckpointStore(),
	}
}

func (f *fakeStore) Close() {}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Chat: config.ChatConfig{
			TurnBudget: 5 * time.Second,
		},
		Orchestrator: config.OrchestratorConfig{
			DefaultVoiceID:   "voice-1",
			FailureThreshold: 3,
			FailureWindow:    time.Minute,
		},
	}
}

func testProviders() *app.Providers {
	return &app.Providers{
		LLM:        &llmmock.Provider{},
		Embeddings: &embeddingsmock.Provider{},
	}
}

func newTestApp(t *testing.T) (*app.App, *queuemock.Broker) {
	t.Helper()

	broker := queuemock.New()
	application, err := app.New(
		context.Background(),
		testConfig(),
		testProviders(),
		app.WithStore(newFakeStore()),
		app.WithCache(cachemock.New()),
		app.WithBroker(broker),
		app.WithVectorIndex(&vectorindexmock.Index{}),
	)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if application == nil {
		t.Fatal("New() returned nil app")
	}
	return application, broker
}

func TestNew_WithMocks(t *testing.T) {
	t.Parallel()
	newTestApp(t)
}

func TestNew_RequiresLLM(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.LLM = nil

	_, err := app.New(context.Background(), testConfig(), providers, app.WithStore(newFakeStore()))
	if err == nil {
		t.Fatal("New() with no LLM provider: want error, got nil")
	}
}

func TestNew_RequiresEmbeddings(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	providers.Embeddings = nil

	_, err := app.New(context.Background(), testConfig(), providers, app.WithStore(newFakeStore()))
	if err == nil {
		t.Fatal("New() with no embeddings provider: want error, got nil")
	}
}

func TestApp_ChatTurn(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	llmProvider := providers.LLM.(*llmmock.Provider)
	llmProvider.CompleteResponse = &llm.CompletionResponse{Content: "Here's what I found."}

	application, err := app.New(
		context.Background(),
		testConfig(),
		providers,
		app.WithStore(newFakeStore()),
		app.WithCache(cachemock.New()),
		app.WithBroker(queuemock.New()),
		app.WithVectorIndex(&vectorindexmock.Index{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	resp, err := application.Chat(context.Background(), chat.Request{
		UserID:   "learner-1",
		Message:  "hello there",
		Language: "en",
	})
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("Chat() response SessionID is empty")
	}
}

func TestApp_IngestUploadAndTaskStatus(t *testing.T) {
	t.Parallel()

	application, _ := newTestApp(t)

	taskID, err := application.IngestUpload(context.Background(), model.IngestPayload{
		CourseTitle: "Intro to Testing",
		Language:    "en",
		Documents: []model.DocumentBlob{
			{Filename: "lesson1.txt", Data: []byte("lesson content")},
		},
	}, 5)
	if err != nil {
		t.Fatalf("IngestUpload() error: %v", err)
	}
	if taskID == "" {
		t.Fatal("IngestUpload() returned empty task id")
	}

	task, err := application.TaskStatus(context.Background(), taskID)
	if err != nil {
		t.Fatalf("TaskStatus() error: %v", err)
	}
	if task.State != model.TaskPending {
		t.Errorf("TaskStatus().State = %q, want %q", task.State, model.TaskPending)
	}
}

func TestApp_SessionLifecycle(t *testing.T) {
	t.Parallel()

	application, _ := newTestApp(t)

	sess, err := application.SessionCheck(context.Background(), "learner-2", drs.ClientInfo{DeviceClass: "desktop"})
	if err != nil {
		t.Fatalf("SessionCheck() error: %v", err)
	}
	if sess.SessionID == "" {
		t.Fatal("SessionCheck() returned empty session id")
	}

	if err := application.SessionEnd(context.Background(), sess.SessionID); err != nil {
		t.Fatalf("SessionEnd() error: %v", err)
	}
}

func TestApp_RunAndShutdown(t *testing.T) {
	t.Parallel()

	application, _ := newTestApp(t)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- application.Run(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && err != context.Canceled {
			t.Fatalf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return within 5s after context cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("Shutdown() error: %v", err)
	}

	// Shutdown is idempotent.
	if err := application.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("second Shutdown() error: %v", err)
	}
}

func TestApp_QuizGenerateAndSubmit(t *testing.T) {
	t.Parallel()

	providers := testProviders()
	llmProvider := providers.LLM.(*llmmock.Provider)
	llmProvider.CompleteResponse = &llm.CompletionResponse{Content: `{
  "title": "Week 1 Quiz",
  "questions": [
    {"question_text": "2+2?", "options": ["3", "4"], "correct_answer": "B"}
  ]
}`}

	store := newFakeStore()
	store.CreateCourse(context.Background(), model.Course{CourseID: "course-1", Title: "Filtering Theory"})
	store.ReplaceCurriculum(context.Background(), "course-1",
		[]model.Module{{ModuleID: "m1", CourseID: "course-1", Week: 1, Title: "Estimation Basics"}},
		[]model.Topic{{TopicID: "t1", ModuleID: "m1", Title: "Kalman Filters", Content: "recursive estimator", OrderIndex: 1}},
	)

	application, err := app.New(
		context.Background(),
		testConfig(),
		providers,
		app.WithStore(store),
		app.WithCache(cachemock.New()),
		app.WithBroker(queuemock.New()),
		app.WithVectorIndex(&vectorindexmock.Index{}),
	)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	q, err := application.GenerateModuleQuiz(context.Background(), "course-1", 1, quiz.Options{})
	if err != nil {
		t.Fatalf("GenerateModuleQuiz() error: %v", err)
	}
	if len(q.Questions) != 1 {
		t.Fatalf("expected 1 question, got %d", len(q.Questions))
	}

	resp, correct, err := application.SubmitQuiz(context.Background(), q.QuizID, "learner-1", map[int]string{1: "b"})
	if err != nil {
		t.Fatalf("SubmitQuiz() error: %v", err)
	}
	if resp.Score != 1 || len(correct) != 1 {
		t.Fatalf("expected a perfect score, got %+v (correct=%v)", resp, correct)
	}
}
