package orchestrator

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	cachemock "github.com/lumenforge/tutorcore/pkg/cache/mock"
	drsmock "github.com/lumenforge/tutorcore/pkg/drs/mock"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	llmmock "github.com/lumenforge/tutorcore/pkg/provider/llm/mock"
	"github.com/lumenforge/tutorcore/pkg/provider/stt"
	ttsmock "github.com/lumenforge/tutorcore/pkg/provider/tts/mock"
	"github.com/lumenforge/tutorcore/pkg/types"
)

func courseFixture() model.Course {
	return model.Course{CourseID: "course-1", Title: "Intro to Testing", Language: "en", Country: "US"}
}

func modulesFixture() []model.Module {
	return []model.Module{
		{ModuleID: "course-1-m1", CourseID: "course-1", Week: 1, Title: "Module One"},
	}
}

func topicsFixture() []model.Topic {
	return []model.Topic{
		{TopicID: "course-1-m1-t1", ModuleID: "course-1-m1", Title: "Topic One", Content: "word " + repeatWord("content", 200), OrderIndex: 1},
	}
}

func repeatWord(word string, n int) string {
	out := word
	for i := 1; i < n; i++ {
		out += " " + word
	}
	return out
}

func newTestSession(t *testing.T, llm *llmmock.Provider, tts *ttsmock.Provider, courses *drsmock.CourseStore) (*Session, *cachemock.Cache, *drsmock.CheckpointStore) {
	t.Helper()
	c := cachemock.New()
	cp := drsmock.NewCheckpointStore()
	deps := Deps{
		LLM:         llm,
		TTS:         tts,
		Courses:     courses,
		Cache:       c,
		Checkpoints: cp,
		Voice:       types.VoiceProfile{ID: "v1"},
	}
	return New(deps, "sess-1", "course-1"), c, cp
}

func seededCourses(t *testing.T) *drsmock.CourseStore {
	t.Helper()
	store := drsmock.NewCourseStore()
	ctx := context.Background()
	if _, err := store.CreateCourse(ctx, courseFixture()); err != nil {
		t.Fatalf("seed course: %v", err)
	}
	if err := store.ReplaceCurriculum(ctx, "course-1", modulesFixture(), topicsFixture()); err != nil {
		t.Fatalf("seed curriculum: %v", err)
	}
	return store
}

func TestSession_BargeInCancelsInFlightGeneration(t *testing.T) {
	llmProv := &llmmock.Provider{CompleteResponse: nil, CompleteErr: context.DeadlineExceeded}
	ttsProv := &ttsmock.Provider{}
	s, _, _ := newTestSession(t, llmProv, ttsProv, seededCourses(t))

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelGen = cancel
	s.mu.Unlock()

	s.bargeIn()

	select {
	case <-ctx.Done():
	default:
		t.Fatal("expected cancelGen to be invoked by bargeIn")
	}
}

func TestSession_QuestionDuringTeachingResumesTeaching(t *testing.T) {
	llmProv := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "an answer"}}
	s, _, _ := newTestSession(t, llmProv, &ttsmock.Provider{}, seededCourses(t))

	out := make(chan Output, 32)
	s.mu.Lock()
	s.state = StateTeaching
	s.mu.Unlock()

	s.dispatch(context.Background(), "why does this matter?", out)

	if s.currentState() != StateTeaching {
		t.Fatalf("expected session to resume teaching, got %s", s.currentState())
	}
}

func TestSession_NavigationCommandWinsOverDispatch(t *testing.T) {
	s, _, _ := newTestSession(t, &llmmock.Provider{}, &ttsmock.Provider{}, seededCourses(t))
	out := make(chan Output, 32)

	s.mu.Lock()
	s.state = StateTeaching
	s.mu.Unlock()

	consumed := s.routeNavigation(context.Background(), "end", out)
	if !consumed {
		t.Fatal("expected 'end' to be recognized as a navigation command")
	}
	if s.currentState() != StateEnded {
		t.Fatalf("expected session to end, got %s", s.currentState())
	}
}

func TestSession_FailureThresholdEndsSession(t *testing.T) {
	s, _, _ := newTestSession(t, &llmmock.Provider{}, &ttsmock.Provider{}, seededCourses(t))
	out := make(chan Output, 32)

	for i := 0; i < failureThreshold; i++ {
		ended := s.handleEvent(context.Background(), stt.Event{Kind: stt.EventError, Err: context.DeadlineExceeded}, out)
		if i < failureThreshold-1 && ended {
			t.Fatalf("session ended early after %d failures", i+1)
		}
		if i == failureThreshold-1 && !ended {
			t.Fatalf("expected session to end after %d failures", failureThreshold)
		}
	}
	if s.currentState() != StateEnded {
		t.Fatalf("expected ended state, got %s", s.currentState())
	}
}

func TestSession_CheckpointRoundTripsThroughCacheAndDurableMirror(t *testing.T) {
	s, c, cp := newTestSession(t, &llmmock.Provider{}, &ttsmock.Provider{}, seededCourses(t))
	out := make(chan Output, 8)

	s.transition(context.Background(), StateTeaching, out)

	raw, err := c.Get(context.Background(), checkpointKey(s.sessionID))
	if err != nil {
		t.Fatalf("expected checkpoint in hot cache: %v", err)
	}
	var got checkpoint
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal checkpoint: %v", err)
	}
	if got.State != StateTeaching {
		t.Fatalf("expected checkpoint state %s, got %s", StateTeaching, got.State)
	}

	// the durable mirror write is asynchronous; give it a moment.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := cp.LoadCheckpoint(context.Background(), s.sessionID); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("expected durable checkpoint mirror to eventually receive the write")
}

func TestSession_ResumeRestoresCheckpointedState(t *testing.T) {
	courses := seededCourses(t)
	s1, _, cp := newTestSession(t, &llmmock.Provider{}, &ttsmock.Provider{}, courses)
	out := make(chan Output, 8)
	s1.mu.Lock()
	s1.topicID = "course-1-m1-t1"
	s1.position = 42
	s1.mu.Unlock()
	s1.transition(context.Background(), StateWaitingForUser, out)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := cp.LoadCheckpoint(context.Background(), s1.sessionID); err == nil {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	deps := Deps{Checkpoints: cp, Courses: courses}
	s2, err := Resume(context.Background(), deps, s1.sessionID, s1.courseID)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s2.currentState() != StateWaitingForUser {
		t.Fatalf("expected resumed state %s, got %s", StateWaitingForUser, s2.currentState())
	}
	if s2.position != 42 {
		t.Fatalf("expected resumed position 42, got %d", s2.position)
	}
}
