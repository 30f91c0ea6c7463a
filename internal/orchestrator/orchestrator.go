// Package orchestrator implements the teaching orchestrator (component L):
// a per-session state machine that drives continuous speech-to-text input,
// routes each finished utterance to one of four sub-agents, and streams
// generated text and synthesized audio back to the client while remaining
// responsive to barge-in.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/internal/session"
	"github.com/lumenforge/tutorcore/pkg/cache"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/provider/stt"
	"github.com/lumenforge/tutorcore/pkg/provider/tts"
	"github.com/lumenforge/tutorcore/pkg/types"
)

// State is one value of the teaching session state machine.
type State string

const (
	StateIdle           State = "idle"
	StateTeaching       State = "teaching"
	StateWaitingForUser State = "waiting_for_user"
	StateAnswering      State = "answering"
	StateListening      State = "listening" // entered on barge-in; STT keeps running throughout every other state too
	StateEnded          State = "ended"
)

// Per-session timing budgets and thresholds governing responsiveness and
// session termination.
const (
	BargeInStopBudget  = 100 * time.Millisecond
	TextChunkBudget    = 1500 * time.Millisecond
	FirstAudioBudget   = 3000 * time.Millisecond
	failureWindow      = 60 * time.Second
	failureThreshold   = 3
	checkpointCacheTTL = drs.SessionExpiry
)

// Output is one value sent to the client: text, audio, or a state
// transition notification.
type Output struct {
	Text         string
	Audio        []byte
	StateChanged State
	Err          error
}

// Deps are the capability clients and collaborators the orchestrator wires
// together for a single voice session.
type Deps struct {
	STT         stt.Provider
	TTS         tts.Provider
	LLM         llm.Provider
	Retriever   *retrieval.Retriever // used by qa_agent; may be nil to disable course grounding
	Sessions    *session.Manager
	Courses     drs.CourseStore
	Cache       cache.Cache         // hot checkpoint tier; may be nil
	Checkpoints drs.CheckpointStore // durable checkpoint mirror; may be nil
	Voice       types.VoiceProfile
}

// Session drives one voice session end to end. A new Session is created per
// connected client and discarded when the session ends.
type Session struct {
	deps      Deps
	sessionID string
	courseID  string

	mu        sync.Mutex
	state     State
	preempted State // the teaching state to resume to after an interruption
	topicID   string
	position  int // word offset into the current topic's content, for resume-not-restart
	failures  []time.Time

	cancelGen context.CancelFunc // cancels the currently-running sub-agent, if any
}

// checkpoint is the full teaching state persisted on every transition.
type checkpoint struct {
	State     State     `json:"state"`
	Preempted State     `json:"preempted"`
	CourseID  string    `json:"course_id"`
	TopicID   string    `json:"topic_id"`
	Position  int       `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// New constructs a [Session] in [StateIdle].
func New(deps Deps, sessionID, courseID string) *Session {
	return &Session{deps: deps, sessionID: sessionID, courseID: courseID, state: StateIdle}
}

// Resume reconstructs a [Session]'s state from its last checkpoint, reading
// the hot cache first and falling back to the durable mirror.
func Resume(ctx context.Context, deps Deps, sessionID, courseID string) (*Session, error) {
	s := New(deps, sessionID, courseID)
	cp, err := s.loadCheckpoint(ctx)
	if err != nil {
		return s, nil // nothing to resume from; start fresh
	}
	s.mu.Lock()
	s.state = cp.State
	s.preempted = cp.Preempted
	s.topicID = cp.TopicID
	s.position = cp.Position
	s.mu.Unlock()
	return s, nil
}

// Run consumes sttHandle's event stream until ctx is cancelled, the session
// ends, or the failure threshold is crossed, emitting [Output] values on
// out. Run owns sttHandle and closes it before returning.
func (s *Session) Run(ctx context.Context, sttHandle stt.SessionHandle, out chan<- Output) error {
	defer sttHandle.Close()

	s.transition(ctx, StateTeaching, out)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sttHandle.Events():
			if !ok {
				return nil
			}
			if s.handleEvent(ctx, ev, out) {
				return nil
			}
		}
	}
}

// handleEvent processes one STT event and reports whether the session ended.
func (s *Session) handleEvent(ctx context.Context, ev stt.Event, out chan<- Output) bool {
	switch ev.Kind {
	case stt.EventSpeechStarted:
		s.bargeIn()
		s.transition(ctx, StateListening, out)

	case stt.EventFinalTranscript:
		if s.routeNavigation(ctx, ev.Transcript.Text, out) {
			return s.currentState() == StateEnded
		}
		s.dispatch(ctx, ev.Transcript.Text, out)

	case stt.EventSilenceTimeout:
		s.transition(ctx, StateWaitingForUser, out)

	case stt.EventError:
		out <- Output{Err: ev.Err}
		if s.recordFailure() {
			s.transition(ctx, StateEnded, out)
			return true
		}
	}
	return s.currentState() == StateEnded
}

// bargeIn cancels the in-flight sub-agent generation, if any, within the
// barge-in budget. STT is never stopped by this.
func (s *Session) bargeIn() {
	s.mu.Lock()
	cancel := s.cancelGen
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// dispatch routes a final transcript to the appropriate sub-agent based on
// the current state, then runs it in a cancellable context so a subsequent
// barge-in can stop it.
func (s *Session) dispatch(ctx context.Context, utterance string, out chan<- Output) {
	genCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancelGen = cancel
	priorState := s.state
	s.mu.Unlock()
	defer cancel()

	isQuestion := looksLikeQuestion(utterance)
	isQuizRequest := looksLikeQuizRequest(utterance)

	switch {
	case priorState == StateTeaching && isQuizRequest:
		s.mu.Lock()
		s.preempted = StateTeaching
		s.mu.Unlock()
		s.transition(genCtx, StateAnswering, out)
		s.runAgent(genCtx, assessmentAgent, utterance, out)
		s.transition(genCtx, StateTeaching, out)

	case isQuizRequest:
		s.transition(genCtx, StateAnswering, out)
		s.runAgent(genCtx, assessmentAgent, utterance, out)
		s.returnToStable(genCtx, out)

	case priorState == StateTeaching && isQuestion:
		s.mu.Lock()
		s.preempted = StateTeaching
		s.mu.Unlock()
		s.transition(genCtx, StateAnswering, out)
		s.runAgent(genCtx, qaAgent, utterance, out)
		s.transition(genCtx, StateTeaching, out)

	case isQuestion:
		s.transition(genCtx, StateAnswering, out)
		s.runAgent(genCtx, qaAgent, utterance, out)
		s.returnToStable(genCtx, out)

	default:
		s.transition(genCtx, StateTeaching, out)
		s.runAgent(genCtx, teachingAgent, utterance, out)
	}
}

// looksLikeQuizRequest reports whether utterance is asking to be quizzed or
// tested on the current topic, rather than asking a question about it.
func looksLikeQuizRequest(utterance string) bool {
	for _, phrase := range []string{"quiz me", "test me", "ask me a question", "give me a question"} {
		if containsFold(utterance, phrase) {
			return true
		}
	}
	return false
}

func (s *Session) returnToStable(ctx context.Context, out chan<- Output) {
	s.mu.Lock()
	target := s.preempted
	s.mu.Unlock()
	if target == "" {
		target = StateTeaching
	}
	s.transition(ctx, target, out)
}

// runAgent executes agent against the session, streaming text chunks and
// synthesized audio to out. An agent failure degrades to an apology rather
// than failing the whole session (unless it crosses the failure threshold,
// which ends the session); the caller then moves the session back to its
// stable state. A TTS failure is logged by [Session.speak] and the text
// already sent stands.
func (s *Session) runAgent(ctx context.Context, agent agentFunc, utterance string, out chan<- Output) {
	text, err := agent(ctx, s, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled by barge-in; nothing more to emit
		}
		slog.Warn("teaching agent failed", "session_id", s.sessionID, "error", err)
		if s.recordFailure() {
			s.transition(ctx, StateEnded, out)
			return
		}
		out <- Output{Text: fallbackApology}
		return
	}

	out <- Output{Text: text}
	s.speak(ctx, text, out)
}

// speak synthesizes text to audio and streams chunks to out. A TTS failure
// is non-fatal: text has already been delivered.
func (s *Session) speak(ctx context.Context, text string, out chan<- Output) {
	if s.deps.TTS == nil {
		return
	}
	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := s.deps.TTS.SynthesizeStream(ctx, textCh, s.deps.Voice)
	if err != nil {
		slog.Warn("tts synthesis failed", "session_id", s.sessionID, "error", err)
		return
	}
	for chunk := range audioCh {
		select {
		case <-ctx.Done():
			return
		case out <- Output{Audio: chunk}:
		}
	}
}

// recordFailure appends a failure timestamp and reports whether the 3-in-60s
// threshold has been crossed.
func (s *Session) recordFailure() bool {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-failureWindow)
	kept := s.failures[:0]
	for _, t := range s.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	kept = append(kept, now)
	s.failures = kept
	return len(s.failures) >= failureThreshold
}

func (s *Session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// transition updates state, emits a notification, and checkpoints — the hot
// cache synchronously, the durable mirror asynchronously, matching the
// specification's checkpoint-on-every-transition requirement.
func (s *Session) transition(ctx context.Context, next State, out chan<- Output) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()

	select {
	case out <- Output{StateChanged: next}:
	default:
	}

	s.saveCheckpoint(ctx)
}

func (s *Session) saveCheckpoint(ctx context.Context) {
	s.mu.Lock()
	cp := checkpoint{
		State:     s.state,
		Preempted: s.preempted,
		CourseID:  s.courseID,
		TopicID:   s.topicID,
		Position:  s.position,
		UpdatedAt: time.Now(),
	}
	s.mu.Unlock()

	data, err := json.Marshal(cp)
	if err != nil {
		slog.Error("marshal teaching checkpoint", "session_id", s.sessionID, "error", err)
		return
	}

	if s.deps.Cache != nil {
		if err := s.deps.Cache.SetWithTTL(ctx, checkpointKey(s.sessionID), data, checkpointCacheTTL); err != nil {
			slog.Warn("cache checkpoint write failed", "session_id", s.sessionID, "error", err)
		}
	}
	if s.deps.Checkpoints != nil {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := s.deps.Checkpoints.SaveCheckpoint(bgCtx, s.sessionID, data); err != nil {
				slog.Warn("durable checkpoint write failed", "session_id", s.sessionID, "error", err)
			}
		}()
	}
}

func (s *Session) loadCheckpoint(ctx context.Context) (checkpoint, error) {
	if s.deps.Cache != nil {
		if raw, err := s.deps.Cache.Get(ctx, checkpointKey(s.sessionID)); err == nil {
			var cp checkpoint
			if jsonErr := json.Unmarshal(raw, &cp); jsonErr == nil {
				return cp, nil
			}
		}
	}
	if s.deps.Checkpoints != nil {
		raw, err := s.deps.Checkpoints.LoadCheckpoint(ctx, s.sessionID)
		if err == nil {
			var cp checkpoint
			if jsonErr := json.Unmarshal(raw, &cp); jsonErr == nil {
				return cp, nil
			}
		}
	}
	return checkpoint{}, errkind.New(errkind.NotFound, "no checkpoint for session: "+s.sessionID)
}

func checkpointKey(sessionID string) string {
	return fmt.Sprintf("session:%s:teaching_checkpoint", sessionID)
}

const fallbackApology = "I ran into a problem generating that — could you say that again?"

func looksLikeQuestion(text string) bool {
	if len(text) == 0 {
		return false
	}
	if text[len(text)-1] == '?' {
		return true
	}
	lower := text
	for _, prefix := range []string{"what", "why", "how", "when", "where", "who", "which", "can you", "could you", "is it", "does"} {
		if hasPrefixFold(lower, prefix) {
			return true
		}
	}
	return false
}

func hasPrefixFold(s, prefix string) bool {
	if len(s) < len(prefix) {
		return false
	}
	for i := 0; i < len(prefix); i++ {
		a, b := s[i], prefix[i]
		if a >= 'A' && a <= 'Z' {
			a += 'a' - 'A'
		}
		if a != b {
			return false
		}
	}
	return true
}

// containsFold reports whether s contains prefix case-insensitively.
func containsFold(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if hasPrefixFold(s[i:], substr) {
			return true
		}
	}
	return false
}
