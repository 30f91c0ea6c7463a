// Package chat implements the per-turn chat service (component J): resolve
// session, classify intent, branch to a response strategy, guard against
// garbage output, and persist both turns.
package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/internal/guard"
	"github.com/lumenforge/tutorcore/internal/intent"
	"github.com/lumenforge/tutorcore/internal/observe"
	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/internal/session"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/types"
)

// historyTurns is H: the default number of conversation turns (20 messages)
// fetched for context.
const historyTurns = 10
const historyMessages = historyTurns * 2

// DefaultTurnBudget is the end-to-end deadline applied to a single turn
// unless the caller supplies a shorter one via ctx.
const DefaultTurnBudget = 90 * time.Second

// DefaultMaxContextTokens is used when the caller does not configure a
// provider-specific context window via [Service.WithMaxContextTokens].
const DefaultMaxContextTokens = 8000

var fallbackMessage = "I wasn't able to put together a good answer to that. Could you rephrase the question?"

// greetings maps a language tag to a pre-canned greeting reply. Unknown
// languages fall back to English.
var greetings = map[string]string{
	"en": "Hello! What would you like to work on today?",
	"es": "¡Hola! ¿En qué te gustaría trabajar hoy?",
	"fr": "Bonjour ! Sur quoi aimeriez-vous travailler aujourd'hui ?",
}

// Request is one user turn.
type Request struct {
	UserID   string
	Message  string
	Language string
	Client   drs.ClientInfo
	CourseID string
	ModuleID string
}

// Source identifies one retrieved chunk cited in a course_query answer.
type Source struct {
	ChunkID      string
	SourceDocID  string
	Page         int
}

// Response is the chat service's per-turn result.
type Response struct {
	Answer     string
	SessionID  string
	RouteLabel string
	Confidence float64
	Sources    []Source
}

// Service wires the session manager, intent router, hybrid retriever, and
// LLM provider into the seven-step per-turn pipeline.
type Service struct {
	sessions  *session.Manager
	router    *intent.Router
	retriever *retrieval.Retriever
	llm       llm.Provider
	metrics   *observe.Metrics
	turnBudget       time.Duration
	maxContextTokens int
	summariser       session.Summariser
}

// New constructs a [Service]. retriever may be nil, in which case
// course_query turns behave like general_question turns.
func New(sessions *session.Manager, router *intent.Router, retriever *retrieval.Retriever, llmProvider llm.Provider, metrics *observe.Metrics) *Service {
	return &Service{
		sessions:         sessions,
		router:           router,
		retriever:        retriever,
		llm:              llmProvider,
		metrics:          metrics,
		turnBudget:       DefaultTurnBudget,
		maxContextTokens: DefaultMaxContextTokens,
		summariser:       session.NewLLMSummariser(llmProvider),
	}
}

// WithTurnBudget overrides the default 90s end-to-end deadline.
func (s *Service) WithTurnBudget(d time.Duration) *Service {
	s.turnBudget = d
	return s
}

// WithMaxContextTokens overrides the provider context window used to decide
// when turn history needs summarising before a completion request. Values
// less than or equal to zero are ignored.
func (s *Service) WithMaxContextTokens(n int) *Service {
	if n > 0 {
		s.maxContextTokens = n
	}
	return s
}

// Turn runs the full seven-step pipeline for req and returns the assistant's
// reply.
func (s *Service) Turn(ctx context.Context, req Request) (Response, error) {
	ctx, cancel := context.WithTimeout(ctx, s.turnBudget)
	defer cancel()

	sess, err := s.sessions.GetOrCreate(ctx, req.UserID, req.Client)
	if err != nil {
		return Response{}, err
	}

	history, err := s.sessions.RecentHistory(ctx, sess.SessionID, historyMessages)
	if err != nil {
		return Response{}, err
	}

	classification, err := s.router.Classify(ctx, req.Message)
	if err != nil {
		return Response{}, err
	}
	if s.metrics != nil {
		s.metrics.RecordIntentClassification(ctx, classification.Label)
	}

	answer, sources, err := s.respond(ctx, classification.Label, req, history)
	if err != nil {
		return Response{}, err
	}

	verdict := guard.Detect(answer)
	if verdict.IsGarbage {
		if s.metrics != nil {
			s.metrics.RecordGarbageOutputDetection(ctx, string(verdict.Heuristic))
		}
		retryAnswer, _, retryErr := s.respond(ctx, intent.GeneralQuestion, req, history)
		if retryErr != nil || guard.Detect(retryAnswer).IsGarbage {
			answer = fallbackMessage
			sources = nil
		} else {
			answer = retryAnswer
			sources = nil
			classification.Label = intent.GeneralQuestion
		}
	}

	if err := s.persistTurn(ctx, sess, req, answer); err != nil {
		return Response{}, err
	}

	return Response{
		Answer:     answer,
		SessionID:  sess.SessionID,
		RouteLabel: classification.Label,
		Confidence: classification.Confidence,
		Sources:    sources,
	}, nil
}

func (s *Service) respond(ctx context.Context, label string, req Request, history []model.Message) (string, []Source, error) {
	switch label {
	case intent.Greeting:
		return s.greeting(req.Language), nil, nil
	case intent.CourseQuery:
		if s.retriever == nil {
			return s.generalAnswer(ctx, req, history)
		}
		return s.courseAnswer(ctx, req, history)
	default:
		return s.generalAnswer(ctx, req, history)
	}
}

func (s *Service) greeting(language string) string {
	if g, ok := greetings[language]; ok {
		return g
	}
	return greetings["en"]
}

func (s *Service) generalAnswer(ctx context.Context, req Request, history []model.Message) (string, []Source, error) {
	messages, err := s.contextMessages(ctx, history)
	if err != nil {
		return "", nil, err
	}
	messages = append(messages, types.Message{Role: "user", Content: req.Message})
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{Messages: messages})
	if err != nil {
		return "", nil, errkind.Wrap(errkind.Transient, "general question completion", err)
	}
	return resp.Content, nil, nil
}

func (s *Service) courseAnswer(ctx context.Context, req Request, history []model.Message) (string, []Source, error) {
	results, err := s.retriever.Retrieve(ctx, req.CourseID, retrieval.Query{
		Text: req.Message, CourseID: req.CourseID, ModuleID: req.ModuleID, Language: req.Language,
	})
	if err != nil {
		return "", nil, errkind.Wrap(errkind.Transient, "hybrid retrieval", err)
	}

	systemPrompt := buildGroundedSystemPrompt(results)
	messages, err := s.contextMessages(ctx, history)
	if err != nil {
		return "", nil, err
	}
	messages = append(messages, types.Message{Role: "user", Content: req.Message})

	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{SystemPrompt: systemPrompt, Messages: messages})
	if err != nil {
		return "", nil, errkind.Wrap(errkind.Transient, "course query completion", err)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{ChunkID: r.Chunk.ChunkID, SourceDocID: r.Chunk.SourceDocID, Page: r.Chunk.Page}
	}
	return resp.Content, sources, nil
}

func (s *Service) persistTurn(ctx context.Context, sess model.Session, req Request, answer string) error {
	if _, err := s.sessions.Append(ctx, model.Message{
		UserID: req.UserID, SessionID: sess.SessionID, Role: model.RoleUser,
		Content: req.Message, MessageType: model.MessageText, CourseID: req.CourseID, ModuleID: req.ModuleID,
	}); err != nil {
		return err
	}
	if _, err := s.sessions.Append(ctx, model.Message{
		UserID: req.UserID, SessionID: sess.SessionID, Role: model.RoleAssistant,
		Content: answer, MessageType: model.MessageText, CourseID: req.CourseID, ModuleID: req.ModuleID,
	}); err != nil {
		return err
	}
	return nil
}

// contextMessages converts history to the provider's wire format and runs it
// through a fresh [session.ContextManager] so that a session whose stored
// history already exceeds the provider's context window gets the oldest
// turns summarised, rather than sent verbatim, before the completion call.
// The manager is scoped to this one turn: RecentHistory already applies the
// hot-cache trim-to-N cutoff, so there is no long-lived conversation object
// to accumulate across turns, only a single token-budget pass.
func (s *Service) contextMessages(ctx context.Context, history []model.Message) ([]types.Message, error) {
	cm := session.NewContextManager(session.ContextManagerConfig{
		MaxTokens:  s.maxContextTokens,
		Summariser: s.summariser,
	})
	if err := cm.AddMessages(ctx, toLLMMessages(history)...); err != nil {
		return nil, errkind.Wrap(errkind.Transient, "summarise turn history", err)
	}
	return cm.Messages(), nil
}

func toLLMMessages(history []model.Message) []types.Message {
	out := make([]types.Message, len(history))
	for i, m := range history {
		out[i] = types.Message{Role: string(m.Role), Content: m.Content}
	}
	return out
}

func buildGroundedSystemPrompt(results []retrieval.Result) string {
	prompt := "You are a course tutor. Answer using only the cited excerpts below; if they do not contain the answer, say so.\n\n"
	for i, r := range results {
		prompt += fmt.Sprintf("[%d] (source: %s, page %d)\n%s\n\n", i+1, r.Chunk.SourceDocID, r.Chunk.Page, r.Chunk.Text)
	}
	return prompt
}
