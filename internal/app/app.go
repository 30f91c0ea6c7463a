// Package app wires every tutoring-backend subsystem into a running
// application.
//
// The App struct owns the full lifecycle: New connects the durable record
// store, hot cache, job queue, retrieval indexes, and providers into the
// chat, ingest, and orchestrator services; Run starts the ingest worker
// pool and blocks; Shutdown runs the registered closers in initialisation
// order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithCache, WithBroker, etc.). When an option is not provided,
// New creates a real implementation from cfg.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"

	"github.com/lumenforge/tutorcore/internal/chat"
	"github.com/lumenforge/tutorcore/internal/config"
	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/internal/ingest"
	"github.com/lumenforge/tutorcore/internal/intent"
	"github.com/lumenforge/tutorcore/internal/observe"
	"github.com/lumenforge/tutorcore/internal/orchestrator"
	"github.com/lumenforge/tutorcore/internal/quiz"
	"github.com/lumenforge/tutorcore/internal/retrieval"
	"github.com/lumenforge/tutorcore/internal/retrieval/bleveindex"
	"github.com/lumenforge/tutorcore/internal/session"
	"github.com/lumenforge/tutorcore/internal/worker"
	"github.com/lumenforge/tutorcore/pkg/cache"
	"github.com/lumenforge/tutorcore/pkg/cache/redisclient"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/drs/postgres"
	"github.com/lumenforge/tutorcore/pkg/model"
	"github.com/lumenforge/tutorcore/pkg/provider/embeddings"
	"github.com/lumenforge/tutorcore/pkg/provider/llm"
	"github.com/lumenforge/tutorcore/pkg/provider/reranker"
	"github.com/lumenforge/tutorcore/pkg/provider/stt"
	"github.com/lumenforge/tutorcore/pkg/provider/tts"
	"github.com/lumenforge/tutorcore/pkg/queue"
	"github.com/lumenforge/tutorcore/pkg/queue/redisbroker"
	"github.com/lumenforge/tutorcore/pkg/types"
	"github.com/lumenforge/tutorcore/pkg/vectorindex"
	"github.com/lumenforge/tutorcore/pkg/vectorindex/pgvector"
)

// embeddingDimensions is the vector width of the configured embeddings
// provider's output, used to migrate the pgvector schema. 1536 matches
// OpenAI's text-embedding-3-small, the default embeddings provider.
const embeddingDimensions = 1536

// ingestQueue is the queue name the ingest pipeline's tasks are enqueued
// under and the worker pool drains.
const ingestQueue = "ingest"

// Providers holds one interface value per provider slot, populated by
// main.go via the config registry. A nil field means that capability was
// not configured; App treats STT and TTS as optional (voice turns degrade
// to text-only) but requires LLM and Embeddings to start.
type Providers struct {
	LLM        llm.Provider
	STT        stt.Provider
	TTS        tts.Provider
	Embeddings embeddings.Provider
	Reranker   reranker.Reranker // may be nil: rerank stage is skipped
}

// App owns every subsystem's lifetime and exposes the operations the HTTP
// and WebSocket surface (out of scope here) delegates to.
type App struct {
	cfg       *config.Config
	providers *Providers

	store      drs.Store
	cacheStore cache.Cache // may be nil: sessions fall back to DRS-only
	broker     queue.Broker
	vecIndex   vectorindex.Index
	sparse     *bleveindex.Index
	metrics    *observe.Metrics

	sessions  *session.Manager
	router    *intent.Router
	retriever *retrieval.Retriever
	chat      *chat.Service
	pipeline  *ingest.Pipeline
	workers   *worker.Pool
	quizGen   *quiz.Generator
	quizGrade *quiz.Grader

	vecPool *pgxpool.Pool

	// closers are invoked in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a durable record store instead of connecting to Postgres.
func WithStore(s drs.Store) Option {
	return func(a *App) { a.store = s }
}

// WithCache injects a hot cache instead of connecting to Redis.
func WithCache(c cache.Cache) Option {
	return func(a *App) { a.cacheStore = c }
}

// WithBroker injects a job queue broker instead of connecting to Redis.
func WithBroker(b queue.Broker) Option {
	return func(a *App) { a.broker = b }
}

// WithVectorIndex injects a dense vector index instead of connecting to pgvector.
func WithVectorIndex(idx vectorindex.Index) Option {
	return func(a *App) { a.vecIndex = idx }
}

// WithMetrics injects a metrics instance instead of building one from the
// global OTel meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New wires all subsystems together. The providers struct comes from
// main.go (populated via the config registry). Use Option functions to
// inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: store connection, cache
// and broker connection, index construction, metrics setup, and service
// assembly.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers.LLM == nil {
		return nil, fmt.Errorf("app: an LLM provider is required")
	}
	if providers.Embeddings == nil {
		return nil, fmt.Errorf("app: an embeddings provider is required")
	}

	a := &App{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(a)
	}

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}
	if err := a.initCache(ctx); err != nil {
		return nil, fmt.Errorf("app: init cache: %w", err)
	}
	if err := a.initBroker(ctx); err != nil {
		return nil, fmt.Errorf("app: init broker: %w", err)
	}
	if err := a.initVectorIndex(ctx); err != nil {
		return nil, fmt.Errorf("app: init vector index: %w", err)
	}
	if err := a.initSparseIndex(); err != nil {
		return nil, fmt.Errorf("app: init sparse index: %w", err)
	}
	a.initMetrics()

	a.sessions = session.NewManager(a.store, a.cacheStore)

	router, err := a.initIntentRouter(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init intent router: %w", err)
	}
	a.router = router

	a.retriever = retrieval.New(providers.Embeddings, a.vecIndex, a.sparse, providers.Reranker, retrievalConfig(cfg.Retrieval), a.metrics)

	a.chat = chat.New(a.sessions, a.router, a.retriever, providers.LLM, a.metrics).
		WithTurnBudget(cfg.Chat.TurnBudget).
		WithMaxContextTokens(cfg.Chat.MaxContextTokens)

	a.pipeline = &ingest.Pipeline{
		Embeddings: providers.Embeddings,
		Index:      a.vecIndex,
		Sparse:     a.sparse,
		LLM:        providers.LLM,
		Retriever:  a.retriever,
		Courses:    a.store,
		Tasks:      a.store,
	}
	a.workers = worker.NewPool(a.broker, a.pipeline, workerConfig(cfg.Worker))

	a.quizGen = &quiz.Generator{Courses: a.store, Quizzes: a.store, LLM: providers.LLM}
	a.quizGrade = &quiz.Grader{Quizzes: a.store}

	return a, nil
}

func retrievalConfig(c config.RetrievalConfig) retrieval.Config {
	cfg := retrieval.Config{DenseK: c.DenseK, SparseK: c.SparseK, TopR: c.TopR, RRFKappa: c.RRFKappa, DenseBias: c.DenseBias}
	if cfg.DenseK == 0 {
		return retrieval.DefaultConfig
	}
	return cfg
}

func workerConfig(c config.WorkerConfig) worker.Config {
	return worker.Config{
		Queue:             ingestQueue,
		WorkerCount:       c.Count,
		VisibilityTimeout: c.VisibilityTimeout,
		HeartbeatInterval: c.HeartbeatInterval,
		MaxTasksPerWorker: c.MaxTasksPerWorker,
		SoftMemoryCap:     c.SoftMemoryCapBytes,
	}
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	if a.cfg.DRS.PostgresDSN == "" {
		return fmt.Errorf("drs.postgres_dsn is required when a store is not injected")
	}
	store, err := postgres.NewStore(ctx, a.cfg.DRS.PostgresDSN)
	if err != nil {
		return err
	}
	a.store = store
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	return nil
}

func (a *App) initCache(ctx context.Context) error {
	if a.cacheStore != nil {
		return nil
	}
	if a.cfg.Cache.RedisAddr == "" {
		slog.Warn("no cache.redis_addr configured; sessions will read through to the durable store on every access")
		return nil
	}
	c, err := redisclient.New(ctx, a.cfg.Cache.RedisAddr)
	if err != nil {
		return err
	}
	a.cacheStore = c
	a.closers = append(a.closers, c.Close)
	return nil
}

func (a *App) initBroker(ctx context.Context) error {
	if a.broker != nil {
		return nil
	}
	addr := a.cfg.Queue.RedisAddr
	if addr == "" {
		addr = a.cfg.Cache.RedisAddr
	}
	if addr == "" {
		return fmt.Errorf("queue.redis_addr (or cache.redis_addr) is required when a broker is not injected")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("connect to queue redis: %w", err)
	}
	a.broker = redisbroker.New(rdb, queue.DefaultBackoff)
	a.closers = append(a.closers, rdb.Close)
	return nil
}

func (a *App) initVectorIndex(ctx context.Context) error {
	if a.vecIndex != nil {
		return nil
	}
	if a.cfg.DRS.PostgresDSN == "" {
		return fmt.Errorf("drs.postgres_dsn is required to build the pgvector index")
	}
	pool, err := pgxpool.New(ctx, a.cfg.DRS.PostgresDSN)
	if err != nil {
		return err
	}
	if err := pgvector.Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return fmt.Errorf("migrate pgvector schema: %w", err)
	}
	a.vecPool = pool
	a.vecIndex = pgvector.New(pool)
	a.closers = append(a.closers, func() error { pool.Close(); return nil })
	return nil
}

func (a *App) initSparseIndex() error {
	idx, err := bleveindex.New()
	if err != nil {
		return err
	}
	a.sparse = idx
	return nil
}

func (a *App) initMetrics() {
	if a.metrics != nil {
		return
	}
	m, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Warn("failed to build metrics from the global meter provider, falling back to defaults", "error", err)
		m = observe.DefaultMetrics()
	}
	a.metrics = m
}

// defaultExemplars is the built-in set of labelled utterances used when
// cfg.Intent.ExemplarsPath is empty. A real deployment should supply its own,
// richer set via that path.
var defaultExemplars = []intent.Exemplar{
	{Label: intent.Greeting, Text: "hello there"},
	{Label: intent.Greeting, Text: "hi, good morning"},
	{Label: intent.Greeting, Text: "hey, how's it going?"},
	{Label: intent.GeneralQuestion, Text: "thanks, that makes sense"},
	{Label: intent.GeneralQuestion, Text: "what's the weather like today?"},
	{Label: intent.CourseQuery, Text: "can you explain what we covered in the last module?"},
	{Label: intent.CourseQuery, Text: "what does the textbook say about this topic?"},
	{Label: intent.CourseQuery, Text: "how does this relate to the previous topic?"},
}

func (a *App) initIntentRouter(ctx context.Context) (*intent.Router, error) {
	exemplars := defaultExemplars
	if path := a.cfg.Intent.ExemplarsPath; path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read exemplars file %q: %w", path, err)
		}
		var loaded []intent.Exemplar
		if err := json.Unmarshal(data, &loaded); err != nil {
			return nil, fmt.Errorf("parse exemplars file %q: %w", path, err)
		}
		exemplars = loaded
	}
	return intent.New(ctx, a.providers.Embeddings, exemplars, a.cfg.Intent.Threshold, a.cfg.Intent.DefaultLabel)
}

// ─── Operations ──────────────────────────────────────────────────────────────

// Chat runs one chat turn through the seven-step pipeline.
func (a *App) Chat(ctx context.Context, req chat.Request) (chat.Response, error) {
	return a.chat.Turn(ctx, req)
}

// IngestUpload enqueues a document batch for asynchronous ingestion and
// records its initial pending task record, returning the task id a client
// polls for progress.
func (a *App) IngestUpload(ctx context.Context, payload model.IngestPayload, priority int) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", errkind.Wrap(errkind.InvalidInput, "encode ingest payload", err)
	}

	taskID, err := a.broker.Enqueue(ctx, ingestQueue, data, priority)
	if err != nil {
		return "", err
	}

	if err := a.store.UpsertTask(ctx, model.IngestTask{
		TaskID:          taskID,
		JobID:           uuid.NewString(),
		Priority:        priority,
		State:           model.TaskPending,
		ProgressMessage: "queued",
	}); err != nil {
		slog.Warn("failed to record initial task state", "task_id", taskID, "error", err)
	}

	return taskID, nil
}

// TaskStatus looks up an ingest task's current progress.
func (a *App) TaskStatus(ctx context.Context, taskID string) (model.IngestTask, error) {
	return a.store.GetTask(ctx, taskID)
}

// CancelIngest requests cooperative cancellation of a running ingest task.
func (a *App) CancelIngest(ctx context.Context, taskID string) error {
	return a.store.RequestCancel(ctx, taskID)
}

// SessionCheck resolves or creates a session for userID, recording client
// metadata on first contact.
func (a *App) SessionCheck(ctx context.Context, userID string, info drs.ClientInfo) (model.Session, error) {
	return a.sessions.GetOrCreate(ctx, userID, info)
}

// SessionHistory returns up to limit of a session's most recent messages.
func (a *App) SessionHistory(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	return a.sessions.RecentHistory(ctx, sessionID, limit)
}

// SessionEnd marks a session ended.
func (a *App) SessionEnd(ctx context.Context, sessionID string) error {
	return a.sessions.End(ctx, sessionID)
}

// ListCourses returns every course ordered by course number.
func (a *App) ListCourses(ctx context.Context) ([]model.Course, error) {
	return a.store.ListCourses(ctx)
}

// GetCourse looks up a course by id or course number.
func (a *App) GetCourse(ctx context.Context, idOrNumber string) (model.Course, error) {
	return a.store.GetCourse(ctx, idOrNumber)
}

// GenerateModuleQuiz synthesizes and persists a quiz covering a single
// module, identified by its week within courseID.
func (a *App) GenerateModuleQuiz(ctx context.Context, courseID string, week int, opts quiz.Options) (model.Quiz, error) {
	return a.quizGen.GenerateForModule(ctx, courseID, week, opts)
}

// GenerateCourseQuiz synthesizes and persists a quiz covering every topic of
// a course.
func (a *App) GenerateCourseQuiz(ctx context.Context, courseID string, opts quiz.Options) (model.Quiz, error) {
	return a.quizGen.GenerateForCourse(ctx, courseID, opts)
}

// SubmitQuiz grades a user's answers against quizID and persists the
// response, returning the stored result plus the question numbers answered
// correctly.
func (a *App) SubmitQuiz(ctx context.Context, quizID, userID string, answers map[int]string) (model.QuizResponse, []int, error) {
	return a.quizGrade.Submit(ctx, quizID, userID, answers)
}

// GetQuiz looks up a quiz and its questions by id.
func (a *App) GetQuiz(ctx context.Context, quizID string) (model.Quiz, error) {
	return a.store.GetQuiz(ctx, quizID)
}

// NewTeachingSession constructs an [orchestrator.Session] for a freshly
// connected client, wiring it to the app's shared providers, retriever, and
// stores. voice selects the TTS profile used for synthesis; the zero value
// falls back to cfg.Orchestrator.DefaultVoiceID.
func (a *App) NewTeachingSession(sessionID, courseID string, voice types.VoiceProfile) *orchestrator.Session {
	if voice.ID == "" {
		voice.ID = a.cfg.Orchestrator.DefaultVoiceID
	}
	deps := orchestrator.Deps{
		STT:         a.providers.STT,
		TTS:         a.providers.TTS,
		LLM:         a.providers.LLM,
		Retriever:   a.retriever,
		Sessions:    a.sessions,
		Courses:     a.store,
		Cache:       a.cacheStore,
		Checkpoints: a.store,
		Voice:       voice,
	}
	return orchestrator.New(deps, sessionID, courseID)
}

// ResumeTeachingSession reconstructs an [orchestrator.Session] from its last
// checkpoint, falling back to a fresh session if none exists.
func (a *App) ResumeTeachingSession(ctx context.Context, sessionID, courseID string, voice types.VoiceProfile) (*orchestrator.Session, error) {
	if voice.ID == "" {
		voice.ID = a.cfg.Orchestrator.DefaultVoiceID
	}
	deps := orchestrator.Deps{
		STT:         a.providers.STT,
		TTS:         a.providers.TTS,
		LLM:         a.providers.LLM,
		Retriever:   a.retriever,
		Sessions:    a.sessions,
		Courses:     a.store,
		Cache:       a.cacheStore,
		Checkpoints: a.store,
		Voice:       voice,
	}
	return orchestrator.Resume(ctx, deps, sessionID, courseID)
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run starts the ingest worker pool and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	a.workers.Start(ctx)
	slog.Info("app running", "workers", a.cfg.Worker.Count)
	<-ctx.Done()
	a.workers.Stop()
	return ctx.Err()
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems, running the closers in the order they
// were registered during initialisation. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "error", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
