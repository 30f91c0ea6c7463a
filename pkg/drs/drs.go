// Package drs defines the durable record store capability interface
// (component C): transactional access to courses, modules, topics,
// sessions, messages, quizzes, and quiz responses. Implementations must use
// prepared statements and expose a per-session advisory lock primitive for
// the session manager's write serialization.
package drs

import (
	"context"
	"time"

	"github.com/lumenforge/tutorcore/pkg/model"
)

// ClientInfo captures the per-session metadata recorded at session creation.
type ClientInfo struct {
	IP          string
	UserAgent   string
	DeviceClass string
}

// CourseStore is the transactional access surface for the course curriculum
// tree.
type CourseStore interface {
	// CreateCourse persists course, assigning it the next monotonically
	// increasing CourseNumber atomically. The caller supplies CourseID.
	CreateCourse(ctx context.Context, course model.Course) (model.Course, error)

	// GetCourse looks up a course by its stable CourseID or, if idOrNumber
	// parses as an integer, by CourseNumber. Returns an [errkind.NotFound]
	// error if absent.
	GetCourse(ctx context.Context, idOrNumber string) (model.Course, error)

	// ListCourses returns all courses ordered by CourseNumber ascending.
	ListCourses(ctx context.Context) ([]model.Course, error)

	// ReplaceCurriculum writes modules and topics for courseID in a single
	// transaction, replacing any prior curriculum tree. Modules must already
	// form a gapless 1..N week sequence and topics a gapless OrderIndex
	// sequence per module; the store does not re-validate this.
	ReplaceCurriculum(ctx context.Context, courseID string, modules []model.Module, topics []model.Topic) error

	// GetCurriculum returns the modules and topics of courseID, modules
	// ordered by Week and topics ordered by OrderIndex within their module.
	GetCurriculum(ctx context.Context, courseID string) ([]model.Module, []model.Topic, error)

	// DeleteCourse deletes courseID together with its modules, topics,
	// quizzes, and quiz responses; messages that reference courseID are not
	// deleted. Called by explicit admin action, and by
	// the ingest persist stage to remove a course whose curriculum write
	// failed.
	DeleteCourse(ctx context.Context, courseID string) error
}

// SessionStore is the transactional access surface for sessions and
// messages.
type SessionStore interface {
	// GetOrCreateSession returns userID's active, non-expired session if one
	// exists, else creates one atomically, ending any previously-active
	// session of the same user in the same transaction.
	GetOrCreateSession(ctx context.Context, userID string, info ClientInfo) (model.Session, error)

	// AppendMessage appends msg to its session in a single transaction,
	// updates the session's LastActivityAt and MessageCount, and returns the
	// assigned message ID. Never mutates past messages.
	AppendMessage(ctx context.Context, msg model.Message) (int64, error)

	// History returns up to limit of the most recent messages of sessionID in
	// chronological order.
	History(ctx context.Context, sessionID string, limit int) ([]model.Message, error)

	// EndSession sets IsActive=false and EndedAt=now. Returns an
	// [errkind.Conflict] error if the session is already ended.
	EndSession(ctx context.Context, sessionID string) error

	// GetSession looks up a session by ID.
	GetSession(ctx context.Context, sessionID string) (model.Session, error)

	// WithSessionLock runs fn while holding a per-session advisory lock,
	// serializing writers across processes for the same sessionID.
	WithSessionLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error
}

// QuizStore is the transactional access surface for quizzes and responses.
type QuizStore interface {
	// CreateQuiz persists a quiz with its questions in one transaction.
	CreateQuiz(ctx context.Context, quiz model.Quiz) (model.Quiz, error)

	// GetQuiz returns a quiz and its questions by ID.
	GetQuiz(ctx context.Context, quizID string) (model.Quiz, error)

	// SubmitResponse validates that every answer key is a subset of the
	// quiz's question numbers, scores the submission, and persists it.
	SubmitResponse(ctx context.Context, resp model.QuizResponse) (model.QuizResponse, error)
}

// TaskStore is the observability mirror of the queue broker's task records,
// used by the task-polling HTTP endpoint.
type TaskStore interface {
	// UpsertTask writes or updates an [model.IngestTask] record.
	UpsertTask(ctx context.Context, task model.IngestTask) error

	// GetTask looks up a task by ID.
	GetTask(ctx context.Context, taskID string) (model.IngestTask, error)

	// RequestCancel sets CancelRequested on a task; the worker observes it
	// between ingest pipeline stages.
	RequestCancel(ctx context.Context, taskID string) error
}

// CheckpointStore is the durable mirror of the teaching orchestrator's (L)
// per-session state machine, written asynchronously on every state
// transition so a restarted process can resume a session from the
// checkpoint alone. Implementations need not be transactional with
// SessionStore: the checkpoint is a best-effort durability backstop behind
// the hot cache.
type CheckpointStore interface {
	// SaveCheckpoint overwrites the checkpoint for sessionID with data, an
	// opaque caller-serialized blob.
	SaveCheckpoint(ctx context.Context, sessionID string, data []byte) error

	// LoadCheckpoint returns the last saved checkpoint for sessionID.
	// Returns an [errkind.NotFound] error if none exists.
	LoadCheckpoint(ctx context.Context, sessionID string) ([]byte, error)
}

// Store is the full durable record store surface, grouped by entity family.
// Implementations share one connection pool across all sub-interfaces.
type Store interface {
	CourseStore
	SessionStore
	QuizStore
	TaskStore
	CheckpointStore

	// Close releases the underlying connection pool.
	Close()
}

// SessionExpiry is the default session inactivity expiry applied by
// GetOrCreateSession when no explicit ExpiresAt is supplied.
const SessionExpiry = 24 * time.Hour
