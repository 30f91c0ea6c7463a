// Package model defines the durable domain entities of the tutoring runtime:
// courses and their curriculum tree, sessions and messages, quizzes and
// responses, and the ingest task record. These are the shapes persisted by
// [github.com/lumenforge/tutorcore/pkg/drs] and indexed by
// [github.com/lumenforge/tutorcore/pkg/vectorindex].
package model

import "time"

// Course is a container of ordered modules. Every persisted course carries
// both CourseID, an opaque stable external identifier, and CourseNumber, a
// human-friendly integer assigned server-side on first insert and never
// reused.
type Course struct {
	CourseID     string
	CourseNumber int64
	Title        string
	Description  string
	Language     string
	Country      string
	OwnerID      string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Module is an ordered child of a course. Modules within a course form a
// gapless sequence 1..N after ingest, numbered by Week.
type Module struct {
	ModuleID    string
	CourseID    string
	Week        int
	Title       string
	Description string
	Objectives  []string
}

// Topic is an ordered child of a module. OrderIndex is unique within its
// module.
type Topic struct {
	TopicID          string
	ModuleID         string
	Title            string
	Content          string
	OrderIndex       int
	EstimatedMinutes int
}

// MessageRole identifies the speaker of a [Message].
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageType distinguishes the input/output modality of a [Message].
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageVoice MessageType = "voice"
)

// Session is a per-user conversation envelope. A user has at most one active
// session at a time; creating a new session ends any previous active one
// atomically.
type Session struct {
	SessionID       string
	UserID          string
	CurrentCourseID string
	ClientIP        string
	UserAgent       string
	DeviceClass     string
	MessageCount    int
	StartedAt       time.Time
	LastActivityAt  time.Time
	ExpiresAt       *time.Time
	EndedAt         *time.Time
	IsActive        bool
}

// Message is a single conversation turn. Messages within a session are
// totally ordered by (CreatedAt, ID).
type Message struct {
	ID          int64
	UserID      string
	SessionID   string
	Role        MessageRole
	Content     string
	MessageType MessageType
	CourseID    string
	ModuleID    string
	TopicID     string
	Metadata    map[string]string
	CreatedAt   time.Time
}

// QuizKind distinguishes a per-module quiz from a per-course one.
type QuizKind string

const (
	QuizModule QuizKind = "module"
	QuizCourse QuizKind = "course"
)

// Quiz is a per-course or per-module structured test.
type Quiz struct {
	QuizID       string
	CourseID     string
	ModuleID     string // empty for a course-level quiz
	Title        string
	Kind         QuizKind
	PassingScore int
	TimeLimit    time.Duration
	Questions    []QuizQuestion
}

// QuizQuestion is one item of a [Quiz]. QuestionNumber is unique and gapless
// (1..K) within its quiz. CorrectAnswer is a single-letter key into Options.
type QuizQuestion struct {
	QuestionNumber int
	QuestionText   string
	Options        []string
	CorrectAnswer  string
	Explanation    string
	Difficulty     string
}

// QuizResponse is a user's submission against a [Quiz]. Answer keys must be a
// subset of the referenced quiz's question numbers.
type QuizResponse struct {
	ResponseID     string
	QuizID         string
	UserID         string
	Answers        map[int]string
	Score          int
	TotalQuestions int
	TimeTaken      time.Duration
	SubmittedAt    time.Time
}

// TaskState is the lifecycle state of an [IngestTask].
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
	TaskRetrying  TaskState = "retrying"
)

// IngestTask is the observability record for a document-ingest task, mirrored
// from the queue broker into the durable record store. A task in TaskRunning
// whose heartbeat has expired is handed to another worker only when
// redisbroker.Broker.ReclaimAbandoned is called; nothing in this module
// calls it.
type IngestTask struct {
	TaskID          string
	JobID           string
	Priority        int
	State           TaskState
	AttemptCount    int
	FirstSeenAt     time.Time
	LastHeartbeatAt time.Time
	ErrorSummary    string
	ProgressPercent int
	ProgressMessage string
	PartialFailures []string
	CancelRequested bool
}

// IngestPayload is the task payload: the source blobs plus target course
// metadata, as carried through the queue broker.
type IngestPayload struct {
	CourseTitle string
	Language    string
	Country     string
	Documents   []DocumentBlob
}

// DocumentBlob is one uploaded source document awaiting extraction.
type DocumentBlob struct {
	Filename string
	Data     []byte
}
