package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddl = `
CREATE TABLE IF NOT EXISTS course_numbers (
    next_number BIGINT NOT NULL
);
INSERT INTO course_numbers (next_number)
    SELECT 1 WHERE NOT EXISTS (SELECT 1 FROM course_numbers);

CREATE TABLE IF NOT EXISTS courses (
    course_id     TEXT        PRIMARY KEY,
    course_number BIGINT      NOT NULL UNIQUE,
    title         TEXT        NOT NULL,
    description   TEXT        NOT NULL DEFAULT '',
    language      TEXT        NOT NULL DEFAULT 'en',
    country       TEXT        NOT NULL DEFAULT '',
    owner_id      TEXT        NOT NULL DEFAULT '',
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS modules (
    module_id   TEXT        PRIMARY KEY,
    course_id   TEXT        NOT NULL REFERENCES courses (course_id) ON DELETE CASCADE,
    week        INT         NOT NULL,
    title       TEXT        NOT NULL,
    description TEXT        NOT NULL DEFAULT '',
    objectives  JSONB       NOT NULL DEFAULT '[]',
    UNIQUE (course_id, week)
);

CREATE TABLE IF NOT EXISTS topics (
    topic_id          TEXT  PRIMARY KEY,
    module_id         TEXT  NOT NULL REFERENCES modules (module_id) ON DELETE CASCADE,
    title             TEXT  NOT NULL,
    content           TEXT  NOT NULL DEFAULT '',
    order_index       INT   NOT NULL,
    estimated_minutes INT   NOT NULL DEFAULT 0,
    UNIQUE (module_id, order_index)
);

CREATE TABLE IF NOT EXISTS user_sessions (
    session_id        TEXT        PRIMARY KEY,
    user_id           TEXT        NOT NULL,
    current_course_id TEXT        NOT NULL DEFAULT '',
    client_ip         TEXT        NOT NULL DEFAULT '',
    user_agent        TEXT        NOT NULL DEFAULT '',
    device_class      TEXT        NOT NULL DEFAULT '',
    message_count     INT         NOT NULL DEFAULT 0,
    started_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_activity_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    expires_at        TIMESTAMPTZ,
    ended_at          TIMESTAMPTZ,
    is_active         BOOLEAN     NOT NULL DEFAULT true
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_user_sessions_one_active
    ON user_sessions (user_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS messages (
    id           BIGSERIAL   PRIMARY KEY,
    user_id      TEXT        NOT NULL,
    session_id   TEXT        NOT NULL REFERENCES user_sessions (session_id) ON DELETE CASCADE,
    role         TEXT        NOT NULL,
    content      TEXT        NOT NULL,
    message_type TEXT        NOT NULL DEFAULT 'text',
    course_id    TEXT        NOT NULL DEFAULT '',
    module_id    TEXT        NOT NULL DEFAULT '',
    topic_id     TEXT        NOT NULL DEFAULT '',
    metadata     JSONB       NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_messages_session_created
    ON messages (session_id, created_at, id);

CREATE TABLE IF NOT EXISTS quizzes (
    quiz_id       TEXT   PRIMARY KEY,
    course_id     TEXT   NOT NULL REFERENCES courses (course_id) ON DELETE CASCADE,
    module_id     TEXT   NOT NULL DEFAULT '',
    title         TEXT   NOT NULL,
    kind          TEXT   NOT NULL,
    passing_score INT    NOT NULL DEFAULT 0,
    time_limit_ns BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS quiz_questions (
    quiz_id         TEXT  NOT NULL REFERENCES quizzes (quiz_id) ON DELETE CASCADE,
    question_number INT   NOT NULL,
    question_text   TEXT  NOT NULL,
    options         JSONB NOT NULL DEFAULT '[]',
    correct_answer  TEXT  NOT NULL,
    explanation     TEXT  NOT NULL DEFAULT '',
    difficulty      TEXT  NOT NULL DEFAULT '',
    PRIMARY KEY (quiz_id, question_number)
);

CREATE TABLE IF NOT EXISTS quiz_responses (
    response_id     TEXT        PRIMARY KEY,
    quiz_id         TEXT        NOT NULL REFERENCES quizzes (quiz_id) ON DELETE CASCADE,
    user_id         TEXT        NOT NULL,
    answers         JSONB       NOT NULL DEFAULT '{}',
    score           INT         NOT NULL DEFAULT 0,
    total_questions INT         NOT NULL DEFAULT 0,
    time_taken_ns   BIGINT      NOT NULL DEFAULT 0,
    submitted_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS teaching_checkpoints (
    session_id TEXT        PRIMARY KEY,
    data       JSONB       NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_tasks (
    task_id          TEXT        PRIMARY KEY,
    job_id           TEXT        NOT NULL DEFAULT '',
    priority         INT         NOT NULL DEFAULT 0,
    state            TEXT        NOT NULL DEFAULT 'pending',
    attempt_count    INT         NOT NULL DEFAULT 0,
    first_seen_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_heartbeat_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    error_summary    TEXT        NOT NULL DEFAULT '',
    progress_percent INT         NOT NULL DEFAULT 0,
    progress_message TEXT        NOT NULL DEFAULT '',
    partial_failures JSONB       NOT NULL DEFAULT '[]',
    cancel_requested BOOLEAN     NOT NULL DEFAULT false
);
`

// Migrate creates or ensures all required tables, indexes, and the
// course-number sequence seed row exist. Idempotent; safe to call on every
// application start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("drs migrate: %w", err)
	}
	return nil
}
