package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// GetOrCreateSession implements [drs.SessionStore].
func (s *Store) GetOrCreateSession(ctx context.Context, userID string, info drs.ClientInfo) (model.Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return model.Session{}, errkind.Wrap(errkind.Transient, "begin get-or-create session tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, userID); err != nil {
		return model.Session{}, errkind.Wrap(errkind.Transient, "acquire user lock", err)
	}

	var existing model.Session
	row := tx.QueryRow(ctx, `
		SELECT session_id, user_id, current_course_id, client_ip, user_agent, device_class,
		       message_count, started_at, last_activity_at, expires_at, ended_at, is_active
		FROM user_sessions WHERE user_id = $1 AND is_active LIMIT 1`, userID)
	err = row.Scan(&existing.SessionID, &existing.UserID, &existing.CurrentCourseID, &existing.ClientIP,
		&existing.UserAgent, &existing.DeviceClass, &existing.MessageCount, &existing.StartedAt,
		&existing.LastActivityAt, &existing.ExpiresAt, &existing.EndedAt, &existing.IsActive)
	switch {
	case err == nil:
		notExpired := existing.ExpiresAt == nil || existing.ExpiresAt.After(time.Now())
		if notExpired {
			if err := tx.Commit(ctx); err != nil {
				return model.Session{}, errkind.Wrap(errkind.Transient, "commit get session tx", err)
			}
			return existing, nil
		}
		if _, err := tx.Exec(ctx, `UPDATE user_sessions SET is_active=false, ended_at=now() WHERE session_id=$1`, existing.SessionID); err != nil {
			return model.Session{}, errkind.Wrap(errkind.Transient, "end expired session", err)
		}
	case err == pgx.ErrNoRows:
		// no active session; fall through to create one
	default:
		return model.Session{}, errkind.Wrap(errkind.Transient, "lookup active session", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE user_sessions SET is_active=false, ended_at=now() WHERE user_id=$1 AND is_active`, userID); err != nil {
		return model.Session{}, errkind.Wrap(errkind.Transient, "end previous session", err)
	}

	expires := time.Now().Add(drs.SessionExpiry)
	newSession := model.Session{
		SessionID:       uuid.NewString(),
		UserID:          userID,
		ClientIP:        info.IP,
		UserAgent:       info.UserAgent,
		DeviceClass:     info.DeviceClass,
		StartedAt:       time.Now(),
		LastActivityAt:  time.Now(),
		ExpiresAt:       &expires,
		IsActive:        true,
	}
	_, err = tx.Exec(ctx, `
		INSERT INTO user_sessions
		    (session_id, user_id, current_course_id, client_ip, user_agent, device_class, started_at, last_activity_at, expires_at, is_active)
		VALUES ($1, $2, '', $3, $4, $5, $6, $7, $8, true)`,
		newSession.SessionID, newSession.UserID, newSession.ClientIP, newSession.UserAgent,
		newSession.DeviceClass, newSession.StartedAt, newSession.LastActivityAt, newSession.ExpiresAt,
	)
	if err != nil {
		return model.Session{}, errkind.Wrap(errkind.Transient, "insert session", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return model.Session{}, errkind.Wrap(errkind.Transient, "commit create session tx", err)
	}
	return newSession, nil
}

// AppendMessage implements [drs.SessionStore].
func (s *Store) AppendMessage(ctx context.Context, msg model.Message) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, errkind.Wrap(errkind.Transient, "begin append message tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, msg.SessionID); err != nil {
		return 0, errkind.Wrap(errkind.Transient, "acquire session lock", err)
	}

	meta, err := json.Marshal(msg.Metadata)
	if err != nil {
		return 0, errkind.Wrap(errkind.InvalidInput, "marshal message metadata", err)
	}

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO messages (user_id, session_id, role, content, message_type, course_id, module_id, topic_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		msg.UserID, msg.SessionID, msg.Role, msg.Content, msg.MessageType,
		msg.CourseID, msg.ModuleID, msg.TopicID, meta,
	).Scan(&id)
	if err != nil {
		return 0, errkind.Wrap(errkind.Transient, "insert message", err)
	}

	if _, err := tx.Exec(ctx, `
		UPDATE user_sessions SET message_count = message_count + 1, last_activity_at = now()
		WHERE session_id = $1`, msg.SessionID); err != nil {
		return 0, errkind.Wrap(errkind.Transient, "update session activity", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, errkind.Wrap(errkind.Transient, "commit append message tx", err)
	}
	return id, nil
}

// History implements [drs.SessionStore].
func (s *Store) History(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, session_id, role, content, message_type, course_id, module_id, topic_id, metadata, created_at
		FROM (
		    SELECT * FROM messages WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`, sessionID, limit)
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "history query", err)
	}
	msgs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Message, error) {
		var m model.Message
		var raw []byte
		if err := row.Scan(&m.ID, &m.UserID, &m.SessionID, &m.Role, &m.Content, &m.MessageType,
			&m.CourseID, &m.ModuleID, &m.TopicID, &raw, &m.CreatedAt); err != nil {
			return model.Message{}, err
		}
		_ = json.Unmarshal(raw, &m.Metadata)
		return m, nil
	})
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "scan history", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// EndSession implements [drs.SessionStore].
func (s *Store) EndSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE user_sessions SET is_active = false, ended_at = now()
		WHERE session_id = $1 AND is_active`, sessionID)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "end session", err)
	}
	if tag.RowsAffected() == 0 {
		return errkind.New(errkind.Conflict, "session already ended or unknown: "+sessionID)
	}
	return nil
}

// GetSession implements [drs.SessionStore].
func (s *Store) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	var sess model.Session
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, user_id, current_course_id, client_ip, user_agent, device_class,
		       message_count, started_at, last_activity_at, expires_at, ended_at, is_active
		FROM user_sessions WHERE session_id = $1`, sessionID)
	err := row.Scan(&sess.SessionID, &sess.UserID, &sess.CurrentCourseID, &sess.ClientIP, &sess.UserAgent,
		&sess.DeviceClass, &sess.MessageCount, &sess.StartedAt, &sess.LastActivityAt, &sess.ExpiresAt,
		&sess.EndedAt, &sess.IsActive)
	if err == pgx.ErrNoRows {
		return model.Session{}, errkind.New(errkind.NotFound, "session not found: "+sessionID)
	}
	if err != nil {
		return model.Session{}, errkind.Wrap(errkind.Transient, "get session", err)
	}
	return sess, nil
}

// WithSessionLock implements [drs.SessionStore] using a transaction-scoped
// PostgreSQL advisory lock keyed by hashtext(sessionID), released
// automatically at transaction end.
func (s *Store) WithSessionLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "begin session lock tx", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, sessionID); err != nil {
		return errkind.Wrap(errkind.Transient, "acquire session lock", err)
	}
	if err := fn(ctx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return errkind.Wrap(errkind.Transient, "commit session lock tx", err)
	}
	return nil
}
