// Package mock provides in-memory test doubles for [drs.SessionStore],
// [drs.CourseStore], [drs.TaskStore], [drs.QuizStore], and
// [drs.CheckpointStore].
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// SessionStore is an in-memory [drs.SessionStore].
type SessionStore struct {
	mu       sync.Mutex
	sessions map[string]model.Session
	messages map[string][]model.Message
	nextMsg  int64

	GetOrCreateErr error
	AppendErr      error
}

var _ drs.SessionStore = (*SessionStore)(nil)

// New constructs an empty [SessionStore].
func New() *SessionStore {
	return &SessionStore{sessions: make(map[string]model.Session), messages: make(map[string][]model.Message)}
}

func (s *SessionStore) GetOrCreateSession(ctx context.Context, userID string, info drs.ClientInfo) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.GetOrCreateErr != nil {
		return model.Session{}, s.GetOrCreateErr
	}
	for _, sess := range s.sessions {
		if sess.UserID == userID && sess.IsActive {
			return sess, nil
		}
	}
	now := time.Now()
	expires := now.Add(drs.SessionExpiry)
	sess := model.Session{
		SessionID:      userID + "-session",
		UserID:         userID,
		ClientIP:       info.IP,
		UserAgent:      info.UserAgent,
		DeviceClass:    info.DeviceClass,
		StartedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      &expires,
		IsActive:       true,
	}
	s.sessions[sess.SessionID] = sess
	return sess, nil
}

func (s *SessionStore) AppendMessage(ctx context.Context, msg model.Message) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AppendErr != nil {
		return 0, s.AppendErr
	}
	s.nextMsg++
	msg.ID = s.nextMsg
	msg.CreatedAt = time.Now()
	s.messages[msg.SessionID] = append(s.messages[msg.SessionID], msg)
	if sess, ok := s.sessions[msg.SessionID]; ok {
		sess.MessageCount++
		sess.LastActivityAt = msg.CreatedAt
		s.sessions[msg.SessionID] = sess
	}
	return msg.ID, nil
}

func (s *SessionStore) History(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := s.messages[sessionID]
	if len(all) > limit {
		all = all[len(all)-limit:]
	}
	out := make([]model.Message, len(all))
	copy(out, all)
	return out, nil
}

func (s *SessionStore) EndSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok || !sess.IsActive {
		return errkind.New(errkind.Conflict, "session already ended or unknown: "+sessionID)
	}
	sess.IsActive = false
	now := time.Now()
	sess.EndedAt = &now
	s.sessions[sessionID] = sess
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, sessionID string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.Session{}, errkind.New(errkind.NotFound, "session not found: "+sessionID)
	}
	return sess, nil
}

func (s *SessionStore) WithSessionLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
