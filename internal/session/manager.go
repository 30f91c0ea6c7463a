package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lumenforge/tutorcore/pkg/cache"
	"github.com/lumenforge/tutorcore/pkg/drs"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// historyCacheLimit bounds the hot-cache message list per session.
const historyCacheLimit = 50

// historyCacheTTL matches the durable session's inactivity expiry so a cold
// cache never outlives its session.
const historyCacheTTL = drs.SessionExpiry

// Manager implements the session manager (component I): it mirrors recent
// messages into the hot cache on every append so that [Manager.RecentHistory]
// usually avoids a round trip to the durable store, while [drs.SessionStore]
// remains the source of truth for anything the cache has evicted or never
// seen.
type Manager struct {
	store drs.SessionStore
	cache cache.Cache
}

// NewManager constructs a [Manager] over store and cache.
func NewManager(store drs.SessionStore, c cache.Cache) *Manager {
	return &Manager{store: store, cache: c}
}

// GetOrCreate returns userID's active session, creating one if necessary.
func (m *Manager) GetOrCreate(ctx context.Context, userID string, info drs.ClientInfo) (model.Session, error) {
	return m.store.GetOrCreateSession(ctx, userID, info)
}

// Append persists msg durably and mirrors it into the hot-cache history
// list. Cache mirroring failures are ignored and not returned, since the
// durable write has already succeeded: a cache miss on the next read simply
// falls back to the durable store.
func (m *Manager) Append(ctx context.Context, msg model.Message) (int64, error) {
	id, err := m.store.AppendMessage(ctx, msg)
	if err != nil {
		return 0, err
	}
	msg.ID = id

	if m.cache != nil {
		encoded, encErr := json.Marshal(msg)
		if encErr == nil {
			_ = m.cache.PushTrim(ctx, historyKey(msg.SessionID), encoded, historyCacheLimit, historyCacheTTL)
		}
	}
	return id, nil
}

// RecentHistory returns up to limit of the most recent messages for
// sessionID, chronological order, preferring the hot cache and falling back
// to the durable store on a miss or when limit exceeds the cache's bound.
func (m *Manager) RecentHistory(ctx context.Context, sessionID string, limit int) ([]model.Message, error) {
	if m.cache != nil && limit <= historyCacheLimit {
		raw, err := m.cache.Range(ctx, historyKey(sessionID), limit)
		if err == nil && len(raw) > 0 {
			msgs := make([]model.Message, 0, len(raw))
			ok := true
			for _, r := range raw {
				var msg model.Message
				if jsonErr := json.Unmarshal(r, &msg); jsonErr != nil {
					ok = false
					break
				}
				msgs = append(msgs, msg)
			}
			if ok {
				return msgs, nil
			}
		}
	}
	return m.store.History(ctx, sessionID, limit)
}

// End terminates sessionID and evicts its cached history.
func (m *Manager) End(ctx context.Context, sessionID string) error {
	if err := m.store.EndSession(ctx, sessionID); err != nil {
		return err
	}
	if m.cache != nil {
		_ = m.cache.Del(ctx, historyKey(sessionID))
	}
	return nil
}

// Get looks up a session by ID without creating one.
func (m *Manager) Get(ctx context.Context, sessionID string) (model.Session, error) {
	return m.store.GetSession(ctx, sessionID)
}

// WithLock serializes writers for sessionID across processes.
func (m *Manager) WithLock(ctx context.Context, sessionID string, fn func(ctx context.Context) error) error {
	return m.store.WithSessionLock(ctx, sessionID, fn)
}

func historyKey(sessionID string) string {
	return fmt.Sprintf("session:%s:history", sessionID)
}
