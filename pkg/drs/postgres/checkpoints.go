package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/lumenforge/tutorcore/internal/errkind"
)

// SaveCheckpoint implements [drs.CheckpointStore].
func (s *Store) SaveCheckpoint(ctx context.Context, sessionID string, data []byte) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO teaching_checkpoints (session_id, data, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (session_id) DO UPDATE SET data = $2, updated_at = now()`,
		sessionID, data)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "save teaching checkpoint", err)
	}
	return nil
}

// LoadCheckpoint implements [drs.CheckpointStore].
func (s *Store) LoadCheckpoint(ctx context.Context, sessionID string) ([]byte, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM teaching_checkpoints WHERE session_id = $1`, sessionID).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, errkind.New(errkind.NotFound, "no checkpoint for session: "+sessionID)
	}
	if err != nil {
		return nil, errkind.Wrap(errkind.Transient, "load teaching checkpoint", err)
	}
	return data, nil
}
