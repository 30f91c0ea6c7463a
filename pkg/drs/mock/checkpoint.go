package mock

import (
	"context"
	"sync"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/drs"
)

// CheckpointStore is an in-memory [drs.CheckpointStore] double.
type CheckpointStore struct {
	mu   sync.Mutex
	data map[string][]byte

	SaveErr error
}

var _ drs.CheckpointStore = (*CheckpointStore)(nil)

// NewCheckpointStore constructs an empty [CheckpointStore].
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{data: make(map[string][]byte)}
}

func (c *CheckpointStore) SaveCheckpoint(ctx context.Context, sessionID string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SaveErr != nil {
		return c.SaveErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.data[sessionID] = cp
	return nil
}

func (c *CheckpointStore) LoadCheckpoint(ctx context.Context, sessionID string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[sessionID]
	if !ok {
		return nil, errkind.New(errkind.NotFound, "no checkpoint for session: "+sessionID)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}
