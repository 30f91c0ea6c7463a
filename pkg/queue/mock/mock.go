// Package mock provides an in-memory test double for [queue.Broker].
package mock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lumenforge/tutorcore/pkg/queue"
)

type entry struct {
	task  queue.Task
	owner string
}

// Broker is an in-memory [queue.Broker] for unit tests. It does not model
// visibility timeouts or backoff delays: a retryable Nack under the attempt
// cap puts the task straight back at the end of its queue.
type Broker struct {
	mu      sync.Mutex
	pending map[string][]string // queue -> ordered task IDs, highest priority first
	tasks   map[string]*entry
	dead    []string

	EnqueueErr error
}

var _ queue.Broker = (*Broker)(nil)

// New creates an empty mock broker.
func New() *Broker {
	return &Broker{
		pending: make(map[string][]string),
		tasks:   make(map[string]*entry),
	}
}

func (b *Broker) Enqueue(ctx context.Context, q string, payload []byte, priority int) (string, error) {
	if b.EnqueueErr != nil {
		return "", b.EnqueueErr
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	taskID := uuid.NewString()
	b.tasks[taskID] = &entry{task: queue.Task{TaskID: taskID, Queue: q, Payload: payload, Priority: priority}}

	ids := b.pending[q]
	inserted := false
	for i, id := range ids {
		if b.tasks[id].task.Priority < priority {
			ids = append(ids[:i], append([]string{taskID}, ids[i:]...)...)
			inserted = true
			break
		}
	}
	if !inserted {
		ids = append(ids, taskID)
	}
	b.pending[q] = ids
	return taskID, nil
}

func (b *Broker) Claim(ctx context.Context, q string, workerID string, visibilityTimeout time.Duration) (*queue.Task, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.pending[q]
	if len(ids) == 0 {
		return nil, nil
	}
	taskID := ids[0]
	b.pending[q] = ids[1:]
	e := b.tasks[taskID]
	e.owner = workerID
	e.task.AttemptCount++
	t := e.task
	return &t, nil
}

func (b *Broker) Heartbeat(ctx context.Context, taskID string, workerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.tasks[taskID]
	if !ok || e.owner != workerID {
		return queue.ErrNotOwner
	}
	return nil
}

func (b *Broker) Ack(ctx context.Context, taskID string, workerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.tasks[taskID]
	if !ok || e.owner != workerID {
		return queue.ErrNotOwner
	}
	delete(b.tasks, taskID)
	return nil
}

func (b *Broker) Nack(ctx context.Context, taskID string, workerID string, retryable bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.tasks[taskID]
	if !ok || e.owner != workerID {
		return queue.ErrNotOwner
	}
	e.owner = ""
	if retryable && e.task.AttemptCount < queue.DefaultBackoff.MaxAttempts {
		b.pending[e.task.Queue] = append(b.pending[e.task.Queue], taskID)
		return nil
	}
	b.dead = append(b.dead, taskID)
	delete(b.tasks, taskID)
	return nil
}

// DeadLettered returns the task IDs currently dead-lettered, for assertions.
func (b *Broker) DeadLettered() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.dead))
	copy(out, b.dead)
	return out
}

// PendingCount reports how many tasks are waiting to be claimed on q.
func (b *Broker) PendingCount(q string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending[q])
}

func (b *Broker) String() string {
	return fmt.Sprintf("mock.Broker{queues=%d}", len(b.pending))
}
