package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/queue"
	queuemock "github.com/lumenforge/tutorcore/pkg/queue/mock"
)

type countingHandler struct {
	calls int32
	err   error
	done  chan struct{}
	want  int32
}

func (h *countingHandler) Handle(ctx context.Context, task queue.Task) error {
	n := atomic.AddInt32(&h.calls, 1)
	if n >= h.want {
		close(h.done)
	}
	return h.err
}

func TestPool_ProcessesEnqueuedTasks(t *testing.T) {
	broker := queuemock.New()
	for i := 0; i < 3; i++ {
		if _, err := broker.Enqueue(context.Background(), "ingest", []byte("payload"), 5); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	handler := &countingHandler{done: make(chan struct{}), want: 3}
	pool := NewPool(broker, handler, Config{Queue: "ingest", WorkerCount: 2, HeartbeatInterval: time.Hour})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	select {
	case <-handler.done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for all tasks to process")
	}

	cancel()
	pool.Stop()

	if got := atomic.LoadInt32(&handler.calls); got < 3 {
		t.Fatalf("handled %d tasks, want at least 3", got)
	}
}

func TestPool_NacksRetryableFailureForRedelivery(t *testing.T) {
	broker := queuemock.New()
	if _, err := broker.Enqueue(context.Background(), "ingest", []byte("payload"), 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	var mu sync.Mutex
	attempts := 0
	handler := handlerFunc(func(ctx context.Context, task queue.Task) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			return errkind.New(errkind.Transient, "temporary failure")
		}
		return nil
	})

	pool := NewPool(broker, handler, Config{Queue: "ingest", WorkerCount: 1, HeartbeatInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pool.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := attempts
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	pool.Stop()

	mu.Lock()
	defer mu.Unlock()
	if attempts < 2 {
		t.Fatalf("expected a retry after a transient failure, got %d attempts", attempts)
	}
}

type handlerFunc func(ctx context.Context, task queue.Task) error

func (f handlerFunc) Handle(ctx context.Context, task queue.Task) error { return f(ctx, task) }
