// Package worker implements the ingest worker pool (component H): each
// worker claims one task at a time from the job queue broker, processes it
// with a single handler, and recycles itself after a bounded number of
// tasks or when its process's memory grows past a soft cap — mirroring how
// a real deployment would restart a one-task-at-a-time worker process.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"sync"
	"time"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/queue"
)

// MaxTasksPerWorker is M: the number of tasks a single worker processes
// before recycling itself, bounding any single long-lived process's memory
// growth.
const MaxTasksPerWorker = 20

// SoftMemoryCapBytes is the threshold on the Go runtime's memory obtained
// from the OS (runtime.MemStats.Sys) at or above which a worker recycles
// itself after finishing its current task, even under MaxTasksPerWorker.
const SoftMemoryCapBytes = 1300 * 1024 * 1024 // ~1.3GB

// DefaultVisibilityTimeout bounds how long a claimed task may run before
// another worker is allowed to reclaim it.
const DefaultVisibilityTimeout = 90 * time.Minute

// DefaultHeartbeatInterval is how often a worker refreshes its claim while
// processing a task. Must be well under DefaultVisibilityTimeout.
const DefaultHeartbeatInterval = 20 * time.Second

const defaultPollInterval = 2 * time.Second
const defaultPollJitter = 500 * time.Millisecond

// Handler processes one claimed task's payload. A returned error whose
// [errkind.Of] classification is retryable is nacked for redelivery;
// anything else is nacked as permanently failed.
type Handler interface {
	Handle(ctx context.Context, task queue.Task) error
}

// Config tunes a [Pool].
type Config struct {
	Queue             string
	WorkerCount       int
	VisibilityTimeout time.Duration
	HeartbeatInterval time.Duration
	MaxTasksPerWorker int
	SoftMemoryCap     uint64
}

func (c Config) withDefaults() Config {
	if c.WorkerCount == 0 {
		c.WorkerCount = 1
	}
	if c.VisibilityTimeout == 0 {
		c.VisibilityTimeout = DefaultVisibilityTimeout
	}
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.MaxTasksPerWorker == 0 {
		c.MaxTasksPerWorker = MaxTasksPerWorker
	}
	if c.SoftMemoryCap == 0 {
		c.SoftMemoryCap = SoftMemoryCapBytes
	}
	return c
}

// Pool runs Config.WorkerCount concurrent single-task workers against a
// shared broker, replacing each worker with a fresh one whenever it recycles
// itself.
type Pool struct {
	broker  queue.Broker
	handler Handler
	cfg     Config

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewPool constructs a [Pool].
func NewPool(broker queue.Broker, handler Handler, cfg Config) *Pool {
	return &Pool{broker: broker, handler: handler, cfg: cfg.withDefaults()}
}

// Start launches the configured number of worker slots as goroutines. It
// returns immediately; call Stop to shut down gracefully.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.cfg.WorkerCount; i++ {
		slot := i
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.runSlot(ctx, slot)
		}()
	}
}

// Stop blocks until every worker slot has finished its in-flight task and
// exited.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) isStopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// runSlot repeatedly instantiates a fresh [worker] for slot index i,
// running it until it recycles itself or the pool stops.
func (p *Pool) runSlot(ctx context.Context, slot int) {
	generation := 0
	for !p.isStopped() && ctx.Err() == nil {
		id := fmt.Sprintf("worker-%d-gen-%d", slot, generation)
		w := &worker{id: id, broker: p.broker, handler: p.handler, cfg: p.cfg, pool: p}
		w.run(ctx)
		generation++
	}
}

// worker processes at most cfg.MaxTasksPerWorker tasks, one at a time,
// before returning so its pool slot can recycle it.
type worker struct {
	id      string
	broker  queue.Broker
	handler Handler
	cfg     Config
	pool    *Pool

	tasksDone int
}

func (w *worker) run(ctx context.Context) {
	log := slog.With("worker_id", w.id)
	log.Info("worker started")

	for ctx.Err() == nil && !w.pool.isStopped() {
		if w.tasksDone >= w.cfg.MaxTasksPerWorker {
			log.Info("worker recycling after reaching task limit", "tasks_done", w.tasksDone)
			return
		}
		if w.overMemoryCap() {
			log.Info("worker recycling after exceeding soft memory cap", "tasks_done", w.tasksDone)
			return
		}

		task, err := w.broker.Claim(ctx, w.cfg.Queue, w.id, w.cfg.VisibilityTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("claim failed", "error", err)
			w.sleepPoll(ctx)
			continue
		}
		if task == nil {
			w.sleepPoll(ctx)
			continue
		}

		w.processTask(ctx, *task)
		w.tasksDone++
	}
}

func (w *worker) processTask(ctx context.Context, task queue.Task) {
	log := slog.With("worker_id", w.id, "task_id", task.TaskID, "queue", task.Queue)
	log.Info("task claimed")

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.VisibilityTimeout)
	defer cancel()

	heartbeatCtx, stopHeartbeat := context.WithCancel(taskCtx)
	defer stopHeartbeat()
	go w.runHeartbeat(heartbeatCtx, task.TaskID)

	err := w.handler.Handle(taskCtx, task)
	stopHeartbeat()

	if err == nil {
		if ackErr := w.broker.Ack(context.Background(), task.TaskID, w.id); ackErr != nil {
			log.Error("ack failed", "error", ackErr)
		}
		log.Info("task completed")
		return
	}

	retryable := errkind.Of(err).Retryable()
	if nackErr := w.broker.Nack(context.Background(), task.TaskID, w.id, retryable); nackErr != nil {
		log.Error("nack failed", "error", nackErr)
	}
	log.Warn("task failed", "error", err, "retryable", retryable)
}

func (w *worker) runHeartbeat(ctx context.Context, taskID string) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.broker.Heartbeat(ctx, taskID, w.id); err != nil {
				slog.Warn("heartbeat failed", "worker_id", w.id, "task_id", taskID, "error", err)
			}
		}
	}
}

func (w *worker) overMemoryCap() bool {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return m.Sys >= w.cfg.SoftMemoryCap
}

func (w *worker) sleepPoll(ctx context.Context) {
	jitter := time.Duration(rand.Int64N(int64(2 * defaultPollJitter)))
	d := defaultPollInterval - defaultPollJitter + jitter
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
