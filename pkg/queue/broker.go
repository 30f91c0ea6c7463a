// Package queue defines the job queue broker capability interface
// (component E): a durable multi-priority FIFO with acknowledgement and
// visibility-timeout redelivery, as consumed by the ingest worker pool.
package queue

import (
	"context"
	"errors"
	"time"
)

// ErrBrokerUnavailable is returned by Enqueue when the broker cannot be
// reached. The caller must surface this to the user rather than retry
// silently.
var ErrBrokerUnavailable = errors.New("queue: broker unavailable")

// ErrNotOwner is returned by Heartbeat, Ack, and Nack when workerID does not
// currently own taskID — another worker has already reclaimed it after a
// visibility-timeout expiry.
var ErrNotOwner = errors.New("queue: worker does not own task")

// Task is a claimed unit of work together with the bookkeeping a broker
// needs to heartbeat, ack, or nack it.
type Task struct {
	TaskID       string
	Queue        string
	Payload      []byte
	Priority     int
	AttemptCount int
}

// Broker is the capability interface consumed by the worker pool. Every
// method is a suspension point with an explicit deadline carried in ctx.
type Broker interface {
	// Enqueue durably persists payload under queue at priority (0-10, higher
	// is delivered first among ready tasks) and returns a task id. Returns
	// once the broker has acknowledged persistence.
	Enqueue(ctx context.Context, queue string, payload []byte, priority int) (taskID string, err error)

	// Claim blocks up to a poll budget for the next ready task on queue and,
	// if found, marks it invisible to other workers for visibilityTimeout.
	// Returns (nil, nil) if no task was ready within the poll budget.
	Claim(ctx context.Context, queue string, workerID string, visibilityTimeout time.Duration) (*Task, error)

	// Heartbeat extends a claimed task's visibility window. Returns
	// ErrNotOwner if workerID no longer owns taskID.
	Heartbeat(ctx context.Context, taskID string, workerID string) error

	// Ack durably removes a successfully completed task.
	Ack(ctx context.Context, taskID string, workerID string) error

	// Nack returns a task to the queue (if retryable and under the attempt
	// cap) with exponential backoff, or moves it to the dead-letter record
	// (if not retryable, or the attempt cap is exceeded).
	Nack(ctx context.Context, taskID string, workerID string, retryable bool) error
}

// BackoffConfig parameterizes the redelivery backoff schedule applied by
// Nack(retryable=true).
type BackoffConfig struct {
	Base       time.Duration
	Factor     float64
	Cap        time.Duration
	JitterFrac float64
	MaxAttempts int
}

// DefaultBackoff matches the schedule: base 1s, factor 2, cap 60s, jitter
// ±25%, at most 3 attempts before dead-lettering.
var DefaultBackoff = BackoffConfig{
	Base:        1 * time.Second,
	Factor:      2,
	Cap:         60 * time.Second,
	JitterFrac:  0.25,
	MaxAttempts: 3,
}
