// Package redisbroker implements [queue.Broker] on Redis Streams: one stream
// per (queue, priority) pair, a shared consumer group per queue, and a
// sorted-set delay line for backed-off retries that are promoted back onto
// the stream once their backoff elapses.
package redisbroker

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/lumenforge/tutorcore/pkg/queue"
)

const (
	groupName    = "workers"
	minPriority  = 0
	maxPriority  = 10
	deadLetterKw = "dead"
)

// Broker implements [queue.Broker] over a *redis.Client.
type Broker struct {
	rdb     *redis.Client
	backoff queue.BackoffConfig
}

var _ queue.Broker = (*Broker)(nil)

// New wraps an already-connected *redis.Client. Pass [queue.DefaultBackoff]
// unless a deployment needs a different redelivery schedule.
func New(rdb *redis.Client, backoff queue.BackoffConfig) *Broker {
	return &Broker{rdb: rdb, backoff: backoff}
}

func streamKey(q string, priority int) string {
	return fmt.Sprintf("tutorcore:queue:%s:p%d", q, priority)
}

func taskKey(taskID string) string {
	return "tutorcore:task:" + taskID
}

func retryKey(q string) string {
	return "tutorcore:retry:" + q
}

func deadKey(q string) string {
	return fmt.Sprintf("tutorcore:%s:%s", deadLetterKw, q)
}

// Enqueue implements [queue.Broker].
func (b *Broker) Enqueue(ctx context.Context, q string, payload []byte, priority int) (string, error) {
	if priority < minPriority {
		priority = minPriority
	}
	if priority > maxPriority {
		priority = maxPriority
	}
	taskID := uuid.NewString()
	stream := streamKey(q, priority)

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(taskID), map[string]any{
		"queue":    q,
		"payload":  payload,
		"priority": priority,
		"attempt":  0,
		"state":    "pending",
	})
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{"task_id": taskID},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", queue.ErrBrokerUnavailable, err)
	}
	return taskID, nil
}

func (b *Broker) ensureGroup(ctx context.Context, stream string) {
	_ = b.rdb.XGroupCreateMkStream(ctx, stream, groupName, "0").Err()
}

// Claim implements [queue.Broker]. It first promotes any due retries, then
// polls streams from highest to lowest priority.
func (b *Broker) Claim(ctx context.Context, q string, workerID string, visibilityTimeout time.Duration) (*queue.Task, error) {
	if err := b.promoteRetries(ctx, q); err != nil {
		return nil, err
	}

	for priority := maxPriority; priority >= minPriority; priority-- {
		stream := streamKey(q, priority)
		b.ensureGroup(ctx, stream)

		streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    groupName,
			Consumer: workerID,
			Streams:  []string{stream, ">"},
			Count:    1,
			Block:    0,
			NoAck:    false,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", queue.ErrBrokerUnavailable, err)
		}
		if len(streams) == 0 || len(streams[0].Messages) == 0 {
			continue
		}
		msg := streams[0].Messages[0]
		task, err := b.loadAndClaim(ctx, stream, msg, workerID, priority)
		if err != nil {
			continue
		}
		return task, nil
	}
	return nil, nil
}

func (b *Broker) loadAndClaim(ctx context.Context, stream string, msg redis.XMessage, workerID string, priority int) (*queue.Task, error) {
	taskID, _ := msg.Values["task_id"].(string)
	if taskID == "" {
		return nil, fmt.Errorf("redisbroker: stream entry missing task_id")
	}
	fields, err := b.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil || len(fields) == 0 {
		return nil, fmt.Errorf("redisbroker: task %s metadata missing", taskID)
	}
	attempt, _ := strconv.Atoi(fields["attempt"])

	pipe := b.rdb.TxPipeline()
	pipe.HSet(ctx, taskKey(taskID), map[string]any{
		"state":    "running",
		"owner":    workerID,
		"stream":   stream,
		"entry_id": msg.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	return &queue.Task{
		TaskID:       taskID,
		Queue:        fields["queue"],
		Payload:      []byte(fields["payload"]),
		Priority:     priority,
		AttemptCount: attempt,
	}, nil
}

// Heartbeat implements [queue.Broker]. It re-claims the pending-entries-list
// entry for itself with JUSTID, which resets Redis's idle-time counter — the
// basis for visibility-timeout enforcement via ReclaimAbandoned.
func (b *Broker) Heartbeat(ctx context.Context, taskID string, workerID string) error {
	fields, err := b.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil || len(fields) == 0 {
		return queue.ErrNotOwner
	}
	if fields["owner"] != workerID {
		return queue.ErrNotOwner
	}
	_, err = b.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   fields["stream"],
		Group:    groupName,
		Consumer: workerID,
		MinIdle:  0,
		Messages: []string{fields["entry_id"]},
		JustID:   true,
	}).Result()
	return err
}

// Ack implements [queue.Broker].
func (b *Broker) Ack(ctx context.Context, taskID string, workerID string) error {
	fields, err := b.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil || len(fields) == 0 {
		return queue.ErrNotOwner
	}
	if fields["owner"] != workerID {
		return queue.ErrNotOwner
	}
	pipe := b.rdb.TxPipeline()
	pipe.XAck(ctx, fields["stream"], groupName, fields["entry_id"])
	pipe.Del(ctx, taskKey(taskID))
	_, err = pipe.Exec(ctx)
	return err
}

// Nack implements [queue.Broker].
func (b *Broker) Nack(ctx context.Context, taskID string, workerID string, retryable bool) error {
	fields, err := b.rdb.HGetAll(ctx, taskKey(taskID)).Result()
	if err != nil || len(fields) == 0 {
		return queue.ErrNotOwner
	}
	if fields["owner"] != workerID {
		return queue.ErrNotOwner
	}

	q := fields["queue"]
	attempt, _ := strconv.Atoi(fields["attempt"])
	attempt++
	maxAttempts := b.backoff.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = queue.DefaultBackoff.MaxAttempts
	}

	pipe := b.rdb.TxPipeline()
	pipe.XAck(ctx, fields["stream"], groupName, fields["entry_id"])

	if retryable && attempt < maxAttempts {
		delay := b.computeBackoff(attempt)
		pipe.HSet(ctx, taskKey(taskID), map[string]any{
			"attempt": attempt,
			"state":   "retrying",
			"owner":   "",
		})
		pipe.ZAdd(ctx, retryKey(q), redis.Z{
			Score:  float64(time.Now().Add(delay).UnixNano()),
			Member: taskID,
		})
	} else {
		pipe.HSet(ctx, taskKey(taskID), map[string]any{"state": "failed", "attempt": attempt})
		pipe.LPush(ctx, deadKey(q), taskID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// computeBackoff applies base*factor^(attempt-1) capped, with ±jitterFrac
// jitter.
func (b *Broker) computeBackoff(attempt int) time.Duration {
	cfg := b.backoff
	if cfg.Base <= 0 {
		cfg = queue.DefaultBackoff
	}
	d := float64(cfg.Base)
	for i := 1; i < attempt; i++ {
		d *= cfg.Factor
	}
	if capD := float64(cfg.Cap); d > capD {
		d = capD
	}
	jitter := 1 + (rand.Float64()*2-1)*cfg.JitterFrac
	return time.Duration(d * jitter)
}

// promoteRetries moves any due entries from the retry delay line back onto
// the priority stream they were dequeued from.
func (b *Broker) promoteRetries(ctx context.Context, q string) error {
	now := float64(time.Now().UnixNano())
	due, err := b.rdb.ZRangeByScore(ctx, retryKey(q), &redis.ZRangeBy{
		Min: "-inf", Max: fmt.Sprintf("%f", now), Count: 100,
	}).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", queue.ErrBrokerUnavailable, err)
	}
	for _, taskID := range due {
		fields, err := b.rdb.HGetAll(ctx, taskKey(taskID)).Result()
		if err != nil || len(fields) == 0 {
			b.rdb.ZRem(ctx, retryKey(q), taskID)
			continue
		}
		priority, _ := strconv.Atoi(fields["priority"])
		stream := streamKey(q, priority)
		pipe := b.rdb.TxPipeline()
		pipe.HSet(ctx, taskKey(taskID), map[string]any{"state": "pending"})
		pipe.XAdd(ctx, &redis.XAddArgs{Stream: stream, Values: map[string]any{"task_id": taskID}})
		pipe.ZRem(ctx, retryKey(q), taskID)
		if _, err := pipe.Exec(ctx); err != nil {
			return err
		}
	}
	return nil
}

// ReclaimAbandoned transfers ownership of any pending-entries-list items on
// queue's streams that have been idle longer than visibilityTimeout to
// newWorkerID, so a crashed worker's unacked task becomes claimable again.
// Intended to be called periodically by the supervising runner, independent
// of Claim.
func (b *Broker) ReclaimAbandoned(ctx context.Context, q string, newWorkerID string, visibilityTimeout time.Duration) (int, error) {
	reclaimed := 0
	for priority := maxPriority; priority >= minPriority; priority-- {
		stream := streamKey(q, priority)
		b.ensureGroup(ctx, stream)
		_, msgs, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   stream,
			Group:    groupName,
			Consumer: newWorkerID,
			MinIdle:  visibilityTimeout,
			Start:    "0-0",
			Count:    50,
		}).Result()
		if err != nil {
			continue
		}
		for _, msg := range msgs {
			taskID, _ := msg.Values["task_id"].(string)
			if taskID == "" {
				continue
			}
			_ = b.rdb.HSet(ctx, taskKey(taskID), map[string]any{
				"owner":    newWorkerID,
				"stream":   stream,
				"entry_id": msg.ID,
				"state":    "running",
			}).Err()
			reclaimed++
		}
	}
	return reclaimed, nil
}
