package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/lumenforge/tutorcore/internal/errkind"
	"github.com/lumenforge/tutorcore/pkg/model"
)

// UpsertTask implements [drs.TaskStore].
func (s *Store) UpsertTask(ctx context.Context, task model.IngestTask) error {
	failures, err := json.Marshal(task.PartialFailures)
	if err != nil {
		return errkind.Wrap(errkind.InvalidInput, "marshal partial failures", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO ingest_tasks
		    (task_id, job_id, priority, state, attempt_count, first_seen_at, last_heartbeat_at,
		     error_summary, progress_percent, progress_message, partial_failures, cancel_requested)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (task_id) DO UPDATE SET
		    job_id            = EXCLUDED.job_id,
		    priority          = EXCLUDED.priority,
		    state             = EXCLUDED.state,
		    attempt_count     = EXCLUDED.attempt_count,
		    last_heartbeat_at = EXCLUDED.last_heartbeat_at,
		    error_summary     = EXCLUDED.error_summary,
		    progress_percent  = EXCLUDED.progress_percent,
		    progress_message  = EXCLUDED.progress_message,
		    partial_failures  = EXCLUDED.partial_failures,
		    cancel_requested  = EXCLUDED.cancel_requested`,
		task.TaskID, task.JobID, task.Priority, task.State, task.AttemptCount,
		task.FirstSeenAt, task.LastHeartbeatAt, task.ErrorSummary, task.ProgressPercent,
		task.ProgressMessage, failures, task.CancelRequested,
	)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "upsert ingest task", err)
	}
	return nil
}

// GetTask implements [drs.TaskStore].
func (s *Store) GetTask(ctx context.Context, taskID string) (model.IngestTask, error) {
	var t model.IngestTask
	var failures []byte
	row := s.pool.QueryRow(ctx, `
		SELECT task_id, job_id, priority, state, attempt_count, first_seen_at, last_heartbeat_at,
		       error_summary, progress_percent, progress_message, partial_failures, cancel_requested
		FROM ingest_tasks WHERE task_id = $1`, taskID)
	err := row.Scan(&t.TaskID, &t.JobID, &t.Priority, &t.State, &t.AttemptCount, &t.FirstSeenAt,
		&t.LastHeartbeatAt, &t.ErrorSummary, &t.ProgressPercent, &t.ProgressMessage, &failures, &t.CancelRequested)
	if err == pgx.ErrNoRows {
		return model.IngestTask{}, errkind.New(errkind.NotFound, "ingest task not found: "+taskID)
	}
	if err != nil {
		return model.IngestTask{}, errkind.Wrap(errkind.Transient, "get ingest task", err)
	}
	_ = json.Unmarshal(failures, &t.PartialFailures)
	return t, nil
}

// RequestCancel implements [drs.TaskStore].
func (s *Store) RequestCancel(ctx context.Context, taskID string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE ingest_tasks SET cancel_requested = true WHERE task_id = $1`, taskID)
	if err != nil {
		return errkind.Wrap(errkind.Transient, "request cancel", err)
	}
	if tag.RowsAffected() == 0 {
		return errkind.New(errkind.NotFound, "ingest task not found: "+taskID)
	}
	return nil
}
