package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrNoClaimableTask is returned when no task currently satisfies the claim
// predicate. This is an expected, frequent outcome under an empty or
// blocked queue, not a failure, and is never passed to the circuit breaker
// as an error.
var ErrNoClaimableTask = errors.New("store: no claimable task")

// claimSQL is a single round-trip statement combining row locking and the
// dependency-satisfaction predicate described by the claim protocol: a
// task is claimable once every predecessor task is COMPLETED and every
// task belonging to a predecessor group is COMPLETED, checked both for the
// task's own dependency edges and (if it belongs to a group) its owning
// group's dependency edges. The chosen task's job is armed
// (started_at/status) in the same statement so claim and job-arming are
// atomic.
const claimSQL = `
WITH candidate AS (
    SELECT t.id
    FROM tasks t
    WHERE t.status = 'PENDING'
      AND NOT EXISTS (
          SELECT 1 FROM dependencies d
          WHERE d.next_id = t.id AND d.next_type = 'task'
            AND (
              (d.previous_type = 'task' AND NOT EXISTS (
                  SELECT 1 FROM tasks pt WHERE pt.id = d.previous_id AND pt.status = 'COMPLETED'))
              OR
              (d.previous_type = 'group' AND EXISTS (
                  SELECT 1 FROM tasks gt WHERE gt.group_id = d.previous_id AND gt.status <> 'COMPLETED'))
            )
      )
      AND (
          t.group_id IS NULL
          OR NOT EXISTS (
              SELECT 1 FROM dependencies d
              WHERE d.next_id = t.group_id AND d.next_type = 'group'
                AND (
                  (d.previous_type = 'task' AND NOT EXISTS (
                      SELECT 1 FROM tasks pt WHERE pt.id = d.previous_id AND pt.status = 'COMPLETED'))
                  OR
                  (d.previous_type = 'group' AND EXISTS (
                      SELECT 1 FROM tasks gt WHERE gt.group_id = d.previous_id AND gt.status <> 'COMPLETED'))
                )
          )
      )
    ORDER BY (SELECT j.started_at FROM jobs j WHERE j.id = t.job_id) ASC NULLS LAST, t.id ASC
    FOR UPDATE OF t SKIP LOCKED
    LIMIT 1
),
updated_task AS (
    UPDATE tasks
    SET status = 'CLAIMED', worker_id = $1, claimed_at = now()
    WHERE id = (SELECT id FROM candidate)
    RETURNING id, job_id, group_id, entrypoint, kwargs, status, result, error,
              worker_id, log_path, max_retries, retry_count, created_at,
              claimed_at, started_at, completed_at
),
armed_job AS (
    UPDATE jobs
    SET started_at = COALESCE(started_at, now()),
        status = CASE WHEN started_at IS NULL THEN 'RUNNING' ELSE status END
    WHERE id IN (SELECT job_id FROM updated_task)
    RETURNING id
)
SELECT id, job_id, group_id, entrypoint, kwargs, status, result, error,
       worker_id, log_path, max_retries, retry_count, created_at,
       claimed_at, started_at, completed_at
FROM updated_task`

// ClaimNextTask atomically claims one ready task for workerID, or returns
// ErrNoClaimableTask if the queue is empty or every pending task is
// blocked on an unfinished predecessor.
func (s *Store) ClaimNextTask(ctx context.Context, workerID int64) (*Task, error) {
	if !s.breaker.Allow() {
		return nil, ErrCircuitOpen
	}
	row := s.Pool.QueryRow(ctx, claimSQL, workerID)
	task, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		s.breaker.RecordResult(true)
		return nil, ErrNoClaimableTask
	}
	s.breaker.RecordResult(err == nil)
	if err != nil {
		return nil, err
	}
	return task, nil
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	if err := row.Scan(
		&t.ID, &t.JobID, &t.GroupID, &t.Entrypoint, &t.Kwargs, &t.Status, &t.Result, &t.Error,
		&t.WorkerID, &t.LogPath, &t.MaxRetries, &t.RetryCount, &t.CreatedAt,
		&t.ClaimedAt, &t.StartedAt, &t.CompletedAt,
	); err != nil {
		return nil, err
	}
	return &t, nil
}
