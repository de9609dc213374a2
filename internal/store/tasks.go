package store

import (
	"context"
	"encoding/json"
)

// MarkTaskRunning moves task taskID to RUNNING, stamps started_at, and
// records logPath as the task's log file.
func (s *Store) MarkTaskRunning(ctx context.Context, taskID int64, logPath string) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `
			UPDATE tasks SET status = $1, started_at = now(), log_path = $2
			WHERE id = $3`, TaskRunning, logPath, taskID)
		return struct{}{}, err
	})
	return err
}

// CompleteTask records a successful task outcome: terminal status and the
// serialized result reference (or JSON null).
func (s *Store) CompleteTask(ctx context.Context, taskID int64, result json.RawMessage) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `
			UPDATE tasks SET status = $1, result = $2, completed_at = now()
			WHERE id = $3`, TaskCompleted, result, taskID)
		return struct{}{}, err
	})
	return err
}

// FailTask records a failed task outcome with the stringified error.
func (s *Store) FailTask(ctx context.Context, taskID int64, errMsg string) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `
			UPDATE tasks SET status = $1, error = $2, completed_at = now()
			WHERE id = $3`, TaskFailed, errMsg, taskID)
		return struct{}{}, err
	})
	return err
}
