package store

import "context"

// TasksForJob returns every task belonging to jobID, for callers (the debug
// runner) that need the whole graph in memory rather than one claim at a
// time.
func (s *Store) TasksForJob(ctx context.Context, jobID int64) ([]Task, error) {
	return withRetry(ctx, s, func(ctx context.Context) ([]Task, error) {
		rows, err := s.Pool.Query(ctx, `
			SELECT id, job_id, group_id, entrypoint, kwargs, status, result, error,
			       worker_id, log_path, max_retries, retry_count, created_at,
			       claimed_at, started_at, completed_at
			FROM tasks WHERE job_id = $1`, jobID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Task
		for rows.Next() {
			t, err := scanTask(rows)
			if err != nil {
				return nil, err
			}
			out = append(out, *t)
		}
		return out, rows.Err()
	})
}

// DependenciesForJob returns every dependency edge touching a task or group
// belonging to jobID.
func (s *Store) DependenciesForJob(ctx context.Context, jobID int64) ([]Dependency, error) {
	return withRetry(ctx, s, func(ctx context.Context) ([]Dependency, error) {
		rows, err := s.Pool.Query(ctx, `
			SELECT previous_id, previous_type, next_id, next_type
			FROM dependencies
			WHERE next_id IN (
			        SELECT id FROM tasks WHERE job_id = $1
			        UNION SELECT id FROM groups WHERE job_id = $1
			      )
			   OR previous_id IN (
			        SELECT id FROM tasks WHERE job_id = $1
			        UNION SELECT id FROM groups WHERE job_id = $1
			      )`, jobID)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Dependency
		for rows.Next() {
			var d Dependency
			if err := rows.Scan(&d.PreviousID, &d.PreviousType, &d.NextID, &d.NextType); err != nil {
				return nil, err
			}
			out = append(out, d)
		}
		return out, rows.Err()
	})
}
