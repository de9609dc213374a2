package store

import "context"

// RegisterWorker inserts a new ACTIVE worker row.
func (s *Store) RegisterWorker(ctx context.Context, id int64, hostname string, pid int) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO workers (id, hostname, pid, status, last_heartbeat, started_at)
			VALUES ($1, $2, $3, $4, now(), now())`, id, hostname, pid, WorkerActive)
		return struct{}{}, err
	})
	return err
}

// Heartbeat bumps a worker's last_heartbeat timestamp.
func (s *Store) Heartbeat(ctx context.Context, id int64) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `UPDATE workers SET last_heartbeat = now() WHERE id = $1`, id)
		return struct{}{}, err
	})
	return err
}

// RecordTaskOutcome increments a worker's completed/failed counters.
func (s *Store) RecordTaskOutcome(ctx context.Context, workerID int64, succeeded bool) error {
	column := "tasks_completed"
	if !succeeded {
		column = "tasks_failed"
	}
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `UPDATE workers SET `+column+` = `+column+` + 1 WHERE id = $1`, workerID)
		return struct{}{}, err
	})
	return err
}

// Deregister marks a worker STOPPED on clean shutdown.
func (s *Store) Deregister(ctx context.Context, id int64) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `UPDATE workers SET status = $1 WHERE id = $2`, WorkerStopped, id)
		return struct{}{}, err
	})
	return err
}

// ListWorkers returns every worker row, most recently started first.
func (s *Store) ListWorkers(ctx context.Context) ([]Worker, error) {
	return withRetry(ctx, s, func(ctx context.Context) ([]Worker, error) {
		rows, err := s.Pool.Query(ctx, `
			SELECT id, hostname, pid, status, last_heartbeat, tasks_completed, tasks_failed, started_at
			FROM workers ORDER BY started_at DESC`)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var out []Worker
		for rows.Next() {
			var w Worker
			if err := rows.Scan(&w.ID, &w.Hostname, &w.PID, &w.Status, &w.LastHeartbeat,
				&w.TasksCompleted, &w.TasksFailed, &w.StartedAt); err != nil {
				return nil, err
			}
			out = append(out, w)
		}
		return out, rows.Err()
	})
}
