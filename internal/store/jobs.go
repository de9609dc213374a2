package store

import (
	"context"
)

// InsertJob inserts a new job row in PENDING status.
func (s *Store) InsertJob(ctx context.Context, id int64, name string) (*Job, error) {
	return withRetry(ctx, s, func(ctx context.Context) (*Job, error) {
		row := s.Pool.QueryRow(ctx, `
			INSERT INTO jobs (id, name, status)
			VALUES ($1, $2, $3)
			RETURNING id, name, status, created_at, started_at, completed_at, error`,
			id, name, JobPending)
		return scanJob(row)
	})
}

// GetJob fetches a job by ID.
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	return withRetry(ctx, s, func(ctx context.Context) (*Job, error) {
		row := s.Pool.QueryRow(ctx, `
			SELECT id, name, status, created_at, started_at, completed_at, error
			FROM jobs WHERE id = $1`, id)
		return scanJob(row)
	})
}

// AllTasksTerminal reports whether every task belonging to jobID has
// reached COMPLETED or FAILED, and whether any of them FAILED.
func (s *Store) AllTasksTerminal(ctx context.Context, jobID int64) (allTerminal bool, anyFailed bool, err error) {
	type result struct {
		allTerminal bool
		anyFailed   bool
	}
	r, err := withRetry(ctx, s, func(ctx context.Context) (result, error) {
		var total, terminal, failed int
		err := s.Pool.QueryRow(ctx, `
			SELECT count(*),
			       count(*) FILTER (WHERE status IN ('COMPLETED','FAILED')),
			       count(*) FILTER (WHERE status = 'FAILED')
			FROM tasks WHERE job_id = $1`, jobID).Scan(&total, &terminal, &failed)
		if err != nil {
			return result{}, err
		}
		return result{allTerminal: total > 0 && total == terminal, anyFailed: failed > 0}, nil
	})
	return r.allTerminal, r.anyFailed, err
}

// FinalizeJobIfTerminal marks jobID COMPLETED or FAILED if every task is
// terminal and the job isn't terminal already. This check is racey across
// concurrent workers but idempotent: once a job is terminal it stays so.
func (s *Store) FinalizeJobIfTerminal(ctx context.Context, jobID int64) error {
	allTerminal, anyFailed, err := s.AllTasksTerminal(ctx, jobID)
	if err != nil || !allTerminal {
		return err
	}
	status := JobCompleted
	if anyFailed {
		status = JobFailed
	}
	_, err = withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `
			UPDATE jobs SET status = $1, completed_at = now()
			WHERE id = $2 AND status NOT IN ('COMPLETED','FAILED')`, status, jobID)
		return struct{}{}, err
	})
	return err
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	if err := row.Scan(&j.ID, &j.Name, &j.Status, &j.CreatedAt, &j.StartedAt, &j.CompletedAt, &j.Error); err != nil {
		return nil, err
	}
	return &j, nil
}

// rowScanner is satisfied by both pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}
