package store

import "context"

// IncrRefcount raises table_name's refcount by delta (creating the row at
// 0 first if absent), for the distributed lifecycle handler.
func (s *Store) IncrRefcount(ctx context.Context, tableName string, delta int) error {
	_, err := withRetry(ctx, s, func(ctx context.Context) (struct{}, error) {
		_, err := s.Pool.Exec(ctx, `
			INSERT INTO refcounts (table_name, count) VALUES ($1, $2)
			ON CONFLICT (table_name) DO UPDATE SET count = refcounts.count + $2`,
			tableName, delta)
		return struct{}{}, err
	})
	return err
}

// DecrRefcount lowers table_name's refcount by delta. It never drops the
// underlying ClickHouse table itself: only the sweeper does that.
func (s *Store) DecrRefcount(ctx context.Context, tableName string, delta int) error {
	return s.IncrRefcount(ctx, tableName, -delta)
}

// SweepCandidates returns up to limit table names whose refcount is
// non-positive, for the cleanup sweeper's bounded batch scan.
func (s *Store) SweepCandidates(ctx context.Context, limit int) ([]string, error) {
	return withRetry(ctx, s, func(ctx context.Context) ([]string, error) {
		rows, err := s.Pool.Query(ctx, `
			SELECT table_name FROM refcounts WHERE count <= 0 LIMIT $1`, limit)
		if err != nil {
			return nil, err
		}
		defer rows.Close()

		var names []string
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		return names, rows.Err()
	})
}

// DeleteRefcountIfNonPositive removes tableName's refcount row, but only if
// its count is still non-positive at delete time: this re-check guards
// against a racing Incref that lifted the count back up between the scan
// and the delete.
func (s *Store) DeleteRefcountIfNonPositive(ctx context.Context, tableName string) (bool, error) {
	return withRetry(ctx, s, func(ctx context.Context) (bool, error) {
		tag, err := s.Pool.Exec(ctx, `
			DELETE FROM refcounts WHERE table_name = $1 AND count <= 0`, tableName)
		if err != nil {
			return false, err
		}
		return tag.RowsAffected() > 0, nil
	})
}
