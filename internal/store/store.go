// Package store owns the PostgreSQL-backed state store: schema migrations,
// entity rows, the atomic claim protocol, and refcount bookkeeping for the
// distributed lifecycle handler.
package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kolodkin/aaiclick-sub000/internal/resilience"
)

// Store wraps a pgxpool.Pool with the resilience wrapping described in the
// ambient stack: transient connection errors are retried a bounded number
// of times before surfacing, and a circuit breaker protects the pool from
// being hammered while the database is down.
type Store struct {
	Pool    *pgxpool.Pool
	breaker *resilience.CircuitBreaker
}

// Open connects to Postgres using dsn and returns a ready Store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{
		Pool: pool,
		breaker: resilience.NewCircuitBreakerAdaptive(
			30*time.Second, 6, 10, 0.5, 5*time.Second, 3,
		),
	}, nil
}

// Close disposes the underlying pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// withRetry runs fn with bounded exponential-backoff retry and records the
// outcome against the store's circuit breaker. It wraps every single-
// statement store operation except the claim statement itself, whose "no
// rows" result is an expected outcome rather than a transient failure.
// Apply's multi-statement transaction runs without it.
func withRetry[T any](ctx context.Context, s *Store, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if !s.breaker.Allow() {
		return zero, ErrCircuitOpen
	}
	v, err := resilience.Retry(ctx, 3, 50*time.Millisecond, func() (T, error) {
		return fn(ctx)
	})
	s.breaker.RecordResult(err == nil)
	return v, err
}
