// Package lifecycle implements the two-tier refcount system for ephemeral
// ClickHouse tables: a local handler that drops tables synchronously when
// their refcount hits zero, and a distributed handler that only records
// refcount deltas, leaving physical drops to the out-of-process sweeper.
package lifecycle

import "context"

// Handler is the common incref/decref contract a DataContext drives.
// Incref and Decref are non-blocking (a buffered channel send) and safe to
// call from any goroutine, including one spawned by a deferred cleanup
// during process shutdown.
type Handler interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Incref(tableName string)
	Decref(tableName string)
}

type message struct {
	tableName string
	delta     int
}
