package lifecycle

import (
	"context"
	"log/slog"
	"sync"
)

// DDLExecer is the narrow ClickHouse client surface the local handler
// needs: the ability to run opaque DDL. Satisfied by clickhouse.Conn
// without lifecycle importing the clickhouse package, which in turn
// depends on lifecycle.Handler.
type DDLExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Local is the default in-process lifecycle handler: a single consumer
// goroutine drains a buffered channel of incref/decref messages and issues
// a synchronous DROP TABLE IF EXISTS the instant a table's refcount
// reaches zero, so a worker never leaves dead tables behind it.
type Local struct {
	conn   DDLExecer
	msgs   chan message
	done   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	counts map[string]int
}

// NewLocal constructs a Local handler bound to conn. Start must be called
// before Incref/Decref take effect.
func NewLocal(conn DDLExecer) *Local {
	return &Local{
		conn:   conn,
		msgs:   make(chan message, 256),
		done:   make(chan struct{}),
		counts: make(map[string]int),
	}
}

// Start launches the consumer goroutine.
func (l *Local) Start(ctx context.Context) error {
	l.wg.Add(1)
	go l.run(ctx)
	return nil
}

// Stop drains pending messages (dropping any table whose count reaches zero
// on the way), then returns once the consumer has exited. A table is dropped
// once, when its count reaches zero; tables still at a positive count are
// not dropped.
func (l *Local) Stop(ctx context.Context) error {
	close(l.done)
	l.wg.Wait()
	return nil
}

// Incref increments tableName's refcount. Non-blocking: sends onto a
// buffered channel and never touches the database on the caller's
// goroutine.
func (l *Local) Incref(tableName string) {
	select {
	case l.msgs <- message{tableName: tableName, delta: 1}:
	default:
		go func() { l.msgs <- message{tableName: tableName, delta: 1} }()
	}
}

// Decref decrements tableName's refcount, dropping the table synchronously
// on the consumer goroutine once it reaches zero.
func (l *Local) Decref(tableName string) {
	select {
	case l.msgs <- message{tableName: tableName, delta: -1}:
	default:
		go func() { l.msgs <- message{tableName: tableName, delta: -1} }()
	}
}

func (l *Local) run(ctx context.Context) {
	defer l.wg.Done()
	for {
		select {
		case m := <-l.msgs:
			l.apply(ctx, m)
		case <-l.done:
			l.drainRemaining(ctx)
			return
		}
	}
}

func (l *Local) drainRemaining(ctx context.Context) {
	for {
		select {
		case m := <-l.msgs:
			l.apply(ctx, m)
		default:
			l.mu.Lock()
			leftover := make([]string, 0)
			for name, count := range l.counts {
				if count <= 0 {
					leftover = append(leftover, name)
				}
			}
			l.mu.Unlock()
			for _, name := range leftover {
				l.drop(ctx, name)
			}
			return
		}
	}
}

func (l *Local) apply(ctx context.Context, m message) {
	l.mu.Lock()
	l.counts[m.tableName] += m.delta
	zero := l.counts[m.tableName] <= 0
	if zero {
		delete(l.counts, m.tableName)
	}
	l.mu.Unlock()
	if zero {
		l.drop(ctx, m.tableName)
	}
}

func (l *Local) drop(ctx context.Context, tableName string) {
	if err := l.conn.Exec(ctx, "DROP TABLE IF EXISTS "+tableName); err != nil {
		// The target may already be gone (sweeper raced us, or a previous
		// drop already succeeded); this is swallowed rather than surfaced.
		slog.Warn("local lifecycle: drop failed", "table", tableName, "error", err)
	}
}
