package lifecycle

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// RefcountStore is the state-store surface the distributed handler needs;
// satisfied by *store.Store, narrowed here to avoid a direct dependency
// from lifecycle onto store's broader surface.
type RefcountStore interface {
	IncrRefcount(ctx context.Context, tableName string, delta int) error
	DecrRefcount(ctx context.Context, tableName string, delta int) error
}

// Distributed is the lifecycle handler used by workers spread across a
// cluster: it only ever writes refcount deltas to the state store and
// never drops a ClickHouse table itself, leaving that to the independent
// cleanup sweeper. Its consumer loop runs against its own connection pool
// so it can outlive any single DataContext.
type Distributed struct {
	refcounts RefcountStore
	msgs      chan message
	done      chan struct{}
	wg        sync.WaitGroup
}

// NewDistributed constructs a Distributed handler bound to refcounts.
func NewDistributed(refcounts RefcountStore) *Distributed {
	return &Distributed{
		refcounts: refcounts,
		msgs:      make(chan message, 256),
		done:      make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (d *Distributed) Start(ctx context.Context) error {
	d.wg.Add(1)
	go d.run(ctx)
	return nil
}

// Stop signals the consumer and waits (with a bounded timeout) for the
// queue to drain before returning.
func (d *Distributed) Stop(ctx context.Context) error {
	close(d.done)
	stopped := make(chan struct{})
	go func() { d.wg.Wait(); close(stopped) }()
	select {
	case <-stopped:
		return nil
	case <-time.After(10 * time.Second):
		return nil
	}
}

// Incref increments tableName's distributed refcount.
func (d *Distributed) Incref(tableName string) {
	select {
	case d.msgs <- message{tableName: tableName, delta: 1}:
	default:
		go func() { d.msgs <- message{tableName: tableName, delta: 1} }()
	}
}

// Decref decrements tableName's distributed refcount.
func (d *Distributed) Decref(tableName string) {
	select {
	case d.msgs <- message{tableName: tableName, delta: -1}:
	default:
		go func() { d.msgs <- message{tableName: tableName, delta: -1} }()
	}
}

func (d *Distributed) run(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case m := <-d.msgs:
			d.apply(ctx, m)
		case <-d.done:
			d.drainRemaining(ctx)
			return
		}
	}
}

func (d *Distributed) drainRemaining(ctx context.Context) {
	for {
		select {
		case m := <-d.msgs:
			d.apply(ctx, m)
		default:
			return
		}
	}
}

func (d *Distributed) apply(ctx context.Context, m message) {
	var err error
	if m.delta >= 0 {
		err = d.refcounts.IncrRefcount(ctx, m.tableName, m.delta)
	} else {
		err = d.refcounts.DecrRefcount(ctx, m.tableName, -m.delta)
	}
	if err != nil {
		slog.Warn("distributed lifecycle: refcount write failed", "table", m.tableName, "error", err)
	}
}
