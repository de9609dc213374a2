// Package sweeper implements the out-of-process cleanup loop that
// physically drops ClickHouse tables once their refcount has been observed
// non-positive. It is the only component that issues DROP TABLE on behalf
// of the distributed lifecycle handler.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// RefcountStore is the state-store surface the sweeper needs.
type RefcountStore interface {
	SweepCandidates(ctx context.Context, limit int) ([]string, error)
	DeleteRefcountIfNonPositive(ctx context.Context, tableName string) (bool, error)
}

// DDLExecer drops a table by name.
type DDLExecer interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// Sweeper periodically scans RefcountStore for tables with a non-positive
// refcount and drops them from ClickHouse.
type Sweeper struct {
	store    RefcountStore
	ch       DDLExecer
	interval time.Duration
	batch    int

	dropped metric.Int64Counter
}

// New constructs a Sweeper that scans every interval, in batches of batch.
func New(store RefcountStore, ch DDLExecer, interval time.Duration, batch int) *Sweeper {
	meter := otel.GetMeterProvider().Meter("aaiclick")
	dropped, _ := meter.Int64Counter("aaiclick_tables_dropped_total")
	return &Sweeper{store: store, ch: ch, interval: interval, batch: batch, dropped: dropped}
}

// Run loops until ctx is cancelled, sweeping once per tick immediately and
// then on the configured interval.
func (s *Sweeper) Run(ctx context.Context) error {
	s.sweepOnce(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	names, err := s.store.SweepCandidates(ctx, s.batch)
	if err != nil {
		slog.Warn("sweeper: scan failed", "error", err)
		return
	}
	for _, name := range names {
		// Drop is best-effort: the table may already be gone if a local
		// lifecycle handler raced us to zero.
		if err := s.ch.Exec(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
			slog.Warn("sweeper: drop failed", "table", name, "error", err)
			continue
		}
		// Re-check the predicate on delete: a racing incref may have lifted
		// the count back positive between the scan and this delete.
		removed, err := s.store.DeleteRefcountIfNonPositive(ctx, name)
		if err != nil {
			slog.Warn("sweeper: refcount delete failed", "table", name, "error", err)
			continue
		}
		if removed {
			s.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("table", name)))
		}
	}
}
