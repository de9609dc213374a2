// Package clickhouse owns the data-plane client: the DataContext scoped
// handle, Object/View references, and the primitive that materializes a
// callback's return value as a new ClickHouse table.
package clickhouse

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/pkg/errors"

	"github.com/kolodkin/aaiclick-sub000/internal/lifecycle"
	"github.com/kolodkin/aaiclick-sub000/internal/serialize"
	"github.com/kolodkin/aaiclick-sub000/internal/snowflake"
)

// ErrStaleObject is returned by CreateObjectFromValue once its DataContext
// has been closed. Object and View values carry no staleness check of their
// own: their Ref method keeps working after the context is closed.
var ErrStaleObject = errors.New("clickhouse: use of object after scope exit")

// Conn is the subset of clickhouse.Conn the orchestrator core depends on:
// opaque DDL/DML execution and row scanning, never typed Object semantics.
type Conn = clickhouse.Conn

// Open dials ClickHouse at addr.
func Open(addr, database, user, password string) (Conn, error) {
	return clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	})
}

// Object is a handle to a ClickHouse table holding rows keyed by aai_id.
type Object struct {
	TableID string
	dc      *DataContext
}

// View is a read-only, constrained projection over an Object's table.
type View struct {
	TableID string
	Offset  *int
	Limit   *int
	Where   string
	dc      *DataContext
}

// Ref renders o as the wire shape stored in kwargs/results.
func (o *Object) Ref() serialize.Ref { return serialize.ObjectRef(o.TableID) }

// Ref renders v as the wire shape stored in kwargs.
func (v *View) Ref() serialize.Ref {
	return serialize.Ref{
		ObjectType: serialize.ObjectTypeView,
		TableID:    v.TableID,
		Offset:     v.Offset,
		Limit:      v.Limit,
		Where:      v.Where,
	}
}

// DataContext is the scoped handle a task execution acquires: it owns a
// ClickHouse connection and a lifecycle handler, and is marked stale when
// the scope exits.
type DataContext struct {
	conn          Conn
	lifecycle     lifecycle.Handler
	ownsLifecycle bool
	gen           *snowflake.Generator
	stale         bool
}

type dataContextKey struct{}

// WithContext returns a derived context carrying dc, the Go-idiomatic
// replacement for the source's ambient "current context" slot: since Go
// has no implicit continuation-local storage, the active DataContext must
// be threaded explicitly through context.Context.
func WithContext(ctx context.Context, dc *DataContext) context.Context {
	return context.WithValue(ctx, dataContextKey{}, dc)
}

// FromContext retrieves the active DataContext, if any.
func FromContext(ctx context.Context) (*DataContext, bool) {
	dc, ok := ctx.Value(dataContextKey{}).(*DataContext)
	return dc, ok
}

// NewDataContext acquires a DataContext scoped resource: it starts the
// given (or a default local) lifecycle handler. Callers must defer
// Close().
func NewDataContext(ctx context.Context, conn Conn, gen *snowflake.Generator, h lifecycle.Handler) (*DataContext, error) {
	owned := h == nil
	if owned {
		h = lifecycle.NewLocal(conn)
	}
	if err := h.Start(ctx); err != nil {
		return nil, err
	}
	return &DataContext{conn: conn, lifecycle: h, ownsLifecycle: owned, gen: gen}, nil
}

// Close marks the context stale, so a later CreateObjectFromValue fails
// with ErrStaleObject, and stops the lifecycle handler if this context
// created it; an injected handler is left running.
func (dc *DataContext) Close(ctx context.Context) error {
	dc.stale = true
	if !dc.ownsLifecycle {
		return nil
	}
	return dc.lifecycle.Stop(ctx)
}

// CreateObjectFromValue materializes v (a callback's non-nil return value)
// as a new ClickHouse table and returns an Object referencing it. The
// lifecycle handler's refcount for the new table starts at 1.
func (dc *DataContext) CreateObjectFromValue(ctx context.Context, v any) (*Object, error) {
	if dc.stale {
		return nil, ErrStaleObject
	}
	id, err := dc.gen.Next()
	if err != nil {
		return nil, err
	}
	tableName := fmt.Sprintf("t%d", id)

	ddl, dml, err := ddlForValue(tableName, v)
	if err != nil {
		return nil, err
	}
	if err := dc.conn.Exec(ctx, ddl); err != nil {
		return nil, errors.Wrapf(err, "creating table %s", tableName)
	}
	if dml != "" {
		if err := dc.conn.Exec(ctx, dml); err != nil {
			return nil, errors.Wrapf(err, "populating table %s", tableName)
		}
	}

	dc.lifecycle.Incref(tableName)
	return &Object{TableID: tableName, dc: dc}, nil
}

// ddlForValue renders the CREATE TABLE (and an optional INSERT) statements
// for a materialized scalar/object return value. The orchestrator core
// only ever issues opaque SQL text against tables matching t[0-9]+; the
// actual typed Object operator library downstream is out of scope.
func ddlForValue(tableName string, v any) (ddl string, dml string, err error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", "", errors.Wrap(err, "marshaling return value")
	}
	ddl = fmt.Sprintf(
		`CREATE TABLE %s (aai_id Int64, value String) ENGINE = MergeTree() ORDER BY aai_id`,
		tableName)
	dml = fmt.Sprintf(`INSERT INTO %s (aai_id, value) VALUES (1, '%s')`, tableName, escapeSQLString(string(payload)))
	return ddl, dml, nil
}

func escapeSQLString(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' || s[i] == '\\' {
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}
