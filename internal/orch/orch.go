// Package orch provides the orchestration-side scoped handle: it owns the
// state-store engine and the snowflake generator, and exposes Apply as the
// sole path for committing DAG fragments, plus the CreateJob/CreateTask
// factories used to build them.
package orch

import (
	"context"
	"encoding/json"

	"github.com/kolodkin/aaiclick-sub000/internal/dag"
	"github.com/kolodkin/aaiclick-sub000/internal/snowflake"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
)

// Context is the scoped resource owning a state-store engine. Each
// operation it exposes opens a short-lived session or transaction; no
// long-lived transaction bridges across calls.
type Context struct {
	store *store.Store
	gen   *snowflake.Generator
}

// New constructs an orch Context bound to s, generating IDs from gen.
func New(s *store.Store, gen *snowflake.Generator) *Context {
	return &Context{store: s, gen: gen}
}

// Close disposes the underlying store connection pool.
func (c *Context) Close() {
	c.store.Close()
}

// CreateJob inserts a new job row and returns its ID.
func (c *Context) CreateJob(ctx context.Context, name string) (int64, error) {
	id, err := c.gen.Next()
	if err != nil {
		return 0, err
	}
	if _, err := c.store.InsertJob(ctx, id, name); err != nil {
		return 0, err
	}
	return id, nil
}

// CreateTask builds an in-memory dag.Task bound to entrypoint, to be
// committed later via Apply.
func (c *Context) CreateTask(entrypoint string, kwargs json.RawMessage) *dag.Task {
	return dag.NewTask(entrypoint, kwargs)
}

// CreateGroup builds an in-memory dag.Group, to be committed later via
// Apply.
func (c *Context) CreateGroup(name string) *dag.Group {
	return dag.NewGroup(name)
}

// Apply commits items (a mix of *dag.Task and *dag.Group, plus their
// buffered pending-edge predecessors) to jobID atomically. See
// store.Store.Apply for the full commit/rollback contract.
func (c *Context) Apply(ctx context.Context, jobID int64, items ...dag.Node) error {
	return c.store.Apply(ctx, c.gen, jobID, items)
}

// Store exposes the underlying state store for callers (worker loop,
// sweeper, CLI) that need operations Apply doesn't cover.
func (c *Context) Store() *store.Store { return c.store }
