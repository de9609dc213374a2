package store

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/kolodkin/aaiclick-sub000/internal/dag"
	"github.com/kolodkin/aaiclick-sub000/internal/snowflake"
)

// Apply commits a batch of dag.Task/dag.Group nodes plus their buffered
// pending-edge predecessors to the state store in a single transaction:
// assign IDs, insert rows, flush edges, validate acyclicity, and only then
// clear the in-memory pending buffers. Any failure rolls back the entire
// batch. Apply is the sole write path for committing graph fragments; it
// may be called repeatedly across a job's life (e.g. for dynamic task
// creation from a running task).
func (s *Store) Apply(ctx context.Context, gen *snowflake.Generator, jobID int64, items []dag.Node) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, item := range items {
		if item.ID() == 0 {
			id, err := gen.Next()
			if err != nil {
				return err
			}
			item.SetID(id)
		}
	}

	for _, item := range items {
		switch n := item.(type) {
		case *dag.Task:
			n.JobID = jobID
			if err := insertTask(ctx, tx, n); err != nil {
				return err
			}
		case *dag.Group:
			n.JobID = jobID
			if err := insertGroup(ctx, tx, n); err != nil {
				return err
			}
		}
	}

	var edges []Dependency
	for _, item := range items {
		for _, prev := range dag.PendingPredecessors(item) {
			edges = append(edges, Dependency{
				PreviousID:   prev.ID(),
				PreviousType: string(prev.Type()),
				NextID:       item.ID(),
				NextType:     string(item.Type()),
			})
		}
	}
	if err := insertDependencies(ctx, tx, edges); err != nil {
		return err
	}

	if err := validateAcyclic(ctx, tx, jobID); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	for _, item := range items {
		dag.ClearPending(item)
	}
	return nil
}

func insertTask(ctx context.Context, tx pgx.Tx, t *dag.Task) error {
	kwargs := t.Kwargs
	if kwargs == nil {
		kwargs = json.RawMessage("{}")
	}
	var groupID *int64
	if t.Group != nil {
		gid := t.Group.ID()
		groupID = &gid
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO tasks (id, job_id, group_id, entrypoint, kwargs, status, max_retries)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID(), t.JobID, groupID, t.Entrypoint, kwargs, TaskPending, t.MaxRetries)
	return err
}

func insertGroup(ctx context.Context, tx pgx.Tx, g *dag.Group) error {
	var parentID *int64
	if g.ParentGroup != nil {
		pid := g.ParentGroup.ID()
		parentID = &pid
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO groups (id, job_id, parent_group_id, name)
		VALUES ($1, $2, $3, $4)`,
		g.ID(), g.JobID, parentID, g.Name)
	return err
}

func insertDependencies(ctx context.Context, tx pgx.Tx, edges []Dependency) error {
	for _, e := range edges {
		_, err := tx.Exec(ctx, `
			INSERT INTO dependencies (previous_id, previous_type, next_id, next_type)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT DO NOTHING`,
			e.PreviousID, e.PreviousType, e.NextID, e.NextType)
		if err != nil {
			return err
		}
	}
	return nil
}

// validateAcyclic runs a DFS over the expanded task/group relation for
// jobID's dependencies, rejecting the whole Apply call if a cycle exists
// (including a group that directly or transitively contains itself via
// parent_group_id).
func validateAcyclic(ctx context.Context, tx pgx.Tx, jobID int64) error {
	rows, err := tx.Query(ctx, `
		SELECT previous_id, previous_type, next_id, next_type
		FROM dependencies d
		WHERE EXISTS (SELECT 1 FROM tasks t WHERE t.job_id = $1 AND (t.id = d.previous_id OR t.id = d.next_id))
		   OR EXISTS (SELECT 1 FROM groups g WHERE g.job_id = $1 AND (g.id = d.previous_id OR g.id = d.next_id))`,
		jobID)
	if err != nil {
		return err
	}
	type key struct {
		id  int64
		typ string
	}
	// A group is walked as two nodes: its gate (entered by edges whose next
	// side is the group) and its completion (left by edges whose previous
	// side is the group).
	const groupGate, groupDone = "group_gate", "group_done"
	adj := map[key][]key{}
	for rows.Next() {
		var e Dependency
		if err := rows.Scan(&e.PreviousID, &e.PreviousType, &e.NextID, &e.NextType); err != nil {
			rows.Close()
			return err
		}
		from := key{e.PreviousID, e.PreviousType}
		if from.typ == NodeTypeGroup {
			from.typ = groupDone
		}
		to := key{e.NextID, e.NextType}
		if to.typ == NodeTypeGroup {
			to.typ = groupGate
		}
		adj[from] = append(adj[from], to)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	// Also expand group containment edges (parent gate -> child gate) so a
	// group that contains itself transitively is caught.
	grows, err := tx.Query(ctx, `SELECT id, parent_group_id FROM groups WHERE job_id = $1`, jobID)
	if err != nil {
		return err
	}
	for grows.Next() {
		var id int64
		var parent *int64
		if err := grows.Scan(&id, &parent); err != nil {
			grows.Close()
			return err
		}
		if parent != nil {
			from := key{*parent, groupGate}
			to := key{id, groupGate}
			adj[from] = append(adj[from], to)
		}
	}
	grows.Close()
	if err := grows.Err(); err != nil {
		return err
	}

	// Expand group membership edges, mirroring the claim predicate's own
	// group-completion semantics: a group's completion depends on every
	// member task finishing (member -> group completion) and a member is
	// gated by anything its group depends on (group gate -> member). Keeping
	// gate and completion apart means membership alone never forms a cycle,
	// while a cycle routed through group membership (rather than a
	// dependencies row or parent_group_id containment) is still walked.
	trows, err := tx.Query(ctx, `SELECT id, group_id FROM tasks WHERE job_id = $1 AND group_id IS NOT NULL`, jobID)
	if err != nil {
		return err
	}
	for trows.Next() {
		var id int64
		var groupID int64
		if err := trows.Scan(&id, &groupID); err != nil {
			trows.Close()
			return err
		}
		member := key{id, NodeTypeTask}
		gate, done := key{groupID, groupGate}, key{groupID, groupDone}
		adj[member] = append(adj[member], done)
		adj[gate] = append(adj[gate], member)
	}
	trows.Close()
	if err := trows.Err(); err != nil {
		return err
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := map[key]int{}
	var visit func(k key) bool
	visit = func(k key) bool {
		color[k] = gray
		for _, next := range adj[k] {
			switch color[next] {
			case gray:
				return true
			case white:
				if visit(next) {
					return true
				}
			}
		}
		color[k] = black
		return false
	}
	for k := range adj {
		if color[k] == white {
			if visit(k) {
				return ErrCyclicDependency
			}
		}
	}
	return nil
}
