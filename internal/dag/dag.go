// Package dag models Tasks and Groups as in-memory nodes and provides the
// builder methods (After/Then/AfterAll/ThenAll) that record dependency
// edges without touching the state store. Edges are flushed to Postgres
// only when an orch context commits the graph via Apply.
package dag

import "encoding/json"

// NodeType distinguishes the two kinds of dependency endpoint.
type NodeType string

const (
	NodeTask  NodeType = "task"
	NodeGroup NodeType = "group"
)

// Node is anything that can appear on either side of a dependency edge:
// a Task or a Group. IDs are unset (0) until an orch context's Apply call
// assigns snowflake IDs and commits the graph.
type Node interface {
	ID() int64
	SetID(int64)
	Type() NodeType
	pendingPredecessors() []Node
	clearPending()
	addPredecessor(Node)
}

// Task is an in-memory unit of work awaiting commit.
type Task struct {
	id         int64
	JobID      int64
	Group      *Group // nil if ungrouped
	Entrypoint string
	Kwargs     json.RawMessage
	MaxRetries int

	predecessors []Node
}

// NewTask constructs a Task bound to entrypoint with the given kwargs blob.
// It is not visible to any worker until Apply commits it.
func NewTask(entrypoint string, kwargs json.RawMessage) *Task {
	return &Task{Entrypoint: entrypoint, Kwargs: kwargs}
}

func (t *Task) ID() int64                    { return t.id }
func (t *Task) SetID(id int64)               { t.id = id }
func (t *Task) Type() NodeType               { return NodeTask }
func (t *Task) pendingPredecessors() []Node  { return t.predecessors }
func (t *Task) clearPending()                { t.predecessors = nil }
func (t *Task) addPredecessor(n Node)        { t.predecessors = append(t.predecessors, n) }

// GroupID returns the owning group's (possibly unassigned) ID, or 0.
func (t *Task) GroupID() int64 {
	if t.Group == nil {
		return 0
	}
	return t.Group.ID()
}

// Group is an in-memory structural container awaiting commit. A Group has
// no status of its own: it is "complete" iff every task transitively
// contained in it is COMPLETED.
type Group struct {
	id            int64
	JobID         int64
	ParentGroup   *Group
	Name          string

	predecessors []Node
}

// NewGroup constructs a named Group.
func NewGroup(name string) *Group {
	return &Group{Name: name}
}

func (g *Group) ID() int64                   { return g.id }
func (g *Group) SetID(id int64)              { g.id = id }
func (g *Group) Type() NodeType              { return NodeGroup }
func (g *Group) pendingPredecessors() []Node { return g.predecessors }
func (g *Group) clearPending()               { g.predecessors = nil }
func (g *Group) addPredecessor(n Node)       { g.predecessors = append(g.predecessors, n) }

// ParentGroupID returns the parent group's (possibly unassigned) ID, or 0.
func (g *Group) ParentGroupID() int64 {
	if g.ParentGroup == nil {
		return 0
	}
	return g.ParentGroup.ID()
}

// After records that n depends on each of prevs (fan-in). It returns n so
// calls chain the way "A >> B >> C" does in the source DSL, e.g.
// After(c, After(b, a)).
func After[T Node](n T, prevs ...Node) T {
	for _, p := range prevs {
		n.addPredecessor(p)
	}
	return n
}

// AfterAll is the slice form of After, mirroring "[A, B] >> C".
func AfterAll[T Node](n T, prevs []Node) T {
	return After(n, prevs...)
}

// Then records that each of nexts depends on n (fan-out), mirroring
// "A >> [B, C]". It returns nexts so chaining can continue from the
// fanned-out nodes.
func Then(n Node, nexts ...Node) []Node {
	for _, nx := range nexts {
		nx.addPredecessor(n)
	}
	return nexts
}

// ThenAll is the slice form of Then, mirroring "A >> [B, C]" with the
// targets given as a slice (A precedes both B and C).
func ThenAll(n Node, nexts []Node) []Node {
	return Then(n, nexts...)
}

// PendingPredecessors exposes a node's buffered predecessor list so an
// orch context can read it without the package-private accessor.
func PendingPredecessors(n Node) []Node { return n.pendingPredecessors() }

// ClearPending discards a node's buffered predecessor list; called by an
// orch context only after a successful commit.
func ClearPending(n Node) { n.clearPending() }
