package debugrun

import (
	"testing"

	"github.com/kolodkin/aaiclick-sub000/internal/store"
)

func taskIn(id int64, group *int64, status string) store.Task {
	return store.Task{ID: id, GroupID: group, Status: status}
}

func TestGraphReadySeedHasNoPredecessors(t *testing.T) {
	tasks := []store.Task{
		taskIn(1, nil, store.TaskPending),
		taskIn(2, nil, store.TaskPending),
	}
	deps := []store.Dependency{
		{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 2, NextType: store.NodeTypeTask},
	}
	g := newGraph(tasks, deps)

	ready := g.newlyReady()
	if len(ready) != 1 || ready[0].ID != 1 {
		t.Fatalf("newlyReady() = %v, want only task 1", ready)
	}
}

func TestGraphUnlocksAfterPredecessorCompletes(t *testing.T) {
	tasks := []store.Task{
		taskIn(1, nil, store.TaskPending),
		taskIn(2, nil, store.TaskPending),
	}
	deps := []store.Dependency{
		{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 2, NextType: store.NodeTypeTask},
	}
	g := newGraph(tasks, deps)
	g.newlyReady()

	if ready := g.newlyReady(); len(ready) != 0 {
		t.Fatalf("newlyReady() before predecessor completes = %v, want none", ready)
	}

	g.markDone(1, true)
	ready := g.newlyReady()
	if len(ready) != 1 || ready[0].ID != 2 {
		t.Fatalf("newlyReady() after predecessor completes = %v, want only task 2", ready)
	}
}

func TestGraphDoesNotUnlockAfterPredecessorFails(t *testing.T) {
	tasks := []store.Task{
		taskIn(1, nil, store.TaskPending),
		taskIn(2, nil, store.TaskPending),
	}
	deps := []store.Dependency{
		{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 2, NextType: store.NodeTypeTask},
	}
	g := newGraph(tasks, deps)
	g.newlyReady()
	g.markDone(1, false)

	if ready := g.newlyReady(); len(ready) != 0 {
		t.Fatalf("newlyReady() after failed predecessor = %v, want none", ready)
	}
}

func TestGraphGroupPredecessorRequiresAllMembers(t *testing.T) {
	groupID := int64(100)
	tasks := []store.Task{
		taskIn(1, &groupID, store.TaskPending),
		taskIn(2, &groupID, store.TaskPending),
		taskIn(3, nil, store.TaskPending),
	}
	deps := []store.Dependency{
		{PreviousID: groupID, PreviousType: store.NodeTypeGroup, NextID: 3, NextType: store.NodeTypeTask},
	}
	g := newGraph(tasks, deps)

	ready := g.newlyReady()
	ids := map[int64]bool{}
	for _, t := range ready {
		ids[t.ID] = true
	}
	if !ids[1] || !ids[2] || ids[3] {
		t.Fatalf("newlyReady() seed = %v, want group members 1,2 ready and task 3 blocked", ready)
	}

	g.markDone(1, true)
	if ready := g.newlyReady(); len(ready) != 0 {
		t.Fatalf("newlyReady() with group partially complete = %v, want none", ready)
	}

	g.markDone(2, true)
	ready = g.newlyReady()
	if len(ready) != 1 || ready[0].ID != 3 {
		t.Fatalf("newlyReady() after group completes = %v, want only task 3", ready)
	}
}

func TestGraphOwningGroupEdgeGatesMember(t *testing.T) {
	blockerGroup := int64(200)
	memberGroup := int64(201)
	tasks := []store.Task{
		taskIn(1, &blockerGroup, store.TaskPending),
		taskIn(2, &memberGroup, store.TaskPending),
	}
	deps := []store.Dependency{
		{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: memberGroup, NextType: store.NodeTypeGroup},
	}
	g := newGraph(tasks, deps)

	ready := g.newlyReady()
	if len(ready) != 1 || ready[0].ID != 1 {
		t.Fatalf("newlyReady() seed = %v, want only task 1 (group member blocked by its group's own edge)", ready)
	}

	g.markDone(1, true)
	ready = g.newlyReady()
	if len(ready) != 1 || ready[0].ID != 2 {
		t.Fatalf("newlyReady() after blocker completes = %v, want task 2 unblocked via its group edge", ready)
	}
}

func TestGraphTreatsPreCompletedTasksAsDone(t *testing.T) {
	tasks := []store.Task{
		taskIn(1, nil, store.TaskCompleted),
		taskIn(2, nil, store.TaskPending),
	}
	deps := []store.Dependency{
		{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 2, NextType: store.NodeTypeTask},
	}
	g := newGraph(tasks, deps)

	if n := g.remaining(); n != 1 {
		t.Fatalf("remaining() = %d, want 1 (task 1 already completed)", n)
	}
	ready := g.newlyReady()
	if len(ready) != 1 || ready[0].ID != 2 {
		t.Fatalf("newlyReady() = %v, want task 2 unblocked by pre-completed predecessor", ready)
	}
}

func TestGraphNewlyReadyDoesNotRepeatStartedTasks(t *testing.T) {
	tasks := []store.Task{taskIn(1, nil, store.TaskPending)}
	g := newGraph(tasks, nil)

	first := g.newlyReady()
	if len(first) != 1 {
		t.Fatalf("first newlyReady() = %v, want one task", first)
	}
	second := g.newlyReady()
	if len(second) != 0 {
		t.Fatalf("second newlyReady() = %v, want none (already started)", second)
	}
}
