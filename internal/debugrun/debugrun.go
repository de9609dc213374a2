// Package debugrun provides RunJobTest, a synchronous single-process job
// executor for unit tests and local iteration: it runs every task of an
// already-applied job in dependency order inside the current process,
// using in-memory claim predicates equivalent to the distributed claim
// protocol but without row locking, since there is only one executor.
//
// Adapted from the teacher's DAGEngine.executeDAG (Kahn's-algorithm-plus-
// worker-pool), generalized from a flat task list to task/group dependency
// expansion and stripped of RetryPolicy/ResultCache/condition evaluation.
package debugrun

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/kolodkin/aaiclick-sub000/internal/lifecycle"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
	"github.com/kolodkin/aaiclick-sub000/internal/taskrun"
)

// JobStore is the narrow state-store surface RunJobTest needs, satisfied by
// *store.Store. Declared here (rather than depending on the concrete type
// directly) so tests can drive RunJobTest against an in-memory fake instead
// of a live Postgres connection.
type JobStore interface {
	TasksForJob(ctx context.Context, jobID int64) ([]store.Task, error)
	DependenciesForJob(ctx context.Context, jobID int64) ([]store.Dependency, error)
	MarkTaskRunning(ctx context.Context, taskID int64, logPath string) error
	CompleteTask(ctx context.Context, taskID int64, result json.RawMessage) error
	FailTask(ctx context.Context, taskID int64, errMsg string) error
	FinalizeJobIfTerminal(ctx context.Context, jobID int64) error
	GetJob(ctx context.Context, jobID int64) (*store.Job, error)
}

// TaskRunner is the narrow execution surface RunJobTest needs, satisfied by
// *taskrun.Runner.
type TaskRunner interface {
	Run(ctx context.Context, task *store.Task, h lifecycle.Handler) (*taskrun.Outcome, error)
	LogPath(taskID int64) string
}

// RunJobTest synchronously executes every task belonging to jobID, honoring
// the task/group dependency relation, using up to maxWorkers concurrent
// goroutines. Exceptions are surfaced directly to the caller; job and task
// status are updated exactly as the distributed worker path does. A task
// that can never become ready because a predecessor task or predecessor
// group permanently failed is recorded as FAILED without being run.
func RunJobTest(ctx context.Context, jobID int64, s JobStore, runner TaskRunner, lc lifecycle.Handler, maxWorkers int) (*store.Job, error) {
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	tasks, err := s.TasksForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	deps, err := s.DependenciesForJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	g := newGraph(tasks, deps)

	ready := make(chan *store.Task, len(tasks))
	results := make(chan taskOutcome, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < maxWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case task, ok := <-ready:
					if !ok {
						return
					}
					results <- execute(ctx, runner, s, lc, task)
				}
			}
		}()
	}

	pending := g.remaining()
	for _, t := range g.newlyReady() {
		ready <- t
	}
	skipped, err := skipUnreachable(ctx, s, g)
	if err != nil {
		close(ready)
		wg.Wait()
		return nil, err
	}
	pending -= len(skipped)

	var firstErr error
	for pending > 0 {
		select {
		case <-ctx.Done():
			close(ready)
			wg.Wait()
			return nil, ctx.Err()
		case res := <-results:
			pending--
			g.markDone(res.task.ID, res.succeeded)
			if res.err != nil && firstErr == nil {
				firstErr = res.err
			}
			skipped, err := skipUnreachable(ctx, s, g)
			if err != nil {
				close(ready)
				wg.Wait()
				return nil, err
			}
			pending -= len(skipped)
			for _, t := range g.newlyReady() {
				ready <- t
			}
		}
	}
	close(ready)
	wg.Wait()
	close(results)

	if err := s.FinalizeJobIfTerminal(ctx, jobID); err != nil {
		return nil, err
	}
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return job, firstErr
}

// skipUnreachable records every task the graph finds permanently blocked by
// a failed predecessor as FAILED in the store, without executing it, and
// returns the tasks it skipped. Without this, a failed task with a
// dependent would leave that dependent forever un-ready: predecessorsOf
// satisfaction never turns true for a permanently-failed predecessor, so
// the pending counter would never reach zero.
func skipUnreachable(ctx context.Context, s JobStore, g *graph) ([]*store.Task, error) {
	skipped := g.cascadeFailures()
	for _, t := range skipped {
		if err := s.FailTask(ctx, t.ID, "upstream dependency failed"); err != nil {
			return nil, err
		}
	}
	return skipped, nil
}

type taskOutcome struct {
	task      *store.Task
	succeeded bool
	err       error
}

func execute(ctx context.Context, runner TaskRunner, s JobStore, lc lifecycle.Handler, task *store.Task) taskOutcome {
	if err := s.MarkTaskRunning(ctx, task.ID, runner.LogPath(task.ID)); err != nil {
		return taskOutcome{task: task, err: err}
	}
	outcome, err := runner.Run(ctx, task, lc)
	if err != nil {
		_ = s.FailTask(ctx, task.ID, err.Error())
		return taskOutcome{task: task, succeeded: false, err: err}
	}
	if err := s.CompleteTask(ctx, task.ID, outcome.Result); err != nil {
		return taskOutcome{task: task, err: err}
	}
	return taskOutcome{task: task, succeeded: true}
}

// graph tracks, in memory, which tasks of a single job are done and which
// have become newly unblocked since the last check. It mirrors the claim
// predicate of the distributed path: a task is ready once every
// predecessor task is COMPLETED and every task of a predecessor group is
// COMPLETED, checked both for the task's own edges and its owning group's
// edges.
type graph struct {
	mu sync.Mutex

	tasks   map[int64]*store.Task
	taskIDs []int64

	// predecessorsOf[nextID] lists the edges whose next side is nextID
	// (a task or a group).
	predecessorsOf map[int64][]store.Dependency

	// groupMembers[groupID] lists the task IDs directly owned by that
	// group, for evaluating group-completion.
	groupMembers map[int64][]int64

	done    map[int64]bool
	failed  map[int64]bool
	started map[int64]bool
}

func newGraph(tasks []store.Task, deps []store.Dependency) *graph {
	g := &graph{
		tasks:          make(map[int64]*store.Task, len(tasks)),
		predecessorsOf: make(map[int64][]store.Dependency),
		groupMembers:   make(map[int64][]int64),
		done:           make(map[int64]bool),
		failed:         make(map[int64]bool),
		started:        make(map[int64]bool),
	}
	for i := range tasks {
		t := &tasks[i]
		g.tasks[t.ID] = t
		g.taskIDs = append(g.taskIDs, t.ID)
		if t.GroupID != nil {
			g.groupMembers[*t.GroupID] = append(g.groupMembers[*t.GroupID], t.ID)
		}
		if t.Status == store.TaskCompleted {
			g.done[t.ID] = true
		}
		if t.Status == store.TaskFailed {
			g.done[t.ID] = true
			g.failed[t.ID] = true
		}
	}
	for _, d := range deps {
		g.predecessorsOf[d.NextID] = append(g.predecessorsOf[d.NextID], d)
	}
	return g
}

func (g *graph) remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, id := range g.taskIDs {
		if !g.done[id] {
			n++
		}
	}
	return n
}

func (g *graph) groupComplete(groupID int64) bool {
	for _, taskID := range g.groupMembers[groupID] {
		if !g.done[taskID] || g.failed[taskID] {
			return false
		}
	}
	return true
}

// groupPermanentlyFailed reports whether groupID can never reach
// groupComplete, because one of its member tasks has already failed (either
// by actually running and failing, or by being skipped via cascadeFailures).
func (g *graph) groupPermanentlyFailed(groupID int64) bool {
	for _, taskID := range g.groupMembers[groupID] {
		if g.done[taskID] && g.failed[taskID] {
			return true
		}
	}
	return false
}

func (g *graph) predecessorsSatisfied(nextID int64) bool {
	for _, d := range g.predecessorsOf[nextID] {
		switch d.PreviousType {
		case store.NodeTypeTask:
			if !g.done[d.PreviousID] || g.failed[d.PreviousID] {
				return false
			}
		case store.NodeTypeGroup:
			if !g.groupComplete(d.PreviousID) {
				return false
			}
		}
	}
	return true
}

// predecessorsBlocked reports whether nextID's own edges contain a
// predecessor that can never be satisfied: a task predecessor that has
// already failed, or a group predecessor that can never complete.
func (g *graph) predecessorsBlocked(nextID int64) bool {
	for _, d := range g.predecessorsOf[nextID] {
		switch d.PreviousType {
		case store.NodeTypeTask:
			if g.done[d.PreviousID] && g.failed[d.PreviousID] {
				return true
			}
		case store.NodeTypeGroup:
			if g.groupPermanentlyFailed(d.PreviousID) {
				return true
			}
		}
	}
	return false
}

func (g *graph) isReady(t *store.Task) bool {
	if g.done[t.ID] || g.started[t.ID] {
		return false
	}
	if !g.predecessorsSatisfied(t.ID) {
		return false
	}
	if t.GroupID != nil && !g.predecessorsSatisfied(*t.GroupID) {
		return false
	}
	return true
}

// blockedByFailure reports whether t can never become ready: its own
// predecessor edges, or its owning group's predecessor edges, contain a
// predecessor that has permanently failed.
func (g *graph) blockedByFailure(t *store.Task) bool {
	if g.predecessorsBlocked(t.ID) {
		return true
	}
	if t.GroupID != nil && g.predecessorsBlocked(*t.GroupID) {
		return true
	}
	return false
}

func (g *graph) markDone(taskID int64, succeeded bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done[taskID] = true
	g.failed[taskID] = !succeeded
}

// newlyReady rescans every not-yet-started task and returns those that have
// become ready since the last call.
func (g *graph) newlyReady() []*store.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []*store.Task
	for _, id := range g.taskIDs {
		t := g.tasks[id]
		if g.isReady(t) {
			g.started[id] = true
			out = append(out, t)
		}
	}
	return out
}

// cascadeFailures marks, as done and failed without ever running them,
// every not-yet-started task that can never become ready because a
// predecessor task or predecessor group has permanently failed. It runs to
// a fixed point, since skipping one task can itself newly block a further
// dependent (e.g. a chain A -> B -> C where A fails: B is blocked on this
// call, and C is only blocked once B is marked failed in turn).
func (g *graph) cascadeFailures() []*store.Task {
	g.mu.Lock()
	defer g.mu.Unlock()
	var skipped []*store.Task
	for {
		progressed := false
		for _, id := range g.taskIDs {
			if g.done[id] || g.started[id] {
				continue
			}
			t := g.tasks[id]
			if g.blockedByFailure(t) {
				g.done[id] = true
				g.failed[id] = true
				skipped = append(skipped, t)
				progressed = true
			}
		}
		if !progressed {
			break
		}
	}
	return skipped
}
