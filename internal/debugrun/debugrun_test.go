package debugrun

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kolodkin/aaiclick-sub000/internal/lifecycle"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
	"github.com/kolodkin/aaiclick-sub000/internal/taskrun"
)

type fakeJobStore struct {
	mu    sync.Mutex
	tasks map[int64]*store.Task
	deps  []store.Dependency
	job   *store.Job
}

func (f *fakeJobStore) TasksForJob(ctx context.Context, jobID int64) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Task, 0, len(f.tasks))
	for _, t := range f.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeJobStore) DependenciesForJob(ctx context.Context, jobID int64) ([]store.Dependency, error) {
	return f.deps, nil
}

func (f *fakeJobStore) MarkTaskRunning(ctx context.Context, taskID int64, logPath string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID].Status = store.TaskRunning
	return nil
}

func (f *fakeJobStore) CompleteTask(ctx context.Context, taskID int64, result json.RawMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID].Status = store.TaskCompleted
	f.tasks[taskID].Result = result
	return nil
}

func (f *fakeJobStore) FailTask(ctx context.Context, taskID int64, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks[taskID].Status = store.TaskFailed
	f.tasks[taskID].Error = &errMsg
	return nil
}

func (f *fakeJobStore) FinalizeJobIfTerminal(ctx context.Context, jobID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	anyFailed := false
	for _, t := range f.tasks {
		if t.Status != store.TaskCompleted && t.Status != store.TaskFailed {
			return nil
		}
		if t.Status == store.TaskFailed {
			anyFailed = true
		}
	}
	if anyFailed {
		f.job.Status = store.JobFailed
	} else {
		f.job.Status = store.JobCompleted
	}
	return nil
}

func (f *fakeJobStore) GetJob(ctx context.Context, jobID int64) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobCopy := *f.job
	return &jobCopy, nil
}

func (f *fakeJobStore) status(taskID int64) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks[taskID].Status
}

type fakeTaskRunner struct {
	fail map[int64]bool
}

func (f *fakeTaskRunner) Run(ctx context.Context, task *store.Task, h lifecycle.Handler) (*taskrun.Outcome, error) {
	if f.fail[task.ID] {
		return nil, errors.New("boom")
	}
	return &taskrun.Outcome{Result: json.RawMessage("null")}, nil
}

func (f *fakeTaskRunner) LogPath(taskID int64) string { return "" }

func runWithTimeout(t *testing.T, fn func(ctx context.Context) (*store.Job, error)) (*store.Job, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	type result struct {
		job *store.Job
		err error
	}
	done := make(chan result, 1)
	go func() {
		job, err := fn(ctx)
		done <- result{job, err}
	}()

	select {
	case r := <-done:
		return r.job, r.err
	case <-ctx.Done():
		t.Fatal("RunJobTest() did not return before the test timeout (likely deadlocked)")
		return nil, nil
	}
}

func TestRunJobTestRunsAllTasksToCompletion(t *testing.T) {
	fs := &fakeJobStore{
		tasks: map[int64]*store.Task{
			1: {ID: 1, JobID: 1, Status: store.TaskPending},
			2: {ID: 2, JobID: 1, Status: store.TaskPending},
		},
		deps: []store.Dependency{
			{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 2, NextType: store.NodeTypeTask},
		},
		job: &store.Job{ID: 1, Status: store.JobRunning},
	}
	runner := &fakeTaskRunner{}

	job, err := runWithTimeout(t, func(ctx context.Context) (*store.Job, error) {
		return RunJobTest(ctx, 1, fs, runner, nil, 2)
	})
	if err != nil {
		t.Fatalf("RunJobTest() error = %v", err)
	}
	if job.Status != store.JobCompleted {
		t.Fatalf("job.Status = %s, want COMPLETED", job.Status)
	}
	if fs.status(1) != store.TaskCompleted || fs.status(2) != store.TaskCompleted {
		t.Fatalf("task statuses = %s, %s, want both COMPLETED", fs.status(1), fs.status(2))
	}
}

// TestRunJobTestPropagatesFailureToDependents drives the scenario the
// review flagged: task 3 fails, task 4 depends on task 3 and can therefore
// never become ready. RunJobTest must record task 4 as FAILED without
// running it and still return once every task is terminal, rather than
// blocking forever waiting for a result that will never arrive.
func TestRunJobTestPropagatesFailureToDependents(t *testing.T) {
	fs := &fakeJobStore{
		tasks: map[int64]*store.Task{
			1: {ID: 1, JobID: 1, Status: store.TaskPending},
			2: {ID: 2, JobID: 1, Status: store.TaskPending},
			3: {ID: 3, JobID: 1, Status: store.TaskPending},
			4: {ID: 4, JobID: 1, Status: store.TaskPending},
		},
		deps: []store.Dependency{
			{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 2, NextType: store.NodeTypeTask},
			{PreviousID: 1, PreviousType: store.NodeTypeTask, NextID: 3, NextType: store.NodeTypeTask},
			{PreviousID: 3, PreviousType: store.NodeTypeTask, NextID: 4, NextType: store.NodeTypeTask},
		},
		job: &store.Job{ID: 1, Status: store.JobRunning},
	}
	runner := &fakeTaskRunner{fail: map[int64]bool{3: true}}

	job, err := runWithTimeout(t, func(ctx context.Context) (*store.Job, error) {
		return RunJobTest(ctx, 1, fs, runner, nil, 2)
	})
	if err == nil {
		t.Fatal("RunJobTest() error = nil, want the task-3 failure surfaced")
	}
	if job.Status != store.JobFailed {
		t.Fatalf("job.Status = %s, want FAILED", job.Status)
	}
	if fs.status(2) != store.TaskCompleted {
		t.Fatalf("task 2 status = %s, want COMPLETED (independent of the failure)", fs.status(2))
	}
	if fs.status(3) != store.TaskFailed {
		t.Fatalf("task 3 status = %s, want FAILED", fs.status(3))
	}
	if fs.status(4) != store.TaskFailed {
		t.Fatalf("task 4 status = %s, want FAILED (skipped: unreachable after task 3 failed)", fs.status(4))
	}
}

// TestRunJobTestPropagatesFailureAcrossAGroup drives the group-predecessor
// cascade: group G's only member fails, so task 2 (which depends on G)
// must be skipped rather than wait on a group that can never complete.
func TestRunJobTestPropagatesFailureAcrossAGroup(t *testing.T) {
	groupID := int64(100)
	fs := &fakeJobStore{
		tasks: map[int64]*store.Task{
			1: {ID: 1, JobID: 1, GroupID: &groupID, Status: store.TaskPending},
			2: {ID: 2, JobID: 1, Status: store.TaskPending},
		},
		deps: []store.Dependency{
			{PreviousID: groupID, PreviousType: store.NodeTypeGroup, NextID: 2, NextType: store.NodeTypeTask},
		},
		job: &store.Job{ID: 1, Status: store.JobRunning},
	}
	runner := &fakeTaskRunner{fail: map[int64]bool{1: true}}

	job, err := runWithTimeout(t, func(ctx context.Context) (*store.Job, error) {
		return RunJobTest(ctx, 1, fs, runner, nil, 2)
	})
	if err == nil {
		t.Fatal("RunJobTest() error = nil, want the task-1 failure surfaced")
	}
	if job.Status != store.JobFailed {
		t.Fatalf("job.Status = %s, want FAILED", job.Status)
	}
	if fs.status(2) != store.TaskFailed {
		t.Fatalf("task 2 status = %s, want FAILED (its group can never complete)", fs.status(2))
	}
}
