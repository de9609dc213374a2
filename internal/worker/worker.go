// Package worker implements the claim/execute loop a worker process runs:
// register, heartbeat, claim, execute, record, and deregister, with a
// graceful drain on shutdown that lets an in-flight task finish before the
// process exits.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/kolodkin/aaiclick-sub000/internal/lifecycle"
	"github.com/kolodkin/aaiclick-sub000/internal/resilience"
	"github.com/kolodkin/aaiclick-sub000/internal/snowflake"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
	"github.com/kolodkin/aaiclick-sub000/internal/taskrun"
)

// Config holds the tunables a worker loop needs from the environment.
type Config struct {
	HeartbeatInterval time.Duration
	PollInterval      time.Duration
	MaxEmptyPolls     int // 0 means run forever
}

// Worker claims and executes tasks against a single state-store connection
// until its context is cancelled, then drains its current task and
// deregisters.
type Worker struct {
	id       int64
	hostname string
	pid      int

	store  *store.Store
	runner *taskrun.Runner
	lc     lifecycle.Handler
	cfg    Config

	inFlight inFlightTracker
	limiter  *resilience.RateLimiter

	claimAttempts metric.Int64Counter
	claimEmpty    metric.Int64Counter
	tasksDone     metric.Int64Counter
	tasksFailed   metric.Int64Counter
	taskDuration  metric.Float64Histogram
}

// New constructs a Worker, minting its ID from gen.
func New(gen *snowflake.Generator, s *store.Store, runner *taskrun.Runner, lc lifecycle.Handler, cfg Config) (*Worker, error) {
	id, err := gen.Next()
	if err != nil {
		return nil, err
	}
	hostname, _ := os.Hostname()

	meter := otel.GetMeterProvider().Meter("aaiclick")
	claimAttempts, _ := meter.Int64Counter("aaiclick_worker_claim_attempts_total")
	claimEmpty, _ := meter.Int64Counter("aaiclick_worker_claim_empty_total")
	tasksDone, _ := meter.Int64Counter("aaiclick_worker_tasks_completed_total")
	tasksFailed, _ := meter.Int64Counter("aaiclick_worker_tasks_failed_total")
	taskDuration, _ := meter.Float64Histogram("aaiclick_worker_task_duration_seconds")

	return &Worker{
		id:            id,
		hostname:      hostname,
		pid:           os.Getpid(),
		store:         s,
		runner:        runner,
		lc:            lc,
		cfg:           cfg,
		limiter:       newEmptyPollLimiter(cfg.PollInterval),
		claimAttempts: claimAttempts,
		claimEmpty:    claimEmpty,
		tasksDone:     tasksDone,
		tasksFailed:   tasksFailed,
		taskDuration:  taskDuration,
	}, nil
}

// ID returns the worker's assigned snowflake ID.
func (w *Worker) ID() int64 { return w.id }

// newEmptyPollLimiter builds the token bucket that throttles repeated empty
// claim polls: a burst of a few immediate retries, refilling at roughly one
// token per configured poll interval, so a worker sitting on an empty queue
// doesn't hammer the claim statement any harder than PollInterval allows.
func newEmptyPollLimiter(pollInterval time.Duration) *resilience.RateLimiter {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	fillRate := 1 / pollInterval.Seconds()
	return resilience.NewRateLimiter(3, fillRate, time.Minute, 0)
}

// Run registers the worker, starts its heartbeat, and claims/executes tasks
// until ctx is cancelled. On cancellation it lets any in-flight task finish
// (the claim loop itself stops immediately) before deregistering.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.store.RegisterWorker(ctx, w.id, w.hostname, w.pid); err != nil {
		return err
	}
	defer func() {
		deregisterCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := w.store.Deregister(deregisterCtx, w.id); err != nil {
			slog.Warn("worker: deregister failed", "worker_id", w.id, "error", err)
		}
	}()

	heartbeatCtx, stopHeartbeat := context.WithCancel(context.Background())
	defer stopHeartbeat()
	go w.heartbeatLoop(heartbeatCtx)

	emptyPolls := 0
	for {
		select {
		case <-ctx.Done():
			w.inFlight.wait()
			return nil
		default:
		}

		w.claimAttempts.Add(ctx, 1)
		task, err := w.store.ClaimNextTask(ctx, w.id)
		if errors.Is(err, store.ErrNoClaimableTask) {
			w.claimEmpty.Add(ctx, 1)
			emptyPolls++
			if w.cfg.MaxEmptyPolls > 0 && emptyPolls >= w.cfg.MaxEmptyPolls {
				return nil
			}
			wait := w.cfg.PollInterval
			if !w.limiter.Allow() {
				wait = w.limiter.ReserveAfter(1)
			}
			select {
			case <-ctx.Done():
				w.inFlight.wait()
				return nil
			case <-time.After(wait):
			}
			continue
		}
		if errors.Is(err, store.ErrCircuitOpen) {
			slog.Warn("worker: store circuit open, backing off", "worker_id", w.id)
			select {
			case <-ctx.Done():
				w.inFlight.wait()
				return nil
			case <-time.After(w.cfg.PollInterval):
			}
			continue
		}
		if err != nil {
			return err
		}

		emptyPolls = 0
		w.execute(ctx, task)
	}
}

func (w *Worker) execute(ctx context.Context, task *store.Task) {
	w.inFlight.start(task.ID)
	defer w.inFlight.finish()

	start := time.Now()
	attrs := attribute.String("entrypoint", task.Entrypoint)

	if err := w.store.MarkTaskRunning(ctx, task.ID, w.runner.LogPath(task.ID)); err != nil {
		slog.Error("worker: mark running failed", "task_id", task.ID, "error", err)
		return
	}

	outcome, runErr := w.runner.Run(ctx, task, w.lc)
	w.taskDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attrs))

	succeeded := runErr == nil
	var storeErr error
	if succeeded {
		storeErr = w.store.CompleteTask(ctx, task.ID, outcome.Result)
	} else {
		storeErr = w.store.FailTask(ctx, task.ID, runErr.Error())
	}
	if storeErr != nil {
		slog.Error("worker: recording task outcome failed", "task_id", task.ID, "error", storeErr)
	}

	if succeeded {
		w.tasksDone.Add(ctx, 1, metric.WithAttributes(attrs))
	} else {
		w.tasksFailed.Add(ctx, 1, metric.WithAttributes(attrs))
		slog.Error("worker: task failed", "task_id", task.ID, "entrypoint", task.Entrypoint, "error", runErr)
	}
	if err := w.store.RecordTaskOutcome(ctx, w.id, succeeded); err != nil {
		slog.Warn("worker: worker outcome counters update failed", "worker_id", w.id, "error", err)
	}

	// Finalizing a job's terminal status is racey across concurrent workers
	// but idempotent: whichever worker observes every task terminal last
	// wins the transition, and the check is safe to repeat.
	if err := w.store.FinalizeJobIfTerminal(ctx, task.JobID); err != nil {
		slog.Warn("worker: job finalize check failed", "job_id", task.JobID, "error", err)
	}
}

func (w *Worker) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.store.Heartbeat(ctx, w.id); err != nil {
				slog.Warn("worker: heartbeat failed", "worker_id", w.id, "error", err)
			}
		}
	}
}

// inFlightTracker records the single task a worker is currently executing,
// so shutdown can drain it before deregistering. A single-worker
// specialization of tracking many concurrent executions by ID.
type inFlightTracker struct {
	mu   sync.Mutex
	busy bool
	done chan struct{}
}

func (t *inFlightTracker) start(taskID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = true
	t.done = make(chan struct{})
}

func (t *inFlightTracker) finish() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.busy = false
	if t.done != nil {
		close(t.done)
	}
}

// wait blocks until any in-flight task finishes. A no-op if nothing is
// running.
func (t *inFlightTracker) wait() {
	t.mu.Lock()
	if !t.busy {
		t.mu.Unlock()
		return
	}
	done := t.done
	t.mu.Unlock()
	<-done
}
