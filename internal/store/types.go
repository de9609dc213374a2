package store

import (
	"encoding/json"
	"errors"
	"time"
)

// Status values. Kept as upper-case strings with a Postgres CHECK
// constraint (see migrations/0001_init.up.sql) rather than a native
// Postgres ENUM, so adding a status is a data migration, not a type one.
const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobCompleted = "COMPLETED"
	JobFailed    = "FAILED"

	TaskPending   = "PENDING"
	TaskClaimed   = "CLAIMED"
	TaskRunning   = "RUNNING"
	TaskCompleted = "COMPLETED"
	TaskFailed    = "FAILED"

	WorkerActive  = "ACTIVE"
	WorkerIdle    = "IDLE"
	WorkerStopped = "STOPPED"

	NodeTypeTask  = "task"
	NodeTypeGroup = "group"
)

// ErrCircuitOpen is returned when the store's circuit breaker has tripped
// and is refusing calls to avoid hammering a wedged database.
var ErrCircuitOpen = errors.New("store: circuit breaker open")

// ErrCyclicDependency is returned by Apply when committing a graph fragment
// would introduce a cycle in the expanded task/group dependency relation.
var ErrCyclicDependency = errors.New("store: cyclic dependency")

// Job mirrors the jobs table.
type Job struct {
	ID          int64
	Name        string
	Status      string
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Error       *string
}

// Task mirrors the tasks table.
type Task struct {
	ID          int64
	JobID       int64
	GroupID     *int64
	Entrypoint  string
	Kwargs      json.RawMessage
	Status      string
	Result      json.RawMessage
	Error       *string
	WorkerID    *int64
	LogPath     *string
	MaxRetries  int
	RetryCount  int
	CreatedAt   time.Time
	ClaimedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
}

// Group mirrors the groups table.
type Group struct {
	ID            int64
	JobID         int64
	ParentGroupID *int64
	Name          string
	CreatedAt     time.Time
}

// Dependency mirrors a single row of the dependencies table.
type Dependency struct {
	PreviousID   int64
	PreviousType string
	NextID       int64
	NextType     string
}

// Worker mirrors the workers table.
type Worker struct {
	ID             int64
	Hostname       string
	PID            int
	Status         string
	LastHeartbeat  time.Time
	TasksCompleted int
	TasksFailed    int
	StartedAt      time.Time
}
