// Package taskrun executes a single claimed task: it resolves the
// entrypoint, hydrates kwargs into Object/View references, captures stdout
// and stderr to a per-task log file, invokes the callback inside a
// DataContext, and materializes the return value.
package taskrun

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/kolodkin/aaiclick-sub000/internal/clickhouse"
	"github.com/kolodkin/aaiclick-sub000/internal/lifecycle"
	"github.com/kolodkin/aaiclick-sub000/internal/registry"
	"github.com/kolodkin/aaiclick-sub000/internal/serialize"
	"github.com/kolodkin/aaiclick-sub000/internal/snowflake"
	"github.com/kolodkin/aaiclick-sub000/internal/store"
)

// Runner executes claimed tasks against a registry of callbacks and a
// ClickHouse connection.
type Runner struct {
	registry *registry.Registry
	conn     clickhouse.Conn
	gen      *snowflake.Generator
	logDir   string
}

// New constructs a Runner.
func New(reg *registry.Registry, conn clickhouse.Conn, gen *snowflake.Generator, logDir string) *Runner {
	return &Runner{registry: reg, conn: conn, gen: gen, logDir: logDir}
}

// Outcome is the result of executing one task: the encoded result
// reference (JSON null for a nil return value) and the task's log path.
// Errors are returned alongside it by Run, not stored in it.
type Outcome struct {
	Result  json.RawMessage
	LogPath string
}

// LogPath returns the deterministic log file path a task's execution will
// write to, computable before Run starts it.
func (r *Runner) LogPath(taskID int64) string {
	return filepath.Join(r.logDir, itoa(taskID)+".log")
}

// Run resolves task's entrypoint, hydrates its kwargs, captures its
// stdout/stderr to <log_dir>/<task_id>.log, invokes the callback inside a
// scoped DataContext, and materializes any non-nil return value.
func (r *Runner) Run(ctx context.Context, task *store.Task, h lifecycle.Handler) (*Outcome, error) {
	logPath := r.LogPath(task.ID)
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening task log %s", logPath)
	}
	defer logFile.Close()

	restoreStdout, restoreStderr := redirect(logFile)
	defer restoreStdout()
	defer restoreStderr()

	params, err := hydrateKwargs(task.Kwargs)
	if err != nil {
		return &Outcome{LogPath: logPath}, err
	}

	dc, err := clickhouse.NewDataContext(ctx, r.conn, r.gen, h)
	if err != nil {
		return &Outcome{LogPath: logPath}, err
	}
	defer dc.Close(ctx)

	runCtx := clickhouse.WithContext(ctx, dc)
	value, err := r.registry.Invoke(runCtx, task.Entrypoint, params)
	if err != nil {
		return &Outcome{LogPath: logPath}, err
	}

	var ref *serialize.Ref
	if value != nil {
		obj, err := dc.CreateObjectFromValue(ctx, value)
		if err != nil {
			return &Outcome{LogPath: logPath}, err
		}
		objRef := obj.Ref()
		ref = &objRef
	}

	result, err := serialize.EncodeResult(ref)
	if err != nil {
		return &Outcome{LogPath: logPath}, err
	}
	return &Outcome{Result: result, LogPath: logPath}, nil
}

func hydrateKwargs(raw json.RawMessage) (map[string]any, error) {
	decoded, err := serialize.DecodeKwargs(raw)
	if err != nil {
		return nil, err
	}
	params := make(map[string]any, len(decoded))
	for name, rawVal := range decoded {
		ref, err := serialize.ParseRef(rawVal)
		if err != nil {
			return nil, errors.Wrapf(err, "parameter %q", name)
		}
		params[name] = ref
	}
	return params, nil
}

// redirect points os.Stdout/os.Stderr at logFile for the duration of a
// task's callback, restoring the previous streams on return. Output
// written meanwhile goes only to logFile, not to the previous streams.
func redirect(logFile *os.File) (restoreStdout, restoreStderr func()) {
	prevOut, prevErr := os.Stdout, os.Stderr
	rOut, wOut, _ := os.Pipe()
	rErr, wErr, _ := os.Pipe()
	os.Stdout, os.Stderr = wOut, wErr

	doneOut := make(chan struct{})
	doneErr := make(chan struct{})
	go func() { _, _ = io.Copy(logFile, rOut); close(doneOut) }()
	go func() { _, _ = io.Copy(logFile, rErr); close(doneErr) }()

	return func() {
			_ = wOut.Close()
			<-doneOut
			os.Stdout = prevOut
		}, func() {
			_ = wErr.Close()
			<-doneErr
			os.Stderr = prevErr
		}
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
