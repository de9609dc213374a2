// Package registry resolves a task's dotted entrypoint string to a
// registered Go callback. This is the idiomatic-Go replacement for the
// source's "import module, attribute-access down to the function" dynamic
// resolution: Go has no runtime import, so callbacks must be registered
// ahead of time under the same dotted name they're addressed by.
package registry

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pkg/errors"
)

// Callback is the signature every registered entrypoint must implement.
// params holds the hydrated Object/View references keyed by kwarg name; the
// return value (or nil) becomes the task's materialized result.
type Callback func(ctx context.Context, params map[string]any) (any, error)

// ErrEntrypointResolution is returned when entrypoint has no registered
// callback.
var ErrEntrypointResolution = errors.New("registry: unresolved entrypoint")

// Registry maps dotted entrypoint strings to callbacks.
type Registry struct {
	mu        sync.RWMutex
	callbacks map[string]Callback
	tracer    trace.Tracer
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		callbacks: make(map[string]Callback),
		tracer:    otel.Tracer("aaiclick-registry"),
	}
}

// Register binds entrypoint to fn. Call during process init, before any
// worker starts claiming tasks.
func (r *Registry) Register(entrypoint string, fn Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks[entrypoint] = fn
}

// Resolve looks up entrypoint, returning ErrEntrypointResolution if it was
// never registered.
func (r *Registry) Resolve(entrypoint string) (Callback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.callbacks[entrypoint]
	if !ok {
		return nil, errors.Wrap(ErrEntrypointResolution, entrypoint)
	}
	return fn, nil
}

// Invoke resolves entrypoint and calls it inside a tracer span.
func (r *Registry) Invoke(ctx context.Context, entrypoint string, params map[string]any) (any, error) {
	fn, err := r.Resolve(entrypoint)
	if err != nil {
		return nil, err
	}

	ctx, span := r.tracer.Start(ctx, "entrypoint.invoke",
		trace.WithAttributes(attribute.String("entrypoint", entrypoint)),
	)
	defer span.End()

	return invokeRecovering(ctx, fn, params)
}

func invokeRecovering(ctx context.Context, fn Callback, params map[string]any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("entrypoint panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx, params)
}
