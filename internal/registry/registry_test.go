package registry

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestResolveUnregisteredEntrypoint(t *testing.T) {
	r := New()
	if _, err := r.Resolve("does.not.exist"); !errors.Is(err, ErrEntrypointResolution) {
		t.Fatalf("Resolve() error = %v, want ErrEntrypointResolution", err)
	}
}

func TestInvokeRegistered(t *testing.T) {
	r := New()
	r.Register("echo.params", func(ctx context.Context, params map[string]any) (any, error) {
		return params["x"], nil
	})

	out, err := r.Invoke(context.Background(), "echo.params", map[string]any{"x": 7})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if out != 7 {
		t.Fatalf("Invoke() = %v, want 7", out)
	}
}

func TestInvokePropagatesCallbackError(t *testing.T) {
	r := New()
	wantErr := errors.New("boom")
	r.Register("always.fails", func(ctx context.Context, params map[string]any) (any, error) {
		return nil, wantErr
	})

	if _, err := r.Invoke(context.Background(), "always.fails", nil); !errors.Is(err, wantErr) {
		t.Fatalf("Invoke() error = %v, want %v", err, wantErr)
	}
}

func TestInvokeRecoversPanic(t *testing.T) {
	r := New()
	r.Register("panics", func(ctx context.Context, params map[string]any) (any, error) {
		panic("entrypoint exploded")
	})

	_, err := r.Invoke(context.Background(), "panics", nil)
	if err == nil {
		t.Fatal("Invoke() error = nil, want recovered panic error")
	}
	if !strings.Contains(err.Error(), "entrypoint exploded") {
		t.Fatalf("Invoke() error = %v, want it to mention the panic value", err)
	}
}
