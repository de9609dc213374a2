package taskrun

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kolodkin/aaiclick-sub000/internal/serialize"
)

func TestLogPath(t *testing.T) {
	r := &Runner{logDir: "/var/log/aaiclick"}
	got := r.LogPath(42)
	want := filepath.Join("/var/log/aaiclick", "42.log")
	if got != want {
		t.Fatalf("LogPath(42) = %q, want %q", got, want)
	}
}

func TestItoa(t *testing.T) {
	cases := []int64{0, 1, -1, 42, -42, 123456789012345}
	for _, v := range cases {
		if got, want := itoa(v), fmt.Sprintf("%d", v); got != want {
			t.Fatalf("itoa(%d) = %q, want %q", v, got, want)
		}
	}
}

func TestHydrateKwargsEmpty(t *testing.T) {
	params, err := hydrateKwargs(nil)
	if err != nil {
		t.Fatalf("hydrateKwargs(nil) error = %v", err)
	}
	if len(params) != 0 {
		t.Fatalf("hydrateKwargs(nil) = %v, want empty map", params)
	}
}

func TestHydrateKwargsParsesObjectRef(t *testing.T) {
	raw := json.RawMessage(`{"input": {"object_type": "object", "table_id": "t1"}}`)
	params, err := hydrateKwargs(raw)
	if err != nil {
		t.Fatalf("hydrateKwargs() error = %v", err)
	}
	ref, ok := params["input"].(*serialize.Ref)
	if !ok {
		t.Fatalf("params[input] = %T, want *serialize.Ref", params["input"])
	}
	if ref.TableID != "t1" || ref.ObjectType != serialize.ObjectTypeObject {
		t.Fatalf("ref = %+v, want table_id=t1 object_type=object", ref)
	}
}

func TestHydrateKwargsRejectsMalformedRef(t *testing.T) {
	raw := json.RawMessage(`{"input": {"object_type": "bogus", "table_id": "t1"}}`)
	if _, err := hydrateKwargs(raw); err == nil {
		t.Fatal("hydrateKwargs() error = nil, want error for unknown object_type")
	}
}

func TestRedirectCapturesStdoutAndStderr(t *testing.T) {
	dir := t.TempDir()
	logFile, err := os.OpenFile(filepath.Join(dir, "task.log"), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}

	restoreOut, restoreErr := redirect(logFile)
	fmt.Fprint(os.Stdout, "hello-out")
	fmt.Fprint(os.Stderr, "hello-err")
	restoreOut()
	restoreErr()
	logFile.Close()

	contents, err := os.ReadFile(filepath.Join(dir, "task.log"))
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Contains(contents, []byte("hello-out")) || !bytes.Contains(contents, []byte("hello-err")) {
		t.Fatalf("log contents = %q, want both hello-out and hello-err", contents)
	}
}
