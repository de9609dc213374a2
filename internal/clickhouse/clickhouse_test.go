package clickhouse

import (
	"context"
	"strings"
	"testing"

	"github.com/kolodkin/aaiclick-sub000/internal/serialize"
)

func TestObjectRef(t *testing.T) {
	o := &Object{TableID: "t123"}
	ref := o.Ref()
	if ref.ObjectType != serialize.ObjectTypeObject || ref.TableID != "t123" {
		t.Fatalf("Ref() = %+v, want object ref for t123", ref)
	}
}

func TestViewRef(t *testing.T) {
	limit := 10
	v := &View{TableID: "t456", Limit: &limit, Where: "x > 1"}
	ref := v.Ref()
	if ref.ObjectType != serialize.ObjectTypeView || ref.TableID != "t456" || ref.Where != "x > 1" {
		t.Fatalf("Ref() = %+v, want view ref for t456", ref)
	}
	if ref.Limit == nil || *ref.Limit != 10 {
		t.Fatalf("Ref().Limit = %v, want 10", ref.Limit)
	}
}

func TestWithContextFromContextRoundTrip(t *testing.T) {
	dc := &DataContext{}
	ctx := WithContext(context.Background(), dc)
	got, ok := FromContext(ctx)
	if !ok || got != dc {
		t.Fatalf("FromContext() = (%v, %v), want (%v, true)", got, ok, dc)
	}
}

func TestFromContextMissing(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("FromContext() on bare context = true, want false")
	}
}

func TestCreateObjectFromValueRejectsStaleContext(t *testing.T) {
	dc := &DataContext{stale: true}
	if _, err := dc.CreateObjectFromValue(context.Background(), map[string]int{"a": 1}); err != ErrStaleObject {
		t.Fatalf("CreateObjectFromValue() error = %v, want ErrStaleObject", err)
	}
}

func TestDDLForValueProducesCreateAndInsert(t *testing.T) {
	ddl, dml, err := ddlForValue("t789", map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("ddlForValue() error = %v", err)
	}
	if !strings.Contains(ddl, "CREATE TABLE t789") || !strings.Contains(ddl, "ENGINE = MergeTree()") {
		t.Fatalf("ddl = %q, missing expected clauses", ddl)
	}
	if !strings.Contains(dml, "INSERT INTO t789") {
		t.Fatalf("dml = %q, want an INSERT into t789", dml)
	}
}

func TestEscapeSQLStringEscapesQuotesAndBackslashes(t *testing.T) {
	got := escapeSQLString(`it's a \test`)
	want := `it\'s a \\test`
	if got != want {
		t.Fatalf("escapeSQLString() = %q, want %q", got, want)
	}
}
