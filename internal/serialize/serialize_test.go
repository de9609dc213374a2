package serialize

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseRefObject(t *testing.T) {
	raw := json.RawMessage(`{"object_type":"object","table_id":"t123"}`)
	ref, err := ParseRef(raw)
	if err != nil {
		t.Fatalf("ParseRef() error = %v", err)
	}
	if ref.ObjectType != ObjectTypeObject || ref.TableID != "t123" {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestParseRefView(t *testing.T) {
	limit := 10
	offset := 0
	raw, _ := json.Marshal(Ref{ObjectType: ObjectTypeView, TableID: "t1", Limit: &limit, Offset: &offset, Where: "x > 1"})
	ref, err := ParseRef(raw)
	if err != nil {
		t.Fatalf("ParseRef() error = %v", err)
	}
	if ref.ObjectType != ObjectTypeView || *ref.Limit != 10 || ref.Where != "x > 1" {
		t.Fatalf("ref = %+v", ref)
	}
}

func TestParseRefRejectsUnknownObjectType(t *testing.T) {
	raw := json.RawMessage(`{"object_type":"table","table_id":"t1"}`)
	if _, err := ParseRef(raw); !errors.Is(err, ErrParameter) {
		t.Fatalf("ParseRef() error = %v, want ErrParameter", err)
	}
}

func TestParseRefRejectsMissingTableID(t *testing.T) {
	raw := json.RawMessage(`{"object_type":"object"}`)
	if _, err := ParseRef(raw); !errors.Is(err, ErrParameter) {
		t.Fatalf("ParseRef() error = %v, want ErrParameter", err)
	}
}

func TestParseRefRejectsObjectWithViewFields(t *testing.T) {
	raw := json.RawMessage(`{"object_type":"object","table_id":"t1","where":"x>1"}`)
	if _, err := ParseRef(raw); !errors.Is(err, ErrParameter) {
		t.Fatalf("ParseRef() error = %v, want ErrParameter", err)
	}
}

func TestParseRefRejectsNonPositiveLimit(t *testing.T) {
	limit := 0
	raw, _ := json.Marshal(Ref{ObjectType: ObjectTypeView, TableID: "t1", Limit: &limit})
	if _, err := ParseRef(raw); !errors.Is(err, ErrParameter) {
		t.Fatalf("ParseRef() error = %v, want ErrParameter", err)
	}
}

func TestEncodeResultNil(t *testing.T) {
	raw, err := EncodeResult(nil)
	if err != nil {
		t.Fatalf("EncodeResult() error = %v", err)
	}
	if string(raw) != "null" {
		t.Fatalf("EncodeResult() = %s, want null", raw)
	}
}

func TestEncodeResultRef(t *testing.T) {
	ref := ObjectRef("t42")
	raw, err := EncodeResult(&ref)
	if err != nil {
		t.Fatalf("EncodeResult() error = %v", err)
	}
	var decoded Ref
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if decoded.TableID != "t42" || decoded.ObjectType != ObjectTypeObject {
		t.Fatalf("decoded = %+v", decoded)
	}
}

func TestDecodeKwargsEmpty(t *testing.T) {
	m, err := DecodeKwargs(nil)
	if err != nil {
		t.Fatalf("DecodeKwargs() error = %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("DecodeKwargs() = %v, want empty", m)
	}
}

func TestDecodeKwargsMalformed(t *testing.T) {
	if _, err := DecodeKwargs(json.RawMessage(`not json`)); !errors.Is(err, ErrParameter) {
		t.Fatalf("DecodeKwargs() error = %v, want ErrParameter", err)
	}
}
