// Package serialize defines the wire shapes that carry Object and View
// references across task boundaries, and the task-return-value encoding.
package serialize

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// ObjectTypeObject and ObjectTypeView are the two valid object_type values.
const (
	ObjectTypeObject = "object"
	ObjectTypeView   = "view"
)

// Ref is a reference to an Object or View, as carried in task kwargs and
// task return values.
type Ref struct {
	ObjectType string `json:"object_type"`
	TableID    string `json:"table_id"`
	Offset     *int   `json:"offset,omitempty"`
	Limit      *int   `json:"limit,omitempty"`
	Where      string `json:"where,omitempty"`
}

// ErrParameter is returned when a kwargs entry is not a well-formed Ref.
var ErrParameter = errors.New("serialize: malformed parameter")

// ParseRef decodes raw JSON into a Ref, validating the required fields.
func ParseRef(raw json.RawMessage) (*Ref, error) {
	var ref Ref
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil, errors.Wrap(ErrParameter, err.Error())
	}
	if ref.ObjectType != ObjectTypeObject && ref.ObjectType != ObjectTypeView {
		return nil, errors.Wrapf(ErrParameter, "unknown object_type %q", ref.ObjectType)
	}
	if ref.TableID == "" {
		return nil, errors.Wrap(ErrParameter, "missing table_id")
	}
	if ref.ObjectType == ObjectTypeObject && (ref.Offset != nil || ref.Limit != nil || ref.Where != "") {
		return nil, errors.Wrap(ErrParameter, "object reference must not carry view fields")
	}
	if ref.Limit != nil && *ref.Limit <= 0 {
		return nil, errors.Wrap(ErrParameter, "limit must be > 0")
	}
	if ref.Offset != nil && *ref.Offset < 0 {
		return nil, errors.Wrap(ErrParameter, "offset must be >= 0")
	}
	return &ref, nil
}

// ObjectRef builds a Ref for a plain Object.
func ObjectRef(tableID string) Ref {
	return Ref{ObjectType: ObjectTypeObject, TableID: tableID}
}

// EncodeResult renders a task's return value as the JSON stored in
// tasks.result: null for no value, or an object reference.
func EncodeResult(ref *Ref) (json.RawMessage, error) {
	if ref == nil {
		return json.RawMessage("null"), nil
	}
	b, err := json.Marshal(ref)
	if err != nil {
		return nil, errors.Wrap(err, "encoding result reference")
	}
	return b, nil
}

// DecodeKwargs unmarshals a task's stored kwargs blob into a name->raw map
// for per-parameter hydration.
func DecodeKwargs(raw json.RawMessage) (map[string]json.RawMessage, error) {
	if len(raw) == 0 {
		return map[string]json.RawMessage{}, nil
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, errors.Wrap(ErrParameter, err.Error())
	}
	return m, nil
}
