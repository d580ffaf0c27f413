package grid

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Value is an optional string field value.
//
// The zero value is unset. An unset Value and a set-but-empty Value are
// different states: unset means "nothing known yet" and never overwrites
// prior knowledge during a merge, while a set empty string is a real
// business value and does overwrite.
type Value struct {
	set bool
	str string
}

// String returns a set Value holding s. String("") is set and distinct
// from the zero (unset) Value.
func String(s string) Value {
	return Value{set: true, str: s}
}

// Unset returns the unset Value. Equivalent to the zero value; provided
// for readability at call sites.
func Unset() Value {
	return Value{}
}

// IsSet reports whether the value holds a business value.
func (v Value) IsSet() bool {
	return v.set
}

// Get returns the held string. Returns "" for an unset value; callers
// that need to distinguish must check IsSet first.
func (v Value) Get() string {
	return v.str
}

// Merge applies the merge-preserve rule: the incoming value u wins when
// set, otherwise the receiver is kept unchanged.
func (v Value) Merge(u Value) Value {
	if u.set {
		return u
	}
	return v
}

// MarshalJSON encodes unset as null and set as a JSON string, keeping
// the unset/empty distinction on the wire.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.str)
}

// UnmarshalJSON decodes null as unset and a JSON string as set.
func (v *Value) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*v = Value{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("field value must be null or string: %w", err)
	}
	*v = Value{set: true, str: s}
	return nil
}

// GoString makes test failure output readable.
func (v Value) GoString() string {
	if !v.set {
		return "grid.Unset()"
	}
	return fmt.Sprintf("grid.String(%q)", v.str)
}
