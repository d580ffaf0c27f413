package grid

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key identifies a row at the sink. Immutable once any write for it
// occurs. Construct with NewKey so Unicode-equivalent spellings collapse.
type Key string

// NewKey returns the canonical form of a raw key: NFC-normalized with
// surrounding whitespace trimmed. Two raw keys that normalize to the
// same form address the same row.
func NewKey(raw string) Key {
	return Key(norm.NFC.String(strings.TrimSpace(raw)))
}

// FieldName names one column of the fixed field set.
type FieldName string

// The fixed, ordered field set. FieldOrder is the authoritative column
// order; every whole-row read and write follows it.
const (
	FieldSender   FieldName = "sender"
	FieldSubject  FieldName = "subject"
	FieldBody     FieldName = "body"
	FieldTags     FieldName = "tags"
	FieldSummary  FieldName = "summary"
	FieldLocation FieldName = "location"
)

// FieldOrder lists all fields in column order.
// This slice order NEVER changes after declaration; row serialization,
// the sink schema, and merge folding all depend on it.
var FieldOrder = []FieldName{
	FieldSender,
	FieldSubject,
	FieldBody,
	FieldTags,
	FieldSummary,
	FieldLocation,
}

// Fields holds one optional value per field of the fixed set.
// The zero value is all-unset.
type Fields struct {
	Sender   Value `json:"sender"`
	Subject  Value `json:"subject"`
	Body     Value `json:"body"`
	Tags     Value `json:"tags"`
	Summary  Value `json:"summary"`
	Location Value `json:"location"`
}

// Get returns the value for a field name.
// Panics on an unknown name - the field set is closed, so an unknown
// name is a programming error, not input.
func (f Fields) Get(name FieldName) Value {
	switch name {
	case FieldSender:
		return f.Sender
	case FieldSubject:
		return f.Subject
	case FieldBody:
		return f.Body
	case FieldTags:
		return f.Tags
	case FieldSummary:
		return f.Summary
	case FieldLocation:
		return f.Location
	}
	panic(fmt.Sprintf("grid: unknown field %q", name))
}

// Set returns a copy with the named field replaced.
func (f Fields) Set(name FieldName, v Value) Fields {
	switch name {
	case FieldSender:
		f.Sender = v
	case FieldSubject:
		f.Subject = v
	case FieldBody:
		f.Body = v
	case FieldTags:
		f.Tags = v
	case FieldSummary:
		f.Summary = v
	case FieldLocation:
		f.Location = v
	default:
		panic(fmt.Sprintf("grid: unknown field %q", name))
	}
	return f
}

// Merge folds u into f under the merge-preserve rule: for every field,
// u wins when set, otherwise f's value is kept. An unset field in u can
// never erase knowledge already held in f.
func (f Fields) Merge(u Fields) Fields {
	return Fields{
		Sender:   f.Sender.Merge(u.Sender),
		Subject:  f.Subject.Merge(u.Subject),
		Body:     f.Body.Merge(u.Body),
		Tags:     f.Tags.Merge(u.Tags),
		Summary:  f.Summary.Merge(u.Summary),
		Location: f.Location.Merge(u.Location),
	}
}

// IsEmpty reports whether every field is unset.
func (f Fields) IsEmpty() bool {
	for _, name := range FieldOrder {
		if f.Get(name).IsSet() {
			return false
		}
	}
	return true
}

// PartialUpdate is a fragment of knowledge about one row at one point
// in time. Every field is independently unset-or-valued.
type PartialUpdate struct {
	Key    Key    `json:"key"`
	Fields Fields `json:"fields"`
}

// Row is the materialized unit of projection at the sink.
type Row struct {
	Key    Key    `json:"key"`
	Fields Fields `json:"fields"`
}

// Apply folds u into the row under merge-preserve. The update's key must
// match the row's key; a mismatch is a programming error upstream, so it
// panics rather than silently cross-merging rows.
func (r Row) Apply(u PartialUpdate) Row {
	if u.Key != r.Key {
		panic(fmt.Sprintf("grid: applying update for key %q to row %q", u.Key, r.Key))
	}
	r.Fields = r.Fields.Merge(u.Fields)
	return r
}
