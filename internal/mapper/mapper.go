// Package mapper turns incoming events into partial update fragments.
//
// The event kind set is closed, and the kind-to-fragment mapping lives
// in a single shared dispatch table consumed by every ingest path.
// Adding an event kind is a one-place change: declare the kind, add its
// table entry, and Validate - run at startup by every entry point -
// fails fast if the entry is missing. An unknown kind at runtime is an
// error, never a silent drop.
package mapper

import (
	"errors"
	"fmt"

	"gridsync/internal/grid"
)

// Kind identifies an event kind from the closed producer set.
type Kind string

const (
	// KindMessageReceived announces an entity first observed: identity
	// and content fields are known, classification fields are not.
	KindMessageReceived Kind = "message_received"

	// KindMessageClassified announces completed classification: only
	// the classification fields are known.
	KindMessageClassified Kind = "message_classified"
)

// Kinds lists every declared event kind. Validate checks the dispatch
// table against this list, so a kind declared here without a table
// entry is caught at startup, not silently dropped at runtime.
var Kinds = []Kind{
	KindMessageReceived,
	KindMessageClassified,
}

// ErrUnknownKind reports an event kind outside the declared set.
var ErrUnknownKind = errors.New("unknown event kind")

// ErrMissingKey reports an event with no entity key.
var ErrMissingKey = errors.New("event has no key")

// Event is one partial-information event about a keyed entity. Payload
// fields are optional; which of them a given kind consumes is decided
// by the dispatch table, and the rest are ignored.
type Event struct {
	Key      string     `json:"key"`
	Kind     Kind       `json:"kind"`
	Sender   grid.Value `json:"sender"`
	Subject  grid.Value `json:"subject"`
	Body     grid.Value `json:"body"`
	Tags     grid.Value `json:"tags"`
	Summary  grid.Value `json:"summary"`
	Location grid.Value `json:"location"`
}

// fragmentFunc extracts the fields a kind contributes to its fragment.
type fragmentFunc func(Event) grid.Fields

// fragments is the single shared kind-to-fragment table.
var fragments = map[Kind]fragmentFunc{
	KindMessageReceived: func(ev Event) grid.Fields {
		return grid.Fields{
			Sender:   ev.Sender,
			Subject:  ev.Subject,
			Body:     ev.Body,
			Location: ev.Location,
		}
	},
	KindMessageClassified: func(ev Event) grid.Fields {
		return grid.Fields{
			Tags:    ev.Tags,
			Summary: ev.Summary,
		}
	},
}

// Validate checks that every declared kind has a dispatch entry.
// Entry points call this at startup so an unmapped kind is a startup
// error rather than a runtime drop.
func Validate() error {
	for _, kind := range Kinds {
		if _, ok := fragments[kind]; !ok {
			return fmt.Errorf("event kind %q has no fragment mapping", kind)
		}
	}
	return nil
}

// Map converts an event into the partial update fragment its kind
// contributes. The event key is canonicalized via grid.NewKey.
func Map(ev Event) (grid.PartialUpdate, error) {
	key := grid.NewKey(ev.Key)
	if key == "" {
		return grid.PartialUpdate{}, ErrMissingKey
	}

	fragment, ok := fragments[ev.Kind]
	if !ok {
		return grid.PartialUpdate{}, fmt.Errorf("%w: %q", ErrUnknownKind, ev.Kind)
	}

	return grid.PartialUpdate{Key: key, Fields: fragment(ev)}, nil
}
