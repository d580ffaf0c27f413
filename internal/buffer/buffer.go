package buffer

import (
	"context"
	"errors"

	"gridsync/internal/grid"
)

// ErrCorrupt reports that the buffer's persisted state cannot be read
// back. Fatal for that buffer instance; deliberately never masked by
// resetting to empty.
var ErrCorrupt = errors.New("buffer state corrupt")

// ErrFlushInFlight reports that BeginFlush was called while a previous
// batch is still awaiting Ack or Nack.
var ErrFlushInFlight = errors.New("flush already in flight")

// Batch is one drained flush unit: the buffered updates in insertion
// order under an opaque token for the Ack/Nack handshake.
type Batch struct {
	Token   string
	Updates []grid.PartialUpdate
}

// Buffer accumulates partial updates between flush cycles.
//
// Add and BeginFlush are mutually atomic: a flush never observes a
// partial add, and an add during a flush lands entirely before or after
// the snapshot. Nothing outside the buffer may mutate its contents.
type Buffer interface {
	// Add appends an update to the tail and returns the new queued size.
	// Unconditionally accepted; bounding is an operational concern of
	// flush cadence, not this layer.
	Add(ctx context.Context, update grid.PartialUpdate) (int, error)

	// BeginFlush atomically drains the queued entries into an in-flight
	// batch. Returns nil when the buffer is empty. Returns
	// ErrFlushInFlight if an earlier batch is still unresolved.
	BeginFlush(ctx context.Context) (*Batch, error)

	// Ack purges the in-flight batch after the sink accepted it.
	// Acking an already-resolved token is a no-op.
	Ack(ctx context.Context, token string) error

	// Nack returns the in-flight batch to the head of the queue.
	Nack(ctx context.Context, token string) error

	// Size returns the queued entry count (in-flight entries excluded).
	Size(ctx context.Context) (int, error)

	// Close releases the buffer's resources.
	Close() error
}
