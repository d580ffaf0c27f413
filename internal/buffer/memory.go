package buffer

import (
	"context"
	"sync"

	"gridsync/internal/grid"
)

// MemoryBuffer is a mutex-guarded FIFO buffer with the same two-phase
// flush contract as the durable implementation, minus durability.
// For tests and ephemeral runs.
type MemoryBuffer struct {
	mu       sync.Mutex
	queued   []grid.PartialUpdate
	inflight *Batch
}

// NewMemoryBuffer returns an empty in-memory buffer.
func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{
		queued: make([]grid.PartialUpdate, 0, 64),
	}
}

func (b *MemoryBuffer) Add(_ context.Context, update grid.PartialUpdate) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queued = append(b.queued, update)
	return len(b.queued), nil
}

func (b *MemoryBuffer) BeginFlush(_ context.Context) (*Batch, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inflight != nil {
		return nil, ErrFlushInFlight
	}
	if len(b.queued) == 0 {
		return nil, nil
	}

	drained := make([]grid.PartialUpdate, len(b.queued))
	copy(drained, b.queued)
	b.queued = b.queued[:0]

	b.inflight = &Batch{Token: newBatchToken(), Updates: drained}
	return b.inflight, nil
}

func (b *MemoryBuffer) Ack(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inflight != nil && b.inflight.Token == token {
		b.inflight = nil
	}
	return nil
}

func (b *MemoryBuffer) Nack(_ context.Context, token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.inflight == nil || b.inflight.Token != token {
		return nil
	}

	// Back to the head of the queue, ahead of anything added since.
	requeued := make([]grid.PartialUpdate, 0, len(b.inflight.Updates)+len(b.queued))
	requeued = append(requeued, b.inflight.Updates...)
	requeued = append(requeued, b.queued...)
	b.queued = requeued
	b.inflight = nil
	return nil
}

func (b *MemoryBuffer) Size(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queued), nil
}

func (b *MemoryBuffer) Close() error {
	return nil
}
