// Package projector drives the buffer-to-sink flush cycle.
//
// The projector owns the only path between the buffer and the sink. It
// never holds buffer state across a sink call: BeginFlush snapshots and
// releases the buffer, the sink call runs on the drained copy, and the
// outcome is reported back as an Ack or Nack.
//
// Retry and backoff policy lives here and nowhere below: the buffer has
// no network calls, and the merge engine and sink adapter surface
// failures unchanged. A failed cycle leaves the backlog intact, and the
// next successful flush drains it in one batch at the same constant
// sink call cost.
package projector

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"gridsync/internal/buffer"
	"gridsync/internal/merge"
	"gridsync/internal/sink"
)

// FlushResult summarizes one completed flush cycle.
type FlushResult struct {
	Drained int       `json:"drained"` // updates taken from the buffer
	Keys    int       `json:"keys"`    // distinct keys they spanned
	At      time.Time `json:"at"`
}

// Projector connects a Buffer to a sink Adapter.
type Projector struct {
	buf  buffer.Buffer
	sink *sink.Adapter
	log  *slog.Logger

	attempts int
	delay    time.Duration

	mu   sync.Mutex
	last *FlushResult
}

// Option configures a Projector.
type Option func(*Projector)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(p *Projector) {
		p.log = log
	}
}

// WithRetry sets how often one cycle retries a failed sink call before
// giving up until the next tick. Attempts below 1 become 1 (no retry);
// a zero delay defaults to one second.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(p *Projector) {
		if attempts < 1 {
			attempts = 1
		}
		if delay == 0 {
			delay = time.Second
		}
		p.attempts = attempts
		p.delay = delay
	}
}

// New creates a Projector over the given buffer and sink adapter.
func New(buf buffer.Buffer, adapter *sink.Adapter, opts ...Option) *Projector {
	p := &Projector{
		buf:      buf,
		sink:     adapter,
		log:      slog.Default(),
		attempts: 1,
		delay:    time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FlushOnce runs a single flush cycle: drain the buffer, project the
// batch onto the sink, ack on success or nack on failure.
//
// A failure after the drain re-queues the exact batch ahead of newer
// updates, so a later cycle replays it in original order; the sink's
// idempotency makes that replay safe.
func (p *Projector) FlushOnce(ctx context.Context) (FlushResult, error) {
	batch, err := p.buf.BeginFlush(ctx)
	if err != nil {
		return FlushResult{}, err
	}
	if batch == nil {
		return FlushResult{}, nil
	}

	if err := p.sink.BatchUpsert(ctx, batch.Updates); err != nil {
		if nackErr := p.buf.Nack(ctx, batch.Token); nackErr != nil {
			return FlushResult{}, errors.Join(err, nackErr)
		}
		return FlushResult{}, err
	}

	if err := p.buf.Ack(ctx, batch.Token); err != nil {
		// The sink already accepted the batch. A failed ack means the
		// entries will be re-flushed later, which the sink tolerates.
		return FlushResult{}, err
	}

	result := FlushResult{
		Drained: len(batch.Updates),
		Keys:    len(merge.Keys(batch.Updates)),
		At:      time.Now(),
	}
	p.mu.Lock()
	p.last = &result
	p.mu.Unlock()
	return result, nil
}

// LastResult returns the most recent successful flush, if any.
func (p *Projector) LastResult() (FlushResult, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return FlushResult{}, false
	}
	return *p.last, true
}

// Sink returns the sink adapter for read-side callers.
func (p *Projector) Sink() *sink.Adapter {
	return p.sink
}

// Size reports the buffer's queued update count.
func (p *Projector) Size(ctx context.Context) (int, error) {
	return p.buf.Size(ctx)
}

// Run flushes on a fixed cadence until ctx is cancelled, then makes one
// final best-effort drain so a clean shutdown does not strand a backlog
// in the buffer.
func (p *Projector) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.log.Info("projector started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("projector stopping, draining buffer")
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := p.FlushOnce(drainCtx); err != nil {
				p.log.Error("final drain failed, backlog stays buffered", "error", err)
			}
			return ctx.Err()
		case <-ticker.C:
			p.flushWithRetry(ctx)
		}
	}
}

// flushWithRetry runs one cycle, retrying failed sink calls up to the
// configured attempts with a fixed delay. Exhausted attempts are not an
// exit condition: the backlog is intact and the next tick tries again.
func (p *Projector) flushWithRetry(ctx context.Context) {
	for attempt := 1; attempt <= p.attempts; attempt++ {
		result, err := p.FlushOnce(ctx)
		if err == nil {
			if result.Drained > 0 {
				p.log.Info("flush complete",
					"drained", result.Drained, "keys", result.Keys)
			}
			return
		}

		if sink.IsTransient(err) {
			p.log.Warn("flush failed, sink throttling or unreachable",
				"attempt", attempt, "attempts", p.attempts, "error", err)
		} else {
			p.log.Error("flush failed",
				"attempt", attempt, "attempts", p.attempts, "error", err)
		}

		if attempt < p.attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.delay):
			}
		}
	}
}
