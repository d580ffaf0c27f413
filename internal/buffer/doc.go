// Package buffer provides the ordered accumulator of partial updates
// between flush cycles.
//
// The buffer is the only place row data lives besides the sink, and a
// flush is the sole path between them. Two implementations share one
// contract: SQLiteBuffer (durable, the production path) and
// MemoryBuffer (ephemeral, for tests and throwaway runs).
//
// # Flush protocol
//
// Draining is a two-phase handshake, not a destructive read:
//
//  1. BeginFlush atomically snapshots the queued entries in FIFO order,
//     marks them in-flight under a fresh batch token, and returns them.
//     No concurrent Add can land inside the snapshot - it lands entirely
//     before or entirely after.
//  2. Ack(token) purges the in-flight entries once the sink accepted the
//     batch; Nack(token) returns them to the head of the queue, ahead of
//     anything added since.
//
// Only one batch may be in flight at a time (ErrFlushInFlight otherwise);
// allowing a second would let newer updates for a key reach the sink
// before a retried older batch and regress merged fields.
//
// If the process dies between BeginFlush and Ack, reopening the durable
// buffer re-queues the in-flight entries ahead of later arrivals, so the
// batch is delivered again rather than lost. The sink side tolerates the
// resulting duplicates because every sink operation is idempotent.
//
// Unreadable persisted state is fatal (ErrCorrupt). The buffer never
// silently resets to empty - that would be silent data loss.
package buffer
