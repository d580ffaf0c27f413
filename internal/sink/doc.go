// Package sink adapts logical row operations onto an external tabular
// store while keeping the number of store calls per flush bounded.
//
// Two layers:
//
//   - Grid is the contract for the store's native call shapes: one key
//     scan, one batched multi-get, one batched append, one batched
//     whole-row write, plus administrative delete/clear. A backend that
//     cannot batch a call degrades the flush cost from O(1) calls to
//     O(rows) and must say so in its documentation.
//
//   - Adapter exposes the logical operations (get, upsert, batch upsert,
//     delete, clear) on top of a Grid. BatchUpsert runs the merge
//     engine end to end: one batched read covering every distinct key in
//     the batch, then at most one append and one write, independent of
//     batch length.
//
// Every operation is idempotent: replaying the same input any number of
// times converges to the same stored rows. That property is what makes
// at-least-once delivery from the buffer acceptable.
//
// Nothing in this package retries. Transient failures (rate limiting,
// network, timeouts) are wrapped in TransientError and surfaced
// unchanged so retry and backoff stay a single policy at the flush
// driver.
package sink
