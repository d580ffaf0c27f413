package sink

import (
	"context"
	"fmt"

	"gridsync/internal/grid"
	"gridsync/internal/merge"
)

// Grid is the set of native batched operations the external tabular
// store must support. Each method maps to exactly one call against the
// backing store.
//
// Absent keys are not errors anywhere in this contract: ReadRows simply
// omits them, and whole-row writes for unknown keys materialize the row.
// Every operation must be idempotent so a caller may safely replay it.
type Grid interface {
	// Keys returns every key currently stored, in storage order.
	// One scan of the key column.
	Keys(ctx context.Context) ([]grid.Key, error)

	// ReadRows returns the stored rows for the requested keys in one
	// batched multi-get. Keys with no row are omitted from the result.
	ReadRows(ctx context.Context, keys []grid.Key) (map[grid.Key]grid.Row, error)

	// AppendRows adds whole rows in one batched append. Appending a key
	// that already exists overwrites its row, keeping replays convergent.
	AppendRows(ctx context.Context, rows []grid.Row) error

	// WriteRows overwrites whole rows in one batched write. Writing a
	// key that does not exist materializes the row.
	WriteRows(ctx context.Context, rows []grid.Row) error

	// DeleteRow removes the row for key. Deleting an absent key is a no-op.
	DeleteRow(ctx context.Context, key grid.Key) error

	// Clear removes every row. Administrative reset, not part of the
	// steady-state flush path.
	Clear(ctx context.Context) error
}

// Adapter exposes logical row operations over a Grid.
type Adapter struct {
	grid Grid
}

// NewAdapter wraps a Grid backend.
func NewAdapter(g Grid) *Adapter {
	return &Adapter{grid: g}
}

// GetByKey reads a single row. The second return is false when the key
// has never been written - absence is an explicit value, not an error.
func (a *Adapter) GetByKey(ctx context.Context, key grid.Key) (grid.Row, bool, error) {
	rows, err := a.grid.ReadRows(ctx, []grid.Key{key})
	if err != nil {
		return grid.Row{}, false, fmt.Errorf("get %q: %w", key, err)
	}
	row, ok := rows[key]
	return row, ok, nil
}

// UpsertRow performs a single-row merge-preserve write: one read, one
// write. Used for ad hoc corrections outside the batch path.
func (a *Adapter) UpsertRow(ctx context.Context, update grid.PartialUpdate) error {
	existing, err := a.grid.ReadRows(ctx, []grid.Key{update.Key})
	if err != nil {
		return fmt.Errorf("upsert %q: %w", update.Key, err)
	}

	if row, ok := existing[update.Key]; ok {
		if err := a.grid.WriteRows(ctx, []grid.Row{row.Apply(update)}); err != nil {
			return fmt.Errorf("upsert %q: %w", update.Key, err)
		}
		return nil
	}

	row := grid.Row{Key: update.Key, Fields: update.Fields}
	if err := a.grid.AppendRows(ctx, []grid.Row{row}); err != nil {
		return fmt.Errorf("upsert %q: %w", update.Key, err)
	}
	return nil
}

// BatchUpsert projects an ordered batch of partial updates onto the grid
// with a constant call count: one batched read covering every distinct
// key (which doubles as the existence check), then at most one append
// for new keys and at most one write for existing keys. The call count
// does not depend on the number of updates in the batch.
//
// Replaying the same batch converges: after the first application every
// key is existing, the re-fold against the stored rows reproduces the
// stored rows, and the write is a state no-op.
func (a *Adapter) BatchUpsert(ctx context.Context, batch []grid.PartialUpdate) error {
	if len(batch) == 0 {
		return nil
	}

	keys := merge.Keys(batch)
	existing, err := a.grid.ReadRows(ctx, keys)
	if err != nil {
		return fmt.Errorf("batch upsert: read %d keys: %w", len(keys), err)
	}

	plan := merge.BuildPlan(batch, existing)

	if len(plan.Appends) > 0 {
		if err := a.grid.AppendRows(ctx, plan.Appends); err != nil {
			return fmt.Errorf("batch upsert: append %d rows: %w", len(plan.Appends), err)
		}
	}
	if len(plan.Updates) > 0 {
		if err := a.grid.WriteRows(ctx, plan.Updates); err != nil {
			return fmt.Errorf("batch upsert: write %d rows: %w", len(plan.Updates), err)
		}
	}
	return nil
}

// ListKeys returns every key the sink currently holds.
func (a *Adapter) ListKeys(ctx context.Context) ([]grid.Key, error) {
	keys, err := a.grid.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

// DeleteByKey removes a single row. Deleting an absent key succeeds.
func (a *Adapter) DeleteByKey(ctx context.Context, key grid.Key) error {
	if err := a.grid.DeleteRow(ctx, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// ClearAll removes every row. Test and cleanup scenarios only.
func (a *Adapter) ClearAll(ctx context.Context) error {
	if err := a.grid.Clear(ctx); err != nil {
		return fmt.Errorf("clear all: %w", err)
	}
	return nil
}
