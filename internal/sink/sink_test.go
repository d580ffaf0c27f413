package sink

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gridsync/internal/grid"
)

func newTestAdapter() (*Adapter, *MemoryGrid) {
	g := NewMemoryGrid()
	return NewAdapter(g), g
}

func upd(key string, fields grid.Fields) grid.PartialUpdate {
	return grid.PartialUpdate{Key: grid.Key(key), Fields: fields}
}

func TestGetByKeyAbsent(t *testing.T) {
	a, _ := newTestAdapter()

	_, ok, err := a.GetByKey(context.Background(), "never-written")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertRowMergePreserve(t *testing.T) {
	a, _ := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.UpsertRow(ctx, upd("k", grid.Fields{Subject: grid.String("X")})))
	require.NoError(t, a.UpsertRow(ctx, upd("k", grid.Fields{Tags: grid.String("Y")})))

	row, ok, err := a.GetByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, grid.String("X"), row.Fields.Subject)
	assert.Equal(t, grid.String("Y"), row.Fields.Tags)
	assert.False(t, row.Fields.Body.IsSet())
}

func TestUpsertRowCostOneReadOneWrite(t *testing.T) {
	a, g := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.UpsertRow(ctx, upd("k", grid.Fields{Subject: grid.String("X")})))
	calls := g.Calls()
	assert.Equal(t, 1, calls.ReadRows)
	assert.Equal(t, 1, calls.Appends+calls.Writes)
}

func TestBatchUpsertCallCountBound(t *testing.T) {
	// N updates spanning new and existing keys: exactly 1 read, at most
	// 1 append, at most 1 write - never proportional to N.
	a, g := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.UpsertRow(ctx, upd("existing", grid.Fields{Body: grid.String("b")})))
	g.ResetCalls()

	batch := []grid.PartialUpdate{
		upd("n1", grid.Fields{Subject: grid.String("1")}),
		upd("n2", grid.Fields{Subject: grid.String("2")}),
		upd("existing", grid.Fields{Tags: grid.String("t")}),
		upd("n1", grid.Fields{Tags: grid.String("t1")}),
		upd("n3", grid.Fields{Subject: grid.String("3")}),
		upd("existing", grid.Fields{Summary: grid.String("s")}),
	}
	require.NoError(t, a.BatchUpsert(ctx, batch))

	calls := g.Calls()
	assert.Equal(t, 1, calls.ReadRows)
	assert.Equal(t, 1, calls.Appends)
	assert.Equal(t, 1, calls.Writes)
}

func TestBatchUpsertAllNewSkipsWriteCall(t *testing.T) {
	a, g := newTestAdapter()

	batch := []grid.PartialUpdate{
		upd("a", grid.Fields{Subject: grid.String("1")}),
		upd("b", grid.Fields{Subject: grid.String("2")}),
	}
	require.NoError(t, a.BatchUpsert(context.Background(), batch))

	calls := g.Calls()
	assert.Equal(t, 1, calls.ReadRows)
	assert.Equal(t, 1, calls.Appends)
	assert.Equal(t, 0, calls.Writes)
}

func TestBatchUpsertEmptyBatchTouchesNothing(t *testing.T) {
	a, g := newTestAdapter()

	require.NoError(t, a.BatchUpsert(context.Background(), nil))
	assert.Equal(t, CallCounts{}, g.Calls())
}

func TestBatchUpsertWithinBatchDuplicates(t *testing.T) {
	// Duplicate subject/tags fragments for one new key fold into a
	// single appended row carrying both fields.
	a, g := newTestAdapter()
	ctx := context.Background()

	batch := []grid.PartialUpdate{
		upd("K", grid.Fields{Subject: grid.String("A")}),
		upd("K", grid.Fields{Tags: grid.String("B")}),
		upd("K", grid.Fields{Subject: grid.String("A")}),
		upd("K", grid.Fields{Tags: grid.String("B")}),
	}
	require.NoError(t, a.BatchUpsert(ctx, batch))

	assert.Equal(t, 1, g.Calls().Appends)

	keys, err := a.ListKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []grid.Key{"K"}, keys)

	row, ok, err := a.GetByKey(ctx, "K")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, grid.String("A"), row.Fields.Subject)
	assert.Equal(t, grid.String("B"), row.Fields.Tags)
	for _, name := range []grid.FieldName{grid.FieldSender, grid.FieldBody, grid.FieldSummary, grid.FieldLocation} {
		assert.False(t, row.Fields.Get(name).IsSet())
	}
}

func TestBatchUpsertIdempotentReplay(t *testing.T) {
	// Applying the same batch twice converges to the same stored rows.
	a, _ := newTestAdapter()
	ctx := context.Background()

	batch := []grid.PartialUpdate{
		upd("k", grid.Fields{Subject: grid.String("A")}),
	}

	require.NoError(t, a.BatchUpsert(ctx, batch))
	first, ok, err := a.GetByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, a.BatchUpsert(ctx, batch))
	second, ok, err := a.GetByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, first, second)
}

func TestBatchUpsertExistingNotBlankedByPartial(t *testing.T) {
	a, _ := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.UpsertRow(ctx, upd("k", grid.Fields{Subject: grid.String("kept")})))
	require.NoError(t, a.BatchUpsert(ctx, []grid.PartialUpdate{
		upd("k", grid.Fields{Tags: grid.String("new")}),
	}))

	row, _, err := a.GetByKey(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, grid.String("kept"), row.Fields.Subject)
	assert.Equal(t, grid.String("new"), row.Fields.Tags)
}

func TestBatchUpsertSurfacesReadFailure(t *testing.T) {
	a, g := newTestAdapter()

	boom := Transient("read_rows", errors.New("quota exhausted"))
	g.FailNext(boom)

	err := a.BatchUpsert(context.Background(), []grid.PartialUpdate{
		upd("k", grid.Fields{Subject: grid.String("A")}),
	})
	require.Error(t, err)
	assert.True(t, IsTransient(err))

	// No partial state: the failure happened before any write call.
	assert.Equal(t, 0, g.Calls().Appends+g.Calls().Writes)
}

func TestBatchUpsertRetryAfterAppendFailure(t *testing.T) {
	// Append fails once; a full re-run of the same batch succeeds and
	// converges, because the recomputation is idempotent.
	a, g := newTestAdapter()
	ctx := context.Background()

	batch := []grid.PartialUpdate{
		upd("k", grid.Fields{Subject: grid.String("A")}),
	}

	failing := &failOnAppendOnce{MemoryGrid: g}
	retried := NewAdapter(failing)
	require.Error(t, retried.BatchUpsert(ctx, batch))
	require.NoError(t, retried.BatchUpsert(ctx, batch))

	row, ok, err := a.GetByKey(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, grid.String("A"), row.Fields.Subject)
}

// failOnAppendOnce fails the first AppendRows call, then passes through.
type failOnAppendOnce struct {
	*MemoryGrid
	failed bool
}

func (f *failOnAppendOnce) AppendRows(ctx context.Context, rows []grid.Row) error {
	if !f.failed {
		f.failed = true
		return Transient("append_rows", errors.New("rate limited"))
	}
	return f.MemoryGrid.AppendRows(ctx, rows)
}

func TestDeleteByKey(t *testing.T) {
	a, _ := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.UpsertRow(ctx, upd("k", grid.Fields{Subject: grid.String("X")})))
	require.NoError(t, a.DeleteByKey(ctx, "k"))

	_, ok, err := a.GetByKey(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting an absent key is a no-op, not an error.
	require.NoError(t, a.DeleteByKey(ctx, "k"))
}

func TestClearAllThenGetAbsent(t *testing.T) {
	a, _ := newTestAdapter()
	ctx := context.Background()

	require.NoError(t, a.UpsertRow(ctx, upd("k1", grid.Fields{Subject: grid.String("1")})))
	require.NoError(t, a.UpsertRow(ctx, upd("k2", grid.Fields{Subject: grid.String("2")})))
	require.NoError(t, a.ClearAll(ctx))

	for _, key := range []grid.Key{"k1", "k2"} {
		_, ok, err := a.GetByKey(ctx, key)
		require.NoError(t, err)
		assert.False(t, ok)
	}
}

func TestTransientErrorWrapping(t *testing.T) {
	base := errors.New("429 too many requests")
	err := Transient("write_rows", base)

	assert.True(t, IsTransient(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsTransient(errors.New("plain")))
	assert.NoError(t, Transient("op", nil))
}
