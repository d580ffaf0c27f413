package sink

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/mattn/go-sqlite3"

	"gridsync/internal/grid"
)

// createTestGrid opens a SQLiteGrid in a temp directory.
func createTestGrid(t *testing.T) *SQLiteGrid {
	t.Helper()
	path := filepath.Join(t.TempDir(), "grid.db")
	g, err := OpenSQLiteGrid(path)
	if err != nil {
		t.Fatalf("OpenSQLiteGrid() failed: %v", err)
	}
	t.Cleanup(func() { g.Close() })
	return g
}

func TestSQLiteGridOpenIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")

	for i := 0; i < 3; i++ {
		g, err := OpenSQLiteGrid(path)
		if err != nil {
			t.Fatalf("OpenSQLiteGrid() iteration %d failed: %v", i, err)
		}
		g.Close()
	}
}

func TestSQLiteGridOpenInvalidPath(t *testing.T) {
	_, err := OpenSQLiteGrid("/nonexistent/dir/grid.db")
	if err == nil {
		t.Error("expected error for invalid path, got nil")
	}
}

func TestSQLiteGridAppendAndRead(t *testing.T) {
	g := createTestGrid(t)
	ctx := context.Background()

	rows := []grid.Row{
		{Key: "k1", Fields: grid.Fields{Subject: grid.String("one"), Summary: grid.String("")}},
		{Key: "k2", Fields: grid.Fields{Body: grid.String("two")}},
	}
	if err := g.AppendRows(ctx, rows); err != nil {
		t.Fatalf("AppendRows() failed: %v", err)
	}

	got, err := g.ReadRows(ctx, []grid.Key{"k1", "k2", "missing"})
	if err != nil {
		t.Fatalf("ReadRows() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadRows() returned %d rows, want 2", len(got))
	}
	if got["k1"].Fields.Subject != grid.String("one") {
		t.Errorf("k1 subject = %#v, want set %q", got["k1"].Fields.Subject, "one")
	}

	// Unset and set-empty survive the NULL/'' round trip distinctly.
	if !got["k1"].Fields.Summary.IsSet() {
		t.Error("k1 summary should be set (empty string)")
	}
	if got["k1"].Fields.Tags.IsSet() {
		t.Error("k1 tags should be unset")
	}
}

func TestSQLiteGridKeysInAppendOrder(t *testing.T) {
	g := createTestGrid(t)
	ctx := context.Background()

	if err := g.AppendRows(ctx, []grid.Row{{Key: "b"}, {Key: "a"}}); err != nil {
		t.Fatalf("AppendRows() failed: %v", err)
	}
	if err := g.AppendRows(ctx, []grid.Row{{Key: "c"}}); err != nil {
		t.Fatalf("AppendRows() failed: %v", err)
	}

	// Overwriting must not change scan order.
	if err := g.WriteRows(ctx, []grid.Row{{Key: "b", Fields: grid.Fields{Tags: grid.String("x")}}}); err != nil {
		t.Fatalf("WriteRows() failed: %v", err)
	}

	keys, err := g.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	want := []grid.Key{"b", "a", "c"}
	if len(keys) != len(want) {
		t.Fatalf("Keys() = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("Keys()[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
}

func TestSQLiteGridWriteMaterializesUnknownKey(t *testing.T) {
	g := createTestGrid(t)
	ctx := context.Background()

	if err := g.WriteRows(ctx, []grid.Row{{Key: "fresh", Fields: grid.Fields{Subject: grid.String("s")}}}); err != nil {
		t.Fatalf("WriteRows() failed: %v", err)
	}

	got, err := g.ReadRows(ctx, []grid.Key{"fresh"})
	if err != nil {
		t.Fatalf("ReadRows() failed: %v", err)
	}
	if _, ok := got["fresh"]; !ok {
		t.Error("whole-row write should materialize an unknown key")
	}
}

func TestSQLiteGridDeleteAndClear(t *testing.T) {
	g := createTestGrid(t)
	ctx := context.Background()

	if err := g.AppendRows(ctx, []grid.Row{{Key: "k1"}, {Key: "k2"}}); err != nil {
		t.Fatalf("AppendRows() failed: %v", err)
	}

	if err := g.DeleteRow(ctx, "k1"); err != nil {
		t.Fatalf("DeleteRow() failed: %v", err)
	}
	// Absent key delete is a no-op.
	if err := g.DeleteRow(ctx, "k1"); err != nil {
		t.Fatalf("DeleteRow() on absent key failed: %v", err)
	}

	if err := g.Clear(ctx); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	keys, err := g.Keys(ctx)
	if err != nil {
		t.Fatalf("Keys() failed: %v", err)
	}
	if len(keys) != 0 {
		t.Errorf("Keys() after Clear() = %v, want empty", keys)
	}
}

func TestSQLiteGridSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grid.db")
	ctx := context.Background()

	g1, err := OpenSQLiteGrid(path)
	if err != nil {
		t.Fatalf("OpenSQLiteGrid() failed: %v", err)
	}
	if err := g1.AppendRows(ctx, []grid.Row{{Key: "k", Fields: grid.Fields{Subject: grid.String("durable")}}}); err != nil {
		t.Fatalf("AppendRows() failed: %v", err)
	}
	g1.Close()

	g2, err := OpenSQLiteGrid(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer g2.Close()

	got, err := g2.ReadRows(ctx, []grid.Key{"k"})
	if err != nil {
		t.Fatalf("ReadRows() failed: %v", err)
	}
	if got["k"].Fields.Subject != grid.String("durable") {
		t.Errorf("row did not survive reopen: %#v", got["k"].Fields.Subject)
	}
}

func TestSQLiteGridLargeBatch(t *testing.T) {
	// 5,000 rows is 35,000 bound variables unchunked, past SQLite's
	// 32,766 per-statement cap. A backlog that size must still land in
	// one AppendRows/ReadRows call each.
	g := createTestGrid(t)
	ctx := context.Background()

	const n = 5000
	rows := make([]grid.Row, n)
	keys := make([]grid.Key, n)
	for i := range rows {
		k := grid.Key(fmt.Sprintf("k%04d", i))
		keys[i] = k
		rows[i] = grid.Row{Key: k, Fields: grid.Fields{Subject: grid.String(fmt.Sprintf("s%d", i))}}
	}

	if err := g.AppendRows(ctx, rows); err != nil {
		t.Fatalf("AppendRows() with %d rows failed: %v", n, err)
	}

	got, err := g.ReadRows(ctx, keys)
	if err != nil {
		t.Fatalf("ReadRows() with %d keys failed: %v", n, err)
	}
	if len(got) != n {
		t.Fatalf("ReadRows() returned %d rows, want %d", len(got), n)
	}
	if got["k4999"].Fields.Subject != grid.String("s4999") {
		t.Errorf("last row subject = %#v, want s4999", got["k4999"].Fields.Subject)
	}

	// Whole-row overwrite of the same batch takes the same chunked path.
	for i := range rows {
		rows[i].Fields = grid.Fields{Tags: grid.String("t")}
	}
	if err := g.WriteRows(ctx, rows); err != nil {
		t.Fatalf("WriteRows() with %d rows failed: %v", n, err)
	}
	got, err = g.ReadRows(ctx, keys[:1])
	if err != nil {
		t.Fatalf("ReadRows() failed: %v", err)
	}
	if got["k0000"].Fields.Tags != grid.String("t") {
		t.Errorf("overwritten row tags = %#v, want t", got["k0000"].Fields.Tags)
	}
	if got["k0000"].Fields.Subject.IsSet() {
		t.Error("whole-row write should have cleared subject")
	}
}

func TestSQLiteGridContentionIsTransient(t *testing.T) {
	busy := fmt.Errorf("write 1 rows: %w", sqlite3.Error{Code: sqlite3.ErrBusy})
	if !IsTransient(wrapGridErr("append_rows", busy)) {
		t.Error("SQLITE_BUSY should classify as transient")
	}

	locked := fmt.Errorf("read rows: %w", sqlite3.Error{Code: sqlite3.ErrLocked})
	if !IsTransient(wrapGridErr("read_rows", locked)) {
		t.Error("SQLITE_LOCKED should classify as transient")
	}

	plain := errors.New("constraint failed")
	if wrapped := wrapGridErr("append_rows", plain); wrapped != plain {
		t.Errorf("non-contention error should surface unchanged, got %v", wrapped)
	}
	if wrapGridErr("append_rows", nil) != nil {
		t.Error("nil error should stay nil")
	}
}

func TestSQLiteGridAdapterEndToEnd(t *testing.T) {
	// The adapter's batch path against the durable backend.
	g := createTestGrid(t)
	a := NewAdapter(g)
	ctx := context.Background()

	batch := []grid.PartialUpdate{
		{Key: "K", Fields: grid.Fields{Subject: grid.String("A")}},
		{Key: "K", Fields: grid.Fields{Tags: grid.String("B")}},
	}
	if err := a.BatchUpsert(ctx, batch); err != nil {
		t.Fatalf("BatchUpsert() failed: %v", err)
	}
	if err := a.BatchUpsert(ctx, batch); err != nil {
		t.Fatalf("replay BatchUpsert() failed: %v", err)
	}

	row, ok, err := a.GetByKey(ctx, "K")
	if err != nil {
		t.Fatalf("GetByKey() failed: %v", err)
	}
	if !ok {
		t.Fatal("row absent after batch upsert")
	}
	if row.Fields.Subject != grid.String("A") || row.Fields.Tags != grid.String("B") {
		t.Errorf("row = %+v, want subject A, tags B", row.Fields)
	}

	keys, err := a.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys() failed: %v", err)
	}
	if len(keys) != 1 {
		t.Errorf("ListKeys() = %v, want exactly one key", keys)
	}
}
