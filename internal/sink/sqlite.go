package sink

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"gridsync/internal/grid"
)

//go:embed schema.sql
var schemaSQL string

// SQLite caps bound variables per statement (32766 in the bundled
// build), so the batched operations split oversized argument lists
// into chunks that stay well under the cap. A batch beyond the chunk
// size costs extra statements, not extra grid calls: reads merge into
// one result, writes run inside one transaction.
const (
	readChunkKeys  = 999
	writeChunkRows = 400 // 7 bound variables per row
)

// SQLiteGrid is a durable Grid backed by a local SQLite file. It is the
// reference backend for environments without a remote tabular store.
//
// Batched operations execute as one multi-row statement per chunk of
// writeChunkRows rows (readChunkKeys keys for reads), so the adapter's
// per-flush call bound maps onto a statement-count bound here that
// grows only for batches past the chunk size.
type SQLiteGrid struct {
	db *sql.DB
}

// OpenSQLiteGrid creates or opens the grid database at path.
// Idempotent - safe to call against an existing database.
//
// The connection is configured with WAL mode, NORMAL synchronous mode,
// a 5-second busy timeout, and a single writer connection (SQLite only
// supports one writer at a time).
func OpenSQLiteGrid(path string) (*SQLiteGrid, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open grid database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect grid database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply grid schema: %w", err)
	}

	return &SQLiteGrid{db: db}, nil
}

// Close closes the database connection.
func (g *SQLiteGrid) Close() error {
	if g.db == nil {
		return nil
	}
	return g.db.Close()
}

func (g *SQLiteGrid) Keys(ctx context.Context) ([]grid.Key, error) {
	rows, err := g.db.QueryContext(ctx, `SELECT key FROM grid_rows ORDER BY seq ASC`)
	if err != nil {
		return nil, wrapGridErr("keys", fmt.Errorf("scan keys: %w", err))
	}
	defer rows.Close()

	var keys []grid.Key
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, grid.Key(k))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate keys: %w", err)
	}
	return keys, nil
}

func (g *SQLiteGrid) ReadRows(ctx context.Context, keys []grid.Key) (map[grid.Key]grid.Row, error) {
	out := make(map[grid.Key]grid.Row, len(keys))
	for len(keys) > 0 {
		chunk := keys
		if len(chunk) > readChunkKeys {
			chunk = chunk[:readChunkKeys]
		}
		keys = keys[len(chunk):]
		if err := g.readKeyChunk(ctx, chunk, out); err != nil {
			return nil, wrapGridErr("read_rows", err)
		}
	}
	return out, nil
}

func (g *SQLiteGrid) readKeyChunk(ctx context.Context, keys []grid.Key, out map[grid.Key]grid.Row) error {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = string(k)
	}

	rows, err := g.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT key, sender, subject, body, tags, summary, location
		FROM grid_rows
		WHERE key IN (%s)
		ORDER BY seq ASC
	`, placeholders), args...)
	if err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		row, err := scanGridRow(rows)
		if err != nil {
			return err
		}
		out[row.Key] = row
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	return nil
}

// upsertRows is the shared implementation of AppendRows and WriteRows.
// One multi-row statement per chunk, all chunks in one transaction so
// the batch stays atomic; ON CONFLICT keeps replays convergent and
// preserves the original append seq.
func (g *SQLiteGrid) upsertRows(ctx context.Context, op string, rows []grid.Row) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapGridErr(op, fmt.Errorf("begin write: %w", err))
	}
	defer tx.Rollback()

	for len(rows) > 0 {
		chunk := rows
		if len(chunk) > writeChunkRows {
			chunk = chunk[:writeChunkRows]
		}
		rows = rows[len(chunk):]
		if err := upsertChunk(ctx, tx, chunk); err != nil {
			return wrapGridErr(op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return wrapGridErr(op, fmt.Errorf("commit write: %w", err))
	}
	return nil
}

func upsertChunk(ctx context.Context, tx *sql.Tx, rows []grid.Row) error {
	var sb strings.Builder
	sb.WriteString(`
		INSERT INTO grid_rows (key, sender, subject, body, tags, summary, location)
		VALUES `)
	args := make([]any, 0, len(rows)*7)
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, string(row.Key))
		for _, name := range grid.FieldOrder {
			args = append(args, toNullString(row.Fields.Get(name)))
		}
	}
	sb.WriteString(`
		ON CONFLICT(key) DO UPDATE SET
			sender = excluded.sender,
			subject = excluded.subject,
			body = excluded.body,
			tags = excluded.tags,
			summary = excluded.summary,
			location = excluded.location`)

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("write %d rows: %w", len(rows), err)
	}
	return nil
}

func (g *SQLiteGrid) AppendRows(ctx context.Context, rows []grid.Row) error {
	return g.upsertRows(ctx, "append_rows", rows)
}

func (g *SQLiteGrid) WriteRows(ctx context.Context, rows []grid.Row) error {
	return g.upsertRows(ctx, "write_rows", rows)
}

func (g *SQLiteGrid) DeleteRow(ctx context.Context, key grid.Key) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM grid_rows WHERE key = ?`, string(key)); err != nil {
		return wrapGridErr("delete_row", fmt.Errorf("delete row %q: %w", key, err))
	}
	return nil
}

func (g *SQLiteGrid) Clear(ctx context.Context) error {
	if _, err := g.db.ExecContext(ctx, `DELETE FROM grid_rows`); err != nil {
		return wrapGridErr("clear", fmt.Errorf("clear rows: %w", err))
	}
	return nil
}

// wrapGridErr classifies writer contention (SQLITE_BUSY, SQLITE_LOCKED)
// as transient so the flush driver retries with the backlog intact;
// every other failure surfaces unchanged.
func wrapGridErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) && (se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked) {
		return Transient(op, err)
	}
	return err
}

// scanGridRow maps one result row onto the fixed field set.
func scanGridRow(rows *sql.Rows) (grid.Row, error) {
	var key string
	cols := make([]sql.NullString, len(grid.FieldOrder))
	dest := make([]any, 0, len(cols)+1)
	dest = append(dest, &key)
	for i := range cols {
		dest = append(dest, &cols[i])
	}

	if err := rows.Scan(dest...); err != nil {
		return grid.Row{}, fmt.Errorf("scan row: %w", err)
	}

	row := grid.Row{Key: grid.Key(key)}
	for i, name := range grid.FieldOrder {
		if cols[i].Valid {
			row.Fields = row.Fields.Set(name, grid.String(cols[i].String))
		}
	}
	return row, nil
}

// toNullString maps unset to SQL NULL and set to the stored string.
func toNullString(v grid.Value) sql.NullString {
	return sql.NullString{String: v.Get(), Valid: v.IsSet()}
}
