package buffer

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"gridsync/internal/grid"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteBuffer is the durable buffer implementation. Updates are
// persisted as deterministic JSON in insertion order; the two-phase
// flush handshake is expressed through the batch_token column.
type SQLiteBuffer struct {
	db *sql.DB
}

// Open creates or opens the buffer database at path and re-queues any
// in-flight entries a crashed process left behind. Idempotent.
//
// The connection uses WAL mode, NORMAL synchronous mode, a 5-second
// busy timeout, and a single writer connection (SQLite supports only
// one writer at a time).
func Open(path string) (*SQLiteBuffer, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open buffer database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect buffer database: %w", err)
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
		// An existing file the schema cannot apply to is corrupt state,
		// not a fresh database.
		return nil, fmt.Errorf("%w: apply buffer schema: %v", ErrCorrupt, err)
	}

	b := &SQLiteBuffer{db: db}
	if err := b.recoverInFlight(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

// recoverInFlight re-queues entries a dead process drained but never
// acked. Their original seq puts them ahead of anything added later,
// so the lost batch is re-flushed first.
func (b *SQLiteBuffer) recoverInFlight(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE pending_updates SET batch_token = NULL WHERE batch_token IS NOT NULL
	`)
	if err != nil {
		return fmt.Errorf("recover in-flight entries: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (b *SQLiteBuffer) Close() error {
	if b.db == nil {
		return nil
	}
	return b.db.Close()
}

func (b *SQLiteBuffer) Add(ctx context.Context, update grid.PartialUpdate) (int, error) {
	payload, err := json.Marshal(update)
	if err != nil {
		return 0, fmt.Errorf("encode update for %q: %w", update.Key, err)
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO pending_updates (payload) VALUES (?)
	`, string(payload)); err != nil {
		return 0, fmt.Errorf("add: insert: %w", err)
	}

	var size int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_updates WHERE batch_token IS NULL
	`).Scan(&size); err != nil {
		return 0, fmt.Errorf("add: count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add: commit: %w", err)
	}
	return size, nil
}

func (b *SQLiteBuffer) BeginFlush(ctx context.Context) (*Batch, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin flush: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var inflight int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_updates WHERE batch_token IS NOT NULL
	`).Scan(&inflight); err != nil {
		return nil, fmt.Errorf("begin flush: check in-flight: %w", err)
	}
	if inflight > 0 {
		return nil, ErrFlushInFlight
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT payload FROM pending_updates
		WHERE batch_token IS NULL
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("begin flush: read queued: %w", err)
	}

	var updates []grid.PartialUpdate
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			rows.Close()
			return nil, fmt.Errorf("begin flush: scan: %w", err)
		}
		var u grid.PartialUpdate
		if err := json.Unmarshal([]byte(payload), &u); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: undecodable update payload: %v", ErrCorrupt, err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("begin flush: iterate: %w", err)
	}
	rows.Close()

	if len(updates) == 0 {
		return nil, nil
	}

	token := newBatchToken()
	if _, err := tx.ExecContext(ctx, `
		UPDATE pending_updates SET batch_token = ? WHERE batch_token IS NULL
	`, token); err != nil {
		return nil, fmt.Errorf("begin flush: mark in-flight: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("begin flush: commit: %w", err)
	}
	return &Batch{Token: token, Updates: updates}, nil
}

func (b *SQLiteBuffer) Ack(ctx context.Context, token string) error {
	if _, err := b.db.ExecContext(ctx, `
		DELETE FROM pending_updates WHERE batch_token = ?
	`, token); err != nil {
		return fmt.Errorf("ack batch %s: %w", token, err)
	}
	return nil
}

func (b *SQLiteBuffer) Nack(ctx context.Context, token string) error {
	if _, err := b.db.ExecContext(ctx, `
		UPDATE pending_updates SET batch_token = NULL WHERE batch_token = ?
	`, token); err != nil {
		return fmt.Errorf("nack batch %s: %w", token, err)
	}
	return nil
}

func (b *SQLiteBuffer) Size(ctx context.Context) (int, error) {
	var size int
	if err := b.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM pending_updates WHERE batch_token IS NULL
	`).Scan(&size); err != nil {
		return 0, fmt.Errorf("size: %w", err)
	}
	return size, nil
}
