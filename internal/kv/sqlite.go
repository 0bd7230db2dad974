package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLite stores slots as rows of a single table.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS kv (
		slot       TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// OpenSQLite opens (or creates) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One writer keeps transactions serialized without SQLITE_BUSY retries.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling wal: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Get(ctx context.Context, slot Slot) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE slot = ?`, string(slot)).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", slot, err)
	}
	return value, nil
}

func (s *SQLite) Put(ctx context.Context, slot Slot, value []byte) error {
	return s.Commit(ctx, Write{Slot: slot, Value: value})
}

func (s *SQLite) Delete(ctx context.Context, slot Slot) error {
	return s.Commit(ctx, Del(slot))
}

// Commit runs every write inside one transaction.
func (s *SQLite) Commit(ctx context.Context, writes ...Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, w := range writes {
		if w.Delete {
			if _, err := tx.ExecContext(ctx, `DELETE FROM kv WHERE slot = ?`, string(w.Slot)); err != nil {
				return fmt.Errorf("delete %s: %w", w.Slot, err)
			}
			continue
		}
		value := w.Value
		if value == nil {
			value = []byte{}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO kv (slot, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(slot) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			string(w.Slot), value)
		if err != nil {
			return fmt.Errorf("upsert %s: %w", w.Slot, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }
