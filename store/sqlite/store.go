// Package sqlite implements a store.Store on an embedded SQLite database.
// Each Save replaces the state row inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/input-output-hk/catalyst-forge-libs/treesync/store"
	"github.com/input-output-hk/catalyst-forge-libs/treesync/synctypes"
)

const schema = `
CREATE TABLE IF NOT EXISTS treesync_state (
	tree_key   TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// Store keeps the state of one or more trees in a SQLite database, one row per key.
type Store struct {
	conn *sql.DB
	key  string
}

var _ store.Store = (*Store)(nil)

// Open opens (or creates) the database at path and scopes the store to key.
// Use ":memory:" for a throwaway database.
func Open(path, key string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s", path)
	}

	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and writers serialized.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{"PRAGMA busy_timeout=5000"}
	if dsn != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Store{conn: conn, key: key}, nil
}

// Load implements store.Store.
func (s *Store) Load(ctx context.Context) (*synctypes.PersistedState, error) {
	var payload []byte
	err := s.conn.QueryRowContext(ctx,
		`SELECT payload FROM treesync_state WHERE tree_key = ?`, s.key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load state %q: %w", s.key, err)
	}
	return store.Decode(payload)
}

// Save implements store.Store.
func (s *Store) Save(ctx context.Context, state *synctypes.PersistedState) error {
	payload, err := store.Encode(state)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save state %q: begin: %w", s.key, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO treesync_state (tree_key, payload, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
		ON CONFLICT(tree_key) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at`,
		s.key, payload,
	); err != nil {
		return fmt.Errorf("save state %q: %w", s.key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save state %q: commit: %w", s.key, err)
	}
	return nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}
