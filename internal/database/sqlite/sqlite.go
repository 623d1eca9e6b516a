// Package sqlite stores identities in an embedded SQLite database for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"
)

// Backend is the SQLite identity store.
type Backend struct {
	db   *sql.DB
	path string
}

// PathFromURL strips the sqlite:// or file: prefix from url.
func PathFromURL(url string) string {
	path := strings.TrimPrefix(url, "sqlite://")
	return strings.TrimPrefix(path, "file:")
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	b := &Backend{db: db, path: path}
	if err := b.configure(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure sqlite database: %w", err)
	}
	if err := b.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run sqlite migrations: %w", err)
	}
	return b, nil
}

func (b *Backend) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",   // Write-ahead logging for better concurrency
		"PRAGMA busy_timeout=5000",  // Wait up to 5 seconds for locks
		"PRAGMA synchronous=NORMAL", // Safer sync mode with good performance
	}
	for _, p := range pragmas {
		if _, err := b.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS identities (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		name_key      TEXT NOT NULL UNIQUE,
		embedding     BLOB NOT NULL,
		dim           INTEGER NOT NULL,
		accepted      INTEGER NOT NULL DEFAULT 1,
		registered_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_identities_registered_at ON identities (registered_at, id)`,
	`CREATE TABLE IF NOT EXISTS recognition_logs (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		identity_id TEXT,
		name        TEXT NOT NULL,
		score       REAL NOT NULL,
		bbox        TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	)`,
}

func (b *Backend) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Path returns the database file path.
func (b *Backend) Path() string {
	return b.path
}

// Ping checks that the database answers.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return fmt.Errorf("pinging sqlite: %w", err)
	}
	return nil
}

// Close closes the database.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite database: %w", err)
	}
	return nil
}
