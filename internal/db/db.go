// Package db provides SQLite database access for Feedline.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"github.com/feedline/feedline/internal/logging"
)

// DB wraps the SQL connection pool with Feedline conventions.
type DB struct {
	*sql.DB
	logger zerolog.Logger
}

// Open opens (creating if necessary) the database at path.
func Open(path string, busyTimeout time.Duration) (*DB, error) {
	return open(fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(%d)",
		path, busyTimeout.Milliseconds()))
}

// OpenInMemory opens a private in-memory database, used by tests.
func OpenInMemory() (*DB, error) {
	return open("file::memory:?_pragma=foreign_keys(1)")
}

func open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// table-lock contention between pool members.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{
		DB:     conn,
		logger: logging.Component("db"),
	}, nil
}

// MigrateUp applies the schema. Statements are idempotent so repeated
// calls are safe.
func (db *DB) MigrateUp(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		author_id       TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		body            TEXT,
		attachment_ref  TEXT,
		attachment_kind TEXT,
		reply_to_id     TEXT,
		read            INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation_order
		ON messages (conversation_id, created_at, id)`,
	`CREATE TABLE IF NOT EXISTS reactions (
		item_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		emoji   TEXT NOT NULL,
		PRIMARY KEY (item_id, user_id, emoji)
	)`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id           TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		avatar       TEXT
	)`,
}

// Transaction runs fn inside a transaction, committing on nil error and
// rolling back otherwise.
func (db *DB) Transaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Warn().Err(rbErr).Msg("rollback failed")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
