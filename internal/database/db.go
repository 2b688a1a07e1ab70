package database

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open returns a handle to the sqlite store at path. The engine embeds its
// store in the host process, so the pool is capped at a single connection
// with WAL journaling and foreign keys enforced; concurrent callers queue
// on the busy timeout instead of failing.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// WithTx runs fn inside a transaction, committing on nil and rolling back
// on error. Every ledger mutation pairs with its balance recompute through
// this one path, so neither can commit without the other.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
