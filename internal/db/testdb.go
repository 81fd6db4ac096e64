package db

import (
	"testing"

	"github.com/jmoiron/sqlx"
)

// NewTestDB creates a fresh in-memory SQLite database with the schema applied.
// The pool holds a single connection, so callers must not query the database
// while a transaction is open.
func NewTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := Open(DriverSQLite, "file::memory:?_pragma=foreign_keys(1)&_txlock=immediate&_time_format=sqlite")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		t.Fatalf("creating test database schema: %v", err)
	}

	t.Cleanup(func() { db.Close() })

	return db
}
