// Package dbtest opens throwaway sqlite databases with the production schema.
package dbtest

import (
	"context"
	"database/sql"
	"testing"

	"github.com/chepyr/tasktracker/internal/db"
	_ "github.com/mattn/go-sqlite3"
)

// Open returns an in-memory database with the schema applied. The pool is
// pinned to one connection because every sqlite :memory: connection is a
// separate database.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return conn
}

// InsertUser stores a bare user row so tasks can reference it.
func InsertUser(t testing.TB, conn *sql.DB, id, email string) {
	t.Helper()
	_, err := conn.Exec(
		`INSERT INTO users (id, name, email, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		id, "Test User", email, "hash")
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}
}
