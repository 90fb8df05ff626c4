// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// The bot persists two tiny tables (a handful of leader rows and one session
// per category). An embedded database file next to the binary is all it
// needs; DATABASE_URL switches to the postgres package for hosted deploys.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the bot
// cross-compiles without a C toolchain.
package sqlite

import (
	"database/sql"
	"fmt"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"

	"github.com/sakif/highest-aircraft/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/bot.db"  → file-based database (persistent)
//   - ":memory:"     → in-memory database (tests)
//
// SINGLE CONNECTION:
// SQLite allows one writer at a time, and every ":memory:" connection is a
// separate empty database. Capping the pool at one connection makes both
// facts harmless: transactions and plain queries always see the same data,
// and writers queue in Go instead of failing with SQLITE_BUSY.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: exec %q: %w", pragma, err)
		}
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS makes it safe to
// run on every start.
//
// leaders: one row per (category, rank). The composite primary key is what
// enforces "at most one leader set per category": a second insert of rank 1
// without the preceding delete fails instead of silently duplicating.
//
// sessions: one row per (provider, category).
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS leaders (
			category    TEXT NOT NULL,
			rank        INTEGER NOT NULL,
			ident       TEXT NOT NULL,
			altitude    INTEGER,
			groundspeed INTEGER,
			origin      TEXT,
			destination TEXT,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (category, rank)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating leaders table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			provider     TEXT NOT NULL,
			category     TEXT NOT NULL,
			access_token TEXT NOT NULL,
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (provider, category)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating sessions table: %w", err)
	}

	return nil
}
