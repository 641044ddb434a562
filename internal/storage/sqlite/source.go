// Package sqlite registers the "sqlite" source backend (modernc.org/sqlite,
// no cgo).
//
// SQLite has no native boolean or timestamp type: booleans come back as
// INTEGER 0/1 and timestamps as TEXT. The format package reads both.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"caseexport/internal/storage"
	"caseexport/internal/storage/sqlsource"
)

func init() {
	storage.Register("sqlite", NewSource)
}

// Open opens and pings a SQLite database.
//
// In-memory databases exist per connection, so the pool is pinned to a single
// connection for ":memory:" DSNs.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewSource opens cfg.DSN and returns a storage.Source over it.
//
// Options:
//   - query_only (default true): the connection refuses writes.
//   - busy_timeout_ms (default 5000): wait on locks held by the application.
//
// The pool is held to one connection so the pragmas cover every query.
func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	db, err := Open(ctx, cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("sqlite", "open", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.Options.Int("busy_timeout_ms", 5000))}
	if cfg.Options.Bool("query_only", true) {
		pragmas = append(pragmas, "PRAGMA query_only = ON")
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, storage.Wrap("sqlite", "pragma", err)
		}
	}
	return FromDB(db, cfg), nil
}

// FromDB returns a Source over an already open database. The Source takes
// ownership of db.
func FromDB(db *sql.DB, cfg storage.Config) storage.Source {
	return sqlsource.New(sqlsource.NewDB(db), sqlsource.SQLite, cfg)
}
