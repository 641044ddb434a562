// Package mssql registers the "mssql" source backend for Microsoft SQL Server.
//
// Paging uses SELECT TOP (n) with ORDER BY id; bind parameters are @p1..@pN,
// so a caller-supplied Where must use the same style.
package mssql

import (
	"context"
	"database/sql"

	_ "github.com/microsoft/go-mssqldb"

	"caseexport/internal/storage"
	"caseexport/internal/storage/sqlsource"
)

func init() {
	storage.Register("mssql", NewSource)
}

// NewSource opens a pool with the "sqlserver" driver and validates
// connectivity via PingContext.
//
// Options:
//   - max_open_conns (default 4): the pipeline issues one query at a time;
//     a small pool only absorbs reconnects.
func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	raw, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("mssql", "open", err)
	}

	n := cfg.Options.Int("max_open_conns", 4)
	raw.SetMaxOpenConns(n)
	raw.SetMaxIdleConns(n)

	if err := raw.PingContext(ctx); err != nil {
		_ = raw.Close()
		return nil, storage.Wrap("mssql", "ping", err)
	}
	return sqlsource.New(sqlsource.NewDB(raw), sqlsource.MSSQL, cfg), nil
}
