package sqlsource

import (
	"context"
	"database/sql"

	"caseexport/pkg/records"
)

// dbConn is a small interface over *sql.DB used to make this package testable.
type dbConn interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	Close() error
}

// DB adapts a database/sql handle to Querier.
type DB struct {
	db dbConn
}

// NewDB wraps db. The caller hands ownership of db to the returned value.
func NewDB(db *sql.DB) *DB { return &DB{db: db} }

// QueryRecords implements Querier.
//
// []byte values are copied: database/sql reuses the scan buffer between rows.
func (d *DB) QueryRecords(ctx context.Context, query string, args ...any) ([]records.Record, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []records.Record
	vals := make([]any, len(cols))
	dests := make([]any, len(cols))
	for i := range vals {
		dests[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		r := make(records.Record, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = append([]byte(nil), b...)
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the underlying handle.
func (d *DB) Close() error { return d.db.Close() }

var _ dbConn = (*sql.DB)(nil)
