// Package postgres registers the "postgres" source backend (pgx connection
// pool).
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"caseexport/internal/storage"
	"caseexport/internal/storage/sqlsource"
	"caseexport/pkg/records"
)

func init() {
	storage.Register("postgres", NewSource)
}

// NewSource creates a pgx pool for cfg.DSN.
//
// Options:
//   - max_conns: overrides the pool size from the DSN.
//   - application_name (default "case-export"): shown in pg_stat_activity.
//   - runtime_params: extra session parameters, e.g. {"statement_timeout": "60s"}.
func NewSource(ctx context.Context, cfg storage.Config) (storage.Source, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("postgres", "parse dsn", err)
	}
	if n := cfg.Options.Int("max_conns", 0); n > 0 {
		pcfg.MaxConns = int32(n)
	}
	params := pcfg.ConnConfig.RuntimeParams
	params["application_name"] = cfg.Options.String("application_name", "case-export")
	for k, v := range cfg.Options.StringMap("runtime_params") {
		params[k] = v
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, storage.Wrap("postgres", "open", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, storage.Wrap("postgres", "ping", err)
	}
	return sqlsource.New(&poolQuerier{pool: pool}, sqlsource.Postgres, cfg), nil
}

// pgxQuerier is the subset of *pgxpool.Pool used here.
type pgxQuerier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type poolQuerier struct {
	pool *pgxpool.Pool
}

func (p *poolQuerier) QueryRecords(ctx context.Context, sql string, args ...any) ([]records.Record, error) {
	return queryRecords(ctx, p.pool, sql, args...)
}

func (p *poolQuerier) Close() error {
	p.pool.Close()
	return nil
}

// queryRecords scans a dynamic column list into Records using rows.Values,
// which decodes each column into its natural Go type.
func queryRecords(ctx context.Context, q pgxQuerier, sql string, args ...any) ([]records.Record, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	var out []records.Record
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		r := make(records.Record, len(fds))
		for i, fd := range fds {
			r[fd.Name] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
