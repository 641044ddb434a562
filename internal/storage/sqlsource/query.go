package sqlsource

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	// Name is the backend kind, used in errors.
	Name string

	// Placeholder renders the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// Quote quotes an identifier.
	Quote func(ident string) string

	// False is the literal compared against boolean columns.
	False string

	// Top selects "SELECT TOP (n)" paging instead of a trailing LIMIT.
	Top bool

	// MaxParams bounds the number of ids bound in one IN list.
	MaxParams int
}

// Postgres is the dialect for pgx.
var Postgres = Dialect{
	Name:        "postgres",
	Placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	Quote:       doubleQuote,
	False:       "false",
	MaxParams:   10000,
}

// SQLite is the dialect for modernc.org/sqlite.
var SQLite = Dialect{
	Name:        "sqlite",
	Placeholder: func(int) string { return "?" },
	Quote:       doubleQuote,
	False:       "0",
	MaxParams:   999,
}

// MSSQL is the dialect for go-mssqldb. SQL Server has a hard limit of 2100
// parameters per statement; IN lists stay well below it.
var MSSQL = Dialect{
	Name:        "mssql",
	Placeholder: func(n int) string { return "@p" + strconv.Itoa(n) },
	Quote:       bracketQuote,
	False:       "0",
	Top:         true,
	MaxParams:   2000,
}

func doubleQuote(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// bracketQuote returns a bracket-quoted identifier, escaping ']' as ']]'.
func bracketQuote(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}

// query accumulates SQL text and its bind arguments so placeholder numbering
// always matches argument order.
type query struct {
	d    Dialect
	b    strings.Builder
	args []any
}

func newQuery(d Dialect, args ...any) *query {
	return &query{d: d, args: append([]any(nil), args...)}
}

func (q *query) w(parts ...string) *query {
	for _, p := range parts {
		q.b.WriteString(p)
	}
	return q
}

func (q *query) bind(v any) string {
	q.args = append(q.args, v)
	return q.d.Placeholder(len(q.args))
}

// in renders "(p1, p2, ...)" for ids.
func (q *query) in(ids []int64) string {
	ph := make([]string, len(ids))
	for i, id := range ids {
		ph[i] = q.bind(id)
	}
	return "(" + strings.Join(ph, ", ") + ")"
}

// cols renders a qualified, quoted column list.
func (q *query) cols(alias string, columns []string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = q.col(alias, c)
	}
	return strings.Join(out, ", ")
}

func (q *query) col(alias, c string) string {
	if alias == "" {
		return q.d.Quote(c)
	}
	return alias + "." + q.d.Quote(c)
}

func (q *query) String() string { return q.b.String() }

// selectHead renders "SELECT " with TOP when the dialect pages that way.
func (q *query) selectHead(limit int) string {
	if q.d.Top && limit > 0 {
		return "SELECT TOP (" + strconv.Itoa(limit) + ") "
	}
	return "SELECT "
}

func (q *query) limitTail(limit int) string {
	if q.d.Top || limit <= 0 {
		return ""
	}
	return " LIMIT " + strconv.Itoa(limit)
}
