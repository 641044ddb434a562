// Package sqlsource implements storage.Source over any relational backend.
//
// Backends differ only in their Dialect and in how they run a query (pgx pool
// or database/sql); the SQL text and the result shaping live here once.
package sqlsource

import (
	"context"
	"strings"

	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/pkg/records"
)

// Querier runs one query and returns its rows keyed by column name.
type Querier interface {
	QueryRecords(ctx context.Context, query string, args ...any) ([]records.Record, error)
	Close() error
}

// Source implements storage.Source.
type Source struct {
	q         Querier
	d         Dialect
	where     string
	whereArgs []any
}

// New wraps q. cfg.Where and cfg.Args restrict the candidate subjects.
func New(q Querier, d Dialect, cfg storage.Config) *Source {
	return &Source{
		q:         q,
		d:         d,
		where:     strings.TrimSpace(cfg.Where),
		whereArgs: append([]any(nil), cfg.Args...),
	}
}

var _ storage.Source = (*Source)(nil)

// Close closes the underlying connection.
func (s *Source) Close() {
	if s == nil || s.q == nil {
		return
	}
	_ = s.q.Close()
}

func (s *Source) wrap(op string, err error) error {
	return storage.Wrap(s.d.Name, op, err)
}

// candidates renders the predicate over patients p that defines the
// candidate set. The caller's where arguments are already bound by newQuery.
func (s *Source) candidates(q *query) string {
	cond := q.col("p", "purged") + " = " + s.d.False
	if s.where != "" {
		cond += " AND (" + s.where + ")"
	}
	return cond
}

func (s *Source) subjectsSQL(after int64, limit int, columns []string) (string, []any) {
	q := newQuery(s.d, s.whereArgs...)
	q.w(q.selectHead(limit), q.cols("p", withID(columns)),
		" FROM ", s.d.Quote(schema.Patients.Table()), " p WHERE ", s.candidates(q),
		" AND ", q.col("p", "id"), " > ", q.bind(after),
		" ORDER BY ", q.col("p", "id"), q.limitTail(limit))
	return q.String(), q.args
}

// Subjects implements storage.Source.
func (s *Source) Subjects(ctx context.Context, after int64, limit int, columns []string) ([]records.Record, error) {
	sql, args := s.subjectsSQL(after, limit, columns)
	recs, err := s.q.QueryRecords(ctx, sql, args...)
	if err != nil {
		return nil, s.wrap("subjects", err)
	}
	return recs, nil
}

func (s *Source) symptomCatalogSQL() (string, []any) {
	q := newQuery(s.d, s.whereArgs...)
	name := q.col("s", "name")
	q.w("SELECT ", name, ", MAX(", q.col("s", "label"), ") AS ", s.d.Quote("label"),
		" FROM ", s.d.Quote("symptoms"), " s",
		" JOIN ", s.d.Quote("conditions"), " c ON ", q.col("c", "id"), " = ", q.col("s", "condition_id"),
		" JOIN ", s.d.Quote(schema.Assessments.Table()), " a ON ", q.col("a", "id"), " = ", q.col("c", "assessment_id"),
		" JOIN ", s.d.Quote(schema.Patients.Table()), " p ON ", q.col("p", "id"), " = ", q.col("a", "patient_id"),
		" WHERE ", s.candidates(q),
		" GROUP BY ", name, " ORDER BY ", name)
	return q.String(), q.args
}

// SymptomCatalog implements storage.Source.
func (s *Source) SymptomCatalog(ctx context.Context) ([]storage.Symptom, error) {
	sql, args := s.symptomCatalogSQL()
	recs, err := s.q.QueryRecords(ctx, sql, args...)
	if err != nil {
		return nil, s.wrap("symptom catalog", err)
	}
	out := make([]storage.Symptom, 0, len(recs))
	for _, r := range recs {
		name := r.String("name")
		if name == "" {
			continue
		}
		out = append(out, storage.Symptom{Name: name, Label: r.String("label")})
	}
	return out, nil
}

func (s *Source) childrenSQL(e schema.Entity, ids []int64, columns []string) (string, []any) {
	q := newQuery(s.d)
	q.w("SELECT ", q.cols("", withChildKeys(columns)),
		" FROM ", s.d.Quote(e.Table()),
		" WHERE ", q.col("", "patient_id"), " IN ", q.in(ids),
		" ORDER BY ", q.col("", "patient_id"), ", ", q.col("", "id"))
	return q.String(), q.args
}

// Children implements storage.Source.
func (s *Source) Children(ctx context.Context, e schema.Entity, subjectIDs []int64, columns []string) ([]records.Record, error) {
	var out []records.Record
	for _, chunk := range storage.Chunks(storage.UniqueIDs(subjectIDs), s.d.MaxParams) {
		sql, args := s.childrenSQL(e, chunk, columns)
		recs, err := s.q.QueryRecords(ctx, sql, args...)
		if err != nil {
			return nil, s.wrap("children "+e.Key(), err)
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *Source) symptomsSQL(reportIDs []int64) (string, []any) {
	q := newQuery(s.d)
	q.w("SELECT ", q.col("c", "assessment_id"), ", ",
		q.cols("s", []string{"name", "type", "bool_value", "int_value", "float_value"}),
		" FROM ", s.d.Quote("conditions"), " c JOIN ", s.d.Quote("symptoms"), " s ON ",
		q.col("s", "condition_id"), " = ", q.col("c", "id"),
		" WHERE ", q.col("c", "assessment_id"), " IN ", q.in(reportIDs),
		" ORDER BY ", q.col("c", "assessment_id"), ", ", q.col("s", "name"))
	return q.String(), q.args
}

// Symptoms implements storage.Source.
func (s *Source) Symptoms(ctx context.Context, reportIDs []int64) (map[int64][]storage.SymptomValue, error) {
	out := make(map[int64][]storage.SymptomValue)
	for _, chunk := range storage.Chunks(storage.UniqueIDs(reportIDs), s.d.MaxParams) {
		sql, args := s.symptomsSQL(chunk)
		recs, err := s.q.QueryRecords(ctx, sql, args...)
		if err != nil {
			return nil, s.wrap("symptoms", err)
		}
		for _, r := range recs {
			id, ok := r.Int64("assessment_id")
			if !ok {
				continue
			}
			out[id] = append(out[id], storage.SymptomValue{Name: r.String("name"), Value: SymptomValue(r)})
		}
	}
	return out, nil
}

func (s *Source) keyedSQL(table, key string, columns []string, ids []int64) (string, []any) {
	q := newQuery(s.d)
	q.w("SELECT ", q.cols("", append([]string{key}, columns...)),
		" FROM ", s.d.Quote(table),
		" WHERE ", q.col("", key), " IN ", q.in(ids))
	return q.String(), q.args
}

func (s *Source) keyed(ctx context.Context, op, table, key string, columns []string, ids []int64, each func(id int64, r records.Record)) error {
	for _, chunk := range storage.Chunks(storage.UniqueIDs(ids), s.d.MaxParams) {
		sql, args := s.keyedSQL(table, key, columns, chunk)
		recs, err := s.q.QueryRecords(ctx, sql, args...)
		if err != nil {
			return s.wrap(op, err)
		}
		for _, r := range recs {
			if id, ok := r.Int64(key); ok {
				each(id, r)
			}
		}
	}
	return nil
}

// Jurisdictions implements storage.Source.
func (s *Source) Jurisdictions(ctx context.Context, ids []int64) (map[int64]storage.Jurisdiction, error) {
	out := make(map[int64]storage.Jurisdiction)
	err := s.keyed(ctx, "jurisdictions", "jurisdictions", "id", []string{"name", "path"}, ids, func(id int64, r records.Record) {
		out[id] = storage.Jurisdiction{Name: r.String("name"), Path: r.String("path")}
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Users implements storage.Source.
func (s *Source) Users(ctx context.Context, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string)
	err := s.keyed(ctx, "users", "users", "id", []string{"email"}, ids, func(id int64, r records.Record) {
		out[id] = r.String("email")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Source) latestTransfersSQL(ids []int64) (string, []any) {
	q := newQuery(s.d)
	q.w("SELECT ", q.cols("", []string{"patient_id", "id", "from_jurisdiction_id", "to_jurisdiction_id", "created_at"}),
		" FROM ", s.d.Quote(schema.Transfers.Table()),
		" WHERE ", q.col("", "patient_id"), " IN ", q.in(ids),
		" ORDER BY ", q.col("", "patient_id"), ", ", q.col("", "created_at"), " DESC, ", q.col("", "id"), " DESC")
	return q.String(), q.args
}

// LatestTransfers implements storage.Source.
func (s *Source) LatestTransfers(ctx context.Context, subjectIDs []int64) (map[int64]storage.Transfer, error) {
	out := make(map[int64]storage.Transfer)
	for _, chunk := range storage.Chunks(storage.UniqueIDs(subjectIDs), s.d.MaxParams) {
		sql, args := s.latestTransfersSQL(chunk)
		recs, err := s.q.QueryRecords(ctx, sql, args...)
		if err != nil {
			return nil, s.wrap("latest transfers", err)
		}
		for _, r := range recs {
			pid, ok := r.Int64("patient_id")
			if !ok {
				continue
			}
			if _, seen := out[pid]; seen {
				continue
			}
			from, _ := r.Int64("from_jurisdiction_id")
			to, _ := r.Int64("to_jurisdiction_id")
			out[pid] = storage.Transfer{FromJurisdictionID: from, ToJurisdictionID: to, CreatedAt: r["created_at"]}
		}
	}
	return out, nil
}

// LabColumns are the laboratories columns returned by RecentLabs.
var LabColumns = []string{"patient_id", "id", "lab_type", "specimen_collection", "report", "result"}

func (s *Source) recentLabsSQL(ids []int64) (string, []any) {
	q := newQuery(s.d)
	sc := q.col("", "specimen_collection")
	q.w("SELECT ", q.cols("", LabColumns),
		" FROM ", s.d.Quote(schema.Laboratories.Table()),
		" WHERE ", q.col("", "patient_id"), " IN ", q.in(ids),
		" ORDER BY ", q.col("", "patient_id"),
		", CASE WHEN ", sc, " IS NULL THEN 1 ELSE 0 END, ", sc, " DESC, ", q.col("", "id"), " DESC")
	return q.String(), q.args
}

// RecentLabs implements storage.Source.
func (s *Source) RecentLabs(ctx context.Context, subjectIDs []int64, n int) (map[int64][]records.Record, error) {
	out := make(map[int64][]records.Record)
	if n <= 0 {
		return out, nil
	}
	for _, chunk := range storage.Chunks(storage.UniqueIDs(subjectIDs), s.d.MaxParams) {
		sql, args := s.recentLabsSQL(chunk)
		recs, err := s.q.QueryRecords(ctx, sql, args...)
		if err != nil {
			return nil, s.wrap("recent labs", err)
		}
		for _, r := range recs {
			pid, ok := r.Int64("patient_id")
			if !ok || len(out[pid]) >= n {
				continue
			}
			out[pid] = append(out[pid], r)
		}
	}
	return out, nil
}

// SymptomValue picks the typed value column of a symptom row.
//
// type is "bool", "int" or "float"; anything else falls back to the first
// non-null value column.
func SymptomValue(r records.Record) any {
	switch strings.ToLower(r.String("type")) {
	case "bool", "boolsymptom":
		if !r.Has("bool_value") {
			return nil
		}
		return asBool(r["bool_value"])
	case "int", "integer", "integersymptom":
		return r["int_value"]
	case "float", "floatsymptom":
		return r["float_value"]
	}
	for _, k := range []string{"bool_value", "int_value", "float_value"} {
		if r.Has(k) {
			if k == "bool_value" {
				return asBool(r[k])
			}
			return r[k]
		}
	}
	return nil
}

// asBool normalizes backends that store booleans as integers.
func asBool(v any) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	if n, ok := records.ToInt64(v); ok {
		return n != 0
	}
	switch strings.ToLower(records.ToString(v)) {
	case "t", "true":
		return true
	}
	return false
}

func withID(columns []string) []string {
	return ensureFirst(columns, "id")
}

func withChildKeys(columns []string) []string {
	return ensureFirst(ensureFirst(columns, "patient_id"), "id")
}

// ensureFirst returns columns with c present exactly once, prepended when
// missing, and without duplicates.
func ensureFirst(columns []string, c string) []string {
	out := make([]string, 0, len(columns)+1)
	seen := make(map[string]struct{}, len(columns)+1)
	has := false
	for _, col := range columns {
		if col == c {
			has = true
			break
		}
	}
	if !has {
		out = append(out, c)
		seen[c] = struct{}{}
	}
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	return out
}
