// Package memory registers the "memory" source backend: a table-keyed dataset
// held in process, loaded from a JSON fixture or built in code.
//
// It answers the same queries as the SQL backends with the same ordering
// rules, and counts calls per operation so tests can assert the number of bulk
// reads a run performs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/internal/storage/sqlsource"
	"caseexport/pkg/records"
)

func init() {
	storage.Register("memory", NewSource)
}

// Dataset maps table names (patients, assessments, conditions, symptoms,
// jurisdictions, users, ...) to their rows.
type Dataset map[string][]records.Record

// Add appends rows to table and returns d for chaining.
func (d Dataset) Add(table string, rows ...records.Record) Dataset {
	d[table] = append(d[table], rows...)
	return d
}

// LoadDataset reads a JSON fixture of the form {"patients": [{...}], ...}.
func LoadDataset(path string) (Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	var d Dataset
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode dataset %s: %w", path, err)
	}
	return d, nil
}

// NewSource loads the fixture at cfg.DSN.
//
// A Where predicate cannot be evaluated in memory; options.ids (a list of
// subject ids) restricts the candidate set instead.
func NewSource(_ context.Context, cfg storage.Config) (storage.Source, error) {
	if strings.TrimSpace(cfg.Where) != "" {
		return nil, storage.Wrap("memory", "open", fmt.Errorf("where predicates are not supported; use options.ids"))
	}
	d, err := LoadDataset(cfg.DSN)
	if err != nil {
		return nil, storage.Wrap("memory", "open", err)
	}
	s := New(d)
	if raw, ok := cfg.Options.Any("ids").([]any); ok {
		ids := make([]int64, 0, len(raw))
		for _, v := range raw {
			if id, ok := records.ToInt64(v); ok {
				ids = append(ids, id)
			}
		}
		s.Restrict(ids)
	}
	return s, nil
}

// Source implements storage.Source over a Dataset.
type Source struct {
	data Dataset

	mu      sync.Mutex
	allowed map[int64]struct{}
	calls   map[string]int
	closed  int

	// Fail, when set, is consulted before every operation; a non-nil error is
	// returned as that operation's failure.
	Fail func(op string) error
}

// New returns a Source over d. d must not be mutated afterwards.
func New(d Dataset) *Source {
	if d == nil {
		d = Dataset{}
	}
	return &Source{data: d, calls: map[string]int{}}
}

var _ storage.Source = (*Source)(nil)

// Restrict limits the candidate set to ids, standing in for a filter predicate.
func (s *Source) Restrict(ids []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowed = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		s.allowed[id] = struct{}{}
	}
}

// Calls returns how many times op ran.
func (s *Source) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Closed reports how many times Close was called.
func (s *Source) Closed() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close implements storage.Source.
func (s *Source) Close() {
	s.mu.Lock()
	s.closed++
	s.mu.Unlock()
}

func (s *Source) enter(op string) error {
	s.mu.Lock()
	s.calls[op]++
	s.mu.Unlock()
	if s.Fail != nil {
		if err := s.Fail(op); err != nil {
			return storage.Wrap("memory", op, err)
		}
	}
	return nil
}

func (s *Source) candidate(r records.Record) bool {
	if v, ok := r["purged"]; ok && asBool(v) {
		return false
	}
	if s.allowed == nil {
		return true
	}
	_, ok := s.allowed[r.ID()]
	return ok
}

// Subjects implements storage.Source.
func (s *Source) Subjects(_ context.Context, after int64, limit int, columns []string) ([]records.Record, error) {
	if err := s.enter("subjects"); err != nil {
		return nil, err
	}
	var matched []records.Record
	for _, r := range s.data[schema.Patients.Table()] {
		if r.ID() > after && s.candidate(r) {
			matched = append(matched, r)
		}
	}
	sortByID(matched)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return project(matched, append([]string{"id"}, columns...)), nil
}

// SymptomCatalog implements storage.Source.
func (s *Source) SymptomCatalog(context.Context) ([]storage.Symptom, error) {
	if err := s.enter("symptom_catalog"); err != nil {
		return nil, err
	}
	subjects := map[int64]bool{}
	for _, p := range s.data[schema.Patients.Table()] {
		if s.candidate(p) {
			subjects[p.ID()] = true
		}
	}
	reports := map[int64]bool{}
	for _, a := range s.data[schema.Assessments.Table()] {
		if pid, _ := a.Int64("patient_id"); subjects[pid] {
			reports[a.ID()] = true
		}
	}
	conditions := map[int64]bool{}
	for _, c := range s.data["conditions"] {
		if aid, _ := c.Int64("assessment_id"); reports[aid] {
			conditions[c.ID()] = true
		}
	}
	labels := map[string]string{}
	for _, sym := range s.data["symptoms"] {
		cid, _ := sym.Int64("condition_id")
		name := sym.String("name")
		if !conditions[cid] || name == "" {
			continue
		}
		if l := sym.String("label"); l > labels[name] {
			labels[name] = l
		} else if _, ok := labels[name]; !ok {
			labels[name] = ""
		}
	}
	out := make([]storage.Symptom, 0, len(labels))
	for name, label := range labels {
		out = append(out, storage.Symptom{Name: name, Label: label})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Children implements storage.Source.
func (s *Source) Children(_ context.Context, e schema.Entity, subjectIDs []int64, columns []string) ([]records.Record, error) {
	if err := s.enter("children:" + e.Key()); err != nil {
		return nil, err
	}
	want := idSet(subjectIDs)
	var out []records.Record
	for _, r := range s.data[e.Table()] {
		if pid, _ := r.Int64("patient_id"); want[pid] {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		pi, _ := out[i].Int64("patient_id")
		pj, _ := out[j].Int64("patient_id")
		if pi != pj {
			return pi < pj
		}
		return out[i].ID() < out[j].ID()
	})
	return project(out, append([]string{"id", "patient_id"}, columns...)), nil
}

// Symptoms implements storage.Source.
func (s *Source) Symptoms(_ context.Context, reportIDs []int64) (map[int64][]storage.SymptomValue, error) {
	if err := s.enter("symptoms"); err != nil {
		return nil, err
	}
	want := idSet(reportIDs)
	condReport := map[int64]int64{}
	for _, c := range s.data["conditions"] {
		if aid, _ := c.Int64("assessment_id"); want[aid] {
			condReport[c.ID()] = aid
		}
	}
	out := make(map[int64][]storage.SymptomValue)
	for _, sym := range s.data["symptoms"] {
		cid, _ := sym.Int64("condition_id")
		aid, ok := condReport[cid]
		if !ok {
			continue
		}
		out[aid] = append(out[aid], storage.SymptomValue{Name: sym.String("name"), Value: sqlsource.SymptomValue(sym)})
	}
	for _, vals := range out {
		sort.SliceStable(vals, func(i, j int) bool { return vals[i].Name < vals[j].Name })
	}
	return out, nil
}

// Jurisdictions implements storage.Source.
func (s *Source) Jurisdictions(_ context.Context, ids []int64) (map[int64]storage.Jurisdiction, error) {
	if err := s.enter("jurisdictions"); err != nil {
		return nil, err
	}
	want := idSet(ids)
	out := make(map[int64]storage.Jurisdiction)
	for _, r := range s.data["jurisdictions"] {
		if want[r.ID()] {
			out[r.ID()] = storage.Jurisdiction{Name: r.String("name"), Path: r.String("path")}
		}
	}
	return out, nil
}

// Users implements storage.Source.
func (s *Source) Users(_ context.Context, ids []int64) (map[int64]string, error) {
	if err := s.enter("users"); err != nil {
		return nil, err
	}
	want := idSet(ids)
	out := make(map[int64]string)
	for _, r := range s.data["users"] {
		if want[r.ID()] {
			out[r.ID()] = r.String("email")
		}
	}
	return out, nil
}

// LatestTransfers implements storage.Source.
func (s *Source) LatestTransfers(_ context.Context, subjectIDs []int64) (map[int64]storage.Transfer, error) {
	if err := s.enter("latest_transfers"); err != nil {
		return nil, err
	}
	want := idSet(subjectIDs)
	best := map[int64]records.Record{}
	for _, r := range s.data[schema.Transfers.Table()] {
		pid, _ := r.Int64("patient_id")
		if !want[pid] {
			continue
		}
		cur, ok := best[pid]
		if !ok || newer(r, cur) {
			best[pid] = r
		}
	}
	out := make(map[int64]storage.Transfer, len(best))
	for pid, r := range best {
		from, _ := r.Int64("from_jurisdiction_id")
		to, _ := r.Int64("to_jurisdiction_id")
		out[pid] = storage.Transfer{FromJurisdictionID: from, ToJurisdictionID: to, CreatedAt: r["created_at"]}
	}
	return out, nil
}

// RecentLabs implements storage.Source.
func (s *Source) RecentLabs(_ context.Context, subjectIDs []int64, n int) (map[int64][]records.Record, error) {
	if err := s.enter("recent_labs"); err != nil {
		return nil, err
	}
	want := idSet(subjectIDs)
	byPatient := map[int64][]records.Record{}
	for _, r := range s.data[schema.Laboratories.Table()] {
		if pid, _ := r.Int64("patient_id"); want[pid] {
			byPatient[pid] = append(byPatient[pid], r)
		}
	}
	out := make(map[int64][]records.Record, len(byPatient))
	for pid, labs := range byPatient {
		sort.SliceStable(labs, func(i, j int) bool {
			ci, cj := labs[i].String("specimen_collection"), labs[j].String("specimen_collection")
			if (ci == "") != (cj == "") {
				return cj == ""
			}
			if ci != cj {
				return ci > cj
			}
			return labs[i].ID() > labs[j].ID()
		})
		if n > 0 && len(labs) > n {
			labs = labs[:n]
		}
		out[pid] = project(labs, sqlsource.LabColumns)
	}
	return out, nil
}

// newer orders transfers by created_at then id, both descending. Fixture
// timestamps are ISO strings, so lexical order is time order.
func newer(a, b records.Record) bool {
	ca, cb := a.String("created_at"), b.String("created_at")
	if ca != cb {
		return ca > cb
	}
	return a.ID() > b.ID()
}

func sortByID(rs []records.Record) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].ID() < rs[j].ID() })
}

// project copies the requested columns so callers never alias the dataset.
// Missing columns are present with a nil value, as a SQL NULL would be.
func project(rs []records.Record, columns []string) []records.Record {
	out := make([]records.Record, len(rs))
	for i, r := range rs {
		p := make(records.Record, len(columns))
		for _, c := range columns {
			p[c] = r[c]
		}
		out[i] = p
	}
	return out
}

func idSet(ids []int64) map[int64]bool {
	m := make(map[int64]bool, len(ids))
	for _, id := range ids {
		m[id] = true
	}
	return m
}

func asBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	}
	if n, ok := records.ToInt64(v); ok {
		return n != 0
	}
	s := strings.ToLower(records.ToString(v))
	return s == "t" || s == "true"
}
