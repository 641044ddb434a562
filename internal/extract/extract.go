// Package extract turns raw source rows into export rows, one extractor per
// entity type.
//
// Extractors are stateless. Each run of a page goes:
//
//	Prefetch(page rows) -> *Lookups (new tables, bulk queries only)
//	Extract(page rows, lookups) -> rows keyed by field name
//
// Extract never queries and never fails: a missing lookup renders blank.
package extract

import (
	"context"
	"fmt"
	"time"

	"caseexport/internal/format"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/pkg/records"
)

// LabSlots is how many recent lab results are attached to a subject row.
const LabSlots = 2

// Env is what extractors need to know about the run.
type Env struct {
	// Now anchors derived fields such as age and reporting status.
	Now time.Time
	// Loc is the zone timestamps are rendered in.
	Loc *time.Location
}

// Extractor converts one entity type.
type Extractor interface {
	Entity() schema.Entity

	// Columns lists the source columns needed to produce fields.
	Columns(fields []schema.Field) []string

	// Prefetch runs the bulk lookups fields need for recs and returns lk
	// extended with them. lk itself is never modified.
	Prefetch(ctx context.Context, src storage.Source, recs []records.Record, fields []schema.Field, lk *Lookups) (*Lookups, error)

	// Extract produces one row per record, in input order.
	Extract(recs []records.Record, fields []schema.Field, lk *Lookups) []records.Record
}

// New returns the extractor for e.
func New(e schema.Entity, env Env) Extractor {
	if env.Now.IsZero() {
		env.Now = time.Now()
	}
	f := format.New(env.Loc)
	switch e {
	case schema.Patients:
		return &subjectExtractor{env: env, f: f}
	case schema.Assessments:
		return &reportExtractor{childExtractor{entity: e, f: f}}
	case schema.Transfers:
		return &transferExtractor{childExtractor{entity: e, f: f}}
	case schema.Laboratories, schema.Vaccines, schema.CloseContacts, schema.Histories:
		return &childExtractor{entity: e, f: f}
	}
	panic(fmt.Sprintf("extract: no extractor for %v", e))
}

// Lookups are the prefetch tables of one page. They are read-only once built
// and dropped with the page.
type Lookups struct {
	// Identifiers maps subject id to the subject's alternate identifier columns.
	Identifiers   map[int64]records.Record
	Jurisdictions map[int64]storage.Jurisdiction
	Users         map[int64]string
	Transfers     map[int64]storage.Transfer
	Labs          map[int64][]records.Record
	// Symptoms is keyed by report id.
	Symptoms map[int64][]storage.SymptomValue
}

// PageLookups builds the tables that come straight from the subject page.
func PageLookups(page []records.Record) *Lookups {
	ids := make(map[int64]records.Record, len(page))
	for _, r := range page {
		rec := make(records.Record, len(schema.IdentifierColumns))
		for _, c := range schema.IdentifierColumns {
			rec[c] = r[c]
		}
		ids[r.ID()] = rec
	}
	return &Lookups{Identifiers: ids}
}

func (lk *Lookups) clone() *Lookups {
	if lk == nil {
		return &Lookups{}
	}
	cp := *lk
	return &cp
}

func (lk *Lookups) identifiers(subjectID int64) records.Record {
	if lk == nil {
		return nil
	}
	return lk.Identifiers[subjectID]
}

func (lk *Lookups) jurisdiction(id int64) storage.Jurisdiction {
	if lk == nil {
		return storage.Jurisdiction{}
	}
	return lk.Jurisdictions[id]
}

func (lk *Lookups) user(id int64) string {
	if lk == nil {
		return ""
	}
	return lk.Users[id]
}

// mergeJurisdictions returns a new map holding base and add.
func mergeJurisdictions(base, add map[int64]storage.Jurisdiction) map[int64]storage.Jurisdiction {
	out := make(map[int64]storage.Jurisdiction, len(base)+len(add))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range add {
		out[k] = v
	}
	return out
}

func mergeUsers(base, add map[int64]string) map[int64]string {
	out := make(map[int64]string, len(base)+len(add))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range add {
		out[k] = v
	}
	return out
}

// columnSet collects column names once, in first-seen order.
type columnSet struct {
	seen map[string]struct{}
	cols []string
}

func (s *columnSet) add(cols ...string) {
	if s.seen == nil {
		s.seen = make(map[string]struct{})
	}
	for _, c := range cols {
		if _, ok := s.seen[c]; ok {
			continue
		}
		s.seen[c] = struct{}{}
		s.cols = append(s.cols, c)
	}
}

func int64s(recs []records.Record, key string) []int64 {
	out := make([]int64, 0, len(recs))
	for _, r := range recs {
		if id, ok := r.Int64(key); ok {
			out = append(out, id)
		}
	}
	return out
}
