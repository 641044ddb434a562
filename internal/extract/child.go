package extract

import (
	"context"

	"caseexport/internal/format"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/pkg/records"
)

// childExtractor handles entities whose rows hang off a subject. Stored
// fields are copied from the row, Parent fields from the subject's
// identifiers. A row whose subject is not in the page keeps blank identifiers.
type childExtractor struct {
	entity schema.Entity
	f      format.Formatter
}

func (c *childExtractor) Entity() schema.Entity { return c.entity }

func (c *childExtractor) Columns(fields []schema.Field) []string {
	var s columnSet
	s.add("id", "patient_id")
	for _, fd := range fields {
		if fd.Origin == schema.Stored {
			s.add(fd.Name)
		}
	}
	return s.cols
}

func (c *childExtractor) Prefetch(_ context.Context, _ storage.Source, _ []records.Record, _ []schema.Field, lk *Lookups) (*Lookups, error) {
	return lk, nil
}

func (c *childExtractor) Extract(recs []records.Record, fields []schema.Field, lk *Lookups) []records.Record {
	out := make([]records.Record, 0, len(recs))
	for _, r := range recs {
		pid, _ := r.Int64("patient_id")
		ids := lk.identifiers(pid)
		row := make(records.Record, len(fields))
		for _, fd := range fields {
			switch fd.Origin {
			case schema.Stored:
				row[fd.Name] = c.f.Value(fd.Type, r[fd.Name])
			case schema.Parent:
				row[fd.Name] = c.f.Value(fd.Type, ids[fd.Name])
			}
		}
		out = append(out, row)
	}
	return out
}

// reportExtractor adds one column per discovered symptom to report rows.
type reportExtractor struct {
	childExtractor
}

func hasSymptomFields(fields []schema.Field) bool {
	for _, fd := range fields {
		if fd.Type == schema.TypeSymptom {
			return true
		}
	}
	return false
}

func (x *reportExtractor) Prefetch(ctx context.Context, src storage.Source, recs []records.Record, fields []schema.Field, lk *Lookups) (*Lookups, error) {
	if !hasSymptomFields(fields) || len(recs) == 0 {
		return lk, nil
	}
	sym, err := src.Symptoms(ctx, int64s(recs, "id"))
	if err != nil {
		return nil, err
	}
	out := lk.clone()
	out.Symptoms = sym
	return out, nil
}

// Extract leaves a symptom column absent when the report has no value for
// it, including reports with no condition at all.
func (x *reportExtractor) Extract(recs []records.Record, fields []schema.Field, lk *Lookups) []records.Record {
	rows := x.childExtractor.Extract(recs, fields, lk)
	if !hasSymptomFields(fields) || lk == nil {
		return rows
	}
	for i, r := range recs {
		vals := lk.Symptoms[r.ID()]
		if len(vals) == 0 {
			continue
		}
		byName := make(map[string]any, len(vals))
		for _, v := range vals {
			byName[v.Name] = v.Value
		}
		for _, fd := range fields {
			if fd.Type != schema.TypeSymptom {
				continue
			}
			if v, ok := byName[fd.Name]; ok {
				rows[i][fd.Name] = format.Symptom(v)
			}
		}
	}
	return rows
}

// transferExtractor resolves the jurisdictions and initiating user of each
// transfer.
type transferExtractor struct {
	childExtractor
}

func (x *transferExtractor) Columns(fields []schema.Field) []string {
	cols := x.childExtractor.Columns(fields)
	var s columnSet
	s.add(cols...)
	for _, fd := range fields {
		switch fd.Name {
		case "who":
			s.add("who_id")
		case "from_jurisdiction":
			s.add("from_jurisdiction_id")
		case "to_jurisdiction":
			s.add("to_jurisdiction_id")
		}
	}
	return s.cols
}

func (x *transferExtractor) Prefetch(ctx context.Context, src storage.Source, recs []records.Record, fields []schema.Field, lk *Lookups) (*Lookups, error) {
	var needJur, needUsers bool
	for _, fd := range fields {
		switch fd.Name {
		case "from_jurisdiction", "to_jurisdiction":
			needJur = true
		case "who":
			needUsers = true
		}
	}
	if len(recs) == 0 || (!needJur && !needUsers) {
		return lk, nil
	}
	out := lk.clone()
	if needJur {
		ids := append(int64s(recs, "from_jurisdiction_id"), int64s(recs, "to_jurisdiction_id")...)
		jur, err := src.Jurisdictions(ctx, ids)
		if err != nil {
			return nil, err
		}
		out.Jurisdictions = mergeJurisdictions(out.Jurisdictions, jur)
	}
	if needUsers {
		users, err := src.Users(ctx, int64s(recs, "who_id"))
		if err != nil {
			return nil, err
		}
		out.Users = mergeUsers(out.Users, users)
	}
	return out, nil
}

func (x *transferExtractor) Extract(recs []records.Record, fields []schema.Field, lk *Lookups) []records.Record {
	rows := x.childExtractor.Extract(recs, fields, lk)
	for i, r := range recs {
		for _, fd := range fields {
			if fd.Origin != schema.Derived {
				continue
			}
			var v string
			switch fd.Name {
			case "who":
				id, _ := r.Int64("who_id")
				v = lk.user(id)
			case "from_jurisdiction":
				id, _ := r.Int64("from_jurisdiction_id")
				v = lk.jurisdiction(id).Path
			case "to_jurisdiction":
				id, _ := r.Int64("to_jurisdiction_id")
				v = lk.jurisdiction(id).Path
			}
			rows[i][fd.Name] = v
		}
	}
	return rows
}
