package extract

import (
	"context"
	"strings"
	"time"

	"caseexport/internal/format"
	"caseexport/internal/schema"
	"caseexport/internal/storage"
	"caseexport/pkg/records"
)

// Monitoring status labels.
const (
	StatusClosed          = "Closed"
	StatusPUI             = "PUI"
	StatusSymptomatic     = "Symptomatic"
	StatusNonReporting    = "Non-Reporting"
	StatusAsymptomatic    = "Asymptomatic"
	StatusRequiringReview = "Requiring Review"
	StatusReporting       = "Reporting"

	ContinuousExposure = "Continuous Exposure"
)

const (
	reportingWindow  = 24 * time.Hour
	monitoringDays   = 14
	purgeDelayDays   = 14
	isolationMinDays = 10
)

// subjectInputs lists the stored columns behind each derived subject field.
var subjectInputs = map[string][]string{
	"name":                {"first_name", "middle_name", "last_name"},
	"age":                 {"date_of_birth"},
	"workflow":            {"isolation"},
	"status":              {"monitoring", "isolation", "public_health_action", "symptom_onset", "latest_assessment_at"},
	"end_of_monitoring":   {"isolation", "continuous_exposure", "last_date_of_exposure", "created_at"},
	"expected_purge_date": {"monitoring", "closed_at"},
	"jurisdiction_name":   {"jurisdiction_id"},
	"jurisdiction_path":   {"jurisdiction_id"},
	"creator":             {"creator_id"},
}

type subjectExtractor struct {
	env Env
	f   format.Formatter
}

func (x *subjectExtractor) Entity() schema.Entity { return schema.Patients }

// Columns always includes the identifier columns: child entities of the same
// page read them from the subject rows.
func (x *subjectExtractor) Columns(fields []schema.Field) []string {
	var s columnSet
	s.add("id")
	s.add(schema.IdentifierColumns...)
	for _, fd := range fields {
		if fd.Origin == schema.Stored {
			s.add(fd.Name)
			continue
		}
		s.add(subjectInputs[fd.Name]...)
	}
	return s.cols
}

type subjectNeeds struct {
	jurisdictions, creators, transfers, labs bool
}

func needsOf(fields []schema.Field) subjectNeeds {
	var n subjectNeeds
	for _, fd := range fields {
		switch {
		case fd.Name == "jurisdiction_name" || fd.Name == "jurisdiction_path":
			n.jurisdictions = true
		case fd.Name == "creator":
			n.creators = true
		case fd.Name == "transferred_from" || fd.Name == "transferred_to" || fd.Name == "latest_transfer_at":
			n.transfers = true
		case strings.HasPrefix(fd.Name, "lab_"):
			n.labs = true
		}
	}
	return n
}

// Prefetch issues at most one query per lookup kind (per id chunk): latest
// transfers, jurisdictions (own and transfer endpoints), creators and recent
// labs.
func (x *subjectExtractor) Prefetch(ctx context.Context, src storage.Source, recs []records.Record, fields []schema.Field, lk *Lookups) (*Lookups, error) {
	n := needsOf(fields)
	if len(recs) == 0 || n == (subjectNeeds{}) {
		return lk, nil
	}
	out := lk.clone()
	subjectIDs := int64s(recs, "id")

	var jurIDs []int64
	if n.jurisdictions {
		jurIDs = append(jurIDs, int64s(recs, "jurisdiction_id")...)
	}
	if n.transfers {
		tr, err := src.LatestTransfers(ctx, subjectIDs)
		if err != nil {
			return nil, err
		}
		out.Transfers = tr
		for _, t := range tr {
			jurIDs = append(jurIDs, t.FromJurisdictionID, t.ToJurisdictionID)
		}
	}
	if len(jurIDs) > 0 {
		jur, err := src.Jurisdictions(ctx, jurIDs)
		if err != nil {
			return nil, err
		}
		out.Jurisdictions = mergeJurisdictions(out.Jurisdictions, jur)
	}
	if n.creators {
		users, err := src.Users(ctx, int64s(recs, "creator_id"))
		if err != nil {
			return nil, err
		}
		out.Users = mergeUsers(out.Users, users)
	}
	if n.labs {
		labs, err := src.RecentLabs(ctx, subjectIDs, LabSlots)
		if err != nil {
			return nil, err
		}
		out.Labs = labs
	}
	return out, nil
}

func (x *subjectExtractor) Extract(recs []records.Record, fields []schema.Field, lk *Lookups) []records.Record {
	out := make([]records.Record, 0, len(recs))
	for _, r := range recs {
		row := make(records.Record, len(fields))
		for _, fd := range fields {
			if fd.Origin == schema.Stored {
				row[fd.Name] = x.f.Value(fd.Type, r[fd.Name])
				continue
			}
			row[fd.Name] = x.derive(fd, r, lk)
		}
		out = append(out, row)
	}
	return out
}

func (x *subjectExtractor) derive(fd schema.Field, r records.Record, lk *Lookups) any {
	switch fd.Name {
	case "name":
		return DisplayName(r.String("first_name"), r.String("middle_name"), r.String("last_name"))
	case "age":
		return Age(r["date_of_birth"], x.env.Now)
	case "workflow":
		if format.Bool(r["isolation"]) {
			return "Isolation"
		}
		return "Exposure"
	case "status":
		return Status(r, x.env.Now)
	case "end_of_monitoring":
		return x.endOfMonitoring(r)
	case "expected_purge_date":
		if format.Bool(r["monitoring"]) {
			return ""
		}
		return x.plusDays(r["closed_at"], purgeDelayDays, true)
	case "jurisdiction_name":
		id, _ := r.Int64("jurisdiction_id")
		return lk.jurisdiction(id).Name
	case "jurisdiction_path":
		id, _ := r.Int64("jurisdiction_id")
		return lk.jurisdiction(id).Path
	case "creator":
		id, _ := r.Int64("creator_id")
		return lk.user(id)
	case "transferred_from", "transferred_to", "latest_transfer_at":
		return x.transfer(fd.Name, r.ID(), lk)
	}
	if strings.HasPrefix(fd.Name, "lab_") {
		return x.lab(fd, r.ID(), lk)
	}
	return x.f.Value(fd.Type, nil)
}

func (x *subjectExtractor) transfer(name string, subjectID int64, lk *Lookups) any {
	if lk == nil {
		return ""
	}
	t, ok := lk.Transfers[subjectID]
	if !ok {
		return ""
	}
	switch name {
	case "transferred_from":
		return lk.jurisdiction(t.FromJurisdictionID).Path
	case "transferred_to":
		return lk.jurisdiction(t.ToJurisdictionID).Path
	default:
		return x.f.Timestamp(t.CreatedAt)
	}
}

// lab renders lab_<n>_<column> from the n-th most recent result.
func (x *subjectExtractor) lab(fd schema.Field, subjectID int64, lk *Lookups) any {
	rest := strings.TrimPrefix(fd.Name, "lab_")
	slot, col, ok := strings.Cut(rest, "_")
	if !ok || len(slot) != 1 || slot[0] < '1' || slot[0] > '0'+LabSlots {
		return x.f.Value(fd.Type, nil)
	}
	if col == "type" {
		col = "lab_type"
	}
	idx := int(slot[0] - '1')
	var labs []records.Record
	if lk != nil {
		labs = lk.Labs[subjectID]
	}
	if idx >= len(labs) {
		return x.f.Value(fd.Type, nil)
	}
	return x.f.Value(fd.Type, labs[idx][col])
}

// endOfMonitoring is blank in isolation. In exposure it is last exposure
// (or enrollment) plus the monitoring period, unless exposure is continuous.
func (x *subjectExtractor) endOfMonitoring(r records.Record) string {
	if format.Bool(r["isolation"]) {
		return ""
	}
	if format.Bool(r["continuous_exposure"]) {
		return ContinuousExposure
	}
	if r.Has("last_date_of_exposure") {
		return x.plusDays(r["last_date_of_exposure"], monitoringDays, false)
	}
	return x.plusDays(r["created_at"], monitoringDays, true)
}

// plusDays adds days to a date or timestamp column. Timestamps are moved into
// the run's zone first so the calendar day matches the rendered timestamp.
func (x *subjectExtractor) plusDays(v any, days int, timestamp bool) string {
	t, ok := format.ParseTime(v)
	if !ok {
		return ""
	}
	if timestamp {
		t = t.In(x.f.Loc)
	}
	return t.AddDate(0, 0, days).Format(format.DateLayout)
}

// DisplayName renders "Last, First Middle", dropping missing parts.
func DisplayName(first, middle, last string) string {
	given := strings.TrimSpace(strings.Join(strings.Fields(first+" "+middle), " "))
	last = strings.TrimSpace(last)
	switch {
	case last == "":
		return given
	case given == "":
		return last
	}
	return last + ", " + given
}

// Age is whole years between date of birth and now, or nil when unknown.
func Age(dob any, now time.Time) any {
	t, ok := format.ParseTime(dob)
	if !ok {
		return nil
	}
	years := now.Year() - t.Year()
	if now.Month() < t.Month() || (now.Month() == t.Month() && now.Day() < t.Day()) {
		years--
	}
	if years < 0 {
		return nil
	}
	return int64(years)
}

// Status derives the monitoring status label of a subject.
//
// Closed subjects are Closed. In exposure: an active public health action
// makes a PUI, a symptom onset makes Symptomatic, no report within the last
// day makes Non-Reporting, otherwise Asymptomatic. In isolation: Non-Reporting
// by the same rule, then Requiring Review once the onset is at least ten days
// old, otherwise Reporting.
func Status(r records.Record, now time.Time) string {
	if !format.Bool(r["monitoring"]) {
		return StatusClosed
	}
	latest, reported := format.ParseTime(r["latest_assessment_at"])
	nonReporting := !reported || now.Sub(latest) > reportingWindow

	if !format.Bool(r["isolation"]) {
		if pha := r.String("public_health_action"); pha != "" && !strings.EqualFold(pha, "None") {
			return StatusPUI
		}
		if r.Has("symptom_onset") {
			return StatusSymptomatic
		}
		if nonReporting {
			return StatusNonReporting
		}
		return StatusAsymptomatic
	}

	if nonReporting {
		return StatusNonReporting
	}
	if onset, ok := format.ParseTime(r["symptom_onset"]); ok && !now.Before(onset.AddDate(0, 0, isolationMinDays)) {
		return StatusRequiringReview
	}
	return StatusReporting
}
