package schema

import "strconv"

// Virtual field names.
const (
	RaceField     = "race"
	SymptomsField = "symptoms"
)

// Subject identifier columns copied onto every child row.
const (
	IDStateLocal = "user_defined_id_statelocal"
	IDCDC        = "user_defined_id_cdc"
	IDNNDSS      = "user_defined_id_nndss"
)

// IdentifierColumns are the subject columns backing Parent fields.
var IdentifierColumns = []string{IDStateLocal, IDCDC, IDNNDSS}

// raceFields is the fixed, ordered expansion of the race virtual field.
var raceFields = []Field{
	stored("white", "White", TypeBool),
	stored("black_or_african_american", "Black or African American", TypeBool),
	stored("american_indian_or_alaska_native", "American Indian or Alaska Native", TypeBool),
	stored("asian", "Asian", TypeBool),
	stored("native_hawaiian_or_other_pacific_islander", "Native Hawaiian or Other Pacific Islander", TypeBool),
}

func identifierFields() []Field {
	return []Field{
		{Name: IDStateLocal, Header: "State/Local ID", Type: TypeString, Origin: Parent},
		{Name: IDCDC, Header: "CDC ID", Type: TypeString, Origin: Parent},
		{Name: IDNNDSS, Header: "NNDSS ID", Type: TypeString, Origin: Parent},
	}
}

func childHead() []Field {
	return append([]Field{
		stored("id", "ID", TypeInt),
		stored("patient_id", "Patient ID", TypeInt),
	}, identifierFields()...)
}

func childTail() []Field {
	return []Field{
		stored("created_at", "Created At", TypeTimestamp),
		stored("updated_at", "Updated At", TypeTimestamp),
	}
}

func concat(parts ...[]Field) []Field {
	var out []Field
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

var patientFields = concat(
	[]Field{
		stored("id", "Patient ID", TypeInt),
		stored(IDStateLocal, "State/Local ID", TypeString),
		stored(IDCDC, "CDC ID", TypeString),
		stored(IDNNDSS, "NNDSS ID", TypeString),
		stored("first_name", "First Name", TypeString),
		stored("middle_name", "Middle Name", TypeString),
		stored("last_name", "Last Name", TypeString),
		derived("name", "Monitoree", TypeString),
		stored("date_of_birth", "Date of Birth", TypeDate),
		derived("age", "Age", TypeInt),
		stored("sex", "Sex at Birth", TypeString),
		stored("gender_identity", "Gender Identity", TypeString),
		stored("sexual_orientation", "Sexual Orientation", TypeString),
		virtual(RaceField, "Race", TypeRace),
	},
	raceFields,
	[]Field{
		stored("ethnicity", "Ethnicity", TypeString),
		stored("primary_language", "Primary Language", TypeString),
		stored("secondary_language", "Secondary Language", TypeString),
		stored("interpretation_required", "Interpretation Required?", TypeBool),
		stored("nationality", "Nationality", TypeString),
		stored("address_line_1", "Address Line 1", TypeString),
		stored("address_line_2", "Address Line 2", TypeString),
		stored("address_city", "Address City", TypeString),
		stored("address_state", "Address State", TypeString),
		stored("address_zip", "Address Zip", TypeString),
		stored("address_county", "Address County", TypeString),
		stored("foreign_address_country", "Foreign Address Country", TypeString),
		stored("primary_telephone", "Primary Telephone", TypePhone),
		stored("primary_telephone_type", "Primary Telephone Type", TypeString),
		stored("secondary_telephone", "Secondary Telephone", TypePhone),
		stored("secondary_telephone_type", "Secondary Telephone Type", TypeString),
		stored("email", "Email", TypeString),
		stored("preferred_contact_method", "Preferred Contact Method", TypeString),
		stored("preferred_contact_time", "Preferred Contact Time", TypeString),
		stored("port_of_origin", "Port of Origin", TypeString),
		stored("date_of_departure", "Date of Departure", TypeDate),
		stored("flight_or_vessel_number", "Flight or Vessel Number", TypeString),
		stored("date_of_arrival", "Date of Arrival", TypeDate),
		stored("travel_related_notes", "Travel Related Notes", TypeRichText),
		stored("potential_exposure_location", "Exposure Location", TypeString),
		stored("potential_exposure_country", "Exposure Country", TypeString),
		stored("contact_of_known_case", "Contact of Known Case?", TypeBool),
		stored("contact_of_known_case_id", "Contact of Known Case ID", TypeString),
		stored("healthcare_personnel", "Healthcare Personnel?", TypeBool),
		stored("healthcare_personnel_facility_name", "Healthcare Personnel Facility", TypeString),
		stored("exposure_notes", "Exposure Notes", TypeRichText),
		stored("last_date_of_exposure", "Last Date of Exposure", TypeDate),
		stored("continuous_exposure", "Continuous Exposure?", TypeBool),
		stored("symptom_onset", "Symptom Onset", TypeDate),
		stored("case_status", "Case Status", TypeString),
		derived("workflow", "Workflow", TypeString),
		derived("status", "Monitoring Status", TypeString),
		stored("monitoring_reason", "Reason for Closure", TypeString),
		stored("monitoring_plan", "Monitoring Plan", TypeString),
		stored("exposure_risk_assessment", "Risk Assessment", TypeString),
		stored("public_health_action", "Latest Public Health Action", TypeString),
		stored("pause_notifications", "Notifications Paused?", TypeBool),
		stored("extended_isolation", "Extended Isolation Date", TypeDate),
		derived("end_of_monitoring", "End of Monitoring", TypeString),
		derived("expected_purge_date", "Expected Purge Date", TypeDate),
		stored("assigned_user", "Assigned User", TypeInt),
		derived("jurisdiction_name", "Jurisdiction", TypeString),
		derived("jurisdiction_path", "Full Assigned Jurisdiction Path", TypeString),
		derived("creator", "Enroller", TypeString),
		derived("transferred_from", "Transferred From", TypeString),
		derived("transferred_to", "Transferred To", TypeString),
		derived("latest_transfer_at", "Latest Transfer Date", TypeTimestamp),
		stored("latest_assessment_at", "Latest Report", TypeTimestamp),
		stored("created_at", "Enrolled Date", TypeTimestamp),
		stored("updated_at", "Last Updated", TypeTimestamp),
		stored("closed_at", "Closed At", TypeTimestamp),
	},
	labSummaryFields(1),
	labSummaryFields(2),
)

func labSummaryFields(n int) []Field {
	p := "lab_" + strconv.Itoa(n) + "_"
	h := "Lab " + strconv.Itoa(n) + " "
	return []Field{
		derived(p+"type", h+"Type", TypeString),
		derived(p+"specimen_collection", h+"Specimen Collection Date", TypeDate),
		derived(p+"report", h+"Report Date", TypeDate),
		derived(p+"result", h+"Result", TypeString),
	}
}

var assessmentFields = concat(
	childHead(),
	[]Field{
		stored("symptomatic", "Symptomatic", TypeBool),
		stored("who_reported", "Who Reported", TypeString),
	},
	childTail(),
	[]Field{virtual(SymptomsField, "Symptoms Reported", TypeSymptoms)},
)

var laboratoryFields = concat(
	childHead(),
	[]Field{
		stored("lab_type", "Lab Test Type", TypeString),
		stored("specimen_collection", "Specimen Collection Date", TypeDate),
		stored("report", "Report Date", TypeDate),
		stored("result", "Result", TypeString),
	},
	childTail(),
)

var vaccineFields = concat(
	childHead(),
	[]Field{
		stored("group_name", "Vaccine Group", TypeString),
		stored("product_name", "Product Name", TypeString),
		stored("administration_date", "Administration Date", TypeDate),
		stored("dose_number", "Dose Number", TypeString),
		stored("notes", "Notes", TypeRichText),
	},
	childTail(),
)

var closeContactFields = concat(
	childHead(),
	[]Field{
		stored("first_name", "First Name", TypeString),
		stored("last_name", "Last Name", TypeString),
		stored("primary_telephone", "Phone Number", TypePhone),
		stored("email", "Email", TypeString),
		stored("last_date_of_exposure", "Last Date of Exposure", TypeDate),
		stored("assigned_user", "Assigned User", TypeInt),
		stored("contact_attempts", "Contact Attempts", TypeInt),
		stored("notes", "Notes", TypeRichText),
		stored("enrolled_id", "Enrolled ID", TypeInt),
	},
	childTail(),
)

var transferFields = concat(
	childHead(),
	[]Field{
		derived("who", "Who Initiated Transfer", TypeString),
		derived("from_jurisdiction", "From Jurisdiction", TypeString),
		derived("to_jurisdiction", "To Jurisdiction", TypeString),
	},
	childTail(),
)

var historyFields = concat(
	childHead(),
	[]Field{
		stored("created_by", "History Creator", TypeString),
		stored("history_type", "History Type", TypeString),
		stored("comment", "History Comment", TypeRichText),
	},
	childTail(),
)

var registry = [entityCount][]Field{
	Patients:      patientFields,
	Assessments:   assessmentFields,
	Laboratories:  laboratoryFields,
	Vaccines:      vaccineFields,
	CloseContacts: closeContactFields,
	Transfers:     transferFields,
	Histories:     historyFields,
}

var index = func() [entityCount]map[string]Field {
	var idx [entityCount]map[string]Field
	for e := Entity(0); e < entityCount; e++ {
		m := make(map[string]Field, len(registry[e]))
		for _, f := range registry[e] {
			if _, dup := m[f.Name]; dup {
				panic("schema: duplicate field " + e.Key() + "." + f.Name)
			}
			m[f.Name] = f
		}
		idx[e] = m
	}
	return idx
}()

// Fields returns a copy of the entity's registry in canonical order,
// including virtual fields and the concrete fields they expand to.
func Fields(e Entity) []Field {
	if e >= entityCount {
		return nil
	}
	return append([]Field(nil), registry[e]...)
}

// ExportableNames lists the field names a configuration may select for e,
// in canonical order, with race selected through its virtual field only.
func ExportableNames(e Entity) []string {
	var out []string
	for _, f := range Fields(e) {
		if e == Patients && isRaceField(f.Name) {
			continue
		}
		out = append(out, f.Name)
	}
	return out
}

// Lookup finds a registry entry by name.
func Lookup(e Entity, name string) (Field, bool) {
	if e >= entityCount {
		return Field{}, false
	}
	f, ok := index[e][name]
	return f, ok
}

// Header returns the canonical display header of a field, or "" if unknown.
func Header(e Entity, name string) string {
	f, _ := Lookup(e, name)
	return f.Header
}

// RaceFields returns the ordered concrete expansion of the race field.
func RaceFields() []Field {
	return append([]Field(nil), raceFields...)
}

func isRaceField(name string) bool {
	for _, f := range raceFields {
		if f.Name == name {
			return true
		}
	}
	return false
}
