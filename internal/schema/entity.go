// Package schema is the field registry of the export: which entity types exist,
// which fields each one exposes, their display headers and how each field is
// sourced and formatted.
//
// Everything here is static data built at init and never mutated.
package schema

import "fmt"

// Entity is an exportable entity type.
//
// The declaration order is the output order: sheets in a workbook and the
// order of artifacts in separate-file mode follow it.
type Entity uint8

const (
	Patients Entity = iota
	Assessments
	Laboratories
	Vaccines
	CloseContacts
	Transfers
	Histories

	entityCount
)

var entityKeys = [entityCount]string{
	Patients:      "patients",
	Assessments:   "assessments",
	Laboratories:  "laboratories",
	Vaccines:      "vaccines",
	CloseContacts: "close_contacts",
	Transfers:     "transfers",
	Histories:     "histories",
}

var entityLabels = [entityCount]string{
	Patients:      "Monitorees",
	Assessments:   "Reports",
	Laboratories:  "Lab Results",
	Vaccines:      "Vaccinations",
	CloseContacts: "Close Contacts",
	Transfers:     "Transfers",
	Histories:     "History",
}

var entityTables = [entityCount]string{
	Patients:      "patients",
	Assessments:   "assessments",
	Laboratories:  "laboratories",
	Vaccines:      "vaccines",
	CloseContacts: "close_contacts",
	Transfers:     "transfers",
	Histories:     "histories",
}

// Entities returns every entity type in output order.
func Entities() []Entity {
	out := make([]Entity, 0, entityCount)
	for e := Entity(0); e < entityCount; e++ {
		out = append(out, e)
	}
	return out
}

// ParseEntity maps a configuration key to an Entity.
func ParseEntity(key string) (Entity, bool) {
	for e := Entity(0); e < entityCount; e++ {
		if entityKeys[e] == key {
			return e, true
		}
	}
	return 0, false
}

// Key is the configuration key ("close_contacts").
func (e Entity) Key() string {
	if e >= entityCount {
		return fmt.Sprintf("entity(%d)", uint8(e))
	}
	return entityKeys[e]
}

func (e Entity) String() string { return e.Key() }

// Label is the fallback sheet/file label ("Close Contacts").
func (e Entity) Label() string {
	if e >= entityCount {
		return e.Key()
	}
	return entityLabels[e]
}

// Table is the relational table holding the entity's rows.
func (e Entity) Table() string {
	if e >= entityCount {
		return ""
	}
	return entityTables[e]
}

// IsChild reports whether the entity hangs off a subject via patient_id.
func (e Entity) IsChild() bool {
	return e != Patients && e < entityCount
}
