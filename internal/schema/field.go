package schema

// Type declares how a field's value is formatted. Every extractor formats
// through the same Type, so a new entity cannot skip a formatting rule.
type Type uint8

const (
	TypeString Type = iota
	TypeInt
	TypeFloat
	TypeDate      // YYYY-MM-DD
	TypeTimestamp // RFC 3339 in the run's timezone
	TypeBool      // never null; absent is false
	TypePhone     // normalized display form, blank unless a plausible 10-digit number
	TypeRichText  // markup reduced to plain text
	TypeSymptom   // a discovered symptom value (bool, int or float as reported)

	// Virtual types. They never survive resolution.
	TypeRace
	TypeSymptoms
)

// Origin declares where a field's value comes from.
type Origin uint8

const (
	// Stored fields are columns of the entity's own table with the same name.
	Stored Origin = iota
	// Parent fields are copied from the subject that owns a child record.
	Parent
	// Derived fields are computed by the extractor from stored columns and
	// prefetched lookups.
	Derived
	// Virtual fields expand into several concrete fields at resolution time.
	Virtual
)

// Field is one registry entry.
type Field struct {
	Name   string
	Header string
	Type   Type
	Origin Origin
}

// IsVirtual reports whether the field must be expanded before extraction.
func (f Field) IsVirtual() bool { return f.Origin == Virtual }

func stored(name, header string, t Type) Field {
	return Field{Name: name, Header: header, Type: t, Origin: Stored}
}

func derived(name, header string, t Type) Field {
	return Field{Name: name, Header: header, Type: t, Origin: Derived}
}

func virtual(name, header string, t Type) Field {
	return Field{Name: name, Header: header, Type: t, Origin: Virtual}
}

// SymptomField builds the concrete field for one discovered symptom.
func SymptomField(name, label string) Field {
	return Field{Name: name, Header: label, Type: TypeSymptom, Origin: Derived}
}
