// Package format renders raw column values into export cells.
//
// Every extractor goes through Value, keyed by the field's declared schema.Type,
// so phone numbers, dates and booleans look the same on every sheet.
//
// Cell values are one of: string, int64, float64, bool or nil (blank).
package format

import (
	"strconv"
	"strings"
	"time"

	"caseexport/internal/schema"
	"caseexport/pkg/records"
)

// DateLayout is the rendering of date fields.
const DateLayout = "2006-01-02"

// Formatter renders values for one run. Loc is the zone timestamps are shown in.
type Formatter struct {
	Loc *time.Location
}

// New returns a Formatter for loc (UTC when nil).
func New(loc *time.Location) Formatter {
	if loc == nil {
		loc = time.UTC
	}
	return Formatter{Loc: loc}
}

// Value formats v as a cell of type t.
func (f Formatter) Value(t schema.Type, v any) any {
	switch t {
	case schema.TypeInt:
		return Int(v)
	case schema.TypeFloat:
		return Float(v)
	case schema.TypeDate:
		return Date(v)
	case schema.TypeTimestamp:
		return f.Timestamp(v)
	case schema.TypeBool:
		return Bool(v)
	case schema.TypePhone:
		return Phone(records.ToString(v))
	case schema.TypeRichText:
		return RichText(records.ToString(v))
	case schema.TypeSymptom:
		return Symptom(v)
	default:
		return records.ToString(v)
	}
}

// Int returns v as int64, or nil if v is blank or not integral.
func Int(v any) any {
	if n, ok := records.ToInt64(v); ok {
		return n
	}
	return nil
}

// Float returns v as float64, or nil if v is blank or not numeric.
func Float(v any) any {
	switch t := v.(type) {
	case float64:
		return t
	case float32:
		return float64(t)
	case nil:
		return nil
	}
	if n, ok := records.ToInt64(v); ok {
		return float64(n)
	}
	s := records.ToString(v)
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return nil
}

// Bool returns v as a bool. Absent or unrecognized values are false.
func Bool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case nil:
		return false
	}
	if n, ok := records.ToInt64(v); ok {
		return n != 0
	}
	switch strings.ToLower(records.ToString(v)) {
	case "t", "true", "y", "yes", "1":
		return true
	}
	return false
}

// Date renders v as YYYY-MM-DD, or "" if v is blank or unparseable.
//
// Dates are calendar values: a time.Time is rendered in its own zone, never
// shifted into the run's timezone.
func Date(v any) string {
	t, ok := ParseTime(v)
	if !ok {
		return ""
	}
	return t.Format(DateLayout)
}

// Timestamp renders v as RFC 3339 in the formatter's zone, or "".
func (f Formatter) Timestamp(v any) string {
	t, ok := ParseTime(v)
	if !ok {
		return ""
	}
	return t.In(f.Loc).Format(time.RFC3339)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	DateLayout,
}

// ParseTime accepts time.Time and the textual layouts SQL drivers return for
// DATE, DATETIME and TIMESTAMP columns. Zone-less text is read as UTC.
func ParseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if t.IsZero() {
			return time.Time{}, false
		}
		return t, true
	case *time.Time:
		if t == nil || t.IsZero() {
			return time.Time{}, false
		}
		return *t, true
	}
	s := records.ToString(v)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if ts, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// Phone normalizes a telephone number to XXX-XXX-XXXX.
//
// Anything that does not reduce to ten digits, after dropping a leading
// country code 1, renders blank.
func Phone(s string) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			digits = append(digits, c)
		}
	}
	if len(digits) == 11 && digits[0] == '1' {
		digits = digits[1:]
	}
	if len(digits) != 10 {
		return ""
	}
	return string(digits[0:3]) + "-" + string(digits[3:6]) + "-" + string(digits[6:10])
}

// Symptom keeps a reported symptom value in its native kind.
func Symptom(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case bool:
		return t
	case float32:
		return float64(t)
	case float64:
		return t
	}
	if n, ok := records.ToInt64(v); ok {
		return n
	}
	s := records.ToString(v)
	if s == "" {
		return nil
	}
	return s
}
