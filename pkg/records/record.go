// Package records defines the loosely typed record shared by sources,
// extractors and writers.
package records

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is a single row keyed by column or field name.
//
// Sources produce Records with raw driver values (int64, string, []byte,
// time.Time, bool, nil). Extractors produce Records whose values are already
// formatted scalars (string, int64, float64, bool) ready for a writer.
type Record map[string]any

// Int64 returns the value under key as an int64.
//
// It accepts every integer width, float64 values with no fractional part,
// and decimal strings/bytes as returned by some drivers for numeric columns.
func (r Record) Int64(key string) (int64, bool) {
	return ToInt64(r[key])
}

// ID is shorthand for Int64("id").
func (r Record) ID() int64 {
	id, _ := r.Int64("id")
	return id
}

// String returns the trimmed string form of the value under key; nil is "".
func (r Record) String(key string) string {
	return ToString(r[key])
}

// Has reports whether key is present with a non-nil value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}

// ToInt64 converts driver-native numeric representations into an int64.
func ToInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint:
		if uint64(t) > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	case float64:
		return floatToInt64(t)
	case float32:
		return floatToInt64(float64(t))
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(strings.TrimSpace(string(t)), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// floatToInt64 accepts only integral values inside the int64 range.
// 2^63 is exactly representable, so the upper bound is exclusive.
func floatToInt64(f float64) (int64, bool) {
	if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToString produces the trimmed display form of a driver value.
//
// Hot-path rules:
//   - Avoid fmt.Sprint for common primitive types.
//   - Treat nil as "".
func ToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case bool:
		if t {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case time.Time:
		return t.Format(time.RFC3339)
	case fmt.Stringer:
		return strings.TrimSpace(t.String())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}
