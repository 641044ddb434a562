package config

import (
	"fmt"
	"strconv"
	"strings"
)

// Options is a loosely typed bag of backend-specific knobs decoded from JSON
// or YAML. Getters never fail; they fall back to the supplied default.
type Options map[string]any

// Any returns the raw value under key, or nil.
func (o Options) Any(key string) any {
	if o == nil {
		return nil
	}
	return o[key]
}

// String returns the value under key as a string.
func (o Options) String(key, def string) string {
	v, ok := o[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(fmt.Sprint(v))
	if s == "" {
		return def
	}
	return s
}

// Bool returns the value under key as a bool. Strings "true", "1", "yes" are true.
func (o Options) Bool(key string, def bool) bool {
	switch t := o[key].(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "1", "yes", "y":
			return true
		case "false", "0", "no", "n":
			return false
		}
	case int:
		return t != 0
	case float64:
		return t != 0
	}
	return def
}

// Int returns the value under key as an int.
//
// JSON numbers decode as float64 and YAML numbers as int; both are accepted.
func (o Options) Int(key string, def int) int {
	switch t := o[key].(type) {
	case int:
		return t
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return def
}

// StringMap returns the value under key as map[string]string.
func (o Options) StringMap(key string) map[string]string {
	out := map[string]string{}
	switch t := o[key].(type) {
	case map[string]string:
		for k, v := range t {
			out[k] = v
		}
	case map[string]any:
		for k, v := range t {
			if v == nil {
				continue
			}
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}
