package domain

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Fields is a partial-update or snapshot bag keyed by field name.
// Values arrive from JSON, so numbers are usually float64 and dates strings.
type Fields map[string]any

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Has reports whether key is present with a non-nil value.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// String returns the value of key when it is a string.
func (f Fields) String(key string) (string, bool) {
	s, ok := f[key].(string)
	return s, ok
}

// Text returns the trimmed string value of key, "" when absent or not a string.
func (f Fields) Text(key string) string {
	s, _ := f.String(key)
	return strings.TrimSpace(s)
}

// Bool returns the value of key when it is a bool; anything else is false.
func (f Fields) Bool(key string) bool {
	b, ok := f[key].(bool)
	return ok && b
}

// Truthy mirrors loose truthiness: non-empty strings, non-zero numbers and
// true are truthy.
func (f Fields) Truthy(key string) bool {
	switch v := f[key].(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return strings.TrimSpace(v) != ""
	default:
		n, ok := f.Float(key)
		if ok {
			return n != 0
		}
		return true
	}
}

// Float returns the numeric value of key.
func (f Fields) Float(key string) (float64, bool) {
	switch v := f[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}

var timeLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// Time returns the value of key as a time. Strings are parsed as RFC 3339 or
// a plain date.
func (f Fields) Time(key string) (time.Time, bool) {
	switch v := f[key].(type) {
	case time.Time:
		return v, !v.IsZero()
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, !v.IsZero()
	case string:
		return ParseTime(v)
	default:
		return time.Time{}, false
	}
}

// ParseTime parses RFC 3339 timestamps and YYYY-MM-DD dates.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
