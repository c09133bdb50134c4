package docstore

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Fields is a raw document body. Accessors take a list of candidate keys so
// that legacy field names resolve to the same value.
type Fields map[string]any

// String returns the first non-empty value among keys rendered as text.
func (f Fields) String(keys ...string) string {
	for _, key := range keys {
		switch v := f[key].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		case int:
			return strconv.Itoa(v)
		case int64:
			return strconv.FormatInt(v, 10)
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// Float returns the first numeric value among keys. Numeric strings are parsed.
func (f Fields) Float(keys ...string) float64 {
	for _, key := range keys {
		if v, ok := toFloat(f[key]); ok {
			return v
		}
	}
	return 0
}

// Bool returns the first boolean among keys. "true" and "1" count as true.
func (f Fields) Bool(keys ...string) bool {
	for _, key := range keys {
		switch v := f[key].(type) {
		case bool:
			return v
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "1", "yes":
				return true
			case "false", "0", "no":
				return false
			}
		case float64:
			return v != 0
		}
	}
	return false
}

// Time parses the first date-like value among keys. RFC3339 timestamps keep
// their clock time; calendar dates are UTC midnight.
func (f Fields) Time(keys ...string) time.Time {
	for _, key := range keys {
		switch v := f[key].(type) {
		case time.Time:
			return v
		case string:
			if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v)); err == nil {
				return t.UTC()
			}
			if t, ok := ParseDate(v); ok {
				return t
			}
		}
	}
	return time.Time{}
}

// Map returns a nested object.
func (f Fields) Map(key string) Fields {
	if m, ok := f[key].(map[string]any); ok {
		return Fields(m)
	}
	if m, ok := f[key].(Fields); ok {
		return m
	}
	return nil
}

// Slice returns a nested array of objects. Non-object entries are skipped.
func (f Fields) Slice(key string) []Fields {
	raw, ok := f[key].([]any)
	if !ok {
		return nil
	}
	out := make([]Fields, 0, len(raw))
	for _, entry := range raw {
		if m, ok := entry.(map[string]any); ok {
			out = append(out, Fields(m))
		}
	}
	return out
}

// ParseDate parses "2006-01-02" or RFC3339 text into a UTC calendar date.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// FromStruct converts a JSON-tagged value into Fields.
func FromStruct(v any) (Fields, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out Fields
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		s := strings.TrimSpace(strings.ReplaceAll(v, ",", ""))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}
