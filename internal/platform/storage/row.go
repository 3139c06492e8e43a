package storage

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Row is one table row keyed by column name. Backends return different
// concrete types for the same column (int32 vs int64, time.Time vs text), so
// callers read through the typed accessors below.
type Row map[string]any

// timeLayouts are tried in order when a time column comes back as text.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r Row) Str(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case [16]byte:
		return uuid.UUID(v).String()
	case uuid.UUID:
		return v.String()
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprint(v)
	}
}

// StrPtr returns nil for NULL columns.
func (r Row) StrPtr(col string) *string {
	if r[col] == nil {
		return nil
	}
	value := r.Str(col)
	return &value
}

func (r Row) Int(col string) int {
	return int(r.Int64(col))
}

func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0
		}
		return parsed
	case json.Number:
		parsed, err := v.Int64()
		if err != nil {
			return 0
		}
		return parsed
	}
	f, ok := asFloat(r[col])
	if !ok {
		return 0
	}
	return int64(f)
}

func (r Row) Float64(col string) float64 {
	f, _ := asFloat(r[col])
	return f
}

func (r Row) Bool(col string) bool {
	b, _ := asBool(r[col])
	return b
}

// Time returns the zero time for NULL or unparsable values.
func (r Row) Time(col string) time.Time {
	t, _ := asTime(r[col])
	return t
}

func (r Row) TimePtr(col string) *time.Time {
	t, ok := asTime(r[col])
	if !ok || t.IsZero() {
		return nil
	}
	return &t
}

// Strings reads a list column stored natively or as a JSON array.
func (r Row) Strings(col string) []string {
	switch v := r[col].(type) {
	case nil:
		return nil
	case []string:
		out := make([]string, len(v))
		copy(out, v)
		return out
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return decodeStringList([]byte(v))
	case []byte:
		return decodeStringList(v)
	}
	return nil
}

// Map reads an object column stored natively or as a JSON object.
func (r Row) Map(col string) map[string]any {
	switch v := r[col].(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = item
		}
		return out
	case string:
		return decodeMap([]byte(v))
	case []byte:
		return decodeMap(v)
	}
	return nil
}

// Clone copies the row and any list or map values it holds.
func (r Row) Clone() Row {
	if r == nil {
		return nil
	}
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]any, len(t))
		copy(out, t)
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = item
		}
		return out
	case []byte:
		out := make([]byte, len(t))
		copy(out, t)
		return out
	}
	// optional columns arrive as typed pointers; store the pointee or NULL
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		return cloneValue(rv.Elem().Interface())
	}
	return v
}

func decodeStringList(raw []byte) []string {
	if len(raw) == 0 {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func decodeMap(raw []byte) map[string]any {
	if len(raw) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(b)
		return parsed, err == nil
	}
	if f, ok := asFloat(v); ok {
		return f != 0, true
	}
	return false, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	}
	return time.Time{}, false
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
