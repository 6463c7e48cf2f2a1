package gokairos

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

const (
	// FieldTimestamp is the name of the primary event timestamp field.
	FieldTimestamp = "@timestamp"
	// FieldVersion is the name of the internal event version field.
	FieldVersion = "@version"
)

// timestampLayout is how time.Time values are rendered by Sprintf.
const timestampLayout = "2006-01-02T15:04:05.000Z"

var jsonMap = jsoniter.Config{
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

// Event is a single structured log record. Field names keep their insertion order.
//
// Values may be scalars (strings, numbers, bools, nil, time.Time), nested mappings
// (map[string]interface{}) or sequences ([]interface{}).
type Event struct {
	keys   []string
	fields map[string]interface{}
}

// NewEvent creates an empty Event.
func NewEvent() *Event {
	return &Event{
		fields: map[string]interface{}{},
	}
}

// NewEventFromMap creates an Event holding the fields of m. Since maps are unordered the
// fields are added in sorted order.
func NewEventFromMap(m map[string]interface{}) *Event {
	e := &Event{
		keys:   make([]string, 0, len(m)),
		fields: make(map[string]interface{}, len(m)),
	}
	for _, k := range SortedKeys(m) {
		e.Set(k, m[k])
	}
	return e
}

// Set assigns a top level field. A field which already exists keeps its position.
func (e *Event) Set(name string, value interface{}) {
	if _, ok := e.fields[name]; !ok {
		e.keys = append(e.keys, name)
	}
	e.fields[name] = value
}

// Len returns the number of top level fields.
func (e *Event) Len() int {
	return len(e.keys)
}

// Keys returns the top level field names in insertion order.
func (e *Event) Keys() []string {
	keys := make([]string, len(e.keys))
	copy(keys, e.keys)
	return keys
}

// Each calls f for every top level field in insertion order.
func (e *Event) Each(f func(name string, value interface{})) {
	for _, k := range e.keys {
		f(k, e.fields[k])
	}
}

// Get looks up a field. A top level field with the exact name wins, otherwise a field
// reference of the form "[a][b]" walks into nested mappings.
func (e *Event) Get(ref string) (interface{}, bool) {
	if v, ok := e.fields[ref]; ok {
		return v, true
	}
	path, ok := parseFieldReference(ref)
	if !ok {
		return nil, false
	}
	v, ok := e.fields[path[0]]
	for _, p := range path[1:] {
		if !ok {
			return nil, false
		}
		m, isMap := AsMapping(v)
		if !isMap {
			return nil, false
		}
		v, ok = m[p]
	}
	return v, ok
}

// Sprintf replaces every %{ref} token in template with the string form of the referenced
// field. Tokens referencing missing or nil fields are left untouched.
func (e *Event) Sprintf(template string) string {
	start := strings.Index(template, "%{")
	if start < 0 {
		return template
	}
	var sb strings.Builder
	sb.Grow(len(template))
	for start >= 0 {
		end := strings.IndexByte(template[start+2:], '}')
		if end < 0 {
			break
		}
		end += start + 2
		sb.WriteString(template[:start])
		ref := template[start+2 : end]
		if v, ok := e.Get(ref); ok && v != nil {
			sb.WriteString(Stringify(v))
		} else {
			sb.WriteString(template[start : end+1])
		}
		template = template[end+1:]
		start = strings.Index(template, "%{")
	}
	sb.WriteString(template)
	return sb.String()
}

// parseFieldReference splits "[a][b]" into ["a", "b"].
func parseFieldReference(ref string) ([]string, bool) {
	if len(ref) < 3 || ref[0] != '[' || ref[len(ref)-1] != ']' {
		return nil, false
	}
	parts := strings.Split(ref[1:len(ref)-1], "][")
	for _, p := range parts {
		if p == "" || strings.ContainsAny(p, "[]") {
			return nil, false
		}
	}
	return parts, true
}

// Stringify renders a field value the way it is interpolated into templates.
func Stringify(v interface{}) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return string(v)
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return formatFloat(float64(v))
	case float64:
		return formatFloat(v)
	case time.Time:
		return v.UTC().Format(timestampLayout)
	case fmt.Stringer:
		return v.String()
	}
	if IsSequence(v) {
		rv := reflect.ValueOf(v)
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = Stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	}
	if m, ok := AsMapping(v); ok {
		s, err := jsonMap.MarshalToString(m)
		if err == nil {
			return s
		}
	}
	return fmt.Sprint(v)
}

// AsMapping returns v as a nested mapping if it is a map keyed by strings.
func AsMapping(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, true
	case nil:
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	m := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		m[iter.Key().String()] = iter.Value().Interface()
	}
	return m, true
}

// IsSequence reports whether v is a slice or array. Byte slices are not sequences.
func IsSequence(v interface{}) bool {
	switch v.(type) {
	case []interface{}:
		return true
	case nil, []byte:
		return false
	}
	k := reflect.ValueOf(v).Kind()
	return k == reflect.Slice || k == reflect.Array
}

// SortedKeys returns the keys of m in sorted order.
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
