// Package normalize turns loosely typed scraped fields into canonical Go values.
//
// Every raw field is carried as a Value, a small tagged union over the shapes
// scraped data actually takes: nothing, a number or bool, a string that may
// itself encode JSON, a list, or a map. The parsers in this package never fail;
// they fall back to a safe default and log at warn level.
package normalize

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind identifies the shape held by a Value.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindScalar
	KindText
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindText:
		return "text"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "absent"
	}
}

// Value is a raw field value. The zero Value is Absent.
type Value struct {
	kind   Kind
	num    float64
	isBool bool
	text   string
	items  []Value
	fields map[string]Value
}

// Absent returns the empty value.
func Absent() Value { return Value{} }

// Text wraps a string.
func Text(s string) Value { return Value{kind: KindText, text: s} }

// Number wraps a float. NaN and infinities collapse to Absent.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: KindScalar, num: f}
}

// Bool wraps a boolean.
func Bool(b bool) Value {
	v := Value{kind: KindScalar, isBool: true}
	if b {
		v.num = 1
	}
	return v
}

// List wraps a slice of values.
func List(items ...Value) Value { return Value{kind: KindList, items: items} }

// Map wraps a field map.
func Map(fields map[string]Value) Value { return Value{kind: KindMap, fields: fields} }

// Of converts a decoded JSON value (or any Go primitive) into a Value.
func Of(raw any) Value {
	switch t := raw.(type) {
	case nil:
		return Value{}
	case Value:
		return t
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String())
		}
		return Number(f)
	case []any:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Of(item)
		}
		return List(items...)
	case []string:
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = Text(item)
		}
		return List(items...)
	case map[string]any:
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = Of(item)
		}
		return Map(fields)
	default:
		return Text(stringifyAny(t))
	}
}

// csvMissing mirrors the markers tabular exports use for a missing cell.
var csvMissing = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// Cell converts a CSV cell into a Value. Missing-value markers become Absent;
// everything else stays Text so string-encoded structures can be decoded later.
func Cell(s string) Value {
	if _, missing := csvMissing[strings.TrimSpace(s)]; missing {
		return Value{}
	}
	return Text(s)
}

// Kind reports the value's shape.
func (v Value) Kind() Kind { return v.kind }

// IsAbsent reports whether the value carries nothing.
func (v Value) IsAbsent() bool { return v.kind == KindAbsent }

// Str returns the string for Text values.
func (v Value) Str() (string, bool) {
	if v.kind != KindText {
		return "", false
	}
	return v.text, true
}

// Items returns the elements of a List value.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.items
}

// Fields returns the entries of a Map value.
func (v Value) Fields() map[string]Value {
	if v.kind != KindMap {
		return nil
	}
	return v.fields
}

// Field returns a map entry, or Absent.
func (v Value) Field(key string) Value {
	if v.kind != KindMap {
		return Value{}
	}
	return v.fields[key]
}

// Truthy follows the usual scripting notion of emptiness: absent, zero,
// false, blank strings and empty collections are all falsy.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindScalar:
		return v.num != 0
	case KindText:
		return strings.TrimSpace(v.text) != ""
	case KindList:
		return len(v.items) > 0
	case KindMap:
		return len(v.fields) > 0
	default:
		return false
	}
}

// String renders the value as plain text. Absent renders as "".
// Collections render as JSON.
func (v Value) String() string {
	switch v.kind {
	case KindText:
		return v.text
	case KindScalar:
		if v.isBool {
			return strconv.FormatBool(v.num != 0)
		}
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case KindList, KindMap:
		data, err := json.Marshal(v.Interface())
		if err != nil {
			return ""
		}
		return string(data)
	default:
		return ""
	}
}

// Interface converts the value back to plain Go types.
func (v Value) Interface() any {
	switch v.kind {
	case KindText:
		return v.text
	case KindScalar:
		if v.isBool {
			return v.num != 0
		}
		return v.num
	case KindList:
		out := make([]any, len(v.items))
		for i, item := range v.items {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.fields))
		for k, item := range v.fields {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON encodes the plain form of the value.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

// UnmarshalJSON decodes any JSON document into a Value.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*v = Of(raw)
	return nil
}

// SortedKeys returns the map keys in lexical order.
func (v Value) SortedKeys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Record is one raw per-source row: an untyped bag of fields.
type Record map[string]Value

// Get returns the field or Absent.
func (r Record) Get(key string) Value {
	if r == nil {
		return Value{}
	}
	return r[key]
}

// Has reports whether the record contains a non-absent value for key.
func (r Record) Has(key string) bool {
	return !r.Get(key).IsAbsent()
}

// ParseFloat reads a finite number from a scalar or numeric text.
func ParseFloat(v Value) (float64, bool) {
	switch v.kind {
	case KindScalar:
		if v.isBool {
			return 0, false
		}
		return v.num, true
	case KindText:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// SplitList splits text on sep, or stringifies list items, trimming and
// dropping empties.
func SplitList(v Value, sep string) []string {
	var parts []string
	switch v.kind {
	case KindText:
		parts = strings.Split(v.text, sep)
	case KindList:
		for _, item := range v.items {
			if item.IsAbsent() {
				continue
			}
			parts = append(parts, item.String())
		}
	case KindScalar:
		parts = []string{v.String()}
	default:
		return nil
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func stringifyAny(raw any) string {
	data, err := json.Marshal(raw)
	if err != nil {
		return ""
	}
	return string(data)
}
