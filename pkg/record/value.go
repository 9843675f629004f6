// Package record models DPE records as returned by the Data Fair API.
//
// The upstream schema is open: fields appear and disappear between records
// and between dataset revisions. A Record is therefore an ordered mapping of
// field name to a tagged scalar Value rather than a fixed struct.
package record

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind identifies the scalar type held by a Value.
type Kind uint8

const (
	// KindNull is an absent or JSON null value.
	KindNull Kind = iota

	// KindString is a text value.
	KindString

	// KindNumber is a numeric value kept in its textual form.
	KindNumber

	// KindBool is a boolean value.
	KindBool
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	default:
		return "unknown"
	}
}

// Value is a tagged scalar. The zero Value is null.
type Value struct {
	kind Kind
	text string
	b    bool
}

// Null returns the null value.
func Null() Value { return Value{} }

// Str returns a string value.
func Str(s string) Value { return Value{kind: KindString, text: s} }

// Num returns a number value from its textual representation.
// The text is stored verbatim so that it is written back unchanged.
func Num(text string) Value { return Value{kind: KindNumber, text: text} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Kind returns the scalar type of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the cell text used in the tabular cache. Null is "".
func (v Value) Text() string {
	switch v.kind {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return ""
	}
}

// Float returns the numeric value of v.
// Strings holding a number are converted as well, since cached files carry no
// type information.
func (v Value) Float() (float64, bool) {
	switch v.kind {
	case KindNumber, KindString:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.text), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// ParseCell converts a cache cell back into a Value.
// Empty cells are null and cells that parse as a float are numbers.
func ParseCell(text string) Value {
	if text == "" {
		return Null()
	}
	if _, err := strconv.ParseFloat(text, 64); err == nil {
		return Num(text)
	}
	return Str(text)
}

// valueFromJSON converts one raw JSON value into a Value.
// Nested objects and arrays are kept as their JSON text.
func valueFromJSON(raw json.RawMessage) (Value, error) {
	trimmed := strings.TrimSpace(string(raw))
	switch {
	case trimmed == "" || trimmed == "null":
		return Null(), nil
	case trimmed == "true":
		return Bool(true), nil
	case trimmed == "false":
		return Bool(false), nil
	case trimmed[0] == '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Value{}, err
		}
		return Str(s), nil
	case trimmed[0] == '{' || trimmed[0] == '[':
		return Str(trimmed), nil
	default:
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return Value{}, err
		}
		return Num(n.String()), nil
	}
}
