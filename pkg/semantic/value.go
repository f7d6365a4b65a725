// Package semantic maps heterogeneous source values onto the controlled
// values of the common data model.
//
// A Mapper is built once per target field. Its Lookup cleans a raw source
// value, looks it up in the field's mapping Table and then applies the
// field's placeholder policy: controlled-term fields never silently drop a
// present value they cannot map, and required controlled-term fields never
// come out null. Where a value is present but unmappable the result is the
// Unmapped sentinel.
package semantic

import (
	"database/sql/driver"
	"strconv"
)

// UnmappedText is how the Unmapped sentinel is stored and rendered.
const UnmappedText = "UNMAPPED"

// ValueKind discriminates Value.
type ValueKind uint8

const (
	// KindNull is the absence of a value.
	KindNull ValueKind = iota
	// KindString is a text value.
	KindString
	// KindInt is an integer value.
	KindInt
	// KindUnmapped marks a present value that could not be mapped.
	KindUnmapped
)

func (k ValueKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUnmapped:
		return "unmapped"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is the result of a lookup. Values are comparable with ==.
type Value struct {
	kind ValueKind
	text string
	num  int64
}

var (
	// Null is the absent value.
	Null = Value{}
	// Unmapped is the process-wide sentinel for "present but unmappable".
	// No source string produces it: a source "UNMAPPED" maps to a
	// KindString value, which compares unequal to Unmapped.
	Unmapped = Value{kind: KindUnmapped}
)

// Text returns a string value.
func Text(s string) Value { return Value{kind: KindString, text: s} }

// Int returns an integer value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Kind reports the kind of v.
func (v Value) Kind() ValueKind { return v.kind }

// IsNull reports whether v is absent.
func (v Value) IsNull() bool { return v.kind == KindNull }

// IsUnmapped reports whether v is the Unmapped sentinel.
func (v Value) IsUnmapped() bool { return v.kind == KindUnmapped }

// Interface returns v in storage form: nil, string or int64. The sentinel
// becomes UnmappedText.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.text
	case KindInt:
		return v.num
	case KindUnmapped:
		return UnmappedText
	default:
		return nil
	}
}

// Value implements driver.Valuer so that normalized values can be bound
// as query arguments and rendered by the document encoders.
func (v Value) Value() (driver.Value, error) {
	return v.Interface(), nil
}

// String renders v for logs and date formatting.
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.text
	case KindInt:
		return strconv.FormatInt(v.num, 10)
	case KindUnmapped:
		return UnmappedText
	default:
		return ""
	}
}
