package semantic

import (
	"github.com/pancaim/cdm/pkg/semantic/dateformat"
)

// Mapper normalizes source values for a single target field.
type Mapper struct {
	field       Descriptor
	kind        FieldKind
	placeholder Value
	mappings    Table
	dates       dateformat.Cascade
}

// NewMapper builds the Mapper for field. dates is only consulted for date
// fields. mappings and dates are retained, not copied.
func NewMapper(field Descriptor, mappings Table, dates dateformat.Cascade) *Mapper {
	m := &Mapper{
		field:       field,
		kind:        Classify(field),
		placeholder: Null,
		mappings:    mappings,
		dates:       dates,
	}
	if field.HasRawCompanion {
		m.placeholder = Unmapped
	}
	return m
}

// Field returns the descriptor the mapper was built for.
func (m *Mapper) Field() Descriptor { return m.field }

// Kind returns the field variant.
func (m *Mapper) Kind() FieldKind { return m.kind }

// Lookup maps a raw source value to its target value.
//
// Non-controlled, non-date fields come out null whenever the mapping table
// has no entry for the cleaned source, even for values that would be valid
// as-is. Callers that want pass-through must map values explicitly.
func (m *Mapper) Lookup(raw any) Value {
	src := Clean(raw)

	target, mapped := m.mappings.Lookup(src)
	value := Null
	if mapped {
		value = target.Unwrap()
	}

	switch m.kind {
	case DateField:
		return m.lookupDate(src, mapped, value)
	case ControlledTermField:
		if !m.field.Nullable {
			if mapped && !value.IsNull() {
				return value
			}
			return Unmapped
		}
		if mapped {
			return value
		}
		if !src.Present() {
			return Null
		}
		return Unmapped
	default:
		return value
	}
}

func (m *Mapper) lookupDate(src Source, mapped bool, value Value) Value {
	var input string
	if mapped {
		if value.IsNull() {
			return Null
		}
		input = value.String()
	} else {
		if !src.Present() {
			return Null
		}
		input = src.String()
	}

	if out, ok := dateformat.Resolve(input, m.dates); ok {
		return Text(out)
	}
	return m.placeholder
}
