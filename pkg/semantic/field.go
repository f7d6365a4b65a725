package semantic

import "strings"

// RawCompanionSuffix names the column that keeps the unnormalized source
// text next to a controlled-term column.
const RawCompanionSuffix = "_raw_value"

// DateSuffix marks a field as a date field.
const DateSuffix = "date"

// RawCompanion returns the raw companion column name for field.
func RawCompanion(field string) string {
	return field + RawCompanionSuffix
}

// IsRawCompanion reports whether column is a raw companion column.
func IsRawCompanion(column string) bool {
	return strings.HasSuffix(column, strings.TrimPrefix(RawCompanionSuffix, "_"))
}

// Descriptor describes a target field. HasRawCompanion is true when the
// table also has a <name>_raw_value column, which makes the field a
// controlled-term field eligible for the Unmapped placeholder.
type Descriptor struct {
	Name            string
	Nullable        bool
	HasRawCompanion bool
}

// DescribeColumn builds the Descriptor for column given all column names of
// its table.
func DescribeColumn(column string, nullable bool, tableColumns []string) Descriptor {
	companion := RawCompanion(column)
	d := Descriptor{Name: column, Nullable: nullable}
	for _, c := range tableColumns {
		if c == companion {
			d.HasRawCompanion = true
			break
		}
	}
	return d
}

// FieldKind is the normalization variant of a field, decided once when a
// Mapper is built.
type FieldKind uint8

const (
	// PassthroughField has no controlled vocabulary.
	PassthroughField FieldKind = iota
	// ControlledTermField holds values from a controlled vocabulary.
	ControlledTermField
	// DateField holds dates reformatted through a cascade.
	DateField
)

func (k FieldKind) String() string {
	switch k {
	case ControlledTermField:
		return "controlled_term"
	case DateField:
		return "date"
	default:
		return "passthrough"
	}
}

// Classify decides the variant of d. A name ending in DateSuffix wins over
// a raw companion; the companion still decides the placeholder of a date.
func Classify(d Descriptor) FieldKind {
	switch {
	case strings.HasSuffix(d.Name, DateSuffix):
		return DateField
	case d.HasRawCompanion:
		return ControlledTermField
	default:
		return PassthroughField
	}
}
