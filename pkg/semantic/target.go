package semantic

import "fmt"

// Term is a controlled-term tag: a value drawn from the vocabulary of a
// specific table field.
type Term struct {
	Table string
	Field string
	Value string
}

func (t Term) String() string {
	return fmt.Sprintf("%s.%s=%s", t.Table, t.Field, t.Value)
}

type targetKind uint8

const (
	targetNull targetKind = iota
	targetString
	targetInt
	targetTerm
)

// Target is the right-hand side of a mapping entry: a string, an integer,
// an explicit null or a controlled term.
type Target struct {
	kind targetKind
	text string
	num  int64
	term Term
}

// MapToNull is an explicit null target.
var MapToNull = Target{}

// MapToText maps to a string.
func MapToText(s string) Target { return Target{kind: targetString, text: s} }

// MapToInt maps to an integer.
func MapToInt(n int64) Target { return Target{kind: targetInt, num: n} }

// MapToTerm maps to a controlled term.
func MapToTerm(t Term) Target { return Target{kind: targetTerm, term: t} }

// IsNull reports whether t is an explicit null.
func (t Target) IsNull() bool { return t.kind == targetNull }

// Term returns the controlled term of a term target.
func (t Target) Term() (Term, bool) {
	return t.term, t.kind == targetTerm
}

// Unwrap resolves the target to its underlying value. Controlled terms
// resolve to their text.
func (t Target) Unwrap() Value {
	switch t.kind {
	case targetString:
		return Text(t.text)
	case targetInt:
		return Int(t.num)
	case targetTerm:
		return Text(t.term.Value)
	default:
		return Null
	}
}

func (t Target) String() string {
	switch t.kind {
	case targetString:
		return fmt.Sprintf("%q", t.text)
	case targetInt:
		return fmt.Sprintf("%d", t.num)
	case targetTerm:
		return "term(" + t.term.String() + ")"
	default:
		return "null"
	}
}

// Table is a semantic mapping table from cleaned source tokens to targets.
// The Absence key maps null and blank sources. Tables are read-only once
// handed to a Mapper.
type Table map[Source]Target

// Lookup returns the target for src and whether an entry exists.
func (tb Table) Lookup(src Source) (Target, bool) {
	if tb == nil {
		return Target{}, false
	}
	t, ok := tb[src]
	return t, ok
}
