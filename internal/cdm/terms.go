package cdm

import (
	"encoding/csv"
	"io"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// Vocabulary is the ordered set of allowed terms of one field.
type Vocabulary struct {
	Table string
	Field string
	Terms []string
}

// Registry holds the controlled-term vocabularies, in declaration order.
type Registry struct {
	vocabularies []Vocabulary
	index        map[string]map[string]struct{}
}

// NewRegistry builds a registry. Declaring a field twice or repeating a
// term is an error.
func NewRegistry(vocabularies ...Vocabulary) (*Registry, error) {
	r := &Registry{index: make(map[string]map[string]struct{}, len(vocabularies))}
	for _, v := range vocabularies {
		key := v.Table + "." + v.Field
		if _, dup := r.index[key]; dup {
			return nil, cdmerrors.New(cdmerrors.ErrorTypeValidation, "vocabulary declared twice").
				WithDetail("field", key)
		}
		terms := make(map[string]struct{}, len(v.Terms))
		for _, t := range v.Terms {
			if _, dup := terms[t]; dup {
				return nil, cdmerrors.New(cdmerrors.ErrorTypeValidation, "duplicate term").
					WithDetail("field", key).
					WithDetail("term", t)
			}
			terms[t] = struct{}{}
		}
		r.index[key] = terms
		r.vocabularies = append(r.vocabularies, v)
	}
	return r, nil
}

var terms = mustRegistry(
	Vocabulary{Table: "person", Field: "sex", Terms: []string{"female", "male", "unknown"}},
	Vocabulary{Table: "person", Field: "vital_status", Terms: []string{"alive", "deceased", "unknown"}},
	Vocabulary{Table: "surgery", Field: "surgery_purpose", Terms: []string{"curative", "palliative", "diagnostic"}},
	Vocabulary{Table: "surgery", Field: "surgical_technique", Terms: []string{
		"open",
		"laparoscopic",
		"robot-assisted",
		"laparoscopic, converted to open",
	}},
)

func mustRegistry(vocabularies ...Vocabulary) *Registry {
	r, err := NewRegistry(vocabularies...)
	if err != nil {
		panic(err)
	}
	return r
}

// Terms returns the registry of the model's controlled terms.
func Terms() *Registry {
	return terms
}

// Contains reports whether term is allowed for table.field.
func (r *Registry) Contains(table, field, term string) bool {
	set, ok := r.index[table+"."+field]
	if !ok {
		return false
	}
	_, ok = set[term]
	return ok
}

// Vocabularies returns the vocabularies in declaration order.
func (r *Registry) Vocabularies() []Vocabulary {
	out := make([]Vocabulary, len(r.vocabularies))
	copy(out, r.vocabularies)
	return out
}

// WriteCSV lists every term as a table,field,controlled term row after a
// header line.
func (r *Registry) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"table", "field", "controlled term"}); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write term listing")
	}
	for _, v := range r.vocabularies {
		for _, t := range v.Terms {
			if err := cw.Write([]string{v.Table, v.Field, t}); err != nil {
				return cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write term listing")
			}
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write term listing")
	}
	return nil
}
