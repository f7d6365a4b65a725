package semantic

import (
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/semantic/dateformat"
)

// FieldMappings is the mapping configuration of one target field.
type FieldMappings struct {
	Values Table
	Dates  dateformat.Cascade
}

// MappingSet holds FieldMappings by table and field name.
type MappingSet map[string]map[string]FieldMappings

// For returns the mappings of table.field; missing entries yield empty
// mappings.
func (s MappingSet) For(table, field string) FieldMappings {
	if fields, ok := s[table]; ok {
		return fields[field]
	}
	return FieldMappings{}
}

// Set stores fm for table.field.
func (s MappingSet) Set(table, field string, fm FieldMappings) {
	fields, ok := s[table]
	if !ok {
		fields = make(map[string]FieldMappings)
		s[table] = fields
	}
	fields[field] = fm
}

// TermChecker reports whether term belongs to the vocabulary of table.field.
type TermChecker interface {
	Contains(table, field, term string) bool
}

type fieldDoc struct {
	Values      yaml.Node `yaml:"values"`
	DateFormats []struct {
		Input  string `yaml:"input"`
		Output string `yaml:"output"`
	} `yaml:"date_formats"`
}

// LoadMappingsFile reads a YAML mapping file. See LoadMappings.
func LoadMappingsFile(path string, terms TermChecker) (MappingSet, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator's config
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to open mapping file").
			WithDetail("path", path)
	}
	defer f.Close()

	set, err := LoadMappings(f, terms)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "invalid mapping file").
			WithDetail("path", path)
	}
	return set, nil
}

// LoadMappings decodes mappings of the form
//
//	person:
//	  sex:
//	    values:
//	      M: {term: male}
//	      F: {term: female}
//	      ~: {term: unknown}
//	lab:
//	  lab_date:
//	    date_formats:
//	      - {input: "%Y-%m-%d", output: "%Y-%m-%d"}
//	      - {input: "%Y", output: "%Y-01-01"}
//
// Keys are cleaned like source values; a null key maps absent sources.
// Scalar targets are strings, integers or null. {term: x} targets must be
// members of the vocabulary of the enclosing table field.
func LoadMappings(r io.Reader, terms TermChecker) (MappingSet, error) {
	var doc map[string]map[string]fieldDoc
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to parse YAML")
	}

	set := make(MappingSet, len(doc))
	for table, fields := range doc {
		for field, fd := range fields {
			values, err := decodeValues(table, field, &fd.Values, terms)
			if err != nil {
				return nil, err
			}
			var cascade dateformat.Cascade
			for i, df := range fd.DateFormats {
				if df.Input == "" || df.Output == "" {
					return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "date format needs input and output").
						WithDetail("field", table+"."+field).
						WithDetail("index", i)
				}
				cascade = append(cascade, dateformat.Pair(dateformat.Format(df.Input), dateformat.Format(df.Output)))
			}
			set.Set(table, field, FieldMappings{Values: values, Dates: cascade})
		}
	}
	return set, nil
}

func decodeValues(table, field string, node *yaml.Node, terms TermChecker) (Table, error) {
	values := make(Table)
	if node.Kind == 0 {
		return values, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "values must be a mapping").
			WithDetail("field", table+"."+field).
			WithDetail("line", node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]

		key := Absence
		if k.Tag != "!!null" {
			key = Clean(k.Value)
		}
		if _, dup := values[key]; dup {
			return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "duplicate source value after cleaning").
				WithDetail("field", table+"."+field).
				WithDetail("source", k.Value).
				WithDetail("line", k.Line)
		}

		target, err := decodeTarget(table, field, v, terms)
		if err != nil {
			return nil, err
		}
		values[key] = target
	}
	return values, nil
}

func decodeTarget(table, field string, v *yaml.Node, terms TermChecker) (Target, error) {
	switch v.Kind {
	case yaml.ScalarNode:
		switch v.Tag {
		case "!!null":
			return MapToNull, nil
		case "!!int":
			n, err := strconv.ParseInt(v.Value, 0, 64)
			if err != nil {
				return Target{}, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "invalid integer target").
					WithDetail("field", table+"."+field).
					WithDetail("line", v.Line)
			}
			return MapToInt(n), nil
		default:
			return MapToText(v.Value), nil
		}

	case yaml.MappingNode:
		var tagged struct {
			Term string `yaml:"term"`
		}
		if err := v.Decode(&tagged); err != nil || tagged.Term == "" {
			return Target{}, cdmerrors.New(cdmerrors.ErrorTypeConfig, "mapping targets must be scalars or {term: value}").
				WithDetail("field", table+"."+field).
				WithDetail("line", v.Line)
		}
		if terms != nil && !terms.Contains(table, field, tagged.Term) {
			return Target{}, cdmerrors.New(cdmerrors.ErrorTypeConfig, "term is not in the field's vocabulary").
				WithDetail("field", table+"."+field).
				WithDetail("term", tagged.Term).
				WithDetail("line", v.Line)
		}
		return MapToTerm(Term{Table: table, Field: field, Value: tagged.Term}), nil

	default:
		return Target{}, cdmerrors.New(cdmerrors.ErrorTypeConfig, "unsupported mapping target").
			WithDetail("field", table+"."+field).
			WithDetail("line", v.Line)
	}
}
