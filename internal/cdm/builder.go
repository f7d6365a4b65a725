package cdm

import (
	"sort"
	"strings"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/semantic"
	"github.com/pancaim/cdm/pkg/storage"
)

// Builder constructs model records for one table from raw source values.
// Every non-companion column gets a semantic.Mapper, built once; raw
// companion columns receive the cleaned source text of their field.
type Builder struct {
	table      string
	columns    []string
	mappers    map[string]*semantic.Mapper
	companions map[string]string
}

// NewBuilder prepares the mappers of table. Only text columns with a
// <name>_raw_value sibling are treated as controlled-term fields.
func NewBuilder(table *storage.Table, mappings semantic.MappingSet) *Builder {
	names := table.ColumnNames()
	b := &Builder{
		table:      table.Name,
		columns:    names,
		mappers:    make(map[string]*semantic.Mapper, len(names)),
		companions: make(map[string]string),
	}
	for _, col := range table.Columns {
		if semantic.IsRawCompanion(col.Name) {
			continue
		}
		d := semantic.DescribeColumn(col.Name, col.Nullable, names)
		if d.HasRawCompanion {
			b.companions[semantic.RawCompanion(col.Name)] = col.Name
			d.HasRawCompanion = isText(col.DataType)
		}
		fm := mappings.For(table.Name, col.Name)
		b.mappers[col.Name] = semantic.NewMapper(d, fm.Values, fm.Dates)
	}
	return b
}

func isText(dataType string) bool {
	t := strings.ToLower(dataType)
	return t == "" || strings.Contains(t, "text") || strings.Contains(t, "char") || strings.Contains(t, "clob")
}

// Table returns the table name.
func (b *Builder) Table() string { return b.table }

// Mapper returns the mapper of field.
func (b *Builder) Mapper(field string) (*semantic.Mapper, bool) {
	m, ok := b.mappers[field]
	return m, ok
}

// Build normalizes source, keyed by field name, into a row over all
// columns of the table. Fields missing from source are looked up as
// absent, so required controlled-term fields come out Unmapped rather than
// null. Source keys that are not fields of the table are rejected.
func (b *Builder) Build(source map[string]any) (storage.Row, error) {
	var unknown []string
	for k := range source {
		if _, ok := b.mappers[k]; !ok {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return storage.Row{}, cdmerrors.New(cdmerrors.ErrorTypeData, "source has fields the table does not").
			WithDetail("table", b.table).
			WithDetail("fields", strings.Join(unknown, ","))
	}

	row := storage.Row{Columns: b.columns, Values: make([]any, len(b.columns))}
	for i, col := range b.columns {
		if field, ok := b.companions[col]; ok {
			if src := semantic.Clean(source[field]); src.Present() {
				row.Values[i] = src.String()
			}
			continue
		}
		if m, ok := b.mappers[col]; ok {
			row.Values[i] = m.Lookup(source[col]).Interface()
		}
	}
	return row, nil
}
