// Package storage defines the narrow read interface the exporter needs from
// a relational backend, and a registry of backend drivers.
//
// A backend provides schema reflection (tables, ordered columns, primary
// keys and foreign keys of one schema), distinct subject id discovery and
// windowed row fetches. Backends register an Opener under a driver name in
// their init function; import pkg/storage/all to link every backend.
//
// # Basic Usage
//
//	import _ "github.com/pancaim/cdm/pkg/storage/all"
//
//	store, err := storage.Open(ctx, storage.Params{Driver: "postgres", ...})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	schema, err := store.Reflect(ctx)
package storage

import (
	"context"
	"sort"
)

// Params are the connection parameters of a backend.
type Params struct {
	Driver   string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	// Query holds driver-specific connection options.
	Query map[string]string
	// DSN overrides the parameters above when set. For sqlite it is the
	// database file path.
	DSN string
	// Schema is the schema reflected and queried.
	Schema string
}

// Redacted returns a copy of p safe for logging.
func (p Params) Redacted() Params {
	if p.Password != "" {
		p.Password = "***"
	}
	if p.DSN != "" && p.Driver != "sqlite" {
		p.DSN = "***"
	}
	return p
}

// WithPassword returns a copy of p using password.
func (p Params) WithPassword(password string) Params {
	p.Password = password
	return p
}

// Column describes one reflected column.
type Column struct {
	Name       string
	DataType   string
	Nullable   bool
	PrimaryKey bool
}

// ForeignKey links Column to RefTable.RefColumn.
type ForeignKey struct {
	Column    string
	RefTable  string
	RefColumn string
}

// Table is a reflected table. Columns are in ordinal order.
type Table struct {
	Name        string
	Columns     []Column
	ForeignKeys []ForeignKey
}

// Column returns the column called name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns the column names in ordinal order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// PrimaryKey returns the primary key columns in ordinal order.
func (t *Table) PrimaryKey() []string {
	var pk []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	return pk
}

// ReferenceTo returns the first column of t referencing table.column.
func (t *Table) ReferenceTo(table, column string) (string, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == table && fk.RefColumn == column {
			return fk.Column, true
		}
	}
	return "", false
}

// Schema is the result of one reflection call.
type Schema struct {
	Name   string
	Tables map[string]*Table
}

// NewSchema creates an empty schema.
func NewSchema(name string) *Schema {
	return &Schema{Name: name, Tables: make(map[string]*Table)}
}

// Table returns the table called name.
func (s *Schema) Table(name string) (*Table, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TableNames returns the table names sorted.
func (s *Schema) TableNames() []string {
	names := make([]string, 0, len(s.Tables))
	for name := range s.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Row is one fetched row. Values are positionally aligned with Columns.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of column.
func (r Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// WindowQuery selects the most recent rows of one subject in one table:
// Columns of Table where SubjectColumn = SubjectID, ordered by OrderBy
// descending with nulls last, at most Limit rows.
type WindowQuery struct {
	Table         string
	Columns       []string
	SubjectColumn string
	SubjectID     int64
	OrderBy       string
	Limit         int
}

// Store is a read-only view of one schema of a relational backend.
type Store interface {
	// Reflect returns tables, columns and foreign keys of the configured
	// schema.
	Reflect(ctx context.Context) (*Schema, error)
	// DistinctIDs returns the distinct non-null values of table.column in
	// ascending order.
	DistinctIDs(ctx context.Context, table, column string) ([]int64, error)
	// FetchWindow runs q.
	FetchWindow(ctx context.Context, q WindowQuery) ([]Row, error)
	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error
	// Close releases the connection pool.
	Close() error
}
