package storage

import (
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between backends that matter for
// the exporter's queries.
type Dialect struct {
	// Quote wraps identifiers.
	Quote byte
	// Numbered selects $1-style placeholders instead of ?.
	Numbered bool
	// Named selects @p1-style placeholders.
	Named bool
	// NullsLast appends NULLS LAST to descending orderings. Backends that
	// already sort NULLs last on DESC leave it unset.
	NullsLast bool
	// Qualify prefixes table names with the schema name.
	Qualify bool
	// Top limits with SELECT TOP n instead of a trailing LIMIT.
	Top bool
}

// Dialects of the bundled backends.
var (
	PostgresDialect  = Dialect{Quote: '"', Numbered: true, NullsLast: true, Qualify: true}
	MySQLDialect     = Dialect{Quote: '`', Qualify: true}
	SQLiteDialect    = Dialect{Quote: '"'}
	SQLServerDialect = Dialect{Quote: '"', Named: true, Qualify: true, Top: true}
)

// SQLBuilder assembles a query with quoted identifiers and placeholders.
type SQLBuilder struct {
	b      strings.Builder
	d      Dialect
	params int
}

// Builder returns a SQLBuilder for d.
func (d Dialect) Builder() *SQLBuilder {
	sb := &SQLBuilder{d: d}
	sb.b.Grow(128)
	return sb
}

// WriteQuery writes raw SQL.
func (sb *SQLBuilder) WriteQuery(query string) *SQLBuilder {
	sb.b.WriteString(query)
	return sb
}

// WriteIdentifier writes a quoted identifier, doubling embedded quotes.
func (sb *SQLBuilder) WriteIdentifier(name string) *SQLBuilder {
	q := sb.d.Quote
	sb.b.WriteByte(q)
	for i := 0; i < len(name); i++ {
		if name[i] == q {
			sb.b.WriteByte(q)
		}
		sb.b.WriteByte(name[i])
	}
	sb.b.WriteByte(q)
	return sb
}

// WriteIdentifiers writes a comma separated identifier list, or * when
// names is empty.
func (sb *SQLBuilder) WriteIdentifiers(names []string) *SQLBuilder {
	if len(names) == 0 {
		return sb.WriteQuery("*")
	}
	for i, n := range names {
		if i > 0 {
			sb.b.WriteString(", ")
		}
		sb.WriteIdentifier(n)
	}
	return sb
}

// WriteTable writes a table name, schema-qualified when the dialect asks
// for it and schema is set.
func (sb *SQLBuilder) WriteTable(schema, table string) *SQLBuilder {
	if sb.d.Qualify && schema != "" {
		sb.WriteIdentifier(schema)
		sb.b.WriteByte('.')
	}
	return sb.WriteIdentifier(table)
}

// WriteParam writes the next placeholder.
func (sb *SQLBuilder) WriteParam() *SQLBuilder {
	sb.params++
	switch {
	case sb.d.Numbered:
		sb.b.WriteByte('$')
		sb.b.WriteString(strconv.Itoa(sb.params))
	case sb.d.Named:
		sb.b.WriteString("@p")
		sb.b.WriteString(strconv.Itoa(sb.params))
	default:
		sb.b.WriteByte('?')
	}
	return sb
}

// WriteInt writes an integer literal.
func (sb *SQLBuilder) WriteInt(value int64) *SQLBuilder {
	sb.b.WriteString(strconv.FormatInt(value, 10))
	return sb
}

// String returns the query.
func (sb *SQLBuilder) String() string {
	return sb.b.String()
}

// WindowSQL renders q. The subject id is the only parameter.
func (d Dialect) WindowSQL(schema string, q WindowQuery) string {
	sb := d.Builder().WriteQuery("SELECT ")
	if d.Top {
		sb.WriteQuery("TOP (").WriteInt(int64(q.Limit)).WriteQuery(") ")
	}
	sb.WriteIdentifiers(q.Columns).
		WriteQuery(" FROM ").WriteTable(schema, q.Table).
		WriteQuery(" WHERE ").WriteIdentifier(q.SubjectColumn).WriteQuery(" = ").WriteParam()
	if q.OrderBy != "" {
		sb.WriteQuery(" ORDER BY ").WriteIdentifier(q.OrderBy).WriteQuery(" DESC")
		if d.NullsLast {
			sb.WriteQuery(" NULLS LAST")
		}
	}
	if d.Top {
		return sb.String()
	}
	return sb.WriteQuery(" LIMIT ").WriteInt(int64(q.Limit)).String()
}

// DistinctSQL renders the distinct id discovery query for table.column.
func (d Dialect) DistinctSQL(schema, table, column string) string {
	return d.Builder().
		WriteQuery("SELECT DISTINCT ").WriteIdentifier(column).
		WriteQuery(" FROM ").WriteTable(schema, table).
		WriteQuery(" WHERE ").WriteIdentifier(column).WriteQuery(" IS NOT NULL").
		WriteQuery(" ORDER BY ").WriteIdentifier(column).
		String()
}
