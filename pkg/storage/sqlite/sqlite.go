// Package sqlite is the SQLite storage backend, built on the pure Go
// modernc.org/sqlite driver. SQLite has no schemas: the configured schema
// name is ignored and the main database is reflected.
package sqlite

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/storage"
	"github.com/pancaim/cdm/pkg/storage/sqlstore"
)

// DriverName is the registry name of this backend.
const DriverName = "sqlite"

func init() {
	storage.Register(DriverName, Open)
}

// Open opens the database file named by params.DSN, or params.Database
// when no DSN is set.
func Open(ctx context.Context, params storage.Params) (storage.Store, error) {
	path := params.DSN
	if path == "" {
		path = params.Database
	}
	if path == "" {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "sqlite needs a database file")
	}

	db, err := sqlstore.Open(ctx, "sqlite", path)
	if err != nil {
		return nil, err
	}
	return sqlstore.New(db, storage.SQLiteDialect, "", Reflect, DriverName), nil
}

// Reflect reads all user tables of db through sqlite_master and the
// table_info and foreign_key_list pragmas.
func Reflect(ctx context.Context, db *sql.DB, _ string) (*storage.Schema, error) {
	names, err := tableNames(ctx, db)
	if err != nil {
		return nil, err
	}

	schema := storage.NewSchema("main")
	for _, name := range names {
		table := &storage.Table{Name: name}
		if table.Columns, err = columns(ctx, db, name); err != nil {
			return nil, err
		}
		schema.Tables[name] = table
	}
	// Foreign keys may omit the referenced column, which then is the
	// referenced table's primary key, so they are read after all columns.
	for _, name := range names {
		if schema.Tables[name].ForeignKeys, err = foreignKeys(ctx, db, name, schema); err != nil {
			return nil, err
		}
	}
	return schema, nil
}

func tableNames(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func columns(ctx context.Context, db *sql.DB, table string) ([]storage.Column, error) {
	query := storage.SQLiteDialect.Builder().WriteQuery("PRAGMA table_info(").WriteIdentifier(table).WriteQuery(")").String()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cols []storage.Column
	for rows.Next() {
		var (
			cid      int
			name     string
			dataType string
			notNull  int
			dflt     sql.NullString
			pk       int
		)
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, storage.Column{
			Name:       name,
			DataType:   dataType,
			Nullable:   notNull == 0 && pk == 0,
			PrimaryKey: pk > 0,
		})
	}
	return cols, rows.Err()
}

func foreignKeys(ctx context.Context, db *sql.DB, table string, schema *storage.Schema) ([]storage.ForeignKey, error) {
	query := storage.SQLiteDialect.Builder().WriteQuery("PRAGMA foreign_key_list(").WriteIdentifier(table).WriteQuery(")").String()
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []storage.ForeignKey
	for rows.Next() {
		var (
			id, seq            int
			refTable, from     string
			to                 sql.NullString
			onUpdate, onDelete string
			match              string
		)
		if err := rows.Scan(&id, &seq, &refTable, &from, &to, &onUpdate, &onDelete, &match); err != nil {
			return nil, err
		}
		refColumn := to.String
		if !to.Valid || refColumn == "" {
			if ref, ok := schema.Table(refTable); ok {
				if pk := ref.PrimaryKey(); len(pk) > seq {
					refColumn = pk[seq]
				}
			}
		}
		fks = append(fks, storage.ForeignKey{Column: from, RefTable: refTable, RefColumn: refColumn})
	}
	return fks, rows.Err()
}
