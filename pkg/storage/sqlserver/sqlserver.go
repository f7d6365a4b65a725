// Package sqlserver is the Microsoft SQL Server storage backend, built on
// microsoft/go-mssqldb. The configured schema defaults to dbo.
package sqlserver

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"strconv"

	"github.com/microsoft/go-mssqldb/msdsn"

	_ "github.com/microsoft/go-mssqldb" // registers the "sqlserver" database/sql driver

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/storage"
	"github.com/pancaim/cdm/pkg/storage/sqlstore"
)

// DriverName is the registry name of this backend.
const DriverName = "sqlserver"

const (
	defaultPort   = 1433
	defaultSchema = "dbo"
)

func init() {
	storage.Register(DriverName, Open)
	storage.Register("mssql", Open)
}

// DSN builds a sqlserver:// URL from params. An explicit DSN wins.
func DSN(params storage.Params) string {
	if params.DSN != "" {
		return params.DSN
	}
	port := params.Port
	if port == 0 {
		port = defaultPort
	}
	u := &url.URL{
		Scheme: "sqlserver",
		Host:   net.JoinHostPort(params.Host, strconv.Itoa(port)),
	}
	if params.Username != "" {
		u.User = url.UserPassword(params.Username, params.Password)
	}
	q := url.Values{}
	for k, v := range params.Query {
		q.Set(k, v)
	}
	if params.Database != "" {
		q.Set("database", params.Database)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// Open connects and checks connectivity.
func Open(ctx context.Context, params storage.Params) (storage.Store, error) {
	dsn := DSN(params)
	if _, err := msdsn.Parse(dsn); err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "invalid sqlserver dsn")
	}
	db, err := sqlstore.Open(ctx, "sqlserver", dsn)
	if err != nil {
		return nil, err
	}
	schema := params.Schema
	if schema == "" {
		schema = defaultSchema
	}
	return sqlstore.New(db, storage.SQLServerDialect, schema, Reflect, DriverName), nil
}

const (
	columnsQuery = `
		SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE,
		       CASE WHEN k.COLUMN_NAME IS NULL THEN 0 ELSE 1 END
		FROM INFORMATION_SCHEMA.COLUMNS c
		JOIN INFORMATION_SCHEMA.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		LEFT JOIN (
		    SELECT ku.TABLE_SCHEMA, ku.TABLE_NAME, ku.COLUMN_NAME
		    FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
		    JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE ku
		      ON ku.CONSTRAINT_SCHEMA = tc.CONSTRAINT_SCHEMA AND ku.CONSTRAINT_NAME = tc.CONSTRAINT_NAME
		    WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) k ON k.TABLE_SCHEMA = c.TABLE_SCHEMA AND k.TABLE_NAME = c.TABLE_NAME AND k.COLUMN_NAME = c.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = @p1 AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	foreignKeysQuery = `
		SELECT fk.TABLE_NAME, fk.COLUMN_NAME, pk.TABLE_NAME, pk.COLUMN_NAME
		FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE fk
		  ON fk.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA AND fk.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
		JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE pk
		  ON pk.CONSTRAINT_SCHEMA = rc.UNIQUE_CONSTRAINT_SCHEMA AND pk.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
		 AND pk.ORDINAL_POSITION = fk.ORDINAL_POSITION
		WHERE fk.TABLE_SCHEMA = @p1
		ORDER BY fk.TABLE_NAME, fk.ORDINAL_POSITION`
)

// Reflect reads the tables of schema from INFORMATION_SCHEMA.
func Reflect(ctx context.Context, db *sql.DB, schemaName string) (*storage.Schema, error) {
	schema := storage.NewSchema(schemaName)

	rows, err := db.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var table, column, dataType, nullable string
		var primary int
		if err := rows.Scan(&table, &column, &dataType, &nullable, &primary); err != nil {
			return nil, err
		}
		t, ok := schema.Tables[table]
		if !ok {
			t = &storage.Table{Name: table}
			schema.Tables[table] = t
		}
		t.Columns = append(t.Columns, storage.Column{
			Name:       column,
			DataType:   dataType,
			Nullable:   nullable == "YES",
			PrimaryKey: primary == 1,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	fkRows, err := db.QueryContext(ctx, foreignKeysQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer fkRows.Close()
	for fkRows.Next() {
		var table string
		var fk storage.ForeignKey
		if err := fkRows.Scan(&table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, err
		}
		if t, ok := schema.Tables[table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
	}
	return schema, fkRows.Err()
}
