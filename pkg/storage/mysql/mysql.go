// Package mysql is the MySQL and MariaDB storage backend, built on
// go-sql-driver/mysql. In MySQL a schema is a database, so the configured
// schema name defaults to the database name.
package mysql

import (
	"context"
	"database/sql"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"

	"github.com/pancaim/cdm/pkg/storage"
	"github.com/pancaim/cdm/pkg/storage/sqlstore"
)

// DriverName is the registry name of this backend.
const DriverName = "mysql"

const defaultPort = 3306

func init() {
	storage.Register(DriverName, Open)
}

// DSN builds a go-sql-driver DSN from params. An explicit DSN wins. DATE
// and DATETIME columns are decoded into time.Time.
func DSN(params storage.Params) string {
	if params.DSN != "" {
		return params.DSN
	}
	cfg := gomysql.NewConfig()
	cfg.User = params.Username
	cfg.Passwd = params.Password
	cfg.Net = "tcp"
	port := params.Port
	if port == 0 {
		port = defaultPort
	}
	cfg.Addr = net.JoinHostPort(params.Host, strconv.Itoa(port))
	cfg.DBName = params.Database
	cfg.ParseTime = true
	if len(params.Query) > 0 {
		cfg.Params = make(map[string]string, len(params.Query))
		for k, v := range params.Query {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN()
}

// Open connects and checks connectivity.
func Open(ctx context.Context, params storage.Params) (storage.Store, error) {
	db, err := sqlstore.Open(ctx, "mysql", DSN(params))
	if err != nil {
		return nil, err
	}
	schema := params.Schema
	if schema == "" {
		schema = params.Database
	}
	return sqlstore.New(db, storage.MySQLDialect, schema, Reflect, DriverName), nil
}

const (
	columnsQuery = `
		SELECT c.TABLE_NAME, c.COLUMN_NAME, c.DATA_TYPE, c.IS_NULLABLE, c.COLUMN_KEY
		FROM information_schema.COLUMNS c
		JOIN information_schema.TABLES t
		  ON t.TABLE_SCHEMA = c.TABLE_SCHEMA AND t.TABLE_NAME = c.TABLE_NAME
		WHERE c.TABLE_SCHEMA = ? AND t.TABLE_TYPE = 'BASE TABLE'
		ORDER BY c.TABLE_NAME, c.ORDINAL_POSITION`

	foreignKeysQuery = `
		SELECT TABLE_NAME, COLUMN_NAME, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
		FROM information_schema.KEY_COLUMN_USAGE
		WHERE TABLE_SCHEMA = ? AND REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY TABLE_NAME, ORDINAL_POSITION`
)

// Reflect reads the tables of schema from information_schema.
func Reflect(ctx context.Context, db *sql.DB, schemaName string) (*storage.Schema, error) {
	schema := storage.NewSchema(schemaName)

	rows, err := db.QueryContext(ctx, columnsQuery, schemaName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var table, column, dataType, nullable, key string
		if err := rows.Scan(&table, &column, &dataType, &nullable, &key); err != nil {
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
			PrimaryKey: key == "PRI",
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
