// Package sqlstore implements storage.Store on top of database/sql for the
// backends whose Go drivers plug into it (mysql, sqlite). Backends supply a
// dialect and a schema reflector.
package sqlstore

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/logger"
	"github.com/pancaim/cdm/pkg/storage"
)

// Reflector reads the tables of schema from db.
type Reflector func(ctx context.Context, db *sql.DB, schema string) (*storage.Schema, error)

// Store is a database/sql backed storage.Store.
type Store struct {
	db      *sql.DB
	dialect storage.Dialect
	schema  string
	reflect Reflector
	logger  *zap.Logger
}

// New wraps db. The Store owns db and closes it on Close.
func New(db *sql.DB, dialect storage.Dialect, schema string, reflect Reflector, driver string) *Store {
	return &Store{
		db:      db,
		dialect: dialect,
		schema:  schema,
		reflect: reflect,
		logger:  logger.Get().With(zap.String("component", "storage"), zap.String("driver", driver)),
	}
}

// Open opens db with driverName and dsn and checks connectivity.
func Open(ctx context.Context, driverName, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "invalid connection parameters").
			WithDetail("driver", driverName)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConnection, "failed to connect").
			WithDetail("driver", driverName)
	}
	return db, nil
}

// DB returns the underlying handle.
func (s *Store) DB() *sql.DB { return s.db }

// Reflect implements storage.Store.
func (s *Store) Reflect(ctx context.Context) (*storage.Schema, error) {
	schema, err := s.reflect(ctx, s.db, s.schema)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "schema reflection failed").
			WithDetail("schema", s.schema)
	}
	s.logger.Debug("schema reflected",
		zap.String("schema", s.schema),
		zap.Int("tables", len(schema.Tables)))
	return schema, nil
}

// DistinctIDs implements storage.Store.
func (s *Store) DistinctIDs(ctx context.Context, table, column string) ([]int64, error) {
	query := s.dialect.DistinctSQL(s.schema, table, column)
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "subject discovery failed").
			WithDetail("table", table)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id sql.NullInt64
		if err := rows.Scan(&id); err != nil {
			return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeData, "subject id is not an integer").
				WithDetail("table", table).
				WithDetail("column", column)
		}
		if id.Valid {
			ids = append(ids, id.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "subject discovery failed").
			WithDetail("table", table)
	}
	return ids, nil
}

// FetchWindow implements storage.Store.
func (s *Store) FetchWindow(ctx context.Context, q storage.WindowQuery) ([]storage.Row, error) {
	query := s.dialect.WindowSQL(s.schema, q)
	rows, err := s.db.QueryContext(ctx, query, q.SubjectID)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "windowed fetch failed").
			WithDetail("table", q.Table).
			WithDetail("subject_id", q.SubjectID)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "failed to read result columns").
			WithDetail("table", q.Table)
	}

	var out []storage.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeData, "failed to scan row").
				WithDetail("table", q.Table)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, storage.Row{Columns: columns, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "windowed fetch failed").
			WithDetail("table", q.Table).
			WithDetail("subject_id", q.SubjectID)
	}
	return out, nil
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConnection, "ping failed")
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	return s.db.Close()
}
