// Package postgres is the PostgreSQL storage backend, built on a pgx
// connection pool. Tables are reflected from information_schema.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/logger"
	"github.com/pancaim/cdm/pkg/storage"
)

// DriverName is the registry name of this backend. It is also registered
// as "postgresql".
const DriverName = "postgres"

func init() {
	storage.Register(DriverName, Open)
	storage.Register("postgresql", Open)
}

const (
	maxConns        = 4
	maxConnIdleTime = 5 * time.Minute
)

// Store is a PostgreSQL storage.Store.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	logger *zap.Logger
}

// ConnString builds a pgx connection URL from params. An explicit DSN wins.
func ConnString(params storage.Params) string {
	if params.DSN != "" {
		return params.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		Path:   "/" + params.Database,
	}
	host := params.Host
	if params.Port > 0 {
		host = net.JoinHostPort(host, strconv.Itoa(params.Port))
	}
	u.Host = host
	switch {
	case params.Username != "" && params.Password != "":
		u.User = url.UserPassword(params.Username, params.Password)
	case params.Username != "":
		u.User = url.User(params.Username)
	}
	if len(params.Query) > 0 {
		q := url.Values{}
		for k, v := range params.Query {
			q.Set(k, v)
		}
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// Open creates the pool and checks connectivity.
func Open(ctx context.Context, params storage.Params) (storage.Store, error) {
	cfg, err := pgxpool.ParseConfig(ConnString(params))
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "failed to parse connection parameters")
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = 0
	cfg.MaxConnIdleTime = maxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConnection, "failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeConnection, "failed to connect").
			WithDetail("host", params.Host).
			WithDetail("database", params.Database)
	}

	schema := params.Schema
	if schema == "" {
		schema = "public"
	}
	s := &Store{
		pool:   pool,
		schema: schema,
		logger: logger.Get().With(zap.String("component", "storage"), zap.String("driver", DriverName)),
	}
	s.logger.Debug("connected to PostgreSQL",
		zap.String("host", params.Host),
		zap.String("database", params.Database),
		zap.String("schema", schema))
	return s, nil
}

const (
	columnsQuery = `
		SELECT c.table_name, c.column_name, c.data_type, c.is_nullable
		FROM information_schema.columns c
		JOIN information_schema.tables t
		  ON t.table_schema = c.table_schema AND t.table_name = c.table_name
		WHERE c.table_schema = $1 AND t.table_type = 'BASE TABLE'
		ORDER BY c.table_name, c.ordinal_position`

	primaryKeysQuery = `
		SELECT kcu.table_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY' AND tc.table_schema = $1`

	foreignKeysQuery = `
		SELECT kcu.table_name, kcu.column_name, ccu.table_name, ccu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON kcu.constraint_name = tc.constraint_name AND kcu.table_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
		  ON ccu.constraint_name = tc.constraint_name AND ccu.constraint_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY' AND tc.table_schema = $1
		ORDER BY kcu.table_name, kcu.ordinal_position`
)

// Reflect implements storage.Store.
func (s *Store) Reflect(ctx context.Context) (*storage.Schema, error) {
	schema := storage.NewSchema(s.schema)

	if err := s.each(ctx, columnsQuery, func(r pgx.Rows) error {
		var table, column, dataType, nullable string
		if err := r.Scan(&table, &column, &dataType, &nullable); err != nil {
			return err
		}
		t, ok := schema.Tables[table]
		if !ok {
			t = &storage.Table{Name: table}
			schema.Tables[table] = t
		}
		t.Columns = append(t.Columns, storage.Column{Name: column, DataType: dataType, Nullable: nullable == "YES"})
		return nil
	}); err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "failed to reflect columns").
			WithDetail("schema", s.schema)
	}

	if err := s.each(ctx, primaryKeysQuery, func(r pgx.Rows) error {
		var table, column string
		if err := r.Scan(&table, &column); err != nil {
			return err
		}
		if t, ok := schema.Tables[table]; ok {
			for i := range t.Columns {
				if t.Columns[i].Name == column {
					t.Columns[i].PrimaryKey = true
				}
			}
		}
		return nil
	}); err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "failed to reflect primary keys").
			WithDetail("schema", s.schema)
	}

	if err := s.each(ctx, foreignKeysQuery, func(r pgx.Rows) error {
		var fk storage.ForeignKey
		var table string
		if err := r.Scan(&table, &fk.Column, &fk.RefTable, &fk.RefColumn); err != nil {
			return err
		}
		if t, ok := schema.Tables[table]; ok {
			t.ForeignKeys = append(t.ForeignKeys, fk)
		}
		return nil
	}); err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "failed to reflect foreign keys").
			WithDetail("schema", s.schema)
	}

	s.logger.Debug("schema reflected",
		zap.String("schema", s.schema),
		zap.Int("tables", len(schema.Tables)))
	return schema, nil
}

func (s *Store) each(ctx context.Context, query string, fn func(pgx.Rows) error) error {
	rows, err := s.pool.Query(ctx, query, s.schema)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		if err := fn(rows); err != nil {
			return err
		}
	}
	return rows.Err()
}

// DistinctIDs implements storage.Store.
func (s *Store) DistinctIDs(ctx context.Context, table, column string) ([]int64, error) {
	query := storage.PostgresDialect.DistinctSQL(s.schema, table, column)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "subject discovery failed").
			WithDetail("table", table)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "subject discovery failed").
			WithDetail("table", table).
			WithDetail("column", column)
	}
	return ids, nil
}

// FetchWindow implements storage.Store.
func (s *Store) FetchWindow(ctx context.Context, q storage.WindowQuery) ([]storage.Row, error) {
	query := storage.PostgresDialect.WindowSQL(s.schema, q)
	rows, err := s.pool.Query(ctx, query, q.SubjectID)
	if err != nil {
		return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeQuery, "windowed fetch failed").
			WithDetail("table", q.Table).
			WithDetail("subject_id", q.SubjectID)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	var out []storage.Row
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, cdmerrors.Wrap(err, cdmerrors.ErrorTypeData, "failed to get row values").
				WithDetail("table", q.Table)
		}
		for i, v := range values {
			values[i] = convertValue(v)
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

// convertValue maps pgx decoded values onto plain scalars.
func convertValue(value any) any {
	switch v := value.(type) {
	case []byte:
		return string(v)
	case pgtype.Numeric:
		if !v.Valid {
			return nil
		}
		f, err := v.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return fmt.Sprintf("%x-%x-%x-%x-%x", v[0:4], v[4:6], v[6:8], v[8:10], v[10:16])
	case int16:
		return int64(v)
	case int32:
		return int64(v)
	default:
		return v
	}
}

// Ping implements storage.Store.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConnection, "ping failed")
	}
	return nil
}

// Close implements storage.Store.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}
