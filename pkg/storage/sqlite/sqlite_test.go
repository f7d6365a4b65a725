package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/storage"
	"github.com/pancaim/cdm/pkg/testutil"
)

var fixture = []string{
	`CREATE TABLE person (
		pancaim_id INTEGER PRIMARY KEY,
		sex TEXT NOT NULL,
		sex_raw_value TEXT,
		date_of_interview TEXT
	)`,
	`CREATE TABLE surgery (
		id INTEGER PRIMARY KEY,
		pancaim_id INTEGER NOT NULL REFERENCES person,
		date_of_surgery TEXT,
		surgical_technique TEXT
	)`,
	`INSERT INTO person VALUES (2, 'male', 'M', '2020-01-01'), (1, 'female', 'F', NULL)`,
	`INSERT INTO surgery (pancaim_id, date_of_surgery, surgical_technique) VALUES
		(1, '2021-01-01', 'open'),
		(1, NULL, 'laparoscopic'),
		(1, '2022-06-01', 'robotic'),
		(2, '2019-03-01', 'open')`,
}

func openFixture(t *testing.T) storage.Store {
	t.Helper()
	path := testutil.SQLiteFile(t, fixture...)
	store, err := storage.Open(testutil.TestContext(t), storage.Params{Driver: DriverName, DSN: path})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestReflect(t *testing.T) {
	store := openFixture(t)

	schema, err := store.Reflect(testutil.TestContext(t))
	require.NoError(t, err)
	assert.Equal(t, []string{"person", "surgery"}, schema.TableNames())

	person, ok := schema.Table("person")
	require.True(t, ok)
	assert.Equal(t, []string{"pancaim_id", "sex", "sex_raw_value", "date_of_interview"}, person.ColumnNames())
	assert.Equal(t, []string{"pancaim_id"}, person.PrimaryKey())
	sex, _ := person.Column("sex")
	assert.False(t, sex.Nullable)
	doi, _ := person.Column("date_of_interview")
	assert.True(t, doi.Nullable)

	surgery, ok := schema.Table("surgery")
	require.True(t, ok)
	assert.Equal(t, []storage.ForeignKey{{Column: "pancaim_id", RefTable: "person", RefColumn: "pancaim_id"}}, surgery.ForeignKeys)
}

func TestDistinctIDs(t *testing.T) {
	store := openFixture(t)

	ids, err := store.DistinctIDs(testutil.TestContext(t), "surgery", "pancaim_id")
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestFetchWindow(t *testing.T) {
	store := openFixture(t)
	ctx := testutil.TestContext(t)

	q := storage.WindowQuery{
		Table:         "surgery",
		Columns:       []string{"id", "date_of_surgery", "surgical_technique"},
		SubjectColumn: "pancaim_id",
		SubjectID:     1,
		OrderBy:       "date_of_surgery",
		Limit:         3,
	}
	rows, err := store.FetchWindow(ctx, q)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	var dates []any
	for _, r := range rows {
		v, _ := r.Get("date_of_surgery")
		dates = append(dates, v)
	}
	assert.Equal(t, []any{"2022-06-01", "2021-01-01", nil}, dates, "newest first, nulls last")

	q.Limit = 1
	rows, err = store.FetchWindow(ctx, q)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	technique, _ := rows[0].Get("surgical_technique")
	assert.Equal(t, "robotic", technique)
}

func TestFetchWindowUnknownTable(t *testing.T) {
	store := openFixture(t)

	_, err := store.FetchWindow(testutil.TestContext(t), storage.WindowQuery{
		Table: "biopsy", SubjectColumn: "pancaim_id", SubjectID: 1, OrderBy: "biopsy_date", Limit: 1,
	})
	require.Error(t, err)
	assert.True(t, cdmerrors.IsType(err, cdmerrors.ErrorTypeQuery))
}

func TestOpenNeedsPath(t *testing.T) {
	_, err := Open(testutil.TestContext(t), storage.Params{Driver: DriverName})
	require.Error(t, err)
	assert.True(t, cdmerrors.IsType(err, cdmerrors.ErrorTypeConfig))
}

func TestCanConnect(t *testing.T) {
	path := testutil.SQLiteFile(t, fixture...)
	ctx := testutil.TestContext(t)

	assert.True(t, storage.CanConnect(ctx, storage.Params{Driver: DriverName, DSN: path}, true))
	missingDir := filepath.Join(t.TempDir(), "missing", "cdm.db")
	assert.False(t, storage.CanConnect(ctx, storage.Params{Driver: DriverName, DSN: missingDir}, true))
}
