package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pancaim/cdm/internal/cdm"
	"github.com/pancaim/cdm/pkg/storage"
	"github.com/pancaim/cdm/pkg/testutil"
)

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

var fixture = []string{
	`CREATE TABLE person (
		pancaim_id INTEGER PRIMARY KEY,
		sex TEXT NOT NULL,
		sex_raw_value TEXT,
		date_of_interview TEXT,
		death_date TEXT
	)`,
	`CREATE TABLE surgery (
		id INTEGER PRIMARY KEY,
		pancaim_id INTEGER NOT NULL REFERENCES person,
		date_of_surgery TEXT,
		surgery_purpose TEXT
	)`,
	`INSERT INTO person VALUES (7, 'female', 'F', '2020-03-01', NULL)`,
	`INSERT INTO surgery VALUES (1, 7, '2021-01-01', 'curative')`,
}

const mappingsYAML = `
person:
  sex:
    values:
      F: {term: female}
      M: {term: male}
  death_date:
    date_formats:
      - {input: "%d/%m/%Y", output: "%Y-%m-%d"}
`

// writeConfig writes a sqlite export configuration and returns its path
// and export folder.
func writeConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	db := testutil.SQLiteFile(t, fixture...)
	exportDir := filepath.Join(dir, "out")
	require.NoError(t, os.Mkdir(exportDir, 0o750))
	mappings := filepath.Join(dir, "mappings.yaml")
	require.NoError(t, os.WriteFile(mappings, []byte(mappingsYAML), 0o600))

	cfg := "database:\n  driver: sqlite\n  dsn: " + db + "\n" +
		"cdm_schema: cdm_schema\n" +
		"export_folder: " + exportDir + "\n" +
		"mappings: " + mappings + "\n" +
		"logging:\n  level: error\n"
	path := filepath.Join(dir, "export.yaml")
	require.NoError(t, os.WriteFile(path, []byte(cfg), 0o600))
	return path, exportDir
}

func TestTermsCommand(t *testing.T) {
	out, err := execute(t, "", "terms")
	require.NoError(t, err)

	var want bytes.Buffer
	require.NoError(t, cdm.Terms().WriteCSV(&want))
	assert.Equal(t, want.String(), out)
}

func TestDriversCommand(t *testing.T) {
	out, err := execute(t, "", "drivers")
	require.NoError(t, err)
	for _, d := range []string{"mssql", "mysql", "postgres", "postgresql", "sqlite", "sqlserver"} {
		assert.Contains(t, out, "  - "+d+"\n")
	}
	assert.Contains(t, out, "  - hier\n")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "cdm v"+version+"\n"))
}

func TestValidateCommand(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := execute(t, "", "validate", "--config", path, "--connect")
	require.NoError(t, err)
	assert.Equal(t, "configuration is valid\n", out)

	_, err = execute(t, "", "validate", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestExportCommand(t *testing.T) {
	path, exportDir := writeConfig(t)

	out, err := execute(t, "", "export", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "exported 1 subjects (2 rows)")

	runs, err := os.ReadDir(exportDir)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	// Policy tables missing from the fixture are skipped.
	b, err := os.ReadFile(filepath.Join(exportDir, runs[0].Name(), "7.json"))
	require.NoError(t, err)
	assert.Equal(t, `person
    - item 0
        - pancaim_id = 7
        - sex = female
        - date_of_interview = 2020-03-01
        - death_date = null
surgery
    - item 0
        - id = 1
        - pancaim_id = 7
        - date_of_surgery = 2021-01-01
        - surgery_purpose = curative`, string(b))
}

func TestNormalizeCommand(t *testing.T) {
	path, _ := writeConfig(t)

	in := `{"pancaim_id": 9, "sex": " M", "death_date": "14/05/2020"}
{"pancaim_id": "10", "sex": "x", "date_of_interview": "2021-01-01"}
`
	out, err := execute(t, in, "normalize", "--config", path, "--table", "person")
	require.NoError(t, err)
	assert.Equal(t,
		`{"pancaim_id":null,"sex":"male","sex_raw_value":"M","date_of_interview":null,"death_date":"2020-05-14"}`+"\n"+
			`{"pancaim_id":null,"sex":"UNMAPPED","sex_raw_value":"x","date_of_interview":null,"death_date":null}`+"\n",
		out)

	_, err = execute(t, "", "normalize", "--config", path, "--table", "biopsy")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table not found")
}

func TestNeedsPassword(t *testing.T) {
	assert.True(t, needsPassword(storage.Params{Driver: "postgres", Host: "db"}))
	assert.False(t, needsPassword(storage.Params{Driver: "postgres", Password: "x"}))
	assert.False(t, needsPassword(storage.Params{Driver: "mysql", DSN: "u@tcp(db)/x"}))
	assert.False(t, needsPassword(storage.Params{Driver: "sqlite", Database: "cdm.db"}))

	assert.Equal(t, "reader@db.local:5432/pancaim",
		describeParams(storage.Params{Username: "reader", Host: "db.local", Port: 5432, Database: "pancaim"}))
}
