package export

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"github.com/pancaim/cdm/internal/cdm"
	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/formats"
	"github.com/pancaim/cdm/pkg/metrics"
	"github.com/pancaim/cdm/pkg/storage"
	"github.com/pancaim/cdm/pkg/storage/sqlite"
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
		surgical_technique TEXT,
		surgical_technique_raw_value TEXT
	)`,
	`CREATE TABLE lab (
		id INTEGER PRIMARY KEY,
		pancaim_id INTEGER,
		lab_date TEXT,
		ca19_9 REAL
	)`,
	`INSERT INTO person VALUES (1, 'female', 'F', '2020-03-01'), (2, 'male', 'M', NULL)`,
	`INSERT INTO surgery VALUES
		(1, 1, '2021-01-01', 'open', 'o'),
		(2, 1, '2022-06-01', 'robot-assisted', 'robot'),
		(3, 1, '2019-03-01', 'laparoscopic', 'lap'),
		(4, 2, '2018-01-01', 'open', 'open')`,
	`INSERT INTO lab VALUES (1, 1, '2021-02-02', 37.5)`,
}

var testPolicy = cdm.WindowPolicy{
	{Table: "person", DateField: "date_of_interview", MaxSlots: 1},
	{Table: "surgery", DateField: "date_of_surgery", MaxSlots: 2},
	{Table: "lab", DateField: "lab_date", MaxSlots: 15},
}

const subject1 = `person
    - item 0
        - pancaim_id = 1
        - sex = female
        - date_of_interview = 2020-03-01
surgery
    - item 0
        - id = 2
        - pancaim_id = 1
        - date_of_surgery = 2022-06-01
        - surgical_technique = robot-assisted
    - item 1
        - id = 1
        - pancaim_id = 1
        - date_of_surgery = 2021-01-01
        - surgical_technique = open
lab
    - item 0
        - id = 1
        - pancaim_id = 1
        - lab_date = 2021-02-02
        - ca19_9 = 37.5`

const subject2 = `person
    - item 0
        - pancaim_id = 2
        - sex = male
        - date_of_interview = null
surgery
    - item 0
        - id = 4
        - pancaim_id = 2
        - date_of_surgery = 2018-01-01
        - surgical_technique = open
lab`

var runStart = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

type ExportSuite struct {
	testutil.IntegrationTestSuite
	store storage.Store
}

func TestExportSuite(t *testing.T) {
	suite.Run(t, new(ExportSuite))
}

func (s *ExportSuite) SetupSuite() {
	s.IntegrationTestSuite.SetupSuite()

	path := filepath.Join(s.TempDir(), "cdm.db")
	testutil.ExecSQLite(s.T(), path, fixture...)

	store, err := storage.Open(s.Context(), storage.Params{Driver: sqlite.DriverName, DSN: path})
	s.Require().NoError(err)
	s.store = store
}

func (s *ExportSuite) TearDownSuite() {
	if s.store != nil {
		_ = s.store.Close()
	}
	s.IntegrationTestSuite.TearDownSuite()
}

func (s *ExportSuite) newExporter(opts Options) *Exporter {
	if opts.Policy == nil {
		opts.Policy = testPolicy
	}
	if opts.Root == "" {
		opts.Root = s.MkdirTemp("export-*")
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return runStart }
	}
	opts.Logger = testutil.TestLogger(s.T())

	exp, err := New(s.store, opts)
	s.Require().NoError(err)
	return exp
}

func (s *ExportSuite) readFile(path string) string {
	b, err := os.ReadFile(path)
	s.Require().NoError(err)
	return string(b)
}

func (s *ExportSuite) TestRun() {
	root := s.MkdirTemp("export-*")
	collector := metrics.NewCollector()
	exp := s.newExporter(Options{Root: root, Metrics: collector})

	summary, err := exp.Run(s.Context())
	s.Require().NoError(err)

	s.Equal(filepath.Join(root, "20240102-030405"), summary.RunDir)
	s.Equal(2, summary.Subjects)
	s.Equal(2, summary.Files)
	s.Equal(map[string]int{"person": 2, "surgery": 3, "lab": 1}, summary.Rows)
	s.Equal(6, summary.TotalRows())

	entries, err := os.ReadDir(summary.RunDir)
	s.Require().NoError(err)
	s.Len(entries, 2)
	s.Equal(subject1, s.readFile(filepath.Join(summary.RunDir, "1.json")))
	s.Equal(subject2, s.readFile(filepath.Join(summary.RunDir, "2.json")))

	reg := collector.Registry()
	count, err := promtest.GatherAndCount(reg, "cdm_export_rows_total")
	s.Require().NoError(err)
	s.Equal(3, count)
	count, err = promtest.GatherAndCount(reg, "cdm_export_runs_total")
	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *ExportSuite) TestRunNeverReusesRunDirectory() {
	root := s.MkdirTemp("export-*")
	exp := s.newExporter(Options{Root: root})

	first, err := exp.Run(s.Context())
	s.Require().NoError(err)
	second, err := exp.Run(s.Context())
	s.Require().NoError(err)

	s.Equal(filepath.Join(root, "20240102-030405"), first.RunDir)
	s.Equal(filepath.Join(root, "20240102-030405-1"), second.RunDir)
	s.Equal(subject1, s.readFile(filepath.Join(first.RunDir, "1.json")))
	s.Equal(subject1, s.readFile(filepath.Join(second.RunDir, "1.json")))
}

func (s *ExportSuite) TestWindowKeepsMostRecentRows() {
	exp := s.newExporter(Options{})
	plan, err := exp.Prepare(s.Context())
	s.Require().NoError(err)

	doc, counts, err := exp.Document(s.Context(), plan, 1)
	s.Require().NoError(err)
	s.Equal(2, counts["surgery"])

	v, ok := doc.Get("surgery")
	s.Require().True(ok)
	items := v.(*formats.Map)
	s.Equal([]string{"item 0", "item 1"}, items.Keys())

	var dates []any
	items.Range(func(_ string, item any) bool {
		d, _ := item.(*formats.Map).Get("date_of_surgery")
		dates = append(dates, d)
		return true
	})
	s.Equal([]any{"2022-06-01", "2021-01-01"}, dates)
}

func (s *ExportSuite) TestZeroSlotsExportsEmptyTable() {
	policy := cdm.WindowPolicy{
		{Table: "person", DateField: "date_of_interview", MaxSlots: 1},
		{Table: "surgery", DateField: "date_of_surgery", MaxSlots: 0},
		{Table: "lab", DateField: "lab_date", MaxSlots: 15},
	}
	exp := s.newExporter(Options{Policy: policy})
	plan, err := exp.Prepare(s.Context())
	s.Require().NoError(err)

	doc, counts, err := exp.Document(s.Context(), plan, 1)
	s.Require().NoError(err)
	s.Equal(0, counts["surgery"])

	v, ok := doc.Get("surgery")
	s.Require().True(ok, "table key stays present")
	s.Equal(0, v.(*formats.Map).Len())
	s.Equal([]string{"person", "surgery", "lab"}, doc.Keys())
}

func (s *ExportSuite) TestJSONFormat() {
	exp := s.newExporter(Options{Encoder: &formats.JSONEncoder{}})

	summary, err := exp.Run(s.Context())
	s.Require().NoError(err)

	s.Equal(`{"person":{"item 0":{"pancaim_id":2,"sex":"male","date_of_interview":null}},`+
		`"surgery":{"item 0":{"id":4,"pancaim_id":2,"date_of_surgery":"2018-01-01","surgical_technique":"open"}},`+
		`"lab":{}}`+"\n",
		s.readFile(filepath.Join(summary.RunDir, "2.json")))
}

func (s *ExportSuite) TestPrepare() {
	policy := append(cdm.WindowPolicy{}, testPolicy...)
	policy = append(policy, cdm.Window{Table: "tumor", DateField: "tumor_date", MaxSlots: 10})
	exp := s.newExporter(Options{Policy: policy})

	plan, err := exp.Prepare(s.Context())
	s.Require().NoError(err)

	s.Equal("pancaim_id", plan.PrimaryColumn)
	s.Len(plan.Tables, 3, "tables missing from the schema are skipped")

	surgery, ok := plan.Table("surgery")
	s.Require().True(ok)
	s.Equal("pancaim_id", surgery.SubjectColumn)
	s.Equal([]string{"id", "pancaim_id", "date_of_surgery", "surgical_technique"}, surgery.Columns)

	person, _ := plan.Table("person")
	s.Equal([]string{"pancaim_id", "sex", "date_of_interview"}, person.Columns)

	lab, _ := plan.Table("lab")
	s.Equal("pancaim_id", lab.SubjectColumn)

	q := surgery.Query(7)
	s.Equal(storage.WindowQuery{
		Table:         "surgery",
		Columns:       surgery.Columns,
		SubjectColumn: "pancaim_id",
		SubjectID:     7,
		OrderBy:       "date_of_surgery",
		Limit:         2,
	}, q)
}

func (s *ExportSuite) TestPrepareDataErrors() {
	tests := []struct {
		name   string
		policy cdm.WindowPolicy
		msg    string
	}{
		{
			name:   "table without window",
			policy: testPolicy[:2],
			msg:    "table has no export window",
		},
		{
			name: "missing date column",
			policy: cdm.WindowPolicy{
				testPolicy[0],
				testPolicy[1],
				{Table: "lab", DateField: "drawn_at", MaxSlots: 15},
			},
			msg: "window date column not found",
		},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			exp := s.newExporter(Options{Policy: tt.policy})
			_, err := exp.Run(s.Context())
			s.Require().Error(err)
			s.True(cdmerrors.IsType(err, cdmerrors.ErrorTypeData))
			s.Contains(err.Error(), tt.msg)
		})
	}
}

func (s *ExportSuite) TestNewValidatesOptions() {
	file := filepath.Join(s.TempDir(), "not-a-dir")
	s.Require().NoError(os.WriteFile(file, nil, 0o600))

	tests := []struct {
		name    string
		opts    Options
		errType cdmerrors.ErrorType
	}{
		{"no root", Options{Policy: testPolicy}, cdmerrors.ErrorTypeConfig},
		{"missing root", Options{Policy: testPolicy, Root: filepath.Join(s.TempDir(), "missing")}, cdmerrors.ErrorTypeConfig},
		{"root is a file", Options{Policy: testPolicy, Root: file}, cdmerrors.ErrorTypeConfig},
		{"invalid policy", Options{Policy: cdm.WindowPolicy{{Table: "lab"}}, Root: s.TempDir()}, cdmerrors.ErrorTypeValidation},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			_, err := New(s.store, tt.opts)
			s.Require().Error(err)
			s.True(cdmerrors.IsType(err, tt.errType))
		})
	}
}
