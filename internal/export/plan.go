package export

import (
	"context"

	"go.uber.org/zap"

	"github.com/pancaim/cdm/internal/cdm"
	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/semantic"
	"github.com/pancaim/cdm/pkg/storage"
)

// TablePlan is the resolved windowed fetch of one table.
type TablePlan struct {
	Window        cdm.Window
	SubjectColumn string
	// Columns are the exported columns in ordinal order, raw companions
	// excluded.
	Columns []string
}

// Query returns the windowed fetch of subject id.
func (tp TablePlan) Query(id int64) storage.WindowQuery {
	return storage.WindowQuery{
		Table:         tp.Window.Table,
		Columns:       tp.Columns,
		SubjectColumn: tp.SubjectColumn,
		SubjectID:     id,
		OrderBy:       tp.Window.DateField,
		Limit:         tp.Window.MaxSlots,
	}
}

// Plan is the reflected schema resolved against the window policy.
type Plan struct {
	// PrimaryColumn is the subject key of the primary table.
	PrimaryColumn string
	// Tables are in policy order.
	Tables []TablePlan
}

// Table returns the plan of table.
func (p *Plan) Table(name string) (TablePlan, bool) {
	for _, tp := range p.Tables {
		if tp.Window.Table == name {
			return tp, true
		}
	}
	return TablePlan{}, false
}

// Prepare reflects the schema once and resolves every table of the policy.
// A reflected table without a window, a window whose date column does not
// exist and a table without a subject column are data errors. Policy tables
// the schema lacks are skipped.
func (e *Exporter) Prepare(ctx context.Context) (*Plan, error) {
	schema, err := e.store.Reflect(ctx)
	if err != nil {
		return nil, err
	}

	for _, name := range schema.TableNames() {
		if _, ok := e.policy.Lookup(name); !ok {
			return nil, cdmerrors.New(cdmerrors.ErrorTypeData, "table has no export window").
				WithDetail("table", name)
		}
	}

	primary, ok := schema.Table(cdm.PrimaryTable)
	if !ok {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeData, "primary table not found").
			WithDetail("table", cdm.PrimaryTable)
	}
	pk := primary.PrimaryKey()
	if len(pk) != 1 {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeData, "primary table needs a single column primary key").
			WithDetail("table", cdm.PrimaryTable).
			WithDetail("primary_key", pk)
	}

	plan := &Plan{PrimaryColumn: pk[0]}
	for _, w := range e.policy {
		table, ok := schema.Table(w.Table)
		if !ok {
			e.logger.Warn("table not found, skipping", zap.String("table", w.Table))
			continue
		}
		if _, ok := table.Column(w.DateField); !ok {
			return nil, cdmerrors.New(cdmerrors.ErrorTypeData, "window date column not found").
				WithDetail("table", w.Table).
				WithDetail("column", w.DateField)
		}
		subject, err := subjectColumn(table, plan.PrimaryColumn)
		if err != nil {
			return nil, err
		}
		plan.Tables = append(plan.Tables, TablePlan{
			Window:        w,
			SubjectColumn: subject,
			Columns:       exportColumns(table),
		})
	}
	return plan, nil
}

// subjectColumn resolves the column of table holding the subject id: the
// key itself for the primary table, otherwise the column referencing it,
// falling back to a column of the same name for schemas without declared
// foreign keys.
func subjectColumn(table *storage.Table, key string) (string, error) {
	if table.Name == cdm.PrimaryTable {
		return key, nil
	}
	if col, ok := table.ReferenceTo(cdm.PrimaryTable, key); ok {
		return col, nil
	}
	if _, ok := table.Column(key); ok {
		return key, nil
	}
	return "", cdmerrors.New(cdmerrors.ErrorTypeData, "table has no subject column").
		WithDetail("table", table.Name).
		WithDetail("references", cdm.PrimaryTable+"."+key)
}

func exportColumns(table *storage.Table) []string {
	cols := make([]string, 0, len(table.Columns))
	for _, c := range table.Columns {
		if !semantic.IsRawCompanion(c.Name) {
			cols = append(cols, c.Name)
		}
	}
	return cols
}
