// Package cdm declares the fixed shape of the common data model: the
// schema the tables are declared in, the primary entity, the export window
// of every table and the controlled-term vocabularies.
package cdm

import (
	"github.com/pancaim/cdm/pkg/cdmerrors"
)

const (
	// Schema is the schema name the model is declared against. Exports
	// translate it to the configured schema.
	Schema = "cdm_schema"
	// PrimaryTable holds one row per subject.
	PrimaryTable = "person"
	// SubjectColumn is the primary key of PrimaryTable.
	SubjectColumn = "pancaim_id"
)

// Window is the export window of one table: rows are ordered by DateField,
// newest first, and at most MaxSlots are kept.
type Window struct {
	Table     string
	DateField string
	MaxSlots  int
}

// WindowPolicy lists the exported tables in export order.
type WindowPolicy []Window

// DefaultPolicy returns the window policy of the model.
func DefaultPolicy() WindowPolicy {
	return WindowPolicy{
		{Table: "person", DateField: "date_of_interview", MaxSlots: 1},
		{Table: "body_measurement", DateField: "body_measurement_date", MaxSlots: 1},
		{Table: "lab", DateField: "lab_date", MaxSlots: 15},
		{Table: "lab2", DateField: "lab2_date", MaxSlots: 25},
		{Table: "prognosis", DateField: "prognosis_date", MaxSlots: 1},
		{Table: "surgery", DateField: "date_of_surgery", MaxSlots: 3},
		{Table: "therapy", DateField: "date_start_adjuvant_chemotherapy", MaxSlots: 2},
		{Table: "tumor", DateField: "tumor_date", MaxSlots: 10},
	}
}

// Lookup returns the window of table.
func (p WindowPolicy) Lookup(table string) (Window, bool) {
	for _, w := range p {
		if w.Table == table {
			return w, true
		}
	}
	return Window{}, false
}

// Tables returns the table names in policy order.
func (p WindowPolicy) Tables() []string {
	names := make([]string, len(p))
	for i, w := range p {
		names[i] = w.Table
	}
	return names
}

// Validate checks that every table appears once with a date field and a
// non-negative slot count.
func (p WindowPolicy) Validate() error {
	seen := make(map[string]struct{}, len(p))
	for _, w := range p {
		switch {
		case w.Table == "":
			return cdmerrors.New(cdmerrors.ErrorTypeValidation, "window without table name")
		case w.DateField == "":
			return cdmerrors.New(cdmerrors.ErrorTypeValidation, "window without date field").
				WithDetail("table", w.Table)
		case w.MaxSlots < 0:
			return cdmerrors.New(cdmerrors.ErrorTypeValidation, "negative max slots").
				WithDetail("table", w.Table).
				WithDetail("max_slots", w.MaxSlots)
		}
		if _, dup := seen[w.Table]; dup {
			return cdmerrors.New(cdmerrors.ErrorTypeValidation, "table has more than one window").
				WithDetail("table", w.Table)
		}
		seen[w.Table] = struct{}{}
	}
	return nil
}
