// Package cdm exports a clinical common data model, one document per
// subject, and normalizes heterogeneous source values into the model.
//
// # Architecture
//
// The repository is organized around two flows:
//
// 1. Normalization: every model field gets a semantic.Mapper built once from
// its column shape (date field, controlled-term field, pass-through field),
// a mapping table and a date format cascade. A lookup cleans the source
// value, maps it and resolves dates; controlled-term fields that cannot be
// mapped receive the UNMAPPED placeholder instead of being dropped.
//
// 2. Export: the configured schema is reflected once, every table is
// resolved against the window policy (date field and maximum row count per
// table), and for each subject of the person table the most recent rows of
// every table are written to export_folder/<run timestamp>/<subject id>.json
// in the hierarchical format or as strict JSON.
//
// # Packages
//
//   - pkg/semantic, pkg/semantic/dateformat: value normalization
//   - pkg/formats: ordered documents, hierarchical and JSON encoders
//   - pkg/storage: reflection and windowed reads for postgres, mysql, sqlite and sql server
//   - internal/cdm: the fixed model (window policy, controlled terms, record builder)
//   - internal/export: subject discovery, windowed fetch, run directory writer
//   - pkg/config, pkg/logger, pkg/cdmerrors, pkg/metrics: ambient stack
//   - cmd/cdm: the command line
//
// # Quick Start
//
//	cdm validate --config export.yaml --connect
//	cdm export --config export.yaml
//	cdm terms > controlled_terms.csv
package cdm
