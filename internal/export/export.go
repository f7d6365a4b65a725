// Package export writes one document per subject from the common data
// model, keeping a bounded number of the most recent rows of every table.
//
// # Overview
//
// An export run:
//   - Reflects the configured schema once and resolves it against the
//     window policy (Prepare)
//   - Discovers the distinct subject ids of the primary table
//   - Fetches, per subject and per table, the rows of that subject ordered
//     by the table's date field, newest first, up to the table's slot count
//   - Writes export_folder/<run timestamp>/<subject id>.json per subject
//
// Subjects are processed one at a time and tables one at a time. Any failed
// query or write aborts the run. A run never writes into the directory of
// a previous run.
//
// # Basic Usage
//
//	exp, err := export.New(store, export.Options{
//	    Root:    cfg.ExportFolder,
//	    Encoder: formats.NewHierEncoder(),
//	    Metrics: metrics.NewCollector(),
//	})
//	if err != nil {
//	    return err
//	}
//	summary, err := exp.Run(ctx)
package export

import (
	"context"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/pancaim/cdm/internal/cdm"
	"github.com/pancaim/cdm/pkg/formats"
	"github.com/pancaim/cdm/pkg/logger"
	"github.com/pancaim/cdm/pkg/metrics"
	"github.com/pancaim/cdm/pkg/storage"
)

// ItemPrefix prefixes the position of a row within its table.
const ItemPrefix = "item "

// Options configure an Exporter. Zero values select the defaults.
type Options struct {
	// Policy defaults to cdm.DefaultPolicy.
	Policy cdm.WindowPolicy
	// Root is the existing directory run directories are created in.
	Root string
	// Encoder defaults to the hierarchical encoder.
	Encoder formats.Encoder
	// Metrics is optional.
	Metrics *metrics.Collector
	Logger  *zap.Logger
	// Now defaults to time.Now and names the run directory.
	Now func() time.Time
}

// Summary describes a finished run.
type Summary struct {
	RunDir   string
	Subjects int
	Files    int
	// Rows counts exported rows per table.
	Rows    map[string]int
	Elapsed time.Duration
}

// TotalRows returns the number of exported rows over all tables.
func (s Summary) TotalRows() int {
	n := 0
	for _, c := range s.Rows {
		n += c
	}
	return n
}

// Exporter runs exports against one store.
type Exporter struct {
	store   storage.Store
	policy  cdm.WindowPolicy
	root    string
	encoder formats.Encoder
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

// New creates an exporter. The policy must be valid and the root must be
// an existing directory.
func New(store storage.Store, opts Options) (*Exporter, error) {
	if opts.Policy == nil {
		opts.Policy = cdm.DefaultPolicy()
	}
	if err := opts.Policy.Validate(); err != nil {
		return nil, err
	}
	if err := checkRoot(opts.Root); err != nil {
		return nil, err
	}
	if opts.Encoder == nil {
		opts.Encoder = formats.NewHierEncoder()
	}
	if opts.Logger == nil {
		opts.Logger = logger.With(zap.String("component", "export"))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Exporter{
		store:   store,
		policy:  opts.Policy,
		root:    opts.Root,
		encoder: opts.Encoder,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}, nil
}

// Run prepares the plan, discovers the subjects and exports all of them.
func (e *Exporter) Run(ctx context.Context) (*Summary, error) {
	start := e.now()

	summary, err := e.run(ctx)
	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		e.metrics.ObserveRun(time.Since(start), status)
	}
	if err != nil {
		e.logger.Error("export failed", zap.Error(err))
		return nil, err
	}
	return summary, nil
}

func (e *Exporter) run(ctx context.Context) (*Summary, error) {
	plan, err := e.Prepare(ctx)
	if err != nil {
		return nil, err
	}
	ids, err := e.DiscoverSubjects(ctx, plan)
	if err != nil {
		return nil, err
	}
	return e.Export(ctx, plan, ids)
}

// DiscoverSubjects returns the distinct subject ids of the primary table in
// ascending order.
func (e *Exporter) DiscoverSubjects(ctx context.Context, plan *Plan) ([]int64, error) {
	return e.store.DistinctIDs(ctx, cdm.PrimaryTable, plan.PrimaryColumn)
}

// Export writes one artifact per subject into a new run directory.
func (e *Exporter) Export(ctx context.Context, plan *Plan, ids []int64) (*Summary, error) {
	start := time.Now()

	dir, err := createRunDir(e.root, e.now())
	if err != nil {
		return nil, err
	}
	e.logger.Info("export started",
		zap.String("run_dir", dir),
		zap.Int("subjects", len(ids)),
		zap.Int("tables", len(plan.Tables)),
		zap.String("format", e.encoder.Name()))

	summary := &Summary{RunDir: dir, Rows: make(map[string]int, len(plan.Tables))}
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, counts, err := e.Document(ctx, plan, id)
		if err != nil {
			return nil, err
		}
		size, err := writeArtifact(filepath.Join(dir, artifactName(id, e.encoder)), e.encoder, doc)
		if err != nil {
			return nil, err
		}

		summary.Subjects++
		summary.Files++
		for table, n := range counts {
			summary.Rows[table] += n
		}
		if e.metrics != nil {
			e.metrics.SubjectExported()
			e.metrics.FileWritten(size)
			for table, n := range counts {
				e.metrics.RowsExported(table, n)
			}
		}
		e.logger.Debug("subject exported",
			zap.Int64("subject_id", id),
			zap.Any("rows", counts))
	}

	summary.Elapsed = time.Since(start)
	e.logger.Info("export completed",
		zap.String("run_dir", dir),
		zap.Int("subjects", summary.Subjects),
		zap.Int("rows", summary.TotalRows()),
		zap.Duration("elapsed", summary.Elapsed))
	return summary, nil
}

// Document builds the document of subject id: table name to "item <i>" to
// column to value, tables in plan order and rows newest first. A table
// without rows maps to an empty mapping.
func (e *Exporter) Document(ctx context.Context, plan *Plan, id int64) (*formats.Map, map[string]int, error) {
	doc := formats.NewMap(len(plan.Tables))
	counts := make(map[string]int, len(plan.Tables))

	for _, tp := range plan.Tables {
		rows, err := e.fetch(ctx, tp, id)
		if err != nil {
			return nil, nil, err
		}
		items := formats.NewMap(len(rows))
		for i, row := range rows {
			record := formats.NewMap(len(row.Columns))
			for j, col := range row.Columns {
				record.Set(col, row.Values[j])
			}
			items.Set(ItemPrefix+strconv.Itoa(i), record)
		}
		doc.Set(tp.Window.Table, items)
		counts[tp.Window.Table] = len(rows)
	}
	return doc, counts, nil
}

func (e *Exporter) fetch(ctx context.Context, tp TablePlan, id int64) ([]storage.Row, error) {
	if tp.Window.MaxSlots == 0 {
		return nil, nil
	}
	rows, err := e.store.FetchWindow(ctx, tp.Query(id))
	if err != nil {
		return nil, err
	}
	// The limit is part of the query; a store returning more still only
	// contributes MaxSlots rows.
	if len(rows) > tp.Window.MaxSlots {
		rows = rows[:tp.Window.MaxSlots]
	}
	return rows, nil
}
