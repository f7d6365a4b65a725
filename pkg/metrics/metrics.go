// Package metrics counts what an export run produced, using Prometheus
// metrics on a registry owned by the collector.
//
// A run has no long-lived process to scrape, so the collector can push its
// registry to a Prometheus Pushgateway when the run ends.
//
// # Basic Usage
//
//	collector := metrics.NewCollector()
//	collector.SubjectExported()
//	collector.RowsExported("lab", 12)
//	collector.FileWritten(4096)
//	collector.ObserveRun(time.Since(start), "success")
//
//	if err := collector.Push(ctx, gatewayURL, "cdm_export"); err != nil {
//	    logger.Error("metrics push failed", zap.Error(err))
//	}
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/pancaim/cdm/pkg/cdmerrors"
)

// DefaultJob is the Pushgateway job name used when none is configured.
const DefaultJob = "cdm_export"

// Collector holds the metrics of one export run.
type Collector struct {
	reg          *prometheus.Registry
	subjects     prometheus.Counter
	rows         *prometheus.CounterVec
	files        prometheus.Counter
	bytesWritten prometheus.Counter
	runDuration  *prometheus.GaugeVec
	runs         *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		reg: reg,
		subjects: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdm_export_subjects_total",
			Help: "Subjects written to an artifact.",
		}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdm_export_rows_total",
			Help: "Rows exported, partitioned by table.",
		}, []string{"table"}),
		files: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdm_export_files_total",
			Help: "Artifacts written.",
		}),
		bytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "cdm_export_bytes_total",
			Help: "Bytes written to artifacts.",
		}),
		runDuration: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cdm_export_run_duration_seconds",
			Help: "Duration of the last export run, partitioned by status.",
		}, []string{"status"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cdm_export_runs_total",
			Help: "Export runs, partitioned by status.",
		}, []string{"status"}),
	}
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// SubjectExported counts one subject.
func (c *Collector) SubjectExported() {
	c.subjects.Inc()
}

// RowsExported counts n rows of table.
func (c *Collector) RowsExported(table string, n int) {
	c.rows.WithLabelValues(table).Add(float64(n))
}

// FileWritten counts one artifact of size bytes.
func (c *Collector) FileWritten(size int64) {
	c.files.Inc()
	c.bytesWritten.Add(float64(size))
}

// ObserveRun records the end of a run with status "success" or "failure".
func (c *Collector) ObserveRun(d time.Duration, status string) {
	c.runDuration.WithLabelValues(status).Set(d.Seconds())
	c.runs.WithLabelValues(status).Inc()
}

// Push sends the registry to the Pushgateway at url, replacing the
// metrics previously pushed for job.
func (c *Collector) Push(ctx context.Context, url, job string) error {
	if url == "" {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "pushgateway URL is required")
	}
	if job == "" {
		job = DefaultJob
	}
	if err := push.New(url, job).Gatherer(c.reg).PushContext(ctx); err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConnection, "failed to push metrics").
			WithDetail("url", url).
			WithDetail("job", job)
	}
	return nil
}
