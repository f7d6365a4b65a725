// Package config defines the export configuration: the database to read,
// the schema the model lives in, the folder runs are written to and the
// optional mapping, logging and metrics settings.
//
// The configuration is organized into sections:
//   - Database: driver and connection parameters
//   - Export: cdm_schema, export_folder, format, mappings
//   - Logging: level and encoding of the global logger
//   - Metrics: optional Pushgateway the run counters are pushed to
//
// Example usage:
//
//	cfg, err := config.Load("export.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
//	store, err := storage.Open(ctx, cfg.StorageParams())
package config

import (
	"os"
	"slices"

	"go.uber.org/zap/zapcore"

	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/formats"
	"github.com/pancaim/cdm/pkg/logger"
	"github.com/pancaim/cdm/pkg/metrics"
	"github.com/pancaim/cdm/pkg/storage"
)

// DefaultDriver is the storage driver used when none is configured.
const DefaultDriver = "postgres"

// Config is the configuration of an export run.
type Config struct {
	// Database holds the connection parameters
	Database DatabaseConfig `yaml:"database" json:"database"`
	// CDMSchema is the schema the model tables live in
	CDMSchema string `yaml:"cdm_schema" json:"cdm_schema"`
	// ExportFolder is the existing directory run directories are created in
	ExportFolder string `yaml:"export_folder" json:"export_folder"`
	// Format selects the artifact encoder (hier or json)
	Format string `yaml:"format" json:"format"`
	// Mappings is an optional semantic mapping file
	Mappings string `yaml:"mappings" json:"mappings"`

	Logging LoggingConfig `yaml:"logging" json:"logging"`
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`
}

// DatabaseConfig contains the connection parameters of the source database.
type DatabaseConfig struct {
	// Driver is a registered storage driver: postgres, mysql, sqlite or sqlserver
	Driver       string `yaml:"driver" json:"driver"`
	Host         string `yaml:"host" json:"host"`
	Port         int    `yaml:"port" json:"port"`
	DatabaseName string `yaml:"database_name" json:"database_name"`
	Username     string `yaml:"username" json:"username"`
	// Password may be empty; the CLI then tries without one and prompts
	Password string `yaml:"password" json:"password"`
	// Query holds driver-specific connection options such as sslmode
	Query map[string]string `yaml:"query" json:"query"`
	// DSN replaces the parameters above; for sqlite it is the file path
	DSN string `yaml:"dsn" json:"dsn"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level       string `yaml:"level" json:"level"`
	Encoding    string `yaml:"encoding" json:"encoding"`
	Development bool   `yaml:"development" json:"development"`
}

// MetricsConfig configures the Pushgateway flush at the end of a run.
type MetricsConfig struct {
	// PushgatewayURL disables pushing when empty
	PushgatewayURL string `yaml:"pushgateway_url" json:"pushgateway_url"`
	Job            string `yaml:"job" json:"job"`
}

// Default returns a configuration with every optional setting filled in.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver: DefaultDriver,
		},
		Format: formats.DefaultFormat,
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "console",
		},
		Metrics: MetricsConfig{
			Job: metrics.DefaultJob,
		},
	}
}

// Validate checks the configuration before any export work starts. Every
// failure is a config error. Drivers are checked against the storage
// registry, so the backends must be linked in.
func (c *Config) Validate() error {
	if err := c.Database.validate(); err != nil {
		return err
	}
	if c.CDMSchema == "" {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "cdm_schema is required")
	}
	if err := checkDir(c.ExportFolder); err != nil {
		return err
	}
	if c.Format != "" && !slices.Contains(formats.Names(), c.Format) {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "unknown format").
			WithDetail("format", c.Format).
			WithDetail("supported", formats.Names())
	}
	if c.Mappings != "" {
		if _, err := os.Stat(c.Mappings); err != nil {
			return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "mappings file not found").
				WithDetail("path", c.Mappings)
		}
	}
	if c.Logging.Level != "" {
		if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
			return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "invalid log level").
				WithDetail("level", c.Logging.Level)
		}
	}
	return nil
}

func (d *DatabaseConfig) validate() error {
	driver := d.driver()
	if !slices.Contains(storage.Drivers(), driver) {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "unknown database driver").
			WithDetail("driver", driver).
			WithDetail("supported", storage.Drivers())
	}
	if d.DSN != "" {
		return nil
	}
	if driver == "sqlite" {
		if d.DatabaseName == "" {
			return cdmerrors.New(cdmerrors.ErrorTypeConfig, "sqlite needs dsn or database_name")
		}
		return nil
	}
	switch {
	case d.Host == "":
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "database host is required")
	case d.Port <= 0 || d.Port > 65535:
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "database port must be between 1 and 65535").
			WithDetail("port", d.Port)
	case d.DatabaseName == "":
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "database_name is required")
	case d.Username == "":
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "database username is required")
	}
	return nil
}

func (d *DatabaseConfig) driver() string {
	if d.Driver == "" {
		return DefaultDriver
	}
	return d.Driver
}

func checkDir(dir string) error {
	if dir == "" {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "export_folder is required")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return cdmerrors.Wrap(err, cdmerrors.ErrorTypeConfig, "export_folder not found").
			WithDetail("dir", dir)
	}
	if !info.IsDir() {
		return cdmerrors.New(cdmerrors.ErrorTypeConfig, "export_folder is not a directory").
			WithDetail("dir", dir)
	}
	return nil
}

// StorageParams returns the connection parameters for storage.Open.
func (c *Config) StorageParams() storage.Params {
	return storage.Params{
		Driver:   c.Database.driver(),
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		Database: c.Database.DatabaseName,
		Username: c.Database.Username,
		Password: c.Database.Password,
		Query:    c.Database.Query,
		DSN:      c.Database.DSN,
		Schema:   c.CDMSchema,
	}
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() logger.Config {
	cfg := logger.DefaultConfig()
	if c.Logging.Level != "" {
		cfg.Level = c.Logging.Level
	}
	if c.Logging.Encoding != "" {
		cfg.Encoding = c.Logging.Encoding
	}
	cfg.Development = c.Logging.Development
	return cfg
}

// PushEnabled reports whether run metrics are pushed.
func (m MetricsConfig) PushEnabled() bool {
	return m.PushgatewayURL != ""
}
