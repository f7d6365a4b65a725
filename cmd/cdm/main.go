package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pancaim/cdm/internal/cdm"
	"github.com/pancaim/cdm/internal/export"
	"github.com/pancaim/cdm/pkg/config"
	"github.com/pancaim/cdm/pkg/formats"
	"github.com/pancaim/cdm/pkg/logger"
	"github.com/pancaim/cdm/pkg/metrics"
	"github.com/pancaim/cdm/pkg/storage"

	// Link every storage backend so they register their drivers
	_ "github.com/pancaim/cdm/pkg/storage/all"
)

var version = "0.1.0"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cdm",
		Short: "cdm - common data model exporter",
		Long: `cdm exports the common data model, one document per subject, keeping the
most recent rows of every table, and normalizes source records into the model.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newVersionCmd(),
		newDriversCmd(),
		newTermsCmd(),
		newValidateCmd(),
		newExportCmd(),
		newNormalizeCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "cdm v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func newDriversCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drivers",
		Short: "List storage drivers and output formats",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Storage drivers:")
			for _, d := range storage.Drivers() {
				fmt.Fprintf(out, "  - %s\n", d)
			}
			fmt.Fprintln(out, "\nOutput formats:")
			for _, f := range formats.Names() {
				fmt.Fprintf(out, "  - %s\n", f)
			}
		},
	}
}

func newTermsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "terms",
		Short: "List the controlled terms as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cdm.Terms().WriteCSV(cmd.OutOrStdout())
		},
	}
}

func newValidateCmd() *cobra.Command {
	var configFile string
	var connect bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate an export configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, "")
			if err != nil {
				return err
			}
			if connect {
				ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
				defer cancel()
				store, err := openStore(ctx, cfg.StorageParams())
				if err != nil {
					return err
				}
				_ = store.Close()
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the export configuration YAML file (required)")
	cmd.Flags().BoolVar(&connect, "connect", false, "Also check that the database is reachable")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func newExportCmd() *cobra.Command {
	var configFile, logLevel string
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export one document per subject",
		Long: `Export writes export_folder/<run timestamp>/<subject id>.json for every
subject of the primary table. Every run creates a new directory.

Example:
  cdm export --config export.yaml --log-level debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, logLevel)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			return runExport(ctx, cfg, cmd)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the export configuration YAML file (required)")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides the configuration")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "Abort the export after this duration (0 = no limit)")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// loadConfig loads and validates the configuration and installs the logger
// it describes.
func loadConfig(path, logLevel string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.LoggerConfig()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runExport(ctx context.Context, cfg *config.Config, cmd *cobra.Command) error {
	log := logger.With(zap.String("component", "cdm-cli"))
	defer func() { _ = logger.Sync() }()

	enc, err := formats.NewEncoder(cfg.Format)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg.StorageParams())
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close store", zap.Error(err))
		}
	}()

	collector := metrics.NewCollector()
	exp, err := export.New(store, export.Options{
		Root:    cfg.ExportFolder,
		Encoder: enc,
		Metrics: collector,
	})
	if err != nil {
		return err
	}

	summary, runErr := exp.Run(ctx)
	if cfg.Metrics.PushEnabled() {
		if err := collector.Push(ctx, cfg.Metrics.PushgatewayURL, cfg.Metrics.Job); err != nil {
			log.Warn("failed to push metrics", zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	fmt.Fprintf(cmd.OutOrStdout(), "exported %d subjects (%d rows) to %s in %s\n",
		summary.Subjects, summary.TotalRows(), summary.RunDir, summary.Elapsed.Round(time.Millisecond))
	return nil
}

// describeParams names the database for prompts and logs.
func describeParams(p storage.Params) string {
	var b strings.Builder
	if p.Username != "" {
		b.WriteString(p.Username)
		b.WriteByte('@')
	}
	b.WriteString(p.Host)
	if p.Port > 0 {
		fmt.Fprintf(&b, ":%d", p.Port)
	}
	if p.Database != "" {
		b.WriteByte('/')
		b.WriteString(p.Database)
	}
	return b.String()
}
