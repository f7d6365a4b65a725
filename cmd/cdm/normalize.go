package main

import (
	"bufio"
	"context"
	"io"
	"os"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/pancaim/cdm/internal/cdm"
	"github.com/pancaim/cdm/pkg/cdmerrors"
	"github.com/pancaim/cdm/pkg/config"
	"github.com/pancaim/cdm/pkg/formats"
	"github.com/pancaim/cdm/pkg/semantic"
)

func newNormalizeCmd() *cobra.Command {
	var configFile, table, mappingsFile string

	cmd := &cobra.Command{
		Use:   "normalize [records.jsonl]",
		Short: "Normalize source records into model rows",
		Long: `Normalize reads source records, one JSON object per line keyed by field
name, and writes the normalized row of each record as one JSON object per
line. Raw value columns receive the cleaned source text. The table layout
is reflected from the configured database.

Example:
  cdm normalize --config export.yaml --table person records.jsonl`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configFile, "")
			if err != nil {
				return err
			}
			if mappingsFile != "" {
				cfg.Mappings = mappingsFile
			}

			in := cmd.InOrStdin()
			if len(args) == 1 {
				f, err := os.Open(args[0])
				if err != nil {
					return cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to open records").
						WithDetail("path", args[0])
				}
				defer f.Close()
				in = f
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			b, err := newBuilder(ctx, cfg, table)
			if err != nil {
				return err
			}
			_, err = normalizeRecords(in, cmd.OutOrStdout(), b)
			return err
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Path to the export configuration YAML file (required)")
	cmd.Flags().StringVarP(&table, "table", "t", "", "Model table the records belong to (required)")
	cmd.Flags().StringVarP(&mappingsFile, "mappings", "m", "", "Semantic mapping YAML file; overrides the configuration")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

// newBuilder reflects table from the configured database and prepares its
// normalizers.
func newBuilder(ctx context.Context, cfg *config.Config, table string) (*cdm.Builder, error) {
	var mappings semantic.MappingSet
	if cfg.Mappings != "" {
		var err error
		if mappings, err = semantic.LoadMappingsFile(cfg.Mappings, cdm.Terms()); err != nil {
			return nil, err
		}
	}

	store, err := openStore(ctx, cfg.StorageParams())
	if err != nil {
		return nil, err
	}
	defer store.Close()

	schema, err := store.Reflect(ctx)
	if err != nil {
		return nil, err
	}
	t, ok := schema.Table(table)
	if !ok {
		return nil, cdmerrors.New(cdmerrors.ErrorTypeConfig, "table not found").
			WithDetail("table", table).
			WithDetail("schema", cfg.CDMSchema)
	}
	return cdm.NewBuilder(t, mappings), nil
}

// normalizeRecords builds one row per JSON object read from r and writes it
// to w as a JSON object with the table's column order. It returns the
// number of rows written.
func normalizeRecords(r io.Reader, w io.Writer, b *cdm.Builder) (int, error) {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	enc := &formats.JSONEncoder{}
	bw := bufio.NewWriter(w)

	n := 0
	for {
		var source map[string]any
		err := dec.Decode(&source)
		if err == io.EOF {
			break
		}
		if err != nil {
			return n, cdmerrors.Wrap(err, cdmerrors.ErrorTypeData, "invalid source record").
				WithDetail("record", n+1)
		}

		row, err := b.Build(source)
		if err != nil {
			return n, cdmerrors.Wrap(err, cdmerrors.ErrorTypeData, "failed to normalize record").
				WithDetail("record", n+1)
		}
		doc := formats.NewMap(len(row.Columns))
		for i, col := range row.Columns {
			doc.Set(col, row.Values[i])
		}
		if err := enc.Encode(bw, doc); err != nil {
			return n, err
		}
		n++
	}
	if err := bw.Flush(); err != nil {
		return n, cdmerrors.Wrap(err, cdmerrors.ErrorTypeFile, "failed to write rows")
	}
	return n, nil
}
