package main

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/postal-cli/internal/config"
	"github.com/sells-group/postal-cli/internal/enrich"
	"github.com/sells-group/postal-cli/internal/importer"
	"github.com/sells-group/postal-cli/internal/model"
	"github.com/sells-group/postal-cli/internal/store"
)

var (
	importFilePath  string
	importDelimiter string
	importSheet     string
	importEnrich    bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Seed the store from a CSV or XLSX file",
	Long:  "Reads cp7/concelho/distrito rows from a CSV or XLSX file. By default every valid row is upserted as-is; with --enrich, codes not yet stored are looked up through the CTT API first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}
		opts, err := importOptions()
		if err != nil {
			return err
		}

		var apiKey string
		if importEnrich {
			if err := cfg.Validate("update"); err != nil {
				return err
			}
			if apiKey, err = config.ReadAPIKey(cfg.Secrets.Path); err != nil {
				return err
			}
		}

		rows, err := importer.ReadFile(ctx, importFilePath, opts)
		if err != nil {
			return eris.Wrap(err, "import file")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if importEnrich {
			res, err := enrich.New(st, newCTTClient()).Import(ctx, apiKey, rows)
			if err != nil {
				return eris.Wrap(err, "import enrich")
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Imported %d postal codes (%d already present, %d invalid, %d without data).\n", //nolint:errcheck
				res.Imported, res.Existing, res.Invalid, res.Missed)
			return nil
		}

		return seed(ctx, st, rows, cmd.OutOrStdout())
	},
}

// seed upserts every row with a valid postal code and flushes file-backed
// stores.
func seed(ctx context.Context, st store.Store, rows []model.PostalRecord, out io.Writer) error {
	valid := make([]model.PostalRecord, 0, len(rows))
	for _, r := range rows {
		if !model.ValidPostalCode(r.PostalCode) {
			zap.L().Debug("import: skipping malformed postal code", zap.String("postal_code", r.PostalCode))
			continue
		}
		valid = append(valid, r)
	}

	n, err := st.UpsertMany(ctx, valid)
	if err != nil {
		return eris.Wrap(err, "import upsert")
	}
	if p, ok := st.(store.Persister); ok {
		if err := p.Persist(ctx); err != nil {
			return eris.Wrap(err, "import persist")
		}
	}

	zap.L().Info("import complete",
		zap.Int("rows", len(rows)),
		zap.Int64("upserted", n),
		zap.Int("invalid", len(rows)-len(valid)),
		zap.String("file", importFilePath),
	)
	fmt.Fprintf(out, "Imported %d postal codes (%d invalid rows skipped).\n", n, len(rows)-len(valid)) //nolint:errcheck
	return nil
}

func importOptions() (importer.Options, error) {
	opts := importer.Options{SheetName: importSheet}
	if importDelimiter == "" {
		return opts, nil
	}
	if utf8.RuneCountInString(importDelimiter) != 1 {
		return opts, eris.Errorf("--delimiter must be a single character, got %q", importDelimiter)
	}
	opts.Delimiter, _ = utf8.DecodeRuneInString(importDelimiter)
	return opts, nil
}

func init() {
	importCmd.Flags().StringVar(&importFilePath, "file", "", "path to CSV or XLSX file (required)")
	importCmd.Flags().StringVar(&importDelimiter, "delimiter", "", "CSV field delimiter (default ',')")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().BoolVar(&importEnrich, "enrich", false, "look up new codes through the CTT API")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}
