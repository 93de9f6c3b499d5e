package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/caen"
	"github.com/OancaAdrian/CRM/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Load firms, CAEN codes, or activities from files",
}

var importFirmsCmd = &cobra.Command{
	Use:   "firms <file.xlsx>",
	Short: "Upsert firms from a registry XLSX export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := importer.ImportFirmsXLSX(ctx, st, args[0], importer.FirmsOptions{
			FoldDiacritics: cfg.Import.FoldDiacritics,
		})
		if err != nil {
			return eris.Wrap(err, "import firms")
		}

		zap.L().Info("import complete", zap.Int64("firms", n), zap.String("file", args[0]))
		return nil
	},
}

var importCAENCmd = &cobra.Command{
	Use:   "caen <file.csv>",
	Short: "Upsert CAEN codes from a ;-delimited CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "import caen: open")
		}
		defer f.Close() //nolint:errcheck

		n, err := caen.Import(ctx, st, f)
		if err != nil {
			return eris.Wrap(err, "import caen")
		}

		zap.L().Info("import complete", zap.Int64("codes", n), zap.String("file", args[0]))
		return nil
	},
}

var (
	importActCUI       string
	importActDelimiter string
	importActMapping   importer.ActivityMapping
)

var importActivitiesCmd = &cobra.Command{
	Use:   "activities <file.csv>",
	Short: "Insert activities for one firm from a CSV",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "import activities: open")
		}
		defer f.Close() //nolint:errcheck

		mapping := importActMapping
		if importActDelimiter != "" {
			mapping.Delimiter = rune(importActDelimiter[0])
		}

		report, err := importer.ImportActivities(ctx, st, importActCUI, f, mapping)
		if err != nil {
			return eris.Wrap(err, "import activities")
		}

		for _, re := range report.Errors {
			zap.L().Warn("row skipped", zap.Int("row", re.Row), zap.String("error", re.Err))
		}
		zap.L().Info("import complete",
			zap.Int("created", report.Created),
			zap.Int("errors", len(report.Errors)),
			zap.String("file", args[0]))
		return nil
	},
}

func init() {
	importActivitiesCmd.Flags().StringVar(&importActCUI, "cui", "", "firm CUI the rows belong to (required)")
	_ = importActivitiesCmd.MarkFlagRequired("cui")
	importActivitiesCmd.Flags().StringVar(&importActDelimiter, "delimiter", "", "CSV delimiter (default ,)")
	importActivitiesCmd.Flags().StringVar(&importActMapping.TypeColumn, "type-column", "", "column holding the activity type")
	importActivitiesCmd.Flags().StringVar(&importActMapping.CommentColumn, "comment-column", "", "column holding the comment")
	importActivitiesCmd.Flags().StringVar(&importActMapping.ScoreColumn, "score-column", "", "column holding the score")
	importActivitiesCmd.Flags().StringVar(&importActMapping.DateColumn, "date-column", "", "column holding the date")
	importActivitiesCmd.Flags().StringVar(&importActMapping.DateFormat, "date-format", "", "Go layout of the date column")

	importCmd.AddCommand(importFirmsCmd, importCAENCmd, importActivitiesCmd)
	rootCmd.AddCommand(importCmd)
}
