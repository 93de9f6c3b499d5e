package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/suggest"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest",
	Short: "Manage the lead suggestion queue",
}

var suggestRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Recompute the suggestion ranking",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ranker := suggest.NewRanker(st, cfg.Suggest.Limit, cfg.Suggest.ExcludeRegion)
		n, err := ranker.Rebuild(ctx)
		if err != nil {
			return eris.Wrap(err, "suggest rebuild")
		}

		zap.L().Info("suggestions rebuilt", zap.Int64("rows", n))
		return nil
	},
}

var suggestListN int

var suggestListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print the next unused suggestions as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ranker := suggest.NewRanker(st, cfg.Suggest.Limit, cfg.Suggest.ExcludeRegion)
		sugs, err := ranker.TakeNext(ctx, suggestListN)
		if err != nil {
			return eris.Wrap(err, "suggest list")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(sugs), "suggest list: encode")
	},
}

func init() {
	suggestListCmd.Flags().IntVar(&suggestListN, "n", 0, "how many suggestions (default from config)")
	suggestCmd.AddCommand(suggestRebuildCmd, suggestListCmd)
	rootCmd.AddCommand(suggestCmd)
}
