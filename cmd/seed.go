package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/store"
)

func intPtr(v int) *int       { return &v }
func int64Ptr(v int64) *int64 { return &v }

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert demo firms and the default activity types",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "seed: migrate")
		}
		if err := seed(ctx, st); err != nil {
			return eris.Wrap(err, "seed")
		}

		zap.L().Info("seed data inserted")
		return nil
	},
}

func seed(ctx context.Context, st store.Store) error {
	firms := []model.Firm{
		{CUI: "123456", Name: "Arabesque SRL", County: "GALATI", City: "Galati", Licenses: intPtr(5)},
		{CUI: "654321", Name: "Construct Galati SA", County: "GALATI", City: "Galati", Licenses: intPtr(2)},
	}
	if _, err := st.UpsertFirms(ctx, firms); err != nil {
		return err
	}

	financials := []model.Financial{
		{CUI: "123456", Year: 2024, Revenue: int64Ptr(10_000_000), NetProfit: int64Ptr(1_200_000)},
		{CUI: "654321", Year: 2024, Revenue: int64Ptr(5_000_000), NetProfit: int64Ptr(300_000)},
	}
	for _, f := range financials {
		if err := st.InsertFinancial(ctx, f); err != nil {
			return err
		}
	}

	for _, name := range []string{"contact", "oferta"} {
		if _, err := st.GetOrCreateActivityType(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(seedCmd)
}
