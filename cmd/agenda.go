package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/OancaAdrian/CRM/internal/agenda"
	"github.com/OancaAdrian/CRM/internal/model"
	"github.com/OancaAdrian/CRM/internal/suggest"
)

var agendaDate string

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Print the agenda for a day as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		day := model.Today()
		if agendaDate != "" {
			d, err := model.ParseDate(agendaDate)
			if err != nil {
				return eris.Wrap(err, "agenda")
			}
			day = d
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ranker := suggest.NewRanker(st, cfg.Suggest.Limit, cfg.Suggest.ExcludeRegion)
		ag, err := agenda.NewService(st, ranker).Get(ctx, day)
		if err != nil {
			return eris.Wrap(err, "agenda")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return eris.Wrap(enc.Encode(ag), "agenda: encode")
	},
}

func init() {
	agendaCmd.Flags().StringVar(&agendaDate, "date", "", "day to show (YYYY-MM-DD, default today)")
	rootCmd.AddCommand(agendaCmd)
}
