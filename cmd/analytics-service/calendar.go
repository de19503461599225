package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/calendar"
)

func newCalendarCmd(a *app) *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "calendar",
		Short: "Fill the date dimension for an inclusive horizon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			start, err := parseDay("from", from)
			if err != nil {
				return err
			}
			end, err := parseDay("to", to)
			if err != nil {
				return err
			}

			pg, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			inserted, err := calendar.NewRepository(pg.Pool).Populate(cmd.Context(), start, end)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d new days between %s and %s\n", inserted, from, to)
			return err
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "first date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "last date (YYYY-MM-DD), inclusive")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}
