package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/refresh"
)

func newRefreshCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Refresh the daily metrics snapshot once and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			pg, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			defer pg.Close()

			locker, closeLocker, err := a.locker(ctx)
			if err != nil {
				return err
			}
			defer closeLocker()

			svc := refresh.NewService(refresh.NewRepository(pg.DB), locker, a.cfg.Refresh)
			run, err := svc.Refresh(ctx)
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "refreshed %s: %d rows in %s\n", run.Relation, run.RowCount, run.Duration())
			return err
		},
	}
}
