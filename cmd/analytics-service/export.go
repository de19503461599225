package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/export"
)

func newExportCmd(a *app) *cobra.Command {
	var start, end, out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write daily metrics for a date range to an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r, err := analytics.ParseDateRange(start, end)
			if err != nil {
				return err
			}
			if out == "" {
				out = export.DailyMetricsFilename(r)
			}

			pg, err := a.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer pg.Close()

			rows, err := a.analyticsService(pg).DailyMetrics(cmd.Context(), r)
			if err != nil {
				return err
			}

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("failed to create %s: %w", out, err)
			}
			if err := export.WriteDailyMetrics(f, r, rows); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return fmt.Errorf("failed to close %s: %w", out, err)
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d days to %s\n", len(rows), out)
			return err
		},
	}

	addDateRangeFlags(cmd, &start, &end)
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default daily-metrics_<start>_<end>.xlsx)")
	return cmd
}
