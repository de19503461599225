package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
)

const (
	formatTable = "table"
	formatJSON  = "json"
)

type reportRow struct {
	DateKey         string      `json:"date_key"`
	Revenue         json.Number `json:"revenue"`
	Refunds         json.Number `json:"refunds"`
	OrdersPaid      int64       `json:"orders_paid"`
	PayingCustomers int64       `json:"paying_customers"`
	RefundRate      json.Number `json:"refund_rate"`
}

func newReportCmd(a *app) *cobra.Command {
	var start, end, format string

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print daily metrics for a date range from the snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != formatTable && format != formatJSON {
				return fmt.Errorf("--format must be %s or %s, got %q", formatTable, formatJSON, format)
			}
			r, err := analytics.ParseDateRange(start, end)
			if err != nil {
				return err
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
			return renderReport(cmd.OutOrStdout(), format, rows)
		},
	}

	addDateRangeFlags(cmd, &start, &end)
	cmd.Flags().StringVar(&format, "format", formatTable, "output format: table or json")
	return cmd
}

func renderReport(w io.Writer, format string, rows []analytics.DailyMetric) error {
	out := make([]reportRow, 0, len(rows))
	for _, m := range rows {
		out = append(out, reportRow{
			DateKey:         m.DateKey.Format(analytics.DateLayout),
			Revenue:         json.Number(m.Revenue.StringFixed(2)),
			Refunds:         json.Number(m.Refunds.StringFixed(2)),
			OrdersPaid:      m.OrdersPaid,
			PayingCustomers: m.PayingCustomers,
			RefundRate:      json.Number(m.RefundRate.StringFixed(4)),
		})
	}

	if format == formatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"date_key", "revenue", "refunds", "orders_paid", "paying_customers", "refund_rate"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, r := range out {
		table.Append([]string{
			r.DateKey,
			r.Revenue.String(),
			r.Refunds.String(),
			strconv.FormatInt(r.OrdersPaid, 10),
			strconv.FormatInt(r.PayingCustomers, 10),
			r.RefundRate.String(),
		})
	}
	table.Render()
	return nil
}
