// Package export renders reports as Excel workbooks.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
)

const (
	MetricsSheet = "Daily metrics"
	SummarySheet = "Summary"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Built-in excelize number formats.
const (
	numFmtMoney   = 4  // #,##0.00
	numFmtPercent = 10 // 0.00%
)

var metricsHeader = []any{"date_key", "revenue", "refunds", "orders_paid", "paying_customers", "refund_rate"}

// DailyMetricsFilename is the suggested attachment name for a range.
func DailyMetricsFilename(r analytics.DateRange) string {
	return fmt.Sprintf("daily-metrics_%s_%s.xlsx", r.Start.Format(analytics.DateLayout), r.End.Format(analytics.DateLayout))
}

// WriteDailyMetrics writes a workbook with one row per day and a summary sheet.
func WriteDailyMetrics(w io.Writer, r analytics.DateRange, rows []analytics.DailyMetric) error {
	f, err := DailyMetricsWorkbook(r, rows)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("export: failed to write workbook: %w", err)
	}
	return nil
}

func DailyMetricsWorkbook(r analytics.DateRange, rows []analytics.DailyMetric) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := fillDailyMetrics(f, r, rows); err != nil {
		_ = f.Close()
		return nil, err
	}
	return f, nil
}

func fillDailyMetrics(f *excelize.File, r analytics.DateRange, rows []analytics.DailyMetric) error {
	if err := f.SetSheetName(f.GetSheetName(0), MetricsSheet); err != nil {
		return fmt.Errorf("export: failed to name sheet: %w", err)
	}

	styles, err := newStyles(f)
	if err != nil {
		return err
	}

	if err := f.SetSheetRow(MetricsSheet, "A1", &metricsHeader); err != nil {
		return fmt.Errorf("export: failed to write header: %w", err)
	}
	if err := f.SetCellStyle(MetricsSheet, "A1", "F1", styles.header); err != nil {
		return fmt.Errorf("export: failed to style header: %w", err)
	}

	revenue, refunds := decimal.Zero, decimal.Zero
	var ordersPaid int64
	for i, m := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("export: row %d: %w", i, err)
		}
		record := []any{
			m.DateKey,
			m.Revenue.InexactFloat64(),
			m.Refunds.InexactFloat64(),
			m.OrdersPaid,
			m.PayingCustomers,
			m.RefundRate.InexactFloat64(),
		}
		if err := f.SetSheetRow(MetricsSheet, cell, &record); err != nil {
			return fmt.Errorf("export: row %d: %w", i, err)
		}

		revenue = revenue.Add(m.Revenue)
		refunds = refunds.Add(m.Refunds)
		ordersPaid += m.OrdersPaid
	}

	if last := len(rows) + 1; last > 1 {
		for _, s := range []struct {
			from, to string
			style    int
		}{
			{"A2", fmt.Sprintf("A%d", last), styles.date},
			{"B2", fmt.Sprintf("C%d", last), styles.money},
			{"F2", fmt.Sprintf("F%d", last), styles.percent},
		} {
			if err := f.SetCellStyle(MetricsSheet, s.from, s.to, s.style); err != nil {
				return fmt.Errorf("export: failed to style cells: %w", err)
			}
		}
	}

	if err := f.SetColWidth(MetricsSheet, "A", "F", 16); err != nil {
		return fmt.Errorf("export: failed to size columns: %w", err)
	}
	if err := f.SetPanes(MetricsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("export: failed to freeze header: %w", err)
	}

	return fillSummary(f, styles, r, revenue, refunds, ordersPaid)
}

func fillSummary(f *excelize.File, styles sheetStyles, r analytics.DateRange, revenue, refunds decimal.Decimal, ordersPaid int64) error {
	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("export: failed to create summary sheet: %w", err)
	}

	summary := [][]any{
		{"start_date", r.Start.Format(analytics.DateLayout)},
		{"end_date", r.End.Format(analytics.DateLayout)},
		{"revenue", revenue.InexactFloat64()},
		{"refunds", refunds.InexactFloat64()},
		{"orders_paid", ordersPaid},
		{"refund_rate", analytics.RefundRate(revenue, refunds).InexactFloat64()},
	}
	for i, row := range summary {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("export: summary row %d: %w", i, err)
		}
	}

	if err := f.SetCellStyle(SummarySheet, "B3", "B4", styles.money); err != nil {
		return fmt.Errorf("export: failed to style summary: %w", err)
	}
	if err := f.SetCellStyle(SummarySheet, "B6", "B6", styles.percent); err != nil {
		return fmt.Errorf("export: failed to style summary: %w", err)
	}
	return f.SetColWidth(SummarySheet, "A", "B", 16)
}

type sheetStyles struct {
	header, date, money, percent int
}

func newStyles(f *excelize.File) (sheetStyles, error) {
	var s sheetStyles
	var err error

	if s.header, err = f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err != nil {
		return s, fmt.Errorf("export: header style: %w", err)
	}
	dateFmt := "yyyy-mm-dd"
	if s.date, err = f.NewStyle(&excelize.Style{CustomNumFmt: &dateFmt}); err != nil {
		return s, fmt.Errorf("export: date style: %w", err)
	}
	if s.money, err = f.NewStyle(&excelize.Style{NumFmt: numFmtMoney}); err != nil {
		return s, fmt.Errorf("export: money style: %w", err)
	}
	if s.percent, err = f.NewStyle(&excelize.Style{NumFmt: numFmtPercent}); err != nil {
		return s, fmt.Errorf("export: percent style: %w", err)
	}
	return s, nil
}
