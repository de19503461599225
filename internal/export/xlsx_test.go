package export_test

import (
	"bytes"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/export"
)

func TestWriteDailyMetrics(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := analytics.DateRange{Start: start, End: start.AddDate(0, 0, 1)}
	rows := []analytics.DailyMetric{
		{
			DateKey:         start,
			Revenue:         decimal.RequireFromString("100.00"),
			Refunds:         decimal.RequireFromString("20.00"),
			OrdersPaid:      1,
			PayingCustomers: 1,
			RefundRate:      decimal.RequireFromString("0.2"),
		},
		{DateKey: start.AddDate(0, 0, 1)},
	}

	var buf bytes.Buffer
	require.NoError(t, export.WriteDailyMetrics(&buf, r, rows))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{export.MetricsSheet, export.SummarySheet}, f.GetSheetList())

	got, err := f.GetRows(export.MetricsSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"date_key", "revenue", "refunds", "orders_paid", "paying_customers", "refund_rate"}, got[0])
	assert.Equal(t, []string{"100", "20", "1", "1", "0.2"}, got[1][1:])
	assert.Equal(t, []string{"0", "0", "0", "0", "0"}, got[2][1:])

	for i, want := range []time.Time{start, start.AddDate(0, 0, 1)} {
		serial, err := strconv.ParseFloat(got[i+1][0], 64)
		require.NoError(t, err, "dates are stored as serial numbers")
		date, err := excelize.ExcelDateToTime(serial, false)
		require.NoError(t, err)
		assert.WithinDuration(t, want, date, time.Second)
	}

	summary, err := f.GetRows(export.SummarySheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, summary, 6)
	assert.Equal(t, []string{"start_date", "2024-01-01"}, summary[0])
	assert.Equal(t, []string{"revenue", "100"}, summary[2])
	assert.Equal(t, []string{"refund_rate", "0.2"}, summary[5])
}

func TestWriteDailyMetrics_Empty(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, export.WriteDailyMetrics(&buf, analytics.DateRange{Start: start, End: start}, nil))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	got, err := f.GetRows(export.MetricsSheet)
	require.NoError(t, err)
	assert.Len(t, got, 1, "header only")
}

func TestDailyMetricsFilename(t *testing.T) {
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	r := analytics.DateRange{Start: start, End: start.AddDate(0, 1, 0)}
	assert.Equal(t, "daily-metrics_2024-01-01_2024-02-01.xlsx", export.DailyMetricsFilename(r))
}
