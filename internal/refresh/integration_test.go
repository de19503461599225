package refresh_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/calendar"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/refresh"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/testdb"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/warehouse"
)

func TestRefresh_Postgres(t *testing.T) {
	pg := testdb.Open(t)
	ctx := context.Background()

	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := calendar.NewRepository(pg.Pool).Populate(ctx, from, from.AddDate(0, 0, 9))
	require.NoError(t, err)

	writer := warehouse.NewService(warehouse.NewRepository(pg.Pool))
	reports := analytics.NewService(analytics.NewRepository(pg.DB), 0)
	svc := refresh.NewService(refresh.NewRepository(pg.DB), nil, testRefreshConfig)
	r := analytics.DateRange{Start: from, End: from.AddDate(0, 0, 9)}

	paid := func(total string) {
		t.Helper()
		_, err := writer.CreateOrder(ctx, &warehouse.Order{
			OrderTS: from.Add(12 * time.Hour),
			Status:  warehouse.StatusPaid,
			Total:   decimal.RequireFromString(total),
		})
		require.NoError(t, err)
	}

	st, err := svc.Status(ctx)
	require.NoError(t, err)
	assert.Nil(t, st.LastSuccess)

	paid("40.00")

	// First refresh populates the view created WITH NO DATA.
	run, err := svc.Refresh(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 10, run.RowCount)

	rows, err := reports.DailyMetrics(ctx, r)
	require.NoError(t, err)
	require.Len(t, rows, 10)
	assert.True(t, decimal.RequireFromString("40").Equal(rows[0].Revenue))

	// A failed refresh leaves the previous snapshot untouched and is recorded.
	paid("60.00")
	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	failed, err := svc.Refresh(cancelled)
	require.Error(t, err)
	require.NotNil(t, failed)
	assert.Equal(t, refresh.RunFailed, failed.Status)

	rows, err = reports.DailyMetrics(ctx, r)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("40").Equal(rows[0].Revenue), "old snapshot is still served")

	st, err = svc.Status(ctx)
	require.NoError(t, err)
	require.NotNil(t, st.LastSuccess)
	require.NotNil(t, st.LastAttempt)
	assert.Equal(t, run.ID, st.LastSuccess.ID)
	assert.Equal(t, failed.ID, st.LastAttempt.ID)
	require.NotNil(t, st.LastAttempt.Error)

	// The second successful refresh runs concurrently against a populated view.
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)

	rows, err = reports.DailyMetrics(ctx, r)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100").Equal(rows[0].Revenue))

	var logged int
	require.NoError(t, pg.Pool.QueryRow(ctx, `SELECT count(*) FROM analytics.refresh_log`).Scan(&logged))
	assert.Equal(t, 3, logged)
}

type snapshotRead struct {
	rows    int
	revenue decimal.Decimal
	err     error
}

func TestRefresh_Postgres_ReadersSeeWholeSnapshot(t *testing.T) {
	pg := testdb.Open(t)
	ctx := context.Background()

	from := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	_, err := calendar.NewRepository(pg.Pool).Populate(ctx, from, from.AddDate(0, 0, 9))
	require.NoError(t, err)

	writer := warehouse.NewService(warehouse.NewRepository(pg.Pool))
	reports := analytics.NewService(analytics.NewRepository(pg.DB), 0)
	svc := refresh.NewService(refresh.NewRepository(pg.DB), nil, testRefreshConfig)
	r := analytics.DateRange{Start: from, End: from.AddDate(0, 0, 9)}

	paid := func(day int, total string) {
		t.Helper()
		_, err := writer.CreateOrder(ctx, &warehouse.Order{
			OrderTS: from.AddDate(0, 0, day).Add(12 * time.Hour),
			Status:  warehouse.StatusPaid,
			Total:   decimal.RequireFromString(total),
		})
		require.NoError(t, err)
	}

	read := func() snapshotRead {
		rows, err := reports.DailyMetrics(ctx, r)
		if err != nil {
			return snapshotRead{err: err}
		}
		sum := decimal.Zero
		for _, m := range rows {
			sum = sum.Add(m.Revenue)
		}
		return snapshotRead{rows: len(rows), revenue: sum}
	}

	paid(0, "40.00")
	paid(2, "25.00")
	_, err = svc.Refresh(ctx)
	require.NoError(t, err)

	before := read()
	require.NoError(t, before.err)
	require.Equal(t, 10, before.rows)
	require.True(t, decimal.RequireFromString("65").Equal(before.revenue))

	paid(1, "60.00")
	paid(4, "15.00")
	wantAfter := decimal.RequireFromString("140")

	const readers = 4
	var (
		done  atomic.Bool
		mu    sync.Mutex
		reads []snapshotRead
		wg    sync.WaitGroup
	)
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				got := read()
				mu.Lock()
				reads = append(reads, got)
				mu.Unlock()
				if done.Load() {
					return
				}
			}
		}()
	}

	refreshErr := make(chan error, 1)
	go func() {
		_, err := svc.Refresh(ctx)
		refreshErr <- err
	}()
	require.NoError(t, <-refreshErr)
	done.Store(true)
	wg.Wait()

	require.NotEmpty(t, reads)
	for i, got := range reads {
		require.NotErrorIs(t, got.err, analytics.ErrSnapshotNotReady, "read %d", i)
		require.NoError(t, got.err, "read %d", i)
		assert.Equal(t, before.rows, got.rows, "read %d", i)
		assert.True(t, got.revenue.Equal(before.revenue) || got.revenue.Equal(wantAfter),
			"read %d saw revenue %s, want %s or %s", i, got.revenue, before.revenue, wantAfter)
	}

	after := read()
	require.NoError(t, after.err)
	assert.Equal(t, 10, after.rows)
	assert.True(t, wantAfter.Equal(after.revenue))
}
