// Package testdb connects integration tests to a real PostgreSQL instance.
// Tests that use it are skipped unless ANALYTICS_TEST_DATABASE_URL is set.
// Packages share one database, so run them with `go test -p 1 ./...`.
package testdb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/db"
)

const EnvDatabaseURL = "ANALYTICS_TEST_DATABASE_URL"

// Open returns a migrated database and registers cleanup of all analytics rows.
func Open(tb testing.TB) *db.Postgres {
	tb.Helper()

	url := os.Getenv(EnvDatabaseURL)
	if url == "" {
		tb.Skipf("%s is not set, skipping PostgreSQL integration test", EnvDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pg, err := db.Open(ctx, url)
	require.NoError(tb, err, "failed to connect to test database")

	migrator, err := db.NewMigrator(pg)
	require.NoError(tb, err)
	require.NoError(tb, migrator.Up())
	require.NoError(tb, migrator.Close())

	Truncate(tb, pg)
	tb.Cleanup(func() {
		Truncate(tb, pg)
		pg.Close()
	})

	return pg
}

// Truncate empties every analytics table and resets the snapshot to its unpopulated state.
func Truncate(tb testing.TB, pg *db.Postgres) {
	tb.Helper()
	ctx := context.Background()

	_, err := pg.Pool.Exec(ctx, `TRUNCATE TABLE
		analytics.fact_events,
		analytics.fact_order_items,
		analytics.fact_orders,
		analytics.dim_customer,
		analytics.dim_product,
		analytics.dim_date,
		analytics.refresh_log
		RESTART IDENTITY CASCADE`)
	require.NoError(tb, err, "failed to truncate analytics tables")

	_, err = pg.Pool.Exec(ctx, `REFRESH MATERIALIZED VIEW analytics.mv_daily_metrics WITH NO DATA`)
	require.NoError(tb, err, "failed to reset daily metrics snapshot")
}
