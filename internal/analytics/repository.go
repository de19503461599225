package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
)

type Repository interface {
	DailyMetrics(ctx context.Context, r DateRange) ([]DailyMetric, error)
	DailyRevenue(ctx context.Context, r DateRange) ([]DailyRevenue, error)
	RollingRevenue(ctx context.Context, r DateRange) ([]RollingRevenue, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	RetentionCohorts(ctx context.Context, r MonthRange) ([]RetentionCohort, error)
}

type postgresRepository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db}
}

const (
	queryDailyMetrics = `
		SELECT date_key, revenue, refunds, orders_paid, paying_customers
		FROM analytics.mv_daily_metrics
		WHERE date_key BETWEEN $1 AND $2
		ORDER BY date_key`

	queryDailyRevenue = `
		SELECT date_key, revenue, refunds, orders_paid, orders_all
		FROM analytics.v_daily_revenue
		WHERE date_key BETWEEN $1 AND $2
		ORDER BY date_key`

	// The filter is applied to the view output, so the first rows of the range
	// still see the days preceding it.
	queryRollingRevenue = `
		SELECT date_key, revenue, revenue_rolling_7d
		FROM analytics.v_revenue_rolling_7d
		WHERE date_key BETWEEN $1 AND $2
		ORDER BY date_key`

	queryTopProducts = `
		SELECT product_id, name, category, units, sales
		FROM analytics.v_top_products_30d
		ORDER BY sales DESC, product_id
		LIMIT $1`

	queryRetentionCohorts = `
		SELECT cohort_month, active_month, active_customers
		FROM analytics.v_retention_cohorts
		WHERE cohort_month BETWEEN $1 AND $2
		ORDER BY cohort_month, active_month`
)

func (r *postgresRepository) DailyMetrics(ctx context.Context, dr DateRange) ([]DailyMetric, error) {
	rows := make([]DailyMetric, 0)
	if err := r.db.SelectContext(ctx, &rows, queryDailyMetrics, dr.Start, dr.End); err != nil {
		if isNotPopulated(err) {
			return nil, ErrSnapshotNotReady
		}
		return nil, fmt.Errorf("repository: failed to select daily metrics for %s: %w", dr, err)
	}
	return rows, nil
}

func (r *postgresRepository) DailyRevenue(ctx context.Context, dr DateRange) ([]DailyRevenue, error) {
	rows := make([]DailyRevenue, 0)
	if err := r.db.SelectContext(ctx, &rows, queryDailyRevenue, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("repository: failed to select daily revenue for %s: %w", dr, err)
	}
	return rows, nil
}

func (r *postgresRepository) RollingRevenue(ctx context.Context, dr DateRange) ([]RollingRevenue, error) {
	rows := make([]RollingRevenue, 0)
	if err := r.db.SelectContext(ctx, &rows, queryRollingRevenue, dr.Start, dr.End); err != nil {
		return nil, fmt.Errorf("repository: failed to select rolling revenue for %s: %w", dr, err)
	}
	return rows, nil
}

func (r *postgresRepository) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	rows := make([]TopProduct, 0)
	if err := r.db.SelectContext(ctx, &rows, queryTopProducts, limit); err != nil {
		return nil, fmt.Errorf("repository: failed to select top products: %w", err)
	}
	return rows, nil
}

func (r *postgresRepository) RetentionCohorts(ctx context.Context, mr MonthRange) ([]RetentionCohort, error) {
	rows := make([]RetentionCohort, 0)
	if err := r.db.SelectContext(ctx, &rows, queryRetentionCohorts, mr.Start, mr.End); err != nil {
		return nil, fmt.Errorf("repository: failed to select retention cohorts: %w", err)
	}
	return rows, nil
}

// isNotPopulated matches the error PostgreSQL raises when a materialized view created
// WITH NO DATA is read before its first refresh.
func isNotPopulated(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.ObjectNotInPrerequisiteState
}
