package refresh

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

const SnapshotRelation = "analytics.mv_daily_metrics"

const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
)

// Run is one row of analytics.refresh_log.
type Run struct {
	ID         uuid.UUID `json:"refresh_id" db:"refresh_id"`
	Relation   string    `json:"relation" db:"relation"`
	StartedAt  time.Time `json:"started_at" db:"started_at"`
	FinishedAt time.Time `json:"finished_at" db:"finished_at"`
	Status     string    `json:"status" db:"status"`
	RowCount   int64     `json:"row_count" db:"row_count"`
	Error      *string   `json:"error,omitempty" db:"error"`
}

func (r *Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

type Repository interface {
	// Refresh rebuilds the snapshot and records run as succeeded in one transaction.
	Refresh(ctx context.Context, run *Run, statementTimeout time.Duration) error
	RecordRun(ctx context.Context, run *Run) error
	LastRun(ctx context.Context, status string) (*Run, error)
}

type postgresRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

func NewRepository(db *sqlx.DB) Repository {
	return &postgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const (
	querySetTimeout  = `SELECT set_config('statement_timeout', $1, true)`
	queryIsPopulated = `SELECT ispopulated FROM pg_matviews WHERE schemaname = 'analytics' AND matviewname = 'mv_daily_metrics'`
	queryRefreshConc = `REFRESH MATERIALIZED VIEW CONCURRENTLY analytics.mv_daily_metrics`
	queryRefreshFull = `REFRESH MATERIALIZED VIEW analytics.mv_daily_metrics`
	queryCountRows   = `SELECT count(*) FROM analytics.mv_daily_metrics`
	queryInsertRun   = `
		INSERT INTO analytics.refresh_log (refresh_id, relation, started_at, finished_at, status, row_count, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	queryLastRun = `
		SELECT refresh_id, relation, started_at, finished_at, status, row_count, error
		FROM analytics.refresh_log
		WHERE relation = $1 AND ($2::text = '' OR status = $2::text)
		ORDER BY finished_at DESC
		LIMIT 1`
)

// Refresh uses CONCURRENTLY once the view holds data so readers keep seeing the previous
// snapshot while the new one is built. The very first refresh has to be a plain one.
// On any error the transaction is rolled back and the previous snapshot stays in place.
func (r *postgresRepository) Refresh(ctx context.Context, run *Run, statementTimeout time.Duration) (err error) {
	tx, beginErr := r.db.BeginTxx(ctx, nil)
	if beginErr != nil {
		return fmt.Errorf("repository: failed to begin refresh transaction: %w", beginErr)
	}
	defer func() {
		if p := recover(); p != nil {
			log.Error().Interface("panic_value", p).Stringer("refresh_id", run.ID).Msg("Panic recovered during snapshot refresh, rolling back")
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Stringer("refresh_id", run.ID).Msg("Failed to rollback transaction after panic")
			}
			panic(p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Error().Err(rbErr).Stringer("refresh_id", run.ID).Msg("Failed to rollback refresh transaction")
			}
		} else if commitErr := tx.Commit(); commitErr != nil {
			err = fmt.Errorf("repository: failed to commit refresh transaction: %w", commitErr)
		}
	}()

	if statementTimeout > 0 {
		if _, err = tx.ExecContext(ctx, querySetTimeout, strconv.FormatInt(statementTimeout.Milliseconds(), 10)); err != nil {
			return fmt.Errorf("repository: failed to set statement timeout: %w", err)
		}
	}

	var populated bool
	if err = tx.GetContext(ctx, &populated, queryIsPopulated); err != nil {
		return fmt.Errorf("repository: failed to inspect %s: %w", SnapshotRelation, err)
	}

	stmt := queryRefreshFull
	if populated {
		stmt = queryRefreshConc
	}
	if _, err = tx.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("repository: failed to refresh %s: %w", SnapshotRelation, err)
	}

	if err = tx.GetContext(ctx, &run.RowCount, queryCountRows); err != nil {
		return fmt.Errorf("repository: failed to count %s rows: %w", SnapshotRelation, err)
	}

	run.Relation = SnapshotRelation
	run.Status = RunSucceeded
	run.FinishedAt = r.now()
	if _, err = tx.ExecContext(ctx, queryInsertRun,
		run.ID, run.Relation, run.StartedAt, run.FinishedAt, run.Status, run.RowCount, run.Error); err != nil {
		return fmt.Errorf("repository: failed to record refresh run: %w", err)
	}

	return nil
}

func (r *postgresRepository) RecordRun(ctx context.Context, run *Run) error {
	_, err := r.db.ExecContext(ctx, queryInsertRun,
		run.ID, run.Relation, run.StartedAt, run.FinishedAt, run.Status, run.RowCount, run.Error)
	if err != nil {
		return fmt.Errorf("repository: failed to record refresh run %s: %w", run.ID, err)
	}
	return nil
}

// LastRun returns the most recent run with the given status, or with any status when
// status is empty. It returns nil when there is none.
func (r *postgresRepository) LastRun(ctx context.Context, status string) (*Run, error) {
	var run Run
	if err := r.db.GetContext(ctx, &run, queryLastRun, SnapshotRelation, status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("repository: failed to select last refresh run: %w", err)
	}
	return &run, nil
}
