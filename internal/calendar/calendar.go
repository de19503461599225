// Package calendar populates the date dimension for the reporting horizon.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
)

const DateLayout = "2006-01-02"

// maxDays bounds a single Generate call to roughly a century.
const maxDays = 36600

var ErrInvalidHorizon = errors.New("calendar: invalid horizon")

type Day struct {
	DateKey time.Time `db:"date_key"`
	Year    int       `db:"year"`
	Quarter int       `db:"quarter"`
	Month   int       `db:"month"`
	Day     int       `db:"day"`
	ISOWeek int       `db:"iso_week"`
}

// NewDay derives every attribute from the calendar date in t, ignoring the clock.
func NewDay(t time.Time) Day {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	_, week := d.ISOWeek()
	return Day{
		DateKey: d,
		Year:    d.Year(),
		Quarter: (int(d.Month())-1)/3 + 1,
		Month:   int(d.Month()),
		Day:     d.Day(),
		ISOWeek: week,
	}
}

// Generate returns one Day per calendar date in the inclusive range [from, to].
func Generate(from, to time.Time) ([]Day, error) {
	start := NewDay(from).DateKey
	end := NewDay(to).DateKey
	if end.Before(start) {
		return nil, fmt.Errorf("%w: %s is after %s", ErrInvalidHorizon, start.Format(DateLayout), end.Format(DateLayout))
	}

	n := int(end.Sub(start).Hours()/24) + 1
	if n > maxDays {
		return nil, fmt.Errorf("%w: %d days exceeds the limit of %d", ErrInvalidHorizon, n, maxDays)
	}

	days := make([]Day, 0, n)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, NewDay(d))
	}
	return days, nil
}

type batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type Repository struct {
	db batcher
}

func NewRepository(db batcher) *Repository {
	return &Repository{db: db}
}

const insertDay = `
	INSERT INTO analytics.dim_date (date_key, year, quarter, month, day, iso_week)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (date_key) DO NOTHING
`

// Populate inserts the missing days of [from, to]. Existing rows are left untouched,
// so re-running over an overlapping horizon is safe.
func (r *Repository) Populate(ctx context.Context, from, to time.Time) (inserted int64, err error) {
	days, err := Generate(from, to)
	if err != nil {
		return 0, err
	}

	batch := &pgx.Batch{}
	for _, d := range days {
		batch.Queue(insertDay, d.DateKey, d.Year, d.Quarter, d.Month, d.Day, d.ISOWeek)
	}

	results := r.db.SendBatch(ctx, batch)
	defer func() {
		if closeErr := results.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("repository: failed to close calendar batch: %w", closeErr)
		}
	}()

	for i := range days {
		var tag pgconn.CommandTag
		tag, err = results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("repository: failed to insert date %s: %w", days[i].DateKey.Format(DateLayout), err)
		}
		inserted += tag.RowsAffected()
	}

	log.Info().
		Str("from", days[0].DateKey.Format(DateLayout)).
		Str("to", days[len(days)-1].DateKey.Format(DateLayout)).
		Int("days", len(days)).
		Int64("inserted", inserted).
		Msg("Date dimension populated")

	return inserted, nil
}
