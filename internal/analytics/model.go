package analytics

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"

	DefaultTopProductsLimit = 20
	MaxTopProductsLimit     = 500

	refundRatePlaces = 4
)

var (
	ErrInvalidRange      = errors.New("invalid date range")
	ErrInvalidLimit      = errors.New("invalid limit")
	ErrSnapshotNotReady  = errors.New("daily metrics snapshot has not been refreshed yet")
	ErrUnknownRelation   = errors.New("unknown relation")
	errMissingRangeBound = fmt.Errorf("%w: start and end are required", ErrInvalidRange)
)

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func ParseDateRange(start, end string) (DateRange, error) {
	return parseRange(start, end, DateLayout)
}

// Days is the number of dates in the range, both ends included.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r DateRange) Validate(maxDays int) error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errMissingRangeBound
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start %s is after end %s", ErrInvalidRange, r.Start.Format(DateLayout), r.End.Format(DateLayout))
	}
	if maxDays > 0 && r.Days() > maxDays {
		return fmt.Errorf("%w: %d days exceeds the limit of %d", ErrInvalidRange, r.Days(), maxDays)
	}
	return nil
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// MonthRange is an inclusive range of months, each bound normalised to the first of its month.
type MonthRange struct {
	Start time.Time
	End   time.Time
}

func ParseMonthRange(start, end string) (MonthRange, error) {
	r, err := parseRange(start, end, MonthLayout)
	if err != nil {
		return MonthRange{}, err
	}
	return MonthRange(r), nil
}

func (r MonthRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return errMissingRangeBound
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: cohort start %s is after cohort end %s", ErrInvalidRange, r.Start.Format(MonthLayout), r.End.Format(MonthLayout))
	}
	return nil
}

func parseRange(start, end, layout string) (DateRange, error) {
	s, err := time.Parse(layout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: start %q is not in %s format", ErrInvalidRange, start, layout)
	}
	e, err := time.Parse(layout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, fmt.Errorf("%w: end %q is not in %s format", ErrInvalidRange, end, layout)
	}
	return DateRange{Start: s, End: e}, nil
}

// RefundRate is refunds / revenue rounded to four places, and zero when there is no revenue.
func RefundRate(revenue, refunds decimal.Decimal) decimal.Decimal {
	if revenue.IsZero() {
		return decimal.Zero
	}
	return refunds.DivRound(revenue, refundRatePlaces)
}

type DailyMetric struct {
	DateKey         time.Time       `db:"date_key"`
	Revenue         decimal.Decimal `db:"revenue"`
	Refunds         decimal.Decimal `db:"refunds"`
	OrdersPaid      int64           `db:"orders_paid"`
	PayingCustomers int64           `db:"paying_customers"`
	RefundRate      decimal.Decimal `db:"-"`
}

type DailyRevenue struct {
	DateKey    time.Time       `db:"date_key"`
	Revenue    decimal.Decimal `db:"revenue"`
	Refunds    decimal.Decimal `db:"refunds"`
	OrdersPaid int64           `db:"orders_paid"`
	OrdersAll  int64           `db:"orders_all"`
	RefundRate decimal.Decimal `db:"-"`
}

type RollingRevenue struct {
	DateKey          time.Time       `db:"date_key"`
	Revenue          decimal.Decimal `db:"revenue"`
	RevenueRolling7d decimal.Decimal `db:"revenue_rolling_7d"`
}

type TopProduct struct {
	ProductID int64           `db:"product_id"`
	Name      string          `db:"name"`
	Category  *string         `db:"category"`
	Units     int64           `db:"units"`
	Sales     decimal.Decimal `db:"sales"`
}

type RetentionCohort struct {
	CohortMonth     time.Time `db:"cohort_month"`
	ActiveMonth     time.Time `db:"active_month"`
	ActiveCustomers int64     `db:"active_customers"`
}

// MonthOffset is the number of months between signup and activity; 0 is the signup month.
func (c RetentionCohort) MonthOffset() int {
	return (c.ActiveMonth.Year()-c.CohortMonth.Year())*12 + int(c.ActiveMonth.Month()) - int(c.CohortMonth.Month())
}
