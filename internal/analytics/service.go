// Package analytics reads the derived views and the daily metrics snapshot.
package analytics

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

type Service interface {
	DailyMetrics(ctx context.Context, r DateRange) ([]DailyMetric, error)
	DailyRevenue(ctx context.Context, r DateRange) ([]DailyRevenue, error)
	RollingRevenue(ctx context.Context, r DateRange) ([]RollingRevenue, error)
	TopProducts(ctx context.Context, limit int) ([]TopProduct, error)
	RetentionCohorts(ctx context.Context, r MonthRange) ([]RetentionCohort, error)
	Catalog() []Relation
	Relation(name string) (Relation, error)
}

type service struct {
	repo         Repository
	maxRangeDays int
}

// NewService returns a Service over repo. Date ranges longer than maxRangeDays are
// rejected; zero disables the check.
func NewService(repo Repository, maxRangeDays int) Service {
	return &service{repo: repo, maxRangeDays: maxRangeDays}
}

// DailyMetrics reads the snapshot only. An inverted range is rejected rather than
// answered with an empty result.
func (s *service) DailyMetrics(ctx context.Context, r DateRange) ([]DailyMetric, error) {
	if err := r.Validate(s.maxRangeDays); err != nil {
		return nil, err
	}

	rows, err := s.repo.DailyMetrics(ctx, r)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotReady) {
			log.Warn().Stringer("range", r).Msg("service: daily metrics requested before first refresh")
			return nil, ErrSnapshotNotReady
		}
		log.Error().Err(err).Stringer("range", r).Msg("service: failed to fetch daily metrics")
		return nil, fmt.Errorf("service: failed to fetch daily metrics: %w", err)
	}

	for i := range rows {
		rows[i].RefundRate = RefundRate(rows[i].Revenue, rows[i].Refunds)
	}
	return rows, nil
}

func (s *service) DailyRevenue(ctx context.Context, r DateRange) ([]DailyRevenue, error) {
	if err := r.Validate(s.maxRangeDays); err != nil {
		return nil, err
	}

	rows, err := s.repo.DailyRevenue(ctx, r)
	if err != nil {
		log.Error().Err(err).Stringer("range", r).Msg("service: failed to fetch daily revenue")
		return nil, fmt.Errorf("service: failed to fetch daily revenue: %w", err)
	}

	for i := range rows {
		rows[i].RefundRate = RefundRate(rows[i].Revenue, rows[i].Refunds)
	}
	return rows, nil
}

func (s *service) RollingRevenue(ctx context.Context, r DateRange) ([]RollingRevenue, error) {
	if err := r.Validate(s.maxRangeDays); err != nil {
		return nil, err
	}

	rows, err := s.repo.RollingRevenue(ctx, r)
	if err != nil {
		log.Error().Err(err).Stringer("range", r).Msg("service: failed to fetch rolling revenue")
		return nil, fmt.Errorf("service: failed to fetch rolling revenue: %w", err)
	}
	return rows, nil
}

// TopProducts uses DefaultTopProductsLimit when limit is zero.
func (s *service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit == 0 {
		limit = DefaultTopProductsLimit
	}
	if limit < 0 || limit > MaxTopProductsLimit {
		return nil, fmt.Errorf("%w: %d is outside 1..%d", ErrInvalidLimit, limit, MaxTopProductsLimit)
	}

	rows, err := s.repo.TopProducts(ctx, limit)
	if err != nil {
		log.Error().Err(err).Int("limit", limit).Msg("service: failed to fetch top products")
		return nil, fmt.Errorf("service: failed to fetch top products: %w", err)
	}
	return rows, nil
}

func (s *service) RetentionCohorts(ctx context.Context, r MonthRange) ([]RetentionCohort, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	rows, err := s.repo.RetentionCohorts(ctx, r)
	if err != nil {
		log.Error().Err(err).Msg("service: failed to fetch retention cohorts")
		return nil, fmt.Errorf("service: failed to fetch retention cohorts: %w", err)
	}
	return rows, nil
}

func (s *service) Catalog() []Relation {
	return Catalog()
}

func (s *service) Relation(name string) (Relation, error) {
	r, ok := LookupRelation(name)
	if !ok {
		return Relation{}, fmt.Errorf("%w: %q", ErrUnknownRelation, name)
	}
	return r, nil
}
