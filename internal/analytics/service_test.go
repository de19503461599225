package analytics_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) DailyMetrics(ctx context.Context, r analytics.DateRange) ([]analytics.DailyMetric, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.DailyMetric), args.Error(1)
}

func (m *MockRepository) DailyRevenue(ctx context.Context, r analytics.DateRange) ([]analytics.DailyRevenue, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.DailyRevenue), args.Error(1)
}

func (m *MockRepository) RollingRevenue(ctx context.Context, r analytics.DateRange) ([]analytics.RollingRevenue, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.RollingRevenue), args.Error(1)
}

func (m *MockRepository) TopProducts(ctx context.Context, limit int) ([]analytics.TopProduct, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.TopProduct), args.Error(1)
}

func (m *MockRepository) RetentionCohorts(ctx context.Context, r analytics.MonthRange) ([]analytics.RetentionCohort, error) {
	args := m.Called(ctx, r)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]analytics.RetentionCohort), args.Error(1)
}

func TestService_DailyMetrics_AddsRefundRate(t *testing.T) {
	repo := new(MockRepository)
	svc := analytics.NewService(repo, 366)
	r := analytics.DateRange{Start: day(2024, time.January, 1), End: day(2024, time.January, 2)}

	repo.On("DailyMetrics", mock.Anything, r).Return([]analytics.DailyMetric{
		{DateKey: day(2024, time.January, 1), Revenue: dec("100.00"), Refunds: dec("20.00"), OrdersPaid: 1, PayingCustomers: 1},
		{DateKey: day(2024, time.January, 2), Revenue: dec("0"), Refunds: dec("0")},
	}, nil).Once()

	rows, err := svc.DailyMetrics(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.True(t, dec("0.2").Equal(rows[0].RefundRate))
	assert.True(t, rows[1].RefundRate.IsZero())
	repo.AssertExpectations(t)
}

func TestService_DailyMetrics_RejectsInvalidRange(t *testing.T) {
	tests := []struct {
		name string
		r    analytics.DateRange
	}{
		{name: "inverted", r: analytics.DateRange{Start: day(2024, time.January, 2), End: day(2024, time.January, 1)}},
		{name: "too_long", r: analytics.DateRange{Start: day(2023, time.January, 1), End: day(2024, time.January, 2)}},
		{name: "missing_bound", r: analytics.DateRange{Start: day(2024, time.January, 1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := analytics.NewService(repo, 366)

			rows, err := svc.DailyMetrics(context.Background(), tt.r)
			assert.ErrorIs(t, err, analytics.ErrInvalidRange)
			assert.Nil(t, rows)
			repo.AssertNotCalled(t, "DailyMetrics", mock.Anything, mock.Anything)
		})
	}
}

func TestService_DailyMetrics_Errors(t *testing.T) {
	r := analytics.DateRange{Start: day(2024, time.January, 1), End: day(2024, time.January, 1)}

	t.Run("snapshot_not_ready", func(t *testing.T) {
		repo := new(MockRepository)
		repo.On("DailyMetrics", mock.Anything, r).Return(nil, analytics.ErrSnapshotNotReady).Once()

		_, err := analytics.NewService(repo, 0).DailyMetrics(context.Background(), r)
		assert.ErrorIs(t, err, analytics.ErrSnapshotNotReady)
	})

	t.Run("repository_failure", func(t *testing.T) {
		repo := new(MockRepository)
		boom := errors.New("boom")
		repo.On("DailyMetrics", mock.Anything, r).Return(nil, boom).Once()

		_, err := analytics.NewService(repo, 0).DailyMetrics(context.Background(), r)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "service: failed to fetch daily metrics")
	})
}

func TestService_DailyRevenue_ZeroGuard(t *testing.T) {
	repo := new(MockRepository)
	svc := analytics.NewService(repo, 0)
	r := analytics.DateRange{Start: day(2024, time.January, 1), End: day(2024, time.January, 1)}

	repo.On("DailyRevenue", mock.Anything, r).Return([]analytics.DailyRevenue{
		{DateKey: day(2024, time.January, 1), Revenue: dec("0"), Refunds: dec("5.00"), OrdersAll: 2},
	}, nil).Once()

	rows, err := svc.DailyRevenue(context.Background(), r)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].RefundRate.IsZero())
}

func TestService_TopProducts_Limit(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		wantLimit int
		wantErr   bool
	}{
		{name: "default", limit: 0, wantLimit: analytics.DefaultTopProductsLimit},
		{name: "explicit", limit: 5, wantLimit: 5},
		{name: "max", limit: analytics.MaxTopProductsLimit, wantLimit: analytics.MaxTopProductsLimit},
		{name: "negative", limit: -1, wantErr: true},
		{name: "above_max", limit: analytics.MaxTopProductsLimit + 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockRepository)
			svc := analytics.NewService(repo, 0)
			if !tt.wantErr {
				repo.On("TopProducts", mock.Anything, tt.wantLimit).Return([]analytics.TopProduct{}, nil).Once()
			}

			_, err := svc.TopProducts(context.Background(), tt.limit)
			if tt.wantErr {
				assert.ErrorIs(t, err, analytics.ErrInvalidLimit)
				repo.AssertNotCalled(t, "TopProducts", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			repo.AssertExpectations(t)
		})
	}
}

func TestService_RetentionCohorts(t *testing.T) {
	repo := new(MockRepository)
	svc := analytics.NewService(repo, 0)

	_, err := svc.RetentionCohorts(context.Background(), analytics.MonthRange{Start: day(2024, time.March, 1), End: day(2024, time.January, 1)})
	assert.ErrorIs(t, err, analytics.ErrInvalidRange)

	r := analytics.MonthRange{Start: day(2024, time.January, 1), End: day(2024, time.March, 1)}
	repo.On("RetentionCohorts", mock.Anything, r).Return([]analytics.RetentionCohort{
		{CohortMonth: day(2024, time.January, 1), ActiveMonth: day(2024, time.March, 1), ActiveCustomers: 1},
	}, nil).Once()

	rows, err := svc.RetentionCohorts(context.Background(), r)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
	repo.AssertExpectations(t)
}

func TestService_Relation(t *testing.T) {
	svc := analytics.NewService(new(MockRepository), 0)

	tests := []struct {
		name     string
		relation string
		wantKind analytics.RelationKind
		wantErr  error
	}{
		{name: "bare name", relation: "v_daily_revenue", wantKind: analytics.KindView},
		{name: "schema qualified", relation: "analytics.mv_daily_metrics", wantKind: analytics.KindMaterializedView},
		{name: "outside the schema", relation: "pg_authid", wantErr: analytics.ErrUnknownRelation},
		{name: "other schema prefix", relation: "public.dim_date", wantErr: analytics.ErrUnknownRelation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rel, err := svc.Relation(tt.relation)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, rel.Kind)
			assert.NotEmpty(t, rel.Columns)
		})
	}
}
