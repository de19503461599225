// Package refresh rebuilds the daily metrics snapshot and reports its freshness.
package refresh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/lock"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/metrics"
)

const lockKey = "analytics:refresh:mv_daily_metrics"

// recordTimeout bounds the write of a failed run, which happens after the refresh
// context may already be done.
const recordTimeout = 5 * time.Second

var ErrRefreshInProgress = errors.New("snapshot refresh already in progress")

// Status describes snapshot freshness. Age is measured from the last successful refresh.
type Status struct {
	InProgress  bool    `json:"in_progress"`
	LastSuccess *Run    `json:"last_success,omitempty"`
	LastAttempt *Run    `json:"last_attempt,omitempty"`
	AgeSeconds  float64 `json:"age_seconds,omitempty"`
}

type Service interface {
	Refresh(ctx context.Context) (*Run, error)
	Status(ctx context.Context) (*Status, error)
}

type service struct {
	repo    Repository
	locker  lock.Locker
	cfg     config.RefreshConfig
	now     func() time.Time
	mu      sync.Mutex
	running atomic.Bool
}

func NewService(repo Repository, locker lock.Locker, cfg config.RefreshConfig) Service {
	if locker == nil {
		locker = lock.NewNoopLocker()
	}
	return &service{
		repo:   repo,
		locker: locker,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Only one Refresh runs at a time within the process and, through the cluster lock,
// across replicas. Callers that lose either race get ErrRefreshInProgress.
func (s *service) Refresh(ctx context.Context) (*Run, error) {
	if !s.mu.TryLock() {
		metrics.RefreshTotal.WithLabelValues(metrics.StatusSkipped).Inc()
		return nil, ErrRefreshInProgress
	}
	defer s.mu.Unlock()

	release, err := s.locker.Acquire(ctx, lockKey, s.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			log.Info().Msg("service: snapshot refresh is running on another replica, skipping")
			metrics.RefreshTotal.WithLabelValues(metrics.StatusSkipped).Inc()
			return nil, ErrRefreshInProgress
		}
		return nil, fmt.Errorf("service: failed to acquire refresh lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("service: failed to release refresh lock")
		}
	}()

	s.running.Store(true)
	defer s.running.Store(false)

	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("service: failed to generate refresh id: %w", err)
	}
	run := &Run{ID: id, Relation: SnapshotRelation, StartedAt: s.now()}

	refreshCtx := ctx
	if s.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		refreshCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}

	if err := s.repo.Refresh(refreshCtx, run, s.cfg.Timeout); err != nil {
		s.recordFailure(ctx, run, err)
		return run, fmt.Errorf("service: snapshot refresh failed: %w", err)
	}

	metrics.ObserveRefresh(metrics.StatusSucceeded, run.Duration(), run.RowCount, run.FinishedAt)
	log.Info().
		Stringer("refresh_id", run.ID).
		Int64("rows", run.RowCount).
		Dur("took", run.Duration()).
		Msg("Snapshot refreshed")

	return run, nil
}

func (s *service) recordFailure(ctx context.Context, run *Run, cause error) {
	msg := cause.Error()
	run.Status = RunFailed
	run.Error = &msg
	run.RowCount = 0
	run.FinishedAt = s.now()

	metrics.ObserveRefresh(metrics.StatusFailed, run.Duration(), 0, run.FinishedAt)
	log.Error().
		Err(cause).
		Stringer("refresh_id", run.ID).
		Dur("took", run.Duration()).
		Msg("Snapshot refresh failed, previous snapshot kept")

	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	if err := s.repo.RecordRun(recordCtx, run); err != nil {
		log.Error().Err(err).Stringer("refresh_id", run.ID).Msg("service: failed to record failed refresh run")
	}
}

func (s *service) Status(ctx context.Context) (*Status, error) {
	lastSuccess, err := s.repo.LastRun(ctx, RunSucceeded)
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch last successful refresh: %w", err)
	}
	lastAttempt, err := s.repo.LastRun(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("service: failed to fetch last refresh attempt: %w", err)
	}

	st := &Status{
		InProgress:  s.running.Load(),
		LastSuccess: lastSuccess,
		LastAttempt: lastAttempt,
	}
	if lastSuccess != nil {
		st.AgeSeconds = s.now().Sub(lastSuccess.FinishedAt).Seconds()
	}
	return st, nil
}
