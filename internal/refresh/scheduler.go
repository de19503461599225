package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Refresher is the part of Service the scheduler drives.
type Refresher interface {
	Refresh(ctx context.Context) (*Run, error)
}

// Scheduler refreshes the snapshot on a fixed interval and on demand.
type Scheduler struct {
	refresher  Refresher
	interval   time.Duration
	runOnStart bool
	kick       chan struct{}
}

func NewScheduler(refresher Refresher, interval time.Duration, runOnStart bool) *Scheduler {
	return &Scheduler{
		refresher:  refresher,
		interval:   interval,
		runOnStart: runOnStart,
		kick:       make(chan struct{}, 1),
	}
}

// Kick requests a refresh as soon as possible. Requests made while one is already
// pending are merged into it; Kick reports whether this call queued a new one.
func (s *Scheduler) Kick() bool {
	select {
	case s.kick <- struct{}{}:
		return true
	default:
		return false
	}
}

// Start runs the loop in a goroutine. The returned function stops it and waits for
// an in-flight refresh to return.
func (s *Scheduler) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		if s.runOnStart {
			s.run(ctx, "startup")
		}

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("Refresh scheduler stopped")
				return
			case <-ticker.C:
				s.run(ctx, "schedule")
			case <-s.kick:
				s.run(ctx, "kick")
			}
		}
	}()

	log.Info().Dur("interval", s.interval).Bool("run_on_start", s.runOnStart).Msg("Refresh scheduler started")

	return func() {
		cancel()
		<-done
	}
}

func (s *Scheduler) run(ctx context.Context, reason string) {
	if ctx.Err() != nil {
		return
	}
	_, err := s.refresher.Refresh(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrRefreshInProgress):
		log.Debug().Str("reason", reason).Msg("Refresh skipped, another one is running")
	default:
		// Already logged and recorded by the service; the loop keeps going.
		log.Debug().Err(err).Str("reason", reason).Msg("Scheduled refresh failed")
	}
}
