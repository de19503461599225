// Package lock provides the cluster-wide mutex that keeps snapshot refreshes
// from running on more than one replica at a time.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/config"
)

var ErrNotAcquired = errors.New("lock: held by another owner")

// Release gives the lock back. Calling it after the TTL has expired returns an error.
type Release func(ctx context.Context) error

type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error)
}

type redisLocker struct {
	client *redislock.Client
}

func NewRedisLocker(rdb redislock.RedisClient) Locker {
	return &redisLocker{client: redislock.New(rdb)}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Release, error) {
	lk, err := l.client.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrNotAcquired
	}
	if err != nil {
		return nil, fmt.Errorf("lock: failed to obtain %s: %w", key, err)
	}

	return func(ctx context.Context) error {
		if err := lk.Release(ctx); err != nil {
			return fmt.Errorf("lock: failed to release %s: %w", key, err)
		}
		return nil
	}, nil
}

type noopLocker struct{}

// NewNoopLocker always grants the lock. It is used when Redis is not configured
// and a single replica is assumed.
func NewNoopLocker() Locker {
	return noopLocker{}
}

func (noopLocker) Acquire(context.Context, string, time.Duration) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

// NewRedisClient connects to Redis and verifies the connection with a ping.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}

	log.Info().Str("addr", cfg.Addr).Msg("Connected to Redis")
	return rdb, nil
}
