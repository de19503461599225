package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/analytics"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/config"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/lock"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/logger"
)

// app carries what every subcommand needs once the root has loaded the configuration.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "analytics-service",
		Short:         "Sales analytics warehouse: reports, snapshot refresh and data loading",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.NewConfig()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			logger.Init(cfg.App)
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newRefreshCmd(a),
		newCalendarCmd(a),
		newReportCmd(a),
		newExportCmd(a),
		newLoadCmd(a),
	)
	return root
}

func (a *app) openDB(ctx context.Context) (*db.Postgres, error) {
	pg, err := db.New(ctx, a.cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pg, nil
}

// locker returns the Redis lock when Redis is configured. The returned close function is never nil.
func (a *app) locker(ctx context.Context) (lock.Locker, func(), error) {
	if a.cfg.Redis.Addr == "" {
		log.Info().Msg("REDIS_ADDR not set, refresh lock is process-local")
		return lock.NewNoopLocker(), func() {}, nil
	}

	rdb, err := lock.NewRedisClient(ctx, a.cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLocker(rdb), func() { _ = rdb.Close() }, nil
}

func (a *app) analyticsService(pg *db.Postgres) analytics.Service {
	return analytics.NewService(analytics.NewRepository(pg.DB), a.cfg.Analytics.MaxRangeDays)
}

func addDateRangeFlags(cmd *cobra.Command, start, end *string) {
	cmd.Flags().StringVar(start, "start", "", "first date of the range (YYYY-MM-DD)")
	cmd.Flags().StringVar(end, "end", "", "last date of the range (YYYY-MM-DD), inclusive")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("end")
}

func parseDay(flag, value string) (time.Time, error) {
	d, err := time.Parse(analytics.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %q is not a %s date", flag, value, analytics.DateLayout)
	}
	return d, nil
}
