package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/db"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/handler"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/refresh"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/transport"
	"github.com/vasiliy-maslov/ecommerce-microservices/analytics-service/internal/trigger"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Apply migrations, start the refresh scheduler and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	log.Info().Msg("Analytics service starting...")

	pg, err := a.openDB(ctx)
	if err != nil {
		return err
	}
	defer pg.Close()

	if err := migrateUp(pg); err != nil {
		return err
	}

	locker, closeLocker, err := a.locker(ctx)
	if err != nil {
		return err
	}
	defer closeLocker()

	refreshSvc := refresh.NewService(refresh.NewRepository(pg.DB), locker, a.cfg.Refresh)
	scheduler := refresh.NewScheduler(refreshSvc, a.cfg.Refresh.Interval, a.cfg.Refresh.OnStart)
	stopScheduler := scheduler.Start(ctx)
	defer stopScheduler()

	if a.cfg.RabbitMQ.URL != "" {
		consumer, err := trigger.NewConsumer(a.cfg.RabbitMQ)
		if err != nil {
			return err
		}
		defer consumer.Close()

		go func() {
			if err := consumer.Run(ctx, scheduler); err != nil {
				log.Error().Err(err).Msg("Refresh trigger stopped, scheduled refreshes continue")
			}
		}()
	}

	router := transport.NewRouter(transport.Handlers{
		Reports: handler.NewReportHandler(a.analyticsService(pg)),
		Refresh: handler.NewRefreshHandler(refreshSvc, scheduler),
		DB:      pg.Pool,
	})

	server := &http.Server{
		Addr:         ":" + a.cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", a.cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	}

	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	log.Info().Msg("Analytics service stopped gracefully")
	return nil
}

func migrateUp(pg *db.Postgres) error {
	m, err := db.NewMigrator(pg)
	if err != nil {
		return err
	}
	defer func() { _ = m.Close() }()

	return m.Up()
}
