package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/edvin/timeoff/internal/api"
	"github.com/edvin/timeoff/internal/bootstrap"
	"github.com/edvin/timeoff/internal/db"
	"github.com/edvin/timeoff/internal/logging"
	"github.com/edvin/timeoff/internal/metrics"
	"github.com/edvin/timeoff/internal/store"
)

func newServeCmd() *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig("api")
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg)
			ctx := cmd.Context()

			if migrate {
				logger.Info().Msg("running database migrations")
				if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
					return err
				}
			}

			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()
			metrics.RegisterPgxPoolMetrics(pool)

			engine, err := bootstrap.NewEngine(cfg, store.New(pool))
			if err != nil {
				return err
			}

			srv, err := api.NewServer(logger, pool, engine.Services, cfg, engine.Mailbox)
			if err != nil {
				return err
			}

			httpServer := &http.Server{
				Addr:         cfg.HTTPListenAddr,
				Handler:      srv,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 30 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			if cfg.MetricsAddr != "" {
				metricsSrv := metrics.NewServer(cfg.MetricsAddr)
				go func() {
					logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
					if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						logger.Error().Err(err).Msg("metrics server failed")
					}
				}()
				defer metricsSrv.Close()
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info().Str("addr", cfg.HTTPListenAddr).Msg("starting time-off API server")
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&migrate, "migrate", false, "Run database migrations before starting")
	return cmd
}
