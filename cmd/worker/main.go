package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	temporalclient "go.temporal.io/sdk/client"
	"go.temporal.io/sdk/interceptor"
	"go.temporal.io/sdk/worker"

	"github.com/edvin/timeoff/internal/activity"
	"github.com/edvin/timeoff/internal/bootstrap"
	"github.com/edvin/timeoff/internal/config"
	"github.com/edvin/timeoff/internal/db"
	"github.com/edvin/timeoff/internal/logging"
	"github.com/edvin/timeoff/internal/metrics"
	"github.com/edvin/timeoff/internal/store"
	"github.com/edvin/timeoff/internal/workflow"
)

const (
	taskQueue            = "timeoff-tasks"
	replyCheckScheduleID = "reply-check-cron"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate("worker"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewLogger(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	st := store.New(pool)
	engine, err := bootstrap.NewEngine(cfg, st)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build engine")
	}

	dialOpts, err := cfg.TemporalClientOptions()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure temporal client")
	}
	if dialOpts.ConnectionOptions.TLS != nil {
		logger.Info().Msg("temporal mTLS enabled")
	}
	tc, err := temporalclient.Dial(dialOpts)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to temporal")
	}
	defer tc.Close()

	w := worker.New(tc, taskQueue, worker.Options{
		Interceptors: []interceptor.WorkerInterceptor{&workflow.ActivityInterceptor{}},
	})

	w.RegisterActivity(activity.NewReplies(st, engine.Services.Reply, logger))
	w.RegisterWorkflow(workflow.CheckRepliesWorkflow)

	if cfg.MetricsAddr != "" {
		metricsSrv := metrics.NewServer(cfg.MetricsAddr)
		go func() {
			logger.Info().Str("addr", cfg.MetricsAddr).Msg("starting metrics server")
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("metrics server failed")
			}
		}()
	}

	go func() {
		logger.Info().Str("taskQueue", taskQueue).Msg("starting temporal worker")
		if err := w.Run(worker.InterruptCh()); err != nil {
			logger.Fatal().Err(err).Msg("worker failed")
		}
	}()

	// Errors for an already-existing schedule are ignored so that re-deploys
	// do not fail.
	registerReplyCheckSchedule(ctx, tc, cfg.ReplyCheckCron, logger)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down worker")
	cancel()
}

func registerReplyCheckSchedule(ctx context.Context, tc temporalclient.Client, cron string, logger zerolog.Logger) {
	_, err := tc.ScheduleClient().Create(ctx, temporalclient.ScheduleOptions{
		ID: replyCheckScheduleID,
		Spec: temporalclient.ScheduleSpec{
			CronExpressions: []string{cron},
		},
		Action: &temporalclient.ScheduleWorkflowAction{
			ID:        replyCheckScheduleID,
			Workflow:  workflow.CheckRepliesWorkflow,
			TaskQueue: taskQueue,
		},
	})
	if err != nil {
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "AlreadyExists") || strings.Contains(err.Error(), "already registered") {
			logger.Info().Str("id", replyCheckScheduleID).Msg("cron schedule already exists, skipping")
			return
		}
		logger.Fatal().Err(err).Str("id", replyCheckScheduleID).Msg("failed to create cron schedule")
	}
	logger.Info().Str("id", replyCheckScheduleID).Str("cron", cron).Msg("created cron schedule")
}
