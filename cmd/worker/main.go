package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/noah-isme/storefront-pricing/internal/app"
	"github.com/noah-isme/storefront-pricing/internal/config"
	"github.com/noah-isme/storefront-pricing/internal/jobs"
	"github.com/noah-isme/storefront-pricing/internal/obs"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger("storefront-worker", cfg.LogFormat, cfg.LogLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "storefront-worker",
		Endpoint:      cfg.OTELEndpoint,
		Exporter:      cfg.OTELExporter,
		SamplingRatio: cfg.OTELSampleRatio,
		Environment:   cfg.AppEnv,
	})
	if err != nil {
		logger.Error().Err(err).Msg("initialise tracing")
	} else {
		defer func() {
			if err := shutdownTracer(context.Background()); err != nil {
				logger.Error().Err(err).Msg("shutdown tracer")
			}
		}()
	}
	obs.MustRegisterDomainMetrics("storefront", nil)

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open dependencies")
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error().Err(err).Msg("close dependencies")
		}
	}()
	svcs := app.NewServices(deps)

	redisOpt, err := deps.RedisConnOpt()
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url for tasks")
	}
	taskLogger := jobs.Logger{L: logger}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		Queues:      map[string]int{jobs.QueueMaintenance: 1},
		Logger:      taskLogger,
		ErrorHandler: asynq.ErrorHandlerFunc(func(_ context.Context, task *asynq.Task, err error) {
			logger.Error().Err(err).Str("task", task.Type()).Msg("task failed")
		}),
	})
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Location: time.UTC, Logger: taskLogger})

	entryID, err := scheduler.Register(cfg.CouponSweepCron, jobs.NewSweepTask())
	if err != nil {
		logger.Fatal().Err(err).Str("cron", cfg.CouponSweepCron).Msg("register coupon sweep")
	}
	logger.Info().Str("entry", entryID).Str("cron", cfg.CouponSweepCron).Msg("coupon sweep scheduled")

	if err := scheduler.Start(); err != nil {
		logger.Fatal().Err(err).Msg("start scheduler")
	}
	mux := jobs.NewMux(jobs.Handlers{Coupons: svcs.Coupons, Logger: logger})
	if err := srv.Start(mux); err != nil {
		logger.Fatal().Err(err).Msg("start task server")
	}

	logger.Info().Msg("worker started")
	<-ctx.Done()
	logger.Info().Msg("worker stopping")
	scheduler.Shutdown()
	srv.Shutdown()
	logger.Info().Msg("worker shutdown complete")
}
