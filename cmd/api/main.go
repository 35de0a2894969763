package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/noah-isme/storefront-pricing/internal/app"
	"github.com/noah-isme/storefront-pricing/internal/auth"
	"github.com/noah-isme/storefront-pricing/internal/cart"
	"github.com/noah-isme/storefront-pricing/internal/common"
	"github.com/noah-isme/storefront-pricing/internal/config"
	"github.com/noah-isme/storefront-pricing/internal/coupon"
	"github.com/noah-isme/storefront-pricing/internal/health"
	"github.com/noah-isme/storefront-pricing/internal/jobs"
	"github.com/noah-isme/storefront-pricing/internal/obs"
	"github.com/noah-isme/storefront-pricing/internal/ratelimit"
	"github.com/noah-isme/storefront-pricing/internal/repo"
)

const metricsNamespace = "storefront"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := obs.NewLogger("storefront-api", cfg.LogFormat, cfg.LogLevel).With().Str("env", cfg.AppEnv).Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := obs.InitTracer(ctx, obs.TracingConfig{
		ServiceName:   "storefront-api",
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
	obs.MustRegisterDomainMetrics(metricsNamespace, nil)

	if cfg.MigrateOnStart {
		if err := repo.Up(cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("run migrations")
		}
		logger.Info().Msg("migrations applied")
	}

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

	verifier, err := auth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience, 30*time.Second)
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise token verifier")
	}
	couponLimiter, err := ratelimit.New(deps.Redis, cfg.CouponApplyRate, "ratelimit:coupon")
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise coupon rate limiter")
	}

	var tasks jobs.Enqueuer
	if deps.Tasks != nil {
		tasks = deps.Tasks
	}

	handler := app.NewRouter(app.RouterConfig{
		Logger:         logger,
		Metrics:        obs.NewHTTPMetrics(metricsNamespace, cfg.MetricsBuckets, nil),
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Auth:           auth.Middleware{Verifier: verifier},
		Health: health.Handler{Probes: []health.Probe{
			health.PostgresProbe(deps.DB),
			health.RedisProbe(deps.Redis),
		}},
		Cart:          &cart.Handler{Svc: svcs.Carts, CurrencySymbol: cfg.CurrencySymbol},
		Coupons:       &coupon.Handler{Svc: svcs.Coupons, Lines: svcs.Carts, CurrencySymbol: cfg.CurrencySymbol},
		Jobs:          jobs.AdminHandler{Client: tasks, Logger: logger},
		Idempotency:   common.Idem{R: deps.Redis, TTL: cfg.IdempotencyTTL},
		HSTS:          cfg.IsProduction(),
		CouponLimiter: couponLimiter,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server exited unexpectedly")
		}
		return
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown")
	}
}
