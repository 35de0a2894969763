package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-pricing/internal/cart"
	"github.com/noah-isme/storefront-pricing/internal/config"
	"github.com/noah-isme/storefront-pricing/internal/coupon"
	"github.com/noah-isme/storefront-pricing/internal/lock"
	"github.com/noah-isme/storefront-pricing/internal/obs"
	"github.com/noah-isme/storefront-pricing/internal/repo"
)

// Dependencies holds the shared infrastructure clients of a process.
type Dependencies struct {
	Config *config.Config
	Logger zerolog.Logger
	DB     *pgxpool.Pool
	Redis  *redis.Client
	Tasks  *asynq.Client
}

// Open connects to Postgres and Redis and verifies both respond.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Dependencies, error) {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := repo.Open(pingCtx, cfg.DatabaseURL, obs.PGXTracer{})
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisotel.InstrumentMetrics(client); err != nil {
		logger.Error().Err(err).Msg("instrument redis metrics")
	}
	if err := client.Ping(pingCtx).Err(); err != nil {
		pool.Close()
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	d := &Dependencies{Config: cfg, Logger: logger, DB: pool, Redis: client}
	if opt, err := d.RedisConnOpt(); err != nil {
		logger.Error().Err(err).Msg("task client disabled")
	} else {
		d.Tasks = asynq.NewClient(opt)
	}
	return d, nil
}

// RedisConnOpt returns the asynq connection options for the configured Redis.
func (d *Dependencies) RedisConnOpt() (asynq.RedisConnOpt, error) {
	return asynq.ParseRedisURI(d.Config.RedisURL)
}

// Close releases every client. It is safe to call on a partially built value.
func (d *Dependencies) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Tasks != nil {
		errs = append(errs, d.Tasks.Close())
	}
	if d.Redis != nil {
		errs = append(errs, d.Redis.Close())
	}
	if d.DB != nil {
		d.DB.Close()
	}
	return errors.Join(errs...)
}

// Services groups the domain services built over the shared clients.
type Services struct {
	Coupons *coupon.Service
	Carts   *cart.Service
}

// NewServices builds the coupon and cart services.
func NewServices(d *Dependencies) Services {
	cfg := d.Config
	coupons := &coupon.Service{
		Store:   repo.CouponRepo{DB: d.DB},
		Cache:   coupon.NewCache(d.Redis, cfg.CouponCacheTTL),
		Lock:    lock.Locker{R: d.Redis, MaxWait: cfg.CouponLockTTL},
		LockTTL: cfg.CouponLockTTL,
		Logger:  d.Logger.With().Str("component", "coupon").Logger(),
	}
	carts := &cart.Service{
		Store:   repo.CartRepo{DB: d.DB},
		Coupons: coupons,
		Logger:  d.Logger.With().Str("component", "cart").Logger(),
	}
	return Services{Coupons: coupons, Carts: carts}
}
