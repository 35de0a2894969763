package app

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	limiter "github.com/ulule/limiter/v3"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/noah-isme/storefront-pricing/internal/auth"
	"github.com/noah-isme/storefront-pricing/internal/cart"
	"github.com/noah-isme/storefront-pricing/internal/common"
	"github.com/noah-isme/storefront-pricing/internal/coupon"
	"github.com/noah-isme/storefront-pricing/internal/health"
	"github.com/noah-isme/storefront-pricing/internal/jobs"
	"github.com/noah-isme/storefront-pricing/internal/obs"
	"github.com/noah-isme/storefront-pricing/internal/ratelimit"
	"github.com/noah-isme/storefront-pricing/internal/security"
)

const maxBodyBytes = 64 << 10

// RouterConfig carries everything the HTTP surface needs.
type RouterConfig struct {
	Logger         zerolog.Logger
	Metrics        *obs.HTTPMetrics
	MetricsHandler http.Handler
	AllowedOrigins []string
	Auth           auth.Middleware
	Health         health.Handler
	Cart           *cart.Handler
	Coupons        *coupon.Handler
	Jobs           jobs.AdminHandler
	Idempotency    common.Idem
	// HSTS enables Strict-Transport-Security on TLS requests.
	HSTS bool
	// CouponLimiter throttles coupon apply and validate calls. Nil disables it.
	CouponLimiter *limiter.Limiter
}

// NewRouter builds the API router wrapped in OpenTelemetry server instrumentation.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	r.Use(obs.HTTPObs{Metrics: cfg.Metrics}.Middleware)
	r.Use(obs.RequestLogger{Logger: cfg.Logger}.Middleware)
	r.Use(security.Headers{EnableHSTS: cfg.HSTS}.Middleware)
	r.Use(security.BodyLimit{Max: maxBodyBytes}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.AllowedOrigins),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)
	r.Get("/health/live", cfg.Health.Live)
	r.Get("/health/ready", cfg.Health.Ready)

	limit := ratelimit.Handler{
		Limiter: cfg.CouponLimiter,
		OnError: func(err error) { cfg.Logger.Warn().Err(err).Msg("rate limiter unavailable") },
	}.Middleware

	r.Route("/api/v1", func(v chi.Router) {
		v.Group(func(shopper chi.Router) {
			shopper.Use(cfg.Auth.RequireAuth)

			shopper.Route("/cart", func(c chi.Router) {
				c.Get("/", cfg.Cart.Get)
				c.Post("/items", cfg.Cart.AddItem)
				c.Patch("/items/{itemId}", cfg.Cart.UpdateItem)
				c.Delete("/items/{itemId}", cfg.Cart.RemoveItem)
				c.With(limit).Post("/coupon", cfg.Cart.ApplyCoupon)
				c.Delete("/coupon", cfg.Cart.RemoveCoupon)
				c.With(cfg.Idempotency.Middleware).Post("/checkout", cfg.Cart.Checkout)
			})

			shopper.Route("/coupons", func(c chi.Router) {
				c.Get("/available", cfg.Coupons.Available)
				c.With(limit).Post("/validate", cfg.Coupons.Validate)
			})
		})

		v.Route("/admin", func(admin chi.Router) {
			admin.Use(cfg.Auth.RequireAuth)
			admin.Use(cfg.Auth.RequireRole(auth.RoleAdmin))
			admin.Get("/coupons", cfg.Coupons.List)
			admin.Post("/coupons", cfg.Coupons.Create)
			admin.Post("/coupons/sweep", cfg.Jobs.SweepCoupons)
			admin.Get("/coupons/{code}", cfg.Coupons.Get)
			admin.Put("/coupons/{code}", cfg.Coupons.Update)
		})
	})

	return otelhttp.NewHandler(r, "http.server",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/metrics" && !strings.HasPrefix(r.URL.Path, "/health/")
		}),
	)
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}
