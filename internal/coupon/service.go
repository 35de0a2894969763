package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-pricing/internal/obs"
	"github.com/noah-isme/storefront-pricing/internal/pricing"
)

// Store captures the persistence methods required by the coupon service.
type Store interface {
	GetCouponByCode(ctx context.Context, code string) (Coupon, error)
	ListActiveCoupons(ctx context.Context, now time.Time) ([]Coupon, error)
	ListCoupons(ctx context.Context, limit, offset int) ([]Coupon, int, error)
	CreateCoupon(ctx context.Context, c Coupon) (Coupon, error)
	UpdateCoupon(ctx context.Context, c Coupon) (Coupon, error)
	IncrementUsage(ctx context.Context, id uuid.UUID) (bool, error)
	DeactivateExhausted(ctx context.Context, now time.Time) ([]string, error)
}

// Locker serialises work on a key across processes.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// ErrConflict indicates a coupon with the same code already exists.
var ErrConflict = errors.New("coupon code already exists")

// Applied is the outcome of a successful coupon application.
type Applied struct {
	Coupon  Coupon          `json:"coupon"`
	Summary pricing.Summary `json:"summary"`
}

// Availability annotates an active coupon with its eligibility for a subtotal.
type Availability struct {
	Coupon   Coupon          `json:"coupon"`
	Eligible bool            `json:"eligible"`
	Reason   string          `json:"reason,omitempty"`
	Discount decimal.Decimal `json:"discount"`
	err      error
}

// Err returns the eligibility failure, if any.
func (a Availability) Err() error { return a.err }

// Service encapsulates coupon lookup, evaluation and redemption.
type Service struct {
	Store   Store
	Cache   *Cache
	Lock    Locker
	LockTTL time.Duration
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) lockTTL() time.Duration {
	if s.LockTTL <= 0 {
		return 5 * time.Second
	}
	return s.LockTTL
}

// Lookup resolves a coupon by code, consulting the cache first.
func (s *Service) Lookup(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	normalized, err := CheckCode(code)
	if err != nil {
		return Coupon{}, err
	}
	if cached, ok, err := s.Cache.Get(ctx, normalized); err != nil {
		s.Logger.Warn().Err(err).Str("code", normalized).Msg("coupon cache read")
	} else if ok {
		return cached, nil
	}
	c, err := s.Store.GetCouponByCode(ctx, normalized)
	if err != nil {
		return Coupon{}, err
	}
	if err := s.Cache.Set(ctx, c); err != nil {
		s.Logger.Warn().Err(err).Str("code", normalized).Msg("coupon cache write")
	}
	return c, nil
}

// TryApply prices lines and applies the coupon identified by code.
func (s *Service) TryApply(ctx context.Context, lines []pricing.LineItem, code string) (Applied, error) {
	applied, err := s.tryApply(ctx, lines, code)
	obs.ObserveCouponApply(applyResult(err))
	return applied, err
}

// Reapply re-prices a coupon already stored on a cart. Unlike TryApply it is not
// counted as an application attempt.
func (s *Service) Reapply(ctx context.Context, lines []pricing.LineItem, code string) (Applied, error) {
	return s.tryApply(ctx, lines, code)
}

func (s *Service) tryApply(ctx context.Context, lines []pricing.LineItem, code string) (Applied, error) {
	normalized, err := CheckCode(code)
	if err != nil {
		return Applied{}, err
	}
	summary, err := pricing.ComputeSummary(lines)
	if err != nil {
		return Applied{}, err
	}
	if summary.ValidCount() == 0 {
		return Applied{}, ErrCartEmpty
	}
	c, err := s.Lookup(ctx, normalized)
	if err != nil {
		return Applied{}, err
	}
	res, err := Apply(c, summary.Subtotal, s.now())
	if err != nil {
		return Applied{}, err
	}
	return Applied{Coupon: c, Summary: pricing.WithCoupon(summary, c.Code, res.DiscountAmount)}, nil
}

// Available lists active, in-window coupons annotated with eligibility for subtotal.
func (s *Service) Available(ctx context.Context, subtotal decimal.Decimal) ([]Availability, error) {
	if s == nil || s.Store == nil {
		return nil, errors.New("coupon service not configured")
	}
	now := s.now()
	coupons, err := s.Store.ListActiveCoupons(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]Availability, 0, len(coupons))
	for _, c := range coupons {
		err := Evaluate(c, subtotal, now)
		a := Availability{Coupon: c, Eligible: err == nil, Reason: Reason(err), Discount: decimal.Zero, err: err}
		if err == nil {
			a.Discount = Discount(c, subtotal)
		}
		out = append(out, a)
	}
	return out, nil
}

// Redeem consumes one use of the coupon. The usage counter only moves while it is
// below the cap, so concurrent redemptions cannot over-redeem.
func (s *Service) Redeem(ctx context.Context, code string) error {
	err := s.redeem(ctx, code)
	result := "ok"
	switch {
	case errors.Is(err, ErrUsageLimit):
		result = "usage_limit"
	case err != nil:
		result = "error"
	}
	obs.ObserveCouponRedeem(result)
	return err
}

func (s *Service) redeem(ctx context.Context, code string) error {
	if s == nil || s.Store == nil {
		return errors.New("coupon service not configured")
	}
	normalized, err := CheckCode(code)
	if err != nil {
		return err
	}
	run := func(ctx context.Context) error {
		c, err := s.Store.GetCouponByCode(ctx, normalized)
		if err != nil {
			return err
		}
		ok, err := s.Store.IncrementUsage(ctx, c.ID)
		if err != nil {
			return fmt.Errorf("increment usage: %w", err)
		}
		if !ok {
			return ErrUsageLimit
		}
		if err := s.Cache.Evict(ctx, normalized); err != nil {
			s.Logger.Warn().Err(err).Str("code", normalized).Msg("coupon cache evict")
		}
		return nil
	}
	if s.Lock == nil {
		return run(ctx)
	}
	return s.Lock.WithLock(ctx, "lock:coupon:"+normalized, s.lockTTL(), run)
}

// Sweep deactivates expired or exhausted coupons and returns how many were retired.
func (s *Service) Sweep(ctx context.Context) (int, error) {
	if s == nil || s.Store == nil {
		return 0, errors.New("coupon service not configured")
	}
	codes, err := s.Store.DeactivateExhausted(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if err := s.Cache.Evict(ctx, codes...); err != nil {
		s.Logger.Warn().Err(err).Int("count", len(codes)).Msg("coupon cache evict")
	}
	obs.ObserveCouponSweep(len(codes))
	return len(codes), nil
}

// Create validates and stores a new coupon.
func (s *Service) Create(ctx context.Context, c Coupon) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	c.Code = NormalizeCode(c.Code)
	if err := Validate(c); err != nil {
		return Coupon{}, err
	}
	return s.Store.CreateCoupon(ctx, c)
}

// Update replaces the definition of the coupon identified by code.
func (s *Service) Update(ctx context.Context, code string, c Coupon) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	normalized, err := CheckCode(code)
	if err != nil {
		return Coupon{}, err
	}
	c.Code = normalized
	if err := Validate(c); err != nil {
		return Coupon{}, err
	}
	updated, err := s.Store.UpdateCoupon(ctx, c)
	if err != nil {
		return Coupon{}, err
	}
	if err := s.Cache.Evict(ctx, normalized); err != nil {
		s.Logger.Warn().Err(err).Str("code", normalized).Msg("coupon cache evict")
	}
	return updated, nil
}

// List returns a page of stored coupons and the total count.
func (s *Service) List(ctx context.Context, limit, offset int) ([]Coupon, int, error) {
	if s == nil || s.Store == nil {
		return nil, 0, errors.New("coupon service not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.Store.ListCoupons(ctx, limit, offset)
}

// Get returns the stored coupon for code, bypassing the cache.
func (s *Service) Get(ctx context.Context, code string) (Coupon, error) {
	if s == nil || s.Store == nil {
		return Coupon{}, errors.New("coupon service not configured")
	}
	normalized, err := CheckCode(code)
	if err != nil {
		return Coupon{}, err
	}
	return s.Store.GetCouponByCode(ctx, normalized)
}

func applyResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrCartEmpty):
		return "cart_empty"
	case errors.Is(err, ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, ErrIneligible):
		return Reason(err)
	default:
		return "error"
	}
}
