package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/storefront-pricing/internal/coupon"
	"github.com/noah-isme/storefront-pricing/internal/obs"
	"github.com/noah-isme/storefront-pricing/internal/pricing"
)

var (
	// ErrNotFound indicates the requested cart item could not be located.
	ErrNotFound = errors.New("cart item not found")
	// ErrProductNotFound indicates the product being added does not exist.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidInput is returned when the provided payload is invalid.
	ErrInvalidInput = errors.New("invalid input")
	// ErrOutOfStock is returned when adding a variant with no stock left.
	ErrOutOfStock = errors.New("variant out of stock")
	// ErrUnavailable is returned when adding a product that cannot be sold.
	ErrUnavailable = errors.New("product unavailable")
)

// Cart is the persisted cart header.
type Cart struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	CouponCode string
}

// Entry is a stored line item together with the offers that may reprice it.
type Entry struct {
	Item   pricing.LineItem
	Offers []pricing.Offer
}

// Store captures the persistence methods required by the cart service.
type Store interface {
	EnsureCart(ctx context.Context, userID uuid.UUID) (Cart, error)
	ListEntries(ctx context.Context, cartID uuid.UUID) ([]Entry, error)
	GetProduct(ctx context.Context, productID uuid.UUID) (pricing.Product, error)
	AddItem(ctx context.Context, cartID, productID uuid.UUID, size string, qty int) error
	UpdateItemQuantity(ctx context.Context, cartID, itemID uuid.UUID, qty int) error
	RemoveItem(ctx context.Context, cartID, itemID uuid.UUID) error
	SetCoupon(ctx context.Context, cartID uuid.UUID, code *string) error
}

// Coupons applies and redeems coupon codes.
type Coupons interface {
	TryApply(ctx context.Context, lines []pricing.LineItem, code string) (coupon.Applied, error)
	Reapply(ctx context.Context, lines []pricing.LineItem, code string) (coupon.Applied, error)
	Redeem(ctx context.Context, code string) error
}

// View is the priced state of a cart returned to clients.
type View struct {
	CartID  uuid.UUID       `json:"cartId"`
	Summary pricing.Summary `json:"summary"`
	// Notice explains why a previously applied coupon was dropped.
	Notice *CouponNotice `json:"couponNotice,omitempty"`
}

// CouponNotice describes a stored coupon that no longer applies.
type CouponNotice struct {
	Code   string `json:"code"`
	Reason string `json:"reason"`
	err    error
}

// Err returns the failure that caused the coupon to be dropped.
func (n *CouponNotice) Err() error { return n.err }

// Service encapsulates cart domain operations.
type Service struct {
	Store   Store
	Coupons Coupons
	Now     func() time.Time
	Logger  zerolog.Logger
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ready() error {
	if s == nil || s.Store == nil {
		return errors.New("cart service not configured")
	}
	return nil
}

// Lines returns the caller's line items with live offers folded into each
// product's effective price.
func (s *Service) Lines(ctx context.Context, userID uuid.UUID) ([]pricing.LineItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.lines(ctx, c.ID)
}

func (s *Service) lines(ctx context.Context, cartID uuid.UUID) ([]pricing.LineItem, error) {
	entries, err := s.Store.ListEntries(ctx, cartID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	now := s.now()
	items := make([]pricing.LineItem, 0, len(entries))
	for _, e := range entries {
		item := e.Item
		if offered := pricing.ResolveOffer(item.Product.Price, e.Offers, now); offered != nil {
			if item.Product.EffectivePrice == nil || offered.LessThan(*item.Product.EffectivePrice) {
				item.Product.EffectivePrice = offered
			}
		}
		items = append(items, item)
	}
	return items, nil
}

// Summary prices the caller's cart. A stored coupon that has become ineligible is
// cleared from the cart and reported through the view's notice.
func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	return s.price(ctx, c)
}

func (s *Service) price(ctx context.Context, c Cart) (View, error) {
	items, err := s.lines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	summary, err := pricing.ComputeSummary(items)
	if err != nil {
		return View{}, err
	}
	view := View{CartID: c.ID, Summary: summary}
	if c.CouponCode != "" && s.Coupons != nil {
		applied, err := s.Coupons.Reapply(ctx, items, c.CouponCode)
		switch {
		case err == nil:
			view.Summary = applied.Summary
		case errors.Is(err, coupon.ErrCartEmpty):
			// keep the code; it applies again once an item is back in stock
		case errors.Is(err, coupon.ErrIneligible), errors.Is(err, coupon.ErrNotFound), errors.Is(err, coupon.ErrInvalidCode):
			if clearErr := s.Store.SetCoupon(ctx, c.ID, nil); clearErr != nil {
				return View{}, fmt.Errorf("clear coupon: %w", clearErr)
			}
			reason := coupon.Reason(err)
			if errors.Is(err, coupon.ErrNotFound) || errors.Is(err, coupon.ErrInvalidCode) {
				reason = "not_found"
			}
			s.Logger.Info().Str("cart_id", c.ID.String()).Str("code", c.CouponCode).Str("reason", reason).Msg("dropped stored coupon")
			view.Notice = &CouponNotice{Code: c.CouponCode, Reason: reason, err: err}
		default:
			return View{}, err
		}
	}
	obs.ObserveCartSummary(view.Summary.CouponCode != "")
	return view, nil
}

// AddItem adds qty of the product variant to the caller's cart. Quantities above
// the remaining stock are accepted and flagged as limited stock when priced.
func (s *Service) AddItem(ctx context.Context, userID, productID uuid.UUID, size string, qty int) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	size = strings.TrimSpace(size)
	if qty < 1 {
		return View{}, fmt.Errorf("quantity must be at least 1: %w", ErrInvalidInput)
	}
	if size == "" {
		return View{}, fmt.Errorf("size is required: %w", ErrInvalidInput)
	}
	product, err := s.Store.GetProduct(ctx, productID)
	if err != nil {
		return View{}, err
	}
	variant, ok := product.VariantBySize(size)
	if !ok {
		return View{}, fmt.Errorf("size %q not offered: %w", size, ErrInvalidInput)
	}
	switch pricing.ValidateItem(pricing.LineItem{Product: product, Variant: variant, Quantity: qty}) {
	case pricing.StatusUnavailable:
		return View{}, ErrUnavailable
	case pricing.StatusOutOfStock:
		return View{}, ErrOutOfStock
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.AddItem(ctx, c.ID, productID, size, qty); err != nil {
		return View{}, fmt.Errorf("add item: %w", err)
	}
	return s.price(ctx, c)
}

// UpdateQuantity sets the quantity of an existing cart item.
func (s *Service) UpdateQuantity(ctx context.Context, userID, itemID uuid.UUID, qty int) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if qty < 1 {
		return View{}, fmt.Errorf("quantity must be at least 1: %w", ErrInvalidInput)
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.UpdateItemQuantity(ctx, c.ID, itemID, qty); err != nil {
		return View{}, err
	}
	return s.price(ctx, c)
}

// RemoveItem deletes an item from the caller's cart.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if err := s.Store.RemoveItem(ctx, c.ID, itemID); err != nil {
		return View{}, err
	}
	return s.price(ctx, c)
}

// ApplyCoupon validates code against the cart and stores it when it applies.
func (s *Service) ApplyCoupon(ctx context.Context, userID uuid.UUID, code string) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	if s.Coupons == nil {
		return View{}, errors.New("coupon service not configured")
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	items, err := s.lines(ctx, c.ID)
	if err != nil {
		return View{}, err
	}
	applied, err := s.Coupons.TryApply(ctx, items, code)
	if err != nil {
		return View{}, err
	}
	stored := applied.Coupon.Code
	if err := s.Store.SetCoupon(ctx, c.ID, &stored); err != nil {
		return View{}, fmt.Errorf("store coupon: %w", err)
	}
	obs.ObserveCartSummary(true)
	return View{CartID: c.ID, Summary: applied.Summary}, nil
}

// RemoveCoupon clears any coupon from the cart. Removing twice is harmless.
func (s *Service) RemoveCoupon(ctx context.Context, userID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	if c.CouponCode != "" {
		if err := s.Store.SetCoupon(ctx, c.ID, nil); err != nil {
			return View{}, fmt.Errorf("clear coupon: %w", err)
		}
		c.CouponCode = ""
	}
	return s.price(ctx, c)
}

// Checkout prices the cart for the order flow and consumes one use of the
// applied coupon. Invalid items are excluded from the totals.
func (s *Service) Checkout(ctx context.Context, userID uuid.UUID) (View, error) {
	if err := s.ready(); err != nil {
		return View{}, err
	}
	c, err := s.Store.EnsureCart(ctx, userID)
	if err != nil {
		return View{}, err
	}
	view, err := s.price(ctx, c)
	if err != nil {
		return View{}, err
	}
	if view.Summary.ValidCount() == 0 {
		return View{}, coupon.ErrCartEmpty
	}
	code := view.Summary.CouponCode
	if code == "" {
		return view, nil
	}
	if err := s.Coupons.Redeem(ctx, code); err != nil {
		if errors.Is(err, coupon.ErrUsageLimit) {
			if clearErr := s.Store.SetCoupon(ctx, c.ID, nil); clearErr != nil {
				s.Logger.Warn().Err(clearErr).Str("cart_id", c.ID.String()).Msg("clear exhausted coupon")
			}
		}
		return View{}, err
	}
	if err := s.Store.SetCoupon(ctx, c.ID, nil); err != nil {
		return View{}, fmt.Errorf("clear coupon: %w", err)
	}
	s.Logger.Info().Str("cart_id", c.ID.String()).Str("code", code).Str("total", view.Summary.Total.StringFixed(2)).Msg("checkout priced")
	return view, nil
}
