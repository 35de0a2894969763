package coupon

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound is returned when no coupon matches the supplied code.
	ErrNotFound = errors.New("coupon not found")
	// ErrInvalidCode indicates the supplied code is empty or malformed.
	ErrInvalidCode = errors.New("invalid coupon code")
	// ErrCartEmpty is returned when a coupon is applied to a cart with no valid items.
	ErrCartEmpty = errors.New("cart has no items eligible for checkout")
	// ErrInvalidCoupon is returned by Apply when the coupon fails eligibility.
	ErrInvalidCoupon = errors.New("invalid coupon")
	// ErrIneligible is the parent of every eligibility failure.
	ErrIneligible = errors.New("coupon not eligible")
	// ErrInvalidDefinition wraps admin input that cannot be stored as a coupon.
	ErrInvalidDefinition = errors.New("invalid coupon definition")

	ErrInactive        = fmt.Errorf("coupon inactive: %w", ErrIneligible)
	ErrNotStarted      = fmt.Errorf("coupon not yet started: %w", ErrIneligible)
	ErrExpired         = fmt.Errorf("coupon expired: %w", ErrIneligible)
	ErrMinimumPurchase = fmt.Errorf("coupon minimum purchase not met: %w", ErrIneligible)
	ErrUsageLimit      = fmt.Errorf("coupon usage limit reached: %w", ErrIneligible)
)

var codePattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9_-]{2,31}$`)

var hundred = decimal.NewFromInt(100)

// DiscountType enumerates supported coupon discount kinds.
type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

// Valid reports whether t is a known discount type.
func (t DiscountType) Valid() bool {
	return t == DiscountPercentage || t == DiscountFixed
}

// Coupon is a redeemable discount code.
type Coupon struct {
	ID                uuid.UUID        `json:"id"`
	Code              string           `json:"code"`
	Description       string           `json:"description,omitempty"`
	DiscountType      DiscountType     `json:"discountType"`
	DiscountValue     decimal.Decimal  `json:"discountValue"`
	MinPurchaseAmount decimal.Decimal  `json:"minPurchaseAmount"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount,omitempty"`
	StartDate         time.Time        `json:"startDate"`
	ExpiryDate        time.Time        `json:"expiryDate"`
	MaxUses           *int             `json:"maxUses,omitempty"`
	UsedCount         int              `json:"usedCount"`
	IsActive          bool             `json:"isActive"`
	CreatedAt         time.Time        `json:"createdAt"`
	UpdatedAt         time.Time        `json:"updatedAt"`
}

// Exhausted reports whether the global usage cap has been reached.
func (c Coupon) Exhausted() bool {
	return c.MaxUses != nil && c.UsedCount >= *c.MaxUses
}

// MinimumPurchaseError carries the threshold a subtotal failed to meet.
type MinimumPurchaseError struct {
	Minimum decimal.Decimal
}

func (e *MinimumPurchaseError) Error() string {
	return fmt.Sprintf("minimum purchase of %s required", e.Minimum.StringFixed(2))
}

// Unwrap links the error to ErrMinimumPurchase.
func (e *MinimumPurchaseError) Unwrap() error { return ErrMinimumPurchase }

// Message renders the storefront message using the given currency symbol.
func (e *MinimumPurchaseError) Message(symbol string) string {
	return fmt.Sprintf("Minimum purchase of %s%s required.", symbol, e.Minimum.StringFixed(2))
}

// Result is the outcome of applying a coupon to a subtotal.
type Result struct {
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	FinalTotal     decimal.Decimal `json:"finalTotal"`
}

// NormalizeCode trims and upper-cases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// CheckCode normalises code and rejects malformed values.
func CheckCode(code string) (string, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return "", fmt.Errorf("code is required: %w", ErrInvalidCode)
	}
	if !codePattern.MatchString(normalized) {
		return "", fmt.Errorf("code %q: %w", normalized, ErrInvalidCode)
	}
	return normalized, nil
}

// Evaluate returns nil when the coupon can be applied to subtotal at now, and the
// specific eligibility failure otherwise.
func Evaluate(c Coupon, subtotal decimal.Decimal, now time.Time) error {
	if !c.IsActive {
		return ErrInactive
	}
	if !c.StartDate.IsZero() && now.Before(c.StartDate) {
		return ErrNotStarted
	}
	if !c.ExpiryDate.IsZero() && now.After(c.ExpiryDate) {
		return ErrExpired
	}
	if subtotal.LessThan(c.MinPurchaseAmount) {
		return &MinimumPurchaseError{Minimum: c.MinPurchaseAmount}
	}
	if c.Exhausted() {
		return ErrUsageLimit
	}
	return nil
}

// IsEligible reports whether Evaluate passes.
func IsEligible(c Coupon, subtotal decimal.Decimal, now time.Time) bool {
	return Evaluate(c, subtotal, now) == nil
}

// Apply computes the coupon discount against subtotal. The discount never exceeds
// the subtotal and the final total is never negative.
func Apply(c Coupon, subtotal decimal.Decimal, now time.Time) (Result, error) {
	if err := Evaluate(c, subtotal, now); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidCoupon, err)
	}
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	discount := Discount(c, subtotal)
	final := subtotal.Sub(discount)
	if final.IsNegative() {
		final = decimal.Zero
	}
	return Result{DiscountAmount: discount, FinalTotal: final}, nil
}

// Discount computes the raw discount for subtotal without eligibility checks.
func Discount(c Coupon, subtotal decimal.Decimal) decimal.Decimal {
	var discount decimal.Decimal
	switch c.DiscountType {
	case DiscountPercentage:
		discount = subtotal.Mul(c.DiscountValue).Div(hundred).Round(2)
		if c.MaxDiscountAmount != nil && discount.GreaterThan(*c.MaxDiscountAmount) {
			discount = *c.MaxDiscountAmount
		}
	case DiscountFixed:
		discount = c.DiscountValue
	default:
		return decimal.Zero
	}
	if discount.GreaterThan(subtotal) {
		discount = subtotal
	}
	if discount.IsNegative() {
		return decimal.Zero
	}
	return discount
}

// Reason maps an eligibility error to a stable machine-readable reason.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInactive):
		return "inactive"
	case errors.Is(err, ErrNotStarted):
		return "not_started"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrMinimumPurchase):
		return "minimum_purchase"
	case errors.Is(err, ErrUsageLimit):
		return "usage_limit"
	default:
		return "ineligible"
	}
}

// Message renders a user-facing message for an eligibility error.
func Message(err error, symbol string) string {
	var minErr *MinimumPurchaseError
	if errors.As(err, &minErr) {
		return minErr.Message(symbol)
	}
	switch Reason(err) {
	case "inactive":
		return "This coupon is no longer available."
	case "not_started":
		return "This coupon is not active yet."
	case "expired":
		return "This coupon has expired."
	case "usage_limit":
		return "This coupon has reached its usage limit."
	case "":
		return ""
	default:
		return "This coupon cannot be applied to your cart."
	}
}

// Validate checks a coupon definition before it is stored.
func Validate(c Coupon) error {
	if _, err := CheckCode(c.Code); err != nil {
		return err
	}
	if !c.DiscountType.Valid() {
		return fmt.Errorf("discount type %q is not supported: %w", c.DiscountType, ErrInvalidDefinition)
	}
	if !c.DiscountValue.IsPositive() {
		return fmt.Errorf("discount value must be positive: %w", ErrInvalidDefinition)
	}
	if c.DiscountType == DiscountPercentage && c.DiscountValue.GreaterThan(hundred) {
		return fmt.Errorf("percentage discount must be between 0 and 100: %w", ErrInvalidDefinition)
	}
	if c.MinPurchaseAmount.IsNegative() {
		return fmt.Errorf("minimum purchase amount cannot be negative: %w", ErrInvalidDefinition)
	}
	if c.MaxDiscountAmount != nil && !c.MaxDiscountAmount.IsPositive() {
		return fmt.Errorf("maximum discount amount must be positive: %w", ErrInvalidDefinition)
	}
	if !c.StartDate.IsZero() && !c.ExpiryDate.IsZero() && c.ExpiryDate.Before(c.StartDate) {
		return fmt.Errorf("expiry date must be after start date: %w", ErrInvalidDefinition)
	}
	if c.MaxUses != nil && *c.MaxUses < 0 {
		return fmt.Errorf("max uses cannot be negative: %w", ErrInvalidDefinition)
	}
	return nil
}
