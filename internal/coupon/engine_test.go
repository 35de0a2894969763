package coupon

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

var evalNow = time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func decPtr(v string) *decimal.Decimal {
	d := dec(v)
	return &d
}

func intPtr(v int) *int { return &v }

func activeCoupon(kind DiscountType, value string) Coupon {
	return Coupon{
		Code:              "SAVE10",
		DiscountType:      kind,
		DiscountValue:     dec(value),
		MinPurchaseAmount: decimal.Zero,
		StartDate:         evalNow.Add(-24 * time.Hour),
		ExpiryDate:        evalNow.Add(24 * time.Hour),
		IsActive:          true,
	}
}

func TestCheckCode(t *testing.T) {
	got, err := CheckCode("  save10 ")
	require.NoError(t, err)
	require.Equal(t, "SAVE10", got)

	for _, bad := range []string{"", "   ", "ab", "WITH SPACE", "TOO-LONG-CODE-THAT-EXCEEDS-THE-LIMIT"} {
		_, err := CheckCode(bad)
		require.ErrorIs(t, err, ErrInvalidCode, bad)
	}
}

func TestMinimumPurchaseIsMonotonic(t *testing.T) {
	c := activeCoupon(DiscountFixed, "50")
	c.MinPurchaseAmount = dec("500")
	eligible := false
	for _, subtotal := range []string{"0", "250", "499.99", "500", "500.01", "800", "10000"} {
		ok := IsEligible(c, dec(subtotal), evalNow)
		if eligible {
			require.True(t, ok, "eligibility lost at %s", subtotal)
		}
		eligible = ok
	}
	require.True(t, eligible)
	require.False(t, IsEligible(c, dec("499.99"), evalNow))
	require.True(t, IsEligible(c, dec("500"), evalNow))
}

func TestEvaluateReasons(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*Coupon)
		subtotal string
		want     error
		reason   string
	}{
		{"eligible", func(*Coupon) {}, "100", nil, ""},
		{"inactive", func(c *Coupon) { c.IsActive = false }, "100", ErrInactive, "inactive"},
		{"not started", func(c *Coupon) { c.StartDate = evalNow.Add(time.Hour) }, "100", ErrNotStarted, "not_started"},
		{"expired", func(c *Coupon) { c.ExpiryDate = evalNow.Add(-time.Second) }, "100", ErrExpired, "expired"},
		{"below minimum", func(c *Coupon) { c.MinPurchaseAmount = dec("500") }, "499.99", ErrMinimumPurchase, "minimum_purchase"},
		{"at minimum", func(c *Coupon) { c.MinPurchaseAmount = dec("500") }, "500", nil, ""},
		{"above minimum", func(c *Coupon) { c.MinPurchaseAmount = dec("500") }, "800", nil, ""},
		{"exhausted", func(c *Coupon) { c.MaxUses = intPtr(3); c.UsedCount = 3 }, "100", ErrUsageLimit, "usage_limit"},
		{"unbounded window", func(c *Coupon) { c.StartDate = time.Time{}; c.ExpiryDate = time.Time{} }, "100", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := activeCoupon(DiscountPercentage, "10")
			tc.mutate(&c)
			err := Evaluate(c, dec(tc.subtotal), evalNow)
			if tc.want == nil {
				require.NoError(t, err)
				require.True(t, IsEligible(c, dec(tc.subtotal), evalNow))
				return
			}
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, ErrIneligible)
			require.Equal(t, tc.reason, Reason(err))
			require.False(t, IsEligible(c, dec(tc.subtotal), evalNow))
		})
	}
}

func TestEvaluateExpiryBoundaryIsInclusive(t *testing.T) {
	c := activeCoupon(DiscountFixed, "50")
	c.ExpiryDate = evalNow
	require.NoError(t, Evaluate(c, dec("100"), evalNow))
	require.ErrorIs(t, Evaluate(c, dec("100"), evalNow.Add(time.Nanosecond)), ErrExpired)
}

func TestMinimumPurchaseMessage(t *testing.T) {
	c := activeCoupon(DiscountFixed, "50")
	c.MinPurchaseAmount = dec("500")
	err := Evaluate(c, dec("100"), evalNow)

	var minErr *MinimumPurchaseError
	require.True(t, errors.As(err, &minErr))
	require.True(t, dec("500").Equal(minErr.Minimum))
	require.Equal(t, "Minimum purchase of ₹500.00 required.", Message(err, "₹"))
}

func TestApplyPercentage(t *testing.T) {
	res, err := Apply(activeCoupon(DiscountPercentage, "10"), dec("800"), evalNow)
	require.NoError(t, err)
	require.True(t, dec("80").Equal(res.DiscountAmount), res.DiscountAmount.String())
	require.True(t, dec("720").Equal(res.FinalTotal), res.FinalTotal.String())
}

func TestApplyPercentageCappedAndRounded(t *testing.T) {
	c := activeCoupon(DiscountPercentage, "15")
	c.MaxDiscountAmount = decPtr("50")
	res, err := Apply(c, dec("1000"), evalNow)
	require.NoError(t, err)
	require.True(t, dec("50").Equal(res.DiscountAmount))

	c.MaxDiscountAmount = nil
	res, err = Apply(c, dec("33.33"), evalNow)
	require.NoError(t, err)
	require.True(t, dec("5").Equal(res.DiscountAmount), res.DiscountAmount.String())
}

func TestApplyFixedNeverExceedsSubtotal(t *testing.T) {
	res, err := Apply(activeCoupon(DiscountFixed, "150"), dec("100"), evalNow)
	require.NoError(t, err)
	require.True(t, dec("100").Equal(res.DiscountAmount))
	require.True(t, res.FinalTotal.IsZero())
}

func TestApplyRejectsIneligible(t *testing.T) {
	c := activeCoupon(DiscountFixed, "10")
	c.IsActive = false
	_, err := Apply(c, dec("100"), evalNow)
	require.ErrorIs(t, err, ErrInvalidCoupon)
	require.ErrorIs(t, err, ErrInactive)
}

func TestValidateDefinition(t *testing.T) {
	require.NoError(t, Validate(activeCoupon(DiscountPercentage, "10")))

	cases := map[string]func(*Coupon){
		"unknown type":      func(c *Coupon) { c.DiscountType = "bogo" },
		"zero value":        func(c *Coupon) { c.DiscountValue = decimal.Zero },
		"percent above 100": func(c *Coupon) { c.DiscountValue = dec("101") },
		"negative minimum":  func(c *Coupon) { c.MinPurchaseAmount = dec("-1") },
		"zero cap":          func(c *Coupon) { c.MaxDiscountAmount = decPtr("0") },
		"inverted window":   func(c *Coupon) { c.ExpiryDate = c.StartDate.Add(-time.Hour) },
		"negative max uses": func(c *Coupon) { c.MaxUses = intPtr(-1) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			c := activeCoupon(DiscountPercentage, "10")
			mutate(&c)
			require.ErrorIs(t, Validate(c), ErrInvalidDefinition)
		})
	}
}
