package pricing

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func money(v string) Money {
	return decimal.RequireFromString(v)
}

func moneyPtr(v string) *Money {
	m := money(v)
	return &m
}

func listedRef(name string) *Ref {
	return &Ref{ID: uuid.New(), Name: name, IsListed: true}
}

func newItem(price string, effective *Money, stock, qty int) LineItem {
	return LineItem{
		ID: uuid.New(),
		Product: Product{
			ID:             uuid.New(),
			Title:          "Runner",
			Price:          money(price),
			EffectivePrice: effective,
			IsListed:       true,
			Category:       listedRef("shoes"),
			Brand:          listedRef("acme"),
			Variants:       []Variant{{Size: "M", Stock: stock}},
		},
		Variant:  Variant{Size: "M", Stock: stock},
		Quantity: qty,
	}
}

func TestEffectivePrice(t *testing.T) {
	require.True(t, money("500").Equal(EffectivePrice(newItem("500", nil, 5, 1))))
	require.True(t, money("400").Equal(EffectivePrice(newItem("500", moneyPtr("400"), 5, 1))))
	// an offer price above the base price never raises the price
	require.True(t, money("500").Equal(EffectivePrice(newItem("500", moneyPtr("650"), 5, 1))))
}

func TestValidateItem(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*LineItem)
		want   ItemStatus
	}{
		{"available", func(*LineItem) {}, StatusAvailable},
		{"unlisted product", func(it *LineItem) { it.Product.IsListed = false }, StatusUnavailable},
		{"deleted product", func(it *LineItem) { it.Product.IsDeleted = true }, StatusUnavailable},
		{"missing category", func(it *LineItem) { it.Product.Category = nil }, StatusUnavailable},
		{"unlisted category", func(it *LineItem) { it.Product.Category.IsListed = false }, StatusUnavailable},
		{"deleted brand", func(it *LineItem) { it.Product.Brand.IsDeleted = true }, StatusUnavailable},
		{"missing brand", func(it *LineItem) { it.Product.Brand = nil }, StatusUnavailable},
		{"unknown size", func(it *LineItem) { it.Variant.Size = "XXL" }, StatusUnavailable},
		{"no stock", func(it *LineItem) { it.Product.Variants[0].Stock = 0 }, StatusOutOfStock},
		{"short stock", func(it *LineItem) { it.Quantity = 4 }, StatusLimitedStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			it := newItem("100", nil, 3, 2)
			tc.mutate(&it)
			got := ValidateItem(it)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.want == StatusAvailable, got.Valid())
		})
	}
}

func TestStatusLabels(t *testing.T) {
	require.Equal(t, "Out of Stock", StatusOutOfStock.Label())
	require.Equal(t, "Limited Stock", StatusLimitedStock.Label())
	require.Equal(t, "Unavailable", StatusUnavailable.Label())
	require.Empty(t, StatusAvailable.Label())
}

func TestComputeSubtotal(t *testing.T) {
	items := []LineItem{
		newItem("500", moneyPtr("400"), 10, 2),
		newItem("250", nil, 10, 1),
	}
	subtotal, discount := ComputeSubtotal(items)
	require.True(t, money("1050").Equal(subtotal), subtotal.String())
	require.True(t, money("200").Equal(discount), discount.String())
}

func TestComputeSummaryExcludesOutOfStock(t *testing.T) {
	inStock := newItem("100", nil, 5, 1)
	soldOut := newItem("300", nil, 0, 1)

	summary, err := ComputeSummary([]LineItem{inStock, soldOut})
	require.NoError(t, err)
	require.Len(t, summary.Lines, 2)
	require.True(t, money("100").Equal(summary.Subtotal))
	require.True(t, summary.Total.Equal(summary.Subtotal))
	require.Equal(t, 1, summary.ValidCount())

	line := summary.Lines[1]
	require.False(t, line.Valid)
	require.Equal(t, StatusOutOfStock, line.Status)
	require.Equal(t, soldOut.ID, line.Item.ID)
}

func TestComputeSummaryEndToEnd(t *testing.T) {
	summary, err := ComputeSummary([]LineItem{newItem("500", moneyPtr("400"), 10, 2)})
	require.NoError(t, err)
	require.True(t, money("800").Equal(summary.Subtotal))
	require.True(t, money("200").Equal(summary.ProductDiscount))
	require.True(t, summary.CouponDiscount.IsZero())
	require.True(t, money("800").Equal(summary.Total))
}

func TestComputeSummaryRejectsMalformedItems(t *testing.T) {
	bad := newItem("100", nil, 5, 0)
	_, err := ComputeSummary([]LineItem{bad})
	require.True(t, errors.Is(err, ErrMalformedItem))

	negative := newItem("-1", nil, 5, 1)
	_, err = ComputeSummary([]LineItem{negative})
	require.True(t, errors.Is(err, ErrMalformedItem))
}

func TestWithCouponClampsToSubtotal(t *testing.T) {
	summary, err := ComputeSummary([]LineItem{newItem("100", nil, 5, 1)})
	require.NoError(t, err)

	applied := WithCoupon(summary, "BIG", money("150"))
	require.True(t, money("100").Equal(applied.CouponDiscount))
	require.True(t, applied.Total.IsZero())
	require.Equal(t, "BIG", applied.CouponCode)
}

func TestRemoveCouponIdempotent(t *testing.T) {
	summary, err := ComputeSummary([]LineItem{newItem("500", moneyPtr("400"), 10, 2)})
	require.NoError(t, err)
	applied := WithCoupon(summary, "SAVE10", money("80"))
	require.True(t, money("720").Equal(applied.Total))

	once := RemoveCoupon(applied)
	twice := RemoveCoupon(once)
	require.Equal(t, once, twice)
	require.True(t, twice.CouponDiscount.IsZero())
	require.True(t, twice.Total.Equal(twice.Subtotal))
	require.True(t, money("200").Equal(twice.ProductDiscount))
	require.Empty(t, twice.CouponCode)
}

func TestResolveOfferPicksLowestPrice(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-24 * time.Hour)
	future := now.Add(24 * time.Hour)

	offers := []Offer{
		NoOffer{},
		ProductOffer{ProductID: uuid.New(), OfferWindow: OfferWindow{Percentage: money("10"), Active: true}},
		CategoryOffer{CategoryID: uuid.New(), OfferWindow: OfferWindow{Percentage: money("20"), Active: true, StartsAt: &past, EndsAt: &future}},
	}
	got := ResolveOffer(money("500"), offers, now)
	require.NotNil(t, got)
	require.True(t, money("400").Equal(*got), got.String())
}

func TestResolveOfferIgnoresDeadOffers(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	offers := []Offer{
		ProductOffer{OfferWindow: OfferWindow{Percentage: money("50"), Active: false}},
		ProductOffer{OfferWindow: OfferWindow{Percentage: money("50"), Active: true, EndsAt: &past}},
		CategoryOffer{OfferWindow: OfferWindow{Percentage: money("50"), Active: true, StartsAt: &future}},
		CategoryOffer{OfferWindow: OfferWindow{Percentage: decimal.Zero, Active: true}},
	}
	require.Nil(t, ResolveOffer(money("500"), offers, now))
	require.Nil(t, ResolveOffer(money("500"), nil, now))
}
