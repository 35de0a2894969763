package pricing

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Money represents a monetary amount in major currency units.
type Money = decimal.Decimal

// ErrMalformedItem is returned when a line item cannot be priced at all.
var ErrMalformedItem = errors.New("malformed line item")

// Ref describes a catalog grouping (category or brand) a product belongs to.
type Ref struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	IsListed  bool      `json:"isListed"`
	IsDeleted bool      `json:"isDeleted"`
}

func (r *Ref) available() bool {
	return r != nil && r.IsListed && !r.IsDeleted
}

// Variant is a size/SKU of a product carrying its own stock.
type Variant struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

// Product carries the catalog attributes used during pricing.
type Product struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	Price          Money     `json:"price"`
	EffectivePrice *Money    `json:"effectivePrice,omitempty"`
	IsListed       bool      `json:"isListed"`
	IsDeleted      bool      `json:"isDeleted"`
	Category       *Ref      `json:"category,omitempty"`
	Brand          *Ref      `json:"brand,omitempty"`
	Variants       []Variant `json:"variants"`
}

// VariantBySize returns the product variant matching size.
func (p Product) VariantBySize(size string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.Size == size {
			return v, true
		}
	}
	return Variant{}, false
}

// LineItem is a single cart entry.
type LineItem struct {
	ID       uuid.UUID `json:"id"`
	Product  Product   `json:"product"`
	Variant  Variant   `json:"variant"`
	Quantity int       `json:"quantity"`
}

// ItemStatus describes whether a line item can be checked out.
type ItemStatus string

const (
	StatusAvailable    ItemStatus = "available"
	StatusOutOfStock   ItemStatus = "out_of_stock"
	StatusLimitedStock ItemStatus = "limited_stock"
	StatusUnavailable  ItemStatus = "unavailable"
)

// Valid reports whether the status allows checkout.
func (s ItemStatus) Valid() bool { return s == StatusAvailable }

// Label returns the storefront badge for the status.
func (s ItemStatus) Label() string {
	switch s {
	case StatusOutOfStock:
		return "Out of Stock"
	case StatusLimitedStock:
		return "Limited Stock"
	case StatusUnavailable:
		return "Unavailable"
	default:
		return ""
	}
}

// Line is a priced line item as rendered in a summary.
type Line struct {
	Item           LineItem   `json:"item"`
	EffectivePrice Money      `json:"effectivePrice"`
	LineTotal      Money      `json:"lineTotal"`
	Discount       Money      `json:"discount"`
	Valid          bool       `json:"valid"`
	Status         ItemStatus `json:"status"`
	Label          string     `json:"label,omitempty"`
}

// Summary aggregates computed cart totals.
type Summary struct {
	Subtotal        Money  `json:"subtotal"`
	ProductDiscount Money  `json:"productDiscount"`
	CouponDiscount  Money  `json:"couponDiscount"`
	Total           Money  `json:"total"`
	CouponCode      string `json:"couponCode,omitempty"`
	Lines           []Line `json:"items"`
}

// ValidCount returns the number of lines eligible for checkout.
func (s Summary) ValidCount() int {
	n := 0
	for _, l := range s.Lines {
		if l.Valid {
			n++
		}
	}
	return n
}

// EffectivePrice returns the unit price after any product or category offer.
func EffectivePrice(item LineItem) Money {
	price := item.Product.Price
	if item.Product.EffectivePrice != nil && item.Product.EffectivePrice.LessThan(price) {
		return *item.Product.EffectivePrice
	}
	return price
}

// ValidateItem classifies a line item. Only StatusAvailable is valid for checkout.
func ValidateItem(item LineItem) ItemStatus {
	p := item.Product
	if !p.IsListed || p.IsDeleted {
		return StatusUnavailable
	}
	if !p.Category.available() || !p.Brand.available() {
		return StatusUnavailable
	}
	variant, ok := p.VariantBySize(item.Variant.Size)
	if !ok {
		return StatusUnavailable
	}
	switch {
	case variant.Stock <= 0:
		return StatusOutOfStock
	case variant.Stock < item.Quantity:
		return StatusLimitedStock
	}
	return StatusAvailable
}

// ComputeSubtotal sums effective line totals and offer discounts over valid items.
func ComputeSubtotal(validItems []LineItem) (subtotal Money, productDiscount Money) {
	subtotal = decimal.Zero
	productDiscount = decimal.Zero
	for _, it := range validItems {
		qty := decimal.NewFromInt(int64(it.Quantity))
		eff := EffectivePrice(it)
		subtotal = subtotal.Add(eff.Mul(qty))
		saved := it.Product.Price.Sub(eff).Mul(qty)
		if saved.IsPositive() {
			productDiscount = productDiscount.Add(saved)
		}
	}
	return subtotal, productDiscount
}

// ComputeSummary prices every line item. Invalid items stay in Lines but are
// excluded from the totals.
func ComputeSummary(items []LineItem) (Summary, error) {
	lines := make([]Line, 0, len(items))
	valid := make([]LineItem, 0, len(items))
	for i, it := range items {
		if err := checkShape(it); err != nil {
			return Summary{}, fmt.Errorf("item %d: %w", i, err)
		}
		status := ValidateItem(it)
		eff := EffectivePrice(it)
		qty := decimal.NewFromInt(int64(it.Quantity))
		line := Line{
			Item:           it,
			EffectivePrice: eff,
			LineTotal:      eff.Mul(qty),
			Discount:       decimal.Max(decimal.Zero, it.Product.Price.Sub(eff).Mul(qty)),
			Valid:          status.Valid(),
			Status:         status,
			Label:          status.Label(),
		}
		lines = append(lines, line)
		if line.Valid {
			valid = append(valid, it)
		}
	}
	subtotal, productDiscount := ComputeSubtotal(valid)
	return Summary{
		Subtotal:        subtotal,
		ProductDiscount: productDiscount,
		CouponDiscount:  decimal.Zero,
		Total:           subtotal,
		Lines:           lines,
	}, nil
}

// WithCoupon returns a copy of s with the coupon discount applied.
func WithCoupon(s Summary, code string, discount Money) Summary {
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	if discount.GreaterThan(s.Subtotal) {
		discount = s.Subtotal
	}
	s.CouponCode = code
	s.CouponDiscount = discount
	s.Total = s.Subtotal.Sub(discount)
	return s
}

// RemoveCoupon clears any coupon discount. Product discounts are left untouched.
func RemoveCoupon(s Summary) Summary {
	s.CouponCode = ""
	s.CouponDiscount = decimal.Zero
	s.Total = s.Subtotal
	return s
}

func checkShape(it LineItem) error {
	if it.Quantity < 1 {
		return fmt.Errorf("quantity must be at least 1: %w", ErrMalformedItem)
	}
	if it.Product.Price.IsNegative() {
		return fmt.Errorf("negative price: %w", ErrMalformedItem)
	}
	if it.Product.EffectivePrice != nil && it.Product.EffectivePrice.IsNegative() {
		return fmt.Errorf("negative effective price: %w", ErrMalformedItem)
	}
	return nil
}
