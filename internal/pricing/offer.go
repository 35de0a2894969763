package pricing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Offer is a promotional price reduction. The concrete types are ProductOffer,
// CategoryOffer and NoOffer.
type Offer interface {
	isOffer()
	window() OfferWindow
}

// OfferWindow holds the percentage and validity shared by every offer kind.
type OfferWindow struct {
	Percentage decimal.Decimal
	Active     bool
	StartsAt   *time.Time
	EndsAt     *time.Time
}

// Live reports whether the window is active at now and carries a usable percentage.
func (w OfferWindow) Live(now time.Time) bool {
	if !w.Active || !w.Percentage.IsPositive() {
		return false
	}
	if w.StartsAt != nil && now.Before(*w.StartsAt) {
		return false
	}
	if w.EndsAt != nil && now.After(*w.EndsAt) {
		return false
	}
	return true
}

// ProductOffer applies to a single product.
type ProductOffer struct {
	ProductID uuid.UUID
	OfferWindow
}

// CategoryOffer applies to every product in a category.
type CategoryOffer struct {
	CategoryID uuid.UUID
	OfferWindow
}

// NoOffer is the absence of a promotion.
type NoOffer struct{}

func (ProductOffer) isOffer()  {}
func (CategoryOffer) isOffer() {}
func (NoOffer) isOffer()       {}

func (o ProductOffer) window() OfferWindow  { return o.OfferWindow }
func (o CategoryOffer) window() OfferWindow { return o.OfferWindow }
func (NoOffer) window() OfferWindow         { return OfferWindow{} }

// ResolveOffer returns the discounted unit price produced by the best live offer,
// or nil when no offer lowers the price. When product and category offers are both
// live the lower resulting price wins.
func ResolveOffer(price Money, offers []Offer, now time.Time) *Money {
	var best *Money
	for _, o := range offers {
		if o == nil {
			continue
		}
		w := o.window()
		if !w.Live(now) {
			continue
		}
		pct := decimal.Min(w.Percentage, hundred)
		discounted := price.Sub(price.Mul(pct).Div(hundred)).Round(2)
		if discounted.IsNegative() {
			discounted = decimal.Zero
		}
		if !discounted.LessThan(price) {
			continue
		}
		if best == nil || discounted.LessThan(*best) {
			d := discounted
			best = &d
		}
	}
	return best
}
