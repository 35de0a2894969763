package coupon

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/storefront-pricing/internal/common"
	"github.com/noah-isme/storefront-pricing/internal/pricing"
)

// LineLoader loads the priced line items of the caller's cart.
type LineLoader interface {
	Lines(ctx context.Context, userID uuid.UUID) ([]pricing.LineItem, error)
}

// Handler exposes coupon endpoints for shoppers and administrators.
type Handler struct {
	Svc            *Service
	Lines          LineLoader
	CurrencySymbol string
}

type codeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type couponPayload struct {
	Code              string           `json:"code" validate:"required,max=32"`
	Description       string           `json:"description" validate:"max=255"`
	DiscountType      DiscountType     `json:"discountType" validate:"required,oneof=percentage fixed"`
	DiscountValue     decimal.Decimal  `json:"discountValue"`
	MinPurchaseAmount decimal.Decimal  `json:"minPurchaseAmount"`
	MaxDiscountAmount *decimal.Decimal `json:"maxDiscountAmount"`
	StartDate         *time.Time       `json:"startDate"`
	ExpiryDate        *time.Time       `json:"expiryDate"`
	MaxUses           *int             `json:"maxUses" validate:"omitempty,gte=0"`
	IsActive          *bool            `json:"isActive"`
}

func (p couponPayload) toCoupon() Coupon {
	c := Coupon{
		Code:              p.Code,
		Description:       p.Description,
		DiscountType:      p.DiscountType,
		DiscountValue:     p.DiscountValue,
		MinPurchaseAmount: p.MinPurchaseAmount,
		MaxDiscountAmount: p.MaxDiscountAmount,
		MaxUses:           p.MaxUses,
		IsActive:          true,
	}
	if p.StartDate != nil {
		c.StartDate = p.StartDate.UTC()
	}
	if p.ExpiryDate != nil {
		c.ExpiryDate = p.ExpiryDate.UTC()
	}
	if p.IsActive != nil {
		c.IsActive = *p.IsActive
	}
	return c
}

// Validate previews a coupon against the caller's cart without attaching it.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Lines == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	userID, err := common.UserUUID(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var req codeRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	lines, err := h.Lines.Lines(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	applied, err := h.Svc.TryApply(r.Context(), lines, req.Code)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{
		"valid":          true,
		"coupon":         applied.Coupon,
		"discountAmount": applied.Summary.CouponDiscount,
		"finalTotal":     applied.Summary.Total,
		"summary":        applied.Summary,
	})
}

// Available lists the active coupons with eligibility against the caller's cart.
func (h *Handler) Available(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil || h.Lines == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	userID, err := common.UserUUID(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	lines, err := h.Lines.Lines(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	summary, err := pricing.ComputeSummary(lines)
	if err != nil {
		h.writeError(w, err)
		return
	}
	list, err := h.Svc.Available(r.Context(), summary.Subtotal)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := make([]map[string]any, 0, len(list))
	for _, a := range list {
		item := map[string]any{
			"coupon":   a.Coupon,
			"eligible": a.Eligible,
			"discount": a.Discount,
		}
		if !a.Eligible {
			item["reason"] = a.Reason
			item["message"] = Message(a.Err(), h.CurrencySymbol)
		}
		out = append(out, item)
	}
	common.Data(w, http.StatusOK, map[string]any{"subtotal": summary.Subtotal, "coupons": out})
}

// Create stores a new coupon definition.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var payload couponPayload
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	created, err := h.Svc.Create(r.Context(), payload.toCoupon())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, created)
}

// Update replaces the coupon identified by the {code} path parameter.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	var payload couponPayload
	if err := common.DecodeAndValidate(r, &payload); err != nil {
		h.writeError(w, err)
		return
	}
	updated, err := h.Svc.Update(r.Context(), chi.URLParam(r, "code"), payload.toCoupon())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, updated)
}

// Get returns a single coupon.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	c, err := h.Svc.Get(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.Data(w, http.StatusOK, c)
}

// List returns a page of coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "coupon service not configured", nil)
		return
	}
	page := common.ParsePagination(r, 20, 100)
	coupons, total, err := h.Svc.List(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		h.writeError(w, err)
		return
	}
	page.TotalItems = total
	common.JSON(w, http.StatusOK, map[string]any{"data": coupons, "pagination": page})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if h.Svc != nil {
		h.Svc.Logger.Debug().Err(err).Msg("coupon request failed")
	}
	common.WriteError(w, AsAppError(err, h.CurrencySymbol))
}
