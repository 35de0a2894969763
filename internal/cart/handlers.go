package cart

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/storefront-pricing/internal/common"
	"github.com/noah-isme/storefront-pricing/internal/coupon"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc            *Service
	CurrencySymbol string
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Size      string `json:"size" validate:"required,max=16"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=99"`
}

type updateItemRequest struct {
	Quantity int `json:"quantity" validate:"required,min=1,max=99"`
}

type couponRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

// Get returns the priced cart of the authenticated user.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Summary(r.Context(), userID)
	h.render(w, http.StatusOK, view, err)
}

// AddItem adds a product variant to the cart.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req addItemRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid product id", nil)
		return
	}
	view, err := h.Svc.AddItem(r.Context(), userID, productID, req.Size, req.Quantity)
	h.render(w, http.StatusCreated, view, err)
}

// UpdateItem updates the quantity for a cart line item.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	var req updateItemRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.UpdateQuantity(r.Context(), userID, itemID, req.Quantity)
	h.render(w, http.StatusOK, view, err)
}

// RemoveItem deletes a cart item.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveItem(r.Context(), userID, itemID)
	h.render(w, http.StatusOK, view, err)
}

// ApplyCoupon applies a coupon to the cart.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	var req couponRequest
	if err := common.DecodeAndValidate(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	view, err := h.Svc.ApplyCoupon(r.Context(), userID, req.Code)
	h.render(w, http.StatusOK, view, err)
}

// RemoveCoupon removes the applied coupon from the cart.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.RemoveCoupon(r.Context(), userID)
	h.render(w, http.StatusOK, view, err)
}

// Checkout returns the final priced cart and redeems its coupon.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	view, err := h.Svc.Checkout(r.Context(), userID)
	h.render(w, http.StatusOK, view, err)
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
		return uuid.Nil, false
	}
	id, err := common.UserUUID(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return uuid.Nil, false
	}
	return id, true
}

func itemParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "itemId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) render(w http.ResponseWriter, status int, view View, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	body := map[string]any{
		"cartId":  view.CartID,
		"summary": view.Summary,
	}
	if view.Notice != nil {
		body["couponNotice"] = map[string]string{
			"code":    view.Notice.Code,
			"reason":  view.Notice.Reason,
			"message": noticeMessage(view.Notice, h.CurrencySymbol),
		}
	}
	common.Data(w, status, body)
}

func noticeMessage(n *CouponNotice, symbol string) string {
	if n.Reason == "not_found" {
		return "Coupon " + n.Code + " is no longer available."
	}
	return coupon.Message(n.Err(), symbol)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput):
		common.WriteError(w, common.BadRequest(err.Error(), err))
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrProductNotFound):
		common.WriteError(w, common.NotFound(err.Error(), err))
	case errors.Is(err, ErrOutOfStock):
		common.WriteError(w, common.NewAppError("OUT_OF_STOCK", "This size is out of stock.", http.StatusConflict, err))
	case errors.Is(err, ErrUnavailable):
		common.WriteError(w, common.NewAppError("UNAVAILABLE", "This product is currently unavailable.", http.StatusConflict, err))
	default:
		mapped := coupon.AsAppError(err, h.CurrencySymbol)
		var appErr *common.AppError
		if !errors.As(mapped, &appErr) && h.Svc != nil {
			h.Svc.Logger.Error().Err(err).Msg("cart request failed")
		}
		common.WriteError(w, mapped)
	}
}
