package coupon

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/storefront-pricing/internal/common"
	"github.com/noah-isme/storefront-pricing/internal/pricing"
)

// AsAppError translates coupon failures into API errors. Errors it does not
// recognise are returned unchanged.
func AsAppError(err error, symbol string) error {
	if err == nil {
		return nil
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return err
	}
	switch {
	case errors.Is(err, pricing.ErrMalformedItem):
		return common.BadRequest("cart contains an invalid item", err)
	case errors.Is(err, ErrInvalidCode):
		return common.BadRequest("coupon code is invalid", err)
	case errors.Is(err, ErrInvalidDefinition):
		return common.BadRequest(errorText(err), err)
	case errors.Is(err, ErrCartEmpty):
		return common.NewAppError("CART_EMPTY", "Your cart has no items available for checkout.", http.StatusBadRequest, err)
	case errors.Is(err, ErrNotFound):
		return common.NotFound("Coupon not found.", err)
	case errors.Is(err, ErrConflict):
		return common.NewAppError("CONFLICT", "coupon code already exists", http.StatusConflict, err)
	case errors.Is(err, ErrIneligible):
		return common.NewAppError("COUPON_INELIGIBLE", Message(err, symbol), http.StatusUnprocessableEntity, err).
			WithDetails(map[string]string{"reason": Reason(err)})
	}
	return err
}

// errorText strips the sentinel suffix from a wrapped definition error.
func errorText(err error) string {
	return strings.TrimSuffix(err.Error(), ": "+ErrInvalidDefinition.Error())
}
