package cart

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-pricing/internal/common"
)

func newCartRouter(svc *Service, user string) http.Handler {
	h := &Handler{Svc: svc, CurrencySymbol: "₹"}
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user != "" {
				r = r.WithContext(common.WithUserID(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	})
	r.Get("/cart", h.Get)
	r.Post("/cart/items", h.AddItem)
	r.Patch("/cart/items/{itemId}", h.UpdateItem)
	r.Delete("/cart/items/{itemId}", h.RemoveItem)
	r.Post("/cart/coupon", h.ApplyCoupon)
	r.Delete("/cart/coupon", h.RemoveCoupon)
	r.Post("/cart/checkout", h.Checkout)
	return r
}

func send(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCartHandlersRequireUser(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	rr := send(newCartRouter(svc, ""), http.MethodGet, "/cart", "")
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCartHandlersFlow(t *testing.T) {
	p := newProduct("500", 10)
	soldOut := newProduct("100", 0)
	minSpend := save10()
	minSpend.Code = "BIG"
	minSpend.MinPurchaseAmount = dec("5000")
	svc, _ := newTestService(newMemStore(p, soldOut), save10(), minSpend)
	router := newCartRouter(svc, uuid.NewString())

	rr := send(router, http.MethodPost, "/cart/items", `{"productId":"`+p.ID.String()+`","size":"9","quantity":2}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"subtotal":"1000"`)

	rr = send(router, http.MethodPost, "/cart/items", `{"productId":"`+soldOut.ID.String()+`","size":"9","quantity":1}`)
	require.Equal(t, http.StatusConflict, rr.Code)
	require.Contains(t, rr.Body.String(), "OUT_OF_STOCK")

	rr = send(router, http.MethodPost, "/cart/items", `{"productId":"nope","size":"9","quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(router, http.MethodPatch, "/cart/items/not-a-uuid", `{"quantity":1}`)
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = send(router, http.MethodPost, "/cart/coupon", `{"code":"BIG"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	require.Contains(t, rr.Body.String(), "Minimum purchase of ₹5000.00 required.")

	rr = send(router, http.MethodPost, "/cart/coupon", `{"code":"UNKNOWN"}`)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = send(router, http.MethodPost, "/cart/coupon", `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), `"couponDiscount":"100"`)
	require.Contains(t, rr.Body.String(), `"total":"900"`)

	rr = send(router, http.MethodDelete, "/cart/coupon", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"total":"1000"`)

	rr = send(router, http.MethodPost, "/cart/checkout", "")
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestCheckoutEmptyCart(t *testing.T) {
	svc, _ := newTestService(newMemStore())
	rr := send(newCartRouter(svc, uuid.NewString()), http.MethodPost, "/cart/checkout", "")
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "CART_EMPTY")
}
