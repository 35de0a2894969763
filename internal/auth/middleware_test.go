package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-pricing/internal/common"
)

func newTestVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier("super-secret-key", "identity", "storefront", time.Second)
	require.NoError(t, err)
	fixed := time.Now()
	v.WithNow(func() time.Time { return fixed })
	return v
}

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := common.UserID(r.Context())
		_, _ = w.Write([]byte(id))
	})
}

func serve(h http.Handler, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	_, err := NewVerifier("  ", "", "", 0)
	require.Error(t, err)
}

func TestRequireAuth(t *testing.T) {
	v := newTestVerifier(t)
	h := Middleware{Verifier: v}.RequireAuth(echoUser())

	token, err := signToken(v, Claims{UserID: "user-42"}, time.Minute)
	require.NoError(t, err)
	rr := serve(h, token)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, "user-42", rr.Body.String())

	require.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "not-a-jwt").Code)

	expired, err := signToken(v, Claims{UserID: "user-42"}, -time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, serve(h, expired).Code)
}

func TestRequireAuthRejectsOtherAlgorithms(t *testing.T) {
	v := newTestVerifier(t)
	now := v.now()
	tok, err := jwt.NewBuilder().Subject("user-1").Issuer("identity").Audience([]string{"storefront"}).
		IssuedAt(now).Expiration(now.Add(time.Minute)).Build()
	require.NoError(t, err)
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS384, v.secret))
	require.NoError(t, err)

	_, err = v.ParseAccessToken(string(signed))
	require.Error(t, err)

	other, err := NewVerifier("a-different-secret", "identity", "storefront", time.Second)
	require.NoError(t, err)
	forged, err := signToken(other, Claims{UserID: "user-1"}, time.Minute)
	require.NoError(t, err)
	_, err = v.ParseAccessToken(forged)
	require.Error(t, err)
}

func TestRequireRole(t *testing.T) {
	v := newTestVerifier(t)
	mw := Middleware{Verifier: v}
	h := mw.RequireAuth(mw.RequireRole(RoleAdmin)(echoUser()))

	admin, err := signToken(v, Claims{UserID: "ops-1", Roles: []string{"customer", RoleAdmin}}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, serve(h, admin).Code)

	customer, err := signToken(v, Claims{UserID: "user-1", Roles: []string{"customer"}}, time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, serve(h, customer).Code)

	claims, err := v.ParseAccessToken(admin)
	require.NoError(t, err)
	require.True(t, claims.HasRole(RoleAdmin))
}
