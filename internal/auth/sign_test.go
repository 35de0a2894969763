package auth

import (
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// signToken issues an HS256 token accepted by v, valid for ttl.
func signToken(v *Verifier, claims Claims, ttl time.Duration) (string, error) {
	now := v.now()
	b := jwt.NewBuilder().
		Subject(claims.UserID).
		IssuedAt(now).
		NotBefore(now).
		Expiration(now.Add(ttl))
	if v.validator.Issuer != "" {
		b = b.Issuer(v.validator.Issuer)
	}
	if v.validator.Audience != "" {
		b = b.Audience([]string{v.validator.Audience})
	}
	if len(claims.Roles) > 0 {
		b = b.Claim(rolesClaim, claims.Roles)
	}
	tok, err := b.Build()
	if err != nil {
		return "", err
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
