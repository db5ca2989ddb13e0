package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Issuer signs tokens the JWTVerifier accepts. Production tokens come from
// the account service; this is for development tooling and tests.
type Issuer struct {
	config JWTConfig
}

// NewIssuer creates an Issuer sharing the verifier's secret and issuer.
func NewIssuer(config JWTConfig) *Issuer {
	return &Issuer{config: config}
}

// Issue creates a signed token for the identity valid for ttl.
func (i *Issuer) Issue(identity Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.Issuer,
			Subject:   identity.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(i.config.Secret))
}
