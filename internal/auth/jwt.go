//go:generate go run go.uber.org/mock/mockgen -source=jwt.go -destination=../mocks/mock_verifier.go -package=mocks
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when the token is invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrMissingClaims is returned when a valid token lacks the identity claims.
	ErrMissingClaims = errors.New("token is missing identity claims")
)

var validate = validator.New()

// Identity is who is behind a connection, derived once from verified claims.
type Identity struct {
	UserID string `json:"userId" validate:"required"`
	Email  string `json:"email" validate:"required,email"`
}

// Validate reports a missing user id or a missing or malformed email.
func (i Identity) Validate() error {
	if err := validate.Struct(i); err != nil {
		return fmt.Errorf("%w: %v", ErrMissingClaims, err)
	}
	return nil
}

// Claims is the JWT payload. The subject carries the user id.
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Verifier validates a bearer token and returns the identity it carries.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret string
	Issuer string
	Leeway time.Duration
}

// JWTVerifier verifies HMAC-signed tokens.
type JWTVerifier struct {
	config JWTConfig
	parser *jwt.Parser
}

// NewJWTVerifier creates a verifier for tokens signed with config.Secret.
// When config.Issuer is set the iss claim must match it.
func NewJWTVerifier(config JWTConfig) *JWTVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg(), jwt.SigningMethodHS384.Alg(), jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(config.Issuer))
	}
	if config.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(config.Leeway))
	}
	return &JWTVerifier{config: config, parser: jwt.NewParser(opts...)}
}

// Verify parses the token and returns the identity it carries.
// The context is accepted for interface symmetry with remote verifiers.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, err
	}

	parsed, err := v.parser.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return []byte(v.config.Secret), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	identity := Identity{UserID: claims.Subject, Email: claims.Email}
	if err := identity.Validate(); err != nil {
		return Identity{}, err
	}
	return identity, nil
}
