package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Token purposes. A token minted for one purpose is rejected for any other.
const (
	PurposeEmailConfirmation = "EmailConfirmation"
	PurposeResetPassword     = "ResetPassword"
)

type tokenClaims struct {
	Purpose       string `json:"purpose"`
	SecurityStamp string `json:"stamp"`
	jwt.RegisteredClaims
}

// tokenProvider issues HMAC-signed tokens bound to a user, a purpose and the
// user's security stamp at issue time.
type tokenProvider struct {
	key      []byte
	lifespan time.Duration
	clock    clockwork.Clock
}

func (p *tokenProvider) generate(purpose string, u *User) (string, error) {
	now := p.clock.Now()
	claims := tokenClaims{
		Purpose:       purpose,
		SecurityStamp: u.SecurityStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(p.lifespan)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", purpose, err)
	}
	return token, nil
}

func (p *tokenProvider) validate(purpose, token string, u *User) error {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return p.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.clock.Now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	if claims.Purpose != purpose {
		return fmt.Errorf("%w: purpose %q, want %q", ErrInvalidToken, claims.Purpose, purpose)
	}
	sub, err := uuid.Parse(claims.Subject)
	if err != nil || sub != u.ID {
		return fmt.Errorf("%w: issued for another user", ErrInvalidToken)
	}
	if claims.SecurityStamp != u.SecurityStamp {
		return fmt.Errorf("%w: security stamp changed since issue", ErrInvalidToken)
	}
	return nil
}
