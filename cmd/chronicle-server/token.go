package main

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/evalgo-chronicle/chronicle/config"
)

// tokenIssuer signs access tokens for the reference adapter, grounded on
// auth/token.go's TokenService but narrowed to the one claim the entity
// endpoints need: who the acting subject is.
type tokenIssuer struct {
	secret []byte
	expiry time.Duration
	issuer string
}

func newTokenIssuer(cfg config.AuthConfig) *tokenIssuer {
	return &tokenIssuer{secret: []byte(cfg.JWTSecret), expiry: cfg.JWTExpiry, issuer: "chronicle-server"}
}

type claims struct {
	jwt.RegisteredClaims
}

func (t *tokenIssuer) issue(subject string) (string, error) {
	now := time.Now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    t.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(t.secret)
}
