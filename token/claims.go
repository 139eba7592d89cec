package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is implemented by the claim sets this package can issue.
type Claims interface {
	jwt.Claims
	principal() string
	setLifetime(issuedAt, expiresAt time.Time)
}

// AccessClaims is the payload of a short-lived access token.
type AccessClaims struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// RefreshClaims is the payload of a renewal (refresh) token. TokenID makes
// every renewal token string unique, even for the same user in the same second.
type RefreshClaims struct {
	UserID  string `json:"userId"`
	TokenID string `json:"tokenId"`
	jwt.RegisteredClaims
}

func (c *AccessClaims) principal() string { return c.UserID }

func (c *AccessClaims) setLifetime(issuedAt, expiresAt time.Time) {
	c.IssuedAt = jwt.NewNumericDate(issuedAt)
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)
}

func (c *RefreshClaims) principal() string { return c.UserID }

func (c *RefreshClaims) setLifetime(issuedAt, expiresAt time.Time) {
	c.IssuedAt = jwt.NewNumericDate(issuedAt)
	c.ExpiresAt = jwt.NewNumericDate(expiresAt)
}
