package config

import (
	"fmt"
	"time"

	"github.com/jrsteele09/go-session-auth/token"
)

// MinSecretLength is the shortest accepted HMAC secret
const MinSecretLength = token.MinSecretLength

type TokenConfig interface {
	GetAccessSecret() string
	GetRefreshSecret() string
	GetAccessTokenExpiry() time.Duration
	GetRefreshTokenExpiry() time.Duration
	GetRotateRefreshTokens() bool
	GetSweepInterval() time.Duration
}

type Tokens struct {
	AccessSecret        string        `envconfig:"JWT_ACCESS_SECRET"`
	RefreshSecret       string        `envconfig:"JWT_REFRESH_SECRET"`
	AccessTokenExpiry   time.Duration `envconfig:"ACCESS_TOKEN_EXPIRY" default:"15m"`
	RefreshTokenExpiry  time.Duration `envconfig:"REFRESH_TOKEN_EXPIRY" default:"168h"`
	RotateRefreshTokens bool          `envconfig:"ROTATE_REFRESH_TOKENS" default:"false"`
	SweepInterval       time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`
}

var _ TokenConfig = Tokens{}

func (t Tokens) GetAccessSecret() string {
	return t.AccessSecret
}

func (t Tokens) GetRefreshSecret() string {
	return t.RefreshSecret
}

func (t Tokens) GetAccessTokenExpiry() time.Duration {
	return t.AccessTokenExpiry
}

func (t Tokens) GetRefreshTokenExpiry() time.Duration {
	return t.RefreshTokenExpiry
}

func (t Tokens) GetRotateRefreshTokens() bool {
	return t.RotateRefreshTokens
}

func (t Tokens) GetSweepInterval() time.Duration {
	return t.SweepInterval
}

func (t Tokens) validate() error {
	if t.AccessSecret == "" || t.RefreshSecret == "" {
		return fmt.Errorf("[config] JWT_ACCESS_SECRET and JWT_REFRESH_SECRET are required")
	}
	if len(t.AccessSecret) < MinSecretLength || len(t.RefreshSecret) < MinSecretLength {
		return fmt.Errorf("[config] token secrets must be at least %d characters", MinSecretLength)
	}
	if t.AccessSecret == t.RefreshSecret {
		return fmt.Errorf("[config] JWT_ACCESS_SECRET and JWT_REFRESH_SECRET must differ")
	}
	if t.AccessTokenExpiry <= 0 || t.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("[config] token expiries must be positive")
	}
	if t.RefreshTokenExpiry <= t.AccessTokenExpiry {
		return fmt.Errorf("[config] REFRESH_TOKEN_EXPIRY must be longer than ACCESS_TOKEN_EXPIRY")
	}
	return nil
}
