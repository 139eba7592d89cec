package token

import (
	"time"

	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

const DefaultAccessTokenExpiry = 15 * time.Minute

// Manager creates and verifies access tokens. Access tokens are stateless:
// validity depends only on the signature and exp claim, so they cannot be
// revoked before they expire.
type Manager struct {
	codec             *Codec
	accessTokenExpiry time.Duration
}

type ManagerOption func(*Manager)

func WithAccessTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = expiry
	}
}

func NewManager(codec *Codec, options ...ManagerOption) *Manager {
	m := &Manager{
		codec: codec,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry <= 0 {
		m.accessTokenExpiry = DefaultAccessTokenExpiry
	}
	return m
}

// CreateAccessToken issues an access token carrying the user's id and role
func (m *Manager) CreateAccessToken(user *users.User) (string, error) {
	if user == nil || user.ID == "" {
		return "", errors.New("Manager.CreateAccessToken: user id required")
	}
	signed, err := m.codec.Issue(&AccessClaims{
		UserID: user.ID,
		Role:   string(user.Role),
	}, m.accessTokenExpiry)
	if err != nil {
		return "", errors.Wrap(err, "Manager.CreateAccessToken")
	}
	return signed, nil
}

// VerifyAccessToken returns the claims of a valid access token or ErrInvalidToken
func (m *Manager) VerifyAccessToken(rawToken string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.codec.Verify(rawToken, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// AccessTokenExpiry is the lifetime given to new access tokens
func (m *Manager) AccessTokenExpiry() time.Duration {
	return m.accessTokenExpiry
}
