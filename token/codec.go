package token

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/pkg/errors"
)

// ErrInvalidToken is the only error Verify returns. It never says which
// check failed.
var ErrInvalidToken = apperrors.ErrInvalidToken

// Codec signs and verifies compact, expiring tokens with a single Signer.
// Access and refresh tokens use separate codecs with separate secrets.
type Codec struct {
	signer  Signer
	nowFunc func() time.Time
}

type CodecOption func(*Codec)

// WithCodecNowFunc sets the clock used for iat/exp stamping and expiry checks
func WithCodecNowFunc(now func() time.Time) CodecOption {
	return func(c *Codec) {
		c.nowFunc = now
	}
}

func NewCodec(signer Signer, options ...CodecOption) *Codec {
	c := &Codec{
		signer: signer,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.nowFunc == nil {
		c.nowFunc = time.Now
	}
	return c
}

// Issue stamps claims with iat=now and exp=now+ttl and signs them.
func (c *Codec) Issue(claims Claims, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.Errorf("token ttl must be positive, got %s", ttl)
	}
	now := c.nowFunc()
	claims.setLifetime(now, now.Add(ttl))
	return c.signer.Sign(claims)
}

// Verify parses raw into claims and checks algorithm, signature and expiry.
func (c *Codec) Verify(raw string, claims Claims) error {
	if strings.TrimSpace(raw) == "" {
		return ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(raw, claims, c.signer.GetVerificationKey,
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil || !parsed.Valid || claims.principal() == "" {
		return ErrInvalidToken
	}
	return nil
}
