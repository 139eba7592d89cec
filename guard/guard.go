// Package guard turns an Authorization header into an authentication verdict
// and, optionally, a role check. It never touches the credential store:
// access tokens are verified by signature and expiry alone.
package guard

import (
	"context"
	"strings"

	"github.com/jrsteele09/go-session-auth/token"
)

const bearerPrefix = "Bearer "

// Verdict is the outcome of checking an Authorization header. UserID and
// Role are empty unless IsAuthenticated is true.
type Verdict struct {
	IsAuthenticated bool
	UserID          string
	Role            string
}

// RoleVerdict adds the result of a role comparison to a Verdict
type RoleVerdict struct {
	Verdict
	HasRequiredRole bool
}

// AccessTokenVerifier is satisfied by *token.Manager
type AccessTokenVerifier interface {
	VerifyAccessToken(rawToken string) (*token.AccessClaims, error)
}

type Guard struct {
	tokens AccessTokenVerifier
}

func New(tokens AccessTokenVerifier) *Guard {
	return &Guard{tokens: tokens}
}

// ExtractBearer returns what follows the exact, case-sensitive prefix
// "Bearer ". Any other header shape, or an empty remainder, yields false.
func ExtractBearer(header string) (string, bool) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", false
	}
	raw := header[len(bearerPrefix):]
	if raw == "" {
		return "", false
	}
	return raw, true
}

// CheckAuth verifies the bearer token in header. The reason for a failure is
// not reported.
func (g *Guard) CheckAuth(header string) Verdict {
	raw, ok := ExtractBearer(header)
	if !ok {
		return Verdict{}
	}
	claims, err := g.tokens.VerifyAccessToken(raw)
	if err != nil {
		return Verdict{}
	}
	return Verdict{
		IsAuthenticated: true,
		UserID:          claims.UserID,
		Role:            claims.Role,
	}
}

// RequireRole is CheckAuth plus an exact match of the token's role against
// role. HasRequiredRole is always false for an unauthenticated header.
func (g *Guard) RequireRole(header, role string) RoleVerdict {
	v := g.CheckAuth(header)
	return RoleVerdict{
		Verdict:         v,
		HasRequiredRole: v.IsAuthenticated && role != "" && v.Role == role,
	}
}

type contextKey struct{}

// WithVerdict stores an authenticated verdict on ctx
func WithVerdict(ctx context.Context, v Verdict) context.Context {
	return context.WithValue(ctx, contextKey{}, v)
}

// FromContext returns the verdict stored by WithVerdict
func FromContext(ctx context.Context) (Verdict, bool) {
	v, ok := ctx.Value(contextKey{}).(Verdict)
	return v, ok
}
