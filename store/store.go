// Package store defines the credential store contract shared by the session
// issuer and the token refresher, and the backends that implement it.
//
// A CredentialStore exclusively owns principal and refresh-token records.
// Callers only go through this interface, so the in-memory backend used in
// tests and development can be swapped for bbolt or Redis without touching
// business logic.
package store

import (
	"io"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
)

// Errors every backend returns, re-exported for callers outside the module
var (
	ErrNotFound       = apperrors.ErrNotFound
	ErrDuplicateEmail = apperrors.ErrDuplicateEmail
)

// CredentialStore holds principals and refresh-token records. Implementations
// must be safe for concurrent use; in particular two concurrent
// InsertPrincipal calls for the same email must not both succeed.
type CredentialStore interface {
	users.Repo
	refresh.Repo
	io.Closer
}
