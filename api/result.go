package api

import (
	"net/http"

	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
)

// Kind classifies a failed Result so the routing layer can choose a status code.
type Kind string

const (
	KindNone               Kind = ""
	KindValidation         Kind = "validation_error"
	KindDuplicateEmail     Kind = "duplicate_email"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindInvalidToken       Kind = "invalid_token"
	KindUserNotFound       Kind = "user_not_found"
	KindUnexpected         Kind = "unexpected_failure"
)

// Stable user-visible messages. Credential and token failures share one
// message each regardless of which check failed.
const (
	MsgMissingFields        = "Missing required fields"
	MsgEmailPasswordMissing = "Email and password required"
	MsgRefreshTokenMissing  = "Refresh token required"
	MsgPasswordTooLong      = "Password must be at most 72 bytes"
	MsgMalformedBody        = "Invalid request body"
	MsgEmailRegistered      = "Email already registered"
	MsgInvalidCredentials   = "Invalid email or password"
	MsgInvalidRefreshToken  = "Invalid refresh token"
	MsgUserNotFound         = "User not found"
	MsgUnauthorized         = "Unauthorized"
	MsgForbidden            = "Forbidden"
	MsgMethodNotAllowed     = "Method not allowed"
	MsgServerError          = "Server error"

	MsgRegistered       = "Registration successful"
	MsgLoggedIn         = "Login successful"
	MsgLoggedOut        = "Logged out successfully"
	MsgLoggedOutAll     = "All sessions logged out"
	MsgRefreshed        = "Token refreshed successfully"
	MsgProfileRetrieved = "Profile retrieved successfully"

	MsgRegistrationError = "Error during registration"
	MsgLoginError        = "Error during login"
	MsgLogoutError       = "Error during logout"
	MsgRefreshError      = "Error refreshing token"
	MsgProfileError      = "Error retrieving profile"
)

// Result is the value every boundary operation returns. Field names mirror
// the JSON body rendered by the routing layer.
type Result struct {
	Success      bool        `json:"success"`
	Message      string      `json:"message"`
	AccessToken  string      `json:"accessToken,omitempty"`
	RefreshToken string      `json:"refreshToken,omitempty"`
	User         *users.User `json:"user,omitempty"`
	Kind         Kind        `json:"-"`
}

// OK builds a successful result
func OK(message string) Result {
	return Result{Success: true, Message: message}
}

// Fail builds a failed result of the given kind
func Fail(kind Kind, message string) Result {
	return Result{Success: false, Message: message, Kind: kind}
}

// Err returns the sentinel error matching a failed result, or nil on success.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	switch r.Kind {
	case KindValidation:
		return apperrors.ErrValidation
	case KindDuplicateEmail:
		return apperrors.ErrDuplicateEmail
	case KindInvalidCredentials:
		return apperrors.ErrInvalidCredentials
	case KindInvalidToken:
		return apperrors.ErrInvalidToken
	case KindUserNotFound:
		return apperrors.ErrUserNotFound
	default:
		return apperrors.ErrUnexpected
	}
}

// StatusCode maps a result to the HTTP status the routing layer responds with.
func StatusCode(r Result) int {
	if r.Success {
		return http.StatusOK
	}
	switch r.Kind {
	case KindValidation, KindDuplicateEmail:
		return http.StatusBadRequest
	case KindInvalidCredentials, KindInvalidToken:
		return http.StatusUnauthorized
	case KindUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// KindFromStatus recovers an approximate Kind from a response status. Used by
// clients, which never see Kind on the wire.
func KindFromStatus(status int) Kind {
	switch {
	case status < 300:
		return KindNone
	case status == http.StatusBadRequest:
		return KindValidation
	case status == http.StatusUnauthorized:
		return KindInvalidToken
	case status == http.StatusNotFound:
		return KindUserNotFound
	default:
		return KindUnexpected
	}
}
