package auth

import (
	"strings"

	"github.com/jrsteele09/go-session-auth/api"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
)

// ValidationError rejects caller input. Message is safe to show to the caller.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return apperrors.ErrValidation
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}

// Validator centralises input checks for the issuer operations
type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// ValidateRegistration requires every field and a password bcrypt can hash
func (v *Validator) ValidateRegistration(name, email, password string) error {
	if blank(name) || blank(email) || password == "" {
		return invalid(api.MsgMissingFields)
	}
	return v.validatePassword(password)
}

// ValidateCredentials checks login input for presence only. Overlong
// passwords are left to fail the hash comparison so login failures stay uniform.
func (v *Validator) ValidateCredentials(email, password string) error {
	if blank(email) || password == "" {
		return invalid(api.MsgEmailPasswordMissing)
	}
	return nil
}

// ValidateRefreshToken checks a renewal token is present
func (v *Validator) ValidateRefreshToken(refreshToken string) error {
	if blank(refreshToken) {
		return invalid(api.MsgRefreshTokenMissing)
	}
	return nil
}

func (v *Validator) validatePassword(password string) error {
	if len(password) > users.MaxPasswordBytes {
		return invalid(api.MsgPasswordTooLong)
	}
	return nil
}

func blank(s string) bool {
	return strings.TrimSpace(s) == ""
}
