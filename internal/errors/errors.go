package errors

import (
	"errors"
	"fmt"
)

// Common error types for the session auth server
var (
	// Input errors
	ErrValidation = errors.New("validation error")

	// Account errors
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")

	// Token errors. ErrInvalidToken deliberately covers malformed, expired,
	// wrongly signed and revoked tokens alike.
	ErrInvalidToken = errors.New("invalid token")

	// Storage errors
	ErrNotFound = errors.New("not found")

	// General errors
	ErrUnexpected = errors.New("unexpected failure")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}
