package users

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// PasswordCost is the bcrypt work factor. 10 keeps a hash at roughly
// 50-100ms on commodity hardware.
const PasswordCost = 10

// MaxPasswordBytes is the longest secret bcrypt will accept.
const MaxPasswordBytes = 72

// RoleType represents the role carried in a user's access token
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Can reach role-gated admin routes
	RoleUser  RoleType = "user"  // Default role for self-registered users
)

// Valid reports whether r is one of the known roles
func (r RoleType) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type User struct {
	ID           string    `json:"id"`        // Unique identifier for the user
	Name         string    `json:"name"`      // Display name
	Email        string    `json:"email"`     // Unique, matched exactly as stored
	PasswordHash string    `json:"-"`         // Hashed version of the user's password - never serialize
	Role         RoleType  `json:"role"`      // admin or user
	CreatedAt    time.Time `json:"createdAt"` // Date and time when the user registered
	UpdatedAt    time.Time `json:"updatedAt"` // Last time the record changed
}

// Sanitized returns a copy of the user without the password hash
func (u *User) Sanitized() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.PasswordHash = ""
	return &c
}

// Clone returns a full copy of the user, including the password hash
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// IsAdmin returns true if the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), PasswordCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a bcrypt hash. A malformed hash
// is reported as a mismatch.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}
