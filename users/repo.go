package users

import "context"

// Repo is the principal half of the credential store. Lookups that miss
// return errors.ErrNotFound; InsertPrincipal returns errors.ErrDuplicateEmail
// when the email is taken, decided atomically with the insert.
type Repo interface {
	InsertPrincipal(ctx context.Context, user *User) error
	FindPrincipalByID(ctx context.Context, id string) (*User, error)
	FindPrincipalByEmail(ctx context.Context, email string) (*User, error)
	DeletePrincipal(ctx context.Context, id string) error
}
