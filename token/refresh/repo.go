package refresh

import (
	"context"
	"time"
)

// StoredRefreshToken is the server-side record that keeps a renewal token
// alive. Deleting it revokes the token regardless of the token's own exp.
type StoredRefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Token     string    `json:"token"`     // The signed renewal token sent to the client
	ExpiresAt time.Time `json:"expiresAt"` // Mirrors the token's exp claim
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the record's own expiry has passed at now
func (rt *StoredRefreshToken) Expired(now time.Time) bool {
	return rt.ExpiresAt.Before(now)
}

// Clone returns a copy of the record
func (rt *StoredRefreshToken) Clone() *StoredRefreshToken {
	if rt == nil {
		return nil
	}
	c := *rt
	return &c
}

// Repo is the renewal-record half of the credential store.
// FindRenewalRecordByToken returns errors.ErrNotFound on a miss.
type Repo interface {
	InsertRenewalRecord(ctx context.Context, record *StoredRefreshToken) error
	FindRenewalRecordByToken(ctx context.Context, token string) (*StoredRefreshToken, error)
	DeleteRenewalRecord(ctx context.Context, token string) (bool, error)
	DeleteAllRenewalRecordsForPrincipal(ctx context.Context, userID string) (int, error)
	DeleteExpiredRenewalRecords(ctx context.Context, now time.Time) (int, error)
}
