package store

import (
	"encoding/json"
	"time"

	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
)

// principalRecord is the persisted form of a principal. users.User hides the
// password hash from JSON, so durable backends serialise this instead.
type principalRecord struct {
	ID           string         `json:"id"`
	Name         string         `json:"name"`
	Email        string         `json:"email"`
	PasswordHash string         `json:"passwordHash"`
	Role         users.RoleType `json:"role"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// EncodePrincipal serialises a principal including its password hash
func EncodePrincipal(u *users.User) ([]byte, error) {
	data, err := json.Marshal(principalRecord{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		PasswordHash: u.PasswordHash,
		Role:         u.Role,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	})
	if err != nil {
		return nil, errors.Wrap(err, "EncodePrincipal")
	}
	return data, nil
}

// DecodePrincipal is the inverse of EncodePrincipal
func DecodePrincipal(data []byte) (*users.User, error) {
	var rec principalRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrap(err, "DecodePrincipal")
	}
	return &users.User{
		ID:           rec.ID,
		Name:         rec.Name,
		Email:        rec.Email,
		PasswordHash: rec.PasswordHash,
		Role:         rec.Role,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}

func EncodeRenewalRecord(rt *refresh.StoredRefreshToken) ([]byte, error) {
	data, err := json.Marshal(rt)
	if err != nil {
		return nil, errors.Wrap(err, "EncodeRenewalRecord")
	}
	return data, nil
}

func DecodeRenewalRecord(data []byte) (*refresh.StoredRefreshToken, error) {
	var rt refresh.StoredRefreshToken
	if err := json.Unmarshal(data, &rt); err != nil {
		return nil, errors.Wrap(err, "DecodeRenewalRecord")
	}
	return &rt, nil
}
