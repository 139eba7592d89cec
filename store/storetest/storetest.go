// Package storetest is a conformance suite every store.CredentialStore
// backend runs from its own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/store"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) store.CredentialStore

// Run executes the full conformance suite against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.CredentialStore)
	}{
		{"PrincipalRoundTrip", testPrincipalRoundTrip},
		{"EmailIsCaseSensitive", testEmailIsCaseSensitive},
		{"DuplicateEmail", testDuplicateEmail},
		{"ConcurrentDuplicateEmail", testConcurrentDuplicateEmail},
		{"DeletePrincipal", testDeletePrincipal},
		{"RenewalRecordRoundTrip", testRenewalRecordRoundTrip},
		{"DeleteRenewalRecordOnce", testDeleteRenewalRecordOnce},
		{"DeleteAllForPrincipal", testDeleteAllForPrincipal},
		{"DeleteExpired", testDeleteExpired},
		{"InsertAlreadyExpired", testInsertAlreadyExpired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			t.Cleanup(func() { _ = s.Close() })
			tt.fn(t, s)
		})
	}
}

func newUser(email string) *users.User {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &users.User{
		ID:           uuid.New().String(),
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$2a$10$abcdefghijklmnopqrstuuJ6S5y3p6Qk0eR0uW0pW2bUu6o5M5QOu",
		Role:         users.RoleUser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func newRecord(userID string, expiresAt time.Time) *refresh.StoredRefreshToken {
	return &refresh.StoredRefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     "rt." + uuid.New().String(),
		ExpiresAt: expiresAt.UTC().Truncate(time.Millisecond),
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testPrincipalRoundTrip(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	u := newUser("ann@x.com")
	require.NoError(t, s.InsertPrincipal(ctx, u))

	byID, err := s.FindPrincipalByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, byID.Email)
	require.Equal(t, u.Name, byID.Name)
	require.Equal(t, u.Role, byID.Role)
	require.Equal(t, u.PasswordHash, byID.PasswordHash, "the store must keep the hash")
	require.True(t, u.CreatedAt.Equal(byID.CreatedAt))

	byEmail, err := s.FindPrincipalByEmail(ctx, u.Email)
	require.NoError(t, err)
	require.Equal(t, u.ID, byEmail.ID)

	_, err = s.FindPrincipalByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindPrincipalByEmail(ctx, "missing@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Mutating a returned record must not change the stored one.
	byID.Role = users.RoleAdmin
	again, err := s.FindPrincipalByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, users.RoleUser, again.Role)
}

func testEmailIsCaseSensitive(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	require.NoError(t, s.InsertPrincipal(ctx, newUser("ann@x.com")))

	_, err := s.FindPrincipalByEmail(ctx, "Ann@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, s.InsertPrincipal(ctx, newUser("Ann@x.com")))
}

func testDuplicateEmail(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	first := newUser("dup@x.com")
	require.NoError(t, s.InsertPrincipal(ctx, first))

	err := s.InsertPrincipal(ctx, newUser("dup@x.com"))
	require.ErrorIs(t, err, store.ErrDuplicateEmail)

	got, err := s.FindPrincipalByEmail(ctx, "dup@x.com")
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}

func testConcurrentDuplicateEmail(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	const workers = 16

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		successes  int
		duplicates int
		start      = make(chan struct{})
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.InsertPrincipal(ctx, newUser("race@x.com"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.Is(err, store.ErrDuplicateEmail):
				duplicates++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, duplicates)
}

func testDeletePrincipal(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	u := newUser("gone@x.com")
	require.NoError(t, s.InsertPrincipal(ctx, u))
	require.NoError(t, s.DeletePrincipal(ctx, u.ID))

	_, err := s.FindPrincipalByID(ctx, u.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindPrincipalByEmail(ctx, u.Email)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.ErrorIs(t, s.DeletePrincipal(ctx, u.ID), store.ErrNotFound)

	// The email is free again.
	require.NoError(t, s.InsertPrincipal(ctx, newUser("gone@x.com")))
}

func testRenewalRecordRoundTrip(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	rec := newRecord("user-1", time.Now().Add(time.Hour))
	require.NoError(t, s.InsertRenewalRecord(ctx, rec))

	got, err := s.FindRenewalRecordByToken(ctx, rec.Token)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)
	require.Equal(t, rec.UserID, got.UserID)
	require.Equal(t, rec.Token, got.Token)
	require.True(t, rec.ExpiresAt.Equal(got.ExpiresAt))

	_, err = s.FindRenewalRecordByToken(ctx, "rt.unknown")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteRenewalRecordOnce(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	rec := newRecord("user-1", time.Now().Add(time.Hour))
	require.NoError(t, s.InsertRenewalRecord(ctx, rec))

	removed, err := s.DeleteRenewalRecord(ctx, rec.Token)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.DeleteRenewalRecord(ctx, rec.Token)
	require.NoError(t, err)
	require.False(t, removed, "a deleted record must stay deleted")

	_, err = s.FindRenewalRecordByToken(ctx, rec.Token)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testDeleteAllForPrincipal(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	var mine []*refresh.StoredRefreshToken
	for i := 0; i < 3; i++ {
		rec := newRecord("user-1", time.Now().Add(time.Hour))
		require.NoError(t, s.InsertRenewalRecord(ctx, rec))
		mine = append(mine, rec)
	}
	other := newRecord("user-2", time.Now().Add(time.Hour))
	require.NoError(t, s.InsertRenewalRecord(ctx, other))

	n, err := s.DeleteAllRenewalRecordsForPrincipal(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, 3, n)

	for _, rec := range mine {
		_, err := s.FindRenewalRecordByToken(ctx, rec.Token)
		require.ErrorIs(t, err, store.ErrNotFound, fmt.Sprintf("token %s", rec.ID))
	}
	_, err = s.FindRenewalRecordByToken(ctx, other.Token)
	require.NoError(t, err)

	n, err = s.DeleteAllRenewalRecordsForPrincipal(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func testDeleteExpired(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	live := newRecord("user-1", time.Now().Add(time.Hour))
	dead := newRecord("user-1", time.Now().Add(-time.Hour))
	require.NoError(t, s.InsertRenewalRecord(ctx, live))
	require.NoError(t, s.InsertRenewalRecord(ctx, dead))

	_, err := s.DeleteExpiredRenewalRecords(ctx, time.Now())
	require.NoError(t, err)

	_, err = s.FindRenewalRecordByToken(ctx, dead.Token)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindRenewalRecordByToken(ctx, live.Token)
	require.NoError(t, err)
}

// Callers may run on a clock behind the store's, so a record already past its
// expiry must still be written and later counted by the sweep.
func testInsertAlreadyExpired(t *testing.T, s store.CredentialStore) {
	ctx := context.Background()
	rec := newRecord("user-1", time.Now().Add(-time.Minute))
	require.NoError(t, s.InsertRenewalRecord(ctx, rec))

	got, err := s.FindRenewalRecordByToken(ctx, rec.Token)
	require.NoError(t, err)
	require.Equal(t, rec.ID, got.ID)

	n, err := s.DeleteExpiredRenewalRecords(ctx, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, n)

	_, err = s.FindRenewalRecordByToken(ctx, rec.Token)
	require.ErrorIs(t, err, store.ErrNotFound)
}
