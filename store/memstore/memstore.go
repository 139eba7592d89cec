package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/store"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
)

var _ store.CredentialStore = (*Store)(nil)

// Store is an in-memory CredentialStore. Records are copied in and out so
// callers never share memory with the store.
type Store struct {
	users      map[string]*users.User
	emailIDs   map[string]string // email to user id
	tokens     map[string]*refresh.StoredRefreshToken
	userTokens map[string]map[string]struct{} // user id to token strings
	lock       sync.RWMutex
}

func New() *Store {
	return &Store{
		users:      make(map[string]*users.User),
		emailIDs:   make(map[string]string),
		tokens:     make(map[string]*refresh.StoredRefreshToken),
		userTokens: make(map[string]map[string]struct{}),
	}
}

func (s *Store) InsertPrincipal(_ context.Context, user *users.User) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	if _, ok := s.emailIDs[user.Email]; ok {
		return apperrors.ErrDuplicateEmail
	}
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	s.users[user.ID] = user.Clone()
	s.emailIDs[user.Email] = user.ID
	return nil
}

func (s *Store) FindPrincipalByID(_ context.Context, id string) (*users.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return u.Clone(), nil
}

func (s *Store) FindPrincipalByEmail(_ context.Context, email string) (*users.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	id, ok := s.emailIDs[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return s.users[id].Clone(), nil
}

func (s *Store) DeletePrincipal(_ context.Context, id string) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	u, ok := s.users[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	delete(s.emailIDs, u.Email)
	delete(s.users, id)
	return nil
}

func (s *Store) InsertRenewalRecord(_ context.Context, record *refresh.StoredRefreshToken) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.tokens[record.Token] = record.Clone()
	if s.userTokens[record.UserID] == nil {
		s.userTokens[record.UserID] = make(map[string]struct{})
	}
	s.userTokens[record.UserID][record.Token] = struct{}{}
	return nil
}

func (s *Store) FindRenewalRecordByToken(_ context.Context, token string) (*refresh.StoredRefreshToken, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	rt, ok := s.tokens[token]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return rt.Clone(), nil
}

func (s *Store) DeleteRenewalRecord(_ context.Context, token string) (bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	return s.deleteTokenLocked(token), nil
}

func (s *Store) DeleteAllRenewalRecordsForPrincipal(_ context.Context, userID string) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := 0
	for token := range s.userTokens[userID] {
		if s.deleteTokenLocked(token) {
			n++
		}
	}
	delete(s.userTokens, userID)
	return n, nil
}

func (s *Store) DeleteExpiredRenewalRecords(_ context.Context, now time.Time) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	n := 0
	for token, rt := range s.tokens {
		if rt.Expired(now) && s.deleteTokenLocked(token) {
			n++
		}
	}
	return n, nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) deleteTokenLocked(token string) bool {
	rt, ok := s.tokens[token]
	if !ok {
		return false
	}
	delete(s.tokens, token)
	if set := s.userTokens[rt.UserID]; set != nil {
		delete(set, token)
		if len(set) == 0 {
			delete(s.userTokens, rt.UserID)
		}
	}
	return true
}
