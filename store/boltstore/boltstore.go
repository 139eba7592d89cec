// Package boltstore provides a CredentialStore backed by a single bbolt file.
package boltstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/store"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"go.etcd.io/bbolt"
)

var (
	usersBucket         = []byte("users")
	emailsBucket        = []byte("user_emails")
	refreshTokensBucket = []byte("refresh_tokens")
)

const defaultOpenTimeout = time.Second

var _ store.CredentialStore = (*Store)(nil)

// Store implements store.CredentialStore. Each operation runs in its own
// bbolt transaction, and bbolt serialises writers, so the email uniqueness
// check and the insert are atomic.
type Store struct {
	db *bbolt.DB
}

// New wraps an open database, creating the buckets it needs
func New(db *bbolt.DB) (*Store, error) {
	err := db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{usersBucket, emailsBucket, refreshTokensBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "boltstore.New create buckets")
	}
	return &Store{db: db}, nil
}

// Open opens or creates the database file at path
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: defaultOpenTimeout})
	if err != nil {
		return nil, errors.Wrapf(err, "boltstore.Open %s", path)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) InsertPrincipal(_ context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	data, err := store.EncodePrincipal(user)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket(emailsBucket)
		if emails.Get([]byte(user.Email)) != nil {
			return apperrors.ErrDuplicateEmail
		}
		if err := emails.Put([]byte(user.Email), []byte(user.ID)); err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Put([]byte(user.ID), data)
	})
}

func (s *Store) FindPrincipalByID(_ context.Context, id string) (*users.User, error) {
	var user *users.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		user, err = principalByID(tx, id)
		return err
	})
	return user, err
}

func (s *Store) FindPrincipalByEmail(_ context.Context, email string) (*users.User, error) {
	var user *users.User
	err := s.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(emailsBucket).Get([]byte(email))
		if id == nil {
			return apperrors.ErrNotFound
		}
		var err error
		user, err = principalByID(tx, string(id))
		return err
	})
	return user, err
}

func (s *Store) DeletePrincipal(_ context.Context, id string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		user, err := principalByID(tx, id)
		if err != nil {
			return err
		}
		if err := tx.Bucket(emailsBucket).Delete([]byte(user.Email)); err != nil {
			return err
		}
		return tx.Bucket(usersBucket).Delete([]byte(id))
	})
}

func (s *Store) InsertRenewalRecord(_ context.Context, record *refresh.StoredRefreshToken) error {
	data, err := store.EncodeRenewalRecord(record)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(refreshTokensBucket).Put([]byte(record.Token), data)
	})
}

func (s *Store) FindRenewalRecordByToken(_ context.Context, token string) (*refresh.StoredRefreshToken, error) {
	var rt *refresh.StoredRefreshToken
	err := s.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket(refreshTokensBucket).Get([]byte(token))
		if data == nil {
			return apperrors.ErrNotFound
		}
		var err error
		rt, err = store.DecodeRenewalRecord(data)
		return err
	})
	return rt, err
}

func (s *Store) DeleteRenewalRecord(_ context.Context, token string) (bool, error) {
	removed := false
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(refreshTokensBucket)
		if b.Get([]byte(token)) == nil {
			return nil
		}
		removed = true
		return b.Delete([]byte(token))
	})
	if err != nil {
		return false, errors.Wrap(err, "boltstore.DeleteRenewalRecord")
	}
	return removed, nil
}

func (s *Store) DeleteAllRenewalRecordsForPrincipal(_ context.Context, userID string) (int, error) {
	return s.deleteRenewalRecordsWhere(func(rt *refresh.StoredRefreshToken) bool {
		return rt.UserID == userID
	})
}

func (s *Store) DeleteExpiredRenewalRecords(_ context.Context, now time.Time) (int, error) {
	return s.deleteRenewalRecordsWhere(func(rt *refresh.StoredRefreshToken) bool {
		return rt.Expired(now)
	})
}

// deleteRenewalRecordsWhere collects matching keys first since bbolt cursors
// must not be used across deletes.
func (s *Store) deleteRenewalRecordsWhere(match func(*refresh.StoredRefreshToken) bool) (int, error) {
	n := 0
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(refreshTokensBucket)
		var keys [][]byte
		err := b.ForEach(func(k, v []byte) error {
			rt, err := store.DecodeRenewalRecord(v)
			if err != nil {
				return err
			}
			if match(rt) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		n = len(keys)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "boltstore.deleteRenewalRecordsWhere")
	}
	return n, nil
}

func principalByID(tx *bbolt.Tx, id string) (*users.User, error) {
	data := tx.Bucket(usersBucket).Get([]byte(id))
	if data == nil {
		return nil, apperrors.ErrNotFound
	}
	return store.DecodePrincipal(data)
}
