// Package redisstore provides a CredentialStore backed by Redis.
//
// Key layout under a configurable prefix:
//
//	<prefix>:user:<id>          principal JSON
//	<prefix>:email:<email>      principal id, claimed with SETNX
//	<prefix>:rt:<sha256(token)> refresh token record JSON, expires with the record
//	<prefix>:user_rts:<id>      set of refresh token key hashes for a principal
package redisstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/store"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "sa"

const scanCount = 500

// insertPrincipalScript claims the email and writes the principal in one step
// so that concurrent registrations cannot both succeed.
const insertPrincipalScript = `
if redis.call("SETNX", KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call("SET", KEYS[2], ARGV[2])
return 1
`

var insertPrincipalLua = redis.NewScript(insertPrincipalScript)

var _ store.CredentialStore = (*Store)(nil)

type Store struct {
	redis  *redis.Client
	prefix string
}

// New uses client for all operations. An empty prefix selects DefaultPrefix.
func New(client *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{redis: client, prefix: prefix}
}

// Dial connects to addr and pings it before returning
func Dial(ctx context.Context, addr, password string, db int, prefix string) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "redisstore.Dial %s", addr)
	}
	return New(client, prefix), nil
}

func (s *Store) Close() error {
	return s.redis.Close()
}

func (s *Store) userKey(id string) string       { return s.prefix + ":user:" + id }
func (s *Store) emailKey(email string) string   { return s.prefix + ":email:" + email }
func (s *Store) tokenKey(hash string) string    { return s.prefix + ":rt:" + hash }
func (s *Store) userTokensKey(id string) string { return s.prefix + ":user_rts:" + id }

func tokenHash(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *Store) InsertPrincipal(ctx context.Context, user *users.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	data, err := store.EncodePrincipal(user)
	if err != nil {
		return err
	}
	inserted, err := insertPrincipalLua.Run(ctx, s.redis,
		[]string{s.emailKey(user.Email), s.userKey(user.ID)},
		user.ID, data,
	).Int()
	if err != nil {
		return errors.Wrap(err, "redisstore.InsertPrincipal")
	}
	if inserted == 0 {
		return apperrors.ErrDuplicateEmail
	}
	return nil
}

func (s *Store) FindPrincipalByID(ctx context.Context, id string) (*users.User, error) {
	data, err := s.redis.Get(ctx, s.userKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.FindPrincipalByID")
	}
	return store.DecodePrincipal(data)
}

func (s *Store) FindPrincipalByEmail(ctx context.Context, email string) (*users.User, error) {
	id, err := s.redis.Get(ctx, s.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.FindPrincipalByEmail")
	}
	return s.FindPrincipalByID(ctx, id)
}

func (s *Store) DeletePrincipal(ctx context.Context, id string) error {
	user, err := s.FindPrincipalByID(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.userKey(id))
		pipe.Del(ctx, s.emailKey(user.Email))
		return nil
	})
	return errors.Wrap(err, "redisstore.DeletePrincipal")
}

// InsertRenewalRecord stores the record with a TTL matching its expiry.
// The TTL follows the wall clock while callers may run on another clock, so a
// record already past its expiry is kept without a TTL and left to
// DeleteExpiredRenewalRecords.
func (s *Store) InsertRenewalRecord(ctx context.Context, record *refresh.StoredRefreshToken) error {
	ttl := time.Until(record.ExpiresAt)
	if ttl <= 0 {
		ttl = 0
	}
	data, err := store.EncodeRenewalRecord(record)
	if err != nil {
		return err
	}
	hash := tokenHash(record.Token)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.tokenKey(hash), data, ttl)
		pipe.SAdd(ctx, s.userTokensKey(record.UserID), hash)
		return nil
	})
	return errors.Wrap(err, "redisstore.InsertRenewalRecord")
}

func (s *Store) FindRenewalRecordByToken(ctx context.Context, token string) (*refresh.StoredRefreshToken, error) {
	return s.renewalRecordByHash(ctx, tokenHash(token))
}

func (s *Store) renewalRecordByHash(ctx context.Context, hash string) (*refresh.StoredRefreshToken, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "redisstore.renewalRecordByHash")
	}
	return store.DecodeRenewalRecord(data)
}

// DeleteRenewalRecord relies on DEL reporting whether the key existed, so
// only one of several concurrent callers sees true.
func (s *Store) DeleteRenewalRecord(ctx context.Context, token string) (bool, error) {
	hash := tokenHash(token)
	rt, err := s.renewalRecordByHash(ctx, hash)
	if errors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.deleteByHash(ctx, rt.UserID, hash)
}

func (s *Store) deleteByHash(ctx context.Context, userID, hash string) (bool, error) {
	var del *redis.IntCmd
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, s.tokenKey(hash))
		pipe.SRem(ctx, s.userTokensKey(userID), hash)
		return nil
	})
	if err != nil {
		return false, errors.Wrap(err, "redisstore.deleteByHash")
	}
	return del.Val() == 1, nil
}

func (s *Store) DeleteAllRenewalRecordsForPrincipal(ctx context.Context, userID string) (int, error) {
	setKey := s.userTokensKey(userID)
	hashes, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, errors.Wrap(err, "redisstore.DeleteAllRenewalRecordsForPrincipal SMembers")
	}

	dels := make([]*redis.IntCmd, 0, len(hashes))
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, hash := range hashes {
			dels = append(dels, pipe.Del(ctx, s.tokenKey(hash)))
		}
		pipe.Del(ctx, setKey)
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "redisstore.DeleteAllRenewalRecordsForPrincipal")
	}

	n := 0
	for _, del := range dels {
		n += int(del.Val())
	}
	return n, nil
}

// DeleteExpiredRenewalRecords walks every principal's token set. Redis drops
// expired records on its own, so this mostly prunes dangling set members, but
// it also deletes records that are expired relative to now and not yet evicted.
// It returns the number of records it deleted itself.
func (s *Store) DeleteExpiredRenewalRecords(ctx context.Context, now time.Time) (int, error) {
	pattern := s.userTokensKey("*")
	setPrefix := s.userTokensKey("")
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return total, errors.Wrap(err, "redisstore.DeleteExpiredRenewalRecords Scan")
		}
		for _, setKey := range keys {
			n, err := s.pruneUserTokens(ctx, setKey[len(setPrefix):], now)
			if err != nil {
				return total, err
			}
			total += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return total, nil
}

func (s *Store) pruneUserTokens(ctx context.Context, userID string, now time.Time) (int, error) {
	setKey := s.userTokensKey(userID)
	hashes, err := s.redis.SMembers(ctx, setKey).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redisstore.pruneUserTokens SMembers")
	}

	n := 0
	for _, hash := range hashes {
		rt, err := s.renewalRecordByHash(ctx, hash)
		if errors.Is(err, apperrors.ErrNotFound) {
			if err := s.redis.SRem(ctx, setKey, hash).Err(); err != nil {
				return n, errors.Wrap(err, "redisstore.pruneUserTokens SRem")
			}
			continue
		}
		if err != nil {
			return n, err
		}
		if !rt.Expired(now) {
			continue
		}
		removed, err := s.deleteByHash(ctx, userID, hash)
		if err != nil {
			return n, err
		}
		if removed {
			n++
		}
	}
	return n, nil
}
