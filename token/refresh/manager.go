package refresh

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/api"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultRefreshTokenExpiry = 7 * 24 * time.Hour

// Manager handles refresh token creation, validation, refresh and revocation
type Manager struct {
	repo         Repo
	userRepo     users.Repo
	codec        *token.Codec
	accessTokens *token.Manager
	expiry       time.Duration
	rotate       bool
	nowFunc      func() time.Time
}

type ManagerOption func(*Manager)

func WithRefreshTokenExpiry(expiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.expiry = expiry
	}
}

// WithRotation makes Refresh revoke the presented refresh token and return a
// new one alongside the access token. Off by default, in which case a refresh
// token stays usable until it expires or is revoked.
func WithRotation(rotate bool) ManagerOption {
	return func(m *Manager) {
		m.rotate = rotate
	}
}

// WithNowFunc sets the clock used for record timestamps and expiry checks.
// It should match the clock given to the refresh codec.
func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

// NewManager creates a new refresh token manager. codec must be signed with
// a secret distinct from the access token secret.
func NewManager(repo Repo, userRepo users.Repo, codec *token.Codec, accessTokens *token.Manager, options ...ManagerOption) *Manager {
	m := &Manager{
		repo:         repo,
		userRepo:     userRepo,
		codec:        codec,
		accessTokens: accessTokens,
	}
	for _, opt := range options {
		opt(m)
	}
	if m.expiry <= 0 {
		m.expiry = DefaultRefreshTokenExpiry
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

// Issue mints a refresh token for userID and stores its record with an
// expiry equal to the token's exp claim.
func (m *Manager) Issue(ctx context.Context, userID string) (string, error) {
	claims := &token.RefreshClaims{
		UserID:  userID,
		TokenID: uuid.New().String(),
	}
	signed, err := m.codec.Issue(claims, m.expiry)
	if err != nil {
		return "", errors.Wrap(err, "Manager.Issue codec.Issue")
	}

	if err := m.repo.InsertRenewalRecord(ctx, &StoredRefreshToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Token:     signed,
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: m.nowFunc(),
	}); err != nil {
		return "", errors.Wrap(err, "Manager.Issue InsertRenewalRecord")
	}
	return signed, nil
}

// Validate checks the signature and exp claim, that a record exists for the
// token string, and that the record itself has not expired. Any failure of
// those checks is reported as errors.ErrInvalidToken; only store faults
// surface as other errors.
func (m *Manager) Validate(ctx context.Context, rawToken string) (*token.RefreshClaims, *StoredRefreshToken, error) {
	claims := &token.RefreshClaims{}
	if err := m.codec.Verify(rawToken, claims); err != nil {
		return nil, nil, apperrors.ErrInvalidToken
	}

	rec, err := m.repo.FindRenewalRecordByToken(ctx, rawToken)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil, apperrors.ErrInvalidToken
	}
	if err != nil {
		return nil, nil, errors.Wrap(err, "Manager.Validate FindRenewalRecordByToken")
	}
	if rec.Expired(m.nowFunc()) || rec.UserID != claims.UserID {
		return nil, nil, apperrors.ErrInvalidToken
	}
	return claims, rec, nil
}

// Refresh exchanges a live refresh token for a fresh access token.
func (m *Manager) Refresh(ctx context.Context, rawToken string) api.Result {
	if strings.TrimSpace(rawToken) == "" {
		return api.Fail(api.KindValidation, api.MsgRefreshTokenMissing)
	}

	claims, _, err := m.Validate(ctx, rawToken)
	if errors.Is(err, apperrors.ErrInvalidToken) {
		return api.Fail(api.KindInvalidToken, api.MsgInvalidRefreshToken)
	}
	if err != nil {
		return m.unexpected(err)
	}

	user, err := m.userRepo.FindPrincipalByID(ctx, claims.UserID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return api.Fail(api.KindUserNotFound, api.MsgUserNotFound)
	}
	if err != nil {
		return m.unexpected(errors.Wrap(err, "Manager.Refresh FindPrincipalByID"))
	}

	accessToken, err := m.accessTokens.CreateAccessToken(user)
	if err != nil {
		return m.unexpected(err)
	}

	result := api.OK(api.MsgRefreshed)
	result.AccessToken = accessToken

	if m.rotate {
		// The replacement is stored before the old record goes, so a failed
		// issue leaves the caller's session intact.
		rotated, err := m.Issue(ctx, user.ID)
		if err != nil {
			return m.unexpected(err)
		}
		// Losing the delete race means another caller already used this token.
		removed, err := m.repo.DeleteRenewalRecord(ctx, rawToken)
		if err != nil || !removed {
			m.discard(ctx, rotated)
		}
		if err != nil {
			return m.unexpected(errors.Wrap(err, "Manager.Refresh DeleteRenewalRecord"))
		}
		if !removed {
			return api.Fail(api.KindInvalidToken, api.MsgInvalidRefreshToken)
		}
		result.RefreshToken = rotated
	}
	return result
}

// Revoke deletes the record for rawToken. It reports false when no record existed.
func (m *Manager) Revoke(ctx context.Context, rawToken string) (bool, error) {
	removed, err := m.repo.DeleteRenewalRecord(ctx, rawToken)
	if err != nil {
		return false, errors.Wrap(err, "Manager.Revoke")
	}
	return removed, nil
}

// RevokeAll deletes every record belonging to userID
func (m *Manager) RevokeAll(ctx context.Context, userID string) (int, error) {
	n, err := m.repo.DeleteAllRenewalRecordsForPrincipal(ctx, userID)
	if err != nil {
		return 0, errors.Wrap(err, "Manager.RevokeAll")
	}
	return n, nil
}

// Sweep removes records whose expiry has passed
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	n, err := m.repo.DeleteExpiredRenewalRecords(ctx, m.nowFunc())
	if err != nil {
		return 0, errors.Wrap(err, "Manager.Sweep")
	}
	return n, nil
}

// RunSweeper calls Sweep every interval until ctx is done
func (m *Manager) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("refresh token sweep failed")
				continue
			}
			if n > 0 {
				log.Info().Int("removed", n).Msg("swept expired refresh tokens")
			}
		}
	}
}

// Expiry is the lifetime given to new refresh tokens
func (m *Manager) Expiry() time.Duration {
	return m.expiry
}

func (m *Manager) unexpected(err error) api.Result {
	log.Error().Err(err).Msg("token refresh failed")
	return api.Fail(api.KindUnexpected, api.MsgRefreshError)
}

// discard removes a replacement token that will not be handed out
func (m *Manager) discard(ctx context.Context, rawToken string) {
	if _, err := m.repo.DeleteRenewalRecord(ctx, rawToken); err != nil {
		log.Warn().Err(err).Msg("could not remove unused rotated refresh token")
	}
}
