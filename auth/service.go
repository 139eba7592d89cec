package auth

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-session-auth/api"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/jrsteele09/go-session-auth/users"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Service issues and revokes sessions. Every boundary operation returns an
// api.Result; no error escapes to the routing layer.
type Service struct {
	users         users.Repo
	tokens        *token.Manager
	refreshTokens *refresh.Manager
	validator     *Validator
	nowTime       func() time.Time

	dummyHashOnce sync.Once
	dummyHash     string
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// NewService initializes a new Service with required dependencies.
func NewService(
	userRepo users.Repo,
	tokens *token.Manager,
	refreshTokens *refresh.Manager,
	options ...ServiceOption,
) (*Service, error) {
	if userRepo == nil {
		return nil, errors.New("[NewService] users repo is required")
	}
	if tokens == nil {
		return nil, errors.New("[NewService] access token manager is required")
	}
	if refreshTokens == nil {
		return nil, errors.New("[NewService] refresh token manager is required")
	}

	s := &Service{
		users:         userRepo,
		tokens:        tokens,
		refreshTokens: refreshTokens,
		validator:     NewValidator(),
		nowTime:       time.Now,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Register creates a principal with the user role and returns it without the
// password hash. Tokens are not issued; the caller logs in separately.
func (s *Service) Register(ctx context.Context, name, email, password string) api.Result {
	if err := s.validator.ValidateRegistration(name, email, password); err != nil {
		return validationFailure(err)
	}

	_, err := s.users.FindPrincipalByEmail(ctx, email)
	if err == nil {
		return api.Fail(api.KindDuplicateEmail, api.MsgEmailRegistered)
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return s.unexpected(errors.Wrap(err, "Service.Register FindPrincipalByEmail"), api.MsgRegistrationError)
	}

	user, err := s.newPrincipal(name, email, password, users.RoleUser)
	if err != nil {
		return s.unexpected(err, api.MsgRegistrationError)
	}

	// The lookup above is advisory; the store decides races.
	err = s.users.InsertPrincipal(ctx, user)
	if errors.Is(err, apperrors.ErrDuplicateEmail) {
		return api.Fail(api.KindDuplicateEmail, api.MsgEmailRegistered)
	}
	if err != nil {
		return s.unexpected(errors.Wrap(err, "Service.Register InsertPrincipal"), api.MsgRegistrationError)
	}

	log.Info().Str("userId", user.ID).Msg("user registered")
	result := api.OK(api.MsgRegistered)
	result.User = user.Sanitized()
	return result
}

// Login verifies the password and issues an access token and a refresh token.
// An unknown email and a wrong password produce the same result.
func (s *Service) Login(ctx context.Context, email, password string) api.Result {
	if err := s.validator.ValidateCredentials(email, password); err != nil {
		return validationFailure(err)
	}

	user, err := s.users.FindPrincipalByEmail(ctx, email)
	if errors.Is(err, apperrors.ErrNotFound) {
		// Spend the same bcrypt time as a real comparison.
		users.CheckPasswordHash(password, s.timingHash())
		return api.Fail(api.KindInvalidCredentials, api.MsgInvalidCredentials)
	}
	if err != nil {
		return s.unexpected(errors.Wrap(err, "Service.Login FindPrincipalByEmail"), api.MsgLoginError)
	}
	if !users.CheckPasswordHash(password, user.PasswordHash) {
		log.Debug().Str("userId", user.ID).Msg("login rejected")
		return api.Fail(api.KindInvalidCredentials, api.MsgInvalidCredentials)
	}

	accessToken, err := s.tokens.CreateAccessToken(user)
	if err != nil {
		return s.unexpected(err, api.MsgLoginError)
	}
	refreshToken, err := s.refreshTokens.Issue(ctx, user.ID)
	if err != nil {
		return s.unexpected(err, api.MsgLoginError)
	}

	log.Info().Str("userId", user.ID).Msg("user logged in")
	result := api.OK(api.MsgLoggedIn)
	result.User = user.Sanitized()
	result.AccessToken = accessToken
	result.RefreshToken = refreshToken
	return result
}

// Logout revokes a single refresh token. A token with no live record fails,
// so a second logout with the same token is an InvalidToken result.
func (s *Service) Logout(ctx context.Context, refreshToken string) api.Result {
	if err := s.validator.ValidateRefreshToken(refreshToken); err != nil {
		return validationFailure(err)
	}

	removed, err := s.refreshTokens.Revoke(ctx, refreshToken)
	if err != nil {
		return s.unexpected(err, api.MsgLogoutError)
	}
	if !removed {
		return api.Fail(api.KindInvalidToken, api.MsgInvalidRefreshToken)
	}
	return api.OK(api.MsgLoggedOut)
}

// LogoutAll revokes every refresh token held by userID. Access tokens already
// issued stay valid until they expire.
func (s *Service) LogoutAll(ctx context.Context, userID string) api.Result {
	if blank(userID) {
		return api.Fail(api.KindInvalidToken, api.MsgUnauthorized)
	}
	n, err := s.refreshTokens.RevokeAll(ctx, userID)
	if err != nil {
		return s.unexpected(err, api.MsgLogoutError)
	}
	log.Info().Str("userId", userID).Int("revoked", n).Msg("all sessions logged out")
	return api.OK(api.MsgLoggedOutAll)
}

// Profile returns the stored principal for userID without its password hash
func (s *Service) Profile(ctx context.Context, userID string) api.Result {
	user, err := s.users.FindPrincipalByID(ctx, userID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return api.Fail(api.KindUserNotFound, api.MsgUserNotFound)
	}
	if err != nil {
		return s.unexpected(errors.Wrap(err, "Service.Profile FindPrincipalByID"), api.MsgProfileError)
	}
	result := api.OK(api.MsgProfileRetrieved)
	result.User = user.Sanitized()
	return result
}

// EnsureAdmin creates an admin principal for email unless one already exists.
// An existing principal is returned as is, whatever its role.
func (s *Service) EnsureAdmin(ctx context.Context, name, email, password string) (*users.User, error) {
	if err := s.validator.ValidateRegistration(name, email, password); err != nil {
		return nil, err
	}

	existing, err := s.users.FindPrincipalByEmail(ctx, email)
	if err == nil {
		if !existing.IsAdmin() {
			log.Warn().Str("userId", existing.ID).Msg("admin email belongs to a non-admin user")
		}
		return existing.Sanitized(), nil
	}
	if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, errors.Wrap(err, "Service.EnsureAdmin FindPrincipalByEmail")
	}

	user, err := s.newPrincipal(name, email, password, users.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if err := s.users.InsertPrincipal(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEmail) {
			return s.EnsureAdmin(ctx, name, email, password)
		}
		return nil, errors.Wrap(err, "Service.EnsureAdmin InsertPrincipal")
	}
	log.Info().Str("userId", user.ID).Str("email", email).Msg("admin user created")
	return user.Sanitized(), nil
}

func (s *Service) newPrincipal(name, email, password string, role users.RoleType) (*users.User, error) {
	if !role.Valid() {
		return nil, errors.Errorf("Service.newPrincipal: unknown role %q", role)
	}
	hash, err := users.HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "Service.newPrincipal HashPassword")
	}
	now := s.nowTime().UTC()
	return &users.User{
		ID:           uuid.New().String(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// timingHash is a valid bcrypt hash that no password is expected to match
func (s *Service) timingHash() string {
	s.dummyHashOnce.Do(func() {
		hash, err := users.HashPassword(uuid.New().String())
		if err != nil {
			log.Error().Err(err).Msg("failed to build timing hash")
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}

func (s *Service) unexpected(err error, message string) api.Result {
	log.Error().Err(err).Msg(message)
	return api.Fail(api.KindUnexpected, message)
}

func validationFailure(err error) api.Result {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return api.Fail(api.KindValidation, verr.Message)
	}
	return api.Fail(api.KindValidation, api.MsgMissingFields)
}
