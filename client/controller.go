package client

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/go-session-auth/api"
	"github.com/jrsteele09/go-session-auth/users"
)

const (
	DefaultRefreshInterval = 14 * time.Minute
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRequestTimeout  = 10 * time.Second
)

// Controller owns one client session. It is safe for concurrent use; every
// session replacement bumps a generation counter, and a response for an older
// generation is dropped instead of being applied.
type Controller struct {
	api       API
	persister Persister
	logger    zerolog.Logger

	refreshInterval time.Duration
	accessTokenTTL  time.Duration
	requestTimeout  time.Duration

	mu           sync.Mutex
	state        State
	user         *users.User
	accessToken  string
	refreshToken string
	loading      int
	generation   uint64
	closed       bool
	stopTicker   chan struct{}
	tickers      sync.WaitGroup
}

type Option func(*Controller)

// WithRefreshInterval sets how often the access token is renewed. It must be
// shorter than the access token ttl.
func WithRefreshInterval(d time.Duration) Option {
	return func(c *Controller) {
		c.refreshInterval = d
	}
}

// WithAccessTokenTTL tells the controller how long the server's access tokens live
func WithAccessTokenTTL(d time.Duration) Option {
	return func(c *Controller) {
		c.accessTokenTTL = d
	}
}

// WithRequestTimeout bounds every call made through the API
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.requestTimeout = d
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

func NewController(a API, persister Persister, options ...Option) (*Controller, error) {
	if a == nil {
		return nil, errors.New("[NewController] api is required")
	}
	if persister == nil {
		persister = NewMemoryPersister()
	}
	c := &Controller{
		api:             a,
		persister:       persister,
		logger:          log.Logger,
		refreshInterval: DefaultRefreshInterval,
		accessTokenTTL:  DefaultAccessTokenTTL,
		requestTimeout:  DefaultRequestTimeout,
		state:           StateUninitialized,
	}
	for _, opt := range options {
		opt(c)
	}
	if c.refreshInterval <= 0 || c.accessTokenTTL <= 0 || c.requestTimeout <= 0 {
		return nil, errors.New("[NewController] durations must be positive")
	}
	if c.refreshInterval >= c.accessTokenTTL {
		return nil, errors.Errorf("[NewController] refresh interval %s must be shorter than access token ttl %s",
			c.refreshInterval, c.accessTokenTTL)
	}
	return c, nil
}

// Start hydrates the session from the persister. With a stored refresh token
// and user it renews the access token; any failure leaves the controller
// Anonymous with local state cleared. Start returns an error only when the
// controller was already started or closed.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.state != StateUninitialized {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	c.state = StateHydrating
	c.loading++
	defer c.doneLoading()

	stored, err := c.persister.Load()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load stored session")
	}
	if err != nil || !stored.usable() {
		c.clearLocked()
		c.mu.Unlock()
		return nil
	}
	c.user = stored.User
	c.refreshToken = stored.RefreshToken
	gen := c.generation
	c.mu.Unlock()

	if err := c.refresh(ctx, gen, stored.RefreshToken); err != nil {
		c.logger.Debug().Err(err).Msg("stored session could not be renewed")
	}
	return nil
}

// Register creates an account. The session is not changed; log in afterwards.
func (c *Controller) Register(ctx context.Context, name, email, password string) (*users.User, error) {
	if err := c.beginLoading(); err != nil {
		return nil, err
	}
	defer c.doneLoading()

	result, err := c.call(ctx, func(ctx context.Context) (api.Result, error) {
		return c.api.Register(ctx, name, email, password)
	})
	if err != nil {
		return nil, err
	}
	if err := resultError(result); err != nil {
		return nil, err
	}
	return result.User, nil
}

// Login replaces the current session with a new one. On failure the existing
// session is left as it was.
func (c *Controller) Login(ctx context.Context, email, password string) (*users.User, error) {
	if err := c.beginLoading(); err != nil {
		return nil, err
	}
	defer c.doneLoading()

	result, err := c.call(ctx, func(ctx context.Context) (api.Result, error) {
		return c.api.Login(ctx, email, password)
	})
	if err != nil {
		return nil, err
	}
	if err := resultError(result); err != nil {
		return nil, err
	}
	if result.User == nil || result.AccessToken == "" || result.RefreshToken == "" {
		return nil, errors.New("client.Login: incomplete login response")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.generation++
	c.user = result.User
	c.accessToken = result.AccessToken
	c.refreshToken = result.RefreshToken
	c.state = StateAuthenticated
	c.persistLocked()
	c.armTickerLocked()
	return result.User.Clone(), nil
}

// Logout clears the local session first, so an in-flight refresh cannot
// restore it, then revokes the refresh token on the server. The returned
// error only reports the server call; local state is cleared regardless.
func (c *Controller) Logout(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	refreshToken := c.refreshToken
	c.clearLocked()
	c.loading++
	c.mu.Unlock()
	defer c.doneLoading()

	if refreshToken == "" {
		return nil
	}
	result, err := c.call(ctx, func(ctx context.Context) (api.Result, error) {
		return c.api.Logout(ctx, refreshToken)
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("logout request failed")
		return err
	}
	return resultError(result)
}

// RefreshNow renews the access token immediately
func (c *Controller) RefreshNow(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.refreshToken == "" {
		c.mu.Unlock()
		return ErrNoSession
	}
	gen, refreshToken := c.generation, c.refreshToken
	if c.state == StateAuthenticated {
		c.state = StateRefreshing
	}
	c.mu.Unlock()

	return c.refresh(ctx, gen, refreshToken)
}

// Profile fetches the current user and updates the cached snapshot
func (c *Controller) Profile(ctx context.Context) (*users.User, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	gen, accessToken := c.generation, c.accessToken
	c.mu.Unlock()
	if accessToken == "" {
		return nil, ErrNoSession
	}

	result, err := c.call(ctx, func(ctx context.Context) (api.Result, error) {
		return c.api.Profile(ctx, accessToken)
	})
	if err != nil {
		return nil, err
	}
	if err := resultError(result); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return nil, ErrStaleSession
	}
	if result.User != nil {
		c.user = result.User
		c.persistLocked()
	}
	return c.user.Clone(), nil
}

// Session returns a snapshot of the current session
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Session{
		User:         c.user.Clone(),
		AccessToken:  c.accessToken,
		RefreshToken: c.refreshToken,
		Loading:      c.loading > 0,
		State:        c.state,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsAuthenticated is true when both a user and an access token are held
func (c *Controller) IsAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.user != nil && c.accessToken != ""
}

func (c *Controller) AccessToken() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken
}

// Close stops the refresh timer and waits for it to exit. The persisted
// session is kept, so a new Controller can resume it.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	c.disarmTickerLocked()
	c.mu.Unlock()

	c.tickers.Wait()
	return nil
}

// refresh renews the access token for generation gen. Any failure, including
// a timeout, clears the session; a result for a superseded generation is
// dropped.
func (c *Controller) refresh(ctx context.Context, gen uint64, refreshToken string) error {
	result, err := c.call(ctx, func(ctx context.Context) (api.Result, error) {
		return c.api.Refresh(ctx, refreshToken)
	})
	if err == nil {
		err = resultError(result)
	}
	if err == nil && result.AccessToken == "" {
		err = errors.New("client.refresh: response has no access token")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return ErrStaleSession
	}
	if err != nil {
		c.logger.Info().Err(err).Msg("session refresh failed, signing out")
		c.clearLocked()
		return err
	}

	c.accessToken = result.AccessToken
	if result.RefreshToken != "" && result.RefreshToken != c.refreshToken {
		c.refreshToken = result.RefreshToken
		c.persistLocked()
	}
	c.state = StateAuthenticated
	if c.stopTicker == nil {
		c.armTickerLocked()
	}
	return nil
}

func (c *Controller) call(ctx context.Context, fn func(ctx context.Context) (api.Result, error)) (api.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return fn(ctx)
}

// clearLocked drops the in-memory and persisted session and starts a new
// generation
func (c *Controller) clearLocked() {
	c.generation++
	c.user = nil
	c.accessToken = ""
	c.refreshToken = ""
	c.state = StateAnonymous
	c.disarmTickerLocked()
	if err := c.persister.Clear(); err != nil {
		c.logger.Error().Err(err).Msg("failed to clear stored session")
	}
}

func (c *Controller) persistLocked() {
	err := c.persister.Save(&PersistedSession{RefreshToken: c.refreshToken, User: c.user})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to store session")
	}
}

func (c *Controller) beginLoading() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	c.loading++
	return nil
}

func (c *Controller) doneLoading() {
	c.mu.Lock()
	c.loading--
	c.mu.Unlock()
}

func (c *Controller) armTickerLocked() {
	c.disarmTickerLocked()
	stop := make(chan struct{})
	c.stopTicker = stop
	c.tickers.Add(1)
	go c.runTicker(stop)
}

func (c *Controller) disarmTickerLocked() {
	if c.stopTicker != nil {
		close(c.stopTicker)
		c.stopTicker = nil
	}
}

func (c *Controller) runTicker(stop <-chan struct{}) {
	defer c.tickers.Done()
	ticker := time.NewTicker(c.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.RefreshNow(context.Background()); err != nil && !errors.Is(err, ErrStaleSession) {
				c.logger.Debug().Err(err).Msg("scheduled refresh failed")
			}
		}
	}
}
