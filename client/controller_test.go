package client_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-session-auth/api"
	"github.com/jrsteele09/go-session-auth/client"
	apperrors "github.com/jrsteele09/go-session-auth/internal/errors"
	"github.com/jrsteele09/go-session-auth/users"
)

var ann = &users.User{ID: "user-1", Name: "Ann", Email: "ann@x.com", Role: users.RoleUser}

// fakeAPI answers like the server by default; tests override single calls
type fakeAPI struct {
	mu           sync.Mutex
	refreshCalls int
	logoutTokens []string
	refreshFn    func(ctx context.Context, refreshToken string) (api.Result, error)
	loginFn      func(ctx context.Context, email, password string) (api.Result, error)
}

func (f *fakeAPI) Register(_ context.Context, name, email, _ string) (api.Result, error) {
	r := api.OK(api.MsgRegistered)
	r.User = &users.User{ID: "user-2", Name: name, Email: email, Role: users.RoleUser}
	return r, nil
}

func (f *fakeAPI) Login(ctx context.Context, email, password string) (api.Result, error) {
	f.mu.Lock()
	fn := f.loginFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, email, password)
	}
	if password != "pw123456" {
		return api.Fail(api.KindInvalidCredentials, api.MsgInvalidCredentials), nil
	}
	r := api.OK(api.MsgLoggedIn)
	r.User = ann.Clone()
	r.AccessToken = "access-0"
	r.RefreshToken = "refresh-0"
	return r, nil
}

func (f *fakeAPI) Logout(_ context.Context, refreshToken string) (api.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, refreshToken)
	return api.OK(api.MsgLoggedOut), nil
}

func (f *fakeAPI) Refresh(ctx context.Context, refreshToken string) (api.Result, error) {
	f.mu.Lock()
	f.refreshCalls++
	n, fn := f.refreshCalls, f.refreshFn
	f.mu.Unlock()
	if fn != nil {
		return fn(ctx, refreshToken)
	}
	r := api.OK(api.MsgRefreshed)
	r.AccessToken = fmt.Sprintf("access-%d", n)
	return r, nil
}

func (f *fakeAPI) Profile(_ context.Context, accessToken string) (api.Result, error) {
	if accessToken == "" {
		return api.Fail(api.KindInvalidToken, api.MsgUnauthorized), nil
	}
	r := api.OK(api.MsgProfileRetrieved)
	r.User = ann.Clone()
	r.User.Name = "Ann Updated"
	return r, nil
}

func (f *fakeAPI) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

func (f *fakeAPI) setRefresh(fn func(ctx context.Context, refreshToken string) (api.Result, error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshFn = fn
}

func newController(t *testing.T, a client.API, p client.Persister, options ...client.Option) *client.Controller {
	t.Helper()
	options = append([]client.Option{
		client.WithRefreshInterval(time.Hour),
		client.WithAccessTokenTTL(2 * time.Hour),
		client.WithRequestTimeout(time.Second),
	}, options...)
	c, err := client.NewController(a, p, options...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func storedSession(t *testing.T) *client.MemoryPersister {
	t.Helper()
	p := client.NewMemoryPersister()
	require.NoError(t, p.Save(&client.PersistedSession{RefreshToken: "refresh-0", User: ann.Clone()}))
	return p
}

func TestNewController_RejectsIntervalNotShorterThanTTL(t *testing.T) {
	_, err := client.NewController(&fakeAPI{}, nil,
		client.WithRefreshInterval(15*time.Minute), client.WithAccessTokenTTL(15*time.Minute))
	require.Error(t, err)

	_, err = client.NewController(nil, nil)
	require.Error(t, err)

	c, err := client.NewController(&fakeAPI{}, nil)
	require.NoError(t, err)
	require.Equal(t, client.StateUninitialized, c.State())
}

func TestController_StartWithoutStoredSession(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, client.NewMemoryPersister())

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, client.StateAnonymous, c.State())
	require.False(t, c.IsAuthenticated())
	require.False(t, c.Session().Loading)
	require.Zero(t, f.calls())

	require.ErrorIs(t, c.Start(context.Background()), client.ErrAlreadyStarted)
}

func TestController_StartHydratesStoredSession(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, storedSession(t))

	require.NoError(t, c.Start(context.Background()))
	s := c.Session()
	require.Equal(t, client.StateAuthenticated, s.State)
	require.Equal(t, "access-1", s.AccessToken)
	require.Equal(t, "refresh-0", s.RefreshToken)
	require.Equal(t, ann.Email, s.User.Email)
	require.False(t, s.Loading)
	require.True(t, c.IsAuthenticated())
}

func TestController_StartClearsSessionWhenRefreshFails(t *testing.T) {
	f := &fakeAPI{}
	f.setRefresh(func(context.Context, string) (api.Result, error) {
		return api.Fail(api.KindInvalidToken, api.MsgInvalidRefreshToken), nil
	})
	p := storedSession(t)
	c := newController(t, f, p)

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, client.StateAnonymous, c.State())
	require.Nil(t, c.Session().User)

	stored, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, stored)
}

func TestController_StartIgnoresPartialStoredSession(t *testing.T) {
	f := &fakeAPI{}
	p := client.NewMemoryPersister()
	require.NoError(t, p.Save(&client.PersistedSession{RefreshToken: "refresh-0"}))
	c := newController(t, f, p)

	require.NoError(t, c.Start(context.Background()))
	require.Equal(t, client.StateAnonymous, c.State())
	require.Zero(t, f.calls())
}

func TestController_LoginPersistsRefreshTokenOnly(t *testing.T) {
	p := client.NewMemoryPersister()
	c := newController(t, &fakeAPI{}, p)
	require.NoError(t, c.Start(context.Background()))

	user, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)
	require.Equal(t, ann.ID, user.ID)
	require.Equal(t, client.StateAuthenticated, c.State())
	require.Equal(t, "access-0", c.AccessToken())

	stored, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-0", stored.RefreshToken)
	require.Equal(t, ann.ID, stored.User.ID)
}

func TestController_LoginFailureKeepsState(t *testing.T) {
	c := newController(t, &fakeAPI{}, client.NewMemoryPersister())
	require.NoError(t, c.Start(context.Background()))

	_, err := c.Login(context.Background(), ann.Email, "wrong")
	require.ErrorIs(t, err, apperrors.ErrInvalidCredentials)
	var resultErr *client.ResultError
	require.True(t, errors.As(err, &resultErr))
	require.Equal(t, api.MsgInvalidCredentials, resultErr.Result.Message)
	require.Equal(t, client.StateAnonymous, c.State())
	require.False(t, c.IsAuthenticated())
}

func TestController_RegisterDoesNotStartSession(t *testing.T) {
	c := newController(t, &fakeAPI{}, client.NewMemoryPersister())
	require.NoError(t, c.Start(context.Background()))

	user, err := c.Register(context.Background(), "Bob", "bob@x.com", "pw123456")
	require.NoError(t, err)
	require.Equal(t, "bob@x.com", user.Email)
	require.Equal(t, client.StateAnonymous, c.State())
}

func TestController_LogoutClearsAndRevokes(t *testing.T) {
	f := &fakeAPI{}
	p := client.NewMemoryPersister()
	c := newController(t, f, p)
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	require.NoError(t, c.Logout(context.Background()))
	require.Equal(t, client.StateAnonymous, c.State())
	require.Empty(t, c.AccessToken())
	require.Equal(t, []string{"refresh-0"}, f.logoutTokens)

	stored, err := p.Load()
	require.NoError(t, err)
	require.Nil(t, stored)

	require.ErrorIs(t, c.RefreshNow(context.Background()), client.ErrNoSession)
}

func TestController_TimerRenewsAccessToken(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, client.NewMemoryPersister(),
		client.WithRefreshInterval(10*time.Millisecond),
		client.WithAccessTokenTTL(time.Second))
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return f.calls() >= 3 }, 2*time.Second, 5*time.Millisecond)
	require.Equal(t, client.StateAuthenticated, c.State())
	require.NotEqual(t, "access-0", c.AccessToken())
}

func TestController_LogoutDisarmsTimer(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, client.NewMemoryPersister(),
		client.WithRefreshInterval(10*time.Millisecond),
		client.WithAccessTokenTTL(time.Second))
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return f.calls() >= 1 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, c.Logout(context.Background()))
	after := f.calls()
	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, f.calls(), after+1)
	require.Equal(t, client.StateAnonymous, c.State())
}

func TestController_TimerFailureSignsOut(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, client.NewMemoryPersister(),
		client.WithRefreshInterval(10*time.Millisecond),
		client.WithAccessTokenTTL(time.Second))
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	f.setRefresh(func(context.Context, string) (api.Result, error) {
		return api.Fail(api.KindInvalidToken, api.MsgInvalidRefreshToken), nil
	})
	require.Eventually(t, func() bool { return c.State() == client.StateAnonymous }, 2*time.Second, 5*time.Millisecond)
	require.False(t, c.IsAuthenticated())
}

func TestController_RefreshInFlightDuringLogoutIsDiscarded(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, client.NewMemoryPersister())
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	started := make(chan struct{})
	release := make(chan struct{})
	f.setRefresh(func(context.Context, string) (api.Result, error) {
		close(started)
		<-release
		r := api.OK(api.MsgRefreshed)
		r.AccessToken = "late-access"
		return r, nil
	})

	done := make(chan error, 1)
	go func() { done <- c.RefreshNow(context.Background()) }()
	<-started
	require.Equal(t, client.StateRefreshing, c.State())

	require.NoError(t, c.Logout(context.Background()))
	close(release)

	require.ErrorIs(t, <-done, client.ErrStaleSession)
	require.Equal(t, client.StateAnonymous, c.State())
	require.Empty(t, c.AccessToken())
	require.Nil(t, c.Session().User)
}

func TestController_RefreshTimeoutSignsOut(t *testing.T) {
	f := &fakeAPI{}
	c := newController(t, f, client.NewMemoryPersister(), client.WithRequestTimeout(20*time.Millisecond))
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	f.setRefresh(func(ctx context.Context, _ string) (api.Result, error) {
		<-ctx.Done()
		return api.Result{}, ctx.Err()
	})
	err = c.RefreshNow(context.Background())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, client.StateAnonymous, c.State())
}

func TestController_RotatedRefreshTokenIsPersisted(t *testing.T) {
	f := &fakeAPI{}
	p := client.NewMemoryPersister()
	c := newController(t, f, p)
	_, err := c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	f.setRefresh(func(context.Context, string) (api.Result, error) {
		r := api.OK(api.MsgRefreshed)
		r.AccessToken = "access-rotated"
		r.RefreshToken = "refresh-rotated"
		return r, nil
	})
	require.NoError(t, c.RefreshNow(context.Background()))
	require.Equal(t, "refresh-rotated", c.Session().RefreshToken)

	stored, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-rotated", stored.RefreshToken)
}

func TestController_ProfileUpdatesSnapshot(t *testing.T) {
	c := newController(t, &fakeAPI{}, client.NewMemoryPersister())
	_, err := c.Profile(context.Background())
	require.ErrorIs(t, err, client.ErrNoSession)

	_, err = c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)
	user, err := c.Profile(context.Background())
	require.NoError(t, err)
	require.Equal(t, "Ann Updated", user.Name)
	require.Equal(t, "Ann Updated", c.Session().User.Name)
}

func TestController_CloseKeepsStoredSession(t *testing.T) {
	f := &fakeAPI{}
	p := client.NewMemoryPersister()
	c, err := client.NewController(f, p,
		client.WithRefreshInterval(10*time.Millisecond),
		client.WithAccessTokenTTL(time.Second))
	require.NoError(t, err)
	_, err = c.Login(context.Background(), ann.Email, "pw123456")
	require.NoError(t, err)

	require.NoError(t, c.Close())
	after := f.calls()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, after, f.calls())

	_, err = c.Login(context.Background(), ann.Email, "pw123456")
	require.ErrorIs(t, err, client.ErrClosed)

	stored, err := p.Load()
	require.NoError(t, err)
	require.Equal(t, "refresh-0", stored.RefreshToken)
}
