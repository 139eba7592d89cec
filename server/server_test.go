package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jrsteele09/go-session-auth/auth"
	"github.com/jrsteele09/go-session-auth/guard"
	"github.com/jrsteele09/go-session-auth/internal/config"
	"github.com/jrsteele09/go-session-auth/server"
	"github.com/jrsteele09/go-session-auth/store/memstore"
	"github.com/jrsteele09/go-session-auth/token"
	"github.com/jrsteele09/go-session-auth/token/refresh"
	"github.com/stretchr/testify/require"
)

const (
	accessSecret  = "access-secret-access-secret-0123456789"
	refreshSecret = "refresh-secret-refresh-secret-0123456789"
	allowedOrigin = "http://localhost:3000"
)

type resultBody struct {
	Success      bool   `json:"success"`
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         *struct {
		ID           string `json:"id"`
		Email        string `json:"email"`
		Role         string `json:"role"`
		PasswordHash string `json:"passwordHash"`
	} `json:"user"`
}

type fixture struct {
	srv     *server.Server
	service *auth.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	t.Setenv("ENV", "TEST")
	t.Setenv("JWT_ACCESS_SECRET", accessSecret)
	t.Setenv("JWT_REFRESH_SECRET", refreshSecret)
	t.Setenv("ALLOWED_ORIGINS", allowedOrigin)
	cfg, err := config.Load()
	require.NoError(t, err)

	accessSigner, err := token.NewHMACSigner(accessSecret)
	require.NoError(t, err)
	refreshSigner, err := token.NewHMACSigner(refreshSecret)
	require.NoError(t, err)

	s := memstore.New()
	access := token.NewManager(token.NewCodec(accessSigner))
	refreshManager := refresh.NewManager(s, s, token.NewCodec(refreshSigner), access)
	service, err := auth.NewService(s, access, refreshManager)
	require.NoError(t, err)

	srv, err := server.New(cfg, service, refreshManager, guard.New(access))
	require.NoError(t, err)
	return &fixture{srv: srv, service: service}
}

func (f *fixture) do(t *testing.T, method, path, body, bearer string) (*httptest.ResponseRecorder, resultBody) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	var res resultBody
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&res))
	}
	return rec, res
}

func (f *fixture) login(t *testing.T, email, password string) resultBody {
	t.Helper()
	rec, res := f.do(t, http.MethodPost, server.RouteAuthLogin,
		`{"email":"`+email+`","password":"`+password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	return res
}

func TestServer_RegisterLoginProfile(t *testing.T) {
	f := newFixture(t)

	rec, res := f.do(t, http.MethodPost, server.RouteAuthRegister,
		`{"name":"Ann","email":"ann@x.com","password":"pw123456"}`, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	require.True(t, res.Success)
	require.NotNil(t, res.User)
	require.Equal(t, "user", res.User.Role)
	require.Empty(t, res.User.PasswordHash)
	require.NotContains(t, rec.Body.String(), "passwordHash")
	require.Empty(t, res.AccessToken)

	rec, res = f.do(t, http.MethodPost, server.RouteAuthRegister,
		`{"name":"Ann","email":"ann@x.com","password":"pw123456"}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Email already registered", res.Message)

	login := f.login(t, "ann@x.com", "pw123456")
	require.True(t, login.Success)
	require.NotEmpty(t, login.AccessToken)
	require.NotEmpty(t, login.RefreshToken)

	rec, res = f.do(t, http.MethodGet, server.RouteUserProfile, "", login.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ann@x.com", res.User.Email)
	require.NotContains(t, rec.Body.String(), "passwordHash")
}

func TestServer_LoginFailures(t *testing.T) {
	f := newFixture(t)
	_, res := f.do(t, http.MethodPost, server.RouteAuthRegister,
		`{"name":"Ann","email":"ann@x.com","password":"pw123456"}`, "")
	require.True(t, res.Success)

	for name, tc := range map[string]struct {
		body    string
		status  int
		message string
	}{
		"wrong password": {`{"email":"ann@x.com","password":"nope"}`, http.StatusUnauthorized, "Invalid email or password"},
		"unknown email":  {`{"email":"bob@x.com","password":"pw123456"}`, http.StatusUnauthorized, "Invalid email or password"},
		"missing fields": {`{"email":"ann@x.com"}`, http.StatusBadRequest, "Email and password required"},
		"malformed body": {`{"email":`, http.StatusBadRequest, "Invalid request body"},
	} {
		t.Run(name, func(t *testing.T) {
			rec, res := f.do(t, http.MethodPost, server.RouteAuthLogin, tc.body, "")
			require.Equal(t, tc.status, rec.Code)
			require.False(t, res.Success)
			require.Equal(t, tc.message, res.Message)
		})
	}
}

func TestServer_RefreshAndLogout(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, server.RouteAuthRegister, `{"name":"Ann","email":"ann@x.com","password":"pw123456"}`, "")
	login := f.login(t, "ann@x.com", "pw123456")
	body := `{"refreshToken":"` + login.RefreshToken + `"}`

	rec, res := f.do(t, http.MethodPost, server.RouteAuthRefreshToken, body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, res.AccessToken)
	require.Empty(t, res.RefreshToken)

	rec, _ = f.do(t, http.MethodGet, server.RouteUserProfile, "", res.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, res = f.do(t, http.MethodPost, server.RouteAuthLogout, body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, res.Success)

	rec, res = f.do(t, http.MethodPost, server.RouteAuthLogout, body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid refresh token", res.Message)

	rec, res = f.do(t, http.MethodPost, server.RouteAuthRefreshToken, body, "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	require.Equal(t, "Invalid refresh token", res.Message)

	rec, res = f.do(t, http.MethodPost, server.RouteAuthRefreshToken, `{}`, "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Refresh token required", res.Message)
}

func TestServer_LogoutAll(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, server.RouteAuthRegister, `{"name":"Ann","email":"ann@x.com","password":"pw123456"}`, "")
	first := f.login(t, "ann@x.com", "pw123456")
	second := f.login(t, "ann@x.com", "pw123456")

	rec, _ := f.do(t, http.MethodPost, server.RouteAuthLogoutAll, "", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, res := f.do(t, http.MethodPost, server.RouteAuthLogoutAll, "", first.AccessToken)
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, res.Success)

	for _, rt := range []string{first.RefreshToken, second.RefreshToken} {
		rec, _ = f.do(t, http.MethodPost, server.RouteAuthRefreshToken, `{"refreshToken":"`+rt+`"}`, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestServer_Guarded(t *testing.T) {
	f := newFixture(t)
	f.do(t, http.MethodPost, server.RouteAuthRegister, `{"name":"Ann","email":"ann@x.com","password":"pw123456"}`, "")
	_, err := f.service.EnsureAdmin(context.Background(), "Root", "root@x.com", "rootpass123")
	require.NoError(t, err)

	user := f.login(t, "ann@x.com", "pw123456")
	admin := f.login(t, "root@x.com", "rootpass123")

	for name, tc := range map[string]struct {
		path   string
		bearer string
		status int
	}{
		"profile without token":   {server.RouteUserProfile, "", http.StatusUnauthorized},
		"profile with garbage":    {server.RouteUserProfile, "garbage", http.StatusUnauthorized},
		"admin ping as user":      {server.RouteAdminPing, user.AccessToken, http.StatusForbidden},
		"admin ping as admin":     {server.RouteAdminPing, admin.AccessToken, http.StatusOK},
		"admin ping unauthed":     {server.RouteAdminPing, "", http.StatusUnauthorized},
		"refresh token as bearer": {server.RouteUserProfile, user.RefreshToken, http.StatusUnauthorized},
	} {
		t.Run(name, func(t *testing.T) {
			rec, _ := f.do(t, http.MethodGet, tc.path, "", tc.bearer)
			require.Equal(t, tc.status, rec.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, server.RouteUserProfile, nil)
	req.Header.Set("Authorization", "bearer "+user.AccessToken)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	rec, res := f.do(t, http.MethodGet, server.RouteAuthLogin, "", "")
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	require.Equal(t, http.MethodPost, rec.Header().Get("Allow"))
	require.Equal(t, "Method not allowed", res.Message)
}

func TestServer_CorsPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, server.RouteAuthLogin, nil)
	req.Header.Set("Origin", allowedOrigin)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, allowedOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")

	req = httptest.NewRequest(http.MethodOptions, server.RouteAuthLogin, nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, server.RouteHealth, nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"status":"ok"`)

	f.do(t, http.MethodPost, server.RouteAuthLogin, `{"email":"nobody@x.com","password":"pw"}`, "")

	req = httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil)
	rec = httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `session_auth_http_requests_total{code="401",method="POST",path="/api/auth/login"} 1`)
	require.Contains(t, body, `session_auth_auth_outcomes_total{operation="login",outcome="invalid_credentials"} 1`)
}

func TestServer_MetricsFoldUnknownMethods(t *testing.T) {
	f := newFixture(t)
	for _, method := range []string{"FOOBAR", "BAZQUX"} {
		rec, _ := f.do(t, method, server.RouteAuthLogin, "", "")
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, server.RouteMetrics, nil)
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)
	body := rec.Body.String()
	require.Contains(t, body, `session_auth_http_requests_total{code="405",method="other",path="/api/auth/login"} 2`)
	require.NotContains(t, body, "FOOBAR")
	require.NotContains(t, body, "BAZQUX")
}
