package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-session-auth/api"
	"github.com/jrsteele09/go-session-auth/server"
)

// API is the network boundary of the controller. A non-nil error means the
// server could not be reached; a server-side failure is a Result with
// Success false.
type API interface {
	Register(ctx context.Context, name, email, password string) (api.Result, error)
	Login(ctx context.Context, email, password string) (api.Result, error)
	Logout(ctx context.Context, refreshToken string) (api.Result, error)
	Refresh(ctx context.Context, refreshToken string) (api.Result, error)
	Profile(ctx context.Context, accessToken string) (api.Result, error)
}

// ResultError carries a failed Result. It unwraps to the sentinel error for
// the result's kind.
type ResultError struct {
	Result api.Result
}

func (e *ResultError) Error() string {
	return e.Result.Message
}

func (e *ResultError) Unwrap() error {
	return e.Result.Err()
}

func resultError(result api.Result) error {
	if result.Success {
		return nil
	}
	return &ResultError{Result: result}
}

const maxResponseBytes = 1 << 20

// HTTPAPI talks to the server package's JSON routes
type HTTPAPI struct {
	baseURL string
	client  *retryablehttp.Client
}

var _ API = (*HTTPAPI)(nil)

type HTTPAPIOption func(*HTTPAPI)

// WithRetryMax sets how many times a request is retried after a connection
// error. Responses from the server are never retried.
func WithRetryMax(n int) HTTPAPIOption {
	return func(h *HTTPAPI) {
		h.client.RetryMax = n
	}
}

// WithHTTPClient replaces the pooled transport, mainly for tests
func WithHTTPClient(c *http.Client) HTTPAPIOption {
	return func(h *HTTPAPI) {
		h.client.HTTPClient = c
	}
}

// WithHTTPLogger routes retry logging through l
func WithHTTPLogger(l zerolog.Logger) HTTPAPIOption {
	return func(h *HTTPAPI) {
		h.client.Logger = leveledLogger{l}
	}
}

func NewHTTPAPI(baseURL string, options ...HTTPAPIOption) (*HTTPAPI, error) {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		return nil, errors.New("[NewHTTPAPI] base url is required")
	}
	h := &HTTPAPI{
		baseURL: baseURL,
		client: &retryablehttp.Client{
			HTTPClient:   cleanhttp.DefaultPooledClient(),
			RetryWaitMin: 100 * time.Millisecond,
			RetryWaitMax: 1 * time.Second,
			RetryMax:     2,
			CheckRetry:   retryConnectionErrors,
			Backoff:      retryablehttp.DefaultBackoff,
			ErrorHandler: retryablehttp.PassthroughErrorHandler,
		},
	}
	for _, opt := range options {
		opt(h)
	}
	return h, nil
}

// retryConnectionErrors retries only when no response arrived. Login and
// register are not idempotent, so a 5xx is returned to the caller as is.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

func (h *HTTPAPI) Register(ctx context.Context, name, email, password string) (api.Result, error) {
	body := map[string]string{"name": name, "email": email, "password": password}
	result, err := h.do(ctx, http.MethodPost, server.RouteAuthRegister, body, "", api.KindInvalidCredentials)
	if err != nil {
		return result, err
	}
	// A taken email shares its 400 with validation failures.
	if !result.Success && result.Kind == api.KindValidation && result.Message == api.MsgEmailRegistered {
		result.Kind = api.KindDuplicateEmail
	}
	return result, nil
}

func (h *HTTPAPI) Login(ctx context.Context, email, password string) (api.Result, error) {
	body := map[string]string{"email": email, "password": password}
	return h.do(ctx, http.MethodPost, server.RouteAuthLogin, body, "", api.KindInvalidCredentials)
}

func (h *HTTPAPI) Logout(ctx context.Context, refreshToken string) (api.Result, error) {
	body := map[string]string{"refreshToken": refreshToken}
	return h.do(ctx, http.MethodPost, server.RouteAuthLogout, body, "", api.KindInvalidToken)
}

func (h *HTTPAPI) Refresh(ctx context.Context, refreshToken string) (api.Result, error) {
	body := map[string]string{"refreshToken": refreshToken}
	return h.do(ctx, http.MethodPost, server.RouteAuthRefreshToken, body, "", api.KindInvalidToken)
}

func (h *HTTPAPI) Profile(ctx context.Context, accessToken string) (api.Result, error) {
	return h.do(ctx, http.MethodGet, server.RouteUserProfile, nil, accessToken, api.KindInvalidToken)
}

// do sends one request and decodes the Result. The wire format carries no
// kind, so it is recovered from the status; unauthorized names the kind a
// 401 means for this route.
func (h *HTTPAPI) do(ctx context.Context, method, route string, body any, bearer string, unauthorized api.Kind) (api.Result, error) {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return api.Result{}, errors.Wrap(err, "HTTPAPI encode request")
		}
	}

	var reqBody any
	if payload != nil {
		reqBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, h.baseURL+route, reqBody)
	if err != nil {
		return api.Result{}, errors.Wrap(err, "HTTPAPI new request")
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return api.Result{}, errors.Wrapf(err, "HTTPAPI %s %s", method, route)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return api.Result{}, errors.Wrapf(err, "HTTPAPI %s %s read body", method, route)
	}

	var result api.Result
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&result); err != nil {
		result = api.Fail(api.KindUnexpected, fmt.Sprintf("unexpected response: %s", http.StatusText(resp.StatusCode)))
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		result.Success = false
	}
	if !result.Success {
		result.Kind = api.KindFromStatus(resp.StatusCode)
		if resp.StatusCode == http.StatusUnauthorized {
			result.Kind = unauthorized
		}
		if result.Message == "" {
			result.Message = http.StatusText(resp.StatusCode)
		}
	}
	return result, nil
}

// leveledLogger adapts zerolog to retryablehttp.LeveledLogger
type leveledLogger struct {
	l zerolog.Logger
}

var _ retryablehttp.LeveledLogger = leveledLogger{}

func (z leveledLogger) Error(msg string, keysAndValues ...interface{}) {
	z.l.Error().Fields(keysAndValues).Msg(msg)
}

func (z leveledLogger) Info(msg string, keysAndValues ...interface{}) {
	z.l.Info().Fields(keysAndValues).Msg(msg)
}

func (z leveledLogger) Debug(msg string, keysAndValues ...interface{}) {
	z.l.Debug().Fields(keysAndValues).Msg(msg)
}

func (z leveledLogger) Warn(msg string, keysAndValues ...interface{}) {
	z.l.Warn().Fields(keysAndValues).Msg(msg)
}
