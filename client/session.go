// Package client holds the session on the caller's side of the auth server.
// A Controller keeps the access token in memory, persists only the refresh
// token and a user snapshot, and renews the access token on a timer before
// it expires.
package client

import (
	"github.com/pkg/errors"

	"github.com/jrsteele09/go-session-auth/users"
)

// State is a Controller's position in the session lifecycle
type State int

const (
	StateUninitialized State = iota
	StateHydrating
	StateAuthenticated
	StateAnonymous
	StateRefreshing
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateHydrating:
		return "hydrating"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Session is a point-in-time copy of the controller's state
type Session struct {
	User         *users.User
	AccessToken  string
	RefreshToken string
	Loading      bool
	State        State
}

var (
	ErrClosed         = errors.New("client: controller closed")
	ErrAlreadyStarted = errors.New("client: controller already started")
	ErrNoSession      = errors.New("client: no session")
	// ErrStaleSession is returned when the session was replaced or cleared
	// while a request was in flight; the response was discarded.
	ErrStaleSession = errors.New("client: session changed during request")
)
