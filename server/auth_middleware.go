package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-auth/api"
	"github.com/jrsteele09/go-session-auth/guard"
)

// RequireAuth is middleware that validates a Bearer access token and stores
// the verdict on the request context for the handler.
func (s *Server) RequireAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			verdict := s.guard.CheckAuth(r.Header.Get("Authorization"))
			if !verdict.IsAuthenticated {
				writeResult(w, http.StatusUnauthorized, api.Fail(api.KindInvalidToken, api.MsgUnauthorized))
				return
			}
			next(w, r.WithContext(guard.WithVerdict(r.Context(), verdict)))
		}
	}
}

// RequireRole is RequireAuth plus an exact role match. An authenticated
// caller without the role gets 403.
func (s *Server) RequireRole(role string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			verdict := s.guard.RequireRole(r.Header.Get("Authorization"), role)
			if !verdict.IsAuthenticated {
				writeResult(w, http.StatusUnauthorized, api.Fail(api.KindInvalidToken, api.MsgUnauthorized))
				return
			}
			if !verdict.HasRequiredRole {
				writeResult(w, http.StatusForbidden, api.Fail(api.KindInvalidToken, api.MsgForbidden))
				return
			}
			next(w, r.WithContext(guard.WithVerdict(r.Context(), verdict.Verdict)))
		}
	}
}
