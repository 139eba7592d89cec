package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-auth/api"
	"github.com/jrsteele09/go-session-auth/guard"
)

// Operation labels for the outcome counter
const (
	opRegister  = "register"
	opLogin     = "login"
	opLogout    = "logout"
	opLogoutAll = "logout_all"
	opRefresh   = "refresh"
	opProfile   = "profile"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// RegisterHandler creates a principal. Success is 201, not 200.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.malformed(w, opRegister)
			return
		}

		result := s.auth.Register(r.Context(), req.Name, req.Email, req.Password)
		status := api.StatusCode(result)
		if result.Success {
			status = http.StatusCreated
		}
		s.respond(w, opRegister, status, result)
	}
}

func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.malformed(w, opLogin)
			return
		}

		result := s.auth.Login(r.Context(), req.Email, req.Password)
		s.respond(w, opLogin, api.StatusCode(result), result)
	}
}

func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshTokenRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.malformed(w, opLogout)
			return
		}

		result := s.auth.Logout(r.Context(), req.RefreshToken)
		s.respond(w, opLogout, api.StatusCode(result), result)
	}
}

// RefreshTokenHandler exchanges a refresh token for a new access token
func (s *Server) RefreshTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req refreshTokenRequest
		if err := decodeJSON(w, r, &req); err != nil {
			s.malformed(w, opRefresh)
			return
		}

		result := s.refresh.Refresh(r.Context(), req.RefreshToken)
		s.respond(w, opRefresh, api.StatusCode(result), result)
	}
}

// LogoutAllHandler must sit behind RequireAuth
func (s *Server) LogoutAllHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verdict, _ := guard.FromContext(r.Context())
		result := s.auth.LogoutAll(r.Context(), verdict.UserID)
		s.respond(w, opLogoutAll, api.StatusCode(result), result)
	}
}

// UserProfileHandler must sit behind RequireAuth
func (s *Server) UserProfileHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verdict, ok := guard.FromContext(r.Context())
		if !ok {
			s.respond(w, opProfile, http.StatusUnauthorized, api.Fail(api.KindInvalidToken, api.MsgUnauthorized))
			return
		}
		result := s.auth.Profile(r.Context(), verdict.UserID)
		s.respond(w, opProfile, api.StatusCode(result), result)
	}
}

type adminPingResponse struct {
	Success bool   `json:"success"`
	UserID  string `json:"userId"`
	Role    string `json:"role"`
}

// AdminPingHandler echoes the caller's identity. It exists to exercise
// RequireRole end to end.
func (s *Server) AdminPingHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		verdict, _ := guard.FromContext(r.Context())
		writeJSON(w, http.StatusOK, adminPingResponse{
			Success: true,
			UserID:  verdict.UserID,
			Role:    verdict.Role,
		})
	}
}

type healthResponse struct {
	Status string `json:"status"`
	App    string `json:"app"`
	Env    string `json:"env"`
}

func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{
			Status: "ok",
			App:    s.config.GetAppName(),
			Env:    s.env,
		})
	}
}

func (s *Server) respond(w http.ResponseWriter, operation string, status int, result api.Result) {
	s.metrics.ObserveResult(operation, result)
	writeResult(w, status, result)
}

func (s *Server) malformed(w http.ResponseWriter, operation string) {
	s.respond(w, operation, http.StatusBadRequest, api.Fail(api.KindValidation, api.MsgMalformedBody))
}
