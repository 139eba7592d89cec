package server

import (
	"net/http"

	"github.com/jrsteele09/go-session-auth/users"
)

func (s *Server) initRoutes() {
	// Issuer and refresher
	s.apiRoute(http.MethodPost, RouteAuthRegister, s.RegisterHandler())
	s.apiRoute(http.MethodPost, RouteAuthLogin, s.LoginHandler())
	s.apiRoute(http.MethodPost, RouteAuthLogout, s.LogoutHandler())
	s.apiRoute(http.MethodPost, RouteAuthRefreshToken, s.RefreshTokenHandler())
	s.apiRoute(http.MethodPost, RouteAuthLogoutAll, s.LogoutAllHandler(), s.RequireAuth())

	// Bearer protected
	s.apiRoute(http.MethodGet, RouteUserProfile, s.UserProfileHandler(), s.RequireAuth())
	s.apiRoute(http.MethodGet, RouteAdminPing, s.AdminPingHandler(), s.RequireRole(string(users.RoleAdmin)))

	// Operational
	s.RegisterRouteFunc("GET "+RouteHealth, s.HealthHandler())
	s.RegisterRouteHandler("GET "+RouteMetrics, s.metrics.Handler())
}

// apiRoute registers a JSON route that answers any other method with a JSON
// 405. The pattern carries no method so the mux does not answer first.
func (s *Server) apiRoute(method, route string, handler http.HandlerFunc, mw ...func(http.HandlerFunc) http.HandlerFunc) {
	chain := append(s.APIMiddleware(method, route), mw...)
	s.routes = append(s.routes, method+" "+route)
	s.mux.Handle(route, ChainMiddleware(handler, chain...))
}
