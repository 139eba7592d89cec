package server

// Route path constants
// All application routes are defined here to ensure consistency and prevent typos
const (
	// Auth Routes - issuer and refresher
	RouteAuthRegister     = "/api/auth/register"
	RouteAuthLogin        = "/api/auth/login"
	RouteAuthLogout       = "/api/auth/logout"
	RouteAuthLogoutAll    = "/api/auth/logout-all"
	RouteAuthRefreshToken = "/api/auth/refresh-token"

	// Bearer protected routes
	RouteUserProfile = "/api/protected/user-profile"
	RouteAdminPing   = "/api/admin/ping"

	// Operational routes
	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)
