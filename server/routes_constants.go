package server

// Route paths served by the auth service.
const (
	RouteLogin    = "/login"
	RouteCallback = "/callback"
	RouteMe       = "/me"

	RouteHealth  = "/healthz"
	RouteMetrics = "/metrics"
)

// PublicRoutes never require a credential.
var PublicRoutes = []string{RouteLogin, RouteCallback, RouteHealth, RouteMetrics}
