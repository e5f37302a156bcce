package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/meetsync/auth-service/internal/handler"
)

// RegisterRoutes wires the auth endpoints and their middleware onto the
// provided Echo instance.
//
//	authMW     – bearer-token validation for protected routes
//	loginLimit – Redis token bucket applied to the login route only
//	serviceMW  – X-Service-Key gate for service-to-service routes
//
// Login, refresh and logout stay outside authMW on purpose: login and
// refresh have no access token yet, and logout must accept an
// already-revoked token to be idempotent.
func RegisterRoutes(e *echo.Echo, h *handler.AuthHandler, authMW, loginLimit, serviceMW echo.MiddlewareFunc) {
	// Used by load balancers and monitoring to verify the service is up.
	e.GET("/healthz", handler.Health)

	g := e.Group("/api/auth")
	g.POST("/login", h.Login, loginLimit)
	g.POST("/refresh", h.Refresh)
	g.POST("/logout", h.Logout)

	// Called by other backend services, never by end users.
	g.POST("/validate-token", h.ValidateToken, serviceMW)

	g.GET("/me", h.Me, authMW)
	g.POST("/change-password", h.ChangePassword, authMW)
}
