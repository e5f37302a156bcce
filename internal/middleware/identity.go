package middleware

// identity.go provides typed accessors for the values the Auth middleware
// stores in the Echo context, so handlers do not repeat type assertions.

import (
	"github.com/labstack/echo/v4"

	"github.com/meetsync/auth-service/internal/token"
)

// CurrentUserID returns the authenticated user id, if any.
func CurrentUserID(c echo.Context) (uint64, bool) {
	v, ok := c.Get(ContextUserID).(uint64)
	return v, ok
}

// CurrentJTI returns the jti of the access token on this request, if any.
func CurrentJTI(c echo.Context) (string, bool) {
	v, ok := c.Get(ContextJTI).(string)
	return v, ok && v != ""
}

// CurrentClaims returns the full validated claim set, if any.
func CurrentClaims(c echo.Context) (*token.Claims, bool) {
	v, ok := c.Get(ContextClaims).(*token.Claims)
	return v, ok
}
