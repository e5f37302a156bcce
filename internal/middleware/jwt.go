package middleware // middleware provides shared request processing for handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/meetsync/auth-service/internal/token"
)

// Context keys populated by Auth for downstream handlers.
const (
	ContextUserID = "user_id"
	ContextJTI    = "jti"
	ContextToken  = "token"
	ContextClaims = "claims"
)

// Auth returns an Echo middleware that validates a Bearer access token and
// injects the authenticated identity into the request context. All token
// failures map to 401 with a kind-specific message (expired vs invalid);
// only a failed denylist lookup under the fail-closed policy becomes a
// 503, so monitoring can tell dependency outage from bad credentials.
func Auth(v *token.Validator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "missing_token", "message": "authorization header required",
				})
			}
			if !strings.HasPrefix(header, "Bearer ") {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "invalid_token", "message": "invalid authorization header format",
				})
			}
			raw := strings.TrimPrefix(header, "Bearer ")

			claims, err := v.Validate(c.Request().Context(), raw)
			if err != nil {
				switch {
				case errors.Is(err, token.ErrExpired):
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"error": "token_expired", "message": "token expired",
					})
				case errors.Is(err, token.ErrRevoked):
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"error": "token_revoked", "message": "token revoked",
					})
				case errors.Is(err, token.ErrRevocationUnavailable):
					return c.JSON(http.StatusServiceUnavailable, echo.Map{
						"error": "store_unavailable", "message": "revocation store unavailable",
					})
				default:
					return c.JSON(http.StatusUnauthorized, echo.Map{
						"error": "invalid_token", "message": "invalid token",
					})
				}
			}
			// Refresh and service tokens never pass user-facing routes.
			uid, uidErr := claims.UserID()
			if claims.Type != token.TypeAccess || uidErr != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{
					"error": "invalid_token", "message": "invalid token",
				})
			}

			c.Set(ContextUserID, uid)
			c.Set(ContextJTI, claims.ID)
			c.Set(ContextToken, raw)
			c.Set(ContextClaims, claims)
			return next(c)
		}
	}
}
