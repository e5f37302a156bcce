package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// ServiceKey gates service-to-service endpoints on a shared secret in the
// X-Service-Key header. The comparison is constant-time so response
// timing cannot be used to recover the key byte by byte.
func ServiceKey(key string) echo.MiddlewareFunc {
	expected := []byte(key)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			provided := []byte(c.Request().Header.Get("X-Service-Key"))
			if subtle.ConstantTimeCompare(provided, expected) != 1 {
				return c.JSON(http.StatusForbidden, echo.Map{
					"error": "invalid_service_key", "message": "invalid service key",
				})
			}
			return next(c)
		}
	}
}
