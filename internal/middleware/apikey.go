package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

// APIKeyHeader carries the client's api key.
const APIKeyHeader = "apikey"

// APIKey rejects requests that carry neither the anonymous nor the service
// key, in the apikey header or query parameter. The service key marks the
// request privileged.
func APIKey(anonKey, serviceKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := c.Request().Header.Get(APIKeyHeader)
			if key == "" {
				key = c.QueryParam(APIKeyHeader)
			}
			switch {
			case key != "" && equal(key, serviceKey):
				c.Set(ctxPrivileged, true)
			case key != "" && equal(key, anonKey):
			default:
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid api key"})
			}
			return next(c)
		}
	}
}

func equal(a, b string) bool { return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1 }
