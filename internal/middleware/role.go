package middleware // middleware provides shared request processing for handlers

import (
	"net/http" // http package defines standard HTTP status codes

	"github.com/labstack/echo/v4" // echo provides middleware chaining and context

	"github.com/iliyamo/lost-and-found/internal/model"
)

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  It assumes JWTAuth
// has already stored the role in the context.  If the user's role is not in
// the allowed set, the request is aborted with a 403 Forbidden response.
func RequireRole(roles ...model.Role) echo.MiddlewareFunc {
	allowed := make(map[model.Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[Role(c)] {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "forbidden"})
			}
			return next(c)
		}
	}
}

// AdminOnly admits admins authenticated by JWT, and privileged requests
// without a bearer token, which act as model.SystemActor.
func AdminOnly(secret string) echo.MiddlewareFunc {
	auth := JWTAuth(secret)
	admin := RequireRole(model.RoleAdmin)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		guarded := auth(admin(next))
		return func(c echo.Context) error {
			if IsPrivileged(c) && c.Request().Header.Get("Authorization") == "" {
				c.Set(ctxUserID, model.SystemActor)
				c.Set(ctxRole, model.RoleAdmin)
				return next(c)
			}
			return guarded(c)
		}
	}
}
