package middleware

// identity.go defines the request-scoped identity shared across middleware
// files and handlers: the authenticated user id, the role code and whether
// the request carried the privileged api key.

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lost-and-found/internal/model"
)

// Context keys.
const (
	ctxUserID     = "user_id"
	ctxRole       = "role"
	ctxPrivileged = "privileged"
)

// UserID returns the authenticated user id, or "" when the request is
// anonymous. Privileged requests without a bearer token act as
// model.SystemActor.
func UserID(c echo.Context) string {
	s, _ := c.Get(ctxUserID).(string)
	return s
}

// Role returns the role code of the authenticated user.
func Role(c echo.Context) model.Role {
	r, _ := c.Get(ctxRole).(model.Role)
	return r
}

// IsAdmin reports whether the request acts with admin rights.
func IsAdmin(c echo.Context) bool { return Role(c) == model.RoleAdmin }

// IsPrivileged reports whether the request presented the service key.
func IsPrivileged(c echo.Context) bool {
	b, _ := c.Get(ctxPrivileged).(bool)
	return b
}

// rateUserID is UserID with "anon" for anonymous requests.
func rateUserID(c echo.Context) string {
	if id := UserID(c); id != "" {
		return id
	}
	return "anon"
}
