package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lost-and-found/internal/handler"
	"github.com/iliyamo/lost-and-found/internal/middleware"
)

// RegisterAdmin registers admin endpoints under /v1/admin. Callers need the
// admin role, or the service key without a bearer token.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler, cfg Config) {
	g := e.Group("/v1/admin", cfg.chain(middleware.AdminOnly(cfg.JWTSecret))...)

	// ---- Users ----
	g.GET("/users", h.Users)
	g.PATCH("/users/:id", h.EditUser)
	g.POST("/users/:id/ban", h.Ban)
	g.DELETE("/users/:id/ban", h.Unban)
	g.DELETE("/users/:id", h.Delete)
	g.POST("/users/:id/restore", h.Restore)

	// ---- Support inbox ----
	g.GET("/support", h.Support)

	// ---- Dashboard ----
	if cfg.StatsCache != nil {
		g.GET("/stats", h.Stats, cfg.StatsCache)
	} else {
		g.GET("/stats", h.Stats)
	}
}
