package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lost-and-found/internal/handler"
)

// RegisterItems registers item endpoints under /v1. Browsing only needs an
// api key; posting, claiming and the per-item message figures need a
// signed-in user.
func RegisterItems(e *echo.Echo, h *handler.ItemHandler, cfg Config) {
	pub := e.Group("/v1", cfg.chain()...)
	pub.GET("/items", h.List)
	pub.GET("/items/updating", h.Updating)
	pub.GET("/items/:id", h.Get)

	g := e.Group("/v1", cfg.signedIn()...)
	g.POST("/items", h.Create)
	g.GET("/me/items", h.Mine)
	g.POST("/items/:id/claim", h.Claim)
	g.DELETE("/items/:id/claim", h.Unclaim)
	g.GET("/items/:id/unread", h.Unread)
	g.GET("/items/:id/contacts", h.Contacts)
	g.GET("/items/:id/conversations", h.Conversations) // poster or admin, checked in the handler
}
