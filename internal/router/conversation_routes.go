package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lost-and-found/internal/handler"
)

// RegisterConversations registers conversation and message endpoints under
// /v1. Every route requires a signed-in user; participation is checked in
// the handler.
func RegisterConversations(e *echo.Echo, h *handler.ConversationHandler, cfg Config) {
	g := e.Group("/v1", cfg.signedIn()...)
	g.POST("/conversations", h.Contact)
	g.GET("/conversations", h.Mine)
	g.GET("/conversations/unread", h.Unread)
	g.POST("/support", h.Support)

	g.GET("/conversations/:id/messages", h.Messages)
	g.POST("/conversations/:id/messages", h.Send)
	g.POST("/conversations/:id/read", h.MarkRead)
	// Server-sent events; EventSource clients may pass the token as
	// ?access_token= since they cannot set headers.
	g.GET("/conversations/:id/stream", h.Stream)
}
