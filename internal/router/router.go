package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"

	"github.com/labstack/echo/v4"                             // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp" // exposes the metrics registry

	"github.com/iliyamo/lost-and-found/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/lost-and-found/internal/middleware" // import middleware for api keys, JWT authentication and roles
	"github.com/iliyamo/lost-and-found/internal/model"
)

// Config carries what route registration needs besides the handlers.
type Config struct {
	JWTSecret string
	// Gate runs before every /v1 route: the api key check and the rate
	// limiter.
	Gate []echo.MiddlewareFunc
	// StatsCache fronts the dashboard stats endpoint. Nil disables it.
	StatsCache echo.MiddlewareFunc
}

// chain returns the gate followed by mw in a fresh slice.
func (c Config) chain(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(c.Gate)+len(mw))
	out = append(out, c.Gate...)
	return append(out, mw...)
}

// signedIn is the chain of routes open to any authenticated role.
func (c Config) signedIn() []echo.MiddlewareFunc {
	return c.chain(
		middleware.JWTAuth(c.JWTSecret),
		middleware.RequireRole(model.RoleAdmin, model.RoleUser, model.RoleStudent, model.RoleFaculty),
	)
}

// RegisterRoutes registers routes that do not require an api key: the
// health checks and the metrics endpoint.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers all authentication-related routes. Unauthenticated
// operations live under /v1/auth, while the caller's own account lives
// under /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, cfg Config) {
	// Operations that do not require an existing session. Each of these
	// handlers is responsible for generating, exchanging or revoking tokens.
	g := e.Group("/v1/auth", cfg.chain()...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/logout", a.Logout)

	me := e.Group("/v1/me", cfg.signedIn()...)
	me.GET("", a.Me)
	me.PATCH("", a.UpdateProfile)
	me.PUT("/password", a.ChangePassword)
}
