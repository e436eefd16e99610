// Package router registers the HTTP routes of the API.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/handler"
	"github.com/iliyamo/ridesplit/internal/metrics"
	"github.com/iliyamo/ridesplit/internal/middleware"
	"github.com/iliyamo/ridesplit/internal/model"
)

// Handlers groups the handlers behind student authentication.
type Handlers struct {
	Rooms  *handler.RoomHandler
	Trips  *handler.TripHandler
	Wallet *handler.WalletHandler
}

// Middlewares are the optional Redis-backed layers. Nil entries are
// skipped.
type Middlewares struct {
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
}

// RegisterRoutes registers the unauthenticated health and metrics routes.
func RegisterRoutes(e *echo.Echo, db *sql.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))
}

// RegisterAuth registers /v1/auth and the profile endpoint.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, mw Middlewares) {
	g := e.Group("/v1/auth", optional(mw.RateLimit)...)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh) // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	me := e.Group("/v1/me", middleware.JWTAuth(jwtSecret), anyRole())
	me.GET("", a.Me)
}

// RegisterStudent registers the room, trip and wallet endpoints. All of
// them need a valid access token.
func RegisterStudent(e *echo.Echo, h Handlers, jwtSecret string, mw Middlewares) {
	chain := append([]echo.MiddlewareFunc{middleware.JWTAuth(jwtSecret), anyRole()}, optional(mw.RateLimit)...)
	g := e.Group("/v1", chain...)

	// ---- Wallet and location ----
	g.GET("/me/balance", h.Wallet.Balance)
	g.POST("/me/deposit", h.Wallet.Deposit)
	g.POST("/me/withdraw", h.Wallet.Withdraw)
	g.POST("/me/location", h.Trips.UpdateLocation)

	// ---- Rooms ----
	g.GET("/rooms", h.Rooms.List, optional(mw.Cache)...)
	g.POST("/rooms", h.Rooms.Create)
	g.GET("/rooms/:id", h.Rooms.Get)
	g.POST("/rooms/:id/join", h.Rooms.Join)
	g.POST("/rooms/:id/enter", h.Rooms.Enter)
	g.POST("/rooms/:id/leave", h.Rooms.Leave)

	// ---- Trip ----
	g.POST("/rooms/:id/members/:userID/ready", h.Trips.ToggleReady)
	g.POST("/rooms/:id/start", h.Trips.Start)
	g.POST("/rooms/:id/location", h.Trips.ReportLocation)
	g.GET("/rooms/:id/gathering", h.Trips.Gathering)
	g.POST("/rooms/:id/call-taxi", h.Trips.CallTaxi)
	g.POST("/rooms/:id/settle", h.Trips.Settle)
	g.POST("/rooms/:id/simulate", h.Trips.Simulate)
}

// RegisterAdmin registers the ADMIN-only demo data endpoints.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group("/v1/admin", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.POST("/seed", a.SeedData)
	g.POST("/reset", a.Reset)
}

func anyRole() echo.MiddlewareFunc {
	return middleware.RequireRole(model.RoleStudent, model.RoleAdmin)
}

func optional(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
