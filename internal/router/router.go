package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"bazaaradmin/internal/handler"   // import the handlers that implement business logic
	"bazaaradmin/internal/middleware" // import middleware for JWT authentication and role enforcement
	"bazaaradmin/internal/model"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers all authentication-related routes and applies the
// necessary middleware.  Unauthenticated operations live under /v1/auth,
// while protected endpoints live under /v1.  The rateLimit middleware
// guards the credential endpoints against brute force.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	g := e.Group("/v1/auth", rateLimit)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// Rotates the refresh token.
	g.POST("/refresh", a.Refresh)
	// Issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts a refresh token in the body or a Bearer access token in
	// the header; it sits outside the JWT middleware so an expired session
	// can still terminate itself.
	g.POST("/logout", a.Logout)
	e.POST("/v1/logout", a.Logout)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.Use(middleware.RequireRole(model.RoleAdmin))
	auth.GET("/me", a.Me)
}

// RegisterMarkets registers the picker browse endpoints.  They require a
// session (the picker is part of the onboarding flow, not a public page)
// and sit behind the response cache: grids are read far more often than a
// claim changes them.
func RegisterMarkets(e *echo.Echo, m *handler.MarketHandler, jwtSecret string, respCache echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.GET("/markets", m.ListMarkets, respCache)
	g.GET("/markets/:id/blocks", m.ListBlocks, respCache)
	g.GET("/markets/:id/blocks/:letter/shops", m.ShopGrid, respCache)
	// The single-slot probe is intentionally uncached: it runs right before
	// a claim and a stale answer would only produce avoidable conflicts.
	g.GET("/markets/:id/shops/:code/availability", m.CheckShop)
}

// RegisterSetup registers the one-time shop setup endpoints.  The claim
// endpoint carries the rate limiter: it is the most contended write in the
// panel and a retry storm from one client must not starve the rest.
func RegisterSetup(e *echo.Echo, s *handler.SetupHandler, jwtSecret string, rateLimit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.POST("/setup", s.Setup, rateLimit)
	g.GET("/my-shop", s.MyShop)
}

// RegisterProducts registers the product CRUD endpoints, all scoped to the
// authenticated admin's claimed shop.
func RegisterProducts(e *echo.Echo, p *handler.ProductHandler, jwtSecret string) {
	g := e.Group("/v1/products", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	g.GET("", p.List)
	g.POST("", p.Create)
	g.GET("/:id", p.Get)
	g.PUT("/:id", p.Update)
	g.DELETE("/:id", p.Delete)
}
