package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/web-app-template/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterOAuth2 mounts the authorization-code grant endpoints.  The
// browser-facing authorize pair and the server-to-server handle endpoint are
// unauthenticated by design; handle carries its own Basic client-secret
// check, and the credential-accepting POSTs run through the rate limiter.
func RegisterOAuth2(e *echo.Echo, h *handler.OAuth2Handler, limiter echo.MiddlewareFunc) {
	g := e.Group("/oauth2")
	g.GET("/authorize", h.Authorize)
	g.POST("/authorize", h.AuthorizeSubmit, limiter)
	g.POST("/handle", h.Handle, limiter)
}

// RegisterAuth mounts the SPA-facing auth api.  Start/complete/refresh are
// open (they are how a client becomes authenticated); check and logout sit
// behind the request gate.
func RegisterAuth(e *echo.Echo, h *handler.AuthHandler, gate, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/auth")
	g.GET("/start", h.Start)
	g.POST("/complete", h.Complete, limiter)
	g.POST("/refresh", h.Refresh, limiter)
	g.GET("/check", h.Check, gate)
	g.GET("/logout", h.Logout, gate)
}

// RegisterLocalAuth mounts the cookie-session login and register forms.  The
// bare group path doubles as the login route, mirroring the form links.
func RegisterLocalAuth(e *echo.Echo, h *handler.LocalAuthHandler, limiter echo.MiddlewareFunc) {
	g := e.Group("/api/localauth")
	g.GET("", h.LoginForm)
	g.GET("/login", h.LoginForm)
	g.GET("/register", h.RegisterForm)
	g.POST("", h.Login, limiter)
	g.POST("/login", h.Login, limiter)
	g.POST("/register", h.Register, limiter)
}
