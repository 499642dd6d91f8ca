// Package router wires the HTTP endpoints onto an Echo instance.
package router

import (
	"github.com/casbin/casbin/v2"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/iliyamo/medconcierge/internal/handler"
	"github.com/iliyamo/medconcierge/internal/middleware"
)

// Handlers groups the endpoint implementations.
type Handlers struct {
	Auth         *handler.AuthHandler
	Applications *handler.ApplicationHandler
	Messages     *handler.MessageHandler
	Reference    *handler.ReferenceHandler
}

// Options carries the cross-cutting pieces shared by the route groups.
// RateLimit and Cache may be nil, in which case the routes are unthrottled
// and uncached.
type Options struct {
	JWTSecret string
	Enforcer  *casbin.Enforcer
	RateLimit echo.MiddlewareFunc
	Cache     echo.MiddlewareFunc
	DB        handler.Pinger
	Log       *zap.Logger
}

func optional(m echo.MiddlewareFunc) []echo.MiddlewareFunc {
	if m == nil {
		return nil
	}
	return []echo.MiddlewareFunc{m}
}

// Register mounts every route. Public endpoints come first; everything under
// the protected group passes JWTAuth and then the casbin policy.
func Register(e *echo.Echo, h Handlers, o Options) {
	e.GET("/healthz", handler.Health)
	if o.DB != nil {
		e.GET("/readyz", handler.Ready(o.DB))
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	limited := optional(o.RateLimit)
	api := e.Group("/api")

	api.POST("/applications", h.Applications.Submit, limited...)
	api.GET("/reference", h.Reference.List, optional(o.Cache)...)

	pub := api.Group("/auth", limited...)
	pub.POST("/register", h.Auth.Register)
	pub.POST("/login", h.Auth.Login)
	pub.POST("/refresh", h.Auth.Refresh)
	pub.POST("/refresh-access", h.Auth.RefreshAccess)
	pub.POST("/forgot-password", h.Auth.ForgotPassword)
	pub.POST("/reset-password", h.Auth.ResetPassword)

	g := e.Group("/api", middleware.JWTAuth(o.JWTSecret), middleware.Authorize(o.Enforcer, o.Log))
	g.GET("/auth/me", h.Auth.Me)
	g.POST("/auth/logout", h.Auth.Logout)

	g.GET("/dashboard", h.Applications.Dashboard)
	g.GET("/applications", h.Applications.List)
	g.GET("/applications/:id", h.Applications.Get)
	g.PATCH("/applications/:id/status", h.Applications.UpdateStatus)

	g.GET("/applications/:id/messages", h.Messages.List)
	g.POST("/applications/:id/messages", h.Messages.Post)
	g.PATCH("/applications/:id/messages/read", h.Messages.MarkRead)
}
