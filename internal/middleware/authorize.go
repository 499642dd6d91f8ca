package middleware

import (
	"net/http"

	"github.com/casbin/casbin/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Authorize checks the session role against the casbin route policy. It
// must run after JWTAuth.
func Authorize(e *casbin.Enforcer, log *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := SessionFrom(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
			}
			path := c.Path()
			if path == "" {
				path = c.Request().URL.Path
			}
			allowed, err := e.Enforce(s.Role, path, c.Request().Method)
			if err != nil {
				log.Error("authorization check failed", zap.String("path", path), zap.Error(err))
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal server error"})
			}
			if !allowed {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
			}
			return next(c)
		}
	}
}
