package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/medconcierge/internal/utils"
)

// SessionFrom returns the session stored by JWTAuth.
func SessionFrom(c echo.Context) (utils.Session, bool) {
	s, ok := c.Get(ctxSession).(utils.Session)
	return s, ok
}

// currentUserID keys rate limits; anonymous callers share "anon".
func currentUserID(c echo.Context) string {
	if s, ok := c.Get(ctxUserID).(string); ok && s != "" {
		return s
	}
	return "anon"
}
