package middleware

import (
	"github.com/labstack/echo/v4"
)

// AllowAnyOrigin returns an Echo middleware that sets
// Access-Control-Allow-Origin: * before the handler runs, so the header is
// present on every response: relayed ones, 404/405 from the router, and 500s
// rendered after a recovered panic.
func AllowAnyOrigin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.Response().Header().Set(echo.HeaderAccessControlAllowOrigin, "*")
			return next(c)
		}
	}
}
