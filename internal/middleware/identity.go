package middleware

import "github.com/labstack/echo/v4"

// userID returns the authenticated user set by JWTAuth, or "anon" for
// requests that did not pass through it.
func userID(c echo.Context) string {
	if s, ok := c.Get("user_id").(string); ok && s != "" {
		return s
	}
	return "anon"
}
