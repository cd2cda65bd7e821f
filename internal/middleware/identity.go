package middleware

import (
	"fmt"
	"strings"

	"github.com/labstack/echo/v4"
)

// SessionHeader carries the client session id on requests whose session
// is not already in the query string.
const SessionHeader = "X-Session-ID"

// userID returns the authenticated subject as a string, or "anon".
func userID(c echo.Context) string {
	switch v := c.Get("user_id").(type) {
	case nil:
	case string:
		if v != "" {
			return v
		}
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return fmt.Sprint(v)
	}
	return "anon"
}

// sessionID reads the client session from the header or the session_id
// query parameter.
func sessionID(c echo.Context) string {
	if s := strings.TrimSpace(c.Request().Header.Get(SessionHeader)); s != "" {
		return s
	}
	if s := strings.TrimSpace(c.QueryParam("session_id")); s != "" {
		return s
	}
	return "none"
}
