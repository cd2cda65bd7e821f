package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
)

// RegisterCustomer registers the customer-facing hold and booking
// endpoints under /v1.  Customers are identified by their session id; a
// bearer token is optional and only links a sale to a registered user.
// limit is applied to every route of the group.
func RegisterCustomer(e *echo.Echo, h *handler.HoldHandler, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", limit)

	g.POST("/holds", h.Acquire)
	g.DELETE("/holds", h.Release)
	g.PATCH("/holds/extend", h.Extend)
	g.GET("/holds/verify", h.Verify)
	g.GET("/availability", h.Availability)

	g.POST("/bookings", b.Create, middleware.OptionalJWT(jwtSecret))
	g.GET("/bookings/:id", b.Get)
	g.DELETE("/bookings/:id", b.Cancel)
}
