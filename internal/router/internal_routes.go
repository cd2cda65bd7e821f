package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
)

// RegisterInternal registers staff and payment-gateway endpoints under
// /v1/internal.  Every route needs a valid JWT; the payment callback
// accepts SYSTEM or STAFF, everything else STAFF only.
func RegisterInternal(e *echo.Echo, b *handler.BookingHandler, ops *handler.OpsHandler, jwtSecret string) {
	g := e.Group("/v1/internal", middleware.JWTAuth(jwtSecret))
	staff := middleware.RequireRole(middleware.RoleStaff)

	g.POST("/bookings/:id/payment", b.PaymentCallback, middleware.RequireRole(middleware.RoleSystem, middleware.RoleStaff))
	g.PATCH("/bookings/:id", b.Update, staff)
	g.DELETE("/bookings/:id", b.StaffCancel, staff)

	g.POST("/ops/sweep", ops.Sweep, staff)
}
