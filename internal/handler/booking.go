package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/booking"
	"github.com/iliyamo/cinema-ticketing/internal/model"
)

// BookingHandler turns holds into sales and serves the sale lifecycle,
// both to customers and to staff/payment callbacks on internal routes.
type BookingHandler struct {
	Engine *booking.Engine
}

func NewBookingHandler(e *booking.Engine) *BookingHandler {
	if e == nil {
		panic("nil engine passed to NewBookingHandler")
	}
	return &BookingHandler{Engine: e}
}

type buyerBody struct {
	Name  string `json:"name" validate:"required,max=255"`
	Email string `json:"email" validate:"required,email,max=255"`
	Phone string `json:"phone" validate:"omitempty,max=32"`
}

type createBookingBody struct {
	ShowingID   uint64    `json:"showing_id" validate:"required"`
	SeatIDs     []uint64  `json:"seat_ids" validate:"required,min=1,dive,required"`
	SessionID   string    `json:"session_id" validate:"required,max=128"`
	Buyer       buyerBody `json:"buyer"`
	VoucherCode string    `json:"voucher_code" validate:"omitempty,max=64"`
	PointsToUse int64     `json:"points_to_use" validate:"gte=0"`
}

// Create handles POST /v1/bookings.  A bearer token, when present, links
// the sale to the user and allows loyalty points to be used.
func (h *BookingHandler) Create(c echo.Context) error {
	var body createBookingBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	sale, err := h.Engine.Create(c.Request().Context(), booking.CreateRequest{
		ShowingID:   body.ShowingID,
		SeatIDs:     body.SeatIDs,
		SessionID:   body.SessionID,
		Buyer:       model.Buyer{Name: body.Buyer.Name, Email: body.Buyer.Email, Phone: body.Buyer.Phone},
		UserID:      optionalUserID(c),
		VoucherCode: body.VoucherCode,
		PointsToUse: body.PointsToUse,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, sale)
}

// Get handles GET /v1/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	sale, err := h.Engine.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sale)
}

// Cancel handles DELETE /v1/bookings/:id?session_id=.  Only the session
// that created the sale may cancel it here.
func (h *BookingHandler) Cancel(c echo.Context) error {
	session := strings.TrimSpace(c.QueryParam("session_id"))
	if session == "" {
		return writeError(c, apperr.Validation("session_id is required"))
	}
	sale, err := h.Engine.Cancel(c.Request().Context(), c.Param("id"), session)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sale)
}

// StaffCancel handles DELETE /v1/internal/bookings/:id.
func (h *BookingHandler) StaffCancel(c echo.Context) error {
	sale, err := h.Engine.Cancel(c.Request().Context(), c.Param("id"), "")
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sale)
}

type paymentBody struct {
	Success   *bool  `json:"success" validate:"required"`
	Reference string `json:"reference" validate:"max=128"`
}

// PaymentCallback handles POST /v1/internal/bookings/:id/payment, the
// gateway's report of the payment outcome.
func (h *BookingHandler) PaymentCallback(c echo.Context) error {
	var body paymentBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	sale, err := h.Engine.Confirm(c.Request().Context(), c.Param("id"), booking.PaymentResult{
		Success:   *body.Success,
		Reference: body.Reference,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sale)
}

type updateBody struct {
	Name          *string `json:"name" validate:"omitempty,max=255"`
	Email         *string `json:"email" validate:"omitempty,email,max=255"`
	Phone         *string `json:"phone" validate:"omitempty,max=32"`
	Status        *string `json:"status" validate:"omitempty,oneof=PENDING CONFIRMED CANCELLED EXPIRED"`
	PaymentStatus *string `json:"payment_status" validate:"omitempty,oneof=PENDING COMPLETED FAILED CANCELLED"`
	PaymentRef    *string `json:"payment_ref" validate:"omitempty,max=128"`
}

// Update handles PATCH /v1/internal/bookings/:id, a staff correction of
// contact details or status on a PENDING sale.
func (h *BookingHandler) Update(c echo.Context) error {
	var body updateBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	req := booking.UpdateRequest{
		Name:       body.Name,
		Email:      body.Email,
		Phone:      body.Phone,
		PaymentRef: body.PaymentRef,
	}
	if body.Status != nil {
		s := model.SaleStatus(*body.Status)
		req.Status = &s
	}
	if body.PaymentStatus != nil {
		p := model.PaymentStatus(*body.PaymentStatus)
		req.PaymentStatus = &p
	}
	sale, err := h.Engine.Update(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, sale)
}
