package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
	"github.com/iliyamo/cinema-ticketing/internal/hold"
)

// HoldHandler exposes the seat hold API.  Holds are keyed by an opaque
// client session id; no login is needed to hold seats.
type HoldHandler struct {
	Holds *hold.Manager
}

func NewHoldHandler(m *hold.Manager) *HoldHandler {
	if m == nil {
		panic("nil hold manager passed to NewHoldHandler")
	}
	return &HoldHandler{Holds: m}
}

type holdSeatsBody struct {
	ShowingID    uint64   `json:"showing_id" validate:"required"`
	SeatIDs      []uint64 `json:"seat_ids" validate:"required,min=1,dive,required"`
	SessionID    string   `json:"session_id" validate:"required,max=128"`
	ContactEmail string   `json:"contact_email" validate:"omitempty,email"`
}

type extendBody struct {
	holdSeatsBody
	AdditionalMinutes int `json:"additional_minutes" validate:"required,min=1,max=1440"`
}

// Acquire handles POST /v1/holds.  All requested seats are held or none
// are; a conflict lists every seat that could not be taken.
func (h *HoldHandler) Acquire(c echo.Context) error {
	var body holdSeatsBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	held, err := h.Holds.Acquire(c.Request().Context(), hold.AcquireRequest{
		ShowingID:    body.ShowingID,
		SeatIDs:      body.SeatIDs,
		SessionID:    body.SessionID,
		ContactEmail: body.ContactEmail,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"showing_id":      held.ShowingID,
		"seat_ids":        held.SeatIDs,
		"session_id":      held.SessionID,
		"contact_email":   held.ContactEmail,
		"hold_expires_at": held.ExpiresAt.UnixMilli(),
		"created_at":      held.CreatedAt,
	})
}

// Release handles DELETE /v1/holds.  Seats the session does not hold are
// ignored, so repeating the call is harmless.
func (h *HoldHandler) Release(c echo.Context) error {
	var body holdSeatsBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	if err := h.Holds.Release(c.Request().Context(), body.ShowingID, body.SeatIDs, body.SessionID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": true})
}

// Extend handles PATCH /v1/holds/extend.
func (h *HoldHandler) Extend(c echo.Context) error {
	var body extendBody
	if err := bind(c, &body); err != nil {
		return writeError(c, err)
	}
	add := time.Duration(body.AdditionalMinutes) * time.Minute
	exp, err := h.Holds.Extend(c.Request().Context(), body.ShowingID, body.SeatIDs, body.SessionID, add)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"hold_expires_at": exp.UnixMilli()})
}

// Availability handles GET /v1/availability?showing_id=&session_id=.
func (h *HoldHandler) Availability(c echo.Context) error {
	showingID, err := parseID(c.QueryParam("showing_id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid showing_id"))
	}
	av, err := h.Holds.Availability(c.Request().Context(), showingID, c.QueryParam("session_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, av)
}

// Verify handles GET /v1/holds/verify?showing_id=&session_id=&seat_ids=1,2.
func (h *HoldHandler) Verify(c echo.Context) error {
	showingID, err := parseID(c.QueryParam("showing_id"))
	if err != nil {
		return writeError(c, apperr.Validation("invalid showing_id"))
	}
	session := strings.TrimSpace(c.QueryParam("session_id"))
	if session == "" {
		return writeError(c, apperr.Validation("session_id is required"))
	}
	seats, err := parseIDList(c.QueryParam("seat_ids"))
	if err != nil || len(seats) == 0 {
		return writeError(c, apperr.Validation("seat_ids must be a comma separated list of ids"))
	}
	own, err := h.Holds.Verify(c.Request().Context(), showingID, seats, session)
	if err != nil {
		return writeError(c, err)
	}
	out := make(map[string]bool, len(own))
	for id, ok := range own {
		out[strconv.FormatUint(id, 10)] = ok
	}
	return c.JSON(http.StatusOK, echo.Map{"ownership": out})
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err == nil && id == 0 {
		err = strconv.ErrRange
	}
	return id, err
}

func parseIDList(raw string) ([]uint64, error) {
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := parseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
