package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/iliyamo/cinema-ticketing/internal/apperr"
)

// writeError maps domain errors onto HTTP responses.  Infrastructure
// failures are logged and answered with a generic message so that store
// details never leak to clients.
func writeError(c echo.Context, err error) error {
	var conflict *apperr.ConflictError
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable", "seats": conflict.SeatIDs})
	case errors.Is(err, apperr.ErrValidation),
		errors.Is(err, apperr.ErrInvalidSeat),
		errors.Is(err, apperr.ErrInvalidVoucher):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrNotOwner):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "not the owner of this hold or sale"})
	case errors.Is(err, apperr.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrHoldExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": "hold expired"})
	case errors.Is(err, apperr.ErrExtendLimit):
		return c.JSON(http.StatusConflict, echo.Map{"error": "hold cannot be extended any further"})
	case errors.Is(err, apperr.ErrInvalidTransition), errors.Is(err, apperr.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, apperr.ErrUnavailable):
		log.Error().Err(err).Str("path", c.Path()).Msg("store unavailable")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "service temporarily unavailable"})
	}
	log.Error().Err(err).Str("path", c.Path()).Msg("unhandled error")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
