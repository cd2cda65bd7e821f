package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
)

// SweepRunner runs one expiry pass.
type SweepRunner interface {
	RunOnce(ctx context.Context) (int, error)
}

type OpsHandler struct {
	Sweeper SweepRunner
}

// Sweep handles POST /v1/internal/ops/sweep.
func (h *OpsHandler) Sweep(c echo.Context) error {
	n, err := h.Sweeper.RunOnce(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"expired": n})
}
