package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Checker probes one dependency.
type Checker func(ctx context.Context) error

// HealthHandler answers load balancer probes.  With no checkers it only
// proves the process is serving.
type HealthHandler struct {
	Checks map[string]Checker
}

// Health handles GET /healthz: 200 "ok" when every check passes, 503 with
// the failing dependencies otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	if len(h.Checks) == 0 {
		return c.String(http.StatusOK, "ok")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	failed := map[string]string{}
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded", "failed": failed})
	}
	return c.String(http.StatusOK, "ok")
}
