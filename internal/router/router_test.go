package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-ticketing/internal/booking"
	"github.com/iliyamo/cinema-ticketing/internal/config"
	"github.com/iliyamo/cinema-ticketing/internal/handler"
	"github.com/iliyamo/cinema-ticketing/internal/hold"
	"github.com/iliyamo/cinema-ticketing/internal/layout"
	"github.com/iliyamo/cinema-ticketing/internal/middleware"
	"github.com/iliyamo/cinema-ticketing/internal/pricing"
	"github.com/iliyamo/cinema-ticketing/internal/queue"
	"github.com/iliyamo/cinema-ticketing/internal/repository"
	"github.com/iliyamo/cinema-ticketing/internal/utils"
)

const secret = "router-secret"

func newServer() *echo.Echo {
	layouts := layout.NewStaticProvider(layout.Grid(1, 1, 1, 4, "2D", 800))
	holds := hold.NewManager(hold.NewMemoryStore(), layouts, config.HoldConfig{TTL: time.Minute})
	engine := booking.NewEngine(holds, layouts, repository.NewMemorySaleRepo(), pricing.NewCalculator(pricing.Rates{}, nil, nil), queue.LogPublisher{})

	e := echo.New()
	e.Validator = handler.NewValidator()
	b := handler.NewBookingHandler(engine)
	RegisterRoutes(e, &handler.HealthHandler{})
	RegisterCustomer(e, handler.NewHoldHandler(holds), b, secret, middleware.NewTokenBucket(config.RateLimitConfig{}, nil))
	RegisterInternal(e, b, &handler.OpsHandler{Sweeper: booking.NewSweeper(engine, time.Minute, 10)}, secret)
	return e
}

func call(e *echo.Echo, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func token(t *testing.T, role string) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, 1, role, time.Hour)
	require.NoError(t, err)
	return tok.Token
}

func TestOperationalRoutes(t *testing.T) {
	e := newServer()
	assert.Equal(t, http.StatusOK, call(e, http.MethodGet, "/healthz", "", "").Code)

	rec := call(e, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestInternalRoutesRequireRole(t *testing.T) {
	e := newServer()

	assert.Equal(t, http.StatusUnauthorized, call(e, http.MethodPost, "/v1/internal/ops/sweep", "", "").Code)
	assert.Equal(t, http.StatusForbidden, call(e, http.MethodPost, "/v1/internal/ops/sweep", token(t, middleware.RoleSystem), "").Code)
	assert.Equal(t, http.StatusOK, call(e, http.MethodPost, "/v1/internal/ops/sweep", token(t, middleware.RoleStaff), "").Code)

	// the gateway may report payments but not edit sales
	rec := call(e, http.MethodPost, "/v1/internal/bookings/nope/payment", token(t, middleware.RoleSystem), `{"success":true}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = call(e, http.MethodPatch, "/v1/internal/bookings/nope", token(t, middleware.RoleSystem), `{}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCustomerRoutesArePublic(t *testing.T) {
	e := newServer()
	rec := call(e, http.MethodPost, "/v1/holds", "", `{"showing_id":1,"seat_ids":[1],"session_id":"s"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = call(e, http.MethodGet, "/v1/availability?showing_id=1", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(e, http.MethodPost, "/v1/bookings", "bad-token", `{}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
