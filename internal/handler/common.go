package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/service"
	"github.com/iliyamo/ridesplit/internal/simulate"
)

// getUserID returns the subject JWTAuth stored in the context, or "" when
// the request is not authenticated.
func getUserID(c echo.Context) string {
	s, _ := c.Get("user_id").(string)
	return s
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized", "message": "login required"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid_input", "message": msg})
}

// writeServiceError maps a service failure to its HTTP status. Persistence
// failures are logged and hidden from the client.
func writeServiceError(c echo.Context, err error) error {
	var short *service.InsufficientBalanceError
	if errors.As(err, &short) {
		return c.JSON(http.StatusPaymentRequired, echo.Map{
			"error":     "insufficient_balance",
			"message":   err.Error(),
			"balance":   short.Balance,
			"required":  short.Required,
			"shortfall": short.Shortfall,
		})
	}
	var trans *service.TransitionError
	if errors.As(err, &trans) {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":   "invalid_state_transition",
			"message": err.Error(),
			"from":    trans.From,
			"to":      trans.To,
		})
	}

	status, kind := http.StatusInternalServerError, "persistence"
	switch {
	case errors.Is(err, service.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrAlreadyMember):
		status, kind = http.StatusConflict, "already_member"
	case errors.Is(err, service.ErrCapacityExceeded):
		status, kind = http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, service.ErrInvalidStateTransition):
		status, kind = http.StatusConflict, "invalid_state_transition"
	case errors.Is(err, service.ErrNotTracked):
		status, kind = http.StatusConflict, "not_tracked"
	case errors.Is(err, simulate.ErrAlreadyRunning):
		status, kind = http.StatusConflict, "already_running"
	case errors.Is(err, service.ErrNotOwner):
		status, kind = http.StatusForbidden, "not_owner"
	case errors.Is(err, service.ErrNotMember):
		status, kind = http.StatusForbidden, "not_member"
	case errors.Is(err, service.ErrOutOfReach):
		status, kind = http.StatusForbidden, "out_of_reach"
	case errors.Is(err, service.ErrInsufficientBalance):
		status, kind = http.StatusPaymentRequired, "insufficient_balance"
	case errors.Is(err, service.ErrLocationUnavailable):
		status, kind = http.StatusUnprocessableEntity, "location_unavailable"
	case errors.Is(err, service.ErrInvalidAmount):
		status, kind = http.StatusBadRequest, "invalid_amount"
	case errors.Is(err, service.ErrInvalidInput):
		status, kind = http.StatusBadRequest, "invalid_input"
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method, "path", c.Path(), "error", err)
		return c.JSON(status, echo.Map{"error": kind, "message": "internal error"})
	}
	return c.JSON(status, echo.Map{"error": kind, "message": err.Error()})
}

// queryPoint reads an optional lat/lon pair from the query string. ok is
// false when only one of them is present or either is malformed.
func queryPoint(c echo.Context) (p *geo.Point, ok bool) {
	latStr := strings.TrimSpace(c.QueryParam("lat"))
	lonStr := strings.TrimSpace(c.QueryParam("lon"))
	if latStr == "" && lonStr == "" {
		return nil, true
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lon, err2 := strconv.ParseFloat(lonStr, 64)
	pt := geo.Point{Lat: lat, Lon: lon}
	if err1 != nil || err2 != nil || !pt.Valid() {
		return nil, false
	}
	return &pt, true
}

// locationReq is the body of every location report.
type locationReq struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (r locationReq) point() (geo.Point, bool) {
	if r.Latitude == nil || r.Longitude == nil {
		return geo.Point{}, false
	}
	p := geo.Point{Lat: *r.Latitude, Lon: *r.Longitude}
	return p, p.Valid()
}
