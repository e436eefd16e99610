package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/service"
	"github.com/iliyamo/ridesplit/internal/simulate"
)

// TripHandler serves readiness, gathering and the trip pipeline of a
// room. Sim and Recruit are nil unless member simulation is enabled.
type TripHandler struct {
	Readiness      *service.ReadinessCoordinator
	GatheringCoord *service.GatheringCoordinator
	Pipeline       *service.TripPipeline
	Sim            *simulate.Simulator
	Recruit        *simulate.Recruiter
}

func NewTripHandler(svc *service.Service, sim *simulate.Simulator, recruit *simulate.Recruiter) *TripHandler {
	return &TripHandler{
		Readiness:      svc.Readiness,
		GatheringCoord: svc.Gathering,
		Pipeline:       svc.Pipeline,
		Sim:            sim,
		Recruit:        recruit,
	}
}

// ToggleReady handles POST /v1/rooms/:id/members/:userID/ready. Members
// only toggle their own flag.
func (h *TripHandler) ToggleReady(c echo.Context) error {
	uid := getUserID(c)
	if c.Param("userID") != uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "message": "members can only change their own ready flag"})
	}
	res, err := h.Readiness.ToggleReady(c.Request().Context(), c.Param("id"), uid)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Start handles POST /v1/rooms/:id/start.
func (h *TripHandler) Start(c echo.Context) error {
	room, err := h.Pipeline.Start(c.Request().Context(), c.Param("id"), getUserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// UpdateLocation handles POST /v1/me/location. The report is refused with
// 409 while tracking is off for the caller.
func (h *TripHandler) UpdateLocation(c echo.Context) error {
	var req locationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	p, ok := req.point()
	if !ok {
		return badRequest(c, "latitude and longitude are required and must be valid coordinates")
	}
	if err := h.GatheringCoord.UpdateUserLocation(c.Request().Context(), getUserID(c), p.Lat, p.Lon); err != nil {
		return writeServiceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ReportLocation handles POST /v1/rooms/:id/location and returns the
// gathering status after the report.
func (h *TripHandler) ReportLocation(c echo.Context) error {
	var req locationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	p, ok := req.point()
	if !ok {
		return badRequest(c, "latitude and longitude are required and must be valid coordinates")
	}
	st, err := h.GatheringCoord.ReportLocation(c.Request().Context(), c.Param("id"), getUserID(c), p)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Gathering handles GET /v1/rooms/:id/gathering.
func (h *TripHandler) Gathering(c echo.Context) error {
	st, err := h.GatheringCoord.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// CallTaxi handles POST /v1/rooms/:id/call-taxi.
func (h *TripHandler) CallTaxi(c echo.Context) error {
	room, err := h.Pipeline.CallTaxi(c.Request().Context(), c.Param("id"), getUserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, room)
}

// Settle handles POST /v1/rooms/:id/settle. Repeating it returns the
// stored settlement.
func (h *TripHandler) Settle(c echo.Context) error {
	st, err := h.Pipeline.Settle(c.Request().Context(), c.Param("id"), getUserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// Simulate handles POST /v1/rooms/:id/simulate. Only members may start
// it. A room still in CREATED gets seeded students seated and readied;
// in a gathering room every other tracked member is walked towards the
// start point.
func (h *TripHandler) Simulate(c echo.Context) error {
	if h.Sim == nil && h.Recruit == nil {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not_found", "message": "member simulation is disabled"})
	}
	roomID := c.Param("id")
	uid := getUserID(c)
	st, err := h.GatheringCoord.Status(c.Request().Context(), roomID)
	if err != nil {
		return writeServiceError(c, err)
	}
	member := false
	for _, m := range st.Members {
		if m.UserID == uid {
			member = true
			break
		}
	}
	if !member {
		return writeServiceError(c, service.ErrNotMember)
	}
	if st.Phase == model.PhaseCreated && h.Recruit != nil {
		if err := h.Recruit.Start(c.Request().Context(), roomID, uid); err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(http.StatusAccepted, echo.Map{"room_id": roomID, "recruiting": true})
	}
	if h.Sim == nil {
		return writeServiceError(c, service.ErrInvalidStateTransition)
	}
	simulated, err := h.Sim.Start(c.Request().Context(), roomID, uid)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusAccepted, echo.Map{"room_id": roomID, "simulated": simulated})
}
