package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ridesplit/internal/config"
	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/repository"
	"github.com/iliyamo/ridesplit/internal/service"
)

// RoomHandler serves room listing, creation and membership.
type RoomHandler struct {
	Rooms    *service.RoomRegistry
	Users    *repository.UserRepo
	Campuses config.Campuses
}

func NewRoomHandler(rooms *service.RoomRegistry, users *repository.UserRepo, campuses config.Campuses) *RoomHandler {
	if rooms == nil || users == nil {
		panic("nil dependency passed to NewRoomHandler")
	}
	return &RoomHandler{Rooms: rooms, Users: users, Campuses: campuses}
}

type createRoomReq struct {
	StartLocation  string   `json:"start_location"`
	StartLatitude  *float64 `json:"start_latitude"`
	StartLongitude *float64 `json:"start_longitude"`
	University     string   `json:"university"`
	MaxMembers     int      `json:"max_members"`
}

// List handles GET /v1/rooms?university=&lat=&lon=. university defaults to
// the caller's own.
func (h *RoomHandler) List(c echo.Context) error {
	viewer, ok := queryPoint(c)
	if !ok {
		return badRequest(c, "lat and lon must be given together and be valid coordinates")
	}
	university := strings.TrimSpace(c.QueryParam("university"))
	if university == "" {
		u, err := h.Users.Get(c.Request().Context(), getUserID(c))
		if err != nil {
			return badRequest(c, "university is required")
		}
		university = u.University
	}
	rooms, err := h.Rooms.GetAvailableRooms(c.Request().Context(), university, viewer)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"university": university, "rooms": rooms})
}

// Create handles POST /v1/rooms. The fare is estimated to the campus of
// the chosen university and the caller becomes the ready owner.
func (h *RoomHandler) Create(c echo.Context) error {
	uid := getUserID(c)
	var req createRoomReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	req.StartLocation = strings.TrimSpace(req.StartLocation)
	if req.StartLocation == "" || req.StartLatitude == nil || req.StartLongitude == nil {
		return badRequest(c, "start_location, start_latitude and start_longitude are required")
	}
	university := strings.TrimSpace(req.University)
	if university == "" {
		u, err := h.Users.Get(c.Request().Context(), uid)
		if errors.Is(err, repository.ErrUserNotFound) {
			return unauthorized(c)
		}
		if err != nil {
			return writeServiceError(c, err)
		}
		university = u.University
	}
	campus, ok := h.Campuses.Lookup(university)
	if !ok {
		return badRequest(c, "unknown university "+university)
	}

	room, err := h.Rooms.OpenRoom(c.Request().Context(), service.OpenRoomInput{
		OwnerID:       uid,
		StartLocation: req.StartLocation,
		Start:         geo.Point{Lat: *req.StartLatitude, Lon: *req.StartLongitude},
		University:    university,
		Campus:        campus,
		MaxMembers:    req.MaxMembers,
	})
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusCreated, room)
}

// Get handles GET /v1/rooms/:id.
func (h *RoomHandler) Get(c echo.Context) error {
	detail, err := h.Rooms.GetRoom(c.Request().Context(), c.Param("id"))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, detail)
}

// Join handles POST /v1/rooms/:id/join without the distance and balance
// guard.
func (h *RoomHandler) Join(c echo.Context) error {
	room, err := h.Rooms.JoinRoom(c.Request().Context(), c.Param("id"), getUserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// Enter handles POST /v1/rooms/:id/enter?lat=&lon=, the guarded join used
// from the room list.
func (h *RoomHandler) Enter(c echo.Context) error {
	viewer, ok := queryPoint(c)
	if !ok {
		return badRequest(c, "lat and lon must be given together and be valid coordinates")
	}
	room, err := h.Rooms.EnterRoom(c.Request().Context(), c.Param("id"), getUserID(c), viewer)
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, room)
}

// Leave handles POST /v1/rooms/:id/leave.
func (h *RoomHandler) Leave(c echo.Context) error {
	roomID := c.Param("id")
	deleted, err := h.Rooms.LeaveRoom(c.Request().Context(), roomID, getUserID(c))
	if err != nil {
		return writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"room_id": roomID, "room_deleted": deleted})
}
