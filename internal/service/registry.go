package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/iliyamo/ridesplit/internal/fare"
	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/metrics"
	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/repository"
)

const (
	MinRoomSize = 2
	MaxRoomSize = 4
)

// RoomRegistry owns rooms and their member rows: creation, join, leave
// and the recruiting status.
type RoomRegistry struct {
	base
	ids       IDGenerator
	readiness *ReadinessCoordinator
	pipeline  *TripPipeline
}

// CreateRoomInput describes a room with its fare already decided.
type CreateRoomInput struct {
	OwnerID       string
	StartLocation string
	Start         geo.Point
	EndLocation   string
	End           geo.Point
	MaxMembers    int
	EstimatedCost int
	CostPerPerson int
}

func (in CreateRoomInput) validate() error {
	switch {
	case strings.TrimSpace(in.OwnerID) == "":
		return fmt.Errorf("%w: owner is required", ErrInvalidInput)
	case strings.TrimSpace(in.StartLocation) == "" || strings.TrimSpace(in.EndLocation) == "":
		return fmt.Errorf("%w: start and end location names are required", ErrInvalidInput)
	case !in.Start.Valid() || !in.End.Valid():
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	case in.MaxMembers < MinRoomSize || in.MaxMembers > MaxRoomSize:
		return fmt.Errorf("%w: max members must be between %d and %d", ErrInvalidInput, MinRoomSize, MaxRoomSize)
	case in.EstimatedCost < 0 || in.CostPerPerson < 0:
		return fmt.Errorf("%w: costs must not be negative", ErrInvalidInput)
	}
	return nil
}

// CreateRoom stores the room and the owner's member row (not ready) in one
// transaction. Nothing is written when either insert fails.
func (r *RoomRegistry) CreateRoom(ctx context.Context, in CreateRoomInput) (model.Room, error) {
	if err := in.validate(); err != nil {
		return model.Room{}, err
	}
	room := model.Room{
		ID:             r.ids.NewRoomID(),
		OwnerID:        in.OwnerID,
		StartLocation:  strings.TrimSpace(in.StartLocation),
		StartLat:       in.Start.Lat,
		StartLon:       in.Start.Lon,
		EndLocation:    strings.TrimSpace(in.EndLocation),
		EndLat:         in.End.Lat,
		EndLon:         in.End.Lon,
		CurrentMembers: 1,
		MaxMembers:     in.MaxMembers,
		EstimatedCost:  in.EstimatedCost,
		CostPerPerson:  in.CostPerPerson,
		Status:         model.StatusRecruiting,
		Phase:          model.PhaseCreated,
	}
	err := r.tx(ctx, "create room", func(tx *sql.Tx) error {
		if _, err := r.store.Users.GetTx(ctx, tx, in.OwnerID); err != nil {
			return notFound(err, "user", in.OwnerID)
		}
		if err := r.store.Rooms.CreateTx(ctx, tx, &room); err != nil {
			return err
		}
		return r.store.Members.AddTx(ctx, tx, room.ID, in.OwnerID, false)
	})
	metrics.RoomOp("create", kindOf(err))
	if err != nil {
		return model.Room{}, err
	}
	r.log.Info("room created", "room_id", room.ID, "owner_id", room.OwnerID, "max_members", room.MaxMembers)
	return room, nil
}

// OpenRoomInput is what a student fills in: where from, which campus and
// how many seats. The fare is estimated here.
type OpenRoomInput struct {
	OwnerID       string
	StartLocation string
	Start         geo.Point
	University    string
	Campus        geo.Point
	MaxMembers    int
}

// OpenRoom estimates the fare to campus, checks that the owner can cover a
// share, creates the room and marks the owner ready.
func (r *RoomRegistry) OpenRoom(ctx context.Context, in OpenRoomInput) (model.Room, error) {
	if in.MaxMembers < MinRoomSize || in.MaxMembers > MaxRoomSize {
		return model.Room{}, fmt.Errorf("%w: max members must be between %d and %d", ErrInvalidInput, MinRoomSize, MaxRoomSize)
	}
	if !in.Start.Valid() || !in.Campus.Valid() {
		return model.Room{}, fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	estimate := fare.Estimate(in.Start, in.Campus)
	perPerson := fare.PerPerson(estimate, in.MaxMembers)

	owner, err := r.store.Users.Get(ctx, in.OwnerID)
	if err != nil {
		return model.Room{}, classify("open room", notFound(err, "user", in.OwnerID))
	}
	if ok, required, shortfall := fare.CheckBalanceWithMargin(owner.Balance, perPerson, r.cfg.BalanceMargin); !ok {
		metrics.RoomOp("create", "insufficient_balance")
		return model.Room{}, &InsufficientBalanceError{UserID: owner.ID, Balance: owner.Balance, Required: required, Shortfall: shortfall}
	}

	room, err := r.CreateRoom(ctx, CreateRoomInput{
		OwnerID:       in.OwnerID,
		StartLocation: in.StartLocation,
		Start:         in.Start,
		EndLocation:   in.University,
		End:           in.Campus,
		MaxMembers:    in.MaxMembers,
		EstimatedCost: estimate,
		CostPerPerson: perPerson,
	})
	if err != nil {
		return model.Room{}, err
	}
	if err := r.readiness.SetOwnerReady(ctx, room.ID); err != nil {
		return model.Room{}, err
	}
	return r.store.Rooms.Get(ctx, room.ID)
}

// JoinRoom adds userID to the room. The seat is taken by one conditional
// update in the same transaction as the member insert, so concurrent joins
// can never push current_members past max_members.
func (r *RoomRegistry) JoinRoom(ctx context.Context, roomID, userID string) (model.Room, error) {
	err := r.tx(ctx, "join room", func(tx *sql.Tx) error {
		if err := r.store.Rooms.LockTx(ctx, tx, roomID); err != nil {
			return notFound(err, "room", roomID)
		}
		if _, err := r.store.Users.GetTx(ctx, tx, userID); err != nil {
			return notFound(err, "user", userID)
		}
		member, err := r.store.Members.IsMemberTx(ctx, tx, roomID, userID)
		if err != nil {
			return err
		}
		if member {
			return ErrAlreadyMember
		}
		claimed, err := r.store.Rooms.ClaimSeatTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrCapacityExceeded
		}
		if err := r.store.Members.AddTx(ctx, tx, roomID, userID, false); err != nil {
			if errors.Is(err, repository.ErrDuplicateMember) {
				return ErrAlreadyMember
			}
			return err
		}
		return nil
	})
	metrics.RoomOp("join", kindOf(err))
	if err != nil {
		r.log.Debug("join refused", "room_id", roomID, "user_id", userID, "reason", err)
		return model.Room{}, err
	}
	room, err := r.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return model.Room{}, classify("join room", notFound(err, "room", roomID))
	}
	r.log.Info("member joined", "room_id", roomID, "user_id", userID,
		"members", room.CurrentMembers, "max", room.MaxMembers, "status", room.Status)
	return room, nil
}

// LeaveRoom removes userID from the room and deletes the room when nobody
// is left. An owner who leaves hands the room to the earliest-joined
// member. The leaver's location tracking is switched off unless they are
// gathering in another room.
func (r *RoomRegistry) LeaveRoom(ctx context.Context, roomID, userID string) (deleted bool, err error) {
	var newOwner string
	err = r.tx(ctx, "leave room", func(tx *sql.Tx) error {
		if err := r.store.Rooms.LockTx(ctx, tx, roomID); err != nil {
			return notFound(err, "room", roomID)
		}
		room, err := r.store.Rooms.GetTx(ctx, tx, roomID)
		if err != nil {
			return notFound(err, "room", roomID)
		}
		if err := r.store.Members.RemoveTx(ctx, tx, roomID, userID); err != nil {
			if errors.Is(err, repository.ErrMemberNotFound) {
				return ErrNotMember
			}
			return err
		}
		if err := r.store.Users.ReleaseTrackingTx(ctx, tx, userID, roomID); err != nil {
			return err
		}
		left, err := r.store.Rooms.ReleaseSeatTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if left == 0 {
			deleted = true
			return r.store.Rooms.DeleteTx(ctx, tx, roomID)
		}
		if room.OwnerID != userID {
			return nil
		}
		rest, err := r.store.Members.ListTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return fmt.Errorf("room %s: %d seats taken but no members", roomID, left)
		}
		newOwner = rest[0].UserID
		return r.store.Rooms.SetOwnerTx(ctx, tx, roomID, newOwner)
	})
	metrics.RoomOp("leave", kindOf(err))
	if err != nil {
		return false, err
	}
	r.pipeline.stopRecruiting(roomID)
	switch {
	case deleted:
		r.pipeline.Cancel(roomID)
		r.log.Info("room deleted after last member left", "room_id", roomID, "user_id", userID)
	case newOwner != "":
		r.log.Info("owner left, room handed over", "room_id", roomID, "user_id", userID, "owner_id", newOwner)
	default:
		r.log.Info("member left", "room_id", roomID, "user_id", userID)
	}
	return deleted, nil
}

// GetAvailableRooms lists rooms heading to university that still recruit,
// ordered by room ID. When viewer is set every room carries its distance
// and whether it is within the accessibility radius.
func (r *RoomRegistry) GetAvailableRooms(ctx context.Context, university string, viewer *geo.Point) ([]model.Room, error) {
	rooms, err := r.store.Rooms.ListAvailable(ctx, strings.TrimSpace(university))
	if err != nil {
		return nil, classify("list rooms", err)
	}
	if viewer != nil && viewer.Valid() {
		for i := range rooms {
			d := geo.Distance(*viewer, rooms[i].Start())
			rooms[i].DistanceM = &d
			rooms[i].IsAccessible = d <= r.cfg.AccessRadiusM
		}
	}
	if rooms == nil {
		rooms = []model.Room{}
	}
	return rooms, nil
}

// RoomDetail is a room with its members and their distance to the start.
type RoomDetail struct {
	Room    model.Room   `json:"room"`
	Members []MemberView `json:"members"`
}

// GetRoom returns the room and its members.
func (r *RoomRegistry) GetRoom(ctx context.Context, roomID string) (RoomDetail, error) {
	room, err := r.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return RoomDetail{}, classify("get room", notFound(err, "room", roomID))
	}
	members, err := r.store.Members.ListDetailed(ctx, roomID)
	if err != nil {
		return RoomDetail{}, classify("get room", err)
	}
	views, _ := measure(room.Start(), members, r.cfg.GatherRadiusM)
	return RoomDetail{Room: room, Members: views}, nil
}

// EnterRoom is the guard in front of JoinRoom used by the room list: the
// viewer must be within the accessibility radius of the start point and
// hold enough balance for a share plus margin. viewer falls back to the
// user's last stored location.
func (r *RoomRegistry) EnterRoom(ctx context.Context, roomID, userID string, viewer *geo.Point) (model.Room, error) {
	room, err := r.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return model.Room{}, classify("enter room", notFound(err, "room", roomID))
	}
	user, err := r.store.Users.Get(ctx, userID)
	if err != nil {
		return model.Room{}, classify("enter room", notFound(err, "user", userID))
	}

	var at geo.Point
	switch {
	case viewer != nil && viewer.Valid():
		at = *viewer
	case user.LocationKnown:
		at, _ = user.Location()
	default:
		metrics.RoomOp("enter", "location_unavailable")
		return model.Room{}, ErrLocationUnavailable
	}
	if d := geo.Distance(at, room.Start()); d > r.cfg.AccessRadiusM {
		metrics.RoomOp("enter", "out_of_reach")
		return model.Room{}, fmt.Errorf("%w: %.0fm away, limit %.0fm", ErrOutOfReach, d, r.cfg.AccessRadiusM)
	}
	if ok, required, shortfall := fare.CheckBalanceWithMargin(user.Balance, room.CostPerPerson, r.cfg.BalanceMargin); !ok {
		metrics.RoomOp("enter", "insufficient_balance")
		return model.Room{}, &InsufficientBalanceError{UserID: userID, Balance: user.Balance, Required: required, Shortfall: shortfall}
	}
	return r.JoinRoom(ctx, roomID, userID)
}
