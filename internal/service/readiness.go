package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/ridesplit/internal/metrics"
	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/repository"
)

// ReadinessCoordinator keeps the per-member ready flags and moves a room to
// READY_ALL once every member is ready.
type ReadinessCoordinator struct {
	base
	pipeline *TripPipeline
}

// ReadyResult reports a member's flag after a change and what it did to
// the room.
type ReadyResult struct {
	RoomID   string           `json:"room_id"`
	UserID   string           `json:"user_id"`
	Ready    bool             `json:"is_ready"`
	AllReady bool             `json:"all_ready"`
	Status   model.RoomStatus `json:"status"`
	Phase    model.Phase      `json:"phase"`
}

// ToggleReady flips userID's ready flag. When that makes every member
// ready the room becomes READY_ALL and location tracking starts for all
// members. Un-readying never moves the status back.
//
// The room row is locked before anything is read, so toggles and joins on
// one room run one after another and the last toggle sees every flag.
func (c *ReadinessCoordinator) ToggleReady(ctx context.Context, roomID, userID string) (ReadyResult, error) {
	res := ReadyResult{RoomID: roomID, UserID: userID}
	err := c.tx(ctx, "toggle ready", func(tx *sql.Tx) error {
		if err := c.store.Rooms.LockTx(ctx, tx, roomID); err != nil {
			return notFound(err, "room", roomID)
		}
		room, err := c.store.Rooms.GetTx(ctx, tx, roomID)
		if err != nil {
			return notFound(err, "room", roomID)
		}
		if room.Phase != model.PhaseCreated && room.Phase != model.PhaseGathering {
			return &TransitionError{From: string(room.Phase), To: string(room.Phase),
				Reason: "readiness can only change before the taxi is called"}
		}
		ready, err := c.store.Members.ToggleReadyTx(ctx, tx, roomID, userID)
		if err != nil {
			if errors.Is(err, repository.ErrMemberNotFound) {
				return ErrNotMember
			}
			return err
		}
		res.Ready = ready
		return c.evaluate(ctx, tx, room, &res)
	})
	metrics.RoomOp("ready", kindOf(err))
	if err != nil {
		return ReadyResult{}, err
	}
	c.afterCommit(ctx, &res)
	return res, nil
}

// SetOwnerReady marks the owner ready without toggling. Calling it again
// changes nothing. It does not evaluate the room: a room holding only its
// owner keeps recruiting.
func (c *ReadinessCoordinator) SetOwnerReady(ctx context.Context, roomID string) error {
	return c.tx(ctx, "set owner ready", func(tx *sql.Tx) error {
		room, err := c.store.Rooms.GetTx(ctx, tx, roomID)
		if err != nil {
			return notFound(err, "room", roomID)
		}
		err = c.store.Members.SetReadyTx(ctx, tx, roomID, room.OwnerID, true)
		if errors.Is(err, repository.ErrMemberNotFound) {
			return fmt.Errorf("owner %s of room %s: %w", room.OwnerID, roomID, ErrNotMember)
		}
		return err
	})
}

// evaluate re-reads the member set inside tx and applies READY_ALL.
func (c *ReadinessCoordinator) evaluate(ctx context.Context, tx *sql.Tx, room model.Room, res *ReadyResult) error {
	members, err := c.store.Members.ListTx(ctx, tx, room.ID)
	if err != nil {
		return err
	}
	res.AllReady = model.AllReady(members)
	res.Status = room.Status
	res.Phase = room.Phase
	if !res.AllReady || !room.Status.CanBecome(model.StatusReadyAll) {
		return nil
	}
	changed, err := c.store.Rooms.SetStatusTx(ctx, tx, room.ID, model.StatusReadyAll,
		model.StatusRecruiting, model.StatusWaiting)
	if err != nil {
		return err
	}
	if changed {
		res.Status = model.StatusReadyAll
	}
	_, err = c.store.Users.SetRoomTrackingTx(ctx, tx, room.ID, true)
	return err
}

// afterCommit hands an all-ready room with company to the pipeline.
func (c *ReadinessCoordinator) afterCommit(ctx context.Context, res *ReadyResult) {
	if res.Status == model.StatusReadyAll {
		c.log.Info("room ready", "room_id", res.RoomID, "trigger", res.UserID)
	}
	if !res.AllReady || res.Phase != model.PhaseCreated {
		return
	}
	phase, err := c.pipeline.OnAllReady(ctx, res.RoomID)
	if err != nil {
		c.log.Debug("gathering not started", "room_id", res.RoomID, "reason", err)
		return
	}
	res.Phase = phase
}
