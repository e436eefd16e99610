package service

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/metrics"
	"github.com/iliyamo/ridesplit/internal/model"
)

// GatheringCoordinator follows member locations against a room's start
// point.
type GatheringCoordinator struct {
	base
}

// MemberView is a member with their distance to the start point. DistanceM
// is nil while the member never reported a location.
type MemberView struct {
	model.MemberDetail
	DistanceM *float64 `json:"distance_m,omitempty"`
	Arrived   bool     `json:"arrived"`
}

// GatheringStatus is the per-room arrival summary.
type GatheringStatus struct {
	RoomID    string       `json:"room_id"`
	Phase     model.Phase  `json:"phase"`
	Start     geo.Point    `json:"start"`
	RadiusM   float64      `json:"radius_m"`
	Within    int          `json:"within"`
	Total     int          `json:"total"`
	AllWithin bool         `json:"all_within"`
	Members   []MemberView `json:"members"`
}

// measure computes every member's distance to start and counts the ones
// inside radius. Unknown locations never count.
func measure(start geo.Point, members []model.MemberDetail, radius float64) ([]MemberView, int) {
	views := make([]MemberView, 0, len(members))
	within := 0
	for _, m := range members {
		v := MemberView{MemberDetail: m}
		if m.LocationKnown {
			d := geo.Distance(m.Location, start)
			v.DistanceM = &d
			v.Arrived = d <= radius
		}
		if v.Arrived {
			within++
		}
		views = append(views, v)
	}
	return views, within
}

// UpdateUserLocation stores a position only while tracking is on for the
// user; otherwise it reports ErrNotTracked and stores nothing.
func (g *GatheringCoordinator) UpdateUserLocation(ctx context.Context, userID string, lat, lon float64) error {
	if !(geo.Point{Lat: lat, Lon: lon}).Valid() {
		return fmt.Errorf("%w: coordinates out of range", ErrInvalidInput)
	}
	tracked, err := g.store.Users.UpdateLocation(ctx, userID, lat, lon)
	if err != nil {
		return classify("update location", notFound(err, "user", userID))
	}
	if !tracked {
		return ErrNotTracked
	}
	return nil
}

// ReportLocation is the member ping of a room: it stores the position and
// returns the room's arrival summary.
func (g *GatheringCoordinator) ReportLocation(ctx context.Context, roomID, userID string, p geo.Point) (GatheringStatus, error) {
	member, err := g.store.Members.IsMember(ctx, roomID, userID)
	if err != nil {
		return GatheringStatus{}, classify("report location", err)
	}
	if !member {
		if _, err := g.store.Rooms.Get(ctx, roomID); err != nil {
			return GatheringStatus{}, classify("report location", notFound(err, "room", roomID))
		}
		return GatheringStatus{}, ErrNotMember
	}
	err = g.UpdateUserLocation(ctx, userID, p.Lat, p.Lon)
	metrics.RoomOp("location", kindOf(err))
	if err != nil {
		return GatheringStatus{}, err
	}
	return g.Status(ctx, roomID)
}

// MembersWithinRadius counts members whose last location is within
// radius meters of the start point, boundary included.
func (g *GatheringCoordinator) MembersWithinRadius(ctx context.Context, roomID string, radius float64) (int, error) {
	st, err := g.status(ctx, roomID, radius)
	if err != nil {
		return 0, err
	}
	return st.Within, nil
}

// AllWithinRadius reports whether the within count equals the room's
// member count.
func (g *GatheringCoordinator) AllWithinRadius(ctx context.Context, roomID string, radius float64) (bool, error) {
	st, err := g.status(ctx, roomID, radius)
	if err != nil {
		return false, err
	}
	return st.AllWithin, nil
}

// Status uses the configured gathering radius.
func (g *GatheringCoordinator) Status(ctx context.Context, roomID string) (GatheringStatus, error) {
	return g.status(ctx, roomID, g.cfg.GatherRadiusM)
}

func (g *GatheringCoordinator) status(ctx context.Context, roomID string, radius float64) (GatheringStatus, error) {
	room, err := g.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return GatheringStatus{}, classify("gathering status", notFound(err, "room", roomID))
	}
	members, err := g.store.Members.ListDetailed(ctx, roomID)
	if err != nil {
		return GatheringStatus{}, classify("gathering status", err)
	}
	views, within := measure(room.Start(), members, radius)
	return GatheringStatus{
		RoomID:    roomID,
		Phase:     room.Phase,
		Start:     room.Start(),
		RadiusM:   radius,
		Within:    within,
		Total:     room.CurrentMembers,
		AllWithin: room.CurrentMembers > 0 && within == room.CurrentMembers,
		Members:   views,
	}, nil
}

// StopTracking switches location tracking off for every member.
func (g *GatheringCoordinator) StopTracking(ctx context.Context, roomID string) error {
	return g.tx(ctx, "stop tracking", func(tx *sql.Tx) error {
		if _, err := g.store.Rooms.GetTx(ctx, tx, roomID); err != nil {
			return notFound(err, "room", roomID)
		}
		_, err := g.store.Users.SetRoomTrackingTx(ctx, tx, roomID, false)
		return err
	})
}
