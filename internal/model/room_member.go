package model

import (
	"time"

	"github.com/iliyamo/ridesplit/internal/geo"
)

// RoomMember links a user to a room. (RoomID, UserID) is unique.
type RoomMember struct {
	RoomID   string    `json:"room_id"`
	UserID   string    `json:"user_id"`
	IsReady  bool      `json:"is_ready"`
	JoinedAt time.Time `json:"joined_at"`
}

// AllReady reports whether every member is ready. An empty set is not.
func AllReady(members []RoomMember) bool {
	if len(members) == 0 {
		return false
	}
	for _, m := range members {
		if !m.IsReady {
			return false
		}
	}
	return true
}

// MemberDetail is a member joined with the user's name and last location.
type MemberDetail struct {
	RoomMember
	Name          string    `json:"name"`
	Location      geo.Point `json:"location"`
	LocationKnown bool      `json:"location_known"`
	Tracking      bool      `json:"is_location_active"`
}
