package service

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator produces room IDs.
type IDGenerator interface {
	NewRoomID() string
}

type uuidRoomIDs struct{}

// NewRoomID returns "room_" followed by eight hex characters.
func (uuidRoomIDs) NewRoomID() string {
	return "room_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}
