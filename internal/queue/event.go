// Package queue carries trip events over RabbitMQ: a publisher used by the
// trip pipeline and a consumer that appends them to a log file.
package queue

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Event types.
const (
	EventPhaseChanged = "trip.phase_changed"
	EventSettled      = "trip.settled"
	EventCancelled    = "trip.cancelled"
)

// TripEvent is the JSON message published for every phase change and
// settlement.
type TripEvent struct {
	ID            string   `json:"id"`
	Type          string   `json:"type"`
	RoomID        string   `json:"room_id"`
	From          string   `json:"from,omitempty"`
	Phase         string   `json:"phase"`
	ActorID       string   `json:"actor_id,omitempty"`
	Members       []string `json:"members,omitempty"`
	ActualTotal   int      `json:"actual_total,omitempty"`
	CostPerPerson int      `json:"cost_per_person,omitempty"`
	OccurredAt    string   `json:"occurred_at"`
}

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID returns a monotonic ULID for at.
func NewEventID(at time.Time) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at.UTC()), entropy).String()
}

// NewTripEvent fills in ID and OccurredAt.
func NewTripEvent(typ, roomID string, at time.Time) TripEvent {
	return TripEvent{
		ID:         NewEventID(at),
		Type:       typ,
		RoomID:     roomID,
		OccurredAt: at.UTC().Format(time.RFC3339),
	}
}
