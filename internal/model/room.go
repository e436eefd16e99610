package model

import (
	"fmt"
	"time"

	"github.com/iliyamo/ridesplit/internal/geo"
)

// RoomStatus is the recruiting state of a room. It only moves forward:
// RECRUITING < WAITING < READY_ALL < CLOSED. Rooms leave the sequence by
// being deleted when their last member leaves.
type RoomStatus string

const (
	StatusRecruiting RoomStatus = "RECRUITING"
	StatusWaiting    RoomStatus = "WAITING"
	StatusReadyAll   RoomStatus = "READY_ALL"
	StatusClosed     RoomStatus = "CLOSED"
)

var statusRank = map[RoomStatus]int{
	StatusRecruiting: 0,
	StatusWaiting:    1,
	StatusReadyAll:   2,
	StatusClosed:     3,
}

func (s RoomStatus) Valid() bool {
	_, ok := statusRank[s]
	return ok
}

// CanBecome reports whether a room in s may move to next.
func (s RoomStatus) CanBecome(next RoomStatus) bool {
	from, ok1 := statusRank[s]
	to, ok2 := statusRank[next]
	return ok1 && ok2 && to > from
}

// Phase is the step of the trip pipeline. Phases advance one at a time.
type Phase string

const (
	PhaseCreated   Phase = "CREATED"
	PhaseGathering Phase = "GATHERING"
	PhaseSearching Phase = "SEARCHING"
	PhaseMatching  Phase = "MATCHING"
	PhaseRiding    Phase = "RIDING"
	PhaseSettling  Phase = "SETTLING"
)

var phaseOrder = []Phase{PhaseCreated, PhaseGathering, PhaseSearching, PhaseMatching, PhaseRiding, PhaseSettling}

func (p Phase) index() int {
	for i, q := range phaseOrder {
		if q == p {
			return i
		}
	}
	return -1
}

func (p Phase) Valid() bool { return p.index() >= 0 }

// Next returns the phase that follows p. SETTLING has no successor.
func (p Phase) Next() (Phase, bool) {
	i := p.index()
	if i < 0 || i == len(phaseOrder)-1 {
		return "", false
	}
	return phaseOrder[i+1], true
}

// CanAdvanceTo reports whether next immediately follows p.
func (p Phase) CanAdvanceTo(next Phase) bool {
	n, ok := p.Next()
	return ok && n == next
}

// Automatic reports whether the pipeline leaves p on a timer rather than
// on a member action.
func (p Phase) Automatic() bool {
	switch p {
	case PhaseSearching, PhaseMatching, PhaseRiding:
		return true
	}
	return false
}

// ParseRoomStatus and ParsePhase validate values read back from storage.
func ParseRoomStatus(s string) (RoomStatus, error) {
	st := RoomStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown room status %q", s)
	}
	return st, nil
}

func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown trip phase %q", s)
	}
	return p, nil
}

// Room mirrors the rooms table. IsAccessible and DistanceM are computed
// per viewer and never stored.
type Room struct {
	ID             string     `json:"room_id"`
	OwnerID        string     `json:"owner_id"`
	StartLocation  string     `json:"start_location"`
	StartLat       float64    `json:"start_latitude"`
	StartLon       float64    `json:"start_longitude"`
	EndLocation    string     `json:"end_location"`
	EndLat         float64    `json:"end_latitude"`
	EndLon         float64    `json:"end_longitude"`
	CurrentMembers int        `json:"current_members"`
	MaxMembers     int        `json:"max_members"`
	EstimatedCost  int        `json:"estimated_cost"`
	CostPerPerson  int        `json:"cost_per_person"`
	Status         RoomStatus `json:"status"`
	Phase          Phase      `json:"phase"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`

	IsAccessible bool     `json:"is_accessible"`
	DistanceM    *float64 `json:"distance_m,omitempty"`
}

func (r Room) Start() geo.Point { return geo.Point{Lat: r.StartLat, Lon: r.StartLon} }
func (r Room) End() geo.Point   { return geo.Point{Lat: r.EndLat, Lon: r.EndLon} }

// Full reports whether the room reached its capacity.
func (r Room) Full() bool { return r.CurrentMembers >= r.MaxMembers }
