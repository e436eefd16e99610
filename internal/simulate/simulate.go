// Package simulate stands in for the other students of a room so the whole
// flow can be exercised without real devices. A Recruiter seats seeded
// students in a recruiting room and readies them; a Simulator walks the
// members of a gathering room toward its start point. Both are development
// aids enabled by SIMULATE_MEMBERS.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/iliyamo/ridesplit/internal/clock"
	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/service"
)

// Placement and step sizes.
const (
	MinPlacementM = 500.0
	MaxPlacementM = 1000.0
	MinStep       = 0.10
	MaxStep       = 0.20
)

// ErrAlreadyRunning is returned when the room is already simulated.
var ErrAlreadyRunning = errors.New("simulation already running for this room")

// Gathering is the part of the gathering coordinator the simulator uses.
type Gathering interface {
	Status(ctx context.Context, roomID string) (service.GatheringStatus, error)
	UpdateUserLocation(ctx context.Context, userID string, lat, lon float64) error
}

// Sessions lets the simulator hang its stop function on the room's trip
// session.
type Sessions interface {
	Attach(roomID string, stop func()) error
}

type Simulator struct {
	gathering Gathering
	sessions  Sessions
	clock     clock.Clock
	tick      time.Duration
	log       *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu   sync.Mutex
	runs map[string]*run
}

// New builds a Simulator. rng may be nil for a randomly seeded source.
func New(g Gathering, s Sessions, c clock.Clock, tick time.Duration, rng *rand.Rand, log *slog.Logger) *Simulator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if log == nil {
		log = slog.Default()
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &Simulator{gathering: g, sessions: s, clock: c, tick: tick, rng: rng, log: log, runs: map[string]*run{}}
}

type run struct {
	roomID  string
	members []string

	mu      sync.Mutex // held for a whole step
	timer   *clock.Timer
	stopped bool
	ticks   int
}

func (r *run) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.timer.Stop()
}

func (s *Simulator) float() float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64()
}

// Start places every tracked member except actorID at a random point
// 500 to 1000 meters from the start and begins moving them in. It
// returns the simulated member IDs.
func (s *Simulator) Start(ctx context.Context, roomID, actorID string) ([]string, error) {
	r := &run{roomID: roomID}
	s.mu.Lock()
	if cur, ok := s.runs[roomID]; ok && !cur.done() {
		s.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	s.runs[roomID] = r
	s.mu.Unlock()

	if err := s.place(ctx, r, actorID); err != nil {
		r.stop()
		s.mu.Lock()
		if s.runs[roomID] == r {
			delete(s.runs, roomID)
		}
		s.mu.Unlock()
		return nil, err
	}
	s.log.Info("member simulation started", "room_id", roomID, "members", len(r.members))
	return r.members, nil
}

// place scatters the members, hangs r on the session and arms the first
// tick.
func (s *Simulator) place(ctx context.Context, r *run, actorID string) error {
	st, err := s.gathering.Status(ctx, r.roomID)
	if err != nil {
		return err
	}
	for _, m := range st.Members {
		if m.UserID == actorID || !m.Tracking {
			continue
		}
		dist := MinPlacementM + s.float()*(MaxPlacementM-MinPlacementM)
		p := geo.Offset(st.Start, dist, s.float()*2*math.Pi)
		if err := s.gathering.UpdateUserLocation(ctx, m.UserID, p.Lat, p.Lon); err != nil {
			return fmt.Errorf("place %s: %w", m.UserID, err)
		}
		r.members = append(r.members, m.UserID)
	}
	if len(r.members) == 0 {
		return fmt.Errorf("%w: no tracked members to simulate", service.ErrNotTracked)
	}
	if err := s.sessions.Attach(r.roomID, r.stop); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.timer = s.clock.AfterFunc(s.tick, func() { s.step(r) })
	}
	return nil
}

func (r *run) done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

// step moves every simulated member that has not arrived. The next tick
// is armed only after this one finished.
func (s *Simulator) step(r *run) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	r.ticks++

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := s.gathering.Status(ctx, r.roomID)
	if err != nil {
		s.log.Warn("simulation stopped", "room_id", r.roomID, "error", err)
		r.stopped = true
		return
	}

	simulated := make(map[string]bool, len(r.members))
	for _, id := range r.members {
		simulated[id] = true
	}
	moving := 0
	for _, m := range st.Members {
		if !simulated[m.UserID] || m.Arrived || !m.LocationKnown {
			continue
		}
		next := geo.Toward(m.Location, st.Start, MinStep+s.float()*(MaxStep-MinStep))
		err := s.gathering.UpdateUserLocation(ctx, m.UserID, next.Lat, next.Lon)
		if errors.Is(err, service.ErrNotTracked) {
			continue
		}
		if err != nil {
			s.log.Warn("simulated move failed", "room_id", r.roomID, "user_id", m.UserID, "error", err)
		}
		moving++
	}
	if moving == 0 {
		r.stopped = true
		s.log.Info("member simulation finished", "room_id", r.roomID, "ticks", r.ticks)
		return
	}
	r.timer = s.clock.AfterFunc(s.tick, func() { s.step(r) })
}

// Running reports whether roomID is being simulated.
func (s *Simulator) Running(roomID string) bool {
	s.mu.Lock()
	r, ok := s.runs[roomID]
	s.mu.Unlock()
	return ok && !r.done()
}
