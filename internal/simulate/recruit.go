package simulate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/iliyamo/ridesplit/internal/clock"
	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/service"
)

// Rooms is the part of the room registry the recruiter uses.
type Rooms interface {
	GetRoom(ctx context.Context, roomID string) (service.RoomDetail, error)
	JoinRoom(ctx context.Context, roomID, userID string) (model.Room, error)
}

// Readiness flips member ready flags.
type Readiness interface {
	ToggleReady(ctx context.Context, roomID, userID string) (service.ReadyResult, error)
}

// Students lists the accounts the recruiter may seat.
type Students interface {
	ListIDsByRole(ctx context.Context, role string) ([]string, error)
}

// RecruitingHooks stops a recruiter when its room starts, loses a member
// or is deleted.
type RecruitingHooks interface {
	AttachRecruiting(ctx context.Context, roomID string, stop func()) error
}

// Recruiter fills a recruiting room with seeded students, one per tick,
// and then marks them ready one per tick until the room starts gathering.
type Recruiter struct {
	rooms     Rooms
	readiness Readiness
	students  Students
	hooks     RecruitingHooks
	clock     clock.Clock
	tick      time.Duration
	log       *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu   sync.Mutex
	runs map[string]*recruitRun
}

func NewRecruiter(rooms Rooms, readiness Readiness, students Students, hooks RecruitingHooks,
	c clock.Clock, tick time.Duration, rng *rand.Rand, log *slog.Logger) *Recruiter {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if log == nil {
		log = slog.Default()
	}
	if tick <= 0 {
		tick = 2 * time.Second
	}
	return &Recruiter{
		rooms: rooms, readiness: readiness, students: students, hooks: hooks,
		clock: c, tick: tick, rng: rng, log: log, runs: map[string]*recruitRun{},
	}
}

// recruitRun is one room's recruiting loop. mu guards timer and stopped
// only; a step runs without it so stop may be called from inside a step.
type recruitRun struct {
	roomID  string
	actorID string

	mu      sync.Mutex
	timer   *clock.Timer
	stopped bool
}

func (r *recruitRun) stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stopped = true
	r.timer.Stop()
}

func (r *recruitRun) done() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (s *Recruiter) intN(n int) int {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.IntN(n)
}

// Start begins recruiting for a room still in CREATED. actorID is never
// toggled by the recruiter.
func (s *Recruiter) Start(ctx context.Context, roomID, actorID string) error {
	r := &recruitRun{roomID: roomID, actorID: actorID}
	s.mu.Lock()
	if cur, ok := s.runs[roomID]; ok && !cur.done() {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	s.runs[roomID] = r
	s.mu.Unlock()

	if err := s.begin(ctx, r); err != nil {
		r.stop()
		s.mu.Lock()
		if s.runs[roomID] == r {
			delete(s.runs, roomID)
		}
		s.mu.Unlock()
		return err
	}
	s.log.Info("member recruiting started", "room_id", roomID)
	return nil
}

func (s *Recruiter) begin(ctx context.Context, r *recruitRun) error {
	detail, err := s.rooms.GetRoom(ctx, r.roomID)
	if err != nil {
		return err
	}
	if detail.Room.Phase != model.PhaseCreated {
		return fmt.Errorf("%w: room %s is %s", service.ErrInvalidStateTransition, r.roomID, detail.Room.Phase)
	}
	if err := s.hooks.AttachRecruiting(ctx, r.roomID, r.stop); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.stopped {
		r.timer = s.clock.AfterFunc(s.tick, func() { s.step(r) })
	}
	return nil
}

// step seats or readies one member. The next tick is armed only after
// this one finished.
func (s *Recruiter) step(r *recruitRun) {
	if r.done() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	more := s.advance(ctx, r)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return
	}
	if !more {
		r.stopped = true
		s.log.Info("member recruiting finished", "room_id", r.roomID)
		return
	}
	r.timer = s.clock.AfterFunc(s.tick, func() { s.step(r) })
}

// advance reports whether there is anything left to do.
func (s *Recruiter) advance(ctx context.Context, r *recruitRun) bool {
	detail, err := s.rooms.GetRoom(ctx, r.roomID)
	if err != nil {
		s.log.Warn("recruiting stopped", "room_id", r.roomID, "error", err)
		return false
	}
	room := detail.Room
	if room.Phase != model.PhaseCreated {
		return false
	}
	inRoom := make(map[string]bool, len(detail.Members))
	for _, m := range detail.Members {
		inRoom[m.UserID] = true
	}

	if room.Status == model.StatusRecruiting && room.CurrentMembers < room.MaxMembers {
		ids, err := s.students.ListIDsByRole(ctx, model.RoleStudent)
		if err != nil {
			s.log.Warn("recruiting stopped", "room_id", r.roomID, "error", err)
			return false
		}
		var free []string
		for _, id := range ids {
			if !inRoom[id] && id != r.actorID {
				free = append(free, id)
			}
		}
		if len(free) > 0 {
			id := free[s.intN(len(free))]
			_, err := s.rooms.JoinRoom(ctx, r.roomID, id)
			switch {
			case err == nil:
				s.log.Debug("simulated join", "room_id", r.roomID, "user_id", id)
			case errors.Is(err, service.ErrCapacityExceeded), errors.Is(err, service.ErrAlreadyMember):
			default:
				s.log.Warn("simulated join failed", "room_id", r.roomID, "user_id", id, "error", err)
				return false
			}
			return true
		}
	}

	var waiting []string
	for _, m := range detail.Members {
		if !m.IsReady && m.UserID != room.OwnerID && m.UserID != r.actorID {
			waiting = append(waiting, m.UserID)
		}
	}
	if len(waiting) == 0 {
		return false
	}
	id := waiting[s.intN(len(waiting))]
	res, err := s.readiness.ToggleReady(ctx, r.roomID, id)
	if err != nil {
		s.log.Warn("simulated ready failed", "room_id", r.roomID, "user_id", id, "error", err)
		return false
	}
	s.log.Debug("simulated ready", "room_id", r.roomID, "user_id", id, "all_ready", res.AllReady)
	return res.Phase == model.PhaseCreated
}

// Running reports whether roomID is being recruited for.
func (s *Recruiter) Running(roomID string) bool {
	s.mu.Lock()
	r, ok := s.runs[roomID]
	s.mu.Unlock()
	return ok && !r.done()
}
