package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/iliyamo/ridesplit/internal/clock"
	"github.com/iliyamo/ridesplit/internal/fare"
	"github.com/iliyamo/ridesplit/internal/metrics"
	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/queue"
	"github.com/iliyamo/ridesplit/internal/repository"
)

// TripPipeline drives a room through
// CREATED -> GATHERING -> SEARCHING -> MATCHING -> RIDING -> SETTLING.
//
// Every phase change is a compare-and-set on the stored phase, so a
// transition that raced with another one is refused instead of applied
// twice. Rooms between GATHERING and SETTLING own a session holding their
// timer and any attached background work; ending the session cancels all
// of it. Work attached to a room still recruiting is kept apart and
// stopped when the room starts, loses a member or is deleted.
type TripPipeline struct {
	base
	clock    clock.Clock
	events   Publisher
	variance fare.Variance

	mu         sync.Mutex // guards sessions and recruiting only
	sessions   map[string]*session
	recruiting map[string][]func()
}

// session is the in-memory side of a room's trip. mu is held while a
// timer step runs, so steps of one room never overlap.
type session struct {
	roomID   string
	mu       sync.Mutex
	timer    *clock.Timer
	attached []func()
	closed   bool
}

// shutdownLocked cancels the timer and attached work. s.mu must be held.
func (s *session) shutdownLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.timer.Stop()
	s.timer = nil
	s.stopAttachedLocked()
	metrics.SessionClosed()
}

func (s *session) stopAttachedLocked() {
	for _, stop := range s.attached {
		stop()
	}
	s.attached = nil
}

// Phase returns the stored phase of roomID.
func (p *TripPipeline) Phase(ctx context.Context, roomID string) (model.Phase, error) {
	room, err := p.store.Rooms.Get(ctx, roomID)
	if err != nil {
		return "", classify("get phase", notFound(err, "room", roomID))
	}
	return room.Phase, nil
}

// Start moves an all-ready room with more than one member from CREATED to
// GATHERING. actorID must be the owner; the empty actor is the readiness
// coordinator itself. Starting a room that is already gathering is a
// no-op.
func (p *TripPipeline) Start(ctx context.Context, roomID, actorID string) (model.Room, error) {
	var (
		room    model.Room
		members []string
		already bool
	)
	err := p.tx(ctx, "start trip", func(tx *sql.Tx) error {
		if err := p.store.Rooms.LockTx(ctx, tx, roomID); err != nil {
			return notFound(err, "room", roomID)
		}
		var err error
		room, err = p.store.Rooms.GetTx(ctx, tx, roomID)
		if err != nil {
			return notFound(err, "room", roomID)
		}
		if actorID != "" {
			if err := p.requireOwner(ctx, tx, room, actorID); err != nil {
				return err
			}
		}
		if room.Phase == model.PhaseGathering {
			already = true
			return nil
		}
		if room.Phase != model.PhaseCreated {
			return phaseError(room.Phase, model.PhaseGathering, "the trip has already started")
		}
		if room.CurrentMembers <= 1 {
			return phaseError(room.Phase, model.PhaseGathering, "at least two members are required")
		}
		list, err := p.store.Members.ListTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if !model.AllReady(list) {
			return phaseError(room.Phase, model.PhaseGathering, "not every member is ready")
		}
		if _, err := p.store.Rooms.SetStatusTx(ctx, tx, roomID, model.StatusReadyAll,
			model.StatusRecruiting, model.StatusWaiting); err != nil {
			return err
		}
		if _, err := p.store.Users.SetRoomTrackingTx(ctx, tx, roomID, true); err != nil {
			return err
		}
		ok, err := p.store.Rooms.AdvancePhaseTx(ctx, tx, roomID, model.PhaseCreated, model.PhaseGathering)
		if err != nil {
			return err
		}
		if !ok {
			return phaseError(room.Phase, model.PhaseGathering, "the room changed concurrently")
		}
		members = memberIDs(list)
		room, err = p.store.Rooms.GetTx(ctx, tx, roomID)
		return err
	})
	metrics.RoomOp("start", kindOf(err))
	if err != nil {
		return model.Room{}, err
	}
	p.stopRecruiting(roomID)
	if already {
		return room, nil
	}
	p.open(roomID)
	p.transitioned(roomID, model.PhaseCreated, model.PhaseGathering, actorID, members)
	return room, nil
}

// requireOwner refuses actors that are not a current member holding the
// room.
func (p *TripPipeline) requireOwner(ctx context.Context, tx *sql.Tx, room model.Room, actorID string) error {
	member, err := p.store.Members.IsMemberTx(ctx, tx, room.ID, actorID)
	if err != nil {
		return err
	}
	if !member {
		return ErrNotMember
	}
	if actorID != room.OwnerID {
		return ErrNotOwner
	}
	return nil
}

// OnAllReady is called by the readiness coordinator after a member made
// the whole room ready.
func (p *TripPipeline) OnAllReady(ctx context.Context, roomID string) (model.Phase, error) {
	room, err := p.Start(ctx, roomID, "")
	if err != nil {
		return "", err
	}
	return room.Phase, nil
}

// CallTaxi is the owner's departure action. It re-checks that every
// member stands within the gathering radius, stops location tracking and
// attached simulations, and enters SEARCHING. From there the pipeline
// advances on its own timers.
func (p *TripPipeline) CallTaxi(ctx context.Context, roomID, actorID string) (model.Room, error) {
	var (
		room    model.Room
		members []string
	)
	err := p.tx(ctx, "call taxi", func(tx *sql.Tx) error {
		if err := p.store.Rooms.LockTx(ctx, tx, roomID); err != nil {
			return notFound(err, "room", roomID)
		}
		var err error
		room, err = p.store.Rooms.GetTx(ctx, tx, roomID)
		if err != nil {
			return notFound(err, "room", roomID)
		}
		if err := p.requireOwner(ctx, tx, room, actorID); err != nil {
			return err
		}
		if room.Phase != model.PhaseGathering {
			return phaseError(room.Phase, model.PhaseSearching, "members are not gathering")
		}
		list, err := p.store.Members.ListDetailedTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if _, within := measure(room.Start(), list, p.cfg.GatherRadiusM); within != room.CurrentMembers {
			return phaseError(room.Phase, model.PhaseSearching,
				fmt.Sprintf("%d of %d members are within %.0fm of the start point", within, room.CurrentMembers, p.cfg.GatherRadiusM))
		}
		if _, err := p.store.Users.SetRoomTrackingTx(ctx, tx, roomID, false); err != nil {
			return err
		}
		ok, err := p.store.Rooms.AdvancePhaseTx(ctx, tx, roomID, model.PhaseGathering, model.PhaseSearching)
		if err != nil {
			return err
		}
		if !ok {
			return phaseError(room.Phase, model.PhaseSearching, "the room changed concurrently")
		}
		for _, m := range list {
			members = append(members, m.UserID)
		}
		room, err = p.store.Rooms.GetTx(ctx, tx, roomID)
		return err
	})
	metrics.RoomOp("call_taxi", kindOf(err))
	if err != nil {
		return model.Room{}, err
	}

	s := p.open(roomID)
	s.mu.Lock()
	s.stopAttachedLocked()
	s.timer.Stop()
	if !s.closed {
		p.scheduleLocked(s, model.PhaseSearching)
	}
	s.mu.Unlock()

	p.transitioned(roomID, model.PhaseGathering, model.PhaseSearching, actorID, members)
	return room, nil
}

func (p *TripPipeline) delay(from model.Phase) time.Duration {
	switch from {
	case model.PhaseSearching:
		return p.cfg.SearchDelay
	case model.PhaseMatching:
		return p.cfg.MatchDelay
	case model.PhaseRiding:
		return p.cfg.RideDelay
	}
	return 0
}

// scheduleLocked arms the timer that leaves from. s.mu must be held.
func (p *TripPipeline) scheduleLocked(s *session, from model.Phase) {
	s.timer = p.clock.AfterFunc(p.delay(from), func() { p.autoAdvance(s, from) })
}

// autoAdvance runs when a timed phase expires. A store failure re-arms
// the same step; losing the compare-and-set means the room moved or was
// deleted, and the session ends.
func (p *TripPipeline) autoAdvance(s *session, from model.Phase) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.timer = nil

	to, ok := from.Next()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		advanced bool
		members  []string
	)
	err := p.tx(ctx, "advance phase", func(tx *sql.Tx) error {
		var err error
		advanced, err = p.store.Rooms.AdvancePhaseTx(ctx, tx, s.roomID, from, to)
		if err != nil || !advanced {
			return err
		}
		list, err := p.store.Members.ListTx(ctx, tx, s.roomID)
		members = memberIDs(list)
		return err
	})
	if err != nil {
		p.log.Error("phase advance failed, retrying", "room_id", s.roomID, "from", from, "to", to, "error", err)
		p.scheduleLocked(s, from)
		return
	}
	if !advanced {
		p.log.Info("room left the pipeline", "room_id", s.roomID, "expected", from)
		p.forget(s)
		s.shutdownLocked()
		return
	}

	p.transitioned(s.roomID, from, to, "", members)
	if to.Automatic() {
		p.scheduleLocked(s, to)
		return
	}
	p.forget(s)
	s.shutdownLocked()
}

// Settle computes the actual fare and debits every member's share in one
// transaction. The first successful call closes the room; later calls
// return the stored settlement. When any member cannot pay their share
// nothing is debited and the room stays in SETTLING.
func (p *TripPipeline) Settle(ctx context.Context, roomID, userID string) (model.Settlement, error) {
	var (
		out     model.Settlement
		fresh   bool
		members []string
	)
	err := p.tx(ctx, "settle", func(tx *sql.Tx) error {
		room, err := p.store.Rooms.GetTx(ctx, tx, roomID)
		if err != nil {
			return notFound(err, "room", roomID)
		}
		member, err := p.store.Members.IsMemberTx(ctx, tx, roomID, userID)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotMember
		}
		existing, err := p.store.Settlements.GetTx(ctx, tx, roomID)
		if err == nil {
			out = existing
			return nil
		}
		if !errors.Is(err, repository.ErrSettlementNotFound) {
			return err
		}
		if room.Phase != model.PhaseSettling {
			return phaseError(room.Phase, model.PhaseSettling, "the ride has not finished")
		}
		list, err := p.store.Members.ListTx(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if room.CurrentMembers <= 0 || len(list) == 0 {
			return phaseError(room.Phase, model.PhaseSettling, "the room has no members")
		}

		actual := fare.ActualTotal(room.EstimatedCost, p.variance.Draw())
		s := model.Settlement{
			RoomID:        roomID,
			EstimatedCost: room.EstimatedCost,
			ActualTotal:   actual,
			CostPerPerson: actual / room.CurrentMembers,
			VarianceBP:    varianceBP(actual, room.EstimatedCost),
			SettledAt:     p.clock.Now().UTC().Truncate(time.Second),
		}
		for _, m := range list {
			after, err := p.store.Users.DebitTx(ctx, tx, m.UserID, s.CostPerPerson)
			if errors.Is(err, repository.ErrInsufficientFunds) {
				u, gerr := p.store.Users.GetTx(ctx, tx, m.UserID)
				if gerr != nil {
					return gerr
				}
				return &InsufficientBalanceError{
					UserID:    m.UserID,
					Balance:   u.Balance,
					Required:  s.CostPerPerson,
					Shortfall: s.CostPerPerson - u.Balance,
				}
			}
			if err != nil {
				return err
			}
			s.Debits = append(s.Debits, model.SettlementDebit{UserID: m.UserID, Amount: s.CostPerPerson, BalanceAfter: after})
		}
		if err := p.store.Settlements.CreateTx(ctx, tx, s); err != nil {
			return err
		}
		if _, err := p.store.Rooms.SetStatusTx(ctx, tx, roomID, model.StatusClosed,
			model.StatusRecruiting, model.StatusWaiting, model.StatusReadyAll); err != nil {
			return err
		}
		out, fresh, members = s, true, memberIDs(list)
		return nil
	})
	if errors.Is(err, repository.ErrSettlementExists) {
		// another member settled between our read and insert
		stored, gerr := p.store.Settlements.Get(ctx, roomID)
		if gerr != nil {
			return model.Settlement{}, classify("settle", gerr)
		}
		return stored, nil
	}
	if err != nil {
		metrics.SettleFailed(kindOf(err))
		p.log.Debug("settlement refused", "room_id", roomID, "user_id", userID, "reason", err)
		return model.Settlement{}, err
	}
	if !fresh {
		return out, nil
	}

	metrics.Settled(out.ActualTotal)
	p.log.Info("trip settled", "room_id", roomID, "actual_total", out.ActualTotal,
		"cost_per_person", out.CostPerPerson, "members", len(out.Debits))
	ev := queue.NewTripEvent(queue.EventSettled, roomID, p.clock.Now())
	ev.Phase = string(model.PhaseSettling)
	ev.ActorID = userID
	ev.Members = members
	ev.ActualTotal = out.ActualTotal
	ev.CostPerPerson = out.CostPerPerson
	publish(p.log, p.events, ev)
	p.closeSession(roomID)
	return out, nil
}

func varianceBP(actual, estimated int) int {
	if estimated <= 0 {
		return 10000
	}
	return int(math.Round(float64(actual) * 10000 / float64(estimated)))
}

// Attach registers stop to run when the room's session ends or the taxi
// is called. The room must have an open session.
func (p *TripPipeline) Attach(roomID string, stop func()) error {
	p.mu.Lock()
	s, ok := p.sessions[roomID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: room %s has no active trip", ErrInvalidStateTransition, roomID)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: room %s has no active trip", ErrInvalidStateTransition, roomID)
	}
	s.attached = append(s.attached, stop)
	return nil
}

// AttachRecruiting registers stop to run when the room leaves CREATED,
// loses a member, is deleted or the pipeline shuts down.
func (p *TripPipeline) AttachRecruiting(ctx context.Context, roomID string, stop func()) error {
	phase, err := p.Phase(ctx, roomID)
	if err != nil {
		return err
	}
	if phase != model.PhaseCreated {
		return phaseError(phase, phase, "the room is no longer recruiting")
	}
	p.mu.Lock()
	p.recruiting[roomID] = append(p.recruiting[roomID], stop)
	p.mu.Unlock()
	return nil
}

func (p *TripPipeline) stopRecruiting(roomID string) {
	p.mu.Lock()
	stops := p.recruiting[roomID]
	delete(p.recruiting, roomID)
	p.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
}

// Cancel ends the room's session, if any, and announces it. Used when the
// room is deleted.
func (p *TripPipeline) Cancel(roomID string) {
	p.stopRecruiting(roomID)
	if !p.closeSession(roomID) {
		return
	}
	p.log.Info("trip cancelled", "room_id", roomID)
	publish(p.log, p.events, queue.NewTripEvent(queue.EventCancelled, roomID, p.clock.Now()))
}

// Resume rebuilds sessions for rooms persisted mid-trip, typically after
// a restart. Timed phases get their full delay again.
func (p *TripPipeline) Resume(ctx context.Context) (int, error) {
	rooms, err := p.store.Rooms.ListByPhases(ctx,
		model.PhaseGathering, model.PhaseSearching, model.PhaseMatching, model.PhaseRiding)
	if err != nil {
		return 0, classify("resume", err)
	}
	for _, room := range rooms {
		s := p.open(room.ID)
		if room.Phase.Automatic() {
			s.mu.Lock()
			if !s.closed && s.timer == nil {
				p.scheduleLocked(s, room.Phase)
			}
			s.mu.Unlock()
		}
		p.log.Info("trip resumed", "room_id", room.ID, "phase", room.Phase)
	}
	return len(rooms), nil
}

// Shutdown ends every session and recruiting hook.
func (p *TripPipeline) Shutdown() {
	p.mu.Lock()
	all := make([]*session, 0, len(p.sessions))
	for id, s := range p.sessions {
		all = append(all, s)
		delete(p.sessions, id)
	}
	var stops []func()
	for id, fns := range p.recruiting {
		stops = append(stops, fns...)
		delete(p.recruiting, id)
	}
	p.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	for _, s := range all {
		s.mu.Lock()
		s.shutdownLocked()
		s.mu.Unlock()
	}
}

// ActiveSessions returns the number of open sessions.
func (p *TripPipeline) ActiveSessions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sessions)
}

func (p *TripPipeline) open(roomID string) *session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.sessions[roomID]; ok {
		return s
	}
	s := &session{roomID: roomID}
	p.sessions[roomID] = s
	metrics.SessionOpened()
	return s
}

// forget drops s from the map if it is still the room's session.
func (p *TripPipeline) forget(s *session) {
	p.mu.Lock()
	if p.sessions[s.roomID] == s {
		delete(p.sessions, s.roomID)
	}
	p.mu.Unlock()
}

func (p *TripPipeline) closeSession(roomID string) bool {
	p.mu.Lock()
	s, ok := p.sessions[roomID]
	delete(p.sessions, roomID)
	p.mu.Unlock()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.shutdownLocked()
	s.mu.Unlock()
	return true
}

func (p *TripPipeline) transitioned(roomID string, from, to model.Phase, actorID string, members []string) {
	metrics.Transition(string(to))
	p.log.Info("trip phase changed", "room_id", roomID, "from", from, "to", to)
	ev := queue.NewTripEvent(queue.EventPhaseChanged, roomID, p.clock.Now())
	ev.From = string(from)
	ev.Phase = string(to)
	ev.ActorID = actorID
	ev.Members = members
	publish(p.log, p.events, ev)
}

func memberIDs(list []model.RoomMember) []string {
	ids := make([]string, 0, len(list))
	for _, m := range list {
		ids = append(ids, m.UserID)
	}
	return ids
}
