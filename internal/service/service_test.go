package service

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/ridesplit/internal/clock"
	"github.com/iliyamo/ridesplit/internal/config"
	"github.com/iliyamo/ridesplit/internal/database"
	"github.com/iliyamo/ridesplit/internal/fare"
	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/model"
	"github.com/iliyamo/ridesplit/internal/queue"
	"github.com/iliyamo/ridesplit/internal/repository"
	"github.com/iliyamo/ridesplit/pkg/logging"
)

var (
	testStart  = geo.Point{Lat: 37.5791, Lon: 127.0066}
	testCampus = geo.Point{Lat: 37.58616528349631, Lon: 127.01280516488525}
)

type recorder struct {
	mu     sync.Mutex
	events []queue.TripEvent
}

func (r *recorder) Publish(_ context.Context, ev queue.TripEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// phases lists the target phase of every phase_changed event for roomID.
func (r *recorder) phases(roomID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ev := range r.events {
		if ev.RoomID == roomID && ev.Type == queue.EventPhaseChanged {
			out = append(out, ev.Phase)
		}
	}
	return out
}

func (r *recorder) count(typ string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Type == typ {
			n++
		}
	}
	return n
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewRoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("room%03d", s.n)
}

type harness struct {
	svc    *Service
	store  *repository.Store
	clock  *clock.Fake
	events *recorder
	cfg    config.PipelineConfig
}

func newHarness(t *testing.T) *harness {
	return newHarnessWith(t, fare.FixedVariance(1.0))
}

func newHarnessWith(t *testing.T, v fare.Variance) *harness {
	t.Helper()
	db, err := database.Open("sqlite", filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(context.Background(), db, "sqlite"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	fake := clock.NewFake(time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	store := repository.NewStore(db, fake.Now)
	cfg := config.DefaultPipelineConfig()
	rec := &recorder{}
	svc := New(store, cfg, Options{
		Clock:    fake,
		Events:   rec,
		Variance: v,
		IDs:      &seqIDs{},
		Logger:   logging.Discard(),
	})
	t.Cleanup(svc.Pipeline.Shutdown)
	return &harness{svc: svc, store: store, clock: fake, events: rec, cfg: cfg}
}

func (h *harness) user(t *testing.T, id string, balance int) {
	t.Helper()
	u := &model.User{ID: id, Name: id, University: "Hansung University", Balance: balance}
	if err := h.store.Users.Create(context.Background(), u, "1234", 4); err != nil {
		t.Fatalf("create user %s: %v", id, err)
	}
}

// room creates a room owned by owner with a 4000 estimate.
func (h *harness) room(t *testing.T, owner string, max int) model.Room {
	t.Helper()
	room, err := h.svc.Registry.CreateRoom(context.Background(), CreateRoomInput{
		OwnerID:       owner,
		StartLocation: "Hyehwa Station Exit 1",
		Start:         testStart,
		EndLocation:   "Hansung University",
		End:           testCampus,
		MaxMembers:    max,
		EstimatedCost: 4000,
		CostPerPerson: 4000 / max,
	})
	if err != nil {
		t.Fatalf("create room: %v", err)
	}
	return room
}

// gathering creates users ids (10000 each), puts them in one full room
// owned by ids[0] and readies everybody, which starts the trip.
func (h *harness) gathering(t *testing.T, ids ...string) model.Room {
	t.Helper()
	ctx := context.Background()
	for _, id := range ids {
		h.user(t, id, 10000)
	}
	room := h.room(t, ids[0], len(ids))
	if err := h.svc.Readiness.SetOwnerReady(ctx, room.ID); err != nil {
		t.Fatalf("owner ready: %v", err)
	}
	for _, id := range ids[1:] {
		if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, id); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	for _, id := range ids[1:] {
		if _, err := h.svc.Readiness.ToggleReady(ctx, room.ID, id); err != nil {
			t.Fatalf("ready %s: %v", id, err)
		}
	}
	h.wantPhase(t, room.ID, model.PhaseGathering)
	return room
}

// arrive reports every listed member at the given distance north of the
// start point.
func (h *harness) arrive(t *testing.T, roomID string, meters float64, ids ...string) {
	t.Helper()
	for _, id := range ids {
		if _, err := h.svc.Gathering.ReportLocation(context.Background(), roomID, id, geo.North(testStart, meters)); err != nil {
			t.Fatalf("location %s: %v", id, err)
		}
	}
}

func (h *harness) wantPhase(t *testing.T, roomID string, want model.Phase) {
	t.Helper()
	got, err := h.svc.Pipeline.Phase(context.Background(), roomID)
	if err != nil {
		t.Fatalf("phase: %v", err)
	}
	if got != want {
		t.Fatalf("phase = %s, want %s", got, want)
	}
}

func (h *harness) balance(t *testing.T, id string) int {
	t.Helper()
	b, err := h.svc.Wallet.Balance(context.Background(), id)
	if err != nil {
		t.Fatalf("balance %s: %v", id, err)
	}
	return b
}
