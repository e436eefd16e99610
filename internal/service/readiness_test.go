package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/iliyamo/ridesplit/internal/model"
)

func TestToggleReadyReachesReadyAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "a", 8000)
	h.user(t, "b", 8000)
	room := h.room(t, "a", 3)
	if err := h.svc.Readiness.SetOwnerReady(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	if err := h.svc.Readiness.SetOwnerReady(ctx, room.ID); err != nil {
		t.Fatalf("second SetOwnerReady: %v", err)
	}
	if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, "b"); err != nil {
		t.Fatal(err)
	}

	res, err := h.svc.Readiness.ToggleReady(ctx, room.ID, "b")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ready || !res.AllReady || res.Status != model.StatusReadyAll || res.Phase != model.PhaseGathering {
		t.Fatalf("result = %+v", res)
	}
	for _, id := range []string{"a", "b"} {
		u, _ := h.store.Users.Get(ctx, id)
		if !u.IsLocationActive {
			t.Errorf("%s not tracked", id)
		}
	}
	if h.svc.Pipeline.ActiveSessions() != 1 {
		t.Errorf("sessions = %d", h.svc.Pipeline.ActiveSessions())
	}

	t.Run("un-ready keeps status", func(t *testing.T) {
		res, err := h.svc.Readiness.ToggleReady(ctx, room.ID, "b")
		if err != nil {
			t.Fatal(err)
		}
		if res.Ready || res.AllReady {
			t.Errorf("result = %+v", res)
		}
		got, _ := h.store.Rooms.Get(ctx, room.ID)
		if got.Status != model.StatusReadyAll {
			t.Errorf("status regressed to %s", got.Status)
		}
	})
	t.Run("non member", func(t *testing.T) {
		if _, err := h.svc.Readiness.ToggleReady(ctx, room.ID, "ghost"); !errors.Is(err, ErrNotMember) {
			t.Errorf("err = %v", err)
		}
	})
	t.Run("missing room", func(t *testing.T) {
		if _, err := h.svc.Readiness.ToggleReady(ctx, "room999", "a"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v", err)
		}
	})
}

func TestLoneReadyOwnerDoesNotStart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "a", 8000)
	room := h.room(t, "a", 2)

	res, err := h.svc.Readiness.ToggleReady(ctx, room.ID, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !res.AllReady || res.Status != model.StatusReadyAll {
		t.Errorf("result = %+v", res)
	}
	h.wantPhase(t, room.ID, model.PhaseCreated)

	_, err = h.svc.Pipeline.Start(ctx, room.ID, "a")
	if !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("start alone: %v", err)
	}
}

func TestToggleReadyAfterDepartureRefused(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.gathering(t, "a", "b")
	h.arrive(t, room.ID, 10, "a", "b")
	if _, err := h.svc.Pipeline.CallTaxi(ctx, room.ID, "a"); err != nil {
		t.Fatal(err)
	}
	_, err := h.svc.Readiness.ToggleReady(ctx, room.ID, "b")
	var te *TransitionError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransitionError", err)
	}
}

func TestConcurrentFinalTogglesStartTheTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		h.user(t, id, 8000)
	}
	room := h.room(t, "a", 3)
	if err := h.svc.Readiness.SetOwnerReady(ctx, room.ID); err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"b", "c"} {
		if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, id); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, id := range []string{"b", "c"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Readiness.ToggleReady(ctx, room.ID, id)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}

	got, _ := h.store.Rooms.Get(ctx, room.ID)
	if got.Status != model.StatusReadyAll || got.Phase != model.PhaseGathering {
		t.Errorf("room = %s/%s, want READY_ALL/GATHERING", got.Status, got.Phase)
	}
	if n := h.svc.Pipeline.ActiveSessions(); n != 1 {
		t.Errorf("sessions = %d", n)
	}
	if n := len(h.events.phases(room.ID)); n != 1 {
		t.Errorf("%d phase events, want exactly one start", n)
	}
}
