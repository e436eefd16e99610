package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/iliyamo/ridesplit/internal/fare"
	"github.com/iliyamo/ridesplit/internal/geo"
	"github.com/iliyamo/ridesplit/internal/model"
)

func TestCreateRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "woohyun", 8000)

	room := h.room(t, "woohyun", 4)
	if room.CurrentMembers != 1 || room.Status != model.StatusRecruiting || room.Phase != model.PhaseCreated {
		t.Fatalf("room = %+v", room)
	}
	members, err := h.store.Members.List(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(members) != 1 || members[0].UserID != "woohyun" || members[0].IsReady {
		t.Errorf("members = %+v", members)
	}

	t.Run("invalid size", func(t *testing.T) {
		for _, max := range []int{1, 5} {
			_, err := h.svc.Registry.CreateRoom(ctx, CreateRoomInput{
				OwnerID: "woohyun", StartLocation: "a", Start: testStart,
				EndLocation: "b", End: testCampus, MaxMembers: max,
			})
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("max %d: err = %v", max, err)
			}
		}
	})
	t.Run("unknown owner leaves nothing behind", func(t *testing.T) {
		_, err := h.svc.Registry.CreateRoom(ctx, CreateRoomInput{
			OwnerID: "ghost", StartLocation: "a", Start: testStart,
			EndLocation: "Hansung University", End: testCampus, MaxMembers: 2,
		})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
		rooms, err := h.svc.Registry.GetAvailableRooms(ctx, "Hansung University", nil)
		if err != nil {
			t.Fatal(err)
		}
		if len(rooms) != 1 {
			t.Errorf("rooms = %d, want only the first", len(rooms))
		}
	})
}

func TestOpenRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "soyeon", 22000)
	h.user(t, "hyechang", 100)

	in := OpenRoomInput{
		OwnerID: "soyeon", StartLocation: "Hyehwa", Start: testStart,
		University: "Hansung University", Campus: testCampus, MaxMembers: 3,
	}
	room, err := h.svc.Registry.OpenRoom(ctx, in)
	if err != nil {
		t.Fatalf("OpenRoom: %v", err)
	}
	est := fare.Estimate(testStart, testCampus)
	if room.EstimatedCost != est || room.CostPerPerson != est/3 {
		t.Errorf("cost = %d/%d, want %d/%d", room.EstimatedCost, room.CostPerPerson, est, est/3)
	}
	if room.Status != model.StatusRecruiting {
		t.Errorf("status = %s, a lone ready owner must keep recruiting", room.Status)
	}
	members, _ := h.store.Members.List(ctx, room.ID)
	if len(members) != 1 || !members[0].IsReady {
		t.Errorf("owner not ready: %+v", members)
	}

	in.OwnerID = "hyechang"
	_, err = h.svc.Registry.OpenRoom(ctx, in)
	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("err = %v, want InsufficientBalanceError", err)
	}
	if ib.Required != fare.Required(est/3) || ib.Shortfall != ib.Required-100 {
		t.Errorf("insufficient = %+v", ib)
	}
}

func TestJoinRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"woohyun", "sangwoo", "minjae"} {
		h.user(t, id, 8000)
	}
	room := h.room(t, "woohyun", 2)

	t.Run("owner again", func(t *testing.T) {
		if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, "woohyun"); !errors.Is(err, ErrAlreadyMember) {
			t.Fatalf("err = %v, want ErrAlreadyMember", err)
		}
	})
	t.Run("fills to waiting", func(t *testing.T) {
		got, err := h.svc.Registry.JoinRoom(ctx, room.ID, "sangwoo")
		if err != nil {
			t.Fatal(err)
		}
		if got.CurrentMembers != 2 || got.Status != model.StatusWaiting {
			t.Errorf("room = %d members, %s", got.CurrentMembers, got.Status)
		}
	})
	t.Run("twice", func(t *testing.T) {
		if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, "sangwoo"); !errors.Is(err, ErrAlreadyMember) {
			t.Fatalf("err = %v, want ErrAlreadyMember", err)
		}
	})
	t.Run("full", func(t *testing.T) {
		if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, "minjae"); !errors.Is(err, ErrCapacityExceeded) {
			t.Fatalf("err = %v, want ErrCapacityExceeded", err)
		}
	})
	t.Run("missing room", func(t *testing.T) {
		if _, err := h.svc.Registry.JoinRoom(ctx, "room999", "minjae"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
	t.Run("missing user", func(t *testing.T) {
		other := h.room(t, "minjae", 3)
		if _, err := h.svc.Registry.JoinRoom(ctx, other.ID, "ghost"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestConcurrentJoinsNeverOvershoot(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner", 8000)
	room := h.room(t, "owner", 4)

	const joiners = 8
	for i := range joiners {
		h.user(t, fmt.Sprintf("u%d", i), 8000)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, full int
		other    []error
	)
	for i := range joiners {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := h.svc.Registry.JoinRoom(ctx, room.ID, id)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, ErrCapacityExceeded):
				full++
			default:
				other = append(other, err)
			}
		}(fmt.Sprintf("u%d", i))
	}
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if ok != 3 || full != joiners-3 {
		t.Fatalf("ok=%d full=%d, want 3 and %d", ok, full, joiners-3)
	}
	got, err := h.store.Rooms.Get(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	members, _ := h.store.Members.List(ctx, room.ID)
	if got.CurrentMembers != 4 || len(members) != 4 || got.Status != model.StatusWaiting {
		t.Errorf("room has %d members, %d rows, status %s", got.CurrentMembers, len(members), got.Status)
	}
}

func TestLeaveRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "eunbi", 13000)
	h.user(t, "woohyun", 8000)
	room := h.room(t, "eunbi", 3)
	if _, err := h.svc.Registry.JoinRoom(ctx, room.ID, "woohyun"); err != nil {
		t.Fatal(err)
	}

	if _, err := h.svc.Registry.LeaveRoom(ctx, room.ID, "ghost"); !errors.Is(err, ErrNotMember) {
		t.Errorf("err = %v, want ErrNotMember", err)
	}

	deleted, err := h.svc.Registry.LeaveRoom(ctx, room.ID, "woohyun")
	if err != nil || deleted {
		t.Fatalf("leave = %v, %v", deleted, err)
	}
	got, _ := h.store.Rooms.Get(ctx, room.ID)
	if got.CurrentMembers != 1 {
		t.Errorf("members = %d, want 1", got.CurrentMembers)
	}

	deleted, err = h.svc.Registry.LeaveRoom(ctx, room.ID, "eunbi")
	if err != nil || !deleted {
		t.Fatalf("last leave = %v, %v", deleted, err)
	}
	if _, err := h.svc.Registry.GetRoom(ctx, room.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted room still readable: %v", err)
	}
}

func TestGetAvailableRooms(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c", "d"} {
		h.user(t, id, 8000)
	}
	first := h.room(t, "a", 2)
	second := h.room(t, "b", 3)
	h.room(t, "c", 4)
	if _, err := h.svc.Registry.JoinRoom(ctx, first.ID, "d"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Registry.CreateRoom(ctx, CreateRoomInput{
		OwnerID: "d", StartLocation: "x", Start: testStart,
		EndLocation: "Hongik University", End: testCampus, MaxMembers: 2,
	}); err != nil {
		t.Fatal(err)
	}

	rooms, err := h.svc.Registry.GetAvailableRooms(ctx, "Hansung University", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(rooms) != 2 || rooms[0].ID != second.ID || rooms[1].ID != "room003" {
		t.Fatalf("rooms = %+v", rooms)
	}
	if rooms[0].DistanceM != nil {
		t.Error("distance set without a viewer")
	}

	tests := []struct {
		name       string
		viewer     geo.Point
		accessible bool
	}{
		{"at start", testStart, true},
		{"at the limit", geo.North(testStart, 1000), true},
		{"too far", geo.North(testStart, 1500), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := tt.viewer
			rooms, err := h.svc.Registry.GetAvailableRooms(ctx, "Hansung University", &v)
			if err != nil {
				t.Fatal(err)
			}
			for _, r := range rooms {
				if r.DistanceM == nil || r.IsAccessible != tt.accessible {
					t.Errorf("room %s: distance %v accessible %v", r.ID, r.DistanceM, r.IsAccessible)
				}
			}
		})
	}
}

func TestEnterRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.user(t, "owner", 8000)
	h.user(t, "poor", 1000)
	h.user(t, "rich", 8000)
	room := h.room(t, "owner", 4) // 1000 per person, 1200 required

	near := geo.North(testStart, 300)
	far := geo.North(testStart, 1200)

	if _, err := h.svc.Registry.EnterRoom(ctx, room.ID, "rich", nil); !errors.Is(err, ErrLocationUnavailable) {
		t.Errorf("no location: %v", err)
	}
	if _, err := h.svc.Registry.EnterRoom(ctx, room.ID, "rich", &far); !errors.Is(err, ErrOutOfReach) {
		t.Errorf("far: %v", err)
	}
	_, err := h.svc.Registry.EnterRoom(ctx, room.ID, "poor", &near)
	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) || ib.Required != 1200 || ib.Shortfall != 200 {
		t.Errorf("poor: %v", err)
	}
	got, err := h.svc.Registry.EnterRoom(ctx, room.ID, "rich", &near)
	if err != nil {
		t.Fatalf("rich: %v", err)
	}
	if got.CurrentMembers != 2 {
		t.Errorf("members = %d", got.CurrentMembers)
	}
}

func TestGetRoomDetail(t *testing.T) {
	h := newHarness(t)
	room := h.gathering(t, "hyundo", "seungho")
	h.arrive(t, room.ID, 40, "hyundo")

	detail, err := h.svc.Registry.GetRoom(context.Background(), room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(detail.Members) != 2 {
		t.Fatalf("members = %+v", detail.Members)
	}
	for _, m := range detail.Members {
		switch m.UserID {
		case "hyundo":
			if m.DistanceM == nil || !m.Arrived {
				t.Errorf("hyundo = %+v", m)
			}
		case "seungho":
			if m.DistanceM != nil || m.Arrived {
				t.Errorf("seungho never reported but = %+v", m)
			}
		}
	}
}

func TestOwnerLeavingHandsOverTheRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	room := h.gathering(t, "a", "b", "c")

	deleted, err := h.svc.Registry.LeaveRoom(ctx, room.ID, "a")
	if err != nil || deleted {
		t.Fatalf("leave = %v, %v", deleted, err)
	}
	got, _ := h.store.Rooms.Get(ctx, room.ID)
	if got.OwnerID != "b" || got.CurrentMembers != 2 {
		t.Fatalf("room after owner left = owner %s, %d members", got.OwnerID, got.CurrentMembers)
	}
	if u, _ := h.store.Users.Get(ctx, "a"); u.IsLocationActive {
		t.Error("former owner still tracked")
	}

	h.arrive(t, room.ID, 20, "b", "c")
	if _, err := h.svc.Pipeline.CallTaxi(ctx, room.ID, "a"); !errors.Is(err, ErrNotMember) {
		t.Errorf("former owner call taxi: %v", err)
	}
	if _, err := h.svc.Pipeline.CallTaxi(ctx, room.ID, "c"); !errors.Is(err, ErrNotOwner) {
		t.Errorf("member call taxi: %v", err)
	}
	if _, err := h.svc.Pipeline.CallTaxi(ctx, room.ID, "b"); err != nil {
		t.Fatalf("new owner call taxi: %v", err)
	}
	h.wantPhase(t, room.ID, model.PhaseSearching)
}

func TestLeaveKeepsTrackingForAnotherGatheringRoom(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	gathering := h.gathering(t, "a", "b")
	h.user(t, "c", 8000)
	other := h.room(t, "c", 3)
	if _, err := h.svc.Registry.JoinRoom(ctx, other.ID, "b"); err != nil {
		t.Fatal(err)
	}

	if _, err := h.svc.Registry.LeaveRoom(ctx, other.ID, "b"); err != nil {
		t.Fatal(err)
	}
	if u, _ := h.store.Users.Get(ctx, "b"); !u.IsLocationActive {
		t.Fatal("leaving a recruiting room stopped tracking for the gathering one")
	}
	h.arrive(t, gathering.ID, 20, "b")
}
