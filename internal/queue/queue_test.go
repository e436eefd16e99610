package queue

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEventIDsAreMonotonic(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	a := NewEventID(at)
	b := NewEventID(at)
	if len(a) != 26 || a >= b {
		t.Fatalf("ids %q, %q are not increasing ULIDs", a, b)
	}
}

func TestConsumerHandleAppendsLines(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{Dir: dir}
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	ev := NewTripEvent(EventPhaseChanged, "room001", at)
	ev.From, ev.Phase, ev.ActorID = "GATHERING", "SEARCHING", "woohyun"
	settled := NewTripEvent(EventSettled, "room001", at)
	settled.Phase, settled.ActualTotal, settled.CostPerPerson = "SETTLING", 4200, 2100

	for _, e := range []TripEvent{ev, settled} {
		body, _ := json.Marshal(e)
		if err := c.Handle(body); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "trip.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines:\n%s", len(lines), data)
	}
	if !strings.Contains(lines[0], "from=GATHERING") || !strings.Contains(lines[0], "actor=woohyun") {
		t.Errorf("line 0 = %q", lines[0])
	}
	if !strings.Contains(lines[1], "actual_total=4200") {
		t.Errorf("line 1 = %q", lines[1])
	}
}

func TestConsumerRejectsGarbage(t *testing.T) {
	c := &Consumer{Dir: t.TempDir()}
	if err := c.Handle([]byte("not json")); err == nil {
		t.Error("garbage accepted")
	}
	if err := c.Handle([]byte(`{"type":"trip.settled"}`)); err == nil {
		t.Error("event without room accepted")
	}
}

type recordingSender struct {
	mu   sync.Mutex
	got  []TripEvent
	fail bool
}

func (r *recordingSender) Publish(_ context.Context, ev TripEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail {
		return errors.New("broker down")
	}
	r.got = append(r.got, ev)
	return nil
}

func TestDispatcherForwardsInOrder(t *testing.T) {
	rec := &recordingSender{}
	d := NewDispatcher(rec, 8, slog.New(slog.DiscardHandler))
	go d.Run(context.Background())

	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for _, id := range []string{"room001", "room002", "room003"} {
		if err := d.Publish(context.Background(), NewTripEvent(EventPhaseChanged, id, at)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	d.Close()

	if len(rec.got) != 3 {
		t.Fatalf("forwarded %d events, want 3", len(rec.got))
	}
	for i, want := range []string{"room001", "room002", "room003"} {
		if rec.got[i].RoomID != want {
			t.Errorf("event %d room = %s, want %s", i, rec.got[i].RoomID, want)
		}
	}
	if err := d.Publish(context.Background(), NewTripEvent(EventSettled, "room004", at)); !errors.Is(err, ErrDispatcherClosed) {
		t.Errorf("publish after close = %v", err)
	}
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	d := NewDispatcher(&recordingSender{}, 1, slog.New(slog.DiscardHandler))
	at := time.Now()
	if err := d.Publish(context.Background(), NewTripEvent(EventSettled, "a", at)); err != nil {
		t.Fatal(err)
	}
	if err := d.Publish(context.Background(), NewTripEvent(EventSettled, "b", at)); !errors.Is(err, ErrDispatcherFull) {
		t.Errorf("second publish = %v, want ErrDispatcherFull", err)
	}
}

func TestDispatcherSurvivesSenderErrors(t *testing.T) {
	rec := &recordingSender{fail: true}
	d := NewDispatcher(rec, 4, slog.New(slog.DiscardHandler))
	go d.Run(context.Background())
	_ = d.Publish(context.Background(), NewTripEvent(EventSettled, "a", time.Now()))
	d.Close()
	if len(rec.got) != 0 {
		t.Errorf("failed sends recorded: %v", rec.got)
	}
}
