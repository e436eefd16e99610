package model

import "testing"

func TestRoomStatusOnlyMovesForward(t *testing.T) {
	tests := []struct {
		from, to RoomStatus
		want     bool
	}{
		{StatusRecruiting, StatusWaiting, true},
		{StatusRecruiting, StatusReadyAll, true},
		{StatusWaiting, StatusReadyAll, true},
		{StatusReadyAll, StatusClosed, true},
		{StatusWaiting, StatusRecruiting, false},
		{StatusReadyAll, StatusWaiting, false},
		{StatusClosed, StatusReadyAll, false},
		{StatusWaiting, StatusWaiting, false},
		{"BOGUS", StatusWaiting, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanBecome(tt.to); got != tt.want {
			t.Errorf("%s.CanBecome(%s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestPhaseSequence(t *testing.T) {
	p := PhaseCreated
	var seen []Phase
	for {
		seen = append(seen, p)
		next, ok := p.Next()
		if !ok {
			break
		}
		if !p.CanAdvanceTo(next) {
			t.Fatalf("%s cannot advance to its own successor %s", p, next)
		}
		p = next
	}
	if len(seen) != 6 || seen[5] != PhaseSettling {
		t.Fatalf("sequence = %v", seen)
	}
	if PhaseCreated.CanAdvanceTo(PhaseSearching) {
		t.Error("CREATED must not skip GATHERING")
	}
	if PhaseRiding.CanAdvanceTo(PhaseMatching) {
		t.Error("phases must not move backwards")
	}
	for _, p := range []Phase{PhaseSearching, PhaseMatching, PhaseRiding} {
		if !p.Automatic() {
			t.Errorf("%s should advance on a timer", p)
		}
	}
	if PhaseGathering.Automatic() {
		t.Error("GATHERING advances on the owner's call, not a timer")
	}
}

func TestAllReady(t *testing.T) {
	if AllReady(nil) {
		t.Error("empty member set must not be all ready")
	}
	ms := []RoomMember{{UserID: "a", IsReady: true}, {UserID: "b"}}
	if AllReady(ms) {
		t.Error("one member not ready")
	}
	ms[1].IsReady = true
	if !AllReady(ms) {
		t.Error("all members ready")
	}
}

func TestParse(t *testing.T) {
	if _, err := ParseRoomStatus("WAITING"); err != nil {
		t.Error(err)
	}
	if _, err := ParsePhase("FLYING"); err == nil {
		t.Error("ParsePhase accepted an unknown phase")
	}
}
