package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(3*time.Second, func() { fired = true })

	c.Advance(2 * time.Second)
	if fired {
		t.Fatal("callback ran before its deadline")
	}
	c.Advance(time.Second)
	if !fired {
		t.Fatal("callback did not run at its deadline")
	}
	if got := c.Now(); !got.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(3*time.Second))
	}
}

func TestFakeStop(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Fatal("Stop() on a pending timer returned false")
	}
	if timer.Stop() {
		t.Error("second Stop() returned true")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped callback ran")
	}
	if n := c.Pending(); n != 0 {
		t.Errorf("Pending() = %d, want 0", n)
	}
}

func TestFakeCallbackMaySchedule(t *testing.T) {
	c := NewFake(epoch)
	var order []string
	c.AfterFunc(time.Second, func() {
		order = append(order, "first")
		c.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	})

	c.Advance(time.Second)
	if len(order) != 1 {
		t.Fatalf("after 1s order = %v, want [first]", order)
	}
	if n := c.Pending(); n != 1 {
		t.Fatalf("Pending() = %d, want 1", n)
	}
	c.Advance(2 * time.Second)
	if len(order) != 2 || order[1] != "second" {
		t.Fatalf("order = %v, want [first second]", order)
	}
}

func TestFakeRunsInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(1*time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	for i, want := range []int{1, 2, 3} {
		if order[i] != want {
			t.Fatalf("order = %v, want [1 2 3]", order)
		}
	}
}

func TestRealImplementsClock(t *testing.T) {
	var _ Clock = Real()
	var _ Clock = NewFake(epoch)
}
