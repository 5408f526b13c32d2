package clocktest

import (
	"testing"
	"time"
)

func TestClockFiresInDeadlineOrder(t *testing.T) {
	c := New(time.Unix(0, 0))

	var fired []string
	c.AfterFunc(3*time.Second, func() { fired = append(fired, "third") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "first") })
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })

	c.Advance(2 * time.Second)
	if len(fired) != 2 || fired[0] != "first" || fired[1] != "second" {
		t.Fatalf("unexpected firing order %v", fired)
	}
	if c.Pending() != 1 {
		t.Errorf("expected 1 pending timer, got %d", c.Pending())
	}

	c.Advance(time.Second)
	if len(fired) != 3 {
		t.Fatalf("expected third timer to fire, got %v", fired)
	}
	if !c.Now().Equal(time.Unix(3, 0)) {
		t.Errorf("unexpected clock time %s", c.Now())
	}
}

func TestClockStop(t *testing.T) {
	c := New(time.Unix(0, 0))

	fired := false
	stop := c.AfterFunc(time.Second, func() { fired = true })
	if !stop() {
		t.Fatal("expected stop to report an active timer")
	}
	if stop() {
		t.Fatal("expected second stop to report an inactive timer")
	}

	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired")
	}
}

func TestClockRescheduleFromCallback(t *testing.T) {
	c := New(time.Unix(0, 0))

	ticks := 0
	var tick func()
	tick = func() {
		ticks++
		c.AfterFunc(time.Second, tick)
	}
	c.AfterFunc(time.Second, tick)

	c.Advance(5 * time.Second)
	if ticks != 5 {
		t.Errorf("expected 5 ticks, got %d", ticks)
	}
	if !c.BlockUntil(1, 10*time.Millisecond) {
		t.Error("expected the next tick to be scheduled")
	}
}
