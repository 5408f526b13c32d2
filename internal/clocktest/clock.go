// Package clocktest provides a manually driven clock for tests.
package clocktest

import (
	"slices"
	"sync"
	"time"
)

type timer struct {
	id       uint64
	deadline time.Time
	fn       func()
}

// Clock only moves when Advance is called. Timer callbacks run on the goroutine
// calling Advance, without any lock held.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*timer
}

// New returns a clock set to start.
func New(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current virtual time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

// AfterFunc schedules f to run once the clock has advanced by d.
func (c *Clock) AfterFunc(d time.Duration, f func()) func() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	t := &timer{id: c.seq, deadline: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)

	return func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()

		idx := slices.Index(c.timers, t)
		if idx < 0 {
			return false
		}
		c.timers = slices.Delete(c.timers, idx, idx+1)
		return true
	}
}

// Advance moves the clock forward, firing due timers in deadline order. Timers
// scheduled by a callback fire within the same call when they fall due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.next(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		c.now = t.deadline
		c.mu.Unlock()

		t.fn()
	}
}

// Pending returns the number of scheduled timers.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.timers)
}

// BlockUntil waits until at least n timers are scheduled or timeout elapses in real
// time. It reports whether the count was reached.
func (c *Clock) BlockUntil(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.Pending() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(time.Millisecond)
	}
}

// next pops the earliest timer due at or before target.
func (c *Clock) next(target time.Time) *timer {
	idx := -1
	for i, t := range c.timers {
		if t.deadline.After(target) {
			continue
		}
		if idx < 0 || t.deadline.Before(c.timers[idx].deadline) ||
			(t.deadline.Equal(c.timers[idx].deadline) && t.id < c.timers[idx].id) {
			idx = i
		}
	}
	if idx < 0 {
		return nil
	}

	t := c.timers[idx]
	c.timers = slices.Delete(c.timers, idx, idx+1)

	return t
}
