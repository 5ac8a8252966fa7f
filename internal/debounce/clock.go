package debounce

import (
	"slices"
	"sync"
	"time"
)

// ManualClock is a virtual time source. Timers only fire when the clock is
// advanced, which makes debouncing deterministic in tests and trace replays.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*manualTimer
	seq    uint64
}

type manualTimer struct {
	clock    *ManualClock
	deadline time.Time
	seq      uint64
	f        func()
	done     bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// AfterFunc schedules f to run once the clock has been advanced by d.
func (c *ManualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	t := &manualTimer{clock: c, deadline: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves the clock forward by d and runs every timer that becomes due,
// in deadline order. While a timer runs, Now returns its deadline.
func (c *ManualClock) Advance(d time.Duration) {
	c.AdvanceTo(c.Now().Add(d))
}

// AdvanceTo moves the clock forward to t. Moving backwards is a no-op.
func (c *ManualClock) AdvanceTo(t time.Time) {
	for {
		c.mu.Lock()
		next := c.nextDue(t)
		if next == nil {
			if t.After(c.now) {
				c.now = t
			}
			c.mu.Unlock()
			return
		}
		next.done = true
		if next.deadline.After(c.now) {
			c.now = next.deadline
		}
		c.mu.Unlock()
		next.f()
	}
}

// nextDue returns the earliest timer due at or before t. c.mu must be held.
func (c *ManualClock) nextDue(t time.Time) *manualTimer {
	c.timers = slices.DeleteFunc(c.timers, func(mt *manualTimer) bool { return mt.done })
	var next *manualTimer
	for _, mt := range c.timers {
		if mt.deadline.After(t) {
			continue
		}
		if next == nil || mt.deadline.Before(next.deadline) || (mt.deadline.Equal(next.deadline) && mt.seq < next.seq) {
			next = mt
		}
	}
	return next
}

// Pending returns the number of timers that have neither fired nor been stopped.
func (c *ManualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, mt := range c.timers {
		if !mt.done {
			n++
		}
	}
	return n
}
