package debounce

import (
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func TestScheduleCoalesces(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(WithAfterFunc(clock.AfterFunc))
	var calls []string
	for _, v := range []string{"a", "al", "ali", "alic", "alice"} {
		s.Schedule("username", time.Second, func() { calls = append(calls, v) })
		clock.Advance(200 * time.Millisecond)
	}
	if len(calls) != 0 {
		t.Fatalf("expected no call within the quiet period, got %v", calls)
	}
	clock.Advance(time.Second)
	if len(calls) != 1 || calls[0] != "alice" {
		t.Fatalf("expected exactly one call with the last value, got %v", calls)
	}
	if clock.Pending() != 0 {
		t.Errorf("expected no pending timers, got %d", clock.Pending())
	}
}

func TestKeysAreIndependent(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(WithAfterFunc(clock.AfterFunc))
	var order []string
	s.Schedule("a", time.Second, func() { order = append(order, "a") })
	clock.Advance(500 * time.Millisecond)
	s.Schedule("b", time.Second, func() { order = append(order, "b") })
	clock.Advance(600 * time.Millisecond)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("expected a to fire first and alone, got %v", order)
	}
	clock.Advance(time.Second)
	if len(order) != 2 || order[1] != "b" {
		t.Fatalf("expected b to fire second, got %v", order)
	}
}

func TestCancelFlushStop(t *testing.T) {
	clock := NewManualClock(epoch)
	s := New(WithAfterFunc(clock.AfterFunc))
	var fired []string
	record := func(k string) func() { return func() { fired = append(fired, k) } }

	s.Schedule("cancelled", time.Second, record("cancelled"))
	s.Schedule("flushed", time.Second, record("flushed"))
	s.Schedule("second", time.Second, record("second"))
	s.Schedule("first", time.Second, record("first"))

	if !s.Cancel("cancelled") {
		t.Error("expected Cancel to report a pending callback")
	}
	if s.Cancel("cancelled") {
		t.Error("expected a second Cancel to report nothing")
	}
	if !s.Flush("flushed") {
		t.Error("expected Flush to report a pending callback")
	}
	if len(fired) != 1 || fired[0] != "flushed" {
		t.Fatalf("expected flush to run the callback right away, got %v", fired)
	}
	if got := s.Pending(); len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected pending keys %v", got)
	}
	s.FlushAll()
	if len(fired) != 3 || fired[1] != "second" || fired[2] != "first" {
		t.Errorf("expected FlushAll to run in scheduling order, got %v", fired)
	}

	s.Schedule("late", time.Second, record("late"))
	s.Stop()
	s.Schedule("after-stop", time.Second, record("after-stop"))
	clock.Advance(time.Hour)
	if len(fired) != 3 {
		t.Errorf("expected no callback after Stop, got %v", fired)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("expected no pending keys after Stop, got %v", s.Pending())
	}
}

func TestManualClockNowDuringFire(t *testing.T) {
	clock := NewManualClock(epoch)
	var at time.Time
	clock.AfterFunc(3*time.Second, func() { at = clock.Now() })
	clock.Advance(10 * time.Second)
	if !at.Equal(epoch.Add(3 * time.Second)) {
		t.Errorf("expected the timer to observe its deadline, got %v", at)
	}
	if !clock.Now().Equal(epoch.Add(10 * time.Second)) {
		t.Errorf("expected the clock at +10s, got %v", clock.Now())
	}
}

func TestRealTimers(t *testing.T) {
	defer goleak.VerifyNone(t)
	s := New()
	var n atomic.Int32
	done := make(chan struct{})
	for range 5 {
		s.Schedule("k", 20*time.Millisecond, func() {
			n.Add(1)
			close(done)
		})
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback did not fire")
	}
	time.Sleep(50 * time.Millisecond)
	if n.Load() != 1 {
		t.Errorf("expected exactly one call, got %d", n.Load())
	}
	s.Schedule("never", time.Hour, func() {})
	s.Stop()
}
