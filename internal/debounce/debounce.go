// Package debounce provides a keyed scheduler: scheduling a callback under a
// key cancels the callback pending under the same key.
package debounce

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Timer is a pending callback that can be stopped.
type Timer interface {
	Stop() bool
}

// AfterFunc runs f after d has elapsed.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

type entry struct {
	timer Timer
	fn    func()
	gen   uint64
}

type Scheduler struct {
	mu        sync.Mutex
	afterFunc AfterFunc
	pending   map[string]*entry
	gen       uint64
	stopped   bool
}

type Option func(*Scheduler)

// WithAfterFunc replaces the time source, e.g. with ManualClock.AfterFunc.
func WithAfterFunc(af AfterFunc) Option {
	return func(s *Scheduler) { s.afterFunc = af }
}

func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		afterFunc: realAfterFunc,
		pending:   map[string]*entry{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Schedule runs fn after delay unless key is scheduled again, cancelled or
// flushed before. Scheduling on a stopped scheduler is a no-op.
func (s *Scheduler) Schedule(key string, delay time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if e, ok := s.pending[key]; ok {
		e.timer.Stop()
	}
	s.gen++
	e := &entry{fn: fn, gen: s.gen}
	s.pending[key] = e
	e.timer = s.afterFunc(delay, func() { s.fire(key, e.gen) })
}

func (s *Scheduler) fire(key string, gen uint64) {
	s.mu.Lock()
	e, ok := s.pending[key]
	if !ok || e.gen != gen {
		// replaced or cancelled in the meantime
		s.mu.Unlock()
		return
	}
	delete(s.pending, key)
	s.mu.Unlock()
	e.fn()
}

// Cancel drops the callback pending under key. It reports whether there was one.
func (s *Scheduler) Cancel(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.pending[key]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.pending, key)
	return true
}

// Flush runs the callback pending under key right away.
// It reports whether there was one.
func (s *Scheduler) Flush(key string) bool {
	s.mu.Lock()
	e, ok := s.pending[key]
	if ok {
		e.timer.Stop()
		delete(s.pending, key)
	}
	s.mu.Unlock()
	if ok {
		e.fn()
	}
	return ok
}

// FlushAll runs all pending callbacks right away, in the order they were scheduled.
func (s *Scheduler) FlushAll() {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.pending))
	for k, e := range s.pending {
		e.timer.Stop()
		entries = append(entries, e)
		delete(s.pending, k)
	}
	s.mu.Unlock()
	slices.SortFunc(entries, func(a, b *entry) int { return cmp.Compare(a.gen, b.gen) })
	for _, e := range entries {
		e.fn()
	}
}

// Pending returns the keys that have a callback pending, sorted.
func (s *Scheduler) Pending() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.pending))
	for k := range s.pending {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Stop cancels all pending callbacks. Later calls to Schedule are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.pending {
		e.timer.Stop()
		delete(s.pending, k)
	}
	s.stopped = true
}
