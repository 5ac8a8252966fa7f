// Package session implements the recording session: its state machine, the
// ordered list of recorded steps and the step counter.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jakopako/steprec/internal/dom"
	"github.com/jakopako/steprec/internal/types"
)

var (
	// ErrInvalidTransition is returned when a transition is requested from a
	// state that does not allow it. The state is left unchanged.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrResetDeclined is returned when a reset of a non-empty session was not confirmed.
	ErrResetDeclined = errors.New("reset declined")
	// ErrNotRecording is returned by Append outside of the Recording state.
	ErrNotRecording = errors.New("session is not recording")
	// ErrStepNotFound is returned when no step has the requested id.
	ErrStepNotFound = errors.New("step not found")
)

// Observer is notified after every change of the state or the step list.
type Observer func(state State, stepCount int)

type Session struct {
	mu        sync.Mutex
	id        string
	state     State
	steps     []types.Step
	counter   int
	startedAt time.Time
	page      *dom.Page
	now       func() time.Time
	logger    *slog.Logger
	observers []Observer
}

type Option func(*Session)

func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.logger = l }
}

func WithObserver(o Observer) Option {
	return func(s *Session) { s.observers = append(s.observers, o) }
}

// New returns an Idle session without steps.
func New(opts ...Option) *Session {
	s := &Session{
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.logger = s.logger.With(slog.String("component", "session"), slog.String("session", s.id))
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsRecording() bool {
	return s.State() == Recording
}

// Page returns the frame registry populated at Start. It may be nil.
func (s *Session) Page() *dom.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *Session) notify() {
	s.mu.Lock()
	state, n := s.state, len(s.steps)
	observers := slices.Clone(s.observers)
	s.mu.Unlock()
	for _, o := range observers {
		o(state, n)
	}
}

// transition moves from one of the allowed states to to and runs apply while
// holding the lock. A misuse is logged and leaves the session unchanged.
func (s *Session) transition(name string, to State, apply func(), allowed ...State) error {
	s.mu.Lock()
	from := s.state
	if !slices.Contains(allowed, from) {
		s.mu.Unlock()
		s.logger.Warn(fmt.Sprintf("ignoring %s while %s", name, from))
		return fmt.Errorf("%s from state %s: %w", name, from, ErrInvalidTransition)
	}
	if apply != nil {
		apply()
	}
	s.state = to
	s.mu.Unlock()
	s.logger.Info(fmt.Sprintf("%s: %s -> %s", name, from, to))
	s.notify()
	return nil
}

func (s *Session) clear() {
	s.steps = nil
	s.counter = 0
}

// Start begins a fresh recording. Steps and counter are cleared and page
// becomes the frame registry of the session.
func (s *Session) Start(page *dom.Page) error {
	return s.transition("start", Recording, func() {
		s.clear()
		s.page = page
		s.startedAt = s.now()
	}, Idle)
}

// Pause freezes capturing. Steps and counter are kept.
func (s *Session) Pause() error {
	return s.transition("pause", Paused, nil, Recording)
}

// Resume continues a paused recording without clearing it.
func (s *Session) Resume() error {
	return s.transition("resume", Recording, nil, Paused)
}

// Reset returns a paused session to Idle, dropping all steps. A session with
// steps is only reset if confirm approves it.
func (s *Session) Reset(confirm func(stepCount int) bool) error {
	s.mu.Lock()
	n, state := len(s.steps), s.state
	s.mu.Unlock()
	if state == Paused && n > 0 && (confirm == nil || !confirm(n)) {
		s.logger.Info(fmt.Sprintf("reset of %d step(s) declined", n))
		return ErrResetDeclined
	}
	return s.transition("reset", Idle, s.clear, Paused)
}

// ForceReset returns the session to Idle from any state without confirmation.
func (s *Session) ForceReset() {
	s.mu.Lock()
	from := s.state
	s.clear()
	s.state = Idle
	s.mu.Unlock()
	s.logger.Info(fmt.Sprintf("forced reset: %s -> %s", from, Idle))
	s.notify()
}

// Toggle starts an idle session, pauses a recording one and resumes a paused one.
func (s *Session) Toggle(page *dom.Page) error {
	switch s.State() {
	case Idle:
		return s.Start(page)
	case Recording:
		return s.Pause()
	default:
		return s.Resume()
	}
}

// Append records step with the next id. The step counter and the list are
// updated together, readers never observe one without the other.
func (s *Session) Append(step types.Step) (types.Step, error) {
	s.mu.Lock()
	if s.state != Recording {
		s.mu.Unlock()
		return types.Step{}, ErrNotRecording
	}
	s.counter++
	step.ID = s.counter
	if step.Timestamp.IsZero() {
		step.Timestamp = s.now()
	}
	step.FrameID = step.Frame()
	s.steps = append(s.steps, step)
	s.mu.Unlock()
	s.logger.Debug(fmt.Sprintf("recorded step %d: %s %s", step.ID, step.Action, step.Locator))
	s.notify()
	return step, nil
}

// UpdateData overwrites the data of the step with the given id.
func (s *Session) UpdateData(id int, data string) error {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("update step %d: %w", id, ErrStepNotFound)
	}
	s.steps[i].Data = data
	s.steps[i].Timestamp = s.now()
	s.mu.Unlock()
	s.logger.Debug(fmt.Sprintf("updated step %d", id))
	s.notify()
	return nil
}

// LastSendKeys returns the most recent sendKeys step for locator in frame.
func (s *Session) LastSendKeys(locator, frame string) (types.Step, bool) {
	if frame == "" {
		frame = types.MainFrame
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.steps) - 1; i >= 0; i-- {
		st := s.steps[i]
		if st.Action == types.ActionSendKeys && st.Locator == locator && st.Frame() == frame {
			return st, true
		}
	}
	return types.Step{}, false
}

// Steps returns a copy of the recorded steps in replay order.
func (s *Session) Steps() []types.Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.steps)
}

func (s *Session) StepCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps)
}

// Counter returns the last assigned step id.
func (s *Session) Counter() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counter
}

func (s *Session) indexOf(id int) int {
	return slices.IndexFunc(s.steps, func(st types.Step) bool { return st.ID == id })
}

// renumber assigns the ids 1..N in list order. s.mu must be held.
func (s *Session) renumber() {
	for i := range s.steps {
		s.steps[i].ID = i + 1
	}
	s.counter = len(s.steps)
}

func (s *Session) mutate(name string, fn func() error) error {
	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%s: %w", name, err)
	}
	s.renumber()
	s.mu.Unlock()
	s.logger.Debug(name)
	s.notify()
	return nil
}

// Insert adds step at the 1-based position pos (1..N+1) and renumbers all steps.
func (s *Session) Insert(pos int, step types.Step) error {
	return s.mutate(fmt.Sprintf("insert step at %d", pos), func() error {
		if pos < 1 || pos > len(s.steps)+1 {
			return fmt.Errorf("position out of range 1..%d", len(s.steps)+1)
		}
		if step.Timestamp.IsZero() {
			step.Timestamp = s.now()
		}
		step.FrameID = step.Frame()
		s.steps = slices.Insert(s.steps, pos-1, step)
		return nil
	})
}

// Delete removes the step with the given id and renumbers the rest.
func (s *Session) Delete(id int) error {
	return s.mutate(fmt.Sprintf("delete step %d", id), func() error {
		i := s.indexOf(id)
		if i < 0 {
			return ErrStepNotFound
		}
		s.steps = slices.Delete(s.steps, i, i+1)
		return nil
	})
}

// Move puts the step with the given id at the 1-based position pos and renumbers.
func (s *Session) Move(id, pos int) error {
	return s.mutate(fmt.Sprintf("move step %d to %d", id, pos), func() error {
		i := s.indexOf(id)
		if i < 0 {
			return ErrStepNotFound
		}
		if pos < 1 || pos > len(s.steps) {
			return fmt.Errorf("position out of range 1..%d", len(s.steps))
		}
		st := s.steps[i]
		s.steps = slices.Delete(s.steps, i, i+1)
		s.steps = slices.Insert(s.steps, pos-1, st)
		return nil
	})
}

// Edit applies fn to the step with the given id. The id itself cannot be changed.
func (s *Session) Edit(id int, fn func(*types.Step)) error {
	return s.mutate(fmt.Sprintf("edit step %d", id), func() error {
		i := s.indexOf(id)
		if i < 0 {
			return ErrStepNotFound
		}
		fn(&s.steps[i])
		s.steps[i].ID = id
		return nil
	})
}
