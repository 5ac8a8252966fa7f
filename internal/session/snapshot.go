package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jakopako/steprec/internal/store"
	"github.com/jakopako/steprec/internal/types"
)

// DefaultFreshness is how long a persisted snapshot may be restored.
const DefaultFreshness = time.Hour

// Snapshot is the persisted form of a session, keyed to a browsing context.
type Snapshot struct {
	Key         string       `json:"key" yaml:"key"`
	SessionID   string       `json:"sessionId" yaml:"session_id"`
	State       State        `json:"state" yaml:"state"`
	Steps       []types.Step `json:"steps" yaml:"steps"`
	StepCounter int          `json:"stepCounter" yaml:"step_counter"`
	SavedAt     time.Time    `json:"savedAt" yaml:"saved_at"`
}

// Snapshot captures the current state, steps and counter under key.
func (s *Session) Snapshot(key string) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Key:         key,
		SessionID:   s.id,
		State:       s.state,
		Steps:       slices.Clone(s.steps),
		StepCounter: s.counter,
		SavedAt:     s.now(),
	}
}

// Restore builds a session from snap. The frame registry is not part of a
// snapshot and has to be supplied again by the host.
func Restore(snap Snapshot, opts ...Option) *Session {
	s := New(append([]Option{WithID(snap.SessionID)}, opts...)...)
	s.state = snap.State
	s.steps = slices.Clone(snap.Steps)
	s.counter = max(snap.StepCounter, len(snap.Steps))
	return s
}

// Persister saves sessions to a store and restores them if they are fresh.
type Persister struct {
	store     store.Store
	freshness time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type PersisterOption func(*Persister)

func WithFreshness(d time.Duration) PersisterOption {
	return func(p *Persister) { p.freshness = d }
}

func WithPersisterClock(now func() time.Time) PersisterOption {
	return func(p *Persister) { p.now = now }
}

func NewPersister(st store.Store, opts ...PersisterOption) *Persister {
	p := &Persister{
		store:     st,
		freshness: DefaultFreshness,
		now:       time.Now,
		logger:    slog.Default().With(slog.String("component", "persister")),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Save persists a snapshot of s under key.
func (p *Persister) Save(ctx context.Context, key string, s *Session) error {
	snap := s.Snapshot(key)
	snap.SavedAt = p.now()
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot %s: %w", key, err)
	}
	if err := p.store.Save(ctx, key, b); err != nil {
		return fmt.Errorf("failed to save snapshot %s: %w", key, err)
	}
	p.logger.Debug(fmt.Sprintf("saved snapshot %s with %d step(s)", key, len(snap.Steps)))
	return nil
}

// LoadSnapshot returns the snapshot stored under key without checking its age.
func (p *Persister) LoadSnapshot(ctx context.Context, key string) (Snapshot, error) {
	var snap Snapshot
	b, err := p.store.Load(ctx, key)
	if err != nil {
		return snap, err
	}
	if err := json.Unmarshal(b, &snap); err != nil {
		return snap, fmt.Errorf("corrupt snapshot %s: %w", key, err)
	}
	return snap, nil
}

// Load restores the session stored under key. Missing, corrupt and stale
// snapshots yield a fresh Idle session; stale and corrupt ones are removed.
// The second return value reports whether a snapshot was restored.
func (p *Persister) Load(ctx context.Context, key string, opts ...Option) (*Session, bool) {
	snap, err := p.LoadSnapshot(ctx, key)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p.logger.Debug(fmt.Sprintf("no snapshot %s, starting fresh", key))
		return New(opts...), false
	case err != nil:
		p.logger.Warn(fmt.Sprintf("discarding snapshot %s: %v", key, err))
		p.drop(ctx, key)
		return New(opts...), false
	}
	if age := p.now().Sub(snap.SavedAt); age > p.freshness {
		p.logger.Info(fmt.Sprintf("discarding snapshot %s, it is %s old", key, age.Round(time.Second)))
		p.drop(ctx, key)
		return New(opts...), false
	}
	p.logger.Debug(fmt.Sprintf("restored snapshot %s (%s, %d step(s))", key, snap.State, len(snap.Steps)))
	return Restore(snap, opts...), true
}

// Delete removes the snapshot stored under key.
func (p *Persister) Delete(ctx context.Context, key string) error {
	return p.store.Delete(ctx, key)
}

func (p *Persister) drop(ctx context.Context, key string) {
	if err := p.store.Delete(ctx, key); err != nil {
		p.logger.Warn(fmt.Sprintf("failed to delete snapshot %s: %v", key, err))
	}
}
