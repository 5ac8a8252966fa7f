package session

import (
	"fmt"
	"strings"
)

// State is the recording state of a session.
type State int

const (
	Idle State = iota
	Recording
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "idle":
		*s = Idle
	case "recording":
		*s = Recording
	case "paused":
		*s = Paused
	default:
		return fmt.Errorf("unknown state %q", string(b))
	}
	return nil
}
