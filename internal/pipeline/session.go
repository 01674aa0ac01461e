package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// State is the scheduler lifecycle state
type State int

const (
	Idle State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText encodes the state by name in JSON and YAML output
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Running, Stopped} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Session is one Start..Stop run of the capture loop
type Session struct {
	ID        string
	StartedAt time.Time
	Source    string

	stop     chan struct{}
	done     chan struct{}
	dispatch *dispatcher
}

func newSession(source string, dispatch *dispatcher) *Session {
	return &Session{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
		Source:    source,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
		dispatch:  dispatch,
	}
}

// stopping reports whether the loop has been told to exit
func (s *Session) stopping() bool {
	select {
	case <-s.stop:
		return true
	default:
		return false
	}
}
