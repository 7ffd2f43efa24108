package transport

import (
	"errors"
	"fmt"
	"sync"
)

// State is an adapter lifecycle state.
type State int

const (
	StateIdle State = iota
	StateConnected
	StateActive
	StateReconnecting
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnected:
		return "connected"
	case StateActive:
		return "active"
	case StateReconnecting:
		return "reconnecting"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrBadTransition is returned for a lifecycle transition the state machine
// does not allow.
var ErrBadTransition = errors.New("invalid lifecycle transition")

var transitions = map[State][]State{
	StateIdle:         {StateConnected, StateStopped},
	StateConnected:    {StateActive, StateReconnecting, StateStopped},
	StateActive:       {StateReconnecting, StateStopped},
	StateReconnecting: {StateActive, StateStopped},
	StateStopped:      {},
}

// Lifecycle is the guarded adapter state machine:
// Idle → Connected → Active ⇄ Reconnecting → Stopped.
// Out-of-order transitions are rejected rather than silently applied.
type Lifecycle struct {
	mu    sync.Mutex
	state State
}

// NewLifecycle creates a Lifecycle in StateIdle.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// To transitions to next, or returns ErrBadTransition.
func (l *Lifecycle) To(next State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, allowed := range transitions[l.state] {
		if next == allowed {
			l.state = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrBadTransition, l.state, next)
}
