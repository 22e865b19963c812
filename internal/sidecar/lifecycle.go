// Package sidecar supervises one external backend process per run over
// stdin/stdout: spawn, hello handshake, run dispatch, streaming demux,
// per-run timeout, and crash classification. There is no process-wide
// registry; each Host is an explicit per-run supervisor owned by the
// orchestrator.
package sidecar

import (
	"fmt"
	"sync"
	"time"
)

// State is one node of the per-process lifecycle machine:
// Spawned → AwaitingHello → Ready → RunInFlight → terminal.
type State string

// Lifecycle states. Completed, Failed, TimedOut, and Crashed are terminal.
const (
	StateSpawned       State = "spawned"
	StateAwaitingHello State = "awaiting_hello"
	StateReady         State = "ready"
	StateRunInFlight   State = "run_in_flight"
	StateCompleted     State = "completed"
	StateFailed        State = "failed"
	StateTimedOut      State = "timed_out"
	StateCrashed       State = "crashed"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCrashed:
		return true
	}
	return false
}

// Transition records one state change with its wall-clock time and an
// optional reason.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	At     time.Time `json:"at"`
	Reason string    `json:"reason,omitempty"`
}

// InvalidTransitionError is returned when a requested transition is not
// allowed by the state machine.
type InvalidTransitionError struct {
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid sidecar lifecycle transition from %s to %s", e.From, e.To)
}

// Lifecycle tracks the current state and the transition history for one
// sidecar process. Safe for concurrent use.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	history []Transition
}

// NewLifecycle starts in StateSpawned.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateSpawned}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns a copy of all transitions so far.
func (l *Lifecycle) History() []Transition {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transition, len(l.history))
	copy(out, l.history)
	return out
}

// To attempts a transition, recording it on success.
func (l *Lifecycle) To(next State, reason string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !validTransition(l.state, next) {
		return &InvalidTransitionError{From: l.state, To: next}
	}
	l.history = append(l.history, Transition{
		From:   l.state,
		To:     next,
		At:     time.Now().UTC(),
		Reason: reason,
	})
	l.state = next
	return nil
}

// validTransition encodes the machine. The failure states are reachable
// from any non-terminal state; forward progress is strictly ordered.
func validTransition(from, to State) bool {
	if from.Terminal() {
		return false
	}
	switch to {
	case StateCrashed, StateFailed, StateTimedOut:
		return true
	case StateAwaitingHello:
		return from == StateSpawned
	case StateReady:
		return from == StateAwaitingHello
	case StateRunInFlight:
		return from == StateReady
	case StateCompleted:
		return from == StateRunInFlight
	default:
		return false
	}
}
