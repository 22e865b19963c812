package sidecar

import "fmt"

// HandshakeError is returned when the first line from the sidecar is not a
// well-formed hello envelope, or the process exits before producing one.
type HandshakeError struct {
	Reason string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sidecar handshake failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("sidecar handshake failed: %s", e.Reason)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

// CrashedError is returned when the sidecar process exits before emitting a
// final envelope for the in-flight run.
type CrashedError struct {
	ExitCode int
	Err      error
}

func (e *CrashedError) Error() string {
	return fmt.Sprintf("sidecar exited before emitting a final receipt (exit code %d)", e.ExitCode)
}

func (e *CrashedError) Unwrap() error { return e.Err }

// FatalError carries the backend's own fatal envelope for a run.
type FatalError struct {
	RunID   string
	Message string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("sidecar reported fatal error for run %s: %s", e.RunID, e.Message)
}

// TimeoutError is returned alongside the synthesized failed receipt when a
// run exceeds its deadline. Callers that receive it still get a usable
// receipt describing the partial trace.
type TimeoutError struct {
	RunID   string
	Timeout string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("sidecar run %s timed out after %s", e.RunID, e.Timeout)
}
