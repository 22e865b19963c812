package protocol

import (
	"encoding/json"
	"fmt"
)

// Error reports a malformed or out-of-contract envelope. Reason explains
// the violation; Line carries the offending input (possibly truncated)
// for diagnostics.
type Error struct {
	Reason string
	Line   string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("protocol error: %s", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

const maxDiagnosticLine = 256

func truncate(line string) string {
	if len(line) > maxDiagnosticLine {
		return line[:maxDiagnosticLine] + "..."
	}
	return line
}

// Encode serializes an envelope to a newline-terminated JSON line.
func Encode(env Envelope) ([]byte, error) {
	if err := env.validate(); err != nil {
		return nil, &Error{Reason: "refusing to encode invalid envelope", Err: err}
	}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, &Error{Reason: "marshal envelope", Err: err}
	}
	return append(b, '\n'), nil
}

// Decode parses one JSON line into an Envelope, rejecting unknown kinds
// and kind/payload mismatches.
func Decode(line []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Envelope{}, &Error{Reason: "invalid JSON", Line: truncate(string(line)), Err: err}
	}
	if err := env.validate(); err != nil {
		return Envelope{}, &Error{Reason: "invalid envelope", Line: truncate(string(line)), Err: err}
	}
	return env, nil
}
