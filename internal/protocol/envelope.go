// Package protocol implements the line-delimited JSON wire format spoken
// between the orchestrator and sidecar processes. One Envelope per line,
// UTF-8, discriminated by the literal field "t".
package protocol

import (
	"fmt"

	"backplane/internal/contract"
)

// Kind is the envelope discriminator carried in the "t" field.
type Kind string

// The five envelope kinds. hello precedes any run; all event envelopes
// for a ref_id precede its final/fatal.
const (
	KindHello Kind = "hello"
	KindRun   Kind = "run"
	KindEvent Kind = "event"
	KindFinal Kind = "final"
	KindFatal Kind = "fatal"
)

// Envelope is the wire-protocol unit. Exactly one payload group is
// populated, selected by T. Unknown kinds are rejected at decode time;
// they are never silently ignored.
type Envelope struct {
	T Kind `json:"t"`

	// hello
	ContractVersion string                      `json:"contract_version,omitempty"`
	Backend         *contract.BackendIdentity   `json:"backend,omitempty"`
	Capabilities    contract.CapabilityManifest `json:"capabilities,omitempty"`

	// run
	ID        string              `json:"id,omitempty"`
	WorkOrder *contract.WorkOrder `json:"work_order,omitempty"`

	// event, final, fatal
	RefID   string               `json:"ref_id,omitempty"`
	Event   *contract.AgentEvent `json:"event,omitempty"`
	Receipt *contract.Receipt    `json:"receipt,omitempty"`
	Error   string               `json:"error,omitempty"`
}

// Hello builds the announcement a backend emits before accepting a run.
func Hello(backend contract.BackendIdentity, caps contract.CapabilityManifest) Envelope {
	return Envelope{
		T:               KindHello,
		ContractVersion: contract.ContractVersion,
		Backend:         &backend,
		Capabilities:    caps,
	}
}

// Run builds the request the orchestrator sends exactly once per run.
func Run(id string, wo contract.WorkOrder) Envelope {
	return Envelope{T: KindRun, ID: id, WorkOrder: &wo}
}

// Event wraps one AgentEvent tied to its originating run id.
func Event(refID string, ev contract.AgentEvent) Envelope {
	return Envelope{T: KindEvent, RefID: refID, Event: &ev}
}

// Final carries the terminal receipt for a run.
func Final(refID string, r contract.Receipt) Envelope {
	return Envelope{T: KindFinal, RefID: refID, Receipt: &r}
}

// Fatal reports an unrecoverable protocol violation; terminal for refID.
func Fatal(refID, errMsg string) Envelope {
	return Envelope{T: KindFatal, RefID: refID, Error: errMsg}
}

// validate checks that the payload group required by the envelope's kind
// is present. The switch is exhaustive over the known kinds; anything
// else is a protocol error.
func (e *Envelope) validate() error {
	switch e.T {
	case KindHello:
		if e.Backend == nil {
			return fmt.Errorf("hello envelope missing backend identity")
		}
		if e.ContractVersion == "" {
			return fmt.Errorf("hello envelope missing contract_version")
		}
	case KindRun:
		if e.ID == "" {
			return fmt.Errorf("run envelope missing id")
		}
		if e.WorkOrder == nil {
			return fmt.Errorf("run envelope missing work_order")
		}
	case KindEvent:
		if e.RefID == "" {
			return fmt.Errorf("event envelope missing ref_id")
		}
		if e.Event == nil {
			return fmt.Errorf("event envelope missing event payload")
		}
	case KindFinal:
		if e.RefID == "" {
			return fmt.Errorf("final envelope missing ref_id")
		}
		if e.Receipt == nil {
			return fmt.Errorf("final envelope missing receipt")
		}
	case KindFatal:
		if e.Error == "" {
			return fmt.Errorf("fatal envelope missing error")
		}
	default:
		return fmt.Errorf("unknown envelope kind %q", e.T)
	}
	return nil
}
