// Package capability compares a work order's capability requirements
// against a backend's advertised manifest. The check runs before
// dispatch: an unsatisfiable work order never reaches a backend and
// produces no receipt.
package capability

import (
	"fmt"
	"strings"

	"backplane/internal/contract"
)

// Unmet describes one requirement the manifest could not satisfy.
type Unmet struct {
	Capability contract.Capability   `json:"capability"`
	Required   contract.SupportLevel `json:"required"`
	Actual     contract.SupportLevel `json:"actual"`
}

func (u Unmet) String() string {
	return fmt.Sprintf("%s (need %s, have %s)", u.Capability, u.Required, u.Actual)
}

// Result is the outcome of checking every requirement.
type Result struct {
	Satisfied   bool    `json:"satisfied"`
	Unsatisfied []Unmet `json:"unsatisfied,omitempty"`
}

// Check compares each required (capability, minimum level) pair against
// the manifest. A name absent from the manifest counts as unsupported.
// A requirement is satisfied iff the manifest level's ordinal meets or
// exceeds the minimum's (unsupported=0 < emulated=1 < native=2).
func Check(reqs contract.CapabilityRequirements, manifest contract.CapabilityManifest) Result {
	var unmet []Unmet
	for _, req := range reqs.Required {
		actual := manifest.Level(req.Capability)
		if !actual.Satisfies(req.MinSupport) {
			unmet = append(unmet, Unmet{
				Capability: req.Capability,
				Required:   req.MinSupport,
				Actual:     actual,
			})
		}
	}
	return Result{Satisfied: len(unmet) == 0, Unsatisfied: unmet}
}

// UnsatisfiedError is returned when a pre-flight check fails. It is fatal
// to the run: no backend is invoked and no receipt is produced.
type UnsatisfiedError struct {
	Backend string
	Unmet   []Unmet
}

func (e *UnsatisfiedError) Error() string {
	parts := make([]string, len(e.Unmet))
	for i, u := range e.Unmet {
		parts[i] = u.String()
	}
	return fmt.Sprintf("backend %q does not satisfy capability requirements: %s",
		e.Backend, strings.Join(parts, ", "))
}

// Ensure runs Check and converts a failed result into an
// UnsatisfiedError attributed to the named backend.
func Ensure(backend string, reqs contract.CapabilityRequirements, manifest contract.CapabilityManifest) error {
	res := Check(reqs, manifest)
	if res.Satisfied {
		return nil
	}
	return &UnsatisfiedError{Backend: backend, Unmet: res.Unsatisfied}
}
