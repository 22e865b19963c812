package runtime

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backplane/internal/capability"
	"backplane/internal/contract"
	"backplane/internal/sidecar"
)

// SidecarBackend adapts an external process speaking the line-delimited
// JSON protocol to the Backend interface. One process is spawned per run
// and torn down when the run ends; no process pooling.
type SidecarBackend struct {
	name string
	spec sidecar.Spec
	log  *zap.Logger
}

// NewSidecarBackend configures a sidecar backend. Nothing is spawned
// until Run is called.
func NewSidecarBackend(name string, spec sidecar.Spec, log *zap.Logger) *SidecarBackend {
	if log == nil {
		log = zap.NewNop()
	}
	return &SidecarBackend{name: name, spec: spec, log: log}
}

// Identity implements Backend. Version fields are only known after a
// handshake; the run receipt carries the hello-reported identity.
func (s *SidecarBackend) Identity() contract.BackendIdentity {
	return contract.BackendIdentity{ID: s.name}
}

// Capabilities implements Backend. The manifest is unknown until the
// process announces itself, so this reports deferral and the capability
// check runs inside Run, right after the handshake.
func (s *SidecarBackend) Capabilities() (contract.CapabilityManifest, bool) {
	return nil, false
}

// Run implements Backend: spawn, handshake, capability check against the
// hello manifest, then dispatch the work order.
func (s *SidecarBackend) Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error) {
	h, err := sidecar.Spawn(ctx, s.spec, s.log)
	if err != nil {
		return contract.Receipt{}, err
	}
	defer h.Close()

	if err := capability.Ensure(s.name, wo.Requirements, h.Capabilities()); err != nil {
		return contract.Receipt{}, err
	}
	return h.Run(ctx, runID, wo, events)
}
