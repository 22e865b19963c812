// Package runtime orchestrates work order execution: backend resolution,
// capability pre-flight, policy gating of the live event stream, receipt
// assembly and sealing, and the append-only receipt chain.
package runtime

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"backplane/internal/contract"
)

// Backend executes work orders. Implementations stream events to the
// provided channel as they occur and return the backend-reported receipt
// when the run ends. The channel is owned by the caller; backends must
// not close it.
type Backend interface {
	// Identity names the backend. For sidecar backends this is the
	// configured identity; the handshake may refine version fields.
	Identity() contract.BackendIdentity

	// Capabilities returns the manifest and whether it is known yet.
	// Sidecar backends report false before their handshake; the
	// capability check is then deferred until hello arrives. A known
	// empty manifest is not a deferral: every requirement against it
	// fails as unsupported.
	Capabilities() (contract.CapabilityManifest, bool)

	// Run executes one work order under the given run id.
	Run(ctx context.Context, runID uuid.UUID, wo contract.WorkOrder, events chan<- contract.AgentEvent) (contract.Receipt, error)
}

// BackendUnavailableError is returned when a work order names a backend
// that is not registered.
type BackendUnavailableError struct {
	Name string
}

func (e *BackendUnavailableError) Error() string {
	return fmt.Sprintf("unknown backend: %s", e.Name)
}

// Registry maps backend names to implementations. Safe for concurrent
// use.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

// Register installs b under name, replacing any previous registration.
func (r *Registry) Register(name string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[name] = b
}

// Lookup returns the backend registered under name.
func (r *Registry) Lookup(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
