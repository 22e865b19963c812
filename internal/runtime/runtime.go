package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"backplane/internal/capability"
	"backplane/internal/contract"
	"backplane/internal/policy"
	"backplane/internal/receipt"
	"backplane/internal/sidecar"
)

// RunHandle describes one in-flight run.
type RunHandle struct {
	RunID     uuid.UUID
	Backend   string
	StartedAt time.Time
}

// Runtime resolves work orders onto backends and turns every execution
// into a sealed receipt. Each run gets its own policy engine compiled
// from the work order's profile; sealed receipts are appended to the
// runtime's receipt chain.
type Runtime struct {
	log   *zap.Logger
	reg   *Registry
	chain *receipt.Chain

	mu     sync.Mutex
	active map[uuid.UUID]RunHandle
}

// New returns a runtime with an empty registry and chain.
func New(log *zap.Logger) *Runtime {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runtime{
		log:    log.Named("runtime"),
		reg:    NewRegistry(),
		chain:  receipt.NewChain(),
		active: make(map[uuid.UUID]RunHandle),
	}
}

// Registry returns the backend registry.
func (r *Runtime) Registry() *Registry { return r.reg }

// Chain returns the append-only receipt chain.
func (r *Runtime) Chain() *receipt.Chain { return r.chain }

// ActiveRuns snapshots the currently in-flight runs.
func (r *Runtime) ActiveRuns() []RunHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RunHandle, 0, len(r.active))
	for _, h := range r.active {
		out = append(out, h)
	}
	return out
}

func (r *Runtime) track(h RunHandle) {
	r.mu.Lock()
	r.active[h.RunID] = h
	r.mu.Unlock()
}

func (r *Runtime) untrack(id uuid.UUID) {
	r.mu.Lock()
	delete(r.active, id)
	r.mu.Unlock()
}

// Submit executes a work order to completion and returns the sealed
// receipt. Events are consumed internally; use RunStreaming to observe
// them live.
func (r *Runtime) Submit(ctx context.Context, backendName string, wo contract.WorkOrder) (contract.Receipt, error) {
	return r.RunStreaming(ctx, backendName, wo, nil)
}

// RunStreaming executes a work order, forwarding each policy-gated event
// to out as it happens. out may be nil; when non-nil it is not closed by
// the runtime.
//
// Denied tool_call events do not abort the run: the call is recorded,
// followed by a warning and a synthetic erroring tool_result, and any
// backend-reported result for that tool use is suppressed.
func (r *Runtime) RunStreaming(ctx context.Context, backendName string, wo contract.WorkOrder, out chan<- contract.AgentEvent) (contract.Receipt, error) {
	b, ok := r.reg.Lookup(backendName)
	if !ok {
		return contract.Receipt{}, &BackendUnavailableError{Name: backendName}
	}

	// Sidecars report their manifest as deferred until the handshake;
	// the check then runs inside the adapter once hello arrives.
	manifest, known := b.Capabilities()
	if known {
		if err := capability.Ensure(backendName, wo.Requirements, manifest); err != nil {
			return contract.Receipt{}, err
		}
	}

	runID := uuid.New()
	started := time.Now().UTC()
	r.track(RunHandle{RunID: runID, Backend: backendName, StartedAt: started})
	defer r.untrack(runID)

	log := r.log.With(
		zap.String("run_id", runID.String()),
		zap.String("backend", backendName))
	log.Info("run starting", zap.String("task", wo.Task))

	eng := policy.Compile(wo.Policy, wo.Workspace.Root, log)
	scope := policy.NewWorkspaceFilter(wo.Workspace.Include, wo.Workspace.Exclude, log)

	raw := make(chan contract.AgentEvent, 64)
	var trace []contract.AgentEvent
	consumed := make(chan struct{})
	go func() {
		defer close(consumed)
		deniedUse := make(map[string]bool)
		for ev := range raw {
			for _, gated := range gate(eng, scope, deniedUse, ev, log) {
				trace = append(trace, gated)
				if out == nil {
					continue
				}
				select {
				case out <- gated:
				case <-ctx.Done():
					out = nil
				}
			}
		}
	}()

	rec, runErr := b.Run(ctx, runID, wo, raw)
	close(raw)
	<-consumed

	var timedOut *sidecar.TimeoutError
	if runErr != nil {
		if !errors.As(runErr, &timedOut) {
			log.Warn("run failed", zap.Error(runErr))
			return contract.Receipt{}, runErr
		}
		// The host killed the process and synthesized a failed
		// receipt; seal and record it like any other outcome.
		log.Warn("run timed out", zap.Error(runErr))
	}

	finished := time.Now().UTC()
	rec.Meta.RunID = runID
	rec.Meta.WorkOrderID = wo.ID
	rec.Meta.ContractVersion = contract.ContractVersion
	rec.Meta.StartedAt = started
	rec.Meta.FinishedAt = finished
	rec.Meta.DurationMS = uint64(finished.Sub(started).Milliseconds())
	if rec.Backend.ID == "" {
		rec.Backend = b.Identity()
	}
	if len(rec.Capabilities) == 0 {
		rec.Capabilities = manifest.Clone()
	}
	if rec.UsageRaw == nil {
		rec.UsageRaw = map[string]any{}
	}
	if timedOut == nil {
		rec.Trace = trace
		if !contract.BookendsHold(rec.Trace) {
			log.Warn("trace bookend invariant does not hold")
		}
	} else {
		// The host's synthesized trace carries raw events; the audit
		// record keeps the policy-gated ones plus the host's terminal
		// error entry.
		if n := len(rec.Trace); n > 0 && rec.Trace[n-1].Type == contract.EventError {
			trace = append(trace, rec.Trace[n-1])
		}
		rec.Trace = trace
	}

	sealed, err := receipt.Seal(rec)
	if err != nil {
		return contract.Receipt{}, err
	}
	if err := r.chain.Push(sealed); err != nil {
		return contract.Receipt{}, fmt.Errorf("record receipt: %w", err)
	}
	log.Info("run finished",
		zap.String("outcome", string(sealed.Outcome)),
		zap.Int("trace_events", len(sealed.Trace)),
		zap.Stringp("receipt_sha256", sealed.ReceiptSHA256))
	return sealed, nil
}

// gate applies the policy engine to one live event. Most events pass
// through unchanged; denied tool calls grow a warning and a synthetic
// erroring result, results for denied calls are dropped, and file
// changes outside the work order's workspace scope grow a warning.
func gate(eng *policy.Engine, scope *policy.WorkspaceFilter, deniedUse map[string]bool, ev contract.AgentEvent, log *zap.Logger) []contract.AgentEvent {
	switch ev.Type {
	case contract.EventFileChanged:
		if ev.Path != "" && !scope.Allows(ev.Path) {
			log.Warn("file change outside workspace scope", zap.String("path", ev.Path))
			return []contract.AgentEvent{
				contract.NewWarning(fmt.Sprintf("file_changed path %q is outside the declared workspace scope", ev.Path)),
				ev,
			}
		}
	case contract.EventToolCall:
		d := eng.PreTool(ev.ToolName, ev.Input)
		if !d.Allowed {
			denial := &policy.DeniedError{Tool: ev.ToolName, Reason: d.Reason}
			log.Warn("policy denied tool call", zap.Error(denial))
			if ev.ToolUseID != "" {
				deniedUse[ev.ToolUseID] = true
			}
			return []contract.AgentEvent{
				ev,
				contract.NewWarning(denial.Error()),
				contract.NewToolResult(ev.ToolName, ev.ToolUseID, map[string]any{"error": d.Reason}, true),
			}
		}
	case contract.EventToolResult:
		if ev.ToolUseID != "" && deniedUse[ev.ToolUseID] {
			return nil
		}
	}
	return []contract.AgentEvent{ev}
}
