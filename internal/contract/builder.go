package contract

import (
	"time"

	"github.com/google/uuid"
)

// WorkOrderBuilder assembles a WorkOrder with sensible defaults: a fresh
// id, the patch_first lane, a staged workspace rooted at ".", and empty
// policy/requirements.
type WorkOrderBuilder struct {
	wo WorkOrder
}

// NewWorkOrder starts a builder for the given task description.
func NewWorkOrder(task string) *WorkOrderBuilder {
	return &WorkOrderBuilder{wo: WorkOrder{
		ID:   uuid.New(),
		Task: task,
		Lane: LanePatchFirst,
		Workspace: WorkspaceSpec{
			Root: ".",
			Mode: ModeStaged,
		},
	}}
}

// Lane sets the execution lane.
func (b *WorkOrderBuilder) Lane(lane ExecutionLane) *WorkOrderBuilder {
	b.wo.Lane = lane
	return b
}

// Root sets the workspace root path.
func (b *WorkOrderBuilder) Root(root string) *WorkOrderBuilder {
	b.wo.Workspace.Root = root
	return b
}

// WorkspaceMode sets the workspace staging mode.
func (b *WorkOrderBuilder) WorkspaceMode(mode WorkspaceMode) *WorkOrderBuilder {
	b.wo.Workspace.Mode = mode
	return b
}

// Include sets workspace include globs.
func (b *WorkOrderBuilder) Include(patterns ...string) *WorkOrderBuilder {
	b.wo.Workspace.Include = patterns
	return b
}

// Exclude sets workspace exclude globs.
func (b *WorkOrderBuilder) Exclude(patterns ...string) *WorkOrderBuilder {
	b.wo.Workspace.Exclude = patterns
	return b
}

// Context sets the context packet.
func (b *WorkOrderBuilder) Context(ctx ContextPacket) *WorkOrderBuilder {
	b.wo.Context = ctx
	return b
}

// Policy sets the security policy profile.
func (b *WorkOrderBuilder) Policy(p PolicyProfile) *WorkOrderBuilder {
	b.wo.Policy = p
	return b
}

// Require appends a capability requirement.
func (b *WorkOrderBuilder) Require(cap Capability, min SupportLevel) *WorkOrderBuilder {
	b.wo.Requirements.Required = append(b.wo.Requirements.Required, CapabilityRequirement{
		Capability: cap,
		MinSupport: min,
	})
	return b
}

// Model sets the preferred model identifier.
func (b *WorkOrderBuilder) Model(model string) *WorkOrderBuilder {
	b.wo.Config.Model = model
	return b
}

// Vendor sets one vendor-namespaced option.
func (b *WorkOrderBuilder) Vendor(ns, key string, value any) *WorkOrderBuilder {
	if b.wo.Config.Vendor == nil {
		b.wo.Config.Vendor = map[string]map[string]any{}
	}
	if b.wo.Config.Vendor[ns] == nil {
		b.wo.Config.Vendor[ns] = map[string]any{}
	}
	b.wo.Config.Vendor[ns][key] = value
	return b
}

// MaxBudgetUSD sets the best-effort cost cap.
func (b *WorkOrderBuilder) MaxBudgetUSD(v float64) *WorkOrderBuilder {
	b.wo.Config.MaxBudgetUSD = &v
	return b
}

// MaxTurns sets the best-effort turn cap.
func (b *WorkOrderBuilder) MaxTurns(v uint32) *WorkOrderBuilder {
	b.wo.Config.MaxTurns = &v
	return b
}

// Build returns the assembled work order.
func (b *WorkOrderBuilder) Build() WorkOrder {
	return b.wo
}

// ReceiptBuilder assembles a Receipt incrementally as a run progresses.
// The zero outcome is complete; Seal-ing is the receipt package's job.
type ReceiptBuilder struct {
	r Receipt
}

// NewReceipt starts a builder for the given backend identity. Timestamps
// default to now and the run id is freshly generated.
func NewReceipt(backend BackendIdentity) *ReceiptBuilder {
	now := time.Now().UTC()
	return &ReceiptBuilder{r: Receipt{
		Meta: RunMetadata{
			RunID:           uuid.New(),
			ContractVersion: ContractVersion,
			StartedAt:       now,
			FinishedAt:      now,
		},
		Backend:   backend,
		UsageRaw:  map[string]any{},
		Outcome:   OutcomeComplete,
		Trace:     []AgentEvent{},
		Artifacts: []ArtifactRef{},
	}}
}

// RunID sets the run identifier.
func (b *ReceiptBuilder) RunID(id uuid.UUID) *ReceiptBuilder {
	b.r.Meta.RunID = id
	return b
}

// WorkOrderID sets the originating work order id.
func (b *ReceiptBuilder) WorkOrderID(id uuid.UUID) *ReceiptBuilder {
	b.r.Meta.WorkOrderID = id
	return b
}

// Window sets the start/finish timestamps and derives the duration.
func (b *ReceiptBuilder) Window(started, finished time.Time) *ReceiptBuilder {
	b.r.Meta.StartedAt = started
	b.r.Meta.FinishedAt = finished
	if d := finished.Sub(started); d > 0 {
		b.r.Meta.DurationMS = uint64(d.Milliseconds())
	} else {
		b.r.Meta.DurationMS = 0
	}
	return b
}

// Capabilities snapshots the manifest the backend reported at run time.
func (b *ReceiptBuilder) Capabilities(m CapabilityManifest) *ReceiptBuilder {
	b.r.Capabilities = m.Clone()
	return b
}

// Outcome sets the backend-reported outcome.
func (b *ReceiptBuilder) Outcome(o Outcome) *ReceiptBuilder {
	b.r.Outcome = o
	return b
}

// UsageRaw sets the vendor-specific usage payload as reported.
func (b *ReceiptBuilder) UsageRaw(raw map[string]any) *ReceiptBuilder {
	b.r.UsageRaw = raw
	return b
}

// Usage sets the normalized usage counters.
func (b *ReceiptBuilder) Usage(u UsageNormalized) *ReceiptBuilder {
	b.r.Usage = u
	return b
}

// AppendEvent appends one trace event.
func (b *ReceiptBuilder) AppendEvent(ev AgentEvent) *ReceiptBuilder {
	b.r.Trace = append(b.r.Trace, ev)
	return b
}

// Trace replaces the full trace.
func (b *ReceiptBuilder) Trace(trace []AgentEvent) *ReceiptBuilder {
	b.r.Trace = trace
	return b
}

// AddArtifact appends an artifact reference.
func (b *ReceiptBuilder) AddArtifact(kind, path string) *ReceiptBuilder {
	b.r.Artifacts = append(b.r.Artifacts, ArtifactRef{Kind: kind, Path: path})
	return b
}

// Verification sets the verification report.
func (b *ReceiptBuilder) Verification(v VerificationReport) *ReceiptBuilder {
	b.r.Verification = v
	return b
}

// Build returns the assembled, unsealed receipt (ReceiptSHA256 unset).
func (b *ReceiptBuilder) Build() Receipt {
	return b.r
}
