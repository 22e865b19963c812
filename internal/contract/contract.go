// Package contract provides the stable data model shared by every other
// backplane package: work orders, receipts, agent events, capability
// manifests, and policy profiles. Types here are plain data with no
// behavior beyond construction helpers; the heavier machinery (policy
// compilation, negotiation, hashing) lives in sibling packages.
package contract

import (
	"time"

	"github.com/google/uuid"
)

// ContractVersion is stamped into every hello envelope and every
// Receipt.Meta.ContractVersion.
const ContractVersion = "abp/v0.1"

// ExecutionLane is a hint for how the agent should produce its output.
type ExecutionLane string

const (
	// LanePatchFirst means the agent proposes a patch/diff and never
	// mutates the user's repository directly.
	LanePatchFirst ExecutionLane = "patch_first"
	// LaneWorkspaceFirst means the agent may mutate the workspace
	// (usually a staged copy or worktree).
	LaneWorkspaceFirst ExecutionLane = "workspace_first"
)

// WorkspaceMode describes how the runtime treats the workspace before
// handing it to a backend.
type WorkspaceMode string

const (
	// ModePassThrough uses the workspace as-is.
	ModePassThrough WorkspaceMode = "pass_through"
	// ModeStaged creates a sanitized copy before running tools.
	ModeStaged WorkspaceMode = "staged"
)

// WorkspaceSpec describes the workspace root, staging mode, and optional
// include/exclude globs evaluated relative to the root.
type WorkspaceSpec struct {
	Root    string        `json:"root"`
	Mode    WorkspaceMode `json:"mode"`
	Include []string      `json:"include"`
	Exclude []string      `json:"exclude"`
}

// ContextSnippet is a named text fragment attached to a work order.
type ContextSnippet struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// ContextPacket carries pre-loaded context files and snippets.
type ContextPacket struct {
	Files    []string         `json:"files"`
	Snippets []ContextSnippet `json:"snippets"`
}

// PolicyProfile is the declarative security policy attached to a work
// order: glob-based allow/deny rules for tools, file paths, and network
// hosts. An empty profile permits everything.
//
// Invariant: deny always overrides allow for the same subject. An empty
// allowed-tools list means "allow everything not denied".
type PolicyProfile struct {
	AllowedTools       []string `json:"allowed_tools"`
	DisallowedTools    []string `json:"disallowed_tools"`
	DenyRead           []string `json:"deny_read"`
	DenyWrite          []string `json:"deny_write"`
	AllowNetwork       []string `json:"allow_network"`
	DenyNetwork        []string `json:"deny_network"`
	RequireApprovalFor []string `json:"require_approval_for"`
}

// RuntimeConfig carries runtime-level knobs: model selection, vendor
// flags, environment overrides, and budget caps.
type RuntimeConfig struct {
	Model        string                    `json:"model,omitempty"`
	Vendor       map[string]map[string]any `json:"vendor,omitempty"`
	Env          map[string]string         `json:"env,omitempty"`
	MaxBudgetUSD *float64                  `json:"max_budget_usd,omitempty"`
	MaxTurns     *uint32                   `json:"max_turns,omitempty"`
}

// WorkOrder is a single submitted unit of agentic work. It is created by
// the caller and immutable once submitted; the run that consumes it owns
// it exclusively.
type WorkOrder struct {
	ID           uuid.UUID              `json:"id"`
	Task         string                 `json:"task"`
	Lane         ExecutionLane          `json:"lane"`
	Workspace    WorkspaceSpec          `json:"workspace"`
	Context      ContextPacket          `json:"context"`
	Policy       PolicyProfile          `json:"policy"`
	Requirements CapabilityRequirements `json:"requirements"`
	Config       RuntimeConfig          `json:"config"`
}

// VendorNamespace returns the vendor-specific option map under the given
// namespace key, or nil when absent.
func (w *WorkOrder) VendorNamespace(ns string) map[string]any {
	if w.Config.Vendor == nil {
		return nil
	}
	return w.Config.Vendor[ns]
}

// BackendIdentity identifies a backend and its version information.
type BackendIdentity struct {
	ID             string `json:"id"`
	BackendVersion string `json:"backend_version,omitempty"`
	AdapterVersion string `json:"adapter_version,omitempty"`
}

// Outcome is the high-level result status of a run. It is
// backend-reported and never silently coerced by the orchestrator.
type Outcome string

const (
	// OutcomeComplete means the run finished successfully.
	OutcomeComplete Outcome = "complete"
	// OutcomePartial means the run produced partial results, for
	// example because a budget was exhausted.
	OutcomePartial Outcome = "partial"
	// OutcomeFailed means the run failed.
	OutcomeFailed Outcome = "failed"
)

// RunMetadata holds timing and identity metadata for a single run.
type RunMetadata struct {
	RunID           uuid.UUID `json:"run_id"`
	WorkOrderID     uuid.UUID `json:"work_order_id"`
	ContractVersion string    `json:"contract_version"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	DurationMS      uint64    `json:"duration_ms"`
}

// UsageNormalized is a best-effort normalization of token/cost counters
// across backends. Nil fields were not reported.
type UsageNormalized struct {
	InputTokens      *uint64  `json:"input_tokens"`
	OutputTokens     *uint64  `json:"output_tokens"`
	CacheReadTokens  *uint64  `json:"cache_read_tokens"`
	CacheWriteTokens *uint64  `json:"cache_write_tokens"`
	RequestUnits     *uint64  `json:"request_units"`
	EstimatedCostUSD *float64 `json:"estimated_cost_usd"`
}

// ArtifactRef points at an artifact produced during a run, for example a
// patch file offloaded from the trace.
type ArtifactRef struct {
	Kind string `json:"kind"`
	Path string `json:"path"`
}

// VerificationReport holds git-based verification data captured after a
// run completes.
type VerificationReport struct {
	GitDiff   string `json:"git_diff,omitempty"`
	GitStatus string `json:"git_status,omitempty"`
	HarnessOK bool   `json:"harness_ok"`
}

// Receipt is the tamper-evident audit record of one run. It is created
// empty when a run starts, populated incrementally as events arrive, and
// sealed (hashed) when the backend signals completion; immutable after
// sealing.
type Receipt struct {
	Meta          RunMetadata        `json:"meta"`
	Backend       BackendIdentity    `json:"backend"`
	Capabilities  CapabilityManifest `json:"capabilities"`
	UsageRaw      map[string]any     `json:"usage_raw"`
	Usage         UsageNormalized    `json:"usage"`
	Trace         []AgentEvent       `json:"trace"`
	Artifacts     []ArtifactRef      `json:"artifacts"`
	Verification  VerificationReport `json:"verification"`
	Outcome       Outcome            `json:"outcome"`
	ReceiptSHA256 *string            `json:"receipt_sha256"`
}

// Uint64 returns a pointer to v. Convenience for UsageNormalized fields.
func Uint64(v uint64) *uint64 { return &v }

// Float64 returns a pointer to v.
func Float64(v float64) *float64 { return &v }
