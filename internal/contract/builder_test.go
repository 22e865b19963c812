package contract

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkOrderDefaults(t *testing.T) {
	wo := NewWorkOrder("refactor the parser").Build()

	assert.NotEqual(t, uuid.Nil, wo.ID)
	assert.Equal(t, "refactor the parser", wo.Task)
	assert.Equal(t, LanePatchFirst, wo.Lane)
	assert.Equal(t, ".", wo.Workspace.Root)
	assert.Equal(t, ModeStaged, wo.Workspace.Mode)
	assert.Empty(t, wo.Requirements.Required)
}

func TestWorkOrderBuilderVendorNamespace(t *testing.T) {
	wo := NewWorkOrder("task").
		Vendor("mock", "tool_calls", []any{map[string]any{"tool": "Bash"}}).
		Vendor("mock", "seed", 42).
		Build()

	ns := wo.VendorNamespace("mock")
	require.NotNil(t, ns)
	assert.Contains(t, ns, "tool_calls")
	assert.Equal(t, 42, ns["seed"])
	assert.Nil(t, wo.VendorNamespace("other"))
}

func TestWorkOrderBuilderRequirements(t *testing.T) {
	wo := NewWorkOrder("task").
		Require(CapStreaming, SupportNative).
		Require(CapToolEdit, SupportEmulated).
		Build()

	require.Len(t, wo.Requirements.Required, 2)
	assert.Equal(t, CapStreaming, wo.Requirements.Required[0].Capability)
	assert.Equal(t, SupportNative, wo.Requirements.Required[0].MinSupport)
}

func TestReceiptBuilderWindow(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	finished := started.Add(1500 * time.Millisecond)

	rec := NewReceipt(BackendIdentity{ID: "mock"}).
		Window(started, finished).
		Build()

	assert.Equal(t, started, rec.Meta.StartedAt)
	assert.Equal(t, finished, rec.Meta.FinishedAt)
	assert.Equal(t, uint64(1500), rec.Meta.DurationMS)
	assert.Equal(t, ContractVersion, rec.Meta.ContractVersion)
	assert.Nil(t, rec.ReceiptSHA256)
}

func TestReceiptBuilderTraceAndArtifacts(t *testing.T) {
	rec := NewReceipt(BackendIdentity{ID: "mock"}).
		AppendEvent(NewRunStarted("go")).
		AppendEvent(NewRunCompleted("done")).
		AddArtifact("patch", "out/changes.patch").
		Build()

	assert.True(t, BookendsHold(rec.Trace))
	require.Len(t, rec.Artifacts, 1)
	assert.Equal(t, "patch", rec.Artifacts[0].Kind)
	assert.Equal(t, OutcomeComplete, rec.Outcome)
}
